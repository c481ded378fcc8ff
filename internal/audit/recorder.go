package audit

/*
Файл recorder.go реализует асинхронный сборщик журнала аудита.

Ключевые особенности архитектуры:
- Non-blocking Logging: события из Hot Path шлюза и консоли уходят через
  неблокирующий канал, задержки записи в БД не влияют на Response Time.
- Batching: накопление событий в памяти и пакетная запись (Bulk Insert)
  в PostgreSQL по таймеру или при достижении лимита.
- Drain Pattern & Graceful Shutdown: при остановке сервиса буфер вычитывается
  полностью, Final Flush гарантирует отсутствие потерь при перезагрузке.
*/

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически будут сохраняться записи
type StorageInterface interface {
	// WriteBatch сохраняет пачку записей за один раз
	WriteBatch(ctx context.Context, entries []Entry) error
}

// Recorder — контракт для записи аудита из бизнес-кода
type Recorder interface {
	Record(entry Entry)
}

type BatchRecorder struct {
	ch     chan Entry
	repo   StorageInterface
	logger *zap.Logger
	wg     sync.WaitGroup

	batchSize     int
	flushInterval time.Duration

	// Атомарный флаг (0 - открыт, 1 - закрыт): вход после Stop() отбрасывается
	isClosed int32
}

func NewBatchRecorder(repo StorageInterface, logger *zap.Logger, bufSize, batchSize int, flushInterval time.Duration) *BatchRecorder {
	if bufSize <= 0 {
		bufSize = 10000
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if flushInterval <= 0 {
		flushInterval = 500 * time.Millisecond
	}
	return &BatchRecorder{
		ch:            make(chan Entry, bufSize),
		repo:          repo,
		logger:        logger.With(zap.String("mod", "audit")),
		batchSize:     batchSize,
		flushInterval: flushInterval,
	}
}

func (r *BatchRecorder) Start() {
	r.wg.Add(1)
	go r.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет.
func (r *BatchRecorder) Stop() {
	atomic.StoreInt32(&r.isClosed, 1)

	// Крошечная пауза, чтобы текущие Record успели проскочить
	time.Sleep(10 * time.Millisecond)

	r.logger.Info("stopping audit recorder: closing channel and flushing buffer...")
	close(r.ch)
	r.wg.Wait()
	r.logger.Info("audit recorder stopped gracefully")
}

// Record ставит запись в очередь. Вызывается строго ПОСЛЕ первичной мутации
// состояния — порядок внутри одного запроса сохраняется порядком вызовов.
func (r *BatchRecorder) Record(entry Entry) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	if entry.Severity == "" {
		entry.Severity = SeverityInfo
	}

	if atomic.LoadInt32(&r.isClosed) == 1 {
		r.logger.Warn("audit entry dropped: recorder is stopping", zap.String("action", entry.Action))
		return
	}

	// Стратегия Load Shedding: при переполнении пишем в обычный логгер,
	// чтобы не терять данные в критических ситуациях
	select {
	case r.ch <- entry:
	default:
		r.logger.Error("audit_buffer_overflow",
			zap.String("action", entry.Action),
			zap.String("resource_id", entry.ResourceID),
		)
	}
}

// QueueLen — текущая заполненность буфера, для гейджа saturation
func (r *BatchRecorder) QueueLen() int {
	return len(r.ch)
}

func (r *BatchRecorder) worker() {
	defer r.wg.Done()

	batch := make([]Entry, 0, r.batchSize)
	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) > 0 {
			// Background: основной контекст может быть уже закрыт
			if err := r.repo.WriteBatch(context.Background(), batch); err != nil {
				r.logger.Error("audit flush failed", zap.Error(err))
			}
			batch = batch[:0]
		}
	}

	for {
		select {
		case entry, ok := <-r.ch:
			if !ok {
				// Канал закрыт в Stop() — вычитываем остатки и финальный flush
				flush()
				r.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, entry)
			if len(batch) >= r.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
