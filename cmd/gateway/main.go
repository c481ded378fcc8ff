package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/agentops-console/internal/approval"
	"github.com/xela07ax/agentops-console/internal/audit"
	"github.com/xela07ax/agentops-console/internal/connectors"
	"github.com/xela07ax/agentops-console/internal/gateway"
	"github.com/xela07ax/agentops-console/internal/infra"
	"github.com/xela07ax/agentops-console/internal/infra/auth"
	"github.com/xela07ax/agentops-console/internal/killswitch"
	"github.com/xela07ax/agentops-console/internal/policy"
	"github.com/xela07ax/agentops-console/internal/ratelimit"
	"github.com/xela07ax/agentops-console/internal/repository/postgres"
	"go.uber.org/zap"
)

func main() {
	// 1. Конфигурация и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()
	logger = logger.Named("gateway")

	// Контекст жизненного цикла фоновых горутин: при SIGTERM cancel()
	// остановит слушателей Redis
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Инфраструктура и ресурсы
	store, err := postgres.NewStore(appCtx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	defer store.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	// 3. Аудит: асинхронный батчер поверх Postgres
	auditor := audit.NewBatchRecorder(store, logger,
		cfg.Gateway.AuditBufferSize, cfg.Gateway.AuditBatchSize, cfg.Gateway.AuditFlushInterval)
	auditor.Start()

	// 4. Policy Engine: правила из кэша, kill-switch'и всегда из БД
	ruleCache := policy.NewRuleCache(store, rdb, logger)
	if err := ruleCache.Refresh(appCtx); err != nil {
		logger.Fatal("rule cache warmup failed", zap.Error(err))
	}
	go ruleCache.StartListener(appCtx)

	engine := policy.NewEngine(store, store, ruleCache, auditor, logger)

	// 5. Advisory-кэш заблокированных агентов (fast-path 403 до бизнес-логики)
	blocked := killswitch.NewBlockedCache(store, rdb, logger)
	if err := blocked.Init(appCtx); err != nil {
		logger.Fatal("blocked cache warmup failed", zap.Error(err))
	}
	go blocked.StartListener(appCtx)

	// 6. Execution Layer (Исполнение + Надежность)
	reg := prometheus.NewRegistry()
	metrics := gateway.NewMetrics(reg)

	limiter := ratelimit.NewLimiter(ratelimit.NewRedisCounter(rdb),
		cfg.RateLimit.Requests, cfg.RateLimit.Window, logger)

	approvalSvc := approval.NewService(store, store, auditor, logger)

	// Оборачиваем коннектор в Reliability (Retries, Circuit Breaker)
	safeConnector := gateway.NewReliabilityWrapper(connectors.NewSimulatedConnector(), cfg.Gateway, metrics)

	executor := gateway.NewExecutor(store, engine, approvalSvc, safeConnector, limiter, auditor, metrics, logger)
	// Замыкаем цикл: одобренная заявка исполняется этим же шлюзом
	approvalSvc.SetInvoker(executor)

	// Гейдж заполненности аудит-буфера
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				metrics.AuditBufferFill.Set(float64(auditor.QueueLen()))
			case <-appCtx.Done():
				return
			}
		}
	}()

	// 7. HTTP Server
	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("public key load failed", zap.Error(err))
	}
	validator := auth.NewBaseValidator(pubKey)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(gateway.TracingMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	// Цепочка защиты: токен -> kill-switch кэш -> исполнение
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(validator, logger))
		r.Use(blocked.Middleware)
		gateway.NewHandler(executor, logger).Routes(r)
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 8. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("execution gateway started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop // Ждем сигнал
	logger.Info("execution gateway stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	// Финальный flush аудита после остановки HTTP: все принятые запросы
	// уже записали свои события
	auditor.Stop()
	logger.Info("execution gateway exited properly")
}
