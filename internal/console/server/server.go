package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/agentops-console/internal/console/handler"
	"github.com/xela07ax/agentops-console/internal/infra/auth"
	"github.com/xela07ax/agentops-console/internal/ratelimit"
	"go.uber.org/zap"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	// Интерфейс для проверки токенов (RS256)
	authValidator auth.TokenValidator

	// Квота мутирующих запросов на оператора
	limiter *ratelimit.Limiter

	// Обработчики бизнес-доменов
	authHandler       *handler.AuthHandler       // /auth/token
	agentHandler      *handler.AgentHandler      // /v1/agents
	policyHandler     *handler.PolicyHandler     // /v1/policies
	approvalHandler   *handler.ApprovalHandler   // /v1/approvals (HITL)
	killSwitchHandler *handler.KillSwitchHandler // /v1/kill-switches
	taskHandler       *handler.TaskHandler       // /v1/tasks
	auditHandler      *handler.AuditHandler      // /v1/audit (Logs)
}

// NewConsoleServer инициализирует сервер админки со всеми зависимостями
func NewConsoleServer(
	logger *zap.Logger,
	validator auth.TokenValidator,
	limiter *ratelimit.Limiter,
	authH *handler.AuthHandler,
	agentH *handler.AgentHandler,
	policyH *handler.PolicyHandler,
	approvalH *handler.ApprovalHandler,
	killSwitchH *handler.KillSwitchHandler,
	taskH *handler.TaskHandler,
	auditH *handler.AuditHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:            chi.NewRouter(),
		logger:            logger.Named("console-api"),
		authValidator:     validator,
		limiter:           limiter,
		authHandler:       authH,
		agentHandler:      agentH,
		policyHandler:     policyH,
		approvalHandler:   approvalH,
		killSwitchHandler: killSwitchH,
		taskHandler:       taskH,
		auditHandler:      auditH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ (Открыты для всех) ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (Требуют RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		// Агенты: просмотр для всех, resume — только повышенные роли
		r.Route("/v1/agents", func(r chi.Router) {
			r.Get("/", s.agentHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.agentHandler.Get)
				r.With(auth.RequireElevated, s.rateLimited).
					Post("/resume", s.agentHandler.Resume)
			})
		})

		// Политики: чтение всем, переключение и проверка — повышенным ролям
		r.Route("/v1/policies", func(r chi.Router) {
			r.Get("/", s.policyHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.policyHandler.Get)
				r.With(auth.RequireElevated, s.rateLimited).
					Post("/toggle", s.policyHandler.Toggle)
			})
		})
		// Проверка «а что решит движок» не мутирует состояние, но каждая
		// оставляет запись аудита — держим ее под той же квотой оператора
		r.With(s.rateLimited).Post("/v1/policy/evaluate", s.policyHandler.Evaluate)

		// Human-in-the-loop (Approvals)
		r.Route("/v1/approvals", func(r chi.Router) {
			r.Get("/", s.approvalHandler.List) // Очередь запросов на проверку
			r.Post("/", s.approvalHandler.Create)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.approvalHandler.GetDetails)
				// Решение по заявке: только admin / ops_manager, с квотой
				r.With(auth.RequireElevated, s.rateLimited).
					Post("/decide", s.approvalHandler.Decide)
			})
		})

		// Аварийные рубильники
		r.Route("/v1/kill-switches", func(r chi.Router) {
			r.Get("/", s.killSwitchHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.With(auth.RequireElevated, s.rateLimited).
					Post("/activate", s.killSwitchHandler.Activate)
				r.With(auth.RequireElevated, s.rateLimited).
					Post("/deactivate", s.killSwitchHandler.Deactivate)
			})
		})

		// Задачи агентов
		r.Route("/v1/tasks/{id}", func(r chi.Router) {
			r.Get("/", s.taskHandler.Get)
			r.With(auth.RequireElevated, s.rateLimited).
				Post("/retry", s.taskHandler.Retry)
			r.With(auth.RequireElevated, s.rateLimited).
				Post("/cancel", s.taskHandler.Cancel)
		})

		// Аудит и Логи (Observability)
		r.Get("/v1/audit", s.auditHandler.GetLogs)
	})
}

// rateLimited считает мутирующие запросы оператора в Redis-окне.
// Превышение квоты — 429 с заголовком Retry-After.
func (s *ConsoleServer) rateLimited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		if err := s.limiter.Check(r.Context(), claims.UserID, "console-write"); err != nil {
			handler.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
