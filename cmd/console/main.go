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

	"github.com/redis/go-redis/v9"
	"github.com/xela07ax/agentops-console/internal/approval"
	"github.com/xela07ax/agentops-console/internal/audit"
	"github.com/xela07ax/agentops-console/internal/console/handler"
	"github.com/xela07ax/agentops-console/internal/console/server"
	"github.com/xela07ax/agentops-console/internal/console/service"
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
	logger = logger.Named("console")

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

	// 3. Ключи RS256: консоль и подписывает (login), и проверяет токены
	pubKey, err := auth.ParseRSAPublicKey(cfg.Auth.PublicKey)
	if err != nil {
		logger.Fatal("public key load failed", zap.Error(err))
	}
	privKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("private key load failed", zap.Error(err))
	}
	validator := auth.NewBaseValidator(pubKey)

	// 4. Аудит: общий асинхронный батчер для всех сервисов консоли
	auditor := audit.NewBatchRecorder(store, logger,
		cfg.Gateway.AuditBufferSize, cfg.Gateway.AuditBatchSize, cfg.Gateway.AuditFlushInterval)
	auditor.Start()

	// 5. Бизнес-сервисы
	engine := policy.NewEngine(store, store, store, auditor, logger)

	approvalSvc := approval.NewService(store, store, auditor, logger)
	authSvc := service.NewAuthService(store, privKey, cfg.Auth.TokenTTL)

	// Одобренная заявка исполняется шлюзом: консоль ходит к нему
	// типизированным клиентом с сервисным токеном
	approvalSvc.SetInvoker(gateway.NewClient(cfg.Gateway.BaseURL, authSvc, logger))

	killSwitchSvc := killswitch.NewService(store, store, store, rdb, auditor, logger)
	agentSvc := service.NewAgentService(store, rdb, auditor, logger)
	policySvc := service.NewPolicyService(store, rdb, auditor, logger)
	taskSvc := service.NewTaskService(store, auditor, logger)
	auditSvc := service.NewAuditService(store)

	limiter := ratelimit.NewLimiter(ratelimit.NewRedisCounter(rdb),
		cfg.RateLimit.Requests, cfg.RateLimit.Window, logger)

	// 6. Сборка HTTP-сервера
	consoleSrv := server.NewConsoleServer(
		logger,
		validator,
		limiter,
		handler.NewAuthHandler(authSvc),
		handler.NewAgentHandler(agentSvc),
		handler.NewPolicyHandler(policySvc, engine),
		handler.NewApprovalHandler(approvalSvc),
		handler.NewKillSwitchHandler(killSwitchSvc),
		handler.NewTaskHandler(taskSvc),
		handler.NewAuditHandler(auditSvc),
	)

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      consoleSrv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// 7. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("console API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("console API stopping...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}

	auditor.Stop()
	logger.Info("console API exited properly")
}
