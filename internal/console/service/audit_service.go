package service

import (
	"context"
	"fmt"

	"github.com/xela07ax/agentops-console/internal/audit"
)

const defaultAuditLimit = 200

// AuditLogProvider описывает контракт для чтения данных аудита.
// Используем структуру Entry из пакета audit, чтобы сохранить единую модель данных.
type AuditLogProvider interface {
	FetchAuditEntries(ctx context.Context, actorID, resourceType string, limit int) ([]audit.Entry, error)
}

type AuditService struct {
	repo AuditLogProvider
}

func NewAuditService(repo AuditLogProvider) *AuditService {
	return &AuditService{repo: repo}
}

// FetchLogs запрашивает журнал с фильтрацией.
// Логика фильтрации (пустые строки или конкретные ID) инкапсулирована в репозитории.
func (s *AuditService) FetchLogs(ctx context.Context, actorID, resourceType string, limit int) ([]audit.Entry, error) {
	if limit <= 0 || limit > 1000 {
		limit = defaultAuditLimit
	}
	logs, err := s.repo.FetchAuditEntries(ctx, actorID, resourceType, limit)
	if err != nil {
		return nil, fmt.Errorf("audit_service: failed to fetch logs: %w", err)
	}
	return logs, nil
}
