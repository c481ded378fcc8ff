package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/xela07ax/agentops-console/internal/domain"
	"go.uber.org/zap"
)

// TokenSource выписывает сервисный токен для межсервисного вызова шлюза
type TokenSource interface {
	ServiceToken() (string, error)
}

// Client — типизированный HTTP-клиент шлюза исполнения для консоли.
// Решение по заявке принимает консоль, но исполняет одобренное действие
// шлюз: коннекторы, контур надежности и аудит исполнения живут только там.
type Client struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
	logger  *zap.Logger
}

func NewClient(baseURL string, tokens TokenSource, logger *zap.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  logger.Named("gateway-client"),
	}
}

// InvokeApproved реализует approval.ToolInvoker через bypass-маршрут шлюза
func (c *Client) InvokeApproved(ctx context.Context, agentID, toolID string, parameters map[string]interface{}) error {
	body, err := json.Marshal(ExecuteRequest{
		AgentID:    agentID,
		ToolID:     toolID,
		Parameters: parameters,
	})
	if err != nil {
		return fmt.Errorf("encode invoke request: %w", err)
	}

	token, err := c.tokens.ServiceToken()
	if err != nil {
		return fmt.Errorf("service token unavailable: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/execute/approved", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.logger.Debug("approved action executed",
			zap.String("agent_id", agentID),
			zap.String("tool_id", toolID))
		return nil
	}

	// Тело ошибки шлюза короткое ({error, message}), но читаем с лимитом
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("gateway: %s: %w", msg, domain.ErrNotFound)
	case http.StatusForbidden:
		return fmt.Errorf("gateway: %s: %w", msg, domain.ErrForbidden)
	default:
		return fmt.Errorf("gateway returned %d: %s", resp.StatusCode, msg)
	}
}
