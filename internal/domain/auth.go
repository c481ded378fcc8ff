package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer проставляется консолью во все выписанные токены.
// Валидатор отклоняет токены чужих издателей.
const TokenIssuer = "agentops-console"

// Роли операторов консоли. Повышенные права нужны для решений по заявкам
// и управления Kill-switch'ами.
const (
	RoleAdmin      = "admin"
	RoleOpsManager = "ops_manager"
	RoleMember     = "member"
)

type CustomClaims struct {
	UserID string          `json:"user_id"`
	Role   string          `json:"role"`   // admin / ops_manager / member
	Scopes map[string]bool `json:"scopes"` // Например "governance.resolve": true
	jwt.RegisteredClaims
}

// Elevated — достаточно ли роли для resolve/kill-switch операций
func (c *CustomClaims) Elevated() bool {
	return c.Role == RoleAdmin || c.Role == RoleOpsManager
}

// Secure Token Issuing
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}

type User struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"` // Никогда не отправляем на фронт
	Role         string          `json:"role"`
	Scopes       map[string]bool `json:"scopes"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}
