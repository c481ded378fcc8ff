package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/agentops-console/internal/domain"
)

func signToken(t *testing.T, key *rsa.PrivateKey, issuer string, ttl time.Duration) string {
	t.Helper()
	now := time.Now()
	claims := &domain.CustomClaims{
		UserID: "op-1",
		Role:   domain.RoleOpsManager,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "op-1",
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestVerifyTokenRoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	v := NewBaseValidator(&key.PublicKey)

	token := signToken(t, key, domain.TokenIssuer, time.Hour)

	claims, err := v.VerifyToken("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "op-1", claims.UserID)
	assert.Equal(t, domain.RoleOpsManager, claims.Role)
	assert.True(t, claims.Elevated())

	// Без префикса Bearer тоже валидно (внутренние вызовы)
	_, err = v.VerifyToken(token)
	assert.NoError(t, err)
}

func TestVerifyTokenRejectsForeignIssuer(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	v := NewBaseValidator(&key.PublicKey)

	token := signToken(t, key, "some-other-service", time.Hour)
	_, err = v.VerifyToken(token)
	assert.Error(t, err)
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	v := NewBaseValidator(&key.PublicKey)

	token := signToken(t, key, domain.TokenIssuer, -time.Minute)
	_, err = v.VerifyToken(token)
	assert.Error(t, err)
}

func TestVerifyTokenRejectsHMAC(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	v := NewBaseValidator(&key.PublicKey)

	// Классическая подмена алгоритма: HS256, «подписанный» открытым ключом.
	// Валидатор должен отсечь по списку методов, не доходя до keyfunc.
	claims := &domain.CustomClaims{
		UserID: "op-1",
		Role:   domain.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    domain.TokenIssuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte("not-a-secret"))
	require.NoError(t, err)

	_, err = v.VerifyToken(forged)
	assert.Error(t, err)
}

func TestVerifyTokenRejectsGarbage(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	v := NewBaseValidator(&key.PublicKey)

	_, err = v.VerifyToken("Bearer not.a.token")
	assert.Error(t, err)
}
