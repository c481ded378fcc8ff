package infra

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRateLimitKeyNamespacing(t *testing.T) {
	assert.Equal(t, "agentops:ratelimit:op-1:console-write", RateLimitKey("op-1:console-write"))

	// Все ключи и каналы живут в одном неймспейсе проекта
	assert.Equal(t, "agentops:agents:kill-switch-signal", RedisChanKillSwitch)
	assert.Equal(t, "agentops:policy:update", RedisChanPolicyUpdate)
}
