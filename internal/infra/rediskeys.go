package infra

import "fmt"

const (
	// RedisNamespace — базовый префикс для изоляции данных проекта в Redis
	RedisNamespace = "agentops"
)

// Ключи состояния
const (
	// RedisKeyRateLimit — префикс счетчиков лимитера: agentops:ratelimit:{actor}:{op}
	RedisKeyRateLimit = RedisNamespace + ":ratelimit"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanKillSwitch — трансляция ID остановленных агентов на шлюзы.
	// Сигнал advisory: авторитетная проверка рубильника — чтение из Postgres.
	RedisChanKillSwitch = RedisNamespace + ":agents:kill-switch-signal"

	// RedisChanPolicyUpdate — инвалидация кэша правил на шлюзах
	RedisChanPolicyUpdate = RedisNamespace + ":policy:update"
)

// RateLimitKey неймспейсит ключ счетчика лимитера ("{actor}:{op}")
func RateLimitKey(counterKey string) string {
	return fmt.Sprintf("%s:%s", RedisKeyRateLimit, counterKey)
}
