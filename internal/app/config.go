package app

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config описывает настройки запуска движка. Все значения читаются из
// окружения с префиксом PRASADAM_.
type Config struct {
	HTTPAddr    string
	MetricsAddr string

	// PostgresDSN пустой — движок работает на in-memory хранилище.
	PostgresDSN string
	// KafkaBrokers пустой — лента изменений копится в outbox без доставки.
	KafkaBrokers []string

	MonthlyFeeCents            int64
	OutboxPollInterval         time.Duration
	IdempotencyCleanupInterval time.Duration
	ShutdownTimeout            time.Duration
}

// DefaultConfig возвращает базовые настройки.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:                   ":8080",
		MetricsAddr:                ":9090",
		MonthlyFeeCents:            100,
		OutboxPollInterval:         time.Second,
		IdempotencyCleanupInterval: 10 * time.Minute,
		ShutdownTimeout:            5 * time.Second,
	}
}

// LoadConfig читает настройки из окружения поверх значений по умолчанию.
func LoadConfig() Config {
	cfg := DefaultConfig()

	if v := envString("PRASADAM_HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := envString("PRASADAM_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	cfg.PostgresDSN = envString("PRASADAM_POSTGRES_DSN")
	if v := envString("PRASADAM_KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = splitBrokers(v)
	}
	if v, ok := envInt64("PRASADAM_MONTHLY_FEE_CENTS"); ok {
		cfg.MonthlyFeeCents = v
	}
	if v, ok := envDuration("PRASADAM_OUTBOX_POLL_INTERVAL"); ok {
		cfg.OutboxPollInterval = v
	}
	if v, ok := envDuration("PRASADAM_IDEMPOTENCY_CLEANUP_INTERVAL"); ok {
		cfg.IdempotencyCleanupInterval = v
	}
	if v, ok := envDuration("PRASADAM_SHUTDOWN_TIMEOUT"); ok {
		cfg.ShutdownTimeout = v
	}

	return cfg
}

func envString(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envInt64(key string) (int64, bool) {
	raw := envString(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envDuration(key string) (time.Duration, bool) {
	raw := envString(key)
	if raw == "" {
		return 0, false
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func splitBrokers(raw string) []string {
	parts := strings.Split(raw, ",")
	brokers := make([]string, 0, len(parts))
	for _, part := range parts {
		if b := strings.TrimSpace(part); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
