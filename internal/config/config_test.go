package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 2*time.Second, cfg.Checkout.LockTimeout)
	assert.Equal(t, 5*time.Second, cfg.Checkout.FinishTimeout)
	assert.Equal(t, 4, cfg.Monitor.Workers)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":9090"
database:
  driver: mysql
  dsn: "root:root@tcp(localhost:3306)/stockledger"
  conn_max_lifetime: 90s
kafka:
  brokers: ["kafka-1:9092", "kafka-2:9092"]
checkout:
  lock_timeout: 500ms
monitor:
  sweep_interval: 1h
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, DriverMySQL, cfg.Database.Driver)
	assert.Equal(t, 90*time.Second, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "stock-alerts", cfg.Kafka.AlertTopic)
	assert.Equal(t, 500*time.Millisecond, cfg.Checkout.LockTimeout)
	assert.Equal(t, time.Hour, cfg.Monitor.SweepInterval)
	assert.Equal(t, 50, cfg.Database.MaxOpenConns)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"MYSQL_DSN":     "user:pw@tcp(db:3306)/ledger",
		"REDIS_ADDR":    "redis:6379",
		"KAFKA_BROKER":  "k1:9092, k2:9092",
		"OTEL_ENDPOINT": "collector:4318",
	}
	cfg := Default()
	cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	assert.Equal(t, DriverMySQL, cfg.Database.Driver)
	assert.Equal(t, "user:pw@tcp(db:3306)/ledger", cfg.Database.DSN)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "collector:4318", cfg.Otel.Endpoint)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = "postgres"
	cfg.Checkout.LockTimeout = 0
	cfg.Checkout.FinishTimeout = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
	assert.Contains(t, err.Error(), "lock_timeout")
	assert.Contains(t, err.Error(), "finish_timeout")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
