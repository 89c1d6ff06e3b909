package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ServiceName    = "stockledger"
	ServiceVersion = "0.1.0"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
)

type Config struct {
	HTTPAddr string         `yaml:"http_addr"`
	GRPCAddr string         `yaml:"grpc_addr"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Checkout CheckoutConfig `yaml:"checkout"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Otel     OtelConfig     `yaml:"otel"`
	Log      LogConfig      `yaml:"log"`
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// RedisConfig selects the Redis cart and stock level stores. An empty
// address keeps both in memory.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	PoolSize int    `yaml:"pool_size"`
}

// KafkaConfig selects the Kafka notifier. Without brokers alerts are logged.
type KafkaConfig struct {
	Brokers    []string `yaml:"brokers"`
	AlertTopic string   `yaml:"alert_topic"`
}

type CheckoutConfig struct {
	LockTimeout        time.Duration `yaml:"lock_timeout"`
	FinishTimeout      time.Duration `yaml:"finish_timeout"`
	RecoveryStaleAfter time.Duration `yaml:"recovery_stale_after"`
	RecoveryInterval   time.Duration `yaml:"recovery_interval"`
}

type MonitorConfig struct {
	Workers       int           `yaml:"workers"`
	QueueSize     int           `yaml:"queue_size"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type OtelConfig struct {
	// Endpoint is the OTLP/HTTP collector host:port. Empty disables export.
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

func Default() *Config {
	return &Config{
		HTTPAddr: ":8080",
		GRPCAddr: ":50051",
		Database: DatabaseConfig{
			Driver:          DriverSQLite,
			DSN:             "stockledger.db",
			MaxOpenConns:    50,
			MaxIdleConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{PoolSize: 100},
		Kafka: KafkaConfig{AlertTopic: "stock-alerts"},
		Checkout: CheckoutConfig{
			LockTimeout:        2 * time.Second,
			FinishTimeout:      5 * time.Second,
			RecoveryStaleAfter: 5 * time.Minute,
			RecoveryInterval:   time.Minute,
		},
		Monitor: MonitorConfig{
			Workers:       4,
			QueueSize:     10000,
			SweepInterval: 15 * time.Minute,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path (when not empty) over the defaults, then applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("STOCKLEDGER_DB_DRIVER"); ok {
		c.Database.Driver = v
	}
	if v, ok := lookup("MYSQL_DSN"); ok {
		c.Database.Driver = DriverMySQL
		c.Database.DSN = v
	}
	if v, ok := lookup("SQLITE_PATH"); ok {
		c.Database.Driver = DriverSQLite
		c.Database.DSN = v
	}
	if v, ok := lookup("REDIS_ADDR"); ok {
		c.Redis.Addr = v
	}
	if v, ok := lookup("KAFKA_BROKER"); ok {
		c.Kafka.Brokers = splitList(v)
	}
	if v, ok := lookup("OTEL_ENDPOINT"); ok {
		c.Otel.Endpoint = v
	}
	if v, ok := lookup("HTTP_ADDR"); ok {
		c.HTTPAddr = v
	}
	if v, ok := lookup("GRPC_ADDR"); ok {
		c.GRPCAddr = v
	}
	if v, ok := lookup("LOG_LEVEL"); ok {
		c.Log.Level = v
	}
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Database.Driver {
	case DriverMySQL, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("database.driver must be %q or %q, got %q", DriverMySQL, DriverSQLite, c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Checkout.LockTimeout <= 0 {
		errs = append(errs, errors.New("checkout.lock_timeout must be positive"))
	}
	if c.Checkout.FinishTimeout <= 0 {
		errs = append(errs, errors.New("checkout.finish_timeout must be positive"))
	}
	if c.Checkout.RecoveryStaleAfter <= c.Checkout.LockTimeout {
		errs = append(errs, errors.New("checkout.recovery_stale_after must exceed checkout.lock_timeout"))
	}
	if c.Monitor.Workers < 0 {
		errs = append(errs, errors.New("monitor.workers must not be negative"))
	}
	if c.Monitor.Workers > 0 && c.Monitor.QueueSize <= 0 {
		errs = append(errs, errors.New("monitor.queue_size must be positive"))
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.AlertTopic == "" {
		errs = append(errs, errors.New("kafka.alert_topic is required when brokers are set"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
