package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	Server     ServerConfig
	Store      StoreConfig
	Redis      RedisConfig
	Postgres   PostgresConfig
	Jobs       JobsConfig
	Monitoring MonitoringConfig
	Logging    LoggingConfig
	// ServiceTypesFile overrides the built-in service types and is watched
	// for changes.
	ServiceTypesFile string
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type StoreConfig struct {
	Backend string
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	JobTTL    time.Duration
}

type PostgresConfig struct {
	DSN            string
	MaxConnections int
}

type JobsConfig struct {
	DefaultWindowDays int
	DefaultMaxWorkers int
	MaxWorkersCap     int
	FetchTimeout      time.Duration
	ListLimit         int
	ListMax           int
}

type MonitoringConfig struct {
	QPS             float64
	Burst           int
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

type LoggingConfig struct {
	Level    string
	Encoding string
}

// LoadConfig reads configuration from the environment.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "10s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", "30s")
	v.SetDefault("STORE_BACKEND", BackendMemory)
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_KEY_PREFIX", "slareport")
	v.SetDefault("REDIS_JOB_TTL", "720h")
	v.SetDefault("POSTGRES_MAX_CONNECTIONS", 10)
	v.SetDefault("JOBS_DEFAULT_WINDOW_DAYS", 30)
	v.SetDefault("JOBS_DEFAULT_MAX_WORKERS", 5)
	v.SetDefault("JOBS_MAX_WORKERS_CAP", 32)
	v.SetDefault("JOBS_FETCH_TIMEOUT", "60s")
	v.SetDefault("JOBS_LIST_LIMIT", 20)
	v.SetDefault("JOBS_LIST_MAX", 100)
	v.SetDefault("MONITORING_QPS", 5)
	v.SetDefault("MONITORING_BURST", 10)
	v.SetDefault("MONITORING_BREAKER_FAILURES", 5)
	v.SetDefault("MONITORING_BREAKER_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_ENCODING", "json")

	durations := map[string]time.Duration{}
	for _, key := range []string{
		"SERVER_READ_TIMEOUT",
		"SERVER_WRITE_TIMEOUT",
		"SERVER_SHUTDOWN_TIMEOUT",
		"REDIS_JOB_TTL",
		"JOBS_FETCH_TIMEOUT",
		"MONITORING_BREAKER_TIMEOUT",
	} {
		d, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		durations[key] = d
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("SERVER_HOST"),
			Port:            v.GetInt("SERVER_PORT"),
			ReadTimeout:     durations["SERVER_READ_TIMEOUT"],
			WriteTimeout:    durations["SERVER_WRITE_TIMEOUT"],
			ShutdownTimeout: durations["SERVER_SHUTDOWN_TIMEOUT"],
		},
		Store: StoreConfig{
			Backend: strings.ToLower(strings.TrimSpace(v.GetString("STORE_BACKEND"))),
		},
		Redis: RedisConfig{
			Addr:      v.GetString("REDIS_ADDR"),
			Password:  v.GetString("REDIS_PASSWORD"),
			DB:        v.GetInt("REDIS_DB"),
			KeyPrefix: v.GetString("REDIS_KEY_PREFIX"),
			JobTTL:    durations["REDIS_JOB_TTL"],
		},
		Postgres: PostgresConfig{
			DSN:            v.GetString("POSTGRES_DSN"),
			MaxConnections: v.GetInt("POSTGRES_MAX_CONNECTIONS"),
		},
		Jobs: JobsConfig{
			DefaultWindowDays: v.GetInt("JOBS_DEFAULT_WINDOW_DAYS"),
			DefaultMaxWorkers: v.GetInt("JOBS_DEFAULT_MAX_WORKERS"),
			MaxWorkersCap:     v.GetInt("JOBS_MAX_WORKERS_CAP"),
			FetchTimeout:      durations["JOBS_FETCH_TIMEOUT"],
			ListLimit:         v.GetInt("JOBS_LIST_LIMIT"),
			ListMax:           v.GetInt("JOBS_LIST_MAX"),
		},
		Monitoring: MonitoringConfig{
			QPS:             v.GetFloat64("MONITORING_QPS"),
			Burst:           v.GetInt("MONITORING_BURST"),
			BreakerFailures: v.GetUint32("MONITORING_BREAKER_FAILURES"),
			BreakerTimeout:  durations["MONITORING_BREAKER_TIMEOUT"],
		},
		Logging: LoggingConfig{
			Level:    v.GetString("LOG_LEVEL"),
			Encoding: v.GetString("LOG_ENCODING"),
		},
		ServiceTypesFile: v.GetString("SERVICE_TYPES_FILE"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []string
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, "SERVER_PORT must be between 1 and 65535")
	}
	switch c.Store.Backend {
	case BackendMemory:
	case BackendRedis:
		if strings.TrimSpace(c.Redis.Addr) == "" {
			errs = append(errs, "REDIS_ADDR is required for the redis backend")
		}
		if c.Redis.JobTTL < 0 {
			errs = append(errs, "REDIS_JOB_TTL must not be negative")
		}
	case BackendPostgres:
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			errs = append(errs, "POSTGRES_DSN is required for the postgres backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("STORE_BACKEND must be one of %s, %s, %s", BackendMemory, BackendRedis, BackendPostgres))
	}
	if c.Jobs.DefaultWindowDays <= 0 {
		errs = append(errs, "JOBS_DEFAULT_WINDOW_DAYS must be positive")
	}
	if c.Jobs.MaxWorkersCap <= 0 {
		errs = append(errs, "JOBS_MAX_WORKERS_CAP must be positive")
	}
	if c.Jobs.DefaultMaxWorkers <= 0 || c.Jobs.DefaultMaxWorkers > c.Jobs.MaxWorkersCap {
		errs = append(errs, "JOBS_DEFAULT_MAX_WORKERS must be between 1 and JOBS_MAX_WORKERS_CAP")
	}
	if c.Jobs.FetchTimeout <= 0 {
		errs = append(errs, "JOBS_FETCH_TIMEOUT must be positive")
	}
	if c.Jobs.ListLimit <= 0 || c.Jobs.ListMax < c.Jobs.ListLimit {
		errs = append(errs, "JOBS_LIST_LIMIT must be positive and not above JOBS_LIST_MAX")
	}
	if c.Monitoring.QPS < 0 {
		errs = append(errs, "MONITORING_QPS must not be negative")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
