package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Upload   UploadConfig   `yaml:"upload"`
	Batch    BatchConfig    `yaml:"batch"`
	Count    CountConfig    `yaml:"count"`
	Failures FailuresConfig `yaml:"failures"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Watch    WatchConfig    `yaml:"watch"`
	LogLevel string         `yaml:"log_level"`
}

// UploadConfig holds the remote extraction endpoint settings
type UploadConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	FieldName  string        `yaml:"field_name"`
	Timeout    time.Duration `yaml:"timeout"`
	RatePerSec float64       `yaml:"rate_per_sec"` // 0 disables client-side rate limiting
	Burst      int           `yaml:"burst"`
}

// BatchConfig holds scheduler and progress settings
type BatchConfig struct {
	GroupSize       int           `yaml:"group_size"`
	CoalesceWindow  time.Duration `yaml:"coalesce_window"`
	CoalesceMaxWait time.Duration `yaml:"coalesce_max_wait"`
}

// CountConfig holds the authoritative count source settings.
// DSN takes precedence over Endpoint.
type CountConfig struct {
	Endpoint        string        `yaml:"endpoint"`
	DSN             string        `yaml:"dsn"`
	Query           string        `yaml:"query"`
	Timeout         time.Duration `yaml:"timeout"`
	Animation       time.Duration `yaml:"animation"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// FailuresConfig holds failure registry durability settings
type FailuresConfig struct {
	StorePath string `yaml:"store_path"` // sqlite file; empty keeps failures in memory
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	GRPCAddr    string `yaml:"grpc_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// WatchConfig holds drop-folder watching configuration
type WatchConfig struct {
	Roots         []string      `yaml:"roots"`
	Debounce      time.Duration `yaml:"debounce"`
	FlushSize     int           `yaml:"flush_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		Upload: UploadConfig{
			FieldName: "file",
			Timeout:   60 * time.Second,
			Burst:     1,
		},
		Batch: BatchConfig{
			GroupSize:       2,
			CoalesceWindow:  100 * time.Millisecond,
			CoalesceMaxWait: time.Second,
		},
		Count: CountConfig{
			Query:           "SELECT count(*) FROM candidates",
			Timeout:         5 * time.Second,
			Animation:       time.Second,
			RefreshInterval: 30 * time.Second,
		},
		Database: DatabaseConfig{
			MaxConns:        4,
			MinConns:        1,
			MaxConnLifetime: 30 * time.Minute,
			MaxConnIdleTime: 5 * time.Minute,
			DialTimeout:     3 * time.Second,
		},
		Server: ServerConfig{
			GRPCAddr: ":8080",
		},
		Watch: WatchConfig{
			Debounce:      500 * time.Millisecond,
			FlushSize:     20,
			FlushInterval: 5 * time.Second,
		},
		LogLevel: "info",
	}
}

// LoadConfig loads defaults, then the YAML file named by INGEST_CONFIG (if any),
// then environment variables
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()
	if path := os.Getenv("INGEST_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return NewAppError("CONFIG_ERROR", "read config file", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("parse %s", path), err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Upload.Endpoint = getEnv("UPLOAD_ENDPOINT", c.Upload.Endpoint)
	c.Upload.FieldName = getEnv("UPLOAD_FIELD", c.Upload.FieldName)
	c.Upload.Timeout = getEnvAsDuration("UPLOAD_TIMEOUT", c.Upload.Timeout)
	c.Upload.RatePerSec = getEnvAsFloat64("UPLOAD_RATE_PER_SEC", c.Upload.RatePerSec)
	c.Upload.Burst = getEnvAsInt("UPLOAD_BURST", c.Upload.Burst)

	c.Batch.GroupSize = getEnvAsInt("BATCH_GROUP_SIZE", c.Batch.GroupSize)
	c.Batch.CoalesceWindow = getEnvAsDuration("BATCH_COALESCE_WINDOW", c.Batch.CoalesceWindow)
	c.Batch.CoalesceMaxWait = getEnvAsDuration("BATCH_COALESCE_MAX_WAIT", c.Batch.CoalesceMaxWait)

	c.Count.Endpoint = getEnv("COUNT_ENDPOINT", c.Count.Endpoint)
	c.Count.DSN = getEnv("COUNT_DSN", c.Count.DSN)
	c.Count.Query = getEnv("COUNT_QUERY", c.Count.Query)
	c.Count.Timeout = getEnvAsDuration("COUNT_TIMEOUT", c.Count.Timeout)
	c.Count.Animation = getEnvAsDuration("COUNT_ANIMATION", c.Count.Animation)
	c.Count.RefreshInterval = getEnvAsDuration("COUNT_REFRESH_INTERVAL", c.Count.RefreshInterval)

	c.Failures.StorePath = getEnv("FAILURES_DB", c.Failures.StorePath)

	c.Database.MaxConns = getEnvAsInt32("DB_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvAsInt32("DB_MIN_CONNS", c.Database.MinConns)
	c.Database.MaxConnLifetime = getEnvAsDuration("DB_MAX_CONN_LIFETIME", c.Database.MaxConnLifetime)
	c.Database.MaxConnIdleTime = getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", c.Database.MaxConnIdleTime)
	c.Database.DialTimeout = getEnvAsDuration("DB_DIAL_TIMEOUT", c.Database.DialTimeout)

	c.Server.GRPCAddr = getEnv("GRPC_ADDR", c.Server.GRPCAddr)
	c.Server.MetricsAddr = getEnv("METRICS_ADDR", c.Server.MetricsAddr)

	if roots := getEnv("WATCH_ROOTS", ""); roots != "" {
		c.Watch.Roots = splitList(roots)
	}
	c.Watch.Debounce = getEnvAsDuration("WATCH_DEBOUNCE", c.Watch.Debounce)
	c.Watch.FlushSize = getEnvAsInt("WATCH_FLUSH_SIZE", c.Watch.FlushSize)
	c.Watch.FlushInterval = getEnvAsDuration("WATCH_FLUSH_INTERVAL", c.Watch.FlushInterval)

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
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

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	v := NewValidator().
		Field("UPLOAD_ENDPOINT", c.Upload.Endpoint, Required, URL).
		Field("BATCH_GROUP_SIZE", c.Batch.GroupSize, Positive).
		Field("UPLOAD_TIMEOUT", c.Upload.Timeout, Positive)
	if c.Count.Endpoint != "" {
		v.Field("COUNT_ENDPOINT", c.Count.Endpoint, URL)
	}
	if v.HasErrors() {
		return NewAppError("CONFIG_ERROR", v.ErrorMessage(), ErrInvalidInput)
	}
	return nil
}
