package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Booking    BookingConfig    `yaml:"booking"`
	Reconciler ReconcilerConfig `yaml:"reconciler"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	MQ         MQConfig         `yaml:"mq"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size      int `yaml:"size"`
	QueueSize int `yaml:"queue_size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	Enabled    bool   `yaml:"enabled"`
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int           `yaml:"rate_limit_burst"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
	CacheTTL        time.Duration `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres or sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	LogLevel               string `yaml:"log_level"`
	LockTimeoutMs          int    `yaml:"lock_timeout_ms"`
	EnableRangeIndex       bool   `yaml:"enable_range_index"`
}

// BookingConfig tunes the admission transaction and no-show handling.
type BookingConfig struct {
	MaxAttempts        int `yaml:"max_attempts"`
	RetryBaseDelayMs   int `yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs    int `yaml:"retry_max_delay_ms"`
	NoShowGraceMinutes int `yaml:"no_show_grace_minutes"`
}

// ReconcilerConfig holds the configuration of the background ledger reconciler.
type ReconcilerConfig struct {
	Enabled         bool          `yaml:"enabled"`
	IntervalSeconds int           `yaml:"interval_seconds"`
	Interval        time.Duration `yaml:"-"` // Ignored by YAML parser
	ExpireNoShows   bool          `yaml:"expire_no_shows"`
	BatchSize       int           `yaml:"batch_size"`
}

// MQConfig holds the AMQP command consumer configuration.
type MQConfig struct {
	URL         string `yaml:"url"`
	Queue       string `yaml:"queue"`
	Prefetch    int    `yaml:"prefetch"`
	Concurrency int    `yaml:"concurrency"`
}

// Load reads the configuration from the given path. Values from the process
// environment (and a .env file, when present) override the file.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not load .env file: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("DATABASE_DRIVER"); ok {
		cfg.Database.Driver = v
	}
	if v, ok := os.LookupEnv("DATABASE_DSN"); ok {
		cfg.Database.DSN = v
	}
	if v, ok := os.LookupEnv("SERVER_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		} else {
			log.Printf("Warning: ignoring invalid SERVER_PORT %q", v)
		}
	}
	if v, ok := os.LookupEnv("AMQP_URL"); ok {
		cfg.MQ.URL = v
	}
	if v, ok := os.LookupEnv("VAPID_PRIVATE_KEY"); ok {
		cfg.Push.PrivateKey = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}

	if cfg.Booking.MaxAttempts <= 0 {
		cfg.Booking.MaxAttempts = 5
	}
	if cfg.Booking.RetryBaseDelayMs <= 0 {
		cfg.Booking.RetryBaseDelayMs = 10
	}
	if cfg.Booking.RetryMaxDelayMs <= 0 {
		cfg.Booking.RetryMaxDelayMs = 250
	}
	if cfg.Booking.NoShowGraceMinutes < 0 {
		cfg.Booking.NoShowGraceMinutes = 0
	}

	if cfg.Reconciler.IntervalSeconds <= 0 {
		cfg.Reconciler.IntervalSeconds = 300
	}
	cfg.Reconciler.Interval = time.Duration(cfg.Reconciler.IntervalSeconds) * time.Second
	if cfg.Reconciler.BatchSize <= 0 {
		cfg.Reconciler.BatchSize = 100
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		cfg.WorkerPool.QueueSize = 64
	}

	if cfg.MQ.Queue == "" {
		cfg.MQ.Queue = "parking.booking.commands"
	}
	if cfg.MQ.Prefetch <= 0 {
		cfg.MQ.Prefetch = 16
	}
	if cfg.MQ.Concurrency <= 0 {
		cfg.MQ.Concurrency = 4
	}
}
