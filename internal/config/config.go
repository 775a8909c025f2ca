package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
	"go.yaml.in/yaml/v4"
)

// Storage drivers.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config stores service settings.
type Config struct {
	Port      int       `yaml:"port" env:"PORT"`
	LogLevel  string    `yaml:"log_level" env:"LOG_LEVEL"`
	Storage   string    `yaml:"storage" env:"STORAGE"`
	DB        DB        `yaml:"database"`
	Redis     Redis     `yaml:"redis"`
	Kafka     Kafka     `yaml:"kafka"`
	Auth      Auth      `yaml:"auth"`
	Dispatch  Dispatch  `yaml:"dispatch"`
	Notify    Notify    `yaml:"notify"`
	RateLimit RateLimit `yaml:"rate_limit"`
	Pprof     Pprof     `yaml:"pprof"`
	// Seed accounts are created at startup unless they already exist.
	Seed []Account `yaml:"seed"`
}

// Account is a seeded login. VehicleType is set for captains only.
type Account struct {
	ID          string `yaml:"id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	Name        string `yaml:"name"`
	Role        string `yaml:"role"`
	VehicleType string `yaml:"vehicle_type"`
}

// DB holds postgres connection settings.
type DB struct {
	Host    string `yaml:"host" env:"POSTGRES_HOST"`
	Port    string `yaml:"port" env:"POSTGRES_PORT"`
	User    string `yaml:"user" env:"POSTGRES_USER"`
	Pass    string `yaml:"password" env:"POSTGRES_PASSWORD"`
	Name    string `yaml:"name" env:"POSTGRES_DB"`
	SSLMode string `yaml:"ssl_mode" env:"POSTGRES_SSLMODE"`
}

// DSN builds a postgres connection URL.
func (d DB) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Pass),
		Host:     d.Host + ":" + d.Port,
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

// Redis enables the redis offer book and the cross-instance push relay.
// An empty Addr keeps both in process.
type Redis struct {
	Addr         string `yaml:"addr" env:"REDIS_ADDR"`
	Password     string `yaml:"password" env:"REDIS_PASSWORD"`
	DB           int    `yaml:"db" env:"REDIS_DB"`
	RelayChannel string `yaml:"relay_channel" env:"REDIS_RELAY_CHANNEL"`
}

// Kafka is optional; without brokers the worker has nothing to consume and
// status changes are not published.
type Kafka struct {
	Brokers     []string `yaml:"brokers" env:"KAFKA_BROKERS" envSeparator:","`
	GroupID     string   `yaml:"group_id" env:"KAFKA_GROUP_ID"`
	OrdersTopic string   `yaml:"orders_topic" env:"KAFKA_ORDERS_TOPIC"`
	StatusTopic string   `yaml:"status_topic" env:"KAFKA_STATUS_TOPIC"`

	// Publish retries wrap the producer's own retries for broker failover.
	PublishAttempts int           `yaml:"publish_attempts" env:"KAFKA_PUBLISH_ATTEMPTS"`
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay" env:"KAFKA_RETRY_BASE_DELAY"`
	RetryMaxDelay   time.Duration `yaml:"retry_max_delay" env:"KAFKA_RETRY_MAX_DELAY"`
}

type Auth struct {
	JWTSecret string        `yaml:"jwt_secret" env:"AUTH_JWT_SECRET"`
	Issuer    string        `yaml:"issuer" env:"AUTH_ISSUER"`
	TokenTTL  time.Duration `yaml:"token_ttl" env:"AUTH_TOKEN_TTL"`
}

type Dispatch struct {
	OfferTTL         time.Duration `yaml:"offer_ttl" env:"DISPATCH_OFFER_TTL"`
	SweepSchedule    string        `yaml:"sweep_schedule" env:"DISPATCH_SWEEP_SCHEDULE"`
	OperationTimeout time.Duration `yaml:"operation_timeout" env:"DISPATCH_OPERATION_TIMEOUT"`
	AutoBroadcast    bool          `yaml:"auto_broadcast" env:"DISPATCH_AUTO_BROADCAST"`
	// Escalation is "notify_admins" or "rebroadcast".
	Escalation string `yaml:"escalation" env:"DISPATCH_ESCALATION"`
}

type Notify struct {
	Language         string `yaml:"language" env:"NOTIFY_LANGUAGE"`
	ActiveWithinDays int    `yaml:"active_within_days" env:"NOTIFY_ACTIVE_WITHIN_DAYS"`
}

type RateLimit struct {
	Enabled    bool          `yaml:"enabled" env:"RATE_LIMIT_ENABLED"`
	Rate       float64       `yaml:"rate" env:"RATE_LIMIT_RATE"`
	Burst      int           `yaml:"burst" env:"RATE_LIMIT_BURST"`
	TTL        time.Duration `yaml:"ttl" env:"RATE_LIMIT_TTL"`
	MaxBuckets int           `yaml:"max_buckets" env:"RATE_LIMIT_MAX_BUCKETS"`
}

// Pprof exposes the profiling endpoints on a separate listener.
// Non-loopback callers need basic auth.
type Pprof struct {
	Enabled bool   `yaml:"enabled" env:"PPROF_ENABLED"`
	Addr    string `yaml:"addr" env:"PPROF_ADDR"`
	User    string `yaml:"user" env:"PPROF_USER"`
	Pass    string `yaml:"password" env:"PPROF_PASSWORD"`
}

// Load reads configuration in order: defaults → YAML file (if given) →
// .env (if present) → environment → flags.
func Load() (*Config, error) {
	fs := pflag.CommandLine
	port := fs.IntP("port", "p", 0, "port to listen on")
	file := fs.String("config", "", "path to a YAML config file")
	storage := fs.String("storage", "", "storage driver: postgres or memory")
	if !fs.Parsed() {
		if err := fs.Parse(os.Args[1:]); err != nil {
			return nil, fmt.Errorf("parse flags: %w", err)
		}
	}

	cfg := Default()

	path := *file
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("warning: .env not loaded: %v", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if fs.Changed("port") {
		cfg.Port = *port
	}
	if fs.Changed("storage") {
		cfg.Storage = *storage
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("unmarshal config file: %w", err)
	}
	return nil
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	c.Storage = strings.ToLower(strings.TrimSpace(c.Storage))
	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if p, err := strconv.Atoi(c.DB.Port); err != nil || p <= 0 || p > 65535 {
			return fmt.Errorf("invalid postgres port: %q", c.DB.Port)
		}
		if strings.TrimSpace(c.Auth.JWTSecret) == "" {
			return errors.New("auth jwt secret is required with postgres storage")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage)
	}
	if c.Dispatch.OfferTTL <= 0 {
		return fmt.Errorf("dispatch offer ttl must be positive, got %s", c.Dispatch.OfferTTL)
	}
	if c.Dispatch.OperationTimeout <= 0 {
		return fmt.Errorf("dispatch operation timeout must be positive, got %s", c.Dispatch.OperationTimeout)
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Dispatch.SweepSchedule); err != nil {
		return fmt.Errorf("invalid dispatch sweep schedule %q: %w", c.Dispatch.SweepSchedule, err)
	}
	switch c.Dispatch.Escalation {
	case EscalationNotifyAdmins, EscalationRebroadcast:
	default:
		return fmt.Errorf("unknown escalation %q", c.Dispatch.Escalation)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth token ttl must be positive, got %s", c.Auth.TokenTTL)
	}
	if c.Notify.ActiveWithinDays <= 0 {
		return fmt.Errorf("notify active window must be positive, got %d", c.Notify.ActiveWithinDays)
	}
	if c.Kafka.PublishAttempts < 1 {
		return fmt.Errorf("kafka publish attempts must be at least 1, got %d", c.Kafka.PublishAttempts)
	}
	if c.Pprof.Enabled && strings.TrimSpace(c.Pprof.Addr) == "" {
		return errors.New("pprof addr is required when pprof is enabled")
	}
	return nil
}
