package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"daohub_backend/internal/validator"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"gt=0,max=65535"`
	Env  string `yaml:"env" validate:"oneof=development production test"`
	// Уровень логирования; пусто - по умолчанию для env.
	LogLevel      string `yaml:"log_level"`
	ShutdownGrace int    `yaml:"shutdown_grace_seconds" validate:"gte=0"`
}

type DatabaseConfig struct {
	DSN          string `yaml:"url" validate:"required"`
	AutoMigrate  bool   `yaml:"auto_migrate"`
	MaxOpenConns int    `yaml:"max_open_conns" validate:"gte=0"`
}

type RedisConfig struct {
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db" validate:"gte=0"`
	Cluster  bool     `yaml:"cluster"`
	Prefix   string   `yaml:"prefix"`
}

type CacheConfig struct {
	// memory | redis
	Driver string `yaml:"driver" validate:"oneof=memory redis"`
}

type QueueConfig struct {
	MaxAttempts      int  `yaml:"max_attempts" validate:"gt=0"`
	BackoffMs        int  `yaml:"backoff_ms" validate:"gt=0"`
	MaxBackoffMs     int  `yaml:"max_backoff_ms" validate:"gtefield=BackoffMs"`
	HandlerTimeoutMs int  `yaml:"handler_timeout_ms" validate:"gt=0"`
	PollIntervalMs   int  `yaml:"poll_interval_ms" validate:"gt=0"`
	Concurrency      int  `yaml:"concurrency" validate:"gt=0"`
	RemoveOnComplete bool `yaml:"remove_on_complete"`
}

type FanoutConfig struct {
	Concurrency int `yaml:"concurrency" validate:"gt=0"`
}

type FeedConfig struct {
	MaxLength  int `yaml:"max_length" validate:"gt=0"`
	TTLSeconds int `yaml:"ttl_seconds" validate:"gte=0"`
}

type RateLimitConfig struct {
	Enabled       bool `yaml:"enabled"`
	WindowSeconds int  `yaml:"window_seconds" validate:"gt=0"`
	Max           int  `yaml:"max" validate:"gt=0"`
}

type EmailConfig struct {
	SMTPHost      string `yaml:"smtp_host"`
	SMTPPort      int    `yaml:"smtp_port" validate:"gte=0,max=65535"`
	SMTPUsername  string `yaml:"smtp_user"`
	SMTPPassword  string `yaml:"smtp_password"`
	FromEmail     string `yaml:"from_email" validate:"omitempty,email"`
	FromName      string `yaml:"from_name"`
	TemplatesDir  string `yaml:"templates_dir"`
	SendTimeoutMs int    `yaml:"send_timeout_ms" validate:"gt=0"`
}

type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers" validate:"required_if=Enabled true"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

type JWTConfig struct {
	Secret     string `yaml:"secret" validate:"required,min=16"`
	TTLMinutes int    `yaml:"ttl" validate:"gt=0"`
}

type WebSocketConfig struct {
	SendBuffer     int `yaml:"send_buffer" validate:"gt=0"`
	PingSeconds    int `yaml:"ping_seconds" validate:"gt=0"`
	MaxMessageSize int `yaml:"max_message_size" validate:"gt=0"`
}

type WorkersConfig struct {
	CleanupSchedule   string `yaml:"cleanup_schedule"`
	CleanupBatch      int    `yaml:"cleanup_batch" validate:"gt=0"`
	JobRetentionHours int    `yaml:"job_retention_hours" validate:"gt=0"`
	FailureRetentionD int    `yaml:"failure_retention_days" validate:"gt=0"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Cache     CacheConfig     `yaml:"cache"`
	Queue     QueueConfig     `yaml:"queue"`
	Fanout    FanoutConfig    `yaml:"fanout"`
	Feed      FeedConfig      `yaml:"feed"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Email     EmailConfig     `yaml:"email"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	JWT       JWTConfig       `yaml:"jwt"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Workers   WorkersConfig   `yaml:"workers"`
}

// Default возвращает конфигурацию со значениями по умолчанию.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8080, Env: "development", ShutdownGrace: 10},
		Database: DatabaseConfig{
			AutoMigrate:  true,
			MaxOpenConns: 20,
		},
		Redis: RedisConfig{Addrs: []string{"localhost:6379"}, Prefix: "daohub"},
		Cache: CacheConfig{Driver: "memory"},
		Queue: QueueConfig{
			MaxAttempts:      3,
			BackoffMs:        1000,
			MaxBackoffMs:     60000,
			HandlerTimeoutMs: 15000,
			PollIntervalMs:   200,
			Concurrency:      4,
			RemoveOnComplete: true,
		},
		Fanout:    FanoutConfig{Concurrency: 10},
		Feed:      FeedConfig{MaxLength: 100, TTLSeconds: 7 * 24 * 3600},
		RateLimit: RateLimitConfig{Enabled: true, WindowSeconds: 60, Max: 100},
		Email: EmailConfig{
			SMTPPort:      587,
			FromName:      "DAO Hub",
			SendTimeoutMs: 10000,
		},
		Kafka:     KafkaConfig{Topic: "dao.events", GroupID: "notifications"},
		JWT:       JWTConfig{TTLMinutes: 60},
		WebSocket: WebSocketConfig{SendBuffer: 256, PingSeconds: 30, MaxMessageSize: 4096},
		Workers: WorkersConfig{
			CleanupSchedule:   "@every 10m",
			CleanupBatch:      1000,
			JobRetentionHours: 24,
			FailureRetentionD: 30,
		},
	}
}

// Load читает .env, затем yaml (CONFIG_PATH, по умолчанию config/config.yaml),
// затем переменные окружения. Файл конфигурации необязателен.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	configPath := os.Getenv("CONFIG_PATH")
	explicit := configPath != ""
	if !explicit {
		configPath = "config/config.yaml"
	}

	if err := loadFile(cfg, configPath); err != nil {
		if !errors.Is(err, os.ErrNotExist) || explicit {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	if err := validator.New().Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	// Email sends run inside a queue attempt; the channel timeout must fire first.
	if cfg.Email.SendTimeout() >= cfg.Queue.HandlerTimeout() {
		return nil, fmt.Errorf("invalid config: email.send_timeout_ms (%d) must be below queue.handler_timeout_ms (%d)",
			cfg.Email.SendTimeoutMs, cfg.Queue.HandlerTimeoutMs)
	}
	return cfg, nil
}

func loadFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file at %s: %w", path, err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return fmt.Errorf("failed to parse config file at %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Database.DSN, "DATABASE_URL")
	setString(&cfg.Server.Env, "SERVER_ENV")
	setString(&cfg.Server.LogLevel, "LOG_LEVEL")
	setString(&cfg.JWT.Secret, "JWT_SECRET")
	setString(&cfg.Cache.Driver, "CACHE_DRIVER")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setString(&cfg.Email.SMTPHost, "SMTP_HOST")
	setString(&cfg.Email.SMTPUsername, "SMTP_USER")
	setString(&cfg.Email.SMTPPassword, "SMTP_PASSWORD")
	setString(&cfg.Email.FromEmail, "SMTP_FROM")

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addrs = splitList(v)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = splitList(v)
		cfg.Kafka.Enabled = true
	}

	for key, dst := range map[string]*int{
		"SERVER_PORT": &cfg.Server.Port,
		"SMTP_PORT":   &cfg.Email.SMTPPort,
	} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s=%q: %w", key, v, err)
		}
		*dst = n
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Вспомогательные методы для длительностей

func (q QueueConfig) Backoff() time.Duration {
	return time.Duration(q.BackoffMs) * time.Millisecond
}

func (q QueueConfig) MaxBackoff() time.Duration {
	return time.Duration(q.MaxBackoffMs) * time.Millisecond
}

func (q QueueConfig) HandlerTimeout() time.Duration {
	return time.Duration(q.HandlerTimeoutMs) * time.Millisecond
}

func (q QueueConfig) PollInterval() time.Duration {
	return time.Duration(q.PollIntervalMs) * time.Millisecond
}

func (f FeedConfig) TTL() time.Duration {
	return time.Duration(f.TTLSeconds) * time.Second
}

func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

func (e EmailConfig) SendTimeout() time.Duration {
	return time.Duration(e.SendTimeoutMs) * time.Millisecond
}

func (e EmailConfig) Enabled() bool {
	return e.SMTPHost != ""
}

func (w WebSocketConfig) PingPeriod() time.Duration {
	return time.Duration(w.PingSeconds) * time.Second
}

func (j JWTConfig) TTL() time.Duration {
	return time.Duration(j.TTLMinutes) * time.Minute
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownGrace) * time.Second
}
