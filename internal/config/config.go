package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"

	"github.com/medassist/booking-api/pkg/messaging/redis"
	"github.com/medassist/booking-api/pkg/worker"
)

const envPrefix = "MEDASSIST"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Redis     RedisConfig     `mapstructure:"redis"`
	SMTP      SMTPConfig      `mapstructure:"smtp"`
	Reminders ReminderConfig  `mapstructure:"reminders"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Cache     CacheConfig     `mapstructure:"cache"`
	OTEL      OTELConfig      `mapstructure:"otel"`
	Log       LogConfig       `mapstructure:"log"`
	// Timezone the appointment dates and times are expressed in.
	Timezone string `mapstructure:"timezone"`
}

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxHeaderBytes int           `mapstructure:"max_header_bytes"`
	GinMode        string        `mapstructure:"gin_mode"`
	// WorkerMetricsPort serves /metrics and health for cmd/worker.
	WorkerMetricsPort int `mapstructure:"worker_metrics_port"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

// SMTPConfig configures outgoing mail. An empty host logs mail instead of sending it.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type ReminderConfig struct {
	Interval              time.Duration `mapstructure:"interval"`
	SweepEnabled          bool          `mapstructure:"sweep_enabled"`
	QueueEnabled          bool          `mapstructure:"queue_enabled"`
	Window                time.Duration `mapstructure:"window"`
	PostConfirmationDelay time.Duration `mapstructure:"post_confirmation_delay"`
	PostConfirmationSpan  time.Duration `mapstructure:"post_confirmation_span"`
	BatchSize             int           `mapstructure:"batch_size"`
	MaxAttempts           int           `mapstructure:"max_attempts"`
	RetryBackoff          time.Duration `mapstructure:"retry_backoff"`
}

type OutboxConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	BatchSize       int           `mapstructure:"batch_size"`
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	RetryAttempts   int           `mapstructure:"retry_attempts"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
	MaxRetries      int           `mapstructure:"max_retries"`
	Retention       time.Duration `mapstructure:"retention"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	ClientTTL         time.Duration `mapstructure:"client_ttl"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type CacheConfig struct {
	AvailabilityTTL time.Duration `mapstructure:"availability_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type OTELConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// secrets are read straight from the environment and win over the file.
type secrets struct {
	DBPassword   string `envconfig:"DB_PASSWORD"`
	JWTSecret    string `envconfig:"JWT_SECRET"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	RedisURL     string `envconfig:"REDIS_URL"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 20*time.Second)
	v.SetDefault("server.request_timeout", 10*time.Second)
	v.SetDefault("server.max_header_bytes", 1<<20)
	v.SetDefault("server.gin_mode", "release")
	v.SetDefault("server.worker_metrics_port", 9091)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "medassist")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.auto_migrate", false)

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "MedAssist <no-reply@medassist.local>")

	v.SetDefault("reminders.interval", time.Minute)
	v.SetDefault("reminders.sweep_enabled", true)
	v.SetDefault("reminders.queue_enabled", true)
	v.SetDefault("reminders.window", 5*time.Minute)
	v.SetDefault("reminders.post_confirmation_delay", time.Minute)
	v.SetDefault("reminders.post_confirmation_span", time.Minute)
	v.SetDefault("reminders.batch_size", 50)
	v.SetDefault("reminders.max_attempts", 5)
	v.SetDefault("reminders.retry_backoff", time.Minute)

	v.SetDefault("outbox.enabled", true)
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", 5*time.Second)
	v.SetDefault("outbox.retry_attempts", 3)
	v.SetDefault("outbox.retry_delay", 200*time.Millisecond)
	v.SetDefault("outbox.max_retries", 10)
	v.SetDefault("outbox.retention", 7*24*time.Hour)
	v.SetDefault("outbox.cleanup_interval", time.Hour)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 5.0)
	v.SetDefault("rate_limit.burst", 10)
	v.SetDefault("rate_limit.client_ttl", 10*time.Minute)

	v.SetDefault("cors.allowed_origins", []string{})

	v.SetDefault("cache.availability_ttl", 30*time.Second)
	v.SetDefault("cache.cleanup_interval", 5*time.Minute)

	v.SetDefault("otel.enabled", false)
	v.SetDefault("otel.endpoint", "localhost:4317")
	v.SetDefault("otel.insecure", true)
	v.SetDefault("otel.service_name", "medassist-booking")
	v.SetDefault("otel.sample_ratio", 1.0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("timezone", "UTC")
}

// LoadConfig reads config.yml from the given directories (or the usual
// locations), overlays MEDASSIST_* environment variables and validates.
func LoadConfig(paths ...string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yml")
	if len(paths) == 0 {
		paths = []string{".", "./config", "/app/config"}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var s secrets
	if err := envconfig.Process(envPrefix, &s); err != nil {
		return nil, fmt.Errorf("failed to read secrets from environment: %w", err)
	}
	cfg.applySecrets(s)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applySecrets(s secrets) {
	if s.DBPassword != "" {
		c.Database.Password = s.DBPassword
	}
	if s.JWTSecret != "" {
		c.JWT.Secret = s.JWTSecret
	}
	if s.SMTPPassword != "" {
		c.SMTP.Password = s.SMTPPassword
	}
	if s.RedisURL != "" {
		c.Redis.URL = s.RedisURL
	}
}

// Validate rejects values the services cannot run with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 || c.Server.RequestTimeout <= 0 {
		return errors.New("server timeouts must be positive durations")
	}
	switch c.Server.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("server.gin_mode %q must be debug, release or test", c.Server.GinMode)
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return errors.New("jwt.secret must be set (MEDASSIST_JWT_SECRET)")
	}
	if strings.TrimSpace(c.Database.Host) == "" || strings.TrimSpace(c.Database.Name) == "" {
		return errors.New("database.host and database.name must be set")
	}
	if c.Redis.Enabled && strings.TrimSpace(c.Redis.URL) == "" {
		return errors.New("redis.url must be set when redis is enabled")
	}
	if c.Reminders.Interval <= 0 {
		return errors.New("reminders.interval must be positive")
	}
	if c.Reminders.Window <= 0 {
		return errors.New("reminders.window must be positive")
	}
	if c.Reminders.PostConfirmationDelay <= 0 || c.Reminders.PostConfirmationSpan <= 0 {
		return errors.New("reminders post confirmation delay and span must be positive")
	}
	if c.Reminders.BatchSize <= 0 || c.Reminders.MaxAttempts <= 0 {
		return errors.New("reminders.batch_size and reminders.max_attempts must be positive")
	}
	if c.Outbox.BatchSize <= 0 || c.Outbox.PollInterval <= 0 || c.Outbox.RetryAttempts <= 0 || c.Outbox.RetryDelay <= 0 {
		return errors.New("outbox batch_size, poll_interval, retry_attempts and retry_delay must be positive")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst < 1) {
		return errors.New("rate_limit requires requests_per_second > 0 and burst >= 1")
	}
	if c.OTEL.SampleRatio < 0 || c.OTEL.SampleRatio > 1 {
		return errors.New("otel.sample_ratio must be in [0,1]")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}

// Location returns the configured time zone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Add conversion methods to convert config types
func (c *OutboxConfig) ToWorkerConfig() worker.OutboxProcessorConfig {
	return worker.OutboxProcessorConfig{
		BatchSize:     c.BatchSize,
		PollInterval:  c.PollInterval,
		RetryAttempts: c.RetryAttempts,
		RetryDelay:    c.RetryDelay,
		MaxRetries:    c.MaxRetries,
	}
}

func (c *RedisConfig) ToBrokerConfig() redis.Config {
	return redis.Config{
		URL:          c.URL,
		MaxRetries:   c.MaxRetries,
		RetryBackoff: c.RetryBackoff,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
	}
}
