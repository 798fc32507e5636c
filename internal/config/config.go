package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type AuditLogConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Format  string `mapstructure:"format"`
}

type DatabaseRetryConfig struct {
	Enabled         *bool          `mapstructure:"enabled"`
	MaxRetries      *int           `mapstructure:"max_retries"`
	InitialInterval *time.Duration `mapstructure:"initial_interval"`
	MaxInterval     *time.Duration `mapstructure:"max_interval"`
	Multiplier      *float64       `mapstructure:"multiplier"`
	Randomization   *float64       `mapstructure:"randomization"`
	FatalErrorTypes []string       `mapstructure:"fatal_error_types"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Store     StoreConfig     `mapstructure:"store"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Redis     RedisConfig     `mapstructure:"redis"`
	AuditLog  AuditLogConfig  `mapstructure:"audit_log"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Sweep     SweepConfig     `mapstructure:"sweep"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RedisConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db"`
	MaxRetries      int           `mapstructure:"max_retries"`
	PoolSize        int           `mapstructure:"pool_size"`
	MinIdleConns    int           `mapstructure:"min_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	Env             string        `mapstructure:"env"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
}

type DatabaseConfig struct {
	Host            string              `mapstructure:"host"`
	Port            string              `mapstructure:"port"`
	User            string              `mapstructure:"user"`
	Password        string              `mapstructure:"password"`
	Name            string              `mapstructure:"name"`
	MaxOpenConns    int                 `mapstructure:"max_open_conns"`
	MaxIdleConns    int                 `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration       `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration       `mapstructure:"conn_max_idle_time"`
	Retry           DatabaseRetryConfig `mapstructure:"retry"`
	CircuitBreaker  CBConfig            `mapstructure:"circuit_breaker"`
}

type CBConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	MaxFailures      uint32        `mapstructure:"max_failures"`
	FailureThreshold float64       `mapstructure:"failure_threshold"`
	ResetTimeout     time.Duration `mapstructure:"reset_timeout"`
}

// StoreConfig selects the record store backend: "mysql" or "memory".
type StoreConfig struct {
	Driver string `mapstructure:"driver"`
	// AutoMigrate applies pending goose migrations when the API starts.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

type JWTConfig struct {
	AccessSecret string        `mapstructure:"access_secret"`
	AccessExpiry time.Duration `mapstructure:"access_expiry"`
	Issuer       string        `mapstructure:"issuer"`
	Audience     string        `mapstructure:"audience"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type NotifyConfig struct {
	// Channel is the redis pub/sub channel notifications are published on.
	Channel string       `mapstructure:"channel"`
	PubSub  PubSubConfig `mapstructure:"pubsub"`
	SMTP    SMTPConfig   `mapstructure:"smtp"`
}

type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

type SMTPConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type SchedulerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// ReferenceTimezone is the fixed clock the daily rollover is tied to.
	ReferenceTimezone string `mapstructure:"reference_timezone"`
	RolloverHour      int    `mapstructure:"rollover_hour"`
}

type SweepConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	ReminderHour     int  `mapstructure:"reminder_hour"`
	AutoCompleteHour int  `mapstructure:"auto_complete_hour"`
	Parallelism      int  `mapstructure:"parallelism"`
}

// RateLimitConfig bounds punch and correction requests per principal.
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, using environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            env("SERVER_PORT", "8080", asString),
			Host:            env("SERVER_HOST", "localhost", asString),
			Env:             env("ENV", "development", asString),
			ReadTimeout:     env("SERVER_READ_TIMEOUT", 15*time.Second, time.ParseDuration),
			WriteTimeout:    env("SERVER_WRITE_TIMEOUT", 15*time.Second, time.ParseDuration),
			IdleTimeout:     env("SERVER_IDLE_TIMEOUT", 60*time.Second, time.ParseDuration),
			ShutdownTimeout: env("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second, time.ParseDuration),
			TrustedProxies:  env("SERVER_TRUSTED_PROXIES", []string{"127.0.0.1"}, asList),
		},
		Database: DatabaseConfig{
			Host:            env("DB_HOST", "localhost", asString),
			Port:            env("DB_PORT", "3306", asString),
			User:            env("DB_USER", "attendance", asString),
			Password:        env("DB_PASSWORD", "attendance", asString),
			Name:            env("DB_NAME", "attendance", asString),
			MaxOpenConns:    env("DB_MAX_OPEN_CONNS", 25, strconv.Atoi),
			MaxIdleConns:    env("DB_MAX_IDLE_CONNS", 5, strconv.Atoi),
			ConnMaxLifetime: env("DB_CONN_MAX_LIFETIME", 5*time.Minute, time.ParseDuration),
			ConnMaxIdleTime: env("DB_CONN_MAX_IDLE_TIME", 5*time.Minute, time.ParseDuration),
			Retry: DatabaseRetryConfig{
				Enabled:         envPtr("DB_RETRY_ENABLED", true, strconv.ParseBool),
				MaxRetries:      envPtr("DB_RETRY_MAX_RETRIES", 3, strconv.Atoi),
				InitialInterval: envPtr("DB_RETRY_INITIAL_INTERVAL", 100*time.Millisecond, time.ParseDuration),
				MaxInterval:     envPtr("DB_RETRY_MAX_INTERVAL", 2*time.Second, time.ParseDuration),
				Multiplier:      envPtr("DB_RETRY_MULTIPLIER", 2.0, asFloat),
				Randomization:   envPtr("DB_RETRY_RANDOMIZATION", 0.2, asFloat),
				FatalErrorTypes: env("DB_RETRY_FATAL_ERROR_TYPES", []string{"constraint_violation", "duplicate_key", "foreign_key_violation"}, asList),
			},
			CircuitBreaker: CBConfig{
				Enabled:          env("DB_CIRCUIT_BREAKER_ENABLED", true, strconv.ParseBool),
				MaxFailures:      uint32(env("DB_MAX_FAILURES", 5, strconv.Atoi)),
				FailureThreshold: env("DB_FAILURE_THRESHOLD", 0.5, asFloat),
				ResetTimeout:     env("DB_RESET_TIMEOUT", 30*time.Second, time.ParseDuration),
			},
		},
		Store: StoreConfig{
			Driver:      env("STORE_DRIVER", "mysql", asString),
			AutoMigrate: env("STORE_AUTO_MIGRATE", false, strconv.ParseBool),
		},
		JWT: JWTConfig{
			AccessSecret: env("JWT_ACCESS_SECRET", "", asString),
			AccessExpiry: env("JWT_ACCESS_EXPIRY", 15*time.Minute, time.ParseDuration),
			Issuer:       env("JWT_ISSUER", "attendance-scheduler", asString),
			Audience:     env("JWT_AUDIENCE", "attendance-scheduler-clients", asString),
		},
		CORS: CORSConfig{
			AllowedOrigins: env("CORS_ALLOWED_ORIGINS", []string{"*"}, asList),
			AllowedMethods: env("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"}, asList),
			AllowedHeaders: env("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}, asList),
		},
		Logging: LoggingConfig{
			Level:    env("LOG_LEVEL", "info", asString),
			Encoding: env("LOG_ENCODING", "json", asString),
		},
		Metrics: MetricsConfig{
			Enabled: env("ENABLE_METRICS", true, strconv.ParseBool),
		},
		AuditLog: AuditLogConfig{
			Enabled: env("AUDIT_LOG_ENABLED", true, strconv.ParseBool),
			Path:    env("AUDIT_LOG_PATH", "", asString),
			Format:  env("AUDIT_LOG_FORMAT", "json", asString),
		},
		Redis: RedisConfig{
			Enabled:         env("ENABLE_REDIS", false, strconv.ParseBool),
			Host:            env("REDIS_HOST", "localhost", asString),
			Port:            env("REDIS_PORT", "6379", asString),
			Password:        env("REDIS_PASSWORD", "", asString),
			DB:              env("REDIS_DB", 0, strconv.Atoi),
			MaxRetries:      env("REDIS_MAX_RETRIES", 3, strconv.Atoi),
			PoolSize:        env("REDIS_POOL_SIZE", 10, strconv.Atoi),
			MinIdleConns:    env("REDIS_MIN_IDLE_CONNS", 5, strconv.Atoi),
			ConnMaxLifetime: env("REDIS_CONN_MAX_LIFETIME", 30*time.Minute, time.ParseDuration),
		},
		Notify: NotifyConfig{
			Channel: env("NOTIFY_CHANNEL", "attendance:notifications", asString),
			PubSub: PubSubConfig{
				Enabled:   env("NOTIFY_PUBSUB_ENABLED", false, strconv.ParseBool),
				ProjectID: env("NOTIFY_PUBSUB_PROJECT_ID", "", asString),
				Topic:     env("NOTIFY_PUBSUB_TOPIC", "attendance-notifications", asString),
			},
			SMTP: SMTPConfig{
				Enabled:  env("NOTIFY_SMTP_ENABLED", false, strconv.ParseBool),
				Host:     env("SMTP_HOST", "localhost", asString),
				Port:     env("SMTP_PORT", 587, strconv.Atoi),
				Username: env("SMTP_USERNAME", "", asString),
				Password: env("SMTP_PASSWORD", "", asString),
				From:     env("SMTP_FROM", "no-reply@localhost", asString),
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:           env("SCHEDULER_ENABLED", true, strconv.ParseBool),
			ReferenceTimezone: env("SCHEDULER_REFERENCE_TZ", "UTC", asString),
			RolloverHour:      env("SCHEDULER_ROLLOVER_HOUR", 0, strconv.Atoi),
		},
		Sweep: SweepConfig{
			Enabled:          env("SWEEP_ENABLED", true, strconv.ParseBool),
			ReminderHour:     env("SWEEP_REMINDER_HOUR", 20, strconv.Atoi),
			AutoCompleteHour: env("SWEEP_AUTO_COMPLETE_HOUR", 0, strconv.Atoi),
			Parallelism:      env("SWEEP_PARALLELISM", 4, strconv.Atoi),
		},
		RateLimit: RateLimitConfig{
			Enabled:  env("RATE_LIMIT_ENABLED", true, strconv.ParseBool),
			Requests: env("RATE_LIMIT_REQUESTS", 10, strconv.Atoi),
			Window:   env("RATE_LIMIT_WINDOW", time.Minute, time.ParseDuration),
		},
	}

	return cfg, nil
}

// Validate reports every problem found, not just the first.
func (c *Config) Validate() error {
	problems := c.dependencyProblems()
	if c.Server.Env == "production" {
		problems = append(problems, c.productionProblems()...)
	}
	return errors.Join(problems...)
}

func (c *Config) dependencyProblems() []error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Store.Driver == "mysql" || c.Store.Driver == "memory", "STORE_DRIVER must be one of mysql, memory (got %q)", c.Store.Driver)

	if cb := c.Database.CircuitBreaker; cb.Enabled {
		check(cb.MaxFailures >= 1, "DB_MAX_FAILURES must be at least 1 when circuit breaker is enabled")
		check(cb.FailureThreshold > 0 && cb.FailureThreshold <= 1.0, "DB_FAILURE_THRESHOLD must be between 0 and 1.0")
		check(cb.ResetTimeout > 0, "DB_RESET_TIMEOUT must be greater than 0")
	}
	check(!c.Redis.Enabled || c.Redis.Host != "", "redis host required when redis is enabled")
	check(c.Database.MaxIdleConns <= c.Database.MaxOpenConns, "DB_MAX_IDLE_CONNS cannot exceed DB_MAX_OPEN_CONNS")

	switch n := len(c.JWT.AccessSecret); {
	case n == 0:
		check(false, "JWT_ACCESS_SECRET is required")
	case n < 32:
		check(false, "JWT access secret must be at least 32 characters long")
	}

	check(c.Server.ReadTimeout > 0, "SERVER_READ_TIMEOUT must be greater than 0")
	check(c.Server.WriteTimeout > 0, "SERVER_WRITE_TIMEOUT must be greater than 0")
	check(c.Server.ShutdownTimeout > 0, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")

	if _, err := time.LoadLocation(c.Scheduler.ReferenceTimezone); err != nil {
		check(false, "SCHEDULER_REFERENCE_TZ is not a valid timezone: %w", err)
	}
	check(validHour(c.Scheduler.RolloverHour), "SCHEDULER_ROLLOVER_HOUR must be between 0 and 23")
	check(validHour(c.Sweep.ReminderHour) && validHour(c.Sweep.AutoCompleteHour), "SWEEP_REMINDER_HOUR and SWEEP_AUTO_COMPLETE_HOUR must be between 0 and 23")
	check(c.Sweep.ReminderHour != c.Sweep.AutoCompleteHour, "SWEEP_REMINDER_HOUR and SWEEP_AUTO_COMPLETE_HOUR must differ")
	check(c.Sweep.Parallelism >= 1, "SWEEP_PARALLELISM must be at least 1")

	if rl := c.RateLimit; rl.Enabled {
		check(rl.Requests >= 1 && rl.Window > 0, "RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive when rate limiting is enabled")
	}
	check(!c.Notify.PubSub.Enabled || c.Notify.PubSub.ProjectID != "", "NOTIFY_PUBSUB_PROJECT_ID is required when Pub/Sub notifications are enabled")
	check(!c.Notify.SMTP.Enabled || c.Notify.SMTP.Host != "", "SMTP_HOST is required when email notifications are enabled")

	return errs
}

var (
	insecureSecrets = []string{"change-this-to-a-secure-random-string", "secret", "your-secret-key"}
	weakDBPasswords = []string{"password", "attendance", "admin", "root", "test", ""}
)

func (c *Config) productionProblems() []error {
	var errs []error

	secret := strings.ToLower(c.JWT.AccessSecret)
	for _, bad := range insecureSecrets {
		if strings.Contains(secret, bad) {
			errs = append(errs, errors.New("FATAL SECURITY: Default/insecure JWT Access Secret detected in production"))
			break
		}
	}
	if c.Store.Driver != "mysql" {
		errs = append(errs, errors.New("FATAL: the in-memory store loses attendance history on restart and cannot be used in production"))
	}
	if slices.Contains(weakDBPasswords, strings.ToLower(c.Database.Password)) {
		errs = append(errs, errors.New("FATAL SECURITY: Weak or default database password detected in production"))
	}
	if c.Logging.Encoding != "json" {
		errs = append(errs, errors.New("FATAL: Production logging should use JSON format for log aggregation"))
	}
	return errs
}

func validHour(h int) bool {
	return h >= 0 && h <= 23
}

// env reads key with parse, falling back to def when unset or malformed.
func env[T any](key string, def T, parse func(string) (T, error)) T {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		return def
	}
	return v
}

// envPtr is env for the optional fields that are merged over code defaults.
func envPtr[T any](key string, def T, parse func(string) (T, error)) *T {
	v := env(key, def, parse)
	return &v
}

func asString(s string) (string, error) { return s, nil }

func asFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

// asList splits a comma separated value, dropping blank items.
func asList(s string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if item := strings.TrimSpace(part); item != "" {
			out = append(out, item)
		}
	}
	return out, nil
}
