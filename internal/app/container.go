package app

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/waqasmani/attendance-scheduler/internal/config"
	"github.com/waqasmani/attendance-scheduler/internal/domain"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/database"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/middleware"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/notify"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/observability"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/security"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/store"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/store/memstore"
	"github.com/waqasmani/attendance-scheduler/internal/modules/attendance"
	"github.com/waqasmani/attendance-scheduler/internal/modules/calendar"
	"github.com/waqasmani/attendance-scheduler/internal/modules/corrections"
	"github.com/waqasmani/attendance-scheduler/internal/modules/health"
	"github.com/waqasmani/attendance-scheduler/internal/modules/scheduler"
	"github.com/waqasmani/attendance-scheduler/internal/modules/sweep"
	"github.com/waqasmani/attendance-scheduler/internal/modules/tenants"
	"github.com/waqasmani/attendance-scheduler/internal/shared/keylock"
	"github.com/waqasmani/attendance-scheduler/internal/shared/validator"
	"go.uber.org/zap"
)

type Container struct {
	Config      *config.Config
	DB          *sql.DB
	Logger      *observability.Logger
	Metrics     *observability.Metrics
	Clock       calendar.Clock
	Store       domain.Store
	Notifier    *notify.Dispatcher
	JWTService  *security.JWTService
	Validator   *validator.Validator
	AuditLogger *observability.AuditLogger

	AuthMiddleware *middleware.AuthMiddleware
	RateLimiter    security.RateLimiter

	Attendance  *attendance.Service
	Corrections *corrections.Service
	Tenants     *tenants.Service
	Scheduler   *scheduler.Scheduler
	Sweep       *sweep.Job

	AttendanceHandler  *attendance.Handler
	CorrectionsHandler *corrections.Handler
	TenantsHandler     *tenants.Handler
	HealthHandler      *health.Handler

	pubsub      *notify.PubSubNotifier
	redisMu     sync.RWMutex
	redisClient *redis.Client
}

// NewContainer wires every component. db is the opened MySQL pool and must be
// nil when the memory store is configured.
func NewContainer(ctx context.Context, cfg *config.Config, db *database.DB, logger *observability.Logger, metrics *observability.Metrics) (*Container, error) {
	c := &Container{
		Config:     cfg,
		Logger:     logger,
		Metrics:    metrics,
		Clock:      calendar.SystemClock{},
		JWTService: security.NewJWTService(&cfg.JWT),
		Validator:  validator.New(),
	}
	c.AuthMiddleware = middleware.NewAuthMiddleware(c.JWTService, metrics)

	if err := c.initStore(db); err != nil {
		return nil, err
	}
	c.initAuditLogger()
	c.AuthMiddleware.WithAudit(c.AuditLogger)
	if err := c.initNotifier(ctx); err != nil {
		c.Close()
		return nil, err
	}

	reference, err := time.LoadLocation(cfg.Scheduler.ReferenceTimezone)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("load reference timezone: %w", err)
	}

	// One lock per employee shared by every writer of ledger entries.
	employees := keylock.New()

	c.Scheduler = scheduler.New(c.Store, calendar.New(c.Store), c.Notifier, c.Clock, scheduler.SystemTimers{}, logger, metrics)
	c.Attendance = attendance.NewService(c.Store, c.AuditLogger, c.Notifier, c.Clock, employees, c.Validator, logger, metrics)
	c.Corrections = corrections.NewService(c.Store, c.AuditLogger, c.Notifier, c.Clock, employees, c.Validator, logger, metrics)
	c.Tenants = tenants.NewService(c.Store, c.AuditLogger, c.Scheduler, c.Clock, c.Validator, logger)
	c.Sweep = sweep.NewJob(c.Store, c.Attendance, c.Scheduler, c.Notifier, c.Clock, logger, metrics, sweep.Options{
		ReminderHour:     cfg.Sweep.ReminderHour,
		AutoCompleteHour: cfg.Sweep.AutoCompleteHour,
		RolloverHour:     cfg.Scheduler.RolloverHour,
		Reference:        reference,
		Parallelism:      cfg.Sweep.Parallelism,
	})

	c.AttendanceHandler = attendance.NewHandler(c.Attendance)
	c.CorrectionsHandler = corrections.NewHandler(c.Corrections)
	c.TenantsHandler = tenants.NewHandler(c.Tenants)

	var rdb redis.Cmdable
	if client := c.currentRedis(); client != nil {
		rdb = client
		c.RateLimiter = security.NewRedisRateLimiter(client)
	} else {
		c.RateLimiter = security.NewInMemoryRateLimiter()
	}
	c.HealthHandler = health.NewHandler(c.Store, c.DB, rdb)

	return c, nil
}

func (c *Container) initStore(db *database.DB) error {
	switch c.Config.Store.Driver {
	case "memory":
		c.Logger.Warn(context.Background(), "Using in-memory record store; data is lost on restart")
		c.Store = memstore.New()
		return nil
	case "mysql", "":
		if db == nil {
			return fmt.Errorf("mysql store selected but no database connection was provided")
		}
		c.DB = db.DB

		var queryDB database.DBTX = db
		if c.Config.Database.CircuitBreaker.Enabled {
			c.Logger.Info(context.Background(), "Initializing database circuit breaker",
				zap.Uint32("max_failures", c.Config.Database.CircuitBreaker.MaxFailures),
				zap.Float64("failure_threshold", c.Config.Database.CircuitBreaker.FailureThreshold),
				zap.Duration("reset_timeout", c.Config.Database.CircuitBreaker.ResetTimeout),
			)
			queryDB = database.NewBreakerDB(db.DB, c.Config.Database.CircuitBreaker, c.Metrics, c.Logger)
		}
		c.Store = store.New(queryDB, db)
		return nil
	default:
		return fmt.Errorf("unknown store driver %q", c.Config.Store.Driver)
	}
}

func (c *Container) initAuditLogger() {
	cfg := c.Config.AuditLog
	if cfg.Enabled && cfg.Path != "" {
		dedicated, err := observability.NewDedicatedAuditLogger(cfg.Path, cfg.Format, c.Store)
		if err == nil {
			c.Logger.Info(context.Background(), "Audit logging enabled with dedicated file",
				zap.String("path", cfg.Path),
				zap.String("format", cfg.Format),
			)
			c.AuditLogger = dedicated
			return
		}
		c.Logger.Error(context.Background(), "Failed to initialize dedicated audit logger, falling back to main logger",
			zap.Error(err),
			zap.String("path", cfg.Path),
		)
	}
	c.AuditLogger = observability.NewAuditLogger(c.Logger, c.Store)
}

// initNotifier builds the fan-out dispatcher. The log channel is always on.
func (c *Container) initNotifier(ctx context.Context) error {
	channels := []notify.Channel{notify.NewLogNotifier(c.Logger)}

	if c.Config.Redis.Enabled {
		client, err := c.GetRedisClient()
		if err != nil {
			if c.Config.Server.Env == "production" {
				return fmt.Errorf("redis notifications enabled but unavailable: %w", err)
			}
			c.Logger.Warn(ctx, "Redis connection failed, notifications will not be published to redis",
				zap.Error(err),
			)
		} else {
			channels = append(channels, notify.NewRedisNotifier(client, c.Config.Notify.Channel))
		}
	}

	if ps := c.Config.Notify.PubSub; ps.Enabled {
		notifier, err := notify.NewPubSubNotifier(ctx, ps.ProjectID, ps.Topic)
		if err != nil {
			return fmt.Errorf("pubsub notifier: %w", err)
		}
		c.pubsub = notifier
		channels = append(channels, notifier)
	}

	if smtp := c.Config.Notify.SMTP; smtp.Enabled {
		sender := notify.NewSMTPSender(smtp.Host, smtp.Port, smtp.Username, smtp.Password)
		channels = append(channels, notify.NewEmailNotifier(sender, smtp.From, notify.StoreDirectory{
			Employees: c.Store,
			Tenants:   c.Store,
		}))
	}

	c.Notifier = notify.NewDispatcher(c.Metrics, channels...)
	c.Logger.Info(ctx, "Notification channels configured", zap.Strings("channels", c.Notifier.Channels()))
	return nil
}

const (
	redisDialTimeout = 5 * time.Second
	redisIOTimeout   = 3 * time.Second
)

// GetRedisClient connects on first use. A failed ping leaves no client
// behind, so a later call tries again.
func (c *Container) GetRedisClient() (*redis.Client, error) {
	if client := c.currentRedis(); client != nil {
		return client, nil
	}

	c.redisMu.Lock()
	defer c.redisMu.Unlock()
	if c.redisClient != nil {
		return c.redisClient, nil
	}

	rc := c.Config.Redis
	client := redis.NewClient(&redis.Options{
		Addr:            net.JoinHostPort(rc.Host, rc.Port),
		Password:        rc.Password,
		DB:              rc.DB,
		DialTimeout:     redisDialTimeout,
		ReadTimeout:     redisIOTimeout,
		WriteTimeout:    redisIOTimeout,
		PoolSize:        rc.PoolSize,
		MinIdleConns:    rc.MinIdleConns,
		MaxRetries:      rc.MaxRetries,
		ConnMaxLifetime: rc.ConnMaxLifetime,
	})

	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", net.JoinHostPort(rc.Host, rc.Port), err)
	}

	c.redisClient = client
	return client, nil
}

func (c *Container) currentRedis() *redis.Client {
	c.redisMu.RLock()
	defer c.redisMu.RUnlock()
	return c.redisClient
}

// Close releases the audit file, the notifier clients and the connection
// pools. Each is closed at most once and failures are only logged.
func (c *Container) Close() {
	c.redisMu.Lock()
	defer c.redisMu.Unlock()

	closers := []struct {
		name  string
		close func() error
	}{
		{"audit logger", func() error { return closeIf(c.AuditLogger != nil, func() error { return c.AuditLogger.Close() }) }},
		{"pubsub", func() error { return closeIf(c.pubsub != nil, func() error { return c.pubsub.Close() }) }},
		{"database", func() error { return closeIf(c.DB != nil, func() error { return c.DB.Close() }) }},
		{"redis", func() error { return closeIf(c.redisClient != nil, func() error { return c.redisClient.Close() }) }},
	}
	for _, cl := range closers {
		if err := cl.close(); err != nil {
			c.Logger.Error(context.Background(), "Close failed", zap.String("component", cl.name), zap.Error(err))
		}
	}
	c.pubsub, c.DB, c.redisClient = nil, nil, nil
}

func closeIf(ok bool, close func() error) error {
	if !ok {
		return nil
	}
	return close()
}
