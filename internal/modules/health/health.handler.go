package health

import (
	"context"
	"database/sql"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/waqasmani/attendance-scheduler/internal/shared/utils"
	"golang.org/x/sync/errgroup"
)

const (
	statusOK    = "ok"
	statusError = "error"

	probeTimeout = 2 * time.Second
	version      = "1.0.0"
)

// Pinger is satisfied by every record store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	store   Pinger
	db      *sql.DB
	redis   redis.Cmdable
	started time.Time
}

// NewHandler builds the health handler. db is nil for the in-memory store
// and redis is nil when the redis notifier is disabled.
func NewHandler(store Pinger, db *sql.DB, rdb redis.Cmdable) *Handler {
	return &Handler{store: store, db: db, redis: rdb, started: time.Now()}
}

type HealthResponse struct {
	Status   string         `json:"status"`
	Version  string         `json:"version,omitempty"`
	Uptime   string         `json:"uptime,omitempty"`
	Database DatabaseHealth `json:"database"`
	Redis    string         `json:"redis,omitempty"`
	System   *SystemHealth  `json:"system,omitempty"`
}

type DatabaseHealth struct {
	Status          string `json:"status"`
	OpenConnections int    `json:"open_connections"`
	InUse           int    `json:"in_use"`
	Idle            int    `json:"idle"`
	MaxOpenConns    int    `json:"max_open_conns"`
}

type SystemHealth struct {
	NumGoroutine int    `json:"num_goroutine"`
	MemAllocMB   uint64 `json:"mem_alloc_mb"`
	NumCPU       int    `json:"num_cpu"`
}

// probes holds dependency states; redis is "" when not configured.
type probes struct {
	store string
	redis string
}

func (p probes) healthy() bool {
	return p.store == statusOK && p.redis != statusError
}

// probe pings the store and redis in parallel, each under its own timeout.
func (h *Handler) probe(ctx context.Context) probes {
	var p probes
	var g errgroup.Group

	g.Go(func() error {
		p.store = check(ctx, h.store.Ping)
		return nil
	})
	if h.redis != nil {
		g.Go(func() error {
			p.redis = check(ctx, func(ctx context.Context) error { return h.redis.Ping(ctx).Err() })
			return nil
		})
	}
	_ = g.Wait()
	return p
}

func check(ctx context.Context, ping func(context.Context) error) string {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := ping(ctx); err != nil {
		return statusError
	}
	return statusOK
}

// Health reports store, redis and process status. It always answers 200.
func (h *Handler) Health(c *gin.Context) {
	p := h.probe(c.Request.Context())

	resp := HealthResponse{
		Status:   "degraded",
		Version:  version,
		Uptime:   time.Since(h.started).Round(time.Second).String(),
		Database: h.databaseHealth(p.store),
		Redis:    p.redis,
		System:   systemHealth(),
	}
	if p.healthy() {
		resp.Status = statusOK
	}
	utils.Success(c, http.StatusOK, resp)
}

// Ready answers 503 until the record store (and redis, when enabled) respond.
func (h *Handler) Ready(c *gin.Context) {
	p := h.probe(c.Request.Context())

	resp := HealthResponse{
		Status:   "ready",
		Database: DatabaseHealth{Status: p.store},
		Redis:    p.redis,
	}
	code := http.StatusOK
	if !p.healthy() {
		resp.Status, code = "not ready", http.StatusServiceUnavailable
	}
	utils.Success(c, code, resp)
}

func (h *Handler) Alive(c *gin.Context) {
	utils.Success(c, http.StatusOK, gin.H{"status": "alive"})
}

func (h *Handler) databaseHealth(status string) DatabaseHealth {
	out := DatabaseHealth{Status: status}
	if h.db == nil {
		return out
	}
	stats := h.db.Stats()
	out.OpenConnections = stats.OpenConnections
	out.InUse = stats.InUse
	out.Idle = stats.Idle
	out.MaxOpenConns = stats.MaxOpenConnections
	return out
}

func systemHealth() *SystemHealth {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return &SystemHealth{
		NumGoroutine: runtime.NumGoroutine(),
		MemAllocMB:   m.Alloc >> 20,
		NumCPU:       runtime.NumCPU(),
	}
}
