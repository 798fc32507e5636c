package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/waqasmani/attendance-scheduler/internal/config"
	"github.com/waqasmani/attendance-scheduler/internal/domain"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/observability"
	"github.com/waqasmani/attendance-scheduler/internal/infrastructure/store/memstore"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Env: "test", ShutdownTimeout: time.Second},
		Store:  config.StoreConfig{Driver: "memory"},
		JWT: config.JWTConfig{
			AccessSecret: "12345678901234567890123456789012",
			AccessExpiry: 15 * time.Minute,
		},
		CORS:      config.CORSConfig{AllowedOrigins: []string{"*"}},
		Metrics:   config.MetricsConfig{Enabled: true},
		Scheduler: config.SchedulerConfig{Enabled: true, ReferenceTimezone: "UTC", RolloverHour: 0},
		Sweep:     config.SweepConfig{Enabled: true, ReminderHour: 20, AutoCompleteHour: 0, Parallelism: 2},
	}
}

func newTestContainer(t *testing.T, cfg *config.Config) *Container {
	t.Helper()
	gin.SetMode(gin.TestMode)
	metrics := observability.NewMetricsWithConfig(observability.MetricsConfig{
		Namespace: "test",
		Registry:  prometheus.NewRegistry(),
	})
	c, err := NewContainer(context.Background(), cfg, nil, observability.NewNopLogger(), metrics)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func seed(t *testing.T, c *Container) {
	t.Helper()
	mem, ok := c.Store.(*memstore.Store)
	require.True(t, ok)
	mem.PutTenant(domain.Tenant{
		ID:           "tenant-1",
		Name:         "Acme",
		Timezone:     "UTC",
		WorkingDays:  []int{0, 1, 2, 3, 4, 5, 6},
		WorkStart:    "09:00",
		WorkEnd:      "17:00",
		GraceMinutes: 15,
		Active:       true,
	})
	mem.PutEmployee(domain.Employee{ID: "emp-1", TenantID: "tenant-1", Active: true})
}

func token(t *testing.T, c *Container, p domain.Principal) string {
	t.Helper()
	tok, err := c.JWTService.GenerateAccessToken(context.Background(), p)
	require.NoError(t, err)
	return "Bearer " + tok
}

func do(router *gin.Engine, method, path, auth string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSetupRouter_ConfigVariations(t *testing.T) {
	t.Run("Production Mode", func(t *testing.T) {
		cfg := testConfig()
		cfg.Server.Env = "production"
		router := SetupRouter(newTestContainer(t, cfg))
		assert.NotNil(t, router)
		gin.SetMode(gin.TestMode)
	})

	t.Run("Metrics Disabled", func(t *testing.T) {
		cfg := testConfig()
		cfg.Metrics.Enabled = false
		router := SetupRouter(newTestContainer(t, cfg))

		w := do(router, http.MethodGet, "/api/v1/metrics", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestRouter_HealthEndpoints(t *testing.T) {
	router := SetupRouter(newTestContainer(t, testConfig()))

	for _, path := range []string{"/api/v1/health", "/api/v1/ready", "/api/v1/alive"} {
		w := do(router, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestRouter_AttendanceAndCorrectionsFlow(t *testing.T) {
	c := newTestContainer(t, testConfig())
	seed(t, c)
	router := SetupRouter(c)
	employee := token(t, c, domain.EmployeePrincipal{EmployeeID: "emp-1", TenantID: "tenant-1"})
	admin := token(t, c, domain.AdminPrincipal{AdminID: "adm-1", TenantID: "tenant-1"})

	w := do(router, http.MethodPost, "/api/v1/attendance/check-in", employee, map[string]any{})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(router, http.MethodGet, "/api/v1/attendance/today", employee, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(router, http.MethodGet, "/api/v1/corrections/pending", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(router, http.MethodGet, "/api/v1/tenant/settings", admin, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(router, http.MethodPost, "/api/v1/attendance/check-in", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(router, http.MethodGet, "/api/v1/tenant/settings", employee, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_ConcurrentCheckIn(t *testing.T) {
	c := newTestContainer(t, testConfig())
	seed(t, c)
	router := SetupRouter(c)
	employee := token(t, c, domain.EmployeePrincipal{EmployeeID: "emp-1", TenantID: "tenant-1"})

	const numGoroutines = 10
	var wg sync.WaitGroup
	results := make([]int, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			results[index] = do(router, http.MethodPost, "/api/v1/attendance/check-in", employee, map[string]any{}).Code
		}(i)
	}
	wg.Wait()

	created := 0
	for i, code := range results {
		if code == http.StatusCreated {
			created++
			continue
		}
		assert.Equal(t, http.StatusConflict, code, "Request %d", i)
	}
	assert.Equal(t, 1, created, "Only one check-in per day should succeed")
}

func TestRouter_PunchRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, Requests: 1, Window: time.Minute}
	c := newTestContainer(t, cfg)
	seed(t, c)
	router := SetupRouter(c)
	employee := token(t, c, domain.EmployeePrincipal{EmployeeID: "emp-1", TenantID: "tenant-1"})

	w := do(router, http.MethodPost, "/api/v1/attendance/check-in", employee, map[string]any{})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = do(router, http.MethodPost, "/api/v1/attendance/check-out", employee, map[string]any{})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Reads are not limited.
	w = do(router, http.MethodGet, "/api/v1/attendance/today", employee, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_MetricsEndpoint(t *testing.T) {
	c := newTestContainer(t, testConfig())
	router := SetupRouter(c)

	do(router, http.MethodGet, "/api/v1/alive", "", nil)
	w := do(router, http.MethodGet, "/api/v1/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_http_requests_total")
}

func serve(router *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}
