package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/pulseboard/device-service/internal/client"
	"github.com/pulseboard/device-service/internal/config"
	"github.com/pulseboard/device-service/internal/util/logger"
)

var startTime = time.Now()

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status      HealthStatus           `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Version     string                 `json:"version,omitempty"`
	Environment string                 `json:"environment"`
	Uptime      string                 `json:"uptime"`
	Checks      map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult represents individual health check results
type CheckResult struct {
	Status    HealthStatus `json:"status"`
	Message   string       `json:"message,omitempty"`
	Error     string       `json:"error,omitempty"`
	Latency   string       `json:"latency,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// HealthChecker interface for implementing health checks
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// HealthHandler handles health check requests
type HealthHandler struct {
	config   *config.Config
	checkers []HealthChecker
	version  string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(cfg *config.Config, version string, db *sql.DB, rdb *client.RedisClient) *HealthHandler {
	h := &HealthHandler{
		config:  cfg,
		version: version,
	}

	if db != nil {
		h.checkers = append(h.checkers, &databaseHealthChecker{db: db})
	}
	if rdb != nil {
		h.checkers = append(h.checkers, &redisHealthChecker{rdb: rdb})
	}

	logger.Info("Health handler initialized with %d checkers", len(h.checkers))
	return h
}

// ServeHTTP handles /health endpoint
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:      HealthStatusHealthy,
		Timestamp:   time.Now().UTC(),
		Version:     h.version,
		Environment: h.config.Env,
		Uptime:      time.Since(startTime).String(),
		Checks:      make(map[string]CheckResult),
	}

	overallStatus := HealthStatusHealthy
	for _, checker := range h.checkers {
		checkStart := time.Now()
		result := checker.Check(ctx)
		result.Latency = time.Since(checkStart).String()
		result.Timestamp = time.Now().UTC()
		response.Checks[checker.Name()] = result

		switch result.Status {
		case HealthStatusUnhealthy:
			overallStatus = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if overallStatus != HealthStatusUnhealthy {
				overallStatus = HealthStatusDegraded
			}
		}
	}
	response.Status = overallStatus

	status := http.StatusOK
	if overallStatus == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

// ReadinessHandler handles /ready endpoint
func (h *HealthHandler) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	for _, checker := range h.checkers {
		if result := checker.Check(ctx); result.Status == HealthStatusUnhealthy {
			writeJSONError(w, http.StatusServiceUnavailable, "not ready: "+checker.Name())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// LivenessHandler handles /live endpoint
func (h *HealthHandler) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

type databaseHealthChecker struct {
	db *sql.DB
}

func (c *databaseHealthChecker) Name() string { return "database" }

func (c *databaseHealthChecker) Check(ctx context.Context) CheckResult {
	if err := c.db.PingContext(ctx); err != nil {
		return CheckResult{Status: HealthStatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: HealthStatusHealthy, Message: "database reachable"}
}

type redisHealthChecker struct {
	rdb *client.RedisClient
}

func (c *redisHealthChecker) Name() string { return "redis" }

func (c *redisHealthChecker) Check(ctx context.Context) CheckResult {
	if err := c.rdb.HealthCheck(ctx); err != nil {
		return CheckResult{Status: HealthStatusUnhealthy, Error: err.Error()}
	}
	return CheckResult{Status: HealthStatusHealthy, Message: "redis reachable"}
}
