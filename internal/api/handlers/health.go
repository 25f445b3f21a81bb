package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/alhassanaraouf/the360insights-sub001/internal/services"
	"github.com/alhassanaraouf/the360insights-sub001/pkg/database"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db             *database.DB
	redisClient    *redis.Client
	strategyClient *services.StrategyClient
	logger         *logrus.Logger
	startedAt      time.Time
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Service   string                 `json:"service"`
	Uptime    string                 `json:"uptime"`
	Checks    map[string]HealthCheck `json:"checks"`
}

// HealthCheck represents an individual health check
type HealthCheck struct {
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Latency   string    `json:"latency,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Ready     bool            `json:"ready"`
	Timestamp time.Time       `json:"timestamp"`
	Service   string          `json:"service"`
	Checks    map[string]bool `json:"checks"`
}

func NewHealthHandler(db *database.DB, redisClient *redis.Client, strategyClient *services.StrategyClient, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{
		db:             db,
		redisClient:    redisClient,
		strategyClient: strategyClient,
		logger:         logger,
		startedAt:      time.Now(),
	}
}

// GetHealth reports component-level health
func (h *HealthHandler) GetHealth(c *gin.Context) {
	checks := map[string]HealthCheck{
		"database": h.checkDatabase(),
		"redis":    h.checkRedis(c.Request.Context()),
		"strategy": h.checkStrategyClient(),
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, check := range checks {
		if check.Status == "unhealthy" {
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
			break
		}
		if check.Status == "degraded" {
			status = "degraded"
		}
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Service:   "g-ranking-service",
		Uptime:    time.Since(h.startedAt).Round(time.Second).String(),
		Checks:    checks,
	})
}

// GetReady reports whether the service can take traffic
func (h *HealthHandler) GetReady(c *gin.Context) {
	dbReady := h.checkDatabase().Status != "unhealthy"
	redisReady := h.checkRedis(c.Request.Context()).Status != "unhealthy"

	ready := dbReady && redisReady
	httpStatus := http.StatusOK
	if !ready {
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, ReadinessResponse{
		Ready:     ready,
		Timestamp: time.Now(),
		Service:   "g-ranking-service",
		Checks: map[string]bool{
			"database": dbReady,
			"redis":    redisReady,
		},
	})
}

func (h *HealthHandler) checkDatabase() HealthCheck {
	start := time.Now()
	check := HealthCheck{CheckedAt: start}

	if err := h.db.HealthCheck(); err != nil {
		check.Status = "unhealthy"
		check.Message = err.Error()
		return check
	}

	check.Status = "healthy"
	check.Latency = time.Since(start).String()
	return check
}

func (h *HealthHandler) checkRedis(ctx context.Context) HealthCheck {
	start := time.Now()
	check := HealthCheck{CheckedAt: start}

	if err := h.redisClient.Ping(ctx).Err(); err != nil {
		check.Status = "unhealthy"
		check.Message = err.Error()
		return check
	}

	check.Status = "healthy"
	check.Latency = time.Since(start).String()
	return check
}

// checkStrategyClient never reports unhealthy: the calculator has a full
// fallback path when the AI service is down.
func (h *HealthHandler) checkStrategyClient() HealthCheck {
	check := HealthCheck{CheckedAt: time.Now()}
	if h.strategyClient.IsHealthy() {
		check.Status = "healthy"
	} else {
		check.Status = "degraded"
		check.Message = "circuit breaker open, calculations use deterministic fallback"
	}
	return check
}
