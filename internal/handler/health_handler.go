package handler

import (
	"context"
	"net/http"
	"time"

	"gotrip-be/internal/container"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	container *container.Container
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(container *container.Container) *HealthHandler {
	return &HealthHandler{
		container: container,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Service   string    `json:"service"`
}

// ReadyResponse represents the readiness check response
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Database  DatabasePoolStats `json:"database_pool"`
}

// DatabasePoolStats reports connection pool usage
type DatabasePoolStats struct {
	TotalConns int32 `json:"total_conns"`
	IdleConns  int32 `json:"idle_conns"`
	MaxConns   int32 `json:"max_conns"`
}

// Check handles GET /health
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	logger.Debug("Health check requested")

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Version:   "1.0.0",
		Service:   "gotrip-be",
	}

	writeJSON(w, http.StatusOK, response)
}

// Ready handles GET /health/ready. The service is ready when the database
// answers; a missing or unhealthy Redis only degrades it, votes still work
// through polling.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	logger := h.container.GetLogger()

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	status := "ready"
	statusCode := http.StatusOK

	db := h.container.GetDatabase()
	if err := db.Health(ctx); err != nil {
		logger.WithError(err).Error("Database health check failed")
		checks["database"] = "unhealthy"
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "healthy"
	}

	if redisClient := h.container.GetRedisClient(); redisClient != nil {
		if err := redisClient.Health(ctx); err != nil {
			logger.WithError(err).Warn("Redis health check failed")
			checks["redis"] = "unhealthy"
			if status == "ready" {
				status = "degraded"
			}
		} else {
			checks["redis"] = "healthy"
		}
	} else {
		checks["redis"] = "disabled"
	}

	stat := db.Stat()
	response := ReadyResponse{
		Status:    status,
		Timestamp: time.Now().UTC(),
		Checks:    checks,
		Database: DatabasePoolStats{
			TotalConns: stat.TotalConns(),
			IdleConns:  stat.IdleConns(),
			MaxConns:   stat.MaxConns(),
		},
	}

	writeJSON(w, statusCode, response)
}
