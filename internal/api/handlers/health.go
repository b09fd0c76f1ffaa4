package handlers

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
)

var startTime = time.Now()

// HealthChecker is satisfied by the Postgres and Redis connections.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// GenerationCounter reports background work in flight.
type GenerationCounter interface {
	ActiveGenerations() int
}

type HealthHandler struct {
	db          HealthChecker
	redis       HealthChecker
	generations GenerationCounter
}

type HealthResponse struct {
	Status            string            `json:"status"`
	Timestamp         time.Time         `json:"timestamp"`
	Services          map[string]string `json:"services"`
	Version           string            `json:"version"`
	Uptime            string            `json:"uptime"`
	ActiveGenerations int               `json:"active_generations"`
}

// NewHealthHandler creates a health handler. Any dependency may be nil.
func NewHealthHandler(db, redis HealthChecker, generations GenerationCounter) *HealthHandler {
	return &HealthHandler{
		db:          db,
		redis:       redis,
		generations: generations,
	}
}

// HealthCheck reports the status of every backing service. Redis only
// degrades the service since results can still be read from Postgres.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	services := map[string]string{
		"database": check(ctx, h.db),
		"redis":    check(ctx, h.redis),
	}

	status := "healthy"
	switch {
	case services["database"] != "healthy":
		status = "unhealthy"
	case services["redis"] != "healthy":
		status = "degraded"
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Services:  services,
		Version:   os.Getenv("APP_VERSION"),
		Uptime:    time.Since(startTime).String(),
	}
	if h.generations != nil {
		response.ActiveGenerations = h.generations.ActiveGenerations()
	}

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, response)
}

// ReadinessCheck succeeds only when the database is reachable.
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	if state := check(c.Request.Context(), h.db); state != "healthy" {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"ready":    false,
			"database": state,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

// LivenessCheck for container restarts
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func check(ctx context.Context, checker HealthChecker) string {
	if checker == nil {
		return "unhealthy: not configured"
	}
	if err := checker.HealthCheck(ctx); err != nil {
		return "unhealthy: " + err.Error()
	}
	return "healthy"
}
