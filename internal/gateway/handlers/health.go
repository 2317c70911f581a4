package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/render"
	"github.com/redis/go-redis/v9"

	"github.com/tinunadno/stm32-emulator/internal/gateway/repository"
)

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	keyDB     *redis.Client
	postgres  *repository.PostgresRepository
	startTime time.Time
}

// NewHealthHandler returns a health handler probing both stores.
func NewHealthHandler(keyDB *redis.Client, postgres *repository.PostgresRepository) *HealthHandler {
	return &HealthHandler{
		keyDB:     keyDB,
		postgres:  postgres,
		startTime: time.Now(),
	}
}

// Check is one dependency probe result.
type Check struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is the readiness probe body.
type HealthResponse struct {
	Status string           `json:"status"`
	Uptime string           `json:"uptime"`
	Checks map[string]Check `json:"checks"`
}

// Live handles GET /health/live.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "alive"})
}

// Ready handles GET /health/ready: both stores must answer.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]Check)
	healthy := true

	start := time.Now()
	if err := h.keyDB.Ping(r.Context()).Err(); err != nil {
		checks["keydb"] = Check{Status: "down", Error: err.Error()}
		healthy = false
	} else {
		checks["keydb"] = Check{Status: "up", Latency: time.Since(start).String()}
	}

	start = time.Now()
	if err := h.postgres.Pool().Ping(r.Context()); err != nil {
		checks["postgres"] = Check{Status: "down", Error: err.Error()}
		healthy = false
	} else {
		checks["postgres"] = Check{Status: "up", Latency: time.Since(start).String()}
	}

	resp := HealthResponse{
		Status: "ready",
		Uptime: time.Since(h.startTime).String(),
		Checks: checks,
	}
	if !healthy {
		resp.Status = "degraded"
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, resp)
}
