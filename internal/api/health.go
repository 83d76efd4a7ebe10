package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Pinger checks a dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthInfo reports runtime details included in the health response.
type HealthInfo struct {
	Classifier   string
	LLMEnabled   bool
	LiveSessions func() int
	// TranscriptDropped counts transcript events lost to a full queue.
	TranscriptDropped func() int64
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	db      Pinger
	info    HealthInfo
	timeout time.Duration
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(db Pinger, info HealthInfo) *HealthHandler {
	return &HealthHandler{db: db, info: info, timeout: 5 * time.Second}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status":     "healthy",
		"checks":     checks,
		"classifier": h.info.Classifier,
		"llm":        h.info.LLMEnabled,
	}
	if h.info.LiveSessions != nil {
		status["sessions"] = h.info.LiveSessions()
	}
	if h.info.TranscriptDropped != nil {
		status["transcriptDropped"] = h.info.TranscriptDropped()
	}
	statusCode := http.StatusOK

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			slog.Error("Health check failed", "error", err)
			status["status"] = "degraded"
			checks["database"] = "unreachable"
			statusCode = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	JSON(w, statusCode, status)
}

// RegisterHealth registers the health check route. Plain liveness is served
// at /health by the heartbeat middleware.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/api/health", h.Health)
}
