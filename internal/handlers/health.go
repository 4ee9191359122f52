package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger is anything the health check can probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Service    string            `json:"service"`
	Components map[string]string `json:"components"`
}

// HealthHandler reports the store and the oracle. The store is critical;
// an unreachable oracle only degrades play to fallback replies.
type HealthHandler struct {
	store  Pinger
	oracle Pinger
	logger *slog.Logger
}

func NewHealthHandler(store, oracle Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{store: store, oracle: oracle, logger: logger}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.logger.Debug("Health check requested",
		"method", r.Method,
		"path", r.URL.Path,
		"remote_addr", r.RemoteAddr)

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := make(map[string]string)
	overallStatus := "healthy"
	statusCode := http.StatusOK

	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			h.logger.Warn("Store health check failed", "error", err)
			components["store"] = "unhealthy"
			overallStatus = "unhealthy"
			statusCode = http.StatusServiceUnavailable
		} else {
			components["store"] = "healthy"
		}
	}

	if h.oracle != nil {
		if err := h.oracle.Ping(ctx); err != nil {
			h.logger.Warn("Oracle health check failed", "error", err)
			components["oracle"] = "unhealthy"
			if overallStatus == "healthy" {
				overallStatus = "degraded"
			}
		} else {
			components["oracle"] = "healthy"
		}
	}

	writeJSON(w, h.logger, statusCode, HealthResponse{
		Status:     overallStatus,
		Timestamp:  time.Now(),
		Service:    "questline",
		Components: components,
	})
}
