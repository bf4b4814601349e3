package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"rastreio-bot/internal/config"
	"rastreio-bot/internal/realtime"
	"rastreio-bot/internal/service"
	"rastreio-bot/pkg/logger"
)

// OrderCounter reports how many orders are stored
type OrderCounter interface {
	Count(ctx context.Context) (int64, error)
}

// HealthHandler handles health check requests
type HealthHandler struct {
	session   *service.SessionManager
	hub       *realtime.Hub
	orders    OrderCounter
	config    *config.Config
	logger    *logger.Logger
	startTime time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(session *service.SessionManager, hub *realtime.Hub, orders OrderCounter, cfg *config.Config, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		session:   session,
		hub:       hub,
		orders:    orders,
		config:    cfg,
		logger:    log,
		startTime: time.Now(),
	}
}

// CheckHealth handles GET /health
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)

	status := "healthy"
	httpStatus := http.StatusOK
	orderCount, err := h.orders.Count(r.Context())
	if err != nil {
		h.logger.Error("Health check failed to reach the order store", "error", err)
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := map[string]interface{}{
		"status":   status,
		"orders":   orderCount,
		"whatsapp": h.session.Snapshot(),
		"realtime": map[string]interface{}{
			"observers": h.hub.Count(),
		},
		"tracking": map[string]interface{}{
			"configured":    h.config.Tracking.APIKey != "",
			"poll_interval": h.config.Tracking.PollInterval.String(),
		},
		"dispatch_interval": h.config.Dispatch.Interval.String(),
		"uptime":            uptime.String(),
		"timestamp":         time.Now().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(response)
}
