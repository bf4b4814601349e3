package handler

import (
	"context"
	"net/http"

	"rastreio-bot/internal/service"
	"rastreio-bot/pkg/logger"
)

// SessionHandler handles the WhatsApp session endpoints
type SessionHandler struct {
	session *service.SessionManager
	baseCtx context.Context
	logger  *logger.Logger
}

// NewSessionHandler creates a new session handler. Connect attempts started
// over HTTP run under baseCtx so they outlive the request.
func NewSessionHandler(ctx context.Context, session *service.SessionManager, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		session: session,
		baseCtx: ctx,
		logger:  log,
	}
}

// Status handles GET /api/whatsapp/status
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	sendSuccessResponse(w, http.StatusOK, "Session status retrieved", h.session.Snapshot())
}

// Connect handles POST /api/whatsapp/connect. Progress is reported through
// status_update events.
func (h *SessionHandler) Connect(w http.ResponseWriter, r *http.Request) {
	go func() {
		if err := h.session.RequestConnect(h.baseCtx); err != nil {
			h.logger.Error("Connect request failed", "error", err)
		}
	}()
	sendSuccessResponse(w, http.StatusAccepted, "Connection started", nil)
}

// Disconnect handles POST /api/whatsapp/disconnect
func (h *SessionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.session.RequestDisconnect(r.Context()); err != nil {
		sendServiceError(w, h.logger, err)
		return
	}
	sendSuccessResponse(w, http.StatusOK, "WhatsApp disconnected", h.session.Snapshot())
}
