package handler

import (
	"net/http"

	"rastreio-bot/internal/model"
	"rastreio-bot/internal/service"
	"rastreio-bot/pkg/logger"
)

// IntegrationHandler receives checkout postbacks from sales platforms
type IntegrationHandler struct {
	orders *service.OrderService
	logger *logger.Logger
}

// NewIntegrationHandler creates a new integration handler
func NewIntegrationHandler(orders *service.OrderService, log *logger.Logger) *IntegrationHandler {
	return &IntegrationHandler{
		orders: orders,
		logger: log,
	}
}

// Postback handles POST /api/integracao/postback
func (h *IntegrationHandler) Postback(w http.ResponseWriter, r *http.Request) {
	var payload model.PostbackPayload
	if err := decodeJSON(w, r, &payload); err != nil {
		sendErrorResponse(w, "ERR_INVALID_PARAMETER", err.Error(), http.StatusBadRequest)
		return
	}

	order, err := h.orders.CreateFromPostback(r.Context(), payload)
	if err != nil {
		if _, status := mapError(err); status < http.StatusInternalServerError {
			h.logger.Warn("Postback rejected", "error", err)
		}
		sendServiceError(w, h.logger, err)
		return
	}
	sendSuccessResponse(w, http.StatusCreated, "Order received and created", map[string]int64{"pedidoId": order.ID})
}
