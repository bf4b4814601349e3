package handler

import (
	"net/http"

	"rastreio-bot/internal/model"
	"rastreio-bot/internal/service"
	"rastreio-bot/pkg/logger"
)

// OrderHandler handles the operator endpoints under /api/pedidos
type OrderHandler struct {
	orders *service.OrderService
	logger *logger.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(orders *service.OrderService, log *logger.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: log,
	}
}

// List handles GET /api/pedidos?busca=
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.List(r.Context(), r.URL.Query().Get("busca"))
	if err != nil {
		sendServiceError(w, h.logger, err)
		return
	}
	sendSuccessResponse(w, http.StatusOK, "Orders retrieved successfully", orders)
}

// Create handles POST /api/pedidos
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.NewOrder
	if err := decodeJSON(w, r, &req); err != nil {
		sendErrorResponse(w, "ERR_INVALID_PARAMETER", err.Error(), http.StatusBadRequest)
		return
	}

	order, err := h.orders.Create(r.Context(), req)
	if err != nil {
		sendServiceError(w, h.logger, err)
		return
	}
	sendSuccessResponse(w, http.StatusCreated, "Order created successfully", order)
}

// Update handles PUT /api/pedidos/{id}
func (h *OrderHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		sendErrorResponse(w, "ERR_INVALID_PARAMETER", err.Error(), http.StatusBadRequest)
		return
	}

	var req model.OrderUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		sendErrorResponse(w, "ERR_INVALID_PARAMETER", err.Error(), http.StatusBadRequest)
		return
	}

	order, err := h.orders.Update(r.Context(), id, req)
	if err != nil {
		sendServiceError(w, h.logger, err)
		return
	}
	sendSuccessResponse(w, http.StatusOK, "Order updated successfully", order)
}

// Delete handles DELETE /api/pedidos/{id}
func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		sendErrorResponse(w, "ERR_INVALID_PARAMETER", err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.orders.Delete(r.Context(), id); err != nil {
		sendServiceError(w, h.logger, err)
		return
	}
	sendSuccessResponse(w, http.StatusOK, "Order deleted successfully", nil)
}

// History handles GET /api/pedidos/{id}/historico
func (h *OrderHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		sendErrorResponse(w, "ERR_INVALID_PARAMETER", err.Error(), http.StatusBadRequest)
		return
	}

	entries, err := h.orders.History(r.Context(), id)
	if err != nil {
		sendServiceError(w, h.logger, err)
		return
	}
	sendSuccessResponse(w, http.StatusOK, "History retrieved successfully", entries)
}

// sendMessageRequest is the body of a manual send
type sendMessageRequest struct {
	Text string `json:"mensagem"`
}

// SendMessage handles POST /api/pedidos/{id}/enviar-mensagem
func (h *OrderHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		sendErrorResponse(w, "ERR_INVALID_PARAMETER", err.Error(), http.StatusBadRequest)
		return
	}

	var req sendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		sendErrorResponse(w, "ERR_INVALID_PARAMETER", err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.orders.SendManual(r.Context(), id, req.Text); err != nil {
		sendServiceError(w, h.logger, err)
		return
	}
	sendSuccessResponse(w, http.StatusOK, "Message sent successfully", nil)
}

// RefreshPicture handles POST /api/pedidos/{id}/atualizar-foto
func (h *OrderHandler) RefreshPicture(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		sendErrorResponse(w, "ERR_INVALID_PARAMETER", err.Error(), http.StatusBadRequest)
		return
	}

	url, err := h.orders.RefreshProfilePicture(r.Context(), id)
	if err != nil {
		sendServiceError(w, h.logger, err)
		return
	}
	sendSuccessResponse(w, http.StatusOK, "Profile picture updated successfully", map[string]string{"fotoUrl": url})
}

// MarkRead handles PUT /api/pedidos/{id}/marcar-como-lido
func (h *OrderHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := orderID(r)
	if err != nil {
		sendErrorResponse(w, "ERR_INVALID_PARAMETER", err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.orders.MarkRead(r.Context(), id); err != nil {
		sendServiceError(w, h.logger, err)
		return
	}
	sendSuccessResponse(w, http.StatusOK, "Messages marked as read", nil)
}
