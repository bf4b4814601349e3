package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"rastreio-bot/internal/model"
	"rastreio-bot/internal/service"
	"rastreio-bot/pkg/logger"
)

const maxBodyBytes = 1 << 20

// sendSuccessResponse sends success response
func sendSuccessResponse(w http.ResponseWriter, statusCode int, message string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := model.APIResponse{
		Status:  "success",
		Message: message,
		Data:    data,
	}

	json.NewEncoder(w).Encode(response)
}

// sendErrorResponse sends error response
func sendErrorResponse(w http.ResponseWriter, code, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := model.APIResponse{
		Status:  "error",
		Message: message,
		Error: &model.APIError{
			Code:    code,
			Message: message,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// sendServiceError maps a service error to its HTTP status and code. Server
// side failures are logged; client mistakes are not.
func sendServiceError(w http.ResponseWriter, log *logger.Logger, err error) {
	code, status := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", "error", err, "error_code", code)
	}
	sendErrorResponse(w, code, err.Error(), status)
}

// mapError maps error to error code and HTTP status
func mapError(err error) (string, int) {
	var vErr *service.ValidationError

	switch {
	case errors.As(err, &vErr):
		return "ERR_VALIDATION", http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return "ERR_NOT_FOUND", http.StatusNotFound
	case errors.Is(err, service.ErrNoProfilePicture):
		return "ERR_NO_PROFILE_PICTURE", http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		return "ERR_DUPLICATE_PHONE", http.StatusConflict
	case errors.Is(err, service.ErrNotOnWhatsApp):
		return "ERR_DESTINATION_NOT_ON_WHATSAPP", http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrNotConnected):
		return "ERR_WHATSAPP_NOT_CONNECTED", http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return "ERR_TIMEOUT", http.StatusGatewayTimeout
	default:
		return "ERR_INTERNAL_SERVER", http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON body into dst
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// orderID parses the {id} path parameter
func orderID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid order id %q", chi.URLParam(r, "id"))
	}
	return id, nil
}
