package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"rastreio-bot/internal/model"
	"rastreio-bot/pkg/logger"
)

// AuthMiddleware provides API key authentication
type AuthMiddleware struct {
	apiKey string
	logger *logger.Logger
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(apiKey string, log *logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		apiKey: apiKey,
		logger: log,
	}
}

// Authenticate validates the API key from the X-API-Key header. Browsers
// cannot set headers on WebSocket upgrades, so the api_key query parameter
// is accepted too.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip authentication if API_KEY is not configured (local mode)
		if m.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}

		switch {
		case apiKey == "":
			m.reject(w, r, "Missing API key")
		case subtle.ConstantTimeCompare([]byte(apiKey), []byte(m.apiKey)) != 1:
			m.reject(w, r, "Invalid API key")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// reject logs the refused request and answers 401 with the JSON envelope
func (m *AuthMiddleware) reject(w http.ResponseWriter, r *http.Request, message string) {
	m.logger.Warn(message,
		"path", r.URL.Path,
		"method", r.Method,
		"remote_addr", r.RemoteAddr,
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(model.APIResponse{
		Status:  "error",
		Message: message,
		Error: &model.APIError{
			Code:    "ERR_UNAUTHORIZED",
			Message: message,
		},
	})
}
