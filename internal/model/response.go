package model

// APIResponse is the envelope every HTTP endpoint answers with
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError represents error response details
type APIError struct {
	Code    string `json:"error_code"`
	Message string `json:"message"`
}
