package response

import (
	"encoding/json"
	"net/http"
)

// Response is a standardized API response structure
type Response struct {
	Code    int    `json:"code"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// WriteJSON writes v as the JSON body with the given status
func WriteJSON(w http.ResponseWriter, statusCode int, v any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(v)
}

// Success writes a successful response with data
func Success(w http.ResponseWriter, statusCode int, message string, data any) {
	resp := Response{
		Code:    statusCode,
		Success: true,
		Message: message,
		Data:    data,
	}
	_ = WriteJSON(w, statusCode, resp)
}

// Error writes an error response
func Error(w http.ResponseWriter, statusCode int, message string, err error) {
	resp := Response{
		Code:    statusCode,
		Success: false,
		Message: message,
	}

	if err != nil {
		resp.Error = err.Error()
	}

	_ = WriteJSON(w, statusCode, resp)
}

// Fail writes an error response that carries a machine readable kind and
// code next to the human message, with optional data
func Fail(w http.ResponseWriter, statusCode int, kind, code, message string, data any) {
	_ = WriteJSON(w, statusCode, Response{
		Code:    statusCode,
		Success: false,
		Message: message,
		Error:   code,
		Kind:    kind,
		Data:    data,
	})
}
