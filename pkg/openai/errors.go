package openai

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// APIError is an error response returned by the API.
type APIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    any    `json:"code,omitempty"`

	// StatusCode is the HTTP status of the response. It is not part of the
	// error body.
	StatusCode int `json:"-"`
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("openai: %s (%d %s)", e.Message, e.StatusCode, e.Type)
	}
	return fmt.Sprintf("openai: %s (%d)", e.Message, e.StatusCode)
}

// ParseAPIError builds an APIError from a non-2xx response body. Bodies that
// are not the documented {"error": {...}} envelope become the message.
func ParseAPIError(status int, body []byte) *APIError {
	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil && envelope.Error.Message != "" {
		envelope.Error.StatusCode = status
		return envelope.Error
	}

	msg := string(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{Message: msg, StatusCode: status}
}
