package coursechat

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors matched by APIError. Use errors.Is() to check.
var (
	ErrBadRequest          = errors.New("bad request")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrNotFound            = errors.New("not found")
	ErrAlreadyExists       = errors.New("already exists")
	ErrQuotaExceeded       = errors.New("token quota exceeded")
	ErrProviderUnavailable = errors.New("llm provider unavailable")
	ErrNoDocuments         = errors.New("no course documents available")

	// ErrIncompleteStream is returned when a chat stream ends without a
	// finish or error event.
	ErrIncompleteStream = errors.New("chat stream ended unexpectedly")
)

// APIError is a non-2xx response of the coursechat API.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("coursechat: %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("coursechat: %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the response to a sentinel error.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "document_already_exists":
		return ErrAlreadyExists
	case "no_documents":
		return ErrNoDocuments
	case "token_quota_exceeded":
		return ErrQuotaExceeded
	case "llm_provider_error":
		return ErrProviderUnavailable
	}
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrAlreadyExists
	case http.StatusPaymentRequired:
		return ErrQuotaExceeded
	case http.StatusBadGateway:
		return ErrProviderUnavailable
	}
	return nil
}

// StreamError is an error event received after the chat stream started.
type StreamError struct {
	MessageID string
	Text      string
}

func (e *StreamError) Error() string {
	return "coursechat: stream " + e.MessageID + " failed: " + e.Text
}
