package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Speech provider failure kinds. Provider adapters wrap one of these in a
// *ProviderError so callers can branch with errors.Is.
var (
	ErrAuth        = errors.New("authentication failed")
	ErrRateLimit   = errors.New("rate limit exceeded")
	ErrFormat      = errors.New("unsupported audio format")
	ErrProvider    = errors.New("provider error")
	ErrEmptyResult = errors.New("no speech detected")
)

// ProviderError describes a failed call to a speech provider
type ProviderError struct {
	Kind       error
	Provider   string
	StatusCode int
	Detail     string
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status code %d)", msg, e.StatusCode)
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Kind
}

// NewProviderError builds a ProviderError from an HTTP status code
func NewProviderError(provider string, statusCode int, detail string) *ProviderError {
	return &ProviderError{
		Kind:       KindForStatus(statusCode),
		Provider:   provider,
		StatusCode: statusCode,
		Detail:     detail,
	}
}

// KindForStatus maps an HTTP status code to a failure kind
func KindForStatus(statusCode int) error {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuth
	case http.StatusTooManyRequests:
		return ErrRateLimit
	case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
		return ErrFormat
	default:
		return ErrProvider
	}
}

// BackendError is a non-2xx answer from the assistant backend
type BackendError struct {
	StatusCode int
	Body       string
}

func (e *BackendError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("assistant backend responded with status %d", e.StatusCode)
	}
	return fmt.Sprintf("assistant backend responded with status %d: %s", e.StatusCode, e.Body)
}
