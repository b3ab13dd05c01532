package sdk

import (
	"errors"
	"fmt"
)

// Sentinel errors mapped from API error codes.
var (
	// ErrNotFound signals a missing document.
	ErrNotFound = errors.New("sdk: document not found")
	// ErrUnauthorized signals a missing or invalid API key.
	ErrUnauthorized = errors.New("sdk: unauthorized")
	// ErrRateLimited signals a provider rate limit.
	ErrRateLimited = errors.New("sdk: rate limited")
	// ErrQuotaExceeded signals an exhausted embedding token budget.
	ErrQuotaExceeded = errors.New("sdk: embedding quota exceeded")
)

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sdk: api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// Unwrap maps well-known error codes onto sentinels so callers can use
// errors.Is without inspecting codes.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "document_not_found":
		return ErrNotFound
	case "unauthorized":
		return ErrUnauthorized
	case "rate_limited":
		return ErrRateLimited
	case "embedding_quota_exceeded":
		return ErrQuotaExceeded
	default:
		return nil
	}
}
