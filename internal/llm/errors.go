package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies a backend failure so callers can branch on it
// without inspecting error text.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindInvalidCredential
	KindRateLimited
	KindOverloaded
	KindTimeout
	KindBadRequest
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidCredential:
		return "invalid_credential"
	case KindRateLimited:
		return "rate_limited"
	case KindOverloaded:
		return "overloaded"
	case KindTimeout:
		return "timeout"
	case KindBadRequest:
		return "bad_request"
	default:
		return "unknown"
	}
}

// Transient reports whether retrying later may succeed.
func (k ErrorKind) Transient() bool {
	return k == KindRateLimited || k == KindOverloaded || k == KindTimeout
}

// ProviderError is returned when a generation backend fails in a way the
// adapter recognized.
type ProviderError struct {
	Provider string
	Kind     ErrorKind
	Message  string
	Code     int // HTTP status code (401, 429, 500, etc.), 0 if none
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("%s: %d %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Classify maps an HTTP status code to an ErrorKind.
func Classify(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindInvalidCredential
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return KindTimeout
	case status == http.StatusInternalServerError,
		status == http.StatusBadGateway,
		status == http.StatusServiceUnavailable,
		status == 529:
		return KindOverloaded
	case status >= 400 && status < 500:
		return KindBadRequest
	default:
		return KindUnknown
	}
}

// KindOf extracts the ErrorKind carried by err. Deadline expiry is a
// timeout even when the adapter did not wrap it.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var pe *ProviderError
	if errors.As(err, &pe) && pe.Kind != KindUnknown {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}
