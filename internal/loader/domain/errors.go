package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Retry policy is decided by kind, never by catching everything.
var (
	// ErrConfig marks fatal configuration problems: unknown list format, missing
	// manifest, missing environment. Never retried.
	ErrConfig = errors.New("configuration error")

	// ErrAPI marks a failed backend or list-source call: non-success status,
	// transport failure or timeout. Retried.
	ErrAPI = errors.New("api error")

	// ErrParse marks malformed list or response content. Retried like ErrAPI.
	ErrParse = errors.New("parse error")
)

// ErrorKind enumerates the error taxonomy.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	KindConfig
	KindAPI
	KindParse
)

// String returns a stable string representation of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindAPI:
		return "api"
	case KindParse:
		return "parse"
	default:
		return "unknown"
	}
}

// KindOf classifies err. Configuration errors win over the other kinds.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrConfig):
		return KindConfig
	case errors.Is(err, ErrAPI):
		return KindAPI
	case errors.Is(err, ErrParse):
		return KindParse
	default:
		return KindUnknown
	}
}

// Retryable reports whether a sync attempt that failed with err may be retried.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return KindOf(err) != KindConfig
}

// ConfigError builds an ErrConfig-kind error.
func ConfigError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(format, args...))
}

// ParseError builds an ErrParse-kind error wrapping cause.
func ParseError(what string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrParse, what)
	}
	return fmt.Errorf("%w: %s: %w", ErrParse, what, cause)
}

// APIError describes a failed backend call. StatusCode is 0 for transport failures.
type APIError struct {
	Op         string
	Method     string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, ": api status %d", e.StatusCode)
		if body := strings.TrimSpace(e.Body); body != "" {
			fmt.Fprintf(&b, ", body: %s", body)
		}
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes both the kind and the underlying cause.
func (e *APIError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAPI}
	}
	return []error{ErrAPI, e.Err}
}
