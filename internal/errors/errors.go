// Package errors classifies the failures this engine can produce so the
// rest of the system can make retry, breaker, and DLQ decisions without
// inspecting error strings.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// Kind is one of the classification buckets from the fetch error taxonomy.
type Kind string

const (
	// KindTransport covers DNS, connect, TLS, and read-timeout failures.
	KindTransport Kind = "transport"
	// KindServerTransient covers 5xx and configured retryable status codes.
	KindServerTransient Kind = "server_transient"
	// KindClientPermanent covers 4xx responses not configured as retryable.
	KindClientPermanent Kind = "client_permanent"
	// KindThrottled covers 429 responses.
	KindThrottled Kind = "throttled"
	// KindParse covers a response body that could not be decoded against a
	// configured JSON pointer.
	KindParse Kind = "parse"
	// KindConfig covers invalid or missing configuration; fatal at startup.
	KindConfig Kind = "config"
	// KindBreakerOpen is synthetic: no HTTP call was issued.
	KindBreakerOpen Kind = "breaker_open"
)

// Retryable reports whether a classified error is eligible for retry.
func (k Kind) Retryable() bool {
	switch k {
	case KindTransport, KindServerTransient, KindThrottled:
		return true
	default:
		return false
	}
}

// FetchError is a structured, classified failure from one endpoint step.
type FetchError struct {
	EndpointID string
	Kind       Kind
	Status     int
	Attempts   int
	Duration   time.Duration
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("endpoint %s: %s (status=%d attempts=%d): %v", e.EndpointID, e.Kind, e.Status, e.Attempts, e.Err)
	}
	return fmt.Sprintf("endpoint %s: %s (status=%d attempts=%d)", e.EndpointID, e.Kind, e.Status, e.Attempts)
}

// Unwrap returns the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// New constructs a classified FetchError.
func New(endpointID string, kind Kind, status int, err error) *FetchError {
	return &FetchError{EndpointID: endpointID, Kind: kind, Status: status, Err: err}
}

// WithAttempts records the number of attempts made before this error was
// returned as terminal.
func (e *FetchError) WithAttempts(n int) *FetchError {
	e.Attempts = n
	return e
}

// WithDuration records the total wall-clock spent across all attempts.
func (e *FetchError) WithDuration(d time.Duration) *FetchError {
	e.Duration = d
	return e
}

// ConfigError aggregates every validation failure found in a startup
// configuration so operators see the full list instead of one at a time.
type ConfigError struct {
	Violations []string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if len(e.Violations) == 1 {
		return fmt.Sprintf("invalid configuration: %s", e.Violations[0])
	}
	return fmt.Sprintf("invalid configuration (%d issues): %v", len(e.Violations), e.Violations)
}

// Add appends a violation message.
func (e *ConfigError) Add(format string, args ...interface{}) {
	e.Violations = append(e.Violations, fmt.Sprintf(format, args...))
}

// HasErrors reports whether any violation has been recorded.
func (e *ConfigError) HasErrors() bool {
	return len(e.Violations) > 0
}

// ErrOrNil returns e as an error if it has violations, otherwise nil.
func (e *ConfigError) ErrOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// GetFetchError extracts a *FetchError from an error chain, if present.
func GetFetchError(err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return nil
}

// IsRetryable reports whether err, if classified, is retryable.
func IsRetryable(err error) bool {
	fe := GetFetchError(err)
	return fe != nil && fe.Kind.Retryable()
}
