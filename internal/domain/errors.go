package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrIndexNotFound signals a missing index.
	ErrIndexNotFound = errors.New("index not found")
	// ErrInvalidQuery signals a malformed query. Never retried or failed over.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrUnsupported signals a feature the provider cannot serve natively.
	ErrUnsupported = errors.New("unsupported feature")
	// ErrTimeout signals an operation that exceeded its deadline.
	ErrTimeout = errors.New("operation timed out")
	// ErrRateLimited signals a provider rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrAuthentication signals rejected credentials. Never retried or failed over.
	ErrAuthentication = errors.New("authentication failed")
	// ErrConnection signals an unreachable provider.
	ErrConnection = errors.New("connection failed")
	// ErrInternal signals a core invariant violation, such as an unknown
	// provider id or a concurrent resume of the same batch operation.
	ErrInternal = errors.New("internal error")
)

// UnsupportedError wraps ErrUnsupported with the feature the provider lacks.
type UnsupportedError struct {
	Feature Feature
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnsupported.Error(), e.Feature)
}

func (e *UnsupportedError) Unwrap() error { return ErrUnsupported }

// NewUnsupported creates an unsupported-feature error.
func NewUnsupported(feature Feature) error {
	return &UnsupportedError{Feature: feature}
}

// UnsupportedFeature extracts the missing feature from an error chain.
func UnsupportedFeature(err error) (Feature, bool) {
	var ue *UnsupportedError
	if errors.As(err, &ue) {
		return ue.Feature, true
	}
	return "", false
}

// RateLimitedError wraps ErrRateLimited with an optional retry-after hint.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s: retry after %s", ErrRateLimited.Error(), e.RetryAfter)
	}
	return ErrRateLimited.Error()
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// NewRateLimited creates a rate-limited error with a retry-after hint.
// A zero duration means the provider gave no hint.
func NewRateLimited(retryAfter time.Duration) error {
	return &RateLimitedError{RetryAfter: retryAfter}
}

// RetryAfter extracts the retry-after hint from an error chain.
func RetryAfter(err error) (time.Duration, bool) {
	var re *RateLimitedError
	if errors.As(err, &re) {
		return re.RetryAfter, true
	}
	return 0, false
}

// IsFailover reports whether a provider error should advance the gateway to
// the next candidate. These errors indicate the provider itself is unhealthy,
// not that the query was malformed for it.
func IsFailover(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrConnection) ||
		errors.Is(err, ErrInternal)
}
