package providers

import (
	"errors"
	"fmt"
	"time"

	"github.com/Ramsey-B/aster/pkg/models"
)

// ErrorKind classifies adapter failures. Only KindAuthenticationFailed is
// treated as refreshable by the orchestration layer.
type ErrorKind string

const (
	KindAuthenticationFailed ErrorKind = "authentication_failed"
	KindRateLimited          ErrorKind = "rate_limited"
	KindNetwork              ErrorKind = "network"
	KindDecoding             ErrorKind = "decoding"
	KindConfiguration        ErrorKind = "configuration"
	KindNotImplemented       ErrorKind = "not_implemented"
	KindTimeout              ErrorKind = "timeout"
)

// FetchError is the error type surfaced by provider adapters
type FetchError struct {
	Kind      ErrorKind
	Provider  models.Provider
	AccountID string
	Message   string

	// RetryAfter is an optional hint set on rate-limit errors
	RetryAfter time.Duration

	cause error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s [%s/%s]: %s", e.Kind, e.Provider, e.AccountID, e.Message)
	if e.cause != nil {
		return msg + ": " + e.cause.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error {
	return e.cause
}

// NewFetchError creates a FetchError for an account
func NewFetchError(kind ErrorKind, account models.Account, message string) *FetchError {
	return &FetchError{
		Kind:      kind,
		Provider:  account.Provider,
		AccountID: account.ID,
		Message:   message,
	}
}

// WrapFetchError creates a FetchError wrapping an underlying cause
func WrapFetchError(kind ErrorKind, account models.Account, message string, cause error) *FetchError {
	e := NewFetchError(kind, account, message)
	e.cause = cause
	return e
}

// WithRetryAfter attaches a retry-after hint
func (e *FetchError) WithRetryAfter(d time.Duration) *FetchError {
	e.RetryAfter = d
	return e
}

// KindOf returns the error kind of err, or "" if err is not a FetchError
func KindOf(err error) ErrorKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// IsAuthenticationFailed reports whether err is an authentication failure
func IsAuthenticationFailed(err error) bool {
	return KindOf(err) == KindAuthenticationFailed
}

// IsRateLimited reports whether err is a rate-limit failure
func IsRateLimited(err error) bool {
	return KindOf(err) == KindRateLimited
}

// IsConfiguration reports whether err is a configuration failure
func IsConfiguration(err error) bool {
	return KindOf(err) == KindConfiguration
}

// RetryAfterOf returns the retry-after hint carried by err, or zero
func RetryAfterOf(err error) time.Duration {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.RetryAfter
	}
	return 0
}
