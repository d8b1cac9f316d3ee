package turnstile

import "errors"

// Sentinel errors for common failure scenarios.
var (
	// Request-path errors
	ErrUnauthorized    = errors.New("turnstile: api key not authorized")
	ErrMethodRequired  = errors.New("turnstile: method is required")
	ErrMethodForbidden = errors.New("turnstile: method not allowed")

	// Admin errors
	ErrAdminForbidden = errors.New("turnstile: admin auth failed")
	ErrKeyExists      = errors.New("turnstile: key already exists")
	ErrKeyNotFound    = errors.New("turnstile: key does not exist")

	// Store errors
	ErrStoreUnavailable = errors.New("turnstile: store unavailable")
	ErrStoreClosed      = errors.New("turnstile: store is closed")

	// Lifecycle errors
	ErrNotStarted     = errors.New("turnstile: gateway not started")
	ErrAlreadyStarted = errors.New("turnstile: gateway already started")
)

// IsAuthError reports whether the error is a per-request authorization or
// validation failure, i.e. terminal for the request with no retry.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrMethodRequired) ||
		errors.Is(err, ErrMethodForbidden) ||
		errors.Is(err, ErrAdminForbidden)
}

// IsNotFound reports whether the error indicates a missing key.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrKeyNotFound)
}

// IsRetryable reports whether the error is temporary and the operation can
// be retried, typically on the next checkpoint cycle.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
