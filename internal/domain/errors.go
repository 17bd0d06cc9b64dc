package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure: no infrastructure dependency.

var (
	// Lookup errors
	ErrTaskNotFound       = errors.New("task not found")
	ErrSegmentNotFound    = errors.New("segment not found")
	ErrUnknownCorrelation = errors.New("no segment matches correlation id")

	// Validation errors (fail fast, no retry, no side effects)
	ErrInvalidInput    = errors.New("invalid input")
	ErrEmptySource     = errors.New("source file is empty")
	ErrInvalidSegment  = errors.New("segment time range is invalid")
	ErrTaskTerminal    = errors.New("task is already in a terminal state")
	ErrSegmentTerminal = errors.New("segment is already in a terminal state")

	// Provider errors (counted by the circuit breaker)
	ErrProviderUnavailable = errors.New("transcription provider unavailable")
	ErrProviderRateLimited = errors.New("transcription provider rate limit exceeded")
	ErrProviderTimeout     = errors.New("transcription provider call timed out")

	// Circuit breaker fast-fail, distinguishable from a genuine provider
	// error so operators can tell "dependency is down" from "call failed"
	ErrCircuitOpen = errors.New("circuit breaker is open")

	// Cleanup errors
	ErrCleanupExhausted = errors.New("cleanup retries exhausted")
)

// IsValidation reports whether err is a bad-input error: not retried and
// never counted against the provider's circuit breaker.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrEmptySource) ||
		errors.Is(err, ErrInvalidSegment)
}

// IsExternal reports whether err represents a failed call to an external
// dependency. Timeouts count as external failures.
func IsExternal(err error) bool {
	return errors.Is(err, ErrProviderUnavailable) ||
		errors.Is(err, ErrProviderRateLimited) ||
		errors.Is(err, ErrProviderTimeout)
}
