// Package syncerr defines the error kinds surfaced by sync cycles and
// the policy attached to each kind (retryability, process exit code).
package syncerr

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds. Callers match them with errors.Is; producers attach them
// with Wrap so the underlying driver error stays inspectable.
var (
	// ErrSourceUnavailable indicates the source store could not be reached.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrDestinationUnavailable indicates the destination store could not be reached.
	ErrDestinationUnavailable = errors.New("destination unavailable")

	// ErrWriteConflict indicates a concurrent writer held a conflicting lock.
	ErrWriteConflict = errors.New("write conflict")

	// ErrSchemaMismatch indicates an expected table or column is absent.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrConfiguration indicates invalid or incomplete configuration.
	ErrConfiguration = errors.New("configuration error")

	// ErrCyclicCascade indicates the cascade rule graph contains a cycle.
	ErrCyclicCascade = errors.New("cyclic cascade rule")

	// ErrWatermarkCommit indicates the watermark store write failed after a
	// successful destination write. Rows have been applied but the watermark
	// was not advanced; the next cycle re-fetches the same window and the
	// idempotent upsert re-applies it harmlessly.
	ErrWatermarkCommit = errors.New("watermark commit failure")
)

// Wrap attaches a kind to an underlying error. Both are matchable with
// errors.Is on the result.
func Wrap(kind, err error) error {
	if err == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// Retryable reports whether the error is transient and safe to retry.
// Failed cycles never mutate persisted state, so re-invoking a cycle
// after any of these is always safe.
func Retryable(err error) bool {
	return errors.Is(err, ErrSourceUnavailable) ||
		errors.Is(err, ErrDestinationUnavailable) ||
		errors.Is(err, ErrWriteConflict)
}

// Exit codes for the CLI.
const (
	ExitOK            = 0
	ExitFailure       = 1
	ExitConfiguration = 2
	ExitCyclicCascade = 3
)

// ExitCode maps an error onto the process exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrCyclicCascade):
		return ExitCyclicCascade
	case errors.Is(err, ErrConfiguration):
		return ExitConfiguration
	default:
		return ExitFailure
	}
}

// Canceled reports whether the error stems from context cancellation or
// an exceeded deadline.
func Canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
