package syncerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestWrapPreservesBothErrors(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(ErrSourceUnavailable, cause)

	if !errors.Is(err, ErrSourceUnavailable) {
		t.Error("wrapped error should match its kind")
	}
	if !errors.Is(err, cause) {
		t.Error("wrapped error should match its cause")
	}
}

func TestWrapNilCause(t *testing.T) {
	err := Wrap(ErrSchemaMismatch, nil)
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Error("Wrap with nil cause should still match the kind")
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"source unavailable", ErrSourceUnavailable, true},
		{"destination unavailable", ErrDestinationUnavailable, true},
		{"write conflict", Wrap(ErrWriteConflict, errors.New("deadlock")), true},
		{"schema mismatch", ErrSchemaMismatch, false},
		{"configuration", ErrConfiguration, false},
		{"cyclic cascade", ErrCyclicCascade, false},
		{"watermark commit", ErrWatermarkCommit, false},
		{"plain error", errors.New("boom"), false},
		{"wrapped deep", fmt.Errorf("cycle failed: %w", Wrap(ErrSourceUnavailable, errors.New("timeout"))), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"generic", errors.New("boom"), ExitFailure},
		{"write conflict", ErrWriteConflict, ExitFailure},
		{"configuration", Wrap(ErrConfiguration, errors.New("missing host")), ExitConfiguration},
		{"cyclic cascade", fmt.Errorf("registering rules: %w", ErrCyclicCascade), ExitCyclicCascade},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
