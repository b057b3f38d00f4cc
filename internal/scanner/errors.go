package scanner

import (
	"errors"
	"fmt"
	"time"
)

// ErrTimeout matches any TimeoutError via errors.Is.
var ErrTimeout = errors.New("scan timed out")

// ProcessError reports a scanner process that could not start or exited non-zero.
type ProcessError struct {
	Target   string
	ExitCode int
	Stderr   string
}

func (e *ProcessError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("scanner failed for %s with exit code %d", e.Target, e.ExitCode)
	}
	return fmt.Sprintf("scanner failed for %s with exit code %d: %s", e.Target, e.ExitCode, e.Stderr)
}

// ParseError reports scanner output that is not the expected JSON document.
type ParseError struct {
	Raw   string
	Cause error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse scanner output: %v (%d bytes captured)", e.Cause, len(e.Raw))
}

func (e *ParseError) Unwrap() error { return e.Cause }

// TimeoutError reports a scan that exceeded the adapter's own bound.
type TimeoutError struct {
	Target string
	After  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("scan of %s did not finish within %s", e.Target, e.After)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// retryable reports whether another attempt could plausibly succeed.
func retryable(err error) bool {
	var (
		pe *ProcessError
		te *TimeoutError
	)
	return errors.As(err, &pe) || errors.As(err, &te)
}
