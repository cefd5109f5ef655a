package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	ErrRunStopped    = errors.New("crawl run has been stopped")
	ErrNoSession     = errors.New("no browser session available")
	ErrUnknownSource = errors.New("unknown source")
	ErrDetailTimeout = errors.New("detail fetch timed out")
)

// TransportError wraps session-launch and navigation infrastructure failures.
// It is fatal for the run: the orchestrator aborts remaining stages, while
// previously flushed batches stay committed.
type TransportError struct {
	URL       string
	Err       error
	Retryable bool
}

func (e *TransportError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("transport error for %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) IsRetryable() bool { return e.Retryable }

// ExtractionError wraps a missing or unreadable field on a detail page.
// It is isolated to one item: the record is kept with whatever fields were
// filled and an error flag, and contributes to the error count only.
type ExtractionError struct {
	URL   string
	Field string
	Err   error
}

func (e *ExtractionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("extraction error for %s (field=%q): %v", e.URL, e.Field, e.Err)
	}
	return fmt.Sprintf("extraction error for %s: %v", e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ConfigError wraps a malformed filter or source configuration. It fails
// fast at startup, before any run begins.
type ConfigError struct {
	File string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error (%s): %v", e.File, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ConflictError wraps a unique-constraint race on url between concurrent
// flushes. The loser's insert is converted into an update, retried once.
type ConflictError struct {
	URL string
	Err error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("persistence conflict for %s: %v", e.URL, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsExtraction reports whether err is (or wraps) an ExtractionError.
func IsExtraction(err error) bool {
	var ee *ExtractionError
	return errors.As(err, &ee)
}
