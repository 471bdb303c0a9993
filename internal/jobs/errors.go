package jobs

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownFormat is returned for an unsupported snapshot format.
	ErrUnknownFormat = errors.New("unknown output format")
	// ErrMasterLocked is returned when another run holds the master lock.
	ErrMasterLocked = errors.New("master file is locked by another run")
)

// FetchError reports an HTTP or network failure after retries were exhausted
// or a non-retryable response was received.
type FetchError struct {
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: status %d after %d attempt(s): %v", e.URL, e.StatusCode, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch %s: failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// MasterLoadError reports an existing master file that cannot be read back.
type MasterLoadError struct {
	Path string
	Err  error
}

func (e *MasterLoadError) Error() string {
	return fmt.Sprintf("load master %s: %v", e.Path, e.Err)
}

func (e *MasterLoadError) Unwrap() error { return e.Err }

// WriteError reports a filesystem or blob-store failure while persisting output.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
