package binary

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedArchive is returned when the archive format is not recognized.
	ErrUnsupportedArchive = errors.New("unsupported archive format")
	// ErrLockHeld is returned when the cache lock could not be acquired.
	ErrLockHeld = errors.New("download lock is held by another process")
)

// DownloadError reports a failure fetching an artifact.
type DownloadError struct {
	URL  string
	Path string
	Err  error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s to %s: %v", e.URL, e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *DownloadError) Unwrap() error {
	return e.Err
}

// ExtractionError reports a failure unpacking an artifact.
type ExtractionError struct {
	Archive string
	Dest    string
	Err     error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s into %s: %v", e.Archive, e.Dest, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ExtractionError) Unwrap() error {
	return e.Err
}
