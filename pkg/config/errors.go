package config

import (
	"errors"
	"fmt"
)

// ErrConflictingDownloadTarget is returned when both a download folder and
// an explicit download target file are configured.
var ErrConflictingDownloadTarget = errors.New("download folder and download target are mutually exclusive")

// ConfigurationError reports an invalid or conflicting setting detected at
// build time.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
