package rabbitmq

import (
	"errors"
	"fmt"

	"github.com/ZebulonRouseFrantzich/embedmq/internal/binary"
	"github.com/ZebulonRouseFrantzich/embedmq/internal/readiness"
	"github.com/ZebulonRouseFrantzich/embedmq/pkg/command"
	"github.com/ZebulonRouseFrantzich/embedmq/pkg/config"
)

var (
	// ErrAlreadyStarted is returned by Start on a running instance.
	ErrAlreadyStarted = errors.New("broker already started")
	// ErrNotStarted is returned by control commands before Start succeeded.
	ErrNotStarted = errors.New("broker not started")
)

// IllegalStateError reports a lifecycle method called in the wrong state.
type IllegalStateError struct {
	Op    string
	State string
	Err   error
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("%s: illegal in state %s: %v", e.Op, e.State, e.Err)
}

func (e *IllegalStateError) Unwrap() error {
	return e.Err
}

// Error types raised by the lower layers, re-exported for errors.As.
type (
	ConfigurationError     = config.ConfigurationError
	DownloadError          = binary.DownloadError
	ExtractionError        = binary.ExtractionError
	DependencyMissingError = readiness.DependencyMissingError
	StartupTimeoutError    = readiness.StartupTimeoutError
	StartupFailedError     = readiness.StartupFailedError
	CommandTimeoutError    = command.CommandTimeoutError
	CommandFailedError     = command.CommandFailedError
)
