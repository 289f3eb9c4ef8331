package statelog

import "errors"

// Sentinel errors for journal operations.
var (
	// ErrClosed indicates the journal has been closed.
	ErrClosed = errors.New("statelog: journal closed")

	// ErrInvalidRetention indicates a non-positive prune duration.
	ErrInvalidRetention = errors.New("statelog: retention must be positive")
)
