package mqttpub

import "errors"

// Sentinel errors for publisher operations.
var (
	// ErrConnectionFailed indicates the broker connection could not be
	// established.
	ErrConnectionFailed = errors.New("mqttpub: connection failed")

	// ErrNotConnected indicates the publisher has no broker connection.
	ErrNotConnected = errors.New("mqttpub: not connected")

	// ErrPublishFailed indicates a publish did not complete.
	ErrPublishFailed = errors.New("mqttpub: publish failed")
)
