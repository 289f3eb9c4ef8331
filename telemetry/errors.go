package telemetry

import "errors"

// Sentinel errors for sink operations.
var (
	// ErrDisabled indicates telemetry is disabled in the configuration.
	ErrDisabled = errors.New("telemetry: disabled in configuration")

	// ErrConnectionFailed indicates the InfluxDB server could not be
	// reached.
	ErrConnectionFailed = errors.New("telemetry: connection failed")

	// ErrNotConnected indicates the sink has no server connection.
	ErrNotConnected = errors.New("telemetry: not connected")
)
