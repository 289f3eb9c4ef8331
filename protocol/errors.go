package protocol

import "errors"

// Sentinel errors returned by encoders.
var (
	// ErrUnknownProtocol indicates no encoder is registered for the
	// protocol identifier.
	ErrUnknownProtocol = errors.New("protocol: unknown protocol")

	// ErrUnsupportedMethod indicates the protocol or model cannot
	// express the requested operation.
	ErrUnsupportedMethod = errors.New("protocol: method not supported")

	// ErrInvalidParameter indicates a missing or out-of-range device
	// parameter.
	ErrInvalidParameter = errors.New("protocol: invalid parameter")
)
