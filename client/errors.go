package client

import "errors"

// Internal transport errors. These never cross the public boundary;
// operations translate them to Status codes before returning.
var (
	// ErrNotConnected indicates the session has no live connection.
	ErrNotConnected = errors.New("client: not connected to service")

	// ErrConnectionFailed indicates dialing or the service handshake failed.
	ErrConnectionFailed = errors.New("client: connection failed")

	// ErrClosed indicates the client has been closed.
	ErrClosed = errors.New("client: closed")
)
