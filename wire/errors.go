package wire

import "errors"

// Sentinel errors returned by the codec.
var (
	// ErrMalformedMessage indicates a field could not be decoded: wrong
	// field kind, a read past the last field, a non-numeric integer token,
	// or a truncated string.
	ErrMalformedMessage = errors.New("wire: malformed message")

	// ErrOversizedFrame indicates a payload too large for the 2-byte
	// length prefix.
	ErrOversizedFrame = errors.New("wire: frame exceeds maximum size")
)
