// Package wire implements the message codec spoken between rfstick clients
// and the rfstickd service.
//
// A message is an ordered sequence of typed fields (integer, boolean,
// string). The sender appends fields in order; the receiver consumes them
// strictly in the same order through a read cursor. Reading a field of the
// wrong kind, or reading past the last field, fails with
// ErrMalformedMessage rather than returning a zero value.
//
// On the socket each message payload is wrapped in a frame: a 2-byte
// big-endian length followed by the payload bytes. Inside the payload the
// fields are self-delimiting, so string fields round-trip arbitrary byte
// sequences.
package wire
