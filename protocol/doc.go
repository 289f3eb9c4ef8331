// Package protocol encodes device operations into raw transmitter
// command strings.
//
// Each supported RF protocol contributes an encoder that turns a
// (model, parameters, operation) triple into the key:value command
// format the service hands to the transceiver, validating the
// protocol-specific parameters (house codes, unit numbers, switch code
// strings) on the way.
package protocol
