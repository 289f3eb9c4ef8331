package protocol

import (
	"fmt"
	"strings"
)

// Operation codes, matching the public method bitmask values.
const (
	methodTurnOn  = 1
	methodTurnOff = 2
	methodBell    = 4
	methodDim     = 16
	methodLearn   = 32
)

// entry describes one registered protocol.
type entry struct {
	// params are the device parameters the encoder reads.
	params []string

	// encode produces the raw command string for one operation.
	encode func(model string, params map[string]string, method int, value string) (string, error)
}

// registry maps protocol identifiers to their encoders. Closed set;
// protocols are registered at init time only, so reads need no locking.
var registry = map[string]entry{
	"arctech": {
		params: []string{"house", "unit"},
		encode: encodeArctech,
	},
	"sartano": {
		params: []string{"code"},
		encode: encodeSartano,
	},
	// brateck transmitters speak the sartano encoding.
	"brateck": {
		params: []string{"code"},
		encode: encodeSartano,
	},
}

// Supported reports whether an encoder exists for the protocol.
func Supported(name string) bool {
	_, ok := registry[strings.ToLower(name)]
	return ok
}

// Parameters returns the device parameter names the protocol's encoder
// reads, nil for unknown protocols. The model is accepted for protocols
// whose parameter set varies by model; the current set does not.
func Parameters(protocol, _ string) []string {
	e, ok := registry[strings.ToLower(protocol)]
	if !ok {
		return nil
	}
	out := make([]string, len(e.params))
	copy(out, e.params)
	return out
}

// Encode produces the raw transmitter command for one operation.
//
// method is an operation bit from the public method mask; value carries
// the dim level for dim operations. Unknown protocols, operations the
// model cannot express, and missing or malformed parameters all fail.
func Encode(protocol, model string, params map[string]string, method int, value string) (string, error) {
	e, ok := registry[strings.ToLower(protocol)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProtocol, protocol)
	}
	return e.encode(strings.ToLower(model), params, method, value)
}

// methodName renders an operation code as its command token.
func methodName(method int) (string, error) {
	switch method {
	case methodTurnOn:
		return "turnon", nil
	case methodTurnOff:
		return "turnoff", nil
	case methodBell:
		return "bell", nil
	case methodDim:
		return "dim", nil
	case methodLearn:
		return "learn", nil
	default:
		return "", fmt.Errorf("%w: code %d", ErrUnsupportedMethod, method)
	}
}
