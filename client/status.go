package client

// Status is the result code of a client operation.
//
// Success is zero; every failure is negative so operations that return an
// id can signal failure in-band with a negative value.
type Status int

// Operation result codes.
const (
	Success            Status = 0
	NotFound           Status = -1
	PermissionDenied   Status = -2
	DeviceNotFound     Status = -3
	MethodNotSupported Status = -4
	Communication      Status = -5
	ConnectingService  Status = -6
	UnknownResponse    Status = -7
	Unknown            Status = -99
)

// String returns a human-readable description of the status.
func (s Status) String() string {
	switch s {
	case Success:
		return "success"
	case NotFound:
		return "transceiver not found"
	case PermissionDenied:
		return "permission denied"
	case DeviceNotFound:
		return "device not found"
	case MethodNotSupported:
		return "the method is not supported by the device"
	case Communication:
		return "an error occurred while communicating with the service"
	case ConnectingService:
		return "could not connect to the rfstickd service"
	case UnknownResponse:
		return "received an unknown response from the service"
	default:
		return "unknown error"
	}
}

// ErrorString returns the human-readable description for a status code.
// Unrecognised codes map to the Unknown description.
func ErrorString(s Status) string {
	return s.String()
}

// Method is a bitmask of device operations.
type Method int

// Device operation bits. A device reports the set it supports; queries
// may intersect that set with the caller's own supported set.
const (
	MethodTurnOn Method = 1 << iota
	MethodTurnOff
	MethodBell
	MethodToggle
	MethodDim
	MethodLearn
)

// MethodAll is the full operation set, for callers that support everything.
const MethodAll = MethodTurnOn | MethodTurnOff | MethodBell | MethodToggle | MethodDim | MethodLearn

// MaskUnsupportedMethods intersects a device's supported operations with
// the client's. Pure function: deviceMethods & clientMethods.
func MaskUnsupportedMethods(deviceMethods, clientMethods Method) Method {
	return deviceMethods & clientMethods
}

// Kind identifies the device variant.
type Kind int

// Device variants. KindUndefined marks a device whose protocol could not
// be resolved; it rejects state-changing operations.
const (
	KindUndefined Kind = 0
	KindSimple    Kind = 1
	KindGroup     Kind = 2
)

// Registry change events carried by device-change pushes.
const (
	DeviceAdded   = 1
	DeviceChanged = 2
	DeviceRemoved = 3
)

// Changed-field codes carried by DeviceChanged pushes.
const (
	ChangeName     = 1
	ChangeProtocol = 2
	ChangeModel    = 3
)

// Dim levels that fold into switch operations.
const (
	dimLevelMin = 0
	dimLevelMax = 255
)
