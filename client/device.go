package client

// Device is a snapshot of one registry entry.
//
// Ids are assigned by the service, are process-unique, and are never
// reused while the entry exists. Kind is a closed tag: simple devices
// drive a single transmitter, groups fan operations out to Members in
// order, and undefined devices reject state-changing operations.
type Device struct {
	ID       int
	Name     string
	Protocol string
	Model    string
	Kind     Kind

	// Methods is the bitmask of operations the device supports.
	Methods Method

	// Members holds group member ids in dispatch order. Empty unless
	// Kind is KindGroup.
	Members []int

	// Parameters holds protocol-specific settings (house code, unit,
	// fade speed). Populated lazily as parameters are queried.
	Parameters map[string]string

	// LastCommand is the most recent successfully sent operation, zero
	// if nothing has been sent since the entry was created.
	LastCommand Method

	// LastValue carries the value of LastCommand when it takes one
	// (the dim level).
	LastValue string
}

// DeepCopy returns an independent copy of the device, safe to hand to
// callers without exposing registry-internal state.
func (d *Device) DeepCopy() Device {
	out := *d

	if d.Members != nil {
		out.Members = make([]int, len(d.Members))
		copy(out.Members, d.Members)
	}

	if d.Parameters != nil {
		out.Parameters = make(map[string]string, len(d.Parameters))
		for k, v := range d.Parameters {
			out.Parameters[k] = v
		}
	}

	return out
}

// supportsStateChange reports whether the variant accepts state-changing
// operations at all.
func (d *Device) supportsStateChange() bool {
	return d.Kind == KindSimple || d.Kind == KindGroup
}
