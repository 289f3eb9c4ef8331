package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/nerrad567/rfstick/protocol"
	"github.com/nerrad567/rfstick/wire"
)

// Request verbs understood by the service.
const (
	cmdNumDevices           = "getNumberOfDevices"
	cmdDeviceID             = "getDeviceId"
	cmdGetName              = "getName"
	cmdSetName              = "setName"
	cmdGetProtocol          = "getProtocol"
	cmdSetProtocol          = "setProtocol"
	cmdGetModel             = "getModel"
	cmdSetModel             = "setModel"
	cmdGetParameter         = "getParameter"
	cmdSetParameter         = "setParameter"
	cmdGetDeviceType        = "getDeviceType"
	cmdGetMethods           = "getMethods"
	cmdGetDeviceState       = "getDeviceState"
	cmdGetDeviceStateValue  = "getDeviceStateValue"
	cmdGetGroupDevices      = "getGroupDevices"
	cmdAddDevice            = "addDevice"
	cmdRemoveDevice         = "removeDevice"
	cmdSend                 = "send"
	cmdSetDeviceState       = "setDeviceState"
	cmdConnectController    = "connectController"
	cmdDisconnectController = "disconnectController"
)

// Callback signatures for asynchronous service pushes.
type (
	// DeviceEventFunc receives device state changes.
	DeviceEventFunc func(deviceID int, method Method, value string)

	// RawEventFunc receives raw transceiver data with the id of the
	// controller that picked it up.
	RawEventFunc func(data string, controllerID int)

	// DeviceChangeEventFunc receives registry changes. changeEvent is
	// one of DeviceAdded/DeviceChanged/DeviceRemoved; changeType names
	// the changed field for DeviceChanged.
	DeviceChangeEventFunc func(deviceID, changeEvent, changeType int)
)

// Client coordinates the device registry cache, command dispatch, and
// callback fan-out over one command and one event connection.
//
// Construct with New, release with Close. A closed client stays closed;
// create a new Client to reconnect.
//
// Lock order: c.mu and c.cbMu are leaf locks. Neither is ever held across
// a network round trip; operations snapshot what they need, release the
// lock, talk to the service, then re-validate before updating the cache.
type Client struct {
	cfg      Config
	session  *Session
	listener *listener

	// mu guards the device cache.
	mu      sync.RWMutex
	devices map[int]*Device

	// cbMu guards the callback registries and the registration counter.
	cbMu             sync.RWMutex
	nextRegistration int
	deviceCBs        map[int]DeviceEventFunc
	rawCBs           map[int]RawEventFunc
	changeCBs        map[int]DeviceChangeEventFunc

	logger   Logger
	loggerMu sync.RWMutex

	closed *Event
}

// New connects to the rfstickd service and returns a ready client.
//
// Both the command and the event socket are dialed before New returns;
// the listener goroutine is running when it does.
func New(ctx context.Context, cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()

	session, err := dialSession(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect command socket: %w", err)
	}

	c := newClient(cfg, session)

	lst, err := startListener(ctx, cfg, c)
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("connect event socket: %w", err)
	}
	c.listener = lst

	return c, nil
}

// newClientConns assembles a client over injected connections. Used by
// tests with net.Pipe transports.
func newClientConns(cmdConn, evtConn net.Conn, cfg Config) *Client {
	cfg = cfg.withDefaults()
	c := newClient(cfg, newSessionConn(cmdConn, cfg))
	c.listener = startListenerConn(evtConn, cfg, c)
	return c
}

func newClient(cfg Config, session *Session) *Client {
	return &Client{
		cfg:       cfg,
		session:   session,
		devices:   make(map[int]*Device),
		deviceCBs: make(map[int]DeviceEventFunc),
		rawCBs:    make(map[int]RawEventFunc),
		changeCBs: make(map[int]DeviceChangeEventFunc),
		logger:    noopLogger{},
		closed:    NewEvent(),
	}
}

// SetLogger sets the logger for connection lifecycle and event warnings.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	if logger == nil {
		logger = noopLogger{}
	}
	c.logger = logger
	c.loggerMu.Unlock()
	c.session.SetLogger(logger)
}

// Close stops the listener, joins it, and releases both connections.
//
// An in-flight request completes or fails naturally first. After Close
// returns, no registered callback is invoked again and every operation
// fails with ConnectingService. Safe to call multiple times.
func (c *Client) Close() error {
	c.closed.Signal()
	if c.listener != nil {
		c.listener.close()
	}
	return c.session.Close()
}

// --- Switch operations -------------------------------------------------

// SwitchState performs a state-changing operation on a device.
//
// Unknown ids and undefined devices fail with DeviceNotFound. Operations
// the device does not support fail fast with MethodNotSupported, without
// a network round trip. Groups fan out to members in order and succeed if
// at least one member succeeds; when all members fail, the first member's
// status is returned.
func (c *Client) SwitchState(id int, method Method, value string) Status {
	if c.closed.Signaled() {
		return ConnectingService
	}
	return c.switchState(id, method, value, make(map[int]bool))
}

// TurnOn switches a device on.
func (c *Client) TurnOn(id int) Status {
	return c.SwitchState(id, MethodTurnOn, "")
}

// TurnOff switches a device off.
func (c *Client) TurnOff(id int) Status {
	return c.SwitchState(id, MethodTurnOff, "")
}

// Bell rings a bell device. Bell has no steady state; LastSentCommand
// reports TurnOff afterwards.
func (c *Client) Bell(id int) Status {
	return c.SwitchState(id, MethodBell, "")
}

// Learn puts the device's receiver in pairing mode and transmits its
// learn sequence.
func (c *Client) Learn(id int) Status {
	return c.SwitchState(id, MethodLearn, "")
}

// Dim sets a dimmer to the given level.
//
// Level 0 is equivalent to TurnOff and level 255 to TurnOn; intermediate
// levels send a dim command carrying the level. Levels outside 0..255
// fail with Unknown.
func (c *Client) Dim(id, level int) Status {
	switch {
	case level < dimLevelMin || level > dimLevelMax:
		return Unknown
	case level == dimLevelMin:
		return c.TurnOff(id)
	case level == dimLevelMax:
		return c.TurnOn(id)
	default:
		return c.SwitchState(id, MethodDim, strconv.Itoa(level))
	}
}

// switchState resolves the device and dispatches by variant. visited
// breaks cycles in nested group definitions.
func (c *Client) switchState(id int, method Method, value string, visited map[int]bool) Status {
	if visited[id] {
		return DeviceNotFound
	}
	visited[id] = true

	dev, st := c.ensureDevice(id)
	if st != Success {
		return st
	}
	if !dev.supportsStateChange() {
		return DeviceNotFound
	}

	if dev.Kind == KindGroup {
		return c.switchGroup(dev, method, value, visited)
	}
	return c.switchSimple(dev, method, value)
}

// switchGroup applies the operation to every member in order. Success iff
// at least one member succeeds; if all fail, the first failure wins.
func (c *Client) switchGroup(dev *Device, method Method, value string, visited map[int]bool) Status {
	if len(dev.Members) == 0 {
		return DeviceNotFound
	}

	anySuccess := false
	firstFailure := Success
	for _, member := range dev.Members {
		st := c.switchState(member, method, value, visited)
		if st == Success {
			anySuccess = true
		} else if firstFailure == Success {
			firstFailure = st
		}
	}

	if anySuccess {
		return Success
	}
	return firstFailure
}

// switchSimple encodes and transmits the operation for one device.
func (c *Client) switchSimple(dev *Device, method Method, value string) Status {
	if MaskUnsupportedMethods(dev.Methods, method) != method {
		return MethodNotSupported
	}

	raw, err := protocol.Encode(dev.Protocol, dev.Model, dev.Parameters, int(method), value)
	if err != nil {
		return MethodNotSupported
	}

	st := c.sendRaw(raw)
	if st != Success {
		return st
	}

	// Record the new state with the service; the push it triggers keeps
	// other clients current. Failure here does not undo the transmit.
	req := wire.New().AddString(cmdSetDeviceState).AddInt(dev.ID).AddInt(int(method)).AddString(value)
	if _, rst := c.requestBool(req, false); rst != Success {
		c.logWarn("recording device state failed", "device", dev.ID, "status", rst.String())
	}

	// Re-validate: the device may have been removed during the round trip.
	c.mu.Lock()
	if cached, ok := c.devices[dev.ID]; ok {
		cached.LastCommand = method
		cached.LastValue = value
	}
	c.mu.Unlock()

	return Success
}

// SendRawCommand transmits a protocol-encoded command string directly,
// bypassing device resolution.
func (c *Client) SendRawCommand(command string) Status {
	if c.closed.Signaled() {
		return ConnectingService
	}
	return c.sendRaw(command)
}

func (c *Client) sendRaw(command string) Status {
	v, st := c.requestInt(wire.New().AddString(cmdSend).AddString(command), false)
	if st != Success {
		return st
	}
	return Status(v)
}

// --- Registry operations -----------------------------------------------

// NumDevices returns the number of registered devices, or a negative
// Status value on failure.
func (c *Client) NumDevices() int {
	v, st := c.requestInt(wire.New().AddString(cmdNumDevices), true)
	if st != Success {
		return int(st)
	}
	return v
}

// DeviceID returns the device id at the given registry index, or a
// negative Status value if the index is out of range.
func (c *Client) DeviceID(index int) int {
	v, st := c.requestInt(wire.New().AddString(cmdDeviceID).AddInt(index), true)
	if st != Success {
		return int(st)
	}
	return v
}

// AddDevice registers a new device with the service and returns its id,
// or a negative Status value on failure. The new entry has no protocol
// yet and stays undefined until one is set.
func (c *Client) AddDevice() int {
	v, st := c.requestInt(wire.New().AddString(cmdAddDevice), false)
	if st != Success {
		return int(st)
	}
	if v > 0 {
		c.mu.Lock()
		c.devices[v] = &Device{ID: v, Kind: KindUndefined}
		c.mu.Unlock()
	}
	return v
}

// RemoveDevice removes a device. Returns false for nonexistent ids or on
// communication failure; the id becomes invalid for all further lookups.
func (c *Client) RemoveDevice(id int) bool {
	ok, st := c.requestBool(wire.New().AddString(cmdRemoveDevice).AddInt(id), false)
	if st != Success || !ok {
		return false
	}

	c.mu.Lock()
	delete(c.devices, id)
	c.mu.Unlock()
	return true
}

// GetDevice returns a snapshot of the device, fetching it from the
// service if it is not cached yet.
func (c *Client) GetDevice(id int) (Device, bool) {
	dev, st := c.ensureDevice(id)
	if st != Success {
		return Device{}, false
	}
	return *dev, true
}

// DeviceType returns the device variant, or KindUndefined for unknown ids.
func (c *Client) DeviceType(id int) Kind {
	dev, st := c.ensureDevice(id)
	if st != Success {
		return KindUndefined
	}
	return dev.Kind
}

// --- Field operations --------------------------------------------------

// Name returns the device name, empty on failure.
func (c *Client) Name(id int) string {
	name, st := c.requestString(wire.New().AddString(cmdGetName).AddInt(id), true)
	if st != Success {
		return ""
	}

	c.mu.Lock()
	if d, ok := c.devices[id]; ok {
		d.Name = name
	}
	c.mu.Unlock()
	return name
}

// SetName renames the device.
func (c *Client) SetName(id int, name string) bool {
	ok, st := c.requestBool(wire.New().AddString(cmdSetName).AddInt(id).AddString(name), false)
	if st != Success || !ok {
		return false
	}

	c.mu.Lock()
	if d, found := c.devices[id]; found {
		d.Name = name
	}
	c.mu.Unlock()
	return true
}

// Protocol returns the device protocol identifier, empty on failure.
func (c *Client) Protocol(id int) string {
	proto, st := c.requestString(wire.New().AddString(cmdGetProtocol).AddInt(id), true)
	if st != Success {
		return ""
	}
	return proto
}

// SetProtocol changes the device protocol. The cached entry is dropped
// because the protocol determines the variant and the supported methods.
func (c *Client) SetProtocol(id int, proto string) bool {
	ok, st := c.requestBool(wire.New().AddString(cmdSetProtocol).AddInt(id).AddString(proto), false)
	if st != Success || !ok {
		return false
	}
	c.invalidate(id)
	return true
}

// Model returns the device model identifier, empty on failure.
func (c *Client) Model(id int) string {
	model, st := c.requestString(wire.New().AddString(cmdGetModel).AddInt(id), true)
	if st != Success {
		return ""
	}
	return model
}

// SetModel changes the device model. The cached entry is dropped because
// the model affects command encoding.
func (c *Client) SetModel(id int, model string) bool {
	ok, st := c.requestBool(wire.New().AddString(cmdSetModel).AddInt(id).AddString(model), false)
	if st != Success || !ok {
		return false
	}
	c.invalidate(id)
	return true
}

// Parameter returns a protocol parameter, or defaultValue when the
// parameter is unset or the lookup fails. Never an error.
func (c *Client) Parameter(id int, name, defaultValue string) string {
	req := wire.New().AddString(cmdGetParameter).AddInt(id).AddString(name).AddString(defaultValue)
	value, st := c.requestString(req, true)
	if st != Success {
		return defaultValue
	}

	c.mu.Lock()
	if d, ok := c.devices[id]; ok {
		if d.Parameters == nil {
			d.Parameters = make(map[string]string)
		}
		d.Parameters[name] = value
	}
	c.mu.Unlock()
	return value
}

// SetParameter sets a protocol parameter.
func (c *Client) SetParameter(id int, name, value string) bool {
	req := wire.New().AddString(cmdSetParameter).AddInt(id).AddString(name).AddString(value)
	ok, st := c.requestBool(req, false)
	if st != Success || !ok {
		return false
	}

	c.mu.Lock()
	if d, found := c.devices[id]; found {
		if d.Parameters == nil {
			d.Parameters = make(map[string]string)
		}
		d.Parameters[name] = value
	}
	c.mu.Unlock()
	return true
}

// --- Introspection -----------------------------------------------------

// Methods returns the operations the device supports, intersected with
// the operations the caller supports. Returns 0 for unknown ids.
func (c *Client) Methods(id int, clientMethods Method) Method {
	dev, st := c.ensureDevice(id)
	if st != Success {
		return 0
	}
	return MaskUnsupportedMethods(dev.Methods, clientMethods)
}

// LastSentCommand returns the most recent command sent to the device,
// masked to the caller's supported operations.
//
// Bell is transient: after a bell the reported command is TurnOff. A
// device with no recorded command also reports TurnOff.
func (c *Client) LastSentCommand(id int, clientMethods Method) Method {
	var cmd Method

	c.mu.RLock()
	if d, ok := c.devices[id]; ok && d.LastCommand != 0 {
		cmd = d.LastCommand
	}
	c.mu.RUnlock()

	if cmd == 0 {
		v, st := c.requestInt(wire.New().AddString(cmdGetDeviceState).AddInt(id), true)
		if st == Success && v > 0 {
			cmd = Method(v)
			c.mu.Lock()
			if d, ok := c.devices[id]; ok {
				d.LastCommand = cmd
			}
			c.mu.Unlock()
		}
	}

	cmd = MaskUnsupportedMethods(cmd, clientMethods)
	if cmd == MethodBell || cmd == 0 {
		return MethodTurnOff
	}
	return cmd
}

// LastSentValue returns the value carried by the most recent command
// (the dim level), empty when there is none.
func (c *Client) LastSentValue(id int) string {
	c.mu.RLock()
	if d, ok := c.devices[id]; ok && d.LastValue != "" {
		value := d.LastValue
		c.mu.RUnlock()
		return value
	}
	c.mu.RUnlock()

	value, st := c.requestString(wire.New().AddString(cmdGetDeviceStateValue).AddInt(id), true)
	if st != Success {
		return ""
	}
	return value
}

// --- Controller operations ---------------------------------------------

// ConnectController notifies the service that a transceiver was attached,
// for hosts that own hot-plug detection themselves.
func (c *Client) ConnectController(vendorID, productID int, serial string) Status {
	req := wire.New().AddString(cmdConnectController).AddInt(vendorID).AddInt(productID).AddString(serial)
	v, st := c.requestInt(req, false)
	if st != Success {
		return st
	}
	return Status(v)
}

// DisconnectController notifies the service that a transceiver was
// detached.
func (c *Client) DisconnectController(vendorID, productID int, serial string) Status {
	req := wire.New().AddString(cmdDisconnectController).AddInt(vendorID).AddInt(productID).AddString(serial)
	v, st := c.requestInt(req, false)
	if st != Success {
		return st
	}
	return Status(v)
}

// --- Callback registration ----------------------------------------------

// RegisterDeviceEvent registers a callback for device state changes and
// returns its registration id.
func (c *Client) RegisterDeviceEvent(fn DeviceEventFunc) int {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.nextRegistration++
	c.deviceCBs[c.nextRegistration] = fn
	return c.nextRegistration
}

// RegisterRawDeviceEvent registers a callback for raw transceiver data.
func (c *Client) RegisterRawDeviceEvent(fn RawEventFunc) int {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.nextRegistration++
	c.rawCBs[c.nextRegistration] = fn
	return c.nextRegistration
}

// RegisterDeviceChangeEvent registers a callback for registry changes.
func (c *Client) RegisterDeviceChangeEvent(fn DeviceChangeEventFunc) int {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()
	c.nextRegistration++
	c.changeCBs[c.nextRegistration] = fn
	return c.nextRegistration
}

// Unregister removes a previously registered callback. Returns false if
// the id is unknown.
func (c *Client) Unregister(registrationID int) bool {
	c.cbMu.Lock()
	defer c.cbMu.Unlock()

	if _, ok := c.deviceCBs[registrationID]; ok {
		delete(c.deviceCBs, registrationID)
		return true
	}
	if _, ok := c.rawCBs[registrationID]; ok {
		delete(c.rawCBs, registrationID)
		return true
	}
	if _, ok := c.changeCBs[registrationID]; ok {
		delete(c.changeCBs, registrationID)
		return true
	}
	return false
}

// --- Event dispatch (listener goroutine) --------------------------------

func (c *Client) dispatchDeviceEvent(id int, method Method, value string) {
	c.mu.Lock()
	if d, ok := c.devices[id]; ok {
		d.LastCommand = method
		d.LastValue = value
	}
	c.mu.Unlock()

	c.cbMu.RLock()
	fns := make([]DeviceEventFunc, 0, len(c.deviceCBs))
	for _, fn := range c.deviceCBs {
		fns = append(fns, fn)
	}
	c.cbMu.RUnlock()

	for _, fn := range fns {
		c.invoke(func() { fn(id, method, value) })
	}
}

func (c *Client) dispatchRawEvent(data string, controllerID int) {
	c.cbMu.RLock()
	fns := make([]RawEventFunc, 0, len(c.rawCBs))
	for _, fn := range c.rawCBs {
		fns = append(fns, fn)
	}
	c.cbMu.RUnlock()

	for _, fn := range fns {
		c.invoke(func() { fn(data, controllerID) })
	}
}

func (c *Client) dispatchDeviceChange(id, changeEvent, changeType int) {
	switch changeEvent {
	case DeviceRemoved:
		c.mu.Lock()
		delete(c.devices, id)
		c.mu.Unlock()
	case DeviceChanged:
		// Drop the cached entry; it is refetched on next use.
		c.invalidate(id)
	}

	c.cbMu.RLock()
	fns := make([]DeviceChangeEventFunc, 0, len(c.changeCBs))
	for _, fn := range c.changeCBs {
		fns = append(fns, fn)
	}
	c.cbMu.RUnlock()

	for _, fn := range fns {
		c.invoke(func() { fn(id, changeEvent, changeType) })
	}
}

// invoke runs a callback with panic recovery so a misbehaving callback
// cannot kill the listener.
func (c *Client) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logError("event callback panic", fmt.Errorf("%v", r))
		}
	}()
	fn()
}

// --- Device cache -------------------------------------------------------

// ensureDevice returns a snapshot of the device, fetching it from the
// service on a cache miss. No lock is held during the fetch.
func (c *Client) ensureDevice(id int) (*Device, Status) {
	c.mu.RLock()
	if d, ok := c.devices[id]; ok {
		snap := d.DeepCopy()
		c.mu.RUnlock()
		return &snap, Success
	}
	c.mu.RUnlock()

	dev, st := c.fetchDevice(id)
	if st != Success {
		return nil, st
	}

	c.mu.Lock()
	if existing, ok := c.devices[id]; ok {
		// Raced with another fetch or a state push; keep the recorded
		// command state, refresh the rest.
		dev.LastCommand = existing.LastCommand
		dev.LastValue = existing.LastValue
	}
	c.devices[id] = dev
	snap := dev.DeepCopy()
	c.mu.Unlock()

	return &snap, Success
}

// fetchDevice loads one registry entry from the service.
func (c *Client) fetchDevice(id int) (*Device, Status) {
	typ, st := c.requestInt(wire.New().AddString(cmdGetDeviceType).AddInt(id), true)
	if st != Success {
		return nil, st
	}
	if typ < 0 {
		return nil, Status(typ)
	}

	dev := &Device{ID: id}

	name, st := c.requestString(wire.New().AddString(cmdGetName).AddInt(id), true)
	if st == Success {
		dev.Name = name
	}

	proto, st := c.requestString(wire.New().AddString(cmdGetProtocol).AddInt(id), true)
	if st == Success {
		dev.Protocol = proto
	}

	model, st := c.requestString(wire.New().AddString(cmdGetModel).AddInt(id), true)
	if st == Success {
		dev.Model = model
	}

	methods, st := c.requestInt(wire.New().AddString(cmdGetMethods).AddInt(id), true)
	if st == Success && methods > 0 {
		dev.Methods = Method(methods)
	}

	switch {
	case typ == int(KindGroup):
		dev.Kind = KindGroup
		members, mst := c.requestString(wire.New().AddString(cmdGetGroupDevices).AddInt(id), true)
		if mst == Success {
			dev.Members = parseMemberList(members)
		}
	case dev.Protocol != "" && protocol.Supported(dev.Protocol):
		dev.Kind = KindSimple
		c.fetchParameters(dev)
	default:
		dev.Kind = KindUndefined
	}

	return dev, Success
}

// fetchParameters loads the parameters the device's protocol needs for
// command encoding.
func (c *Client) fetchParameters(dev *Device) {
	names := protocol.Parameters(dev.Protocol, dev.Model)
	if len(names) == 0 {
		return
	}

	dev.Parameters = make(map[string]string, len(names))
	for _, name := range names {
		req := wire.New().AddString(cmdGetParameter).AddInt(dev.ID).AddString(name).AddString("")
		if value, st := c.requestString(req, true); st == Success && value != "" {
			dev.Parameters[name] = value
		}
	}
}

// parseMemberList parses a comma-separated id list ("1,4,7") preserving
// order. Malformed entries are skipped.
func parseMemberList(s string) []int {
	if s == "" {
		return nil
	}

	parts := strings.Split(s, ",")
	members := make([]int, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || id <= 0 {
			continue
		}
		members = append(members, id)
	}
	return members
}

// invalidate drops a cached device entry.
func (c *Client) invalidate(id int) {
	c.mu.Lock()
	delete(c.devices, id)
	c.mu.Unlock()
}

// --- Request helpers ----------------------------------------------------

// requestInt performs a round trip expecting an integer response.
func (c *Client) requestInt(msg *wire.Message, idempotent bool) (int, Status) {
	resp, st := c.roundTrip(msg, idempotent)
	if st != Success {
		return 0, st
	}

	v, err := resp.TakeInt()
	if err != nil {
		return 0, UnknownResponse
	}
	return v, Success
}

// requestBool performs a round trip expecting a boolean response.
func (c *Client) requestBool(msg *wire.Message, idempotent bool) (bool, Status) {
	resp, st := c.roundTrip(msg, idempotent)
	if st != Success {
		return false, st
	}

	v, err := resp.TakeBool()
	if err != nil {
		return false, UnknownResponse
	}
	return v, Success
}

// requestString performs a round trip expecting a string response. The
// service signals failure in-band with an integer status instead of a
// string; the peek distinguishes the two shapes.
func (c *Client) requestString(msg *wire.Message, idempotent bool) (string, Status) {
	resp, st := c.roundTrip(msg, idempotent)
	if st != Success {
		return "", st
	}

	if resp.NextIsInt() {
		code, err := resp.TakeInt()
		if err != nil || code >= 0 {
			return "", UnknownResponse
		}
		return "", Status(code)
	}

	v, err := resp.TakeString()
	if err != nil {
		return "", UnknownResponse
	}
	return v, Success
}

func (c *Client) roundTrip(msg *wire.Message, idempotent bool) (*wire.Message, Status) {
	if c.closed.Signaled() {
		return nil, ConnectingService
	}

	var resp *wire.Message
	var err error
	if idempotent {
		resp, err = c.session.RequestIdempotent(msg)
	} else {
		resp, err = c.session.Request(msg)
	}
	if err != nil {
		return nil, statusFromError(err)
	}
	return resp, Success
}

// statusFromError maps transport and codec errors to status codes.
func statusFromError(err error) Status {
	switch {
	case errors.Is(err, wire.ErrMalformedMessage):
		return UnknownResponse
	case errors.Is(err, ErrConnectionFailed):
		return ConnectingService
	case errors.Is(err, ErrClosed):
		return ConnectingService
	default:
		return Communication
	}
}

// --- Logging -----------------------------------------------------------

func (c *Client) logInfo(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()
	logger.Info(msg, keysAndValues...)
}

func (c *Client) logWarn(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()
	logger.Warn(msg, keysAndValues...)
}

func (c *Client) logError(msg string, err error) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()
	logger.Error(msg, "error", err)
}
