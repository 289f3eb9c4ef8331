package client

import (
	"net"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/rfstick/wire"
)

// fakeDevice is one registry entry held by the fake service.
type fakeDevice struct {
	name       string
	protocol   string
	model      string
	typ        int
	methods    int
	params     map[string]string
	state      int
	stateValue string
	members    string
}

// fakeService implements the service side of the wire protocol over
// net.Pipe connections, backed by an in-memory registry.
type fakeService struct {
	t *testing.T

	cmd net.Conn
	evt net.Conn

	mu      sync.Mutex
	devices map[int]*fakeDevice
	nextID  int
	sent    []string

	wg sync.WaitGroup
}

// newFakeService starts a fake service and a client wired to it. Both
// are torn down by t.Cleanup.
func newFakeService(t *testing.T) (*fakeService, *Client) {
	t.Helper()

	cmdClient, cmdServer := net.Pipe()
	evtClient, evtServer := net.Pipe()

	svc := &fakeService{
		t:       t,
		cmd:     cmdServer,
		evt:     evtServer,
		devices: make(map[int]*fakeDevice),
	}

	svc.wg.Add(1)
	go svc.serve()

	c := newClientConns(cmdClient, evtClient, Config{
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	t.Cleanup(func() {
		c.Close()
		svc.close()
	})

	return svc, c
}

func (s *fakeService) close() {
	s.cmd.Close()
	s.evt.Close()
	s.wg.Wait()
}

// addDevice seeds a registry entry and returns its id.
func (s *fakeService) addDevice(d fakeDevice) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	if d.params == nil {
		d.params = make(map[string]string)
	}
	dev := d
	s.devices[s.nextID] = &dev
	return s.nextID
}

// sentCommands returns a copy of the raw commands transmitted so far.
func (s *fakeService) sentCommands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	copy(out, s.sent)
	return out
}

// pushDeviceEvent writes a device state push on the event connection.
func (s *fakeService) pushDeviceEvent(id, method int, value string) error {
	msg := wire.New().AddString(pushDeviceEvent).AddInt(id).AddInt(method).AddString(value)
	return wire.WriteFrame(s.evt, msg.Bytes())
}

// pushRawEvent writes a raw data push on the event connection.
func (s *fakeService) pushRawEvent(data string, controllerID int) error {
	msg := wire.New().AddString(pushRawEvent).AddString(data).AddInt(controllerID)
	return wire.WriteFrame(s.evt, msg.Bytes())
}

// pushDeviceChange writes a registry change push on the event connection.
func (s *fakeService) pushDeviceChange(id, changeEvent, changeType int) error {
	msg := wire.New().AddString(pushDeviceChangeEvent).AddInt(id).AddInt(changeEvent).AddInt(changeType)
	return wire.WriteFrame(s.evt, msg.Bytes())
}

// serve answers requests on the command connection until it closes.
func (s *fakeService) serve() {
	defer s.wg.Done()

	for {
		payload, err := wire.ReadFrame(s.cmd)
		if err != nil {
			return
		}

		resp := s.handle(wire.Parse(payload))
		if err := wire.WriteFrame(s.cmd, resp.Bytes()); err != nil {
			return
		}
	}
}

//nolint:gocyclo // one arm per protocol verb
func (s *fakeService) handle(req *wire.Message) *wire.Message {
	verb, err := req.TakeString()
	if err != nil {
		return wire.New().AddInt(int(UnknownResponse))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch verb {
	case cmdNumDevices:
		return wire.New().AddInt(len(s.devices))

	case cmdDeviceID:
		index, _ := req.TakeInt()
		ids := s.sortedIDsLocked()
		if index < 0 || index >= len(ids) {
			return wire.New().AddInt(int(NotFound))
		}
		return wire.New().AddInt(ids[index])

	case cmdGetDeviceType:
		d, ok := s.takeDeviceLocked(req)
		if !ok {
			return wire.New().AddInt(int(DeviceNotFound))
		}
		return wire.New().AddInt(d.typ)

	case cmdGetName:
		d, ok := s.takeDeviceLocked(req)
		if !ok {
			return wire.New().AddInt(int(DeviceNotFound))
		}
		return wire.New().AddString(d.name)

	case cmdSetName:
		d, ok := s.takeDeviceLocked(req)
		name, _ := req.TakeString()
		if !ok {
			return wire.New().AddBool(false)
		}
		d.name = name
		return wire.New().AddBool(true)

	case cmdGetProtocol:
		d, ok := s.takeDeviceLocked(req)
		if !ok {
			return wire.New().AddInt(int(DeviceNotFound))
		}
		return wire.New().AddString(d.protocol)

	case cmdSetProtocol:
		d, ok := s.takeDeviceLocked(req)
		proto, _ := req.TakeString()
		if !ok {
			return wire.New().AddBool(false)
		}
		d.protocol = proto
		return wire.New().AddBool(true)

	case cmdGetModel:
		d, ok := s.takeDeviceLocked(req)
		if !ok {
			return wire.New().AddInt(int(DeviceNotFound))
		}
		return wire.New().AddString(d.model)

	case cmdSetModel:
		d, ok := s.takeDeviceLocked(req)
		model, _ := req.TakeString()
		if !ok {
			return wire.New().AddBool(false)
		}
		d.model = model
		return wire.New().AddBool(true)

	case cmdGetParameter:
		d, ok := s.takeDeviceLocked(req)
		name, _ := req.TakeString()
		def, _ := req.TakeString()
		if !ok {
			return wire.New().AddInt(int(DeviceNotFound))
		}
		if v, set := d.params[name]; set {
			return wire.New().AddString(v)
		}
		return wire.New().AddString(def)

	case cmdSetParameter:
		d, ok := s.takeDeviceLocked(req)
		name, _ := req.TakeString()
		value, _ := req.TakeString()
		if !ok {
			return wire.New().AddBool(false)
		}
		d.params[name] = value
		return wire.New().AddBool(true)

	case cmdGetMethods:
		d, ok := s.takeDeviceLocked(req)
		if !ok {
			return wire.New().AddInt(int(DeviceNotFound))
		}
		return wire.New().AddInt(d.methods)

	case cmdGetDeviceState:
		d, ok := s.takeDeviceLocked(req)
		if !ok {
			return wire.New().AddInt(int(DeviceNotFound))
		}
		return wire.New().AddInt(d.state)

	case cmdGetDeviceStateValue:
		d, ok := s.takeDeviceLocked(req)
		if !ok {
			return wire.New().AddInt(int(DeviceNotFound))
		}
		return wire.New().AddString(d.stateValue)

	case cmdGetGroupDevices:
		d, ok := s.takeDeviceLocked(req)
		if !ok {
			return wire.New().AddInt(int(DeviceNotFound))
		}
		return wire.New().AddString(d.members)

	case cmdAddDevice:
		s.nextID++
		s.devices[s.nextID] = &fakeDevice{typ: int(KindSimple), params: make(map[string]string)}
		return wire.New().AddInt(s.nextID)

	case cmdRemoveDevice:
		id, _ := req.TakeInt()
		if _, ok := s.devices[id]; !ok {
			return wire.New().AddBool(false)
		}
		delete(s.devices, id)
		return wire.New().AddBool(true)

	case cmdSend:
		raw, terr := req.TakeString()
		if terr != nil {
			return wire.New().AddInt(int(UnknownResponse))
		}
		s.sent = append(s.sent, raw)
		return wire.New().AddInt(int(Success))

	case cmdSetDeviceState:
		d, ok := s.takeDeviceLocked(req)
		method, _ := req.TakeInt()
		value, _ := req.TakeString()
		if !ok {
			return wire.New().AddBool(false)
		}
		d.state = method
		d.stateValue = value
		return wire.New().AddBool(true)

	case cmdConnectController, cmdDisconnectController:
		return wire.New().AddInt(int(Success))

	default:
		return wire.New().AddInt(int(UnknownResponse))
	}
}

// takeDeviceLocked consumes the id field and resolves it. Caller holds s.mu.
func (s *fakeService) takeDeviceLocked(req *wire.Message) (*fakeDevice, bool) {
	id, err := req.TakeInt()
	if err != nil {
		return nil, false
	}
	d, ok := s.devices[id]
	return d, ok
}

func (s *fakeService) sortedIDsLocked() []int {
	ids := make([]int, 0, len(s.devices))
	for id := range s.devices {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// codeswitchDevice is a ready-made arctech code switch entry.
func codeswitchDevice(house, unit string) fakeDevice {
	return fakeDevice{
		name:     "lamp",
		protocol: "arctech",
		model:    "codeswitch",
		typ:      int(KindSimple),
		methods:  int(MethodTurnOn | MethodTurnOff),
		params:   map[string]string{"house": house, "unit": unit},
	}
}

// dimmerDevice is a ready-made arctech self-learning dimmer entry.
func dimmerDevice(house, unit string) fakeDevice {
	return fakeDevice{
		name:     "dimmer",
		protocol: "arctech",
		model:    "selflearning-dimmer",
		typ:      int(KindSimple),
		methods:  int(MethodTurnOn | MethodTurnOff | MethodDim | MethodLearn),
		params:   map[string]string{"house": house, "unit": unit},
	}
}
