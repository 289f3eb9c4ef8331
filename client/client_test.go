package client

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestTurnOnSendsEncodedCommand(t *testing.T) {
	svc, c := newFakeService(t)
	id := svc.addDevice(codeswitchDevice("A", "1"))

	if st := c.TurnOn(id); st != Success {
		t.Fatalf("TurnOn() = %v, want Success", st)
	}

	sent := svc.sentCommands()
	if len(sent) != 1 {
		t.Fatalf("sent %d raw commands, want 1", len(sent))
	}
	want := "protocol:arctech;model:codeswitch;house:A;unit:1;method:turnon;"
	if sent[0] != want {
		t.Errorf("raw command = %q, want %q", sent[0], want)
	}

	if got := c.LastSentCommand(id, MethodAll); got != MethodTurnOn {
		t.Errorf("LastSentCommand() = %v, want MethodTurnOn", got)
	}
}

func TestDimBoundaries(t *testing.T) {
	tests := []struct {
		name       string
		level      int
		wantStatus Status
		wantMethod string
		wantLevel  string
	}{
		{name: "level 0 folds to turn off", level: 0, wantStatus: Success, wantMethod: "method:turnoff;"},
		{name: "level 255 folds to turn on", level: 255, wantStatus: Success, wantMethod: "method:turnon;"},
		{name: "intermediate level dims", level: 128, wantStatus: Success, wantMethod: "method:dim;", wantLevel: "level:128;"},
		{name: "negative level rejected", level: -1, wantStatus: Unknown},
		{name: "oversized level rejected", level: 256, wantStatus: Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, c := newFakeService(t)
			id := svc.addDevice(dimmerDevice("12345", "3"))

			if st := c.Dim(id, tt.level); st != tt.wantStatus {
				t.Fatalf("Dim(%d) = %v, want %v", tt.level, st, tt.wantStatus)
			}

			sent := svc.sentCommands()
			if tt.wantStatus != Success {
				if len(sent) != 0 {
					t.Errorf("sent %d raw commands, want 0", len(sent))
				}
				return
			}

			if len(sent) != 1 {
				t.Fatalf("sent %d raw commands, want 1", len(sent))
			}
			if !strings.Contains(sent[0], tt.wantMethod) {
				t.Errorf("raw command %q does not contain %q", sent[0], tt.wantMethod)
			}
			if tt.wantLevel != "" && !strings.Contains(sent[0], tt.wantLevel) {
				t.Errorf("raw command %q does not contain %q", sent[0], tt.wantLevel)
			}
		})
	}
}

func TestDimUpdatesLastSentValue(t *testing.T) {
	svc, c := newFakeService(t)
	id := svc.addDevice(dimmerDevice("12345", "3"))

	if st := c.Dim(id, 128); st != Success {
		t.Fatalf("Dim() = %v, want Success", st)
	}

	if got := c.LastSentCommand(id, MethodAll); got != MethodDim {
		t.Errorf("LastSentCommand() = %v, want MethodDim", got)
	}
	if got := c.LastSentValue(id); got != "128" {
		t.Errorf("LastSentValue() = %q, want %q", got, "128")
	}
}

func TestBellCoercedToTurnOff(t *testing.T) {
	svc, c := newFakeService(t)
	id := svc.addDevice(fakeDevice{
		name:     "doorbell",
		protocol: "arctech",
		model:    "bell",
		typ:      int(KindSimple),
		methods:  int(MethodBell),
		params:   map[string]string{"house": "C"},
	})

	if st := c.Bell(id); st != Success {
		t.Fatalf("Bell() = %v, want Success", st)
	}

	// Bell has no steady state: the reported last command is TurnOff.
	if got := c.LastSentCommand(id, MethodAll); got != MethodTurnOff {
		t.Errorf("LastSentCommand() after bell = %v, want MethodTurnOff", got)
	}
}

func TestMethodNotSupportedFailsFast(t *testing.T) {
	svc, c := newFakeService(t)
	id := svc.addDevice(codeswitchDevice("A", "1"))

	// Prime the cache so the capability check is local.
	if _, ok := c.GetDevice(id); !ok {
		t.Fatal("GetDevice() failed")
	}

	if st := c.SwitchState(id, MethodDim, "100"); st != MethodNotSupported {
		t.Fatalf("SwitchState(dim) = %v, want MethodNotSupported", st)
	}

	if sent := svc.sentCommands(); len(sent) != 0 {
		t.Errorf("sent %d raw commands, want 0 (capability check must not transmit)", len(sent))
	}
}

func TestSwitchStateUnknownDevice(t *testing.T) {
	_, c := newFakeService(t)

	if st := c.SwitchState(999, MethodTurnOn, ""); st != DeviceNotFound {
		t.Errorf("SwitchState(unknown id) = %v, want DeviceNotFound", st)
	}
}

func TestUndefinedDeviceRejectsStateChange(t *testing.T) {
	svc, c := newFakeService(t)
	id := svc.addDevice(fakeDevice{
		name:     "mystery",
		protocol: "zigbee", // no encoder for this protocol
		typ:      int(KindSimple),
		methods:  int(MethodTurnOn),
	})

	if got := c.DeviceType(id); got != KindUndefined {
		t.Fatalf("DeviceType() = %v, want KindUndefined", got)
	}
	if st := c.TurnOn(id); st != DeviceNotFound {
		t.Errorf("TurnOn(undefined device) = %v, want DeviceNotFound", st)
	}
}

func TestGroupFanOut(t *testing.T) {
	svc, c := newFakeService(t)
	first := svc.addDevice(codeswitchDevice("A", "1"))
	second := svc.addDevice(codeswitchDevice("B", "2"))
	group := svc.addDevice(fakeDevice{
		name:    "living room",
		typ:     int(KindGroup),
		members: fmt.Sprintf("%d,%d", first, second),
	})

	if st := c.TurnOn(group); st != Success {
		t.Fatalf("TurnOn(group) = %v, want Success", st)
	}

	sent := svc.sentCommands()
	if len(sent) != 2 {
		t.Fatalf("sent %d raw commands, want 2", len(sent))
	}
	// Members are dispatched in member order.
	if !strings.Contains(sent[0], "house:A;unit:1;") {
		t.Errorf("first command %q is not for the first member", sent[0])
	}
	if !strings.Contains(sent[1], "house:B;unit:2;") {
		t.Errorf("second command %q is not for the second member", sent[1])
	}
}

func TestGroupPartialFailureSucceeds(t *testing.T) {
	svc, c := newFakeService(t)
	working := svc.addDevice(codeswitchDevice("A", "1"))
	group := svc.addDevice(fakeDevice{
		typ:     int(KindGroup),
		members: fmt.Sprintf("999,%d", working),
	})

	// One member is gone, one works: the group operation succeeds.
	if st := c.TurnOn(group); st != Success {
		t.Errorf("TurnOn(group) = %v, want Success with one working member", st)
	}
}

func TestGroupAllMembersFail(t *testing.T) {
	svc, c := newFakeService(t)
	group := svc.addDevice(fakeDevice{
		typ:     int(KindGroup),
		members: "998,999",
	})

	if st := c.TurnOn(group); st != DeviceNotFound {
		t.Errorf("TurnOn(group) = %v, want DeviceNotFound when every member fails", st)
	}
}

func TestGroupCycleDoesNotRecurse(t *testing.T) {
	svc, c := newFakeService(t)
	member := svc.addDevice(codeswitchDevice("A", "1"))
	group := svc.addDevice(fakeDevice{typ: int(KindGroup)})

	// The group contains itself plus one real member.
	svc.mu.Lock()
	svc.devices[group].members = fmt.Sprintf("%d,%d", group, member)
	svc.mu.Unlock()

	if st := c.TurnOn(group); st != Success {
		t.Errorf("TurnOn(self-referencing group) = %v, want Success", st)
	}
	if sent := svc.sentCommands(); len(sent) != 1 {
		t.Errorf("sent %d raw commands, want 1", len(sent))
	}
}

func TestRegistryLifecycle(t *testing.T) {
	_, c := newFakeService(t)

	id := c.AddDevice()
	if id <= 0 {
		t.Fatalf("AddDevice() = %d, want positive id", id)
	}

	if n := c.NumDevices(); n != 1 {
		t.Errorf("NumDevices() = %d, want 1", n)
	}
	if got := c.DeviceID(0); got != id {
		t.Errorf("DeviceID(0) = %d, want %d", got, id)
	}

	if !c.SetName(id, "hallway") {
		t.Fatal("SetName() = false, want true")
	}
	if got := c.Name(id); got != "hallway" {
		t.Errorf("Name() = %q, want %q", got, "hallway")
	}

	if !c.SetProtocol(id, "arctech") {
		t.Fatal("SetProtocol() = false")
	}
	if !c.SetModel(id, "codeswitch") {
		t.Fatal("SetModel() = false")
	}
	if !c.SetParameter(id, "house", "D") {
		t.Fatal("SetParameter() = false")
	}
	if got := c.Parameter(id, "house", ""); got != "D" {
		t.Errorf("Parameter(house) = %q, want %q", got, "D")
	}

	if !c.RemoveDevice(id) {
		t.Fatal("RemoveDevice() = false, want true")
	}
	if _, ok := c.GetDevice(id); ok {
		t.Error("GetDevice() found a removed device")
	}
	if st := c.SwitchState(id, MethodTurnOn, ""); st != DeviceNotFound {
		t.Errorf("SwitchState(removed id) = %v, want DeviceNotFound", st)
	}
	if c.RemoveDevice(id) {
		t.Error("RemoveDevice() = true for nonexistent id, want false")
	}
}

func TestParameterDefault(t *testing.T) {
	svc, c := newFakeService(t)
	id := svc.addDevice(codeswitchDevice("A", "1"))

	if got := c.Parameter(id, "fade", "slow"); got != "slow" {
		t.Errorf("Parameter(unset) = %q, want caller default %q", got, "slow")
	}
	if got := c.Parameter(999, "fade", "slow"); got != "slow" {
		t.Errorf("Parameter(unknown device) = %q, want caller default %q", got, "slow")
	}
}

func TestMethodsMasking(t *testing.T) {
	svc, c := newFakeService(t)
	id := svc.addDevice(dimmerDevice("12345", "3"))

	// Caller supports only on/off: dim and learn are masked out.
	got := c.Methods(id, MethodTurnOn|MethodTurnOff)
	if got != MethodTurnOn|MethodTurnOff {
		t.Errorf("Methods() = %v, want on|off", got)
	}

	if got := c.Methods(id, MethodAll); got != MethodTurnOn|MethodTurnOff|MethodDim|MethodLearn {
		t.Errorf("Methods(all) = %v, want device mask", got)
	}

	if got := c.Methods(999, MethodAll); got != 0 {
		t.Errorf("Methods(unknown id) = %v, want 0", got)
	}
}

func TestMaskUnsupportedMethods(t *testing.T) {
	a := Method(0b10110)
	b := Method(0b10010)

	if got := MaskUnsupportedMethods(a, b); got != b {
		t.Errorf("mask = %05b, want %05b", got, b)
	}

	// Masking is idempotent.
	if got := MaskUnsupportedMethods(MaskUnsupportedMethods(a, b), b); got != MaskUnsupportedMethods(a, b) {
		t.Error("masking is not idempotent")
	}
}

func TestConcurrentCallers(t *testing.T) {
	svc, c := newFakeService(t)

	const deviceCount = 8
	ids := make([]int, deviceCount)
	for i := 0; i < deviceCount; i++ {
		ids[i] = svc.addDevice(codeswitchDevice(string(rune('A'+i)), "1"))
	}

	// Concurrent switch operations plus registry reads: every request
	// must pair with its own response.
	var wg sync.WaitGroup
	errs := make(chan string, deviceCount*2)
	for i := 0; i < deviceCount; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			if st := c.TurnOn(ids[i]); st != Success {
				errs <- fmt.Sprintf("TurnOn(%d) = %v", ids[i], st)
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if n := c.NumDevices(); n != deviceCount {
				errs <- fmt.Sprintf("NumDevices() = %d, want %d", n, deviceCount)
			}
		}()
	}
	wg.Wait()
	close(errs)

	for e := range errs {
		t.Error(e)
	}

	if sent := svc.sentCommands(); len(sent) != deviceCount {
		t.Errorf("sent %d raw commands, want %d", len(sent), deviceCount)
	}
}

func TestDeviceEventCallback(t *testing.T) {
	svc, c := newFakeService(t)
	id := svc.addDevice(codeswitchDevice("A", "1"))

	type event struct {
		id     int
		method Method
		value  string
	}
	got := make(chan event, 1)

	reg := c.RegisterDeviceEvent(func(deviceID int, method Method, value string) {
		got <- event{deviceID, method, value}
	})

	if err := svc.pushDeviceEvent(id, int(MethodTurnOn), ""); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	select {
	case e := <-got:
		if e.id != id || e.method != MethodTurnOn {
			t.Errorf("callback got %+v, want id=%d method=MethodTurnOn", e, id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback not invoked")
	}

	// After unregistering, pushes no longer reach the callback.
	if !c.Unregister(reg) {
		t.Fatal("Unregister() = false, want true")
	}
	if err := svc.pushDeviceEvent(id, int(MethodTurnOff), ""); err != nil {
		t.Fatalf("push failed: %v", err)
	}
	select {
	case e := <-got:
		t.Errorf("unregistered callback invoked with %+v", e)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRawEventCallback(t *testing.T) {
	svc, c := newFakeService(t)

	got := make(chan string, 1)
	c.RegisterRawDeviceEvent(func(data string, controllerID int) {
		got <- fmt.Sprintf("%s@%d", data, controllerID)
	})

	raw := "class:command;protocol:arctech;model:selflearning;house:1234;unit:1;method:turnon;"
	if err := svc.pushRawEvent(raw, 2); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	select {
	case s := <-got:
		if s != raw+"@2" {
			t.Errorf("callback got %q", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback not invoked")
	}
}

func TestDeviceChangeInvalidatesCache(t *testing.T) {
	svc, c := newFakeService(t)
	id := svc.addDevice(codeswitchDevice("A", "1"))

	if _, ok := c.GetDevice(id); !ok {
		t.Fatal("GetDevice() failed")
	}

	got := make(chan int, 1)
	c.RegisterDeviceChangeEvent(func(deviceID, changeEvent, _ int) {
		if changeEvent == DeviceRemoved {
			got <- deviceID
		}
	})

	// Service-side removal: push reaches the callback and drops the
	// cached entry.
	svc.mu.Lock()
	delete(svc.devices, id)
	svc.mu.Unlock()
	if err := svc.pushDeviceChange(id, DeviceRemoved, 0); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	select {
	case deviceID := <-got:
		if deviceID != id {
			t.Errorf("callback got id %d, want %d", deviceID, id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback not invoked")
	}

	if _, ok := c.GetDevice(id); ok {
		t.Error("GetDevice() still finds the removed device")
	}
}

func TestNoCallbackAfterClose(t *testing.T) {
	svc, c := newFakeService(t)

	var mu sync.Mutex
	invocations := 0
	c.RegisterDeviceEvent(func(int, Method, string) {
		mu.Lock()
		invocations++
		mu.Unlock()
	})

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	// The push lands on a dead connection; it must never reach the
	// callback.
	_ = svc.pushDeviceEvent(1, int(MethodTurnOn), "")
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if invocations != 0 {
		t.Errorf("callback invoked %d times after Close", invocations)
	}
}

func TestCloseIdempotent(t *testing.T) {
	_, c := newFakeService(t)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close() error: %v", err)
	}

	if st := c.TurnOn(1); st != ConnectingService {
		t.Errorf("TurnOn() after Close = %v, want ConnectingService", st)
	}
}

func TestDisconnectSurfacesCommunication(t *testing.T) {
	svc, c := newFakeService(t)
	id := svc.addDevice(codeswitchDevice("A", "1"))

	// Prime the cache so the next operation goes straight to transmit.
	if _, ok := c.GetDevice(id); !ok {
		t.Fatal("GetDevice() failed")
	}

	// Sever the command connection under the client.
	svc.cmd.Close()

	start := time.Now()
	st := c.TurnOn(id)
	elapsed := time.Since(start)

	if st != Communication {
		t.Errorf("TurnOn() on severed transport = %v, want Communication", st)
	}
	if elapsed > 5*time.Second {
		t.Errorf("TurnOn() blocked %v, want prompt failure", elapsed)
	}
}

func TestPanickingCallbackDoesNotKillListener(t *testing.T) {
	svc, c := newFakeService(t)

	c.RegisterDeviceEvent(func(int, Method, string) {
		panic("callback bug")
	})
	got := make(chan struct{}, 1)
	c.RegisterDeviceEvent(func(int, Method, string) {
		got <- struct{}{}
	})

	if err := svc.pushDeviceEvent(1, int(MethodTurnOn), ""); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	// The second callback still fires, and the listener survives to
	// deliver another push.
	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("second callback not invoked")
	}

	if err := svc.pushDeviceEvent(1, int(MethodTurnOff), ""); err != nil {
		t.Fatalf("second push failed: %v", err)
	}
	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not survive the panic")
	}
}
