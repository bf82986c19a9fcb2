package testutils

import (
	"context"
	"sync"

	"github.com/srg/blereader/internal/device"
	"github.com/srg/blereader/internal/ringchan"
)

var _ device.Adapter = (*FakeAdapter)(nil)

// Call is one recorded adapter invocation
type Call struct {
	Op             string
	PeripheralID   string
	Service        string
	Characteristic string
	Payload        []byte
}

// FakeAdapter is a scriptable device.Adapter that records every call.
//
// Behavior is replaced per operation with the On* methods; by default every call succeeds.
// Asynchronous adapter events are injected with the Emit* methods.
//
//	fake := testutils.NewFakeAdapter()
//	fake.OnConnect(func(ctx context.Context, id string) error {
//	    return errors.New("refused")
//	})
//	fake.EmitDiscovered(device.PeripheralInfo{ID: "AA:BB"})
type FakeAdapter struct {
	mu     sync.Mutex
	calls  []Call
	events *ringchan.RingChannel[device.Event]

	scan                 func(ctx context.Context, opts device.ScanOptions) error
	connect              func(ctx context.Context, id string) error
	disconnect           func(ctx context.Context, id string) error
	services             func(ctx context.Context, id string) (*device.ServiceInfo, error)
	startNotification    func(ctx context.Context, id, service, characteristic string) error
	stopNotification     func(ctx context.Context, id, service, characteristic string) error
	write                func(ctx context.Context, id, service, characteristic string, data []byte) error
	connectedPeripherals func(ctx context.Context, filters []string) ([]device.PeripheralInfo, error)
}

// NewFakeAdapter creates an adapter whose calls all succeed
func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{events: ringchan.New[device.Event](256)}
}

func (f *FakeAdapter) record(c Call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c.Payload != nil {
		c.Payload = append([]byte(nil), c.Payload...)
	}
	f.calls = append(f.calls, c)
}

// Calls returns a copy of the recorded calls in order
func (f *FakeAdapter) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsOf returns the recorded calls of one op
func (f *FakeAdapter) CallsOf(op string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// CallCount returns how many times op was invoked
func (f *FakeAdapter) CallCount(op string) int {
	return len(f.CallsOf(op))
}

// Ops returns the sequence of recorded op names
func (f *FakeAdapter) Ops() []string {
	calls := f.Calls()
	ops := make([]string, len(calls))
	for i, c := range calls {
		ops[i] = c.Op
	}
	return ops
}

// ----------------------------
// Behavior overrides
// ----------------------------

func (f *FakeAdapter) OnScan(fn func(ctx context.Context, opts device.ScanOptions) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scan = fn
}

func (f *FakeAdapter) OnConnect(fn func(ctx context.Context, id string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connect = fn
}

func (f *FakeAdapter) OnDisconnect(fn func(ctx context.Context, id string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnect = fn
}

func (f *FakeAdapter) OnRetrieveServices(fn func(ctx context.Context, id string) (*device.ServiceInfo, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.services = fn
}

func (f *FakeAdapter) OnStartNotification(fn func(ctx context.Context, id, service, characteristic string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startNotification = fn
}

func (f *FakeAdapter) OnStopNotification(fn func(ctx context.Context, id, service, characteristic string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopNotification = fn
}

func (f *FakeAdapter) OnWrite(fn func(ctx context.Context, id, service, characteristic string, data []byte) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.write = fn
}

func (f *FakeAdapter) OnConnectedPeripherals(fn func(ctx context.Context, filters []string) ([]device.PeripheralInfo, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectedPeripherals = fn
}

// ----------------------------
// Event injection
// ----------------------------

// EmitDiscovered emits a PeripheralDiscovered event
func (f *FakeAdapter) EmitDiscovered(info device.PeripheralInfo) {
	f.events.Send(device.PeripheralDiscovered{Peripheral: info})
}

// EmitDisconnected emits a PeripheralDisconnected event
func (f *FakeAdapter) EmitDisconnected(id string, cause error) {
	f.events.Send(device.PeripheralDisconnected{PeripheralID: id, Err: cause})
}

// EmitValue emits a ValueUpdated event
func (f *FakeAdapter) EmitValue(id, service, characteristic string, value []byte) {
	f.events.Send(device.ValueUpdated{PeripheralID: id, ServiceID: service, CharacteristicID: characteristic, Value: value})
}

// EmitScanStopped emits a ScanStopped event
func (f *FakeAdapter) EmitScanStopped(err error) {
	f.events.Send(device.ScanStopped{Err: err})
}

// Close closes the event stream
func (f *FakeAdapter) Close() {
	f.events.Close()
}

// ----------------------------
// device.Adapter
// ----------------------------

func (f *FakeAdapter) Events() <-chan device.Event {
	return f.events.C()
}

func (f *FakeAdapter) Scan(ctx context.Context, opts device.ScanOptions) error {
	f.record(Call{Op: "scan"})
	f.mu.Lock()
	fn := f.scan
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, opts)
	}
	return nil
}

func (f *FakeAdapter) StopScan() error {
	f.record(Call{Op: "stop_scan"})
	f.EmitScanStopped(nil)
	return nil
}

func (f *FakeAdapter) Connect(ctx context.Context, id string) error {
	f.record(Call{Op: "connect", PeripheralID: id})
	f.mu.Lock()
	fn := f.connect
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, id)
	}
	return nil
}

func (f *FakeAdapter) Disconnect(ctx context.Context, id string) error {
	f.record(Call{Op: "disconnect", PeripheralID: id})
	f.mu.Lock()
	fn := f.disconnect
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, id)
	}
	return nil
}

func (f *FakeAdapter) RetrieveServices(ctx context.Context, id string) (*device.ServiceInfo, error) {
	f.record(Call{Op: "retrieve_services", PeripheralID: id})
	f.mu.Lock()
	fn := f.services
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, id)
	}
	return &device.ServiceInfo{PeripheralID: id}, nil
}

func (f *FakeAdapter) StartNotification(ctx context.Context, id, service, characteristic string) error {
	f.record(Call{Op: "start_notification", PeripheralID: id, Service: service, Characteristic: characteristic})
	f.mu.Lock()
	fn := f.startNotification
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, id, service, characteristic)
	}
	return nil
}

func (f *FakeAdapter) StopNotification(ctx context.Context, id, service, characteristic string) error {
	f.record(Call{Op: "stop_notification", PeripheralID: id, Service: service, Characteristic: characteristic})
	f.mu.Lock()
	fn := f.stopNotification
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, id, service, characteristic)
	}
	return nil
}

func (f *FakeAdapter) Write(ctx context.Context, id, service, characteristic string, data []byte) error {
	f.record(Call{Op: "write", PeripheralID: id, Service: service, Characteristic: characteristic, Payload: data})
	f.mu.Lock()
	fn := f.write
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, id, service, characteristic, data)
	}
	return nil
}

func (f *FakeAdapter) ConnectedPeripherals(ctx context.Context, filters []string) ([]device.PeripheralInfo, error) {
	f.record(Call{Op: "connected_peripherals"})
	f.mu.Lock()
	fn := f.connectedPeripherals
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, filters)
	}
	return nil, nil
}
