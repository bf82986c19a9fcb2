package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/srg/blereader/internal/device"
	"github.com/srg/blereader/internal/groutine"
	"github.com/srg/blereader/internal/ringchan"
)

// DefaultEventBuffer is the capacity of the adapter event ring
const DefaultEventBuffer = 256

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = newPlatformDevice

// Adapter implements device.Adapter on top of go-ble.
// The platform device is opened lazily on first use.
type Adapter struct {
	logger *logrus.Logger
	events *ringchan.RingChannel[device.Event]

	mu         sync.Mutex
	dev        ble.Device
	scanCancel context.CancelFunc
	scanDone   chan struct{}
	clients    map[string]*peripheral
	closed     bool
}

// peripheral is a live go-ble client and what was resolved on it
type peripheral struct {
	id      string
	name    string
	client  ble.Client
	profile *ble.Profile
	// set by Disconnect so the monitor does not report a requested disconnect
	requested bool
	done      chan struct{}
}

var _ device.Adapter = (*Adapter)(nil)

// NewAdapter creates an Adapter; the platform device is not opened until needed
func NewAdapter(logger *logrus.Logger) *Adapter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Adapter{
		logger:  logger,
		events:  ringchan.New[device.Event](DefaultEventBuffer),
		clients: make(map[string]*peripheral),
	}
}

// Events returns the adapter event stream
func (a *Adapter) Events() <-chan device.Event {
	return a.events.C()
}

func (a *Adapter) platform() (ble.Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil, device.Wrap(device.KindUnsupported, "open", "", errors.New("adapter closed"))
	}
	if a.dev != nil {
		return a.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		return nil, NormalizeError(err)
	}
	a.dev = dev
	return dev, nil
}

func (a *Adapter) emit(ev device.Event) {
	if a.events.Send(ev) {
		a.logger.WithField("event", fmt.Sprintf("%T", ev)).Warn("Adapter event buffer full, oldest event dropped")
	}
}

// Scan starts a background scan and returns once it is running.
// The scan ends on StopScan or after opts.Duration, and a ScanStopped event follows.
func (a *Adapter) Scan(_ context.Context, opts device.ScanOptions) error {
	dev, err := a.platform()
	if err != nil {
		return err
	}

	filters, err := parseUUIDs(opts.ServiceFilters)
	if err != nil {
		return err
	}

	a.mu.Lock()
	if a.scanCancel != nil {
		a.mu.Unlock()
		a.logger.Debug("Scan already running")
		return nil
	}
	var (
		scanCtx context.Context
		cancel  context.CancelFunc
	)
	if opts.Duration > 0 {
		scanCtx, cancel = context.WithTimeout(context.Background(), opts.Duration)
	} else {
		scanCtx, cancel = context.WithCancel(context.Background())
	}
	done := make(chan struct{})
	a.scanCancel, a.scanDone = cancel, done
	a.mu.Unlock()

	a.logger.WithFields(logrus.Fields{
		"duration":   opts.Duration,
		"filters":    opts.ServiceFilters,
		"duplicates": opts.AllowDuplicates,
	}).Debug("Starting BLE scan")

	groutine.Go(scanCtx, "ble-scan", func(ctx context.Context) {
		defer close(done)
		defer cancel()

		err := dev.Scan(ctx, opts.AllowDuplicates, func(adv ble.Advertisement) {
			if !matchesFilters(adv.Services(), filters) {
				return
			}
			a.emit(device.PeripheralDiscovered{Peripheral: advertisementInfo(adv)})
		})
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			err = nil
		}

		a.mu.Lock()
		if a.scanDone == done {
			a.scanCancel, a.scanDone = nil, nil
		}
		a.mu.Unlock()

		a.emit(device.ScanStopped{Err: NormalizeError(err)})
	})
	return nil
}

// StopScan cancels a running scan and waits for it to wind down
func (a *Adapter) StopScan() error {
	a.mu.Lock()
	cancel, done := a.scanCancel, a.scanDone
	a.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Connect dials the peripheral and starts watching the link
func (a *Adapter) Connect(ctx context.Context, peripheralID string) error {
	dev, err := a.platform()
	if err != nil {
		return err
	}

	if p := a.lookup(peripheralID); p != nil {
		a.logger.WithField("peripheral", peripheralID).Debug("Already connected")
		return nil
	}

	client, err := dev.Dial(ctx, ble.NewAddr(peripheralID))
	if err != nil {
		return device.Wrap(device.KindConnect, "connect", peripheralID, NormalizeError(err))
	}

	p := &peripheral{id: peripheralID, name: client.Name(), client: client, done: make(chan struct{})}
	a.mu.Lock()
	a.clients[device.NormalizeUUID(peripheralID)] = p
	a.mu.Unlock()

	a.monitor(p)
	a.logger.WithField("peripheral", peripheralID).Info("BLE peripheral connected")
	return nil
}

// monitor reports spontaneous link loss as a PeripheralDisconnected event
func (a *Adapter) monitor(p *peripheral) {
	watcher, ok := p.client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		a.logger.Debug("Client does not support Disconnected() channel")
		return
	}
	groutine.Go(context.Background(), "ble-link-monitor", func(_ context.Context) {
		select {
		case <-watcher.Disconnected():
		case <-p.done:
			return
		}

		a.mu.Lock()
		requested := p.requested
		if cur := a.clients[device.NormalizeUUID(p.id)]; cur == p {
			delete(a.clients, device.NormalizeUUID(p.id))
		}
		a.mu.Unlock()

		if requested {
			return
		}
		a.logger.WithField("peripheral", p.id).Warn("Platform reported disconnection")
		a.emit(device.PeripheralDisconnected{PeripheralID: p.id, Err: device.ErrNotConnected})
	})
}

// Disconnect tears the link down; no PeripheralDisconnected event is emitted for it
func (a *Adapter) Disconnect(_ context.Context, peripheralID string) error {
	a.mu.Lock()
	p := a.clients[device.NormalizeUUID(peripheralID)]
	if p != nil {
		p.requested = true
		delete(a.clients, device.NormalizeUUID(peripheralID))
	}
	a.mu.Unlock()

	if p == nil {
		return nil
	}
	defer close(p.done)

	if err := p.client.ClearSubscriptions(); err != nil {
		a.logger.WithError(err).WithField("peripheral", peripheralID).Debug("Failed to clear subscriptions")
	}
	if err := p.client.CancelConnection(); err != nil {
		return device.Wrap(device.KindDisconnect, "disconnect", peripheralID, NormalizeError(err))
	}
	a.logger.WithField("peripheral", peripheralID).Info("BLE peripheral disconnected")
	return nil
}

// RetrieveServices discovers the full GATT profile of a connected peripheral
func (a *Adapter) RetrieveServices(_ context.Context, peripheralID string) (*device.ServiceInfo, error) {
	p := a.lookup(peripheralID)
	if p == nil {
		return nil, device.Wrap(device.KindNotConnected, "retrieve_services", peripheralID, device.ErrNotConnected)
	}

	profile, err := p.client.DiscoverProfile(true)
	if err != nil {
		return nil, device.Wrap(device.KindServiceResolution, "retrieve_services", peripheralID, NormalizeError(err))
	}

	a.mu.Lock()
	p.profile = profile
	a.mu.Unlock()

	info := profileInfo(peripheralID, profile)
	a.logger.WithFields(logrus.Fields{
		"peripheral": peripheralID,
		"services":   len(info.Services),
	}).Debug("Profile discovered")
	return info, nil
}

// StartNotification enables notifications, or indications when the characteristic only indicates
func (a *Adapter) StartNotification(_ context.Context, peripheralID, service, characteristic string) error {
	p, char, err := a.characteristic(peripheralID, service, characteristic)
	if err != nil {
		return device.Wrap(device.KindSubscribe, "start_notification", peripheralID, err)
	}

	svcID := device.NormalizeUUID(service)
	charID := device.NormalizeUUID(characteristic)
	indicate := char.Property&ble.CharNotify == 0 && char.Property&ble.CharIndicate != 0
	if char.Property&(ble.CharNotify|ble.CharIndicate) == 0 {
		return device.Wrap(device.KindSubscribe, "start_notification", peripheralID,
			fmt.Errorf("characteristic %s does not support notifications", charID))
	}

	err = p.client.Subscribe(char, indicate, func(data []byte) {
		value := make([]byte, len(data))
		copy(value, data)
		a.emit(device.ValueUpdated{
			PeripheralID:     p.id,
			ServiceID:        svcID,
			CharacteristicID: charID,
			Value:            value,
		})
	})
	if err != nil {
		return device.Wrap(device.KindSubscribe, "start_notification", peripheralID, NormalizeError(err))
	}
	return nil
}

// StopNotification disables notifications for a characteristic
func (a *Adapter) StopNotification(_ context.Context, peripheralID, service, characteristic string) error {
	p, char, err := a.characteristic(peripheralID, service, characteristic)
	if err != nil {
		return device.Wrap(device.KindSubscribe, "stop_notification", peripheralID, err)
	}
	indicate := char.Property&ble.CharNotify == 0 && char.Property&ble.CharIndicate != 0
	if err := p.client.Unsubscribe(char, indicate); err != nil {
		return device.Wrap(device.KindSubscribe, "stop_notification", peripheralID, NormalizeError(err))
	}
	return nil
}

// Write writes with response unless the characteristic only accepts writes without response
func (a *Adapter) Write(_ context.Context, peripheralID, service, characteristic string, data []byte) error {
	p, char, err := a.characteristic(peripheralID, service, characteristic)
	if err != nil {
		return device.Wrap(device.KindWrite, "write", peripheralID, err)
	}
	noRsp := char.Property&ble.CharWrite == 0 && char.Property&ble.CharWriteNR != 0
	if err := p.client.WriteCharacteristic(char, data, noRsp); err != nil {
		return device.Wrap(device.KindWrite, "write", peripheralID, NormalizeError(err))
	}
	return nil
}

// ConnectedPeripherals returns the links this adapter holds.
// go-ble does not expose links opened by other processes.
func (a *Adapter) ConnectedPeripherals(_ context.Context, serviceFilters []string) ([]device.PeripheralInfo, error) {
	filters, err := parseUUIDs(serviceFilters)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]device.PeripheralInfo, 0, len(a.clients))
	for _, p := range a.clients {
		var services []ble.UUID
		if p.profile != nil {
			for _, s := range p.profile.Services {
				services = append(services, s.UUID)
			}
		}
		if len(filters) > 0 && (p.profile == nil || !matchesFilters(services, filters)) {
			continue
		}
		out = append(out, device.PeripheralInfo{
			ID:          p.id,
			Name:        p.name,
			Connectable: true,
			Services:    uuidStrings(services),
		})
	}
	return out, nil
}

// Close stops scanning, drops every link and closes the event stream
func (a *Adapter) Close() error {
	_ = a.StopScan()

	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	ids := make([]string, 0, len(a.clients))
	for _, p := range a.clients {
		ids = append(ids, p.id)
	}
	dev := a.dev
	a.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := a.Disconnect(context.Background(), id); err != nil {
			errs = append(errs, err)
		}
	}
	if dev != nil {
		if err := dev.Stop(); err != nil {
			errs = append(errs, NormalizeError(err))
		}
	}
	a.events.Close()
	return errors.Join(errs...)
}

func (a *Adapter) lookup(peripheralID string) *peripheral {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.clients[device.NormalizeUUID(peripheralID)]
}

// characteristic finds a resolved characteristic on a connected peripheral
func (a *Adapter) characteristic(peripheralID, service, characteristic string) (*peripheral, *ble.Characteristic, error) {
	a.mu.Lock()
	p := a.clients[device.NormalizeUUID(peripheralID)]
	var profile *ble.Profile
	if p != nil {
		profile = p.profile
	}
	a.mu.Unlock()

	if p == nil {
		return nil, nil, device.ErrNotConnected
	}
	if profile == nil {
		return nil, nil, fmt.Errorf("services of %s not resolved", peripheralID)
	}
	char := findCharacteristic(profile, service, characteristic)
	if char == nil {
		return nil, nil, fmt.Errorf("characteristic %s/%s not found", device.NormalizeUUID(service), device.NormalizeUUID(characteristic))
	}
	return p, char, nil
}
