package connection

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"

	"github.com/srg/blereader/internal/device"
	"github.com/srg/blereader/internal/dispatch"
	"github.com/srg/blereader/internal/groutine"
	"github.com/srg/blereader/internal/registry"
	"github.com/srg/blereader/internal/ringchan"
	"github.com/srg/blereader/internal/sequence"
	"github.com/srg/blereader/pkg/config"
)

// ErrNotRunning is returned by requests made before Start or after Close
var ErrNotRunning = errors.New("connection manager is not running")

// ----------------------------
// Manager
// ----------------------------

// Manager drives the link of the configured target peripheral
type Manager struct {
	adapter    device.Adapter
	target     config.TargetConfig
	scan       config.ScanConfig
	timeouts   config.TimeoutConfig
	logger     *logrus.Logger
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	sequencer  *sequence.Sequencer

	latest  *hashmap.Map[string, []byte]
	history mpmc.RichOverlappedRingBuffer[ErrorRecord]
	events  *ringchan.RingChannel[Event]

	onError       ErrorHandler
	onMeasurement dispatch.Consumer
	eventBuffer   int
	historySize   int

	scanning atomic.Bool
	started  atomic.Bool
	cmds     chan func()
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	closeMu  sync.Mutex

	// owned by the event loop
	links    map[string]*link
	appState AppState
}

// link is the loop-owned state of one peripheral
type link struct {
	id       string
	gen      uint64
	state    device.ConnectionState
	session  context.Context
	close    context.CancelCauseFunc
	services *device.ServiceInfo
}

// NewManager creates a manager for cfg.Target. Call Start to run it.
func NewManager(adapter device.Adapter, cfg *config.Config, logger *logrus.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	m := &Manager{
		adapter:     adapter,
		target:      cfg.Target,
		scan:        cfg.Scan,
		timeouts:    cfg.Timeouts,
		logger:      logger,
		registry:    registry.New(logger),
		dispatcher:  dispatch.New(logger),
		latest:      hashmap.New[string, []byte](),
		eventBuffer: DefaultEventBuffer,
		historySize: DefaultHistorySize,
		cmds:        make(chan func(), defaultCommandBuffer),
		done:        make(chan struct{}),
		links:       make(map[string]*link),
		appState:    AppActive,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.events = ringchan.New[Event](m.eventBuffer)
	m.history = mpmc.NewOverlappedRingBuffer[ErrorRecord](uint32(m.historySize))
	m.sequencer = sequence.New(m, logger)
	return m
}

// Start runs the event loop until ctx is cancelled or Close is called
func (m *Manager) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return errors.New("connection manager already started")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)

	started := make(chan struct{})
	groutine.Go(m.ctx, "link-loop", func(ctx context.Context) {
		close(started)
		m.loop(ctx)
	})
	<-started

	m.logger.WithField("target", m.target.DeviceID).Info("Connection manager started")
	return nil
}

// Close stops the event loop, cancels every session and closes the Events channel
func (m *Manager) Close() {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()

	if !m.started.Load() || m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

// Done is closed once the event loop has exited
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Events streams state changes, failures and scan transitions.
// The channel is closed when the manager stops.
func (m *Manager) Events() <-chan Event {
	return m.events.C()
}

// Registry exposes the peripheral registry (read access for presentation)
func (m *Manager) Registry() *registry.Registry {
	return m.registry
}

// ----------------------------
// Event loop
// ----------------------------

func (m *Manager) loop(ctx context.Context) {
	defer func() {
		for _, l := range m.links {
			m.closeSession(l, &device.Error{Kind: device.KindCancelled, Op: "shutdown", PeripheralID: l.id})
		}
		m.events.Close()
		close(m.done)
		m.logger.Debug("Connection manager stopped")
	}()

	adapterEvents := m.adapter.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-m.cmds:
			fn()
		case ev, ok := <-adapterEvents:
			if !ok {
				m.logger.Warn("Adapter event stream closed")
				adapterEvents = nil
				continue
			}
			m.handleEvent(ev)
		}
	}
}

// post schedules fn on the event loop
func (m *Manager) post(fn func()) bool {
	select {
	case m.cmds <- fn:
		return true
	case <-m.done:
		return false
	}
}

// call runs fn on the event loop and waits for its result
func (m *Manager) call(fn func() error) error {
	if !m.started.Load() {
		return ErrNotRunning
	}
	result := make(chan error, 1)
	if !m.post(func() { result <- fn() }) {
		return ErrNotRunning
	}
	select {
	case err := <-result:
		return err
	case <-m.done:
		return ErrNotRunning
	}
}

// async runs an adapter call off the loop, bounded by timeout, and posts done(err) back to the loop
func (m *Manager) async(name string, timeout time.Duration, fn func(ctx context.Context) error, done func(err error)) {
	groutine.Go(m.ctx, name, func(ctx context.Context) {
		err := device.Await(ctx, timeout, fn)
		m.post(func() { done(err) })
	})
}

func (m *Manager) handleEvent(ev device.Event) {
	switch e := ev.(type) {
	case device.PeripheralDiscovered:
		m.handleDiscovered(e.Peripheral)
	case device.ScanStopped:
		m.handleScanStopped(e.Err)
	case device.PeripheralDisconnected:
		m.handleDisconnected(e.PeripheralID, e.Err)
	case device.ValueUpdated:
		m.dispatcher.Dispatch(e)
	default:
		m.logger.WithField("event", ev).Debug("Ignoring unknown adapter event")
	}
}

// ----------------------------
// Transitions
// ----------------------------

func (m *Manager) isTarget(id string) bool {
	return device.EqualID(id, m.target.DeviceID)
}

func (m *Manager) handleDiscovered(info device.PeripheralInfo) {
	if !m.isTarget(info.ID) {
		m.logger.WithField("peripheral", info.ID).Debug("Ignoring non-target peripheral")
		return
	}
	if _, created := m.registry.Upsert(info); created {
		m.logger.WithFields(logrus.Fields{"peripheral": info.ID, "name": info.Name, "rssi": info.RSSI}).Info("Target peripheral discovered")
	}
	m.beginConnect(info.ID, "discovery")
}

// beginConnect starts a connect attempt unless one is pending or the link is up
func (m *Manager) beginConnect(id, reason string) {
	l := m.linkFor(id)
	if !l.state.CanConnect() {
		m.logger.WithFields(logrus.Fields{"peripheral": id, "state": l.state, "trigger": reason}).Debug("Connect trigger ignored")
		return
	}

	l.gen++
	gen := l.gen
	m.setState(l, device.StateConnecting)
	m.logger.WithFields(logrus.Fields{"peripheral": id, "trigger": reason}).Info("Connecting to peripheral")

	m.async("connect", m.timeouts.Connect, func(ctx context.Context) error {
		return m.adapter.Connect(ctx, id)
	}, func(err error) {
		if !m.current(l, gen) {
			m.logger.WithField("peripheral", id).Debug("Dropping stale connect result")
			if err == nil {
				m.dropOrphan(id)
			}
			return
		}
		if err != nil {
			m.report(id, device.KindConnect, "connect", err)
			m.setState(l, device.StateFailed)
			return
		}
		m.onConnected(l, gen)
	})
}

func (m *Manager) onConnected(l *link, gen uint64) {
	l.session, l.close = context.WithCancelCause(m.ctx)
	m.setState(l, device.StateConnected)
	m.logger.WithField("peripheral", l.id).Info("Connected to peripheral")

	// info is only valid when the call returned in time; a timed-out call may still write it
	var info *device.ServiceInfo
	m.async("retrieve-services", m.timeouts.Services, func(ctx context.Context) error {
		var err error
		info, err = m.adapter.RetrieveServices(ctx, l.id)
		return err
	}, func(err error) {
		if !m.current(l, gen) {
			return
		}
		if err != nil {
			m.fail(l, device.KindServiceResolution, "retrieve_services", err)
			return
		}
		l.services = info
		m.setState(l, device.StateServicesResolved)
		m.subscribeMeasurement(l, gen)
	})
}

func (m *Manager) subscribeMeasurement(l *link, gen uint64) {
	svc, char := m.target.ServiceID, m.target.CharacteristicID
	sub := m.dispatcher.Subscribe(dispatch.NewKey(l.id, svc, char), m.recording(m.onMeasurement))

	m.async("subscribe", m.timeouts.Subscribe, func(ctx context.Context) error {
		return m.adapter.StartNotification(ctx, l.id, svc, char)
	}, func(err error) {
		if !m.current(l, gen) {
			return
		}
		if err != nil {
			sub.Unsubscribe()
			m.fail(l, device.KindSubscribe, "start_notification", err)
			return
		}
		m.setState(l, device.StateStreaming)
		m.logger.WithFields(logrus.Fields{"peripheral": l.id, "characteristic": char}).Info("Streaming measurements")
	})
}

// fail moves a link to Failed after a post-connect error and tears the link down
func (m *Manager) fail(l *link, kind device.ErrorKind, op string, err error) {
	l.gen++
	m.dispatcher.RemovePeripheral(l.id)
	m.closeSession(l, device.Wrap(kind, op, l.id, err))
	m.report(l.id, kind, op, err)
	m.setState(l, device.StateFailed)
	m.disconnectQuietly(l.id)
}

// disconnectQuietly drops the adapter link of id without reporting failures
func (m *Manager) disconnectQuietly(id string) {
	m.async("disconnect", m.timeouts.Disconnect, func(ctx context.Context) error {
		return m.adapter.Disconnect(ctx, id)
	}, func(err error) {
		if err != nil {
			m.logger.WithField("peripheral", id).WithError(err).Debug("Best-effort disconnect failed")
		}
	})
}

// dropOrphan tears down a link that came up after its attempt was abandoned.
// A newer attempt owning the same peripheral keeps the link.
func (m *Manager) dropOrphan(id string) {
	if cur, ok := m.links[key(id)]; ok && (cur.state == device.StateConnecting || cur.state.IsConnected()) {
		return
	}
	m.logger.WithField("peripheral", id).Info("Dropping link of abandoned connect attempt")
	m.disconnectQuietly(id)
}

func (m *Manager) handleDisconnected(id string, cause error) {
	l, ok := m.links[key(id)]
	if !ok {
		m.logger.WithField("peripheral", id).Debug("Ignoring disconnect of unmanaged peripheral")
		return
	}

	l.gen++
	removed := m.dispatcher.RemovePeripheral(id)
	m.closeSession(l, &device.Error{Kind: device.KindCancelled, Op: "disconnect", PeripheralID: id, Err: cause})
	m.setState(l, device.StateDisconnected)

	entry := m.logger.WithFields(logrus.Fields{"peripheral": id, "subscriptions_removed": removed})
	if cause != nil {
		entry.WithError(cause).Warn("Peripheral disconnected")
	} else {
		entry.Info("Peripheral disconnected")
	}
}

func (m *Manager) handleScanStopped(err error) {
	if err != nil {
		m.report("", device.KindScan, "scan", err)
	} else {
		m.logger.Debug("Scan stopped")
	}
	m.scanning.Store(false)
	m.emit(Event{Type: EventScanStopped, Err: err})
}

func (m *Manager) startScan() {
	if m.scanning.Load() {
		m.logger.Debug("Scan already running")
		return
	}
	m.scanning.Store(true)
	m.emit(Event{Type: EventScanStarted})
	m.logger.WithField("duration", m.scan.Duration).Info("Scanning for peripherals")

	opts := device.ScanOptions{
		ServiceFilters:  m.scan.ServiceFilters,
		Duration:        m.scan.Duration,
		AllowDuplicates: m.scan.AllowDuplicates,
	}
	m.async("scan", m.timeouts.ScanStart, func(ctx context.Context) error {
		return m.adapter.Scan(ctx, opts)
	}, func(err error) {
		if err != nil {
			m.report("", device.KindScan, "scan", err)
			m.scanning.Store(false)
		}
	})
}

// foregroundSync connects to already-linked target peripherals and rescans
func (m *Manager) foregroundSync() {
	m.logger.Info("App became active, syncing peripherals")

	results := make(chan []device.PeripheralInfo, 1)
	filters := m.scan.ServiceFilters
	m.async("connected-peripherals", m.timeouts.Query, func(ctx context.Context) error {
		found, err := m.adapter.ConnectedPeripherals(ctx, filters)
		results <- found
		return err
	}, func(err error) {
		var found []device.PeripheralInfo
		if err != nil {
			m.report("", device.KindScan, "connected_peripherals", err)
		} else {
			found = <-results
		}
		m.logger.WithField("count", len(found)).Debug("Connected peripherals retrieved")
		for _, info := range found {
			if !m.isTarget(info.ID) {
				continue
			}
			m.registry.Upsert(info)
			m.beginConnect(info.ID, "foreground")
		}
		m.startScan()
	})
}

// ----------------------------
// Helpers
// ----------------------------

func key(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

func (m *Manager) linkFor(id string) *link {
	k := key(id)
	l, ok := m.links[k]
	if !ok {
		l = &link{id: id, state: device.StateIdle}
		m.links[k] = l
	}
	return l
}

func (m *Manager) current(l *link, gen uint64) bool {
	cur, ok := m.links[key(l.id)]
	return ok && cur == l && l.gen == gen
}

func (m *Manager) setState(l *link, state device.ConnectionState) {
	prev := l.state
	l.state = state
	m.registry.SetState(l.id, state)
	if prev == state {
		return
	}
	m.logger.WithFields(logrus.Fields{
		"peripheral": l.id,
		"from":       prev.String(),
		"to":         state.String(),
	}).Debug("Link state changed")
	m.emit(Event{Type: EventStateChanged, PeripheralID: l.id, Previous: prev, State: state})
}

func (m *Manager) closeSession(l *link, cause error) {
	if l.close != nil {
		l.close(cause)
	}
	l.session, l.close = nil, nil
	l.services = nil
}

func (m *Manager) emit(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	m.events.Send(ev)
}

// report records a failure; it never returns it to the caller of the triggering event
func (m *Manager) report(id string, kind device.ErrorKind, op string, err error) {
	werr := device.Wrap(kind, op, id, err)
	kind = device.KindOf(werr)

	m.logger.WithFields(logrus.Fields{
		"peripheral": id,
		"op":         op,
		"kind":       kind,
	}).WithError(err).Error("Link operation failed")

	now := time.Now()
	if _, qerr := m.history.EnqueueM(ErrorRecord{PeripheralID: id, Kind: kind, Op: op, Err: werr, At: now}); qerr != nil {
		m.logger.WithError(qerr).Warn("Failed to record error history")
	}
	m.emit(Event{Type: EventError, PeripheralID: id, Kind: kind, Err: werr, At: now})

	if m.onError != nil {
		m.onError(id, kind, werr)
	}
}

// recording wraps consumer so every value also updates LatestValue
func (m *Manager) recording(consumer dispatch.Consumer) dispatch.Consumer {
	return func(ev device.ValueUpdated) {
		m.latest.Set(device.NormalizeUUID(ev.CharacteristicID), ev.Value)
		if consumer != nil {
			consumer(ev)
		}
	}
}
