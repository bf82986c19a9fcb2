package connection

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/srg/blereader/internal/device"
	"github.com/srg/blereader/internal/registry"
	"github.com/srg/blereader/internal/sequence"
)

// VisiblePeripherals lists known peripherals in discovery order
func (m *Manager) VisiblePeripherals() []registry.PeripheralRecord {
	return m.registry.List()
}

// ConnectionStatus returns the current state of a peripheral
func (m *Manager) ConnectionStatus(id string) (device.ConnectionState, bool) {
	rec, ok := m.registry.Get(id)
	if !ok {
		return device.StateIdle, false
	}
	return rec.State, true
}

// LatestValue returns the last notified value of a characteristic
func (m *Manager) LatestValue(characteristicID string) ([]byte, bool) {
	v, ok := m.latest.Get(device.NormalizeUUID(characteristicID))
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

// IsScanning reports whether a scan is in progress
func (m *Manager) IsScanning() bool {
	return m.scanning.Load()
}

// RequestScan starts a discovery scan. It is a no-op while a scan is running.
// Scan failures are reported asynchronously.
func (m *Manager) RequestScan() error {
	return m.call(func() error {
		m.startScan()
		return nil
	})
}

// RequestConnect starts a connect attempt to a registered peripheral.
// It is a no-op while connecting or connected.
func (m *Manager) RequestConnect(id string) error {
	return m.call(func() error {
		if _, ok := m.registry.Get(id); !ok {
			return &device.Error{Kind: device.KindUnknownPeripheral, Op: "connect", PeripheralID: id}
		}
		m.beginConnect(id, "request")
		return nil
	})
}

// RequestDisconnect asks the adapter to drop the link.
// The state moves to Disconnected when the adapter confirms, even if it emits no disconnect event.
func (m *Manager) RequestDisconnect(id string) error {
	return m.call(func() error {
		l, ok := m.links[key(id)]
		if !ok || !(l.state.IsConnected() || l.state == device.StateConnecting) {
			return &device.Error{Kind: device.KindNotConnected, Op: "disconnect", PeripheralID: id}
		}

		gen := l.gen
		m.logger.WithField("peripheral", id).Info("Disconnecting from peripheral")
		m.async("disconnect", m.timeouts.Disconnect, func(ctx context.Context) error {
			return m.adapter.Disconnect(ctx, l.id)
		}, func(err error) {
			if err != nil {
				m.report(l.id, device.KindDisconnect, "disconnect", err)
				return
			}
			if m.current(l, gen) {
				m.handleDisconnected(l.id, nil)
			}
		})
		return nil
	})
}

// HandleAppState receives foreground transitions from the host.
// A move from inactive or background to active queries already-connected peripherals and rescans.
func (m *Manager) HandleAppState(state AppState) error {
	return m.call(func() error {
		prev := m.appState
		m.appState = state
		m.logger.WithFields(logrus.Fields{"from": prev, "to": state}).Debug("App state changed")
		if prev.dormant() && state == AppActive {
			m.foregroundSync()
		}
		return nil
	})
}

// Reset forgets every peripheral, invalidating sessions and subscriptions.
// Live links are dropped best-effort, including ones whose dial is still pending.
func (m *Manager) Reset() error {
	return m.call(func() error {
		for k, l := range m.links {
			connected := l.state.IsConnected()
			l.gen++
			m.dispatcher.RemovePeripheral(l.id)
			m.closeSession(l, &device.Error{Kind: device.KindCancelled, Op: "reset", PeripheralID: l.id})
			delete(m.links, k)

			// a pending dial is torn down when its late result arrives
			if connected {
				m.disconnectQuietly(l.id)
			}
		}
		m.registry.Reset()
		m.logger.Info("Peripheral registry reset")
		return nil
	})
}

// DrainErrors returns and clears the recent failure history, oldest first
func (m *Manager) DrainErrors() []ErrorRecord {
	var out []ErrorRecord
	for !m.history.IsEmpty() {
		rec, err := m.history.Dequeue()
		if err != nil {
			break
		}
		out = append(out, rec)
	}
	return out
}

// RunSequence runs seq against a connected peripheral
func (m *Manager) RunSequence(ctx context.Context, id string, seq sequence.Sequence) (*sequence.Report, error) {
	return m.sequencer.Run(ctx, id, seq)
}
