package connection

import (
	"context"

	"github.com/srg/blereader/internal/device"
	"github.com/srg/blereader/internal/dispatch"
)

// Session returns the context of the current link, cancelled when the link drops
func (m *Manager) Session(id string) (context.Context, error) {
	var session context.Context
	err := m.call(func() error {
		l, ok := m.links[key(id)]
		if !ok || !l.state.IsConnected() || l.session == nil {
			return &device.Error{Kind: device.KindNotConnected, Op: "session", PeripheralID: id}
		}
		session = l.session
		return nil
	})
	return session, err
}

// Subscribe registers consumer for a characteristic and enables notifications.
// The dispatcher entry is installed before the adapter call so no early value is lost.
// If the adapter call fails, the consumer previously registered for the key is restored.
func (m *Manager) Subscribe(ctx context.Context, id, service, characteristic string, consumer dispatch.Consumer) error {
	var sub *dispatch.Subscription
	err := m.call(func() error {
		if err := m.requireConnected(id, "subscribe"); err != nil {
			return err
		}
		sub = m.dispatcher.Subscribe(dispatch.NewKey(id, service, characteristic), m.recording(consumer))
		return nil
	})
	if err != nil {
		return err
	}

	err = device.Await(ctx, m.timeouts.Subscribe, func(ctx context.Context) error {
		return m.adapter.StartNotification(ctx, id, service, characteristic)
	})
	if err != nil {
		sub.Revert()
		return device.Wrap(device.KindSubscribe, "subscribe", id, err)
	}
	return nil
}

// Unsubscribe removes the consumer of a characteristic and disables notifications
func (m *Manager) Unsubscribe(ctx context.Context, id, service, characteristic string) error {
	m.dispatcher.Unsubscribe(dispatch.NewKey(id, service, characteristic))
	if _, err := m.Session(id); err != nil {
		// link already gone, nothing to tell the adapter
		return nil
	}
	err := device.Await(ctx, m.timeouts.Subscribe, func(ctx context.Context) error {
		return m.adapter.StopNotification(ctx, id, service, characteristic)
	})
	return device.Wrap(device.KindSubscribe, "unsubscribe", id, err)
}

// Write sends payload to a characteristic of a connected peripheral
func (m *Manager) Write(ctx context.Context, id, service, characteristic string, payload []byte) error {
	if err := m.call(func() error { return m.requireConnected(id, "write") }); err != nil {
		return err
	}
	err := device.Await(ctx, m.timeouts.Write, func(ctx context.Context) error {
		return m.adapter.Write(ctx, id, service, characteristic, payload)
	})
	return device.Wrap(device.KindWrite, "write", id, err)
}

func (m *Manager) requireConnected(id, op string) error {
	l, ok := m.links[key(id)]
	if !ok || !l.state.IsConnected() {
		return &device.Error{Kind: device.KindNotConnected, Op: op, PeripheralID: id}
	}
	return nil
}
