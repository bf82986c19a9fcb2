package connection

import (
	"github.com/srg/blereader/internal/device"
	"github.com/srg/blereader/internal/dispatch"
)

const (
	DefaultEventBuffer   = 64
	DefaultHistorySize   = 32
	defaultCommandBuffer = 64
)

// ErrorHandler is called on the event loop for every reported failure. It must not block.
type ErrorHandler func(peripheralID string, kind device.ErrorKind, err error)

// Option configures a Manager
type Option func(*Manager)

// WithOnError installs a failure callback
func WithOnError(fn ErrorHandler) Option {
	return func(m *Manager) {
		m.onError = fn
	}
}

// WithMeasurementConsumer receives every value of the target measurement characteristic.
// It runs on the event loop and must not block.
func WithMeasurementConsumer(fn dispatch.Consumer) Option {
	return func(m *Manager) {
		m.onMeasurement = fn
	}
}

// WithEventBuffer sets the capacity of the Events channel; older events are overwritten
func WithEventBuffer(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.eventBuffer = n
		}
	}
}

// WithHistorySize sets the capacity of the failure history
func WithHistorySize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.historySize = n
		}
	}
}
