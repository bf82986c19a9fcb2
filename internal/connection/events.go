package connection

import (
	"fmt"
	"time"

	"github.com/srg/blereader/internal/device"
)

// EventType identifies a manager event
type EventType int

const (
	EventStateChanged EventType = iota + 1
	EventError
	EventScanStarted
	EventScanStopped
)

func (t EventType) String() string {
	switch t {
	case EventStateChanged:
		return "state_changed"
	case EventError:
		return "error"
	case EventScanStarted:
		return "scan_started"
	case EventScanStopped:
		return "scan_stopped"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is emitted on the Events channel
type Event struct {
	Type         EventType
	PeripheralID string
	Previous     device.ConnectionState // EventStateChanged
	State        device.ConnectionState // EventStateChanged
	Kind         device.ErrorKind       // EventError
	Err          error                  // EventError, and EventScanStopped when the scan ended abnormally
	At           time.Time
}

// ErrorRecord is one entry of the recent-failure history
type ErrorRecord struct {
	PeripheralID string
	Kind         device.ErrorKind
	Op           string
	Err          error
	At           time.Time
}

// AppState is the foreground state reported by the host application
type AppState string

const (
	AppActive     AppState = "active"
	AppInactive   AppState = "inactive"
	AppBackground AppState = "background"
)

func (s AppState) dormant() bool {
	return s == AppInactive || s == AppBackground
}
