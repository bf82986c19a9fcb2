package device

import "fmt"

// ConnectionState is the per-peripheral link state
type ConnectionState int

const (
	StateIdle ConnectionState = iota
	StateConnecting
	StateConnected
	StateServicesResolved
	StateStreaming
	StateDisconnected
	StateFailed
)

var stateNames = [...]string{
	StateIdle:             "idle",
	StateConnecting:       "connecting",
	StateConnected:        "connected",
	StateServicesResolved: "services_resolved",
	StateStreaming:        "streaming",
	StateDisconnected:     "disconnected",
	StateFailed:           "failed",
}

func (s ConnectionState) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// IsConnected is true only while a link is up
func (s ConnectionState) IsConnected() bool {
	return s == StateConnected || s == StateServicesResolved || s == StateStreaming
}

// CanConnect reports whether a new connect attempt may start from this state
func (s ConnectionState) CanConnect() bool {
	return s == StateIdle || s == StateDisconnected || s == StateFailed
}
