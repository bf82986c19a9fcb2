package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConnectionState(t *testing.T) {
	tests := []struct {
		state      ConnectionState
		name       string
		connected  bool
		canConnect bool
	}{
		{StateIdle, "idle", false, true},
		{StateConnecting, "connecting", false, false},
		{StateConnected, "connected", true, false},
		{StateServicesResolved, "services_resolved", true, false},
		{StateStreaming, "streaming", true, false},
		{StateDisconnected, "disconnected", false, true},
		{StateFailed, "failed", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.name, tt.state.String())
			assert.Equal(t, tt.connected, tt.state.IsConnected())
			assert.Equal(t, tt.canConnect, tt.state.CanConnect())
		})
	}

	assert.Equal(t, "state(42)", ConnectionState(42).String())
}

func TestServiceInfo_FindCharacteristic(t *testing.T) {
	info := &ServiceInfo{
		PeripheralID: "p1",
		Services: []GATTService{{
			UUID: "0000181d-0000-1000-8000-00805f9b34fb",
			Characteristics: []GATTCharacteristic{
				{UUID: "2A9D", Properties: PropIndicate},
			},
		}},
	}

	c, ok := info.FindCharacteristic("181d", "2a9d")
	assert.True(t, ok)
	assert.True(t, c.Properties.CanNotify())
	assert.False(t, c.Properties.CanWrite())

	_, ok = info.FindCharacteristic("181d", "2a9e")
	assert.False(t, ok)

	var none *ServiceInfo
	_, ok = none.FindCharacteristic("181d", "2a9d")
	assert.False(t, ok)
}
