package device

import (
	"context"
	"time"
)

// PeripheralInfo is what an adapter knows about a peripheral from its advertisement
type PeripheralInfo struct {
	ID               string
	Name             string
	RSSI             int
	Connectable      bool
	Services         []string
	ManufacturerData []byte
}

// Property is a bit set of GATT characteristic properties
type Property uint8

const (
	PropRead Property = 1 << iota
	PropWrite
	PropWriteWithoutResponse
	PropNotify
	PropIndicate
)

// CanNotify reports whether the characteristic supports notifications or indications
func (p Property) CanNotify() bool {
	return p&(PropNotify|PropIndicate) != 0
}

// CanWrite reports whether the characteristic accepts writes with or without response
func (p Property) CanWrite() bool {
	return p&(PropWrite|PropWriteWithoutResponse) != 0
}

// GATTCharacteristic describes a discovered characteristic
type GATTCharacteristic struct {
	UUID       string
	Properties Property
}

// GATTService describes a discovered service and its characteristics
type GATTService struct {
	UUID            string
	Characteristics []GATTCharacteristic
}

// ServiceInfo is the result of service resolution against a connected peripheral
type ServiceInfo struct {
	PeripheralID string
	Services     []GATTService
}

// FindCharacteristic looks up a characteristic by service and characteristic UUID.
// UUIDs are compared in normalized form.
func (s *ServiceInfo) FindCharacteristic(service, characteristic string) (GATTCharacteristic, bool) {
	if s == nil {
		return GATTCharacteristic{}, false
	}
	for _, svc := range s.Services {
		if !EqualUUID(svc.UUID, service) {
			continue
		}
		for _, c := range svc.Characteristics {
			if EqualUUID(c.UUID, characteristic) {
				return c, true
			}
		}
	}
	return GATTCharacteristic{}, false
}

// ScanOptions configures a discovery scan
type ScanOptions struct {
	ServiceFilters  []string
	Duration        time.Duration // 0 scans until StopScan
	AllowDuplicates bool
}

// Event is an asynchronous notification emitted by an Adapter
type Event interface {
	isEvent()
}

// PeripheralDiscovered is emitted for every advertisement that passes the scan filters
type PeripheralDiscovered struct {
	Peripheral PeripheralInfo
}

// ScanStopped is emitted when a scan ends, either on timeout or on StopScan
type ScanStopped struct {
	Err error
}

// PeripheralDisconnected is emitted when a link drops, spontaneously or on request
type PeripheralDisconnected struct {
	PeripheralID string
	Err          error
}

// ValueUpdated carries a characteristic notification.
// ServiceID may be empty when the platform does not report it.
type ValueUpdated struct {
	PeripheralID     string
	ServiceID        string
	CharacteristicID string
	Value            []byte
}

func (PeripheralDiscovered) isEvent()   {}
func (ScanStopped) isEvent()            {}
func (PeripheralDisconnected) isEvent() {}
func (ValueUpdated) isEvent()           {}

// Adapter is the BLE primitive set the link manager is built on.
// Every call may block until the platform answers; callers bound them with Await.
// Implementations must be safe for concurrent use.
type Adapter interface {
	Scan(ctx context.Context, opts ScanOptions) error
	StopScan() error

	Connect(ctx context.Context, peripheralID string) error
	Disconnect(ctx context.Context, peripheralID string) error
	RetrieveServices(ctx context.Context, peripheralID string) (*ServiceInfo, error)

	StartNotification(ctx context.Context, peripheralID, service, characteristic string) error
	StopNotification(ctx context.Context, peripheralID, service, characteristic string) error
	Write(ctx context.Context, peripheralID, service, characteristic string, data []byte) error

	// ConnectedPeripherals returns peripherals the platform already holds a link to
	ConnectedPeripherals(ctx context.Context, serviceFilters []string) ([]PeripheralInfo, error)

	Events() <-chan Event
}
