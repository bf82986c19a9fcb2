// Package registry keeps the in-memory set of known peripherals and their link state.
package registry

import (
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/blereader/internal/device"
)

// PeripheralRecord is a snapshot of what is known about one peripheral.
// Connected always mirrors State.IsConnected().
type PeripheralRecord struct {
	ID          string
	Name        string
	RSSI        int
	Connectable bool
	Services    []string
	State       device.ConnectionState
	Connected   bool
	FirstSeen   time.Time
	LastSeen    time.Time
}

// Registry is a mutex-guarded id -> record map that lists records in discovery order.
// Identifiers are matched case-insensitively.
type Registry struct {
	mu      sync.RWMutex
	records *orderedmap.OrderedMap[string, *PeripheralRecord]
	now     func() time.Time
	logger  *logrus.Logger
}

// New creates an empty registry. A nil logger falls back to the logrus standard logger.
func New(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Registry{
		records: orderedmap.New[string, *PeripheralRecord](),
		now:     time.Now,
		logger:  logger,
	}
}

func key(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Upsert inserts a record for info.ID or refreshes its advertisement fields.
// A new record starts in StateIdle. Returns a copy of the record and whether it was created.
func (r *Registry) Upsert(info device.PeripheralInfo) (PeripheralRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	k := key(info.ID)
	rec, ok := r.records.Get(k)
	if !ok {
		rec = &PeripheralRecord{
			ID:        info.ID,
			State:     device.StateIdle,
			FirstSeen: now,
		}
		r.records.Set(k, rec)
		r.logger.WithFields(logrus.Fields{"peripheral": info.ID, "name": info.Name}).Debug("Peripheral registered")
	}

	if info.Name != "" {
		rec.Name = info.Name
	}
	rec.RSSI = info.RSSI
	rec.Connectable = info.Connectable
	if len(info.Services) > 0 {
		rec.Services = device.NormalizeUUIDs(info.Services)
	}
	rec.LastSeen = now

	return rec.clone(), !ok
}

// SetState records a link state change. Connected is recomputed from state.
// Returns false if the peripheral is unknown.
func (r *Registry) SetState(id string, state device.ConnectionState) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records.Get(key(id))
	if !ok {
		return false
	}
	rec.State = state
	rec.Connected = state.IsConnected()
	return true
}

// Get returns a copy of the record for id.
func (r *Registry) Get(id string) (PeripheralRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records.Get(key(id))
	if !ok {
		return PeripheralRecord{}, false
	}
	return rec.clone(), true
}

// List returns copies of all records in discovery order.
func (r *Registry) List() []PeripheralRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]PeripheralRecord, 0, r.records.Len())
	for pair := r.records.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value.clone())
	}
	return out
}

// Len returns the number of known peripherals.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.records.Len()
}

// Remove forgets a peripheral. Returns false if it was unknown.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.records.Delete(key(id))
	return ok
}

// Reset forgets every peripheral.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = orderedmap.New[string, *PeripheralRecord]()
	r.logger.Debug("Registry reset")
}

func (p *PeripheralRecord) clone() PeripheralRecord {
	c := *p
	if p.Services != nil {
		c.Services = append([]string(nil), p.Services...)
	}
	return c
}
