// Package dispatch routes characteristic notifications to the consumer registered for them.
package dispatch

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"

	"github.com/srg/blereader/internal/device"
)

// Key identifies a notification source. Build it with NewKey so UUIDs are normalized.
type Key struct {
	PeripheralID     string
	ServiceID        string
	CharacteristicID string
}

// NewKey builds a normalized key.
func NewKey(peripheralID, serviceID, characteristicID string) Key {
	return Key{
		PeripheralID:     strings.ToLower(strings.TrimSpace(peripheralID)),
		ServiceID:        device.NormalizeUUID(serviceID),
		CharacteristicID: device.NormalizeUUID(characteristicID),
	}
}

func (k Key) String() string {
	return k.PeripheralID + "/" + k.ServiceID + "/" + k.CharacteristicID
}

// Consumer receives notification values. It runs on the dispatching goroutine and must not block.
type Consumer func(device.ValueUpdated)

type entry struct {
	key      Key
	token    uint64
	consumer Consumer
}

// Dispatcher holds at most one consumer per key; the last Subscribe wins.
// Dispatch is lock-free; mutations are serialized.
type Dispatcher struct {
	mu      sync.Mutex
	entries *hashmap.Map[string, *entry]
	nextTok atomic.Uint64
	logger  *logrus.Logger
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	d     *Dispatcher
	key   Key
	token uint64
	prev  *entry
}

// New creates an empty dispatcher. A nil logger falls back to the logrus standard logger.
func New(logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Dispatcher{
		entries: hashmap.New[string, *entry](),
		logger:  logger,
	}
}

// Subscribe installs consumer for key, replacing any previous consumer.
func (d *Dispatcher) Subscribe(key Key, consumer Consumer) *Subscription {
	key = NewKey(key.PeripheralID, key.ServiceID, key.CharacteristicID)
	tok := d.nextTok.Add(1)

	d.mu.Lock()
	defer d.mu.Unlock()

	prev, replaced := d.entries.Get(key.String())
	if replaced {
		d.logger.WithField("key", key.String()).Debug("Replacing notification consumer")
	}
	d.entries.Set(key.String(), &entry{key: key, token: tok, consumer: consumer})
	return &Subscription{d: d, key: key, token: tok, prev: prev}
}

// Key returns the key the subscription was made for.
func (s *Subscription) Key() Key {
	return s.key
}

// Unsubscribe removes the entry only if this subscription is still the active one.
// Returns false if it had already been replaced or removed.
func (s *Subscription) Unsubscribe() bool {
	if s == nil {
		return false
	}
	d := s.d
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries.Get(s.key.String())
	if !ok || e.token != s.token {
		return false
	}
	return d.entries.Del(s.key.String())
}

// Revert undoes Subscribe: the consumer it replaced is reinstalled, or the key is removed
// if there was none. Returns false if the subscription is no longer the active one.
func (s *Subscription) Revert() bool {
	if s == nil {
		return false
	}
	d := s.d
	d.mu.Lock()
	defer d.mu.Unlock()

	e, ok := d.entries.Get(s.key.String())
	if !ok || e.token != s.token {
		return false
	}
	if s.prev == nil {
		return d.entries.Del(s.key.String())
	}
	d.entries.Set(s.key.String(), s.prev)
	d.logger.WithField("key", s.key.String()).Debug("Restored previous notification consumer")
	return true
}

// Active reports whether the subscription is still installed.
func (s *Subscription) Active() bool {
	if s == nil {
		return false
	}
	e, ok := s.d.entries.Get(s.key.String())
	return ok && e.token == s.token
}

// Unsubscribe removes whatever consumer is installed for key.
func (d *Dispatcher) Unsubscribe(key Key) bool {
	key = NewKey(key.PeripheralID, key.ServiceID, key.CharacteristicID)
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.entries.Del(key.String())
}

// RemovePeripheral drops every subscription of a peripheral. Returns how many were removed.
func (d *Dispatcher) RemovePeripheral(peripheralID string) int {
	pid := NewKey(peripheralID, "", "").PeripheralID

	d.mu.Lock()
	defer d.mu.Unlock()

	var keys []string
	d.entries.Range(func(k string, e *entry) bool {
		if e.key.PeripheralID == pid {
			keys = append(keys, k)
		}
		return true
	})
	for _, k := range keys {
		d.entries.Del(k)
	}
	if len(keys) > 0 {
		d.logger.WithFields(logrus.Fields{"peripheral": peripheralID, "count": len(keys)}).Debug("Subscriptions invalidated")
	}
	return len(keys)
}

// Len returns the number of active subscriptions.
func (d *Dispatcher) Len() int {
	return d.entries.Len()
}

// Dispatch delivers a notification to the matching consumer.
// An event without a service id matches the characteristic under any service of the peripheral.
// Events with no consumer are dropped. Returns whether a consumer was called.
func (d *Dispatcher) Dispatch(ev device.ValueUpdated) bool {
	e := d.lookup(NewKey(ev.PeripheralID, ev.ServiceID, ev.CharacteristicID))
	if e == nil {
		d.logger.WithFields(logrus.Fields{
			"peripheral":     ev.PeripheralID,
			"service":        ev.ServiceID,
			"characteristic": ev.CharacteristicID,
		}).Debug("Dropping notification without subscriber")
		return false
	}

	ev.Value = append([]byte(nil), ev.Value...)
	e.consumer(ev)
	return true
}

func (d *Dispatcher) lookup(key Key) *entry {
	if key.ServiceID != "" {
		e, _ := d.entries.Get(key.String())
		return e
	}

	var found *entry
	d.entries.Range(func(_ string, e *entry) bool {
		if e.key.PeripheralID == key.PeripheralID && e.key.CharacteristicID == key.CharacteristicID {
			found = e
			return false
		}
		return true
	})
	return found
}
