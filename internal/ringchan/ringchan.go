// Package ringchan provides a bounded channel with overwrite-oldest semantics.
package ringchan

import (
	"sync"
	"sync/atomic"
)

// RingChannel is a bounded channel-like buffer whose producers never block:
// if the buffer is full, the oldest element is discarded.
//
// Readers range over C() like a normal channel. Close is safe to call while
// producers are still running; sends after Close are dropped and counted.
type RingChannel[T any] struct {
	mu     sync.Mutex
	ch     chan T
	closed bool

	written     atomic.Int64
	overwritten atomic.Int64
	dropped     atomic.Int64
	processed   atomic.Int64
}

// New creates a RingChannel with the given capacity.
func New[T any](capacity int) *RingChannel[T] {
	if capacity <= 0 {
		panic("ringchan: capacity must be > 0")
	}
	return &RingChannel[T]{ch: make(chan T, capacity)}
}

// C returns the underlying receive-only channel.
//
// Reads from the returned channel are not counted as processed.
func (rc *RingChannel[T]) C() <-chan T {
	return rc.ch
}

// Send inserts v, discarding the oldest element if the buffer is full.
// Reports whether an element was overwritten.
func (rc *RingChannel[T]) Send(v T) (overwrote bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		rc.dropped.Add(1)
		return false
	}

	for {
		select {
		case rc.ch <- v:
			rc.written.Add(1)
			return overwrote
		default:
		}
		// a concurrent reader may have drained the buffer in between
		select {
		case <-rc.ch:
			rc.overwritten.Add(1)
			overwrote = true
		default:
		}
	}
}

// TrySend inserts v only if there is room.
func (rc *RingChannel[T]) TrySend(v T) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.closed {
		rc.dropped.Add(1)
		return false
	}
	select {
	case rc.ch <- v:
		rc.written.Add(1)
		return true
	default:
		return false
	}
}

// Receive blocks until a value is available or the channel is closed.
func (rc *RingChannel[T]) Receive() (v T, ok bool) {
	v, ok = <-rc.ch
	if ok {
		rc.processed.Add(1)
	}
	return
}

// TryReceive attempts a non-blocking receive.
func (rc *RingChannel[T]) TryReceive() (v T, ok bool) {
	select {
	case v, ok = <-rc.ch:
		if ok {
			rc.processed.Add(1)
		}
		return
	default:
		var zero T
		return zero, false
	}
}

// Len returns the number of buffered elements.
func (rc *RingChannel[T]) Len() int {
	return len(rc.ch)
}

// Cap returns the channel capacity.
func (rc *RingChannel[T]) Cap() int {
	return cap(rc.ch)
}

// Close closes the underlying channel. Calling it twice is a no-op.
func (rc *RingChannel[T]) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		return
	}
	rc.closed = true
	close(rc.ch)
}

// Metrics is a snapshot of RingChannel counters.
type Metrics struct {
	Written     int64
	Overwritten int64
	Dropped     int64 // sends after Close
	Processed   int64 // Receive/TryReceive only
}

// GetMetrics returns a snapshot of the counters.
func (rc *RingChannel[T]) GetMetrics() Metrics {
	return Metrics{
		Written:     rc.written.Load(),
		Overwritten: rc.overwritten.Load(),
		Dropped:     rc.dropped.Load(),
		Processed:   rc.processed.Load(),
	}
}
