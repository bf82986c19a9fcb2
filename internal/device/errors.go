package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a link or command failure
type ErrorKind string

const (
	KindConnect           ErrorKind = "connect_failed"
	KindServiceResolution ErrorKind = "service_resolution_failed"
	KindSubscribe         ErrorKind = "subscribe_failed"
	KindWrite             ErrorKind = "write_failed"
	KindNotConnected      ErrorKind = "not_connected"
	KindCancelled         ErrorKind = "cancelled"
	KindTimeout           ErrorKind = "timeout"
	KindScan              ErrorKind = "scan_failed"
	KindDisconnect        ErrorKind = "disconnect_failed"
	KindUnknownPeripheral ErrorKind = "unknown_peripheral"
	KindUnsupported       ErrorKind = "unsupported"
)

// Error is a classified failure of an operation against a peripheral
type Error struct {
	Kind         ErrorKind
	Op           string
	PeripheralID string
	Err          error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(" ")
	}
	if e.PeripheralID != "" {
		fmt.Fprintf(&b, "%s ", e.PeripheralID)
	}
	b.WriteString(string(e.Kind))
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is allows errors.Is to compare Error values by Kind
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinels for errors.Is comparisons
var (
	ErrConnect           = &Error{Kind: KindConnect}
	ErrServiceResolution = &Error{Kind: KindServiceResolution}
	ErrSubscribe         = &Error{Kind: KindSubscribe}
	ErrWrite             = &Error{Kind: KindWrite}
	ErrNotConnected      = &Error{Kind: KindNotConnected}
	ErrCancelled         = &Error{Kind: KindCancelled}
	ErrTimeout           = &Error{Kind: KindTimeout}
	ErrScan              = &Error{Kind: KindScan}
	ErrDisconnect        = &Error{Kind: KindDisconnect}
	ErrUnknownPeripheral = &Error{Kind: KindUnknownPeripheral}
	ErrUnsupported       = &Error{Kind: KindUnsupported}
)

// Wrap classifies err under kind unless it already carries a timeout or cancellation.
// Context deadlines become KindTimeout and context cancellations become KindCancelled.
// A nil err yields nil.
func Wrap(kind ErrorKind, op, peripheralID string, err error) error {
	if err == nil {
		return nil
	}
	var derr *Error
	if errors.As(err, &derr) && (derr.Kind == KindTimeout || derr.Kind == KindCancelled) {
		kind = derr.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = KindTimeout
	case errors.Is(err, context.Canceled):
		kind = KindCancelled
	}
	return &Error{Kind: kind, Op: op, PeripheralID: peripheralID, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain, or "" if there is none
func KindOf(err error) ErrorKind {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Kind
	}
	return ""
}
