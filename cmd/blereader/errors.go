package main

import (
	"errors"
	"fmt"

	"github.com/srg/blereader/internal/device"
	"github.com/srg/blereader/internal/sequence"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the link dropped while a command still needed it
	// and no reconnect was requested.
	ErrConnectionLost = errors.New("connection lost")

	// ErrTargetNotFound indicates a scan ended without the target advertising
	ErrTargetNotFound = errors.New("target peripheral not found")
)

var kindMessages = map[device.ErrorKind]string{
	device.KindConnect:           "could not connect to the peripheral",
	device.KindServiceResolution: "could not read the peripheral's services",
	device.KindSubscribe:         "could not enable notifications",
	device.KindWrite:             "write was rejected",
	device.KindNotConnected:      "peripheral is not connected",
	device.KindCancelled:         "operation was cancelled because the link went away",
	device.KindTimeout:           "peripheral did not answer in time",
	device.KindScan:              "scan failed",
	device.KindDisconnect:        "disconnect failed",
	device.KindUnknownPeripheral: "peripheral is unknown; scan for it first",
	device.KindUnsupported:       "Bluetooth is unavailable (is it turned on?)",
}

// FormatUserError turns an error into a one-line message for the terminal.
// Classified device errors get a readable description followed by the underlying cause.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	prefix := ""
	var stepErr *sequence.StepError
	if errors.As(err, &stepErr) {
		prefix = fmt.Sprintf("step %d (%s): ", stepErr.Index+1, stepErr.Op)
		err = stepErr.Err
	}

	var derr *device.Error
	if !errors.As(err, &derr) {
		return prefix + err.Error()
	}

	msg, ok := kindMessages[derr.Kind]
	if !ok {
		msg = string(derr.Kind)
	}
	if derr.PeripheralID != "" {
		msg = fmt.Sprintf("%s: %s", derr.PeripheralID, msg)
	}
	if derr.Err != nil {
		msg = fmt.Sprintf("%s (%v)", msg, derr.Err)
	}
	return prefix + msg
}
