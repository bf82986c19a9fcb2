package goble

import (
	"errors"
	"strings"

	"github.com/srg/blereader/internal/device"
)

// NormalizeError maps known go-ble error strings to classified device errors.
// The original error stays in the chain.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}
	var derr *device.Error
	if errors.As(err, &derr) {
		return err
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "is Bluetooth turned on"),
		containsIgnoreCase(msg, "bluetooth is turned off"):
		return device.Wrap(device.KindUnsupported, "", "", err)
	case containsIgnoreCase(msg, "device not connected"),
		containsIgnoreCase(msg, "disconnected"):
		return device.Wrap(device.KindNotConnected, "", "", err)
	case containsIgnoreCase(msg, "connection is not initialized"):
		return device.Wrap(device.KindNotConnected, "", "", err)
	case containsIgnoreCase(msg, "not supported"):
		return device.Wrap(device.KindUnsupported, "", "", err)
	default:
		return err
	}
}

// containsIgnoreCase checks the substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
