//go:build !darwin && !linux

package goble

import (
	"github.com/go-ble/ble"

	"github.com/srg/blereader/internal/device"
)

func newPlatformDevice() (ble.Device, error) {
	return nil, device.ErrUnsupported
}
