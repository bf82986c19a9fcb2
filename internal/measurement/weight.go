// Package measurement decodes the Weight Scale service's Weight Measurement characteristic (0x2A9D).
package measurement

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Weight Measurement flag bits
const (
	flagImperial       = 1 << 0
	flagTimestamp      = 1 << 1
	flagUserID         = 1 << 2
	flagBMIAndHeight   = 1 << 3
	weightSIStep       = 0.005 // kg
	weightImperialStep = 0.01  // lb
	unmeasurable       = 0xFFFF
)

// ErrShortPayload is returned when the value is shorter than its flags announce
var ErrShortPayload = errors.New("weight measurement: payload too short")

// Unit of a decoded weight
type Unit string

const (
	Kilograms Unit = "kg"
	Pounds    Unit = "lb"
)

// Weight is a decoded Weight Measurement value
type Weight struct {
	Value     float64
	Unit      Unit
	Valid     bool // false when the scale reports "measurement unsuccessful"
	Timestamp *time.Time
	UserID    *uint8
	BMI       *float64
	Height    *float64 // meters for SI, inches for imperial
}

func (w Weight) String() string {
	if !w.Valid {
		return "measurement unsuccessful"
	}
	return fmt.Sprintf("%.2f %s", w.Value, w.Unit)
}

// Decode parses a Weight Measurement value
func Decode(b []byte) (Weight, error) {
	if len(b) < 3 {
		return Weight{}, ErrShortPayload
	}
	flags := b[0]
	raw := binary.LittleEndian.Uint16(b[1:3])
	off := 3

	w := Weight{Unit: Kilograms, Valid: raw != unmeasurable}
	step := weightSIStep
	if flags&flagImperial != 0 {
		w.Unit = Pounds
		step = weightImperialStep
	}
	if w.Valid {
		w.Value = float64(raw) * step
	}

	if flags&flagTimestamp != 0 {
		if len(b) < off+7 {
			return Weight{}, fmt.Errorf("%w: timestamp", ErrShortPayload)
		}
		ts := decodeDateTime(b[off : off+7])
		w.Timestamp = &ts
		off += 7
	}

	if flags&flagUserID != 0 {
		if len(b) < off+1 {
			return Weight{}, fmt.Errorf("%w: user id", ErrShortPayload)
		}
		id := b[off]
		w.UserID = &id
		off++
	}

	if flags&flagBMIAndHeight != 0 {
		if len(b) < off+4 {
			return Weight{}, fmt.Errorf("%w: bmi and height", ErrShortPayload)
		}
		bmi := float64(binary.LittleEndian.Uint16(b[off:off+2])) * 0.1
		heightStep := 0.001
		if flags&flagImperial != 0 {
			heightStep = 0.1
		}
		height := float64(binary.LittleEndian.Uint16(b[off+2:off+4])) * heightStep
		w.BMI = &bmi
		w.Height = &height
	}

	return w, nil
}

// decodeDateTime parses the GATT Date Time characteristic layout
func decodeDateTime(b []byte) time.Time {
	year := int(binary.LittleEndian.Uint16(b[0:2]))
	return time.Date(year, time.Month(b[2]), int(b[3]), int(b[4]), int(b[5]), int(b[6]), 0, time.UTC)
}
