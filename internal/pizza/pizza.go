// Package pizza encodes the bake protocol of the bleno pizza peripheral.
//
// The peripheral exposes one service with three characteristics:
// crust (one byte), toppings (uint16 bit set) and bake (write a uint16 temperature,
// notified with a one-byte BakeResult). Multi-byte values are big-endian.
package pizza

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/srg/blereader/internal/sequence"
	"github.com/srg/blereader/pkg/config"
)

const ToppingsCharacteristic = "13333333-3333-3333-3333-333333330002"

// Crust is the crust type written to the crust characteristic
type Crust uint8

const (
	CrustNormal Crust = iota
	CrustDeepDish
	CrustThin
)

var crustNames = map[Crust]string{
	CrustNormal:   "normal",
	CrustDeepDish: "deep-dish",
	CrustThin:     "thin",
}

func (c Crust) String() string {
	if n, ok := crustNames[c]; ok {
		return n
	}
	return fmt.Sprintf("crust(%d)", uint8(c))
}

// ParseCrust accepts "normal", "deep-dish"/"deep_dish"/"deepdish" and "thin"
func ParseCrust(s string) (Crust, error) {
	switch strings.ReplaceAll(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"), " ", "-") {
	case "normal", "":
		return CrustNormal, nil
	case "deep-dish", "deepdish":
		return CrustDeepDish, nil
	case "thin":
		return CrustThin, nil
	default:
		return 0, fmt.Errorf("unknown crust %q (normal, deep-dish, thin)", s)
	}
}

// Encode returns the crust payload
func (c Crust) Encode() []byte {
	return []byte{byte(c)}
}

// Toppings is a bit set of toppings
type Toppings uint16

const (
	ExtraCheese Toppings = 1 << iota
	CanadianBacon
	Pepperoni
	Mushrooms
	Onions
	Peppers
	Pineapple
)

// Encode returns the toppings payload
func (t Toppings) Encode() []byte {
	return binary.BigEndian.AppendUint16(nil, uint16(t))
}

// EncodeTemperature returns the bake payload for a temperature. 351 encodes as [1, 95].
func EncodeTemperature(degrees uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, degrees)
}

// BakeResult is notified on the bake characteristic when baking completes
type BakeResult uint8

const (
	HalfBaked BakeResult = iota
	Baked
	Crispy
	Burnt
	OnFire
)

var resultNames = [...]string{"half baked", "baked", "crispy", "burnt", "on fire"}

func (r BakeResult) String() string {
	if int(r) < len(resultNames) {
		return resultNames[r]
	}
	return fmt.Sprintf("result(%d)", uint8(r))
}

// ErrEmptyResult is returned for a bake notification without payload
var ErrEmptyResult = errors.New("pizza: empty bake result")

// DecodeBakeResult parses a bake notification
func DecodeBakeResult(b []byte) (BakeResult, error) {
	if len(b) == 0 {
		return 0, ErrEmptyResult
	}
	r := BakeResult(b[0])
	if r > OnFire {
		return r, fmt.Errorf("pizza: unknown bake result %d", b[0])
	}
	return r, nil
}

// Order describes one bake run
type Order struct {
	Crust       Crust
	Toppings    Toppings
	Temperature uint16
	// SubscribeDelay is waited between subscribing and writing the crust
	SubscribeDelay time.Duration
	// CrustDelay is waited between the crust write and the bake write
	CrustDelay time.Duration
}

// DefaultOrder is a normal crust baked at 351 degrees
func DefaultOrder() Order {
	return Order{
		Crust:          CrustNormal,
		Temperature:    351,
		SubscribeDelay: 200 * time.Millisecond,
		CrustDelay:     500 * time.Millisecond,
	}
}

// Sequence builds the bake sequence for the order: subscribe to bake results,
// write the crust, optionally write toppings, then write the temperature.
func (o Order) Sequence() sequence.Sequence {
	steps := []sequence.Step{
		{Op: sequence.OpSubscribe, Service: config.BakeServiceUUID, Characteristic: config.BakeCharacteristicUUID},
		{Op: sequence.OpWrite, Service: config.BakeServiceUUID, Characteristic: config.CrustCharacteristic, Payload: o.Crust.Encode(), Delay: o.SubscribeDelay},
	}
	if o.Toppings != 0 {
		steps = append(steps, sequence.Step{
			Op: sequence.OpWrite, Service: config.BakeServiceUUID, Characteristic: ToppingsCharacteristic, Payload: o.Toppings.Encode(),
		})
	}
	steps = append(steps, sequence.Step{
		Op: sequence.OpWrite, Service: config.BakeServiceUUID, Characteristic: config.BakeCharacteristicUUID,
		Payload: EncodeTemperature(o.Temperature), Delay: o.CrustDelay,
	})
	return sequence.Sequence{Name: "bake", Steps: steps}
}
