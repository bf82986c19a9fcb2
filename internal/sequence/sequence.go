// Package sequence runs ordered, timed GATT commands against a connected peripheral.
package sequence

import (
	"fmt"
	"strings"
	"time"

	"github.com/srg/blereader/internal/device"
	"github.com/srg/blereader/internal/dispatch"
)

// Op is the kind of GATT command a step issues
type Op int

const (
	OpSubscribe Op = iota + 1
	OpWrite
)

func (o Op) String() string {
	switch o {
	case OpSubscribe:
		return "subscribe"
	case OpWrite:
		return "write"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// ParseOp converts a textual op name ("subscribe", "write") to an Op
func ParseOp(s string) (Op, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "subscribe", "notify":
		return OpSubscribe, nil
	case "write":
		return OpWrite, nil
	default:
		return 0, fmt.Errorf("unknown step op %q", s)
	}
}

// Step is one command of a sequence. Delay is waited after the previous step completes.
type Step struct {
	Op             Op
	Service        string
	Characteristic string
	Payload        []byte           // write only
	Delay          time.Duration
	Consumer       dispatch.Consumer // subscribe only; falls back to Sequence.OnValue
}

// Sequence is a named, ordered list of steps.
type Sequence struct {
	Name    string
	Steps   []Step
	OnValue dispatch.Consumer
}

// Validate checks every step has a known op and non-empty UUIDs.
func (s Sequence) Validate() error {
	if len(s.Steps) == 0 {
		return fmt.Errorf("sequence %q has no steps", s.Name)
	}
	for i, step := range s.Steps {
		if step.Op != OpSubscribe && step.Op != OpWrite {
			return fmt.Errorf("step %d: unknown op %s", i, step.Op)
		}
		if _, err := device.ValidateUUID(step.Service, step.Characteristic); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
		if step.Delay < 0 {
			return fmt.Errorf("step %d: negative delay %s", i, step.Delay)
		}
	}
	return nil
}

// From returns the remainder of the sequence starting at step i, for a manual retry.
// The first remaining step keeps its delay.
func (s Sequence) From(i int) Sequence {
	if i < 0 {
		i = 0
	}
	if i > len(s.Steps) {
		i = len(s.Steps)
	}
	rest := s.clone()
	rest.Steps = rest.Steps[i:]
	return rest
}

func (s Sequence) clone() Sequence {
	c := s
	c.Steps = make([]Step, len(s.Steps))
	for i, step := range s.Steps {
		step.Payload = append([]byte(nil), step.Payload...)
		c.Steps[i] = step
	}
	return c
}

// StepResult records the timing of a completed step
type StepResult struct {
	Index      int
	Op         Op
	StartedAt  time.Time
	FinishedAt time.Time
}

// Report is the outcome of a sequence run
type Report struct {
	Sequence     string
	PeripheralID string
	StartedAt    time.Time
	FinishedAt   time.Time
	Steps        []StepResult
}

// Completed reports whether all total steps finished
func (r *Report) Completed(total int) bool {
	return r != nil && len(r.Steps) == total
}

// StepError is returned when a step fails; the sequence stops at Index.
type StepError struct {
	Index int
	Op    Op
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Op, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Kind returns the error kind of the failed step
func (e *StepError) Kind() device.ErrorKind {
	return device.KindOf(e.Err)
}
