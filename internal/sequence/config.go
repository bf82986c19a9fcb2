package sequence

import (
	"fmt"
	"sort"

	"github.com/srg/blereader/pkg/config"
)

// FromConfig builds a sequence from its configuration entry
func FromConfig(name string, sc config.SequenceConfig) (Sequence, error) {
	seq := Sequence{Name: name, Steps: make([]Step, 0, len(sc.Steps))}
	for i, st := range sc.Steps {
		op, err := ParseOp(st.Op)
		if err != nil {
			return Sequence{}, fmt.Errorf("sequence %q step %d: %w", name, i, err)
		}
		payload := make([]byte, len(st.Payload))
		for j, b := range st.Payload {
			if b < 0 || b > 0xFF {
				return Sequence{}, fmt.Errorf("sequence %q step %d: payload byte %d out of range", name, i, b)
			}
			payload[j] = byte(b)
		}
		seq.Steps = append(seq.Steps, Step{
			Op:             op,
			Service:        st.Service,
			Characteristic: st.Characteristic,
			Payload:        payload,
			Delay:          st.Delay,
		})
	}
	if err := seq.Validate(); err != nil {
		return Sequence{}, err
	}
	return seq, nil
}

// Lookup builds the named sequence from cfg
func Lookup(cfg *config.Config, name string) (Sequence, error) {
	sc, ok := cfg.Sequences[name]
	if !ok {
		return Sequence{}, fmt.Errorf("unknown sequence %q (available: %v)", name, Names(cfg))
	}
	return FromConfig(name, sc)
}

// Names lists configured sequence names in sorted order
func Names(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Sequences))
	for name := range cfg.Sequences {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
