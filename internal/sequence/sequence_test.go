package sequence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/blereader/pkg/config"
)

func TestParseOp(t *testing.T) {
	tests := []struct {
		in      string
		want    Op
		wantErr bool
	}{
		{in: "subscribe", want: OpSubscribe},
		{in: "Notify", want: OpSubscribe},
		{in: " write ", want: OpWrite},
		{in: "read", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			op, err := ParseOp(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, op)
		})
	}
	assert.Equal(t, "op(9)", Op(9).String())
}

func TestSequence_From(t *testing.T) {
	seq := bakeSequence(200*time.Millisecond, 500*time.Millisecond)

	rest := seq.From(1)
	require.Len(t, rest.Steps, 2)
	assert.Equal(t, crust, rest.Steps[0].Characteristic)
	assert.Equal(t, 200*time.Millisecond, rest.Steps[0].Delay)

	rest.Steps[0].Payload[0] = 7
	assert.Equal(t, byte(0), seq.Steps[1].Payload[0], "MUST NOT share payloads with the original")

	assert.Len(t, seq.From(-1).Steps, 3)
	assert.Empty(t, seq.From(10).Steps)
}

func TestSequence_Validate(t *testing.T) {
	assert.NoError(t, bakeSequence(0, 0).Validate())
	assert.Error(t, Sequence{Name: "empty"}.Validate())
	assert.Error(t, Sequence{Steps: []Step{{Op: Op(7), Service: svc, Characteristic: bake}}}.Validate())
	assert.Error(t, Sequence{Steps: []Step{{Op: OpWrite, Service: "", Characteristic: bake}}}.Validate())
	assert.Error(t, Sequence{Steps: []Step{{Op: OpWrite, Service: svc, Characteristic: bake, Delay: -time.Second}}}.Validate())
}

func TestFromConfig(t *testing.T) {
	t.Run("default bake sequence", func(t *testing.T) {
		cfg := config.DefaultConfig()

		seq, err := Lookup(cfg, "bake")
		require.NoError(t, err)

		assert.Equal(t, "bake", seq.Name)
		require.Len(t, seq.Steps, 3)
		assert.Equal(t, OpSubscribe, seq.Steps[0].Op)
		assert.Equal(t, OpWrite, seq.Steps[1].Op)
		assert.Equal(t, []byte{0}, seq.Steps[1].Payload)
		assert.Equal(t, 200*time.Millisecond, seq.Steps[1].Delay)
		assert.Equal(t, []byte{1, 95}, seq.Steps[2].Payload)
		assert.Equal(t, 500*time.Millisecond, seq.Steps[2].Delay)
	})

	t.Run("bad entries are rejected", func(t *testing.T) {
		_, err := FromConfig("x", config.SequenceConfig{Steps: []config.StepConfig{{Op: "read", Service: svc, Characteristic: bake}}})
		assert.ErrorContains(t, err, "unknown step op")

		_, err = FromConfig("x", config.SequenceConfig{Steps: []config.StepConfig{{Op: "write", Service: svc, Characteristic: bake, Payload: []int{300}}}})
		assert.ErrorContains(t, err, "out of range")
	})

	t.Run("unknown name lists available sequences", func(t *testing.T) {
		_, err := Lookup(config.DefaultConfig(), "nope")
		assert.ErrorContains(t, err, "bake")
		assert.Equal(t, []string{"bake"}, Names(config.DefaultConfig()))
	})
}
