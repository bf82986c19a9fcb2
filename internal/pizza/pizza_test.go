package pizza

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/blereader/internal/sequence"
	"github.com/srg/blereader/pkg/config"
)

func TestEncodeTemperature(t *testing.T) {
	assert.Equal(t, []byte{1, 95}, EncodeTemperature(351))
	assert.Equal(t, []byte{0, 0}, EncodeTemperature(0))
	assert.Equal(t, []byte{0x01, 0xF4}, EncodeTemperature(500))
}

func TestCrust(t *testing.T) {
	tests := []struct {
		in   string
		want Crust
		enc  byte
	}{
		{"normal", CrustNormal, 0},
		{"Deep Dish", CrustDeepDish, 1},
		{"deep_dish", CrustDeepDish, 1},
		{"thin", CrustThin, 2},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			c, err := ParseCrust(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c)
			assert.Equal(t, []byte{tt.enc}, c.Encode())
		})
	}

	_, err := ParseCrust("stuffed")
	assert.Error(t, err)
	assert.Equal(t, "deep-dish", CrustDeepDish.String())
	assert.Equal(t, "crust(9)", Crust(9).String())
}

func TestToppings(t *testing.T) {
	assert.Equal(t, []byte{0x00, 0x05}, (ExtraCheese | Pepperoni).Encode())
	assert.Equal(t, []byte{0x00, 0x40}, Pineapple.Encode())
}

func TestDecodeBakeResult(t *testing.T) {
	for want, name := range []string{"half baked", "baked", "crispy", "burnt", "on fire"} {
		r, err := DecodeBakeResult([]byte{byte(want)})
		require.NoError(t, err)
		assert.Equal(t, name, r.String())
	}

	_, err := DecodeBakeResult(nil)
	assert.ErrorIs(t, err, ErrEmptyResult)

	r, err := DecodeBakeResult([]byte{9})
	assert.Error(t, err)
	assert.Equal(t, "result(9)", r.String())
}

func TestOrder_Sequence(t *testing.T) {
	t.Run("default order matches the configured bake sequence", func(t *testing.T) {
		built := DefaultOrder().Sequence()

		configured, err := sequence.Lookup(config.DefaultConfig(), "bake")
		require.NoError(t, err)

		require.Len(t, built.Steps, len(configured.Steps))
		for i := range built.Steps {
			assert.Equal(t, configured.Steps[i].Op, built.Steps[i].Op, "step %d", i)
			assert.Equal(t, configured.Steps[i].Characteristic, built.Steps[i].Characteristic, "step %d", i)
			assert.Equal(t, configured.Steps[i].Payload, built.Steps[i].Payload, "step %d", i)
			assert.Equal(t, configured.Steps[i].Delay, built.Steps[i].Delay, "step %d", i)
		}
		assert.NoError(t, built.Validate())
	})

	t.Run("toppings add a write before baking", func(t *testing.T) {
		order := DefaultOrder()
		order.Crust = CrustThin
		order.Toppings = Mushrooms | Onions
		order.Temperature = 400

		seq := order.Sequence()
		require.Len(t, seq.Steps, 4)
		assert.Equal(t, []byte{2}, seq.Steps[1].Payload)
		assert.Equal(t, ToppingsCharacteristic, seq.Steps[2].Characteristic)
		assert.Equal(t, []byte{0x00, 0x18}, seq.Steps[2].Payload)
		assert.Equal(t, []byte{0x01, 0x90}, seq.Steps[3].Payload)
		assert.Equal(t, 500*time.Millisecond, seq.Steps[3].Delay)
	})
}
