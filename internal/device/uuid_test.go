package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "16-bit UUID", input: "2a9d", expected: "2a9d"},
		{name: "16-bit UUID uppercase", input: "181D", expected: "181d"},
		{name: "16-bit UUID with 0x prefix", input: "0x2902", expected: "2902"},
		{name: "16-bit UUID with 0X prefix", input: "0X2902", expected: "2902"},
		{name: "32-bit form of a 16-bit UUID", input: "0000181d", expected: "181d"},
		{name: "Full Bluetooth SIG UUID", input: "00002A9D-0000-1000-8000-00805F9B34FB", expected: "2a9d"},
		{name: "Full Bluetooth SIG UUID without dashes", input: "0000181d00001000800000805f9b34fb", expected: "181d"},
		{
			name:     "Custom 128-bit UUID keeps full form",
			input:    "13333333-3333-3333-3333-333333330003",
			expected: "13333333333333333333333333330003",
		},
		{
			name:     "Custom UUID with SIG-like suffix but wrong prefix",
			input:    "AA002902-0000-1000-8000-00805f9b34fb",
			expected: "aa00290200001000800000805f9b34fb",
		},
		{name: "Surrounding whitespace", input: "  181d ", expected: "181d"},
		{name: "Empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeUUID(tt.input))
		})
	}
}

func TestNormalizeUUIDs(t *testing.T) {
	assert.Nil(t, NormalizeUUIDs(nil))
	assert.Equal(t, []string{"181d", "2a9d"}, NormalizeUUIDs([]string{"181D", "0x2A9D"}))
}

func TestEqualUUID(t *testing.T) {
	assert.True(t, EqualUUID("2A9D", "00002a9d-0000-1000-8000-00805f9b34fb"))
	assert.True(t, EqualUUID("13333333-3333-3333-3333-333333330001", "13333333333333333333333333330001"))
	assert.False(t, EqualUUID("2a9d", "2a9e"))
}

func TestEqualID(t *testing.T) {
	assert.True(t, EqualID("1C9C427C-6039-4455-A973-405D28655412", "1c9c427c-6039-4455-a973-405d28655412"))
	assert.True(t, EqualID("aa:bb:cc:dd:ee:ff", "AA:BB:CC:DD:EE:FF"))
	assert.False(t, EqualID("aa:bb:cc:dd:ee:ff", "aa:bb:cc:dd:ee:00"))
}

func TestValidateUUID(t *testing.T) {
	t.Run("normalizes valid UUIDs", func(t *testing.T) {
		got, err := ValidateUUID("181D", "13333333-3333-3333-3333-333333333337")
		require.NoError(t, err)
		assert.Equal(t, []string{"181d", "13333333333333333333333333333337"}, got)
	})

	t.Run("rejects empty input", func(t *testing.T) {
		_, err := ValidateUUID()
		assert.Error(t, err)

		_, err = ValidateUUID("181d", " ")
		assert.ErrorContains(t, err, "index 1")
	})

	t.Run("rejects non-hex and odd lengths", func(t *testing.T) {
		_, err := ValidateUUID("zzzz")
		assert.Error(t, err)

		_, err = ValidateUUID("181")
		assert.Error(t, err)
	})
}

func TestShortenUUID(t *testing.T) {
	assert.Equal(t, "2a9d", ShortenUUID("2a9d"))
	assert.Equal(t, "13333333", ShortenUUID("13333333333333333333333333330003"))
}
