package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	require.NotNil(t, cfg)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "1C9C427C-6039-4455-A973-405D28655412", cfg.Target.DeviceID)
	assert.Equal(t, "181D", cfg.Target.ServiceID)
	assert.Equal(t, "2A9D", cfg.Target.CharacteristicID)
	assert.Equal(t, 3*time.Second, cfg.Scan.Duration)
	assert.True(t, cfg.Scan.AllowDuplicates)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Connect)
	assert.Equal(t, 10*time.Second, cfg.Timeouts.Services)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Subscribe)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Write)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Disconnect)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.ScanStart)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Query)
	assert.Equal(t, 30*time.Second, cfg.Reconnect.MaxBackoff)
	assert.Equal(t, 900*time.Millisecond, cfg.Bake.SettleDelay)
	assert.Equal(t, "bake", cfg.Bake.Sequence)
	assert.NoError(t, cfg.Validate())

	bake, ok := cfg.Sequences["bake"]
	require.True(t, ok)
	require.Len(t, bake.Steps, 3)
	assert.Equal(t, "subscribe", bake.Steps[0].Op)
	assert.Equal(t, time.Duration(0), bake.Steps[0].Delay)
	assert.Equal(t, []int{0}, bake.Steps[1].Payload)
	assert.Equal(t, 200*time.Millisecond, bake.Steps[1].Delay)
	assert.Equal(t, []int{1, 95}, bake.Steps[2].Payload)
	assert.Equal(t, 500*time.Millisecond, bake.Steps[2].Delay)
}

func TestParse(t *testing.T) {
	t.Run("absent keys keep defaults", func(t *testing.T) {
		cfg := DefaultConfig()
		err := Parse([]byte(`
target:
  device_id: AA:BB:CC:DD:EE:FF
scan:
  allow_duplicates: false
timeouts:
  connect: 2s
`), cfg)
		require.NoError(t, err)

		assert.Equal(t, "AA:BB:CC:DD:EE:FF", cfg.Target.DeviceID)
		assert.Equal(t, "181D", cfg.Target.ServiceID, "unset key must keep default")
		assert.False(t, cfg.Scan.AllowDuplicates)
		assert.Equal(t, 3*time.Second, cfg.Scan.Duration)
		assert.Equal(t, 2*time.Second, cfg.Timeouts.Connect)
		assert.Equal(t, 10*time.Second, cfg.Timeouts.Services)
	})

	t.Run("user sequences merge with the default one", func(t *testing.T) {
		cfg := DefaultConfig()
		err := Parse([]byte(`
sequences:
  thin:
    steps:
      - op: write
        service: 13333333-3333-3333-3333-333333333337
        characteristic: 13333333-3333-3333-3333-333333330001
        payload: [2]
        delay: 100ms
`), cfg)
		require.NoError(t, err)

		assert.Contains(t, cfg.Sequences, "bake")
		require.Contains(t, cfg.Sequences, "thin")
		step := cfg.Sequences["thin"].Steps[0]
		assert.Equal(t, []int{2}, step.Payload)
		assert.Equal(t, 100*time.Millisecond, step.Delay)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		tests := []struct {
			name string
			yaml string
			want string
		}{
			{"empty device id", "target:\n  device_id: ''\n", "target.device_id"},
			{"bad log level", "log_level: loud\n", "log_level"},
			{"unknown op", "sequences:\n  x:\n    steps:\n      - {op: read, service: '1', characteristic: '2'}\n", "unknown op"},
			{"payload out of range", "sequences:\n  x:\n    steps:\n      - {op: write, service: '1', characteristic: '2', payload: [256]}\n", "out of range"},
			{"empty sequence", "sequences:\n  x: {}\n", "no steps"},
			{"malformed yaml", "target: [", "parsing config file"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := Parse([]byte(tt.yaml), DefaultConfig())
				assert.ErrorContains(t, err, tt.want)
			})
		}
	})
}

func TestLoad(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("reads a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("log_level: debug\nbake:\n  settle_delay: 1s\n"), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, logrus.DebugLevel, cfg.Level())
		assert.Equal(t, time.Second, cfg.Bake.SettleDelay)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorContains(t, err, "reading config file")
	})
}

func TestConfig_NewLogger(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		expected logrus.Level
	}{
		{name: "creates logger with debug level", level: "debug", expected: logrus.DebugLevel},
		{name: "creates logger with info level", level: "info", expected: logrus.InfoLevel},
		{name: "creates logger with error level", level: "error", expected: logrus.ErrorLevel},
		{name: "falls back to warn on garbage", level: "loud", expected: logrus.WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}

			logger := cfg.NewLogger()

			require.NotNil(t, logger)
			assert.Equal(t, tt.expected, logger.GetLevel())

			formatter, ok := logger.Formatter.(*logrus.TextFormatter)
			assert.True(t, ok)
			assert.True(t, formatter.FullTimestamp)
			assert.Equal(t, time.RFC3339, formatter.TimestampFormat)
		})
	}
}
