package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel  string                    `yaml:"log_level" default:"warn"`
	Target    TargetConfig              `yaml:"target"`
	Scan      ScanConfig                `yaml:"scan"`
	Timeouts  TimeoutConfig             `yaml:"timeouts"`
	Reconnect ReconnectConfig           `yaml:"reconnect"`
	Bake      BakeConfig                `yaml:"bake"`
	Sequences map[string]SequenceConfig `yaml:"sequences"`
}

// TargetConfig names the peripheral to manage and the characteristic it streams
type TargetConfig struct {
	DeviceID         string `yaml:"device_id" default:"1C9C427C-6039-4455-A973-405D28655412"`
	ServiceID        string `yaml:"service_id" default:"181D"`
	CharacteristicID string `yaml:"characteristic_id" default:"2A9D"`
}

// ScanConfig controls discovery scans
type ScanConfig struct {
	Duration        time.Duration `yaml:"duration" default:"3s"`
	AllowDuplicates bool          `yaml:"allow_duplicates" default:"true"`
	ServiceFilters  []string      `yaml:"service_filters"`
}

// TimeoutConfig bounds every adapter call
type TimeoutConfig struct {
	Connect    time.Duration `yaml:"connect" default:"10s"`
	Services   time.Duration `yaml:"services" default:"10s"`
	Subscribe  time.Duration `yaml:"subscribe" default:"5s"`
	Write      time.Duration `yaml:"write" default:"5s"`
	Disconnect time.Duration `yaml:"disconnect" default:"5s"`
	ScanStart  time.Duration `yaml:"scan_start" default:"5s"`
	Query      time.Duration `yaml:"query" default:"5s"`
}

// ReconnectConfig controls the CLI rescan loop after a link drops
type ReconnectConfig struct {
	MaxBackoff time.Duration `yaml:"max_backoff" default:"30s"`
}

// BakeConfig controls the scripted bake run
type BakeConfig struct {
	Sequence    string        `yaml:"sequence" default:"bake"`
	SettleDelay time.Duration `yaml:"settle_delay" default:"900ms"`
}

// SequenceConfig is a named list of timed GATT steps
type SequenceConfig struct {
	Description string       `yaml:"description"`
	Steps       []StepConfig `yaml:"steps"`
}

// StepConfig is one GATT step. Payload bytes are written as a YAML list of integers.
type StepConfig struct {
	Op             string        `yaml:"op"`
	Service        string        `yaml:"service"`
	Characteristic string        `yaml:"characteristic"`
	Payload        []int         `yaml:"payload,omitempty"`
	Delay          time.Duration `yaml:"delay,omitempty"`
}

// Bake protocol UUIDs used by the default sequence
const (
	BakeServiceUUID        = "13333333-3333-3333-3333-333333333337"
	CrustCharacteristic    = "13333333-3333-3333-3333-333333330001"
	BakeCharacteristicUUID = "13333333-3333-3333-3333-333333330003"
)

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.Sequences = map[string]SequenceConfig{
		"bake": DefaultBakeSequence(),
	}
	return cfg
}

// DefaultBakeSequence subscribes to bake results, selects normal crust and bakes at 351 degrees.
func DefaultBakeSequence() SequenceConfig {
	return SequenceConfig{
		Description: "subscribe to bake results, normal crust, bake at 351",
		Steps: []StepConfig{
			{Op: "subscribe", Service: BakeServiceUUID, Characteristic: BakeCharacteristicUUID},
			{Op: "write", Service: BakeServiceUUID, Characteristic: CrustCharacteristic, Payload: []int{0}, Delay: 200 * time.Millisecond},
			{Op: "write", Service: BakeServiceUUID, Characteristic: BakeCharacteristicUUID, Payload: []int{1, 95}, Delay: 500 * time.Millisecond},
		},
	}
}

// Load reads a YAML config file. Absent keys keep their defaults.
// An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML on top of cfg and validates the result
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return cfg.Validate()
}

// Validate checks the config for invalid values
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Target.DeviceID) == "" {
		errs = append(errs, errors.New("target.device_id must not be empty"))
	}
	if strings.TrimSpace(c.Target.ServiceID) == "" || strings.TrimSpace(c.Target.CharacteristicID) == "" {
		errs = append(errs, errors.New("target.service_id and target.characteristic_id must not be empty"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.Scan.Duration < 0 {
		errs = append(errs, fmt.Errorf("scan.duration must not be negative, got %s", c.Scan.Duration))
	}

	for name, seq := range c.Sequences {
		if len(seq.Steps) == 0 {
			errs = append(errs, fmt.Errorf("sequences.%s: no steps", name))
		}
		for i, step := range seq.Steps {
			switch strings.ToLower(step.Op) {
			case "subscribe", "notify", "write":
			default:
				errs = append(errs, fmt.Errorf("sequences.%s.steps[%d]: unknown op %q", name, i, step.Op))
			}
			if step.Service == "" || step.Characteristic == "" {
				errs = append(errs, fmt.Errorf("sequences.%s.steps[%d]: service and characteristic must not be empty", name, i))
			}
			for _, b := range step.Payload {
				if b < 0 || b > 0xFF {
					errs = append(errs, fmt.Errorf("sequences.%s.steps[%d]: payload byte %d out of range", name, i, b))
					break
				}
			}
		}
	}

	return errors.Join(errs...)
}

// Level returns the parsed log level, falling back to warn
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.WarnLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())
	logger.SetOutput(os.Stderr)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
