package channel

import (
	"fmt"
	"os"
	"time"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"
	"go.viam.com/utils"
)

// A Config is the on-disk channel table plus the tunables of the polling
// core. Files are JSON5 so they can carry comments, and ${VAR} references
// are expanded from the environment before parsing.
type Config struct {
	Channels        []ChannelConfig `json:"channels"`
	HistoryCapacity int             `json:"history_capacity"`
	Health          HealthConfig    `json:"health"`
}

// A ChannelConfig describes one channel in the config file.
type ChannelConfig struct {
	Name       string  `json:"name"`
	Pin        string  `json:"pin"`
	Kind       string  `json:"kind"`
	IntervalMs int     `json:"interval_ms"`
	ScaleMin   float64 `json:"scale_min,omitempty"`
	ScaleMax   float64 `json:"scale_max,omitempty"`
	MaxRangeCM float64 `json:"max_range_cm,omitempty"`
	DHTModel   string  `json:"dht_model,omitempty"` // "dht11" (default) or "dht22"
	MaxLevel   int     `json:"max_level,omitempty"` // output channels; defaults to 1
}

// A HealthConfig overrides the recovery policy defaults.
type HealthConfig struct {
	FailureThreshold int `json:"failure_threshold,omitempty"`
	BackoffCapMs     int `json:"backoff_cap_ms,omitempty"`
	CooldownMs       int `json:"cooldown_ms,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) error {
	if len(c.Channels) == 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "channels")
	}
	for idx, conf := range c.Channels {
		if err := conf.Validate(fmtPath(path, "channels", idx)); err != nil {
			return err
		}
	}
	if c.HistoryCapacity < 0 {
		return utils.NewConfigValidationError(path, errors.New("history_capacity may not be negative"))
	}
	return nil
}

// Validate ensures all parts of the config are valid.
func (c *ChannelConfig) Validate(path string) error {
	if c.Name == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if c.Pin == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "pin")
	}
	if c.Kind == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "kind")
	}
	if c.IntervalMs <= 0 {
		return utils.NewConfigValidationError(path, errors.New("interval_ms must be positive"))
	}
	switch c.DHTModel {
	case "", "dht11", "dht22":
	default:
		return utils.NewConfigValidationError(path, errors.Errorf("unknown dht_model %q", c.DHTModel))
	}
	return nil
}

func fmtPath(path, field string, idx int) string {
	return fmt.Sprintf("%s.%s.%d", path, field, idx)
}

// Descriptor converts the file form into the immutable runtime descriptor.
func (c *ChannelConfig) Descriptor() Descriptor {
	d := Descriptor{
		Name:     c.Name,
		Pin:      c.Pin,
		Kind:     Kind(c.Kind),
		Interval: time.Duration(c.IntervalMs) * time.Millisecond,
		Decode: DecodeRule{
			ScaleMin:   c.ScaleMin,
			ScaleMax:   c.ScaleMax,
			MaxRangeCM: c.MaxRangeCM,
			MaxLevel:   c.MaxLevel,
		},
	}
	if c.DHTModel == "dht22" {
		d.Decode.DHTModel = DHT22
	}
	if d.Kind.Output() && d.Decode.MaxLevel == 0 {
		d.Decode.MaxLevel = 1
	}
	return d
}

// Descriptors converts every channel entry.
func (c *Config) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(c.Channels))
	for _, cc := range c.Channels {
		out = append(out, cc.Descriptor())
	}
	return out
}

// ReadConfig reads, expands and validates a config file.
func ReadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config %q", path)
	}
	expanded, err := envsubst.Bytes(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot expand config %q", path)
	}
	var cfg Config
	if err := json5.Unmarshal(expanded, &cfg); err != nil {
		return nil, errors.Wrapf(err, "cannot parse config %q", path)
	}
	if err := cfg.Validate(path); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfig is the stock GrovePi+ starter kit wiring: DHT on D2, button
// on D3, relay on D4, LED bar on D5, ultrasonic ranger on D7, rotary angle on
// A0, sound on A1 and light on A2.
func DefaultConfig() *Config {
	return &Config{
		HistoryCapacity: 32,
		Channels: []ChannelConfig{
			{Name: "climate", Pin: "D2", Kind: string(KindDHT), IntervalMs: 2000, DHTModel: "dht11"},
			{Name: "button", Pin: "D3", Kind: string(KindDigitalIn), IntervalMs: 200},
			{Name: "relay", Pin: "D4", Kind: string(KindDigitalOut), IntervalMs: 1000, MaxLevel: 1},
			{Name: "ledbar", Pin: "D5", Kind: string(KindDigitalOut), IntervalMs: 1000, MaxLevel: 10},
			{Name: "sonar", Pin: "D7", Kind: string(KindUltrasonic), IntervalMs: 500, MaxRangeCM: 400},
			{Name: "rotary", Pin: "A0", Kind: string(KindAnalogIn), IntervalMs: 250, ScaleMin: 0, ScaleMax: 300},
			{Name: "sound", Pin: "A1", Kind: string(KindAnalogIn), IntervalMs: 250},
			{Name: "light", Pin: "A2", Kind: string(KindAnalogIn), IntervalMs: 500},
		},
	}
}
