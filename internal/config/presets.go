package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"backupd/internal/schedule"
)

// Preset is a named strategy template that can be instantiated into a
// schedule. The table lives in a YAML file keyed by preset name.
type Preset struct {
	Type       string            `yaml:"type"`
	Frequency  string            `yaml:"frequency"`
	Priority   int               `yaml:"priority"`
	RetryCount int               `yaml:"retryCount"`
	TimeoutMs  int64             `yaml:"timeout"`
	Conditions *PresetConditions `yaml:"conditions,omitempty"`
}

type PresetConditions struct {
	MinFreeSpace   int64    `yaml:"minFreeSpace,omitempty"`
	MaxLoadAverage float64  `yaml:"maxLoadAverage,omitempty"`
	WindowStart    *int     `yaml:"windowStart,omitempty"`
	WindowEnd      *int     `yaml:"windowEnd,omitempty"`
}

// DefaultPresets mirrors the bootstrap schedule set.
func DefaultPresets() map[string]Preset {
	return map[string]Preset{
		"critical": {
			Type: "full", Frequency: "0 */6 * * *", Priority: 1, RetryCount: 3, TimeoutMs: 3600000,
			Conditions: &PresetConditions{MinFreeSpace: 10 << 30, MaxLoadAverage: 5.0},
		},
		"standard": {
			Type: "incremental", Frequency: "0 */2 * * *", Priority: 5, RetryCount: 2, TimeoutMs: 1800000,
			Conditions: &PresetConditions{MinFreeSpace: 5 << 30},
		},
		"nightly": {
			Type: "full", Frequency: "0 2 * * *", Priority: 3, RetryCount: 3, TimeoutMs: 7200000,
		},
	}
}

// LoadPresets reads the preset table from path. A missing file yields the
// built-in defaults; a malformed file is an error.
func LoadPresets(path string) (map[string]Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultPresets(), nil
		}
		return nil, err
	}
	var presets map[string]Preset
	if err := yaml.Unmarshal(data, &presets); err != nil {
		return nil, fmt.Errorf("parse presets %s: %w", path, err)
	}
	if len(presets) == 0 {
		return DefaultPresets(), nil
	}
	return presets, nil
}

// Instantiate builds a schedule named name from the preset. The frequency is
// validated; the first nextRun is left to the store's Add path.
func (p Preset) Instantiate(name string, now time.Time) (*schedule.Schedule, error) {
	typ := schedule.BackupType(p.Type)
	if !typ.Valid() {
		return nil, fmt.Errorf("preset type %q is not a backup type", p.Type)
	}
	if err := schedule.ValidateFrequency(p.Frequency); err != nil {
		return nil, err
	}
	sc := &schedule.Schedule{
		Name:       name,
		Enabled:    true,
		Type:       typ,
		Frequency:  p.Frequency,
		Priority:   p.Priority,
		RetryCount: p.RetryCount,
		TimeoutMs:  p.TimeoutMs,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if c := p.Conditions; c != nil {
		cond := &schedule.Conditions{
			MinFreeSpace:   c.MinFreeSpace,
			MaxLoadAverage: c.MaxLoadAverage,
		}
		if c.WindowStart != nil && c.WindowEnd != nil {
			cond.TimeWindow = &schedule.TimeWindow{Start: *c.WindowStart, End: *c.WindowEnd}
		}
		sc.Conditions = cond
	}
	return sc, nil
}
