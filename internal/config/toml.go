// Package config provides configuration helpers and TOML parsing.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/verte-zerg/omorifit/internal/model"
)

// FileConfig represents the TOML configuration file.
type FileConfig struct {
	Fit  FitConfig  `toml:"fit"`
	Grid GridConfig `toml:"grid"`
}

// FitConfig maps fitting settings. Nil fields are unset.
type FitConfig struct {
	Ref          *float64 `toml:"mref"`
	Sup          *float64 `toml:"msup"`
	MagMin       *float64 `toml:"mag_min"`
	MagMax       *float64 `toml:"mag_max"`
	LMR          *string  `toml:"lmr"`
	UseIntervals *bool    `toml:"use_intervals"`
	Likelihood   *bool    `toml:"likelihood"`
	Workers      *int     `toml:"workers"`
}

// RangeConfig maps one grid axis. A bare value sets min and max together.
type RangeConfig struct {
	Value *float64 `toml:"value"`
	Min   *float64 `toml:"min"`
	Max   *float64 `toml:"max"`
	N     *int     `toml:"n"`
	Log   *bool    `toml:"log"`
}

// GridConfig maps the sweep grid.
type GridConfig struct {
	B     *RangeConfig `toml:"b"`
	Alpha *RangeConfig `toml:"alpha"`
	P     *RangeConfig `toml:"p"`
	C     *RangeConfig `toml:"c"`
	Aint  *RangeConfig `toml:"aint"`
	A     *RangeConfig `toml:"a"`
	Ams   *RangeConfig `toml:"ams"`
}

// LoadConfig reads a TOML config from the given path. Missing file is not an error.
func LoadConfig(path string) (FileConfig, error) {
	if path == "" {
		return FileConfig{}, fmt.Errorf("config path is empty")
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, nil
		}
		return FileConfig{}, fmt.Errorf("failed to stat config: %w", err)
	}
	var cfg FileConfig
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return FileConfig{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return FileConfig{}, fmt.Errorf("unknown config key %q", undecoded[0].String())
	}
	return cfg, nil
}

// ApplyGrid overrides base with every configured axis and validates the result.
func (g GridConfig) ApplyGrid(base model.Grid) (model.Grid, error) {
	axes := []struct {
		name   string
		cfg    *RangeConfig
		target *model.Range
	}{
		{"b", g.B, &base.B},
		{"alpha", g.Alpha, &base.Alpha},
		{"p", g.P, &base.P},
		{"c", g.C, &base.C},
		{"aint", g.Aint, &base.Aint},
		{"a", g.A, &base.A},
		{"ams", g.Ams, &base.Ams},
	}
	for _, axis := range axes {
		if axis.cfg != nil {
			*axis.target = axis.cfg.apply(*axis.target)
		}
		if err := axis.target.Validate(); err != nil {
			return model.Grid{}, fmt.Errorf("grid.%s: %w", axis.name, err)
		}
	}
	return base, nil
}

func (r RangeConfig) apply(base model.Range) model.Range {
	if r.Value != nil {
		return model.Fixed(*r.Value)
	}
	setFloat(&base.Min, r.Min)
	setFloat(&base.Max, r.Max)
	if r.N != nil {
		base.N = *r.N
	}
	if r.Log != nil {
		base.Log = *r.Log
	}
	return base
}

func setFloat(target, value *float64) {
	if value != nil {
		*target = *value
	}
}
