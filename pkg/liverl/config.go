// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package liverl

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/teradata-labs/liverl/pkg/significance"
)

// Environment keys read by FromEnvMap.
const (
	EnvEnabled              = "LIVERL_ENABLED"
	EnvStoreSQLite          = "LIVERL_STORE_SQLITE"
	EnvUpdateInterval       = "LIVERL_UPDATE_INTERVAL"
	EnvMaxRolloutsPerUpdate = "LIVERL_MAX_ROLLOUTS_PER_UPDATE"
	EnvMaxFailureStreak     = "LIVERL_MAX_FAILURE_STREAK"
	EnvAPOEnabled           = "LIVERL_APO_ENABLED"
	EnvAPOMinSamples        = "LIVERL_APO_MIN_SAMPLES"
	EnvAPOMaxSamples        = "LIVERL_APO_MAX_SAMPLES"
	EnvAPOSignificanceAlpha = "LIVERL_APO_SIGNIFICANCE_ALPHA"
)

// Defaults.
const (
	DefaultUpdateIntervalRollouts = 8
	DefaultMaxRolloutsPerUpdate   = 64
	DefaultMaxFailureStreak       = 3
	DefaultAPOMinSamples          = 4
	DefaultAPOMaxSamples          = 32
	DefaultAPOSignificanceAlpha   = 0.05
)

// RuntimeConfig is fixed for the lifetime of a Bridge.
type RuntimeConfig struct {
	Enabled                bool    `json:"enabled" yaml:"enabled"`
	StorePath              string  `json:"store_path" yaml:"store_path"`
	UpdateIntervalRollouts int     `json:"update_interval_rollouts" yaml:"update_interval_rollouts"`
	MaxRolloutsPerUpdate   int     `json:"max_rollouts_per_update" yaml:"max_rollouts_per_update"`
	MaxFailureStreak       int     `json:"max_failure_streak" yaml:"max_failure_streak"`
	APOEnabled             bool    `json:"apo_enabled" yaml:"apo_enabled"`
	APOMinSamples          int     `json:"apo_min_samples" yaml:"apo_min_samples"`
	APOMaxSamples          int     `json:"apo_max_samples" yaml:"apo_max_samples"`
	APOSignificanceAlpha   float64 `json:"apo_significance_alpha" yaml:"apo_significance_alpha"`
}

// DefaultRuntimeConfig returns the defaults with the bridge disabled.
func DefaultRuntimeConfig(storePath string) RuntimeConfig {
	return RuntimeConfig{
		StorePath:              storePath,
		UpdateIntervalRollouts: DefaultUpdateIntervalRollouts,
		MaxRolloutsPerUpdate:   DefaultMaxRolloutsPerUpdate,
		MaxFailureStreak:       DefaultMaxFailureStreak,
		APOEnabled:             true,
		APOMinSamples:          DefaultAPOMinSamples,
		APOMaxSamples:          DefaultAPOMaxSamples,
		APOSignificanceAlpha:   DefaultAPOSignificanceAlpha,
	}
}

// FromEnvMap builds a config from LIVERL_* keys. Missing or blank values
// take their defaults; malformed values are errors naming the key.
func FromEnvMap(env map[string]string, defaultStorePath string) (RuntimeConfig, error) {
	cfg := DefaultRuntimeConfig(defaultStorePath)
	var err error

	if cfg.Enabled, err = boolEnv(env, EnvEnabled, false); err != nil {
		return RuntimeConfig{}, err
	}
	if p := strings.TrimSpace(env[EnvStoreSQLite]); p != "" {
		cfg.StorePath = p
	}
	if cfg.UpdateIntervalRollouts, err = positiveIntEnv(env, EnvUpdateInterval, DefaultUpdateIntervalRollouts); err != nil {
		return RuntimeConfig{}, err
	}
	if cfg.MaxRolloutsPerUpdate, err = positiveIntEnv(env, EnvMaxRolloutsPerUpdate, DefaultMaxRolloutsPerUpdate); err != nil {
		return RuntimeConfig{}, err
	}
	if cfg.MaxFailureStreak, err = positiveIntEnv(env, EnvMaxFailureStreak, DefaultMaxFailureStreak); err != nil {
		return RuntimeConfig{}, err
	}
	if cfg.APOEnabled, err = boolEnv(env, EnvAPOEnabled, true); err != nil {
		return RuntimeConfig{}, err
	}
	if cfg.APOMinSamples, err = positiveIntEnv(env, EnvAPOMinSamples, DefaultAPOMinSamples); err != nil {
		return RuntimeConfig{}, err
	}
	if cfg.APOMaxSamples, err = positiveIntEnv(env, EnvAPOMaxSamples, DefaultAPOMaxSamples); err != nil {
		return RuntimeConfig{}, err
	}
	if cfg.APOMinSamples > cfg.APOMaxSamples {
		return RuntimeConfig{}, fmt.Errorf("%s cannot be greater than %s", EnvAPOMinSamples, EnvAPOMaxSamples)
	}
	if cfg.APOSignificanceAlpha, err = alphaEnv(env, EnvAPOSignificanceAlpha, DefaultAPOSignificanceAlpha); err != nil {
		return RuntimeConfig{}, err
	}
	return cfg, nil
}

// FromEnviron is FromEnvMap over the process environment.
func FromEnviron(defaultStorePath string) (RuntimeConfig, error) {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, "LIVERL_") {
			env[k] = v
		}
	}
	return FromEnvMap(env, defaultStorePath)
}

// Validate checks a hand-built config with the same rules as FromEnvMap.
func (c RuntimeConfig) Validate() error {
	var errs []error
	positive := []struct {
		key   string
		value int
	}{
		{EnvUpdateInterval, c.UpdateIntervalRollouts},
		{EnvMaxRolloutsPerUpdate, c.MaxRolloutsPerUpdate},
		{EnvMaxFailureStreak, c.MaxFailureStreak},
		{EnvAPOMinSamples, c.APOMinSamples},
		{EnvAPOMaxSamples, c.APOMaxSamples},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be greater than 0", p.key))
		}
	}
	if c.APOMinSamples > c.APOMaxSamples {
		errs = append(errs, fmt.Errorf("%s cannot be greater than %s", EnvAPOMinSamples, EnvAPOMaxSamples))
	}
	if !significance.IsSupportedAlpha(c.APOSignificanceAlpha) {
		errs = append(errs, unsupportedAlpha(EnvAPOSignificanceAlpha))
	}
	return errors.Join(errs...)
}

func parseBool(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}

func boolEnv(env map[string]string, key string, def bool) (bool, error) {
	raw, ok := env[key]
	if !ok {
		return def, nil
	}
	v, ok := parseBool(raw)
	if !ok {
		return false, fmt.Errorf("%s must be one of 1,true,yes,on,0,false,no,off", key)
	}
	return v, nil
}

func positiveIntEnv(env map[string]string, key string, def int) (int, error) {
	raw := strings.TrimSpace(env[key])
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 31)
	if err != nil {
		return 0, fmt.Errorf("%s must be a positive integer: %w", key, err)
	}
	if v == 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}
	return int(v), nil
}

func alphaEnv(env map[string]string, key string, def float64) (float64, error) {
	raw := strings.TrimSpace(env[key])
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a floating-point alpha value: %w", key, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%s must be finite", key)
	}
	if !significance.IsSupportedAlpha(v) {
		return 0, unsupportedAlpha(key)
	}
	return v, nil
}

func unsupportedAlpha(key string) error {
	return fmt.Errorf("%s must be one of 0.10, 0.05, 0.01: %w", key, significance.ErrUnsupportedAlpha)
}
