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
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/teradata-labs/liverl/pkg/config"
	"github.com/teradata-labs/liverl/pkg/liverl"
)

// DefaultConfigFileName is the config file searched for when --config is unset.
const DefaultConfigFileName = "liverl"

// Config is the CLI configuration resolved from flags, environment and liverl.yaml.
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	LLM     LLMConfig     `mapstructure:"llm"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`

	DataDir string `mapstructure:"-"`
}

type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

type LLMConfig struct {
	Provider   string `mapstructure:"provider"`
	Model      string `mapstructure:"model"`
	BaseURL    string `mapstructure:"base_url"`
	SeedPrompt string `mapstructure:"seed_prompt"`
}

type ServerConfig struct {
	MetricsAddr string `mapstructure:"metrics_addr"`
	HealthAddr  string `mapstructure:"health_addr"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// bridgeKeys maps liverl.yaml keys onto the LIVERL_* variables read by
// liverl.FromEnvMap.
var bridgeKeys = []struct {
	key string
	env string
}{
	{"liverl.enabled", liverl.EnvEnabled},
	{"liverl.update_interval", liverl.EnvUpdateInterval},
	{"liverl.max_rollouts_per_update", liverl.EnvMaxRolloutsPerUpdate},
	{"liverl.max_failure_streak", liverl.EnvMaxFailureStreak},
	{"liverl.apo_enabled", liverl.EnvAPOEnabled},
	{"liverl.apo_min_samples", liverl.EnvAPOMinSamples},
	{"liverl.apo_max_samples", liverl.EnvAPOMaxSamples},
	{"liverl.apo_significance_alpha", liverl.EnvAPOSignificanceAlpha},
}

// LoadConfig loads configuration from file, environment variables, and flags.
func LoadConfig(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(config.GetDataDir())
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/liverl/")
		viper.SetConfigName(DefaultConfigFileName)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file %s: %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.SetEnvPrefix("LIVERL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.DataDir = config.GetDataDir()
	if cfg.Store.Path == "" {
		cfg.Store.Path = config.DefaultStorePath()
	}
	cfg.Store.Path = config.ExpandPath(cfg.Store.Path)
	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("store.backend", "sqlite")
	viper.SetDefault("store.path", config.DefaultStorePath())

	viper.SetDefault("llm.provider", "none")
	viper.SetDefault("llm.model", "")
	viper.SetDefault("llm.seed_prompt", "You are a helpful agent. Complete the task and verify the outcome.")

	viper.SetDefault("server.metrics_addr", ":9464")
	viper.SetDefault("server.health_addr", ":50061")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.file", "")
}

// bridgeEnv renders the liverl.* keys of v and the LIVERL_* variables of
// environ into the map read by liverl.FromEnvMap. Process variables win over
// the config file.
func bridgeEnv(v *viper.Viper, environ []string) map[string]string {
	env := make(map[string]string)
	for _, k := range bridgeKeys {
		if v.IsSet(k.key) {
			env[k.env] = v.GetString(k.key)
		}
	}
	for _, kv := range environ {
		if k, val, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, "LIVERL_") {
			env[k] = val
		}
	}
	return env
}

// runtimeConfig resolves the bridge config for storePath.
func runtimeConfig(v *viper.Viper, storePath string) (liverl.RuntimeConfig, error) {
	return liverl.FromEnvMap(bridgeEnv(v, os.Environ()), storePath)
}

// newLogger builds a production logger honoring logging.level and logging.file.
func newLogger(cfg LoggingConfig) (*zap.Logger, error) {
	zapConfig := zap.NewProductionConfig()

	level := zap.InfoLevel
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	if cfg.File != "" {
		zapConfig.OutputPaths = []string{cfg.File}
		zapConfig.ErrorOutputPaths = []string{cfg.File}
	}
	return zapConfig.Build(zap.AddStacktrace(zap.ErrorLevel))
}
