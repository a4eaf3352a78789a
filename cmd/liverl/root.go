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

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/teradata-labs/liverl/internal/version"
	"github.com/teradata-labs/liverl/pkg/config"
)

var (
	cfgFile string
	cliCfg  *Config
)

var rootCmd = &cobra.Command{
	Use:   "liverl",
	Short: "Live RL bridge - turn agent runs into training data",
	Long: `liverl observes an agent's lifecycle events, records every run as a rollout with a
rewarded decision record, and periodically runs policy-gradient and prompt-optimization
updates over the most recent runs.`,
	Version:       version.Full(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $LIVERL_DATA_DIR/liverl.yaml)")

	rootCmd.PersistentFlags().String("store", config.DefaultStorePath(), "training store path (SQLite file or Badger directory)")
	rootCmd.PersistentFlags().String("store-backend", "sqlite", "training store backend (sqlite, badger, memory)")

	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "", "write logs to this file instead of stderr")

	_ = viper.BindPFlag("store.path", rootCmd.PersistentFlags().Lookup("store"))
	_ = viper.BindPFlag("store.backend", rootCmd.PersistentFlags().Lookup("store-backend"))
	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.file", rootCmd.PersistentFlags().Lookup("log-file"))

	rootCmd.AddCommand(serveCmd, statusCmd, resourcesCmd, rolloutsCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	var err error
	cliCfg, err = LoadConfig(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
}

// setupLogger builds the process logger and installs it as the zap global.
func setupLogger() (*zap.Logger, error) {
	logger, err := newLogger(cliCfg.Logging)
	if err != nil {
		return nil, err
	}
	zap.ReplaceGlobals(logger)
	return logger, nil
}
