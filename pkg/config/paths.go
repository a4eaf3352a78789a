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
// Package config resolves filesystem locations for liverl data.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// DataDirEnv overrides the data directory.
const DataDirEnv = "LIVERL_DATA_DIR"

// GetDataDir returns the liverl data directory.
//
// Priority:
// 1. LIVERL_DATA_DIR environment variable (if set and non-empty)
// 2. ~/.liverl (default)
//
// The returned path is always absolute; a leading ~/ is expanded and relative
// paths are resolved against the working directory.
//
// Reads os.Getenv directly because it runs before viper loads the config file
// it helps locate.
func GetDataDir() string {
	if dataDir := os.Getenv(DataDirEnv); dataDir != "" {
		return expandPath(dataDir)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".liverl"
	}
	return filepath.Join(homeDir, ".liverl")
}

// GetSubDir returns a subdirectory within the data directory.
// Example: GetSubDir("training") returns ~/.liverl/training
func GetSubDir(subdir string) string {
	return filepath.Join(GetDataDir(), subdir)
}

// DefaultStorePath is where the training store lives when no path is
// configured.
func DefaultStorePath() string {
	return filepath.Join(GetSubDir("training"), "store.sqlite")
}

// ExpandPath expands ~ and resolves to an absolute path.
func ExpandPath(path string) string {
	return expandPath(path)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}
