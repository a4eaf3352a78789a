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
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/teradata-labs/liverl/pkg/observability"
	"github.com/teradata-labs/liverl/pkg/trainingstore"
)

func openStore(ctx context.Context, backend, path string, tracer observability.Tracer, logger *zap.Logger) (trainingstore.Store, error) {
	b, err := trainingstore.ParseBackend(backend)
	if err != nil {
		return nil, err
	}
	store, err := trainingstore.Open(ctx, trainingstore.Options{
		Backend: b,
		Path:    path,
		Tracer:  tracer,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open training store %s: %w", path, err)
	}
	return store, nil
}

// withStore opens the configured store for a read-only command.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, store trainingstore.Store) error) error {
	logger, err := setupLogger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := openStore(ctx, cliCfg.Store.Backend, cliCfg.Store.Path, nil, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(ctx, store)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return enc.Close()
}
