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
	"time"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/liverl/pkg/trainingstore"
)

var resourcesCmd = &cobra.Command{
	Use:   "resources",
	Short: "Print the latest (or a specific) resources document",
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		return withStore(cmd, func(ctx context.Context, store trainingstore.Store) error {
			view, err := loadResources(ctx, store, id)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), view)
		})
	},
}

func init() {
	resourcesCmd.Flags().String("id", "", "resources id (default: latest)")
}

type resourcesView struct {
	ID        string         `yaml:"id"`
	Version   int64          `yaml:"version"`
	IsLatest  bool           `yaml:"is_latest"`
	CreatedAt time.Time      `yaml:"created_at"`
	Resources map[string]any `yaml:"resources"`
}

func loadResources(ctx context.Context, store trainingstore.Store, id string) (*resourcesView, error) {
	var (
		update *trainingstore.ResourcesUpdate
		err    error
	)
	if id == "" {
		update, err = store.GetLatestResources(ctx)
	} else {
		update, err = store.GetResourcesByID(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	if update == nil {
		return nil, fmt.Errorf("%w: nothing has been recorded yet", trainingstore.ErrResourcesNotFound)
	}
	return &resourcesView{
		ID:        update.ID,
		Version:   update.Version,
		IsLatest:  update.IsLatest,
		CreatedAt: update.CreatedAt,
		Resources: update.Resources,
	}, nil
}
