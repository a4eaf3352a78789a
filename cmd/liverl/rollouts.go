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
	"time"

	"github.com/spf13/cobra"

	"github.com/teradata-labs/liverl/pkg/trainingstore"
)

var rolloutsCmd = &cobra.Command{
	Use:   "rollouts",
	Short: "List rollouts",
	RunE: func(cmd *cobra.Command, args []string) error {
		statuses, _ := cmd.Flags().GetStringSlice("status")
		limit, _ := cmd.Flags().GetInt("limit")
		query, err := rolloutQuery(statuses, limit)
		if err != nil {
			return err
		}
		return withStore(cmd, func(ctx context.Context, store trainingstore.Store) error {
			rows, err := listRollouts(ctx, store, query)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), rows)
		})
	},
}

func init() {
	rolloutsCmd.Flags().StringSlice("status", nil, "filter by status (queuing, running, succeeded, failed, cancelled)")
	rolloutsCmd.Flags().Int("limit", 0, "maximum rollouts to list (0 = all)")
}

type rolloutRow struct {
	RolloutID string    `yaml:"rollout_id"`
	Status    string    `yaml:"status"`
	CreatedAt time.Time `yaml:"created_at"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

func rolloutQuery(statuses []string, limit int) (trainingstore.RolloutQuery, error) {
	query := trainingstore.RolloutQuery{Limit: limit}
	for _, raw := range statuses {
		status, err := trainingstore.ParseRolloutStatus(raw)
		if err != nil {
			return trainingstore.RolloutQuery{}, err
		}
		query.Statuses = append(query.Statuses, status)
	}
	return query, nil
}

func listRollouts(ctx context.Context, store trainingstore.Store, query trainingstore.RolloutQuery) ([]rolloutRow, error) {
	rollouts, err := store.QueryRollouts(ctx, query)
	if err != nil {
		return nil, err
	}
	rows := make([]rolloutRow, len(rollouts))
	for i, r := range rollouts {
		rows[i] = rolloutRow{
			RolloutID: r.RolloutID,
			Status:    string(r.Status),
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		}
	}
	return rows, nil
}
