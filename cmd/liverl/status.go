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

	"github.com/teradata-labs/liverl/pkg/liverl"
	"github.com/teradata-labs/liverl/pkg/metacognition"
	"github.com/teradata-labs/liverl/pkg/trainingstore"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Summarize the training store",
	Long:  `Prints rollout counts by status, the latest resources version and a calibration summary of recent live decisions as YAML.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		window, _ := cmd.Flags().GetInt("window")
		bins, _ := cmd.Flags().GetInt("bins")
		return withStore(cmd, func(ctx context.Context, store trainingstore.Store) error {
			report, err := buildStatusReport(ctx, store, window, bins)
			if err != nil {
				return err
			}
			report.StorePath = cliCfg.Store.Path
			report.Backend = cliCfg.Store.Backend
			return writeYAML(cmd.OutOrStdout(), report)
		})
	},
}

func init() {
	statusCmd.Flags().Int("window", 256, "number of recent live decisions to summarize (0 = all)")
	statusCmd.Flags().Int("bins", 10, "calibration curve bins")
}

type statusReport struct {
	StorePath       string                        `yaml:"store_path,omitempty"`
	Backend         string                        `yaml:"backend,omitempty"`
	Rollouts        map[string]int                `yaml:"rollouts"`
	LatestResources *resourcesSummary             `yaml:"latest_resources,omitempty"`
	Decisions       decisionSummary               `yaml:"decisions"`
	Calibration     *metacognition.Calibration    `yaml:"calibration,omitempty"`
	Categories      []metacognition.CategoryStats `yaml:"categories,omitempty"`
}

type resourcesSummary struct {
	ID                  string    `yaml:"id"`
	Version             int64     `yaml:"version"`
	CreatedAt           time.Time `yaml:"created_at"`
	SystemPromptVersion string    `yaml:"system_prompt_version,omitempty"`
}

type decisionSummary struct {
	Count         int     `yaml:"count"`
	SuccessRate   float64 `yaml:"success_rate"`
	MeanReward    float64 `yaml:"mean_reward"`
	LearningTrend string  `yaml:"learning_trend"`
}

func buildStatusReport(ctx context.Context, store trainingstore.Store, window, bins int) (*statusReport, error) {
	report := &statusReport{Rollouts: make(map[string]int, len(trainingstore.AllStatuses))}
	for _, status := range trainingstore.AllStatuses {
		rollouts, err := store.QueryRollouts(ctx, trainingstore.RolloutQuery{
			Statuses: []trainingstore.RolloutStatus{status},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to count %s rollouts: %w", status, err)
		}
		report.Rollouts[string(status)] = len(rollouts)
	}

	latest, err := store.GetLatestResources(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest resources: %w", err)
	}
	if latest != nil {
		summary := &resourcesSummary{ID: latest.ID, Version: latest.Version, CreatedAt: latest.CreatedAt}
		summary.SystemPromptVersion, _ = latest.Resources[liverl.ResourceSystemPromptVersion].(string)
		report.LatestResources = summary
	}

	outcomes, err := liverl.RecentOutcomes(ctx, store, window)
	if err != nil {
		return nil, err
	}
	rewards := metacognition.Rewards(outcomes)
	report.Decisions = decisionSummary{
		Count:         len(outcomes),
		SuccessRate:   metacognition.SuccessRate(outcomes),
		MeanReward:    metacognition.Mean(rewards),
		LearningTrend: metacognition.ClassifyLearningTrend(rewards),
	}
	if len(outcomes) > 0 {
		curve := metacognition.CalibrationCurve(outcomes, bins)
		report.Calibration = &curve
		report.Categories = metacognition.CategoryDifficulty(outcomes)
	}
	return report, nil
}
