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
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/teradata-labs/liverl/pkg/algorithm"
	"github.com/teradata-labs/liverl/pkg/observability"
	"github.com/teradata-labs/liverl/pkg/trainingstore"
)

// runOptimizerUpdate runs the policy-gradient pass over the most recent live
// rollouts, followed by an APO round when enabled, and stores the report.
func (b *Bridge) runOptimizerUpdate(ctx context.Context) error {
	ctx, span := b.tracer.StartSpan(ctx, observability.SpanOptimizerUpdate)
	defer b.tracer.EndSpan(span)

	report, err := b.optimize(ctx)
	if err != nil {
		span.RecordError(err)
		return err
	}
	span.SetAttribute("executed", report.Executed)
	span.SetAttribute(observability.AttrSampleCount, report.Samples)

	b.tracer.RecordMetric(observability.MetricOptimizerRuns, 1, map[string]string{
		"executed": fmt.Sprintf("%t", report.Executed),
	})
	if report.Executed {
		b.tracer.RecordMetric(observability.MetricOptimizerSamples, float64(report.Samples), nil)
	}
	fields := []zap.Field{
		zap.Bool("executed", report.Executed),
		zap.Int("trajectories", report.Trajectories),
		zap.Int("samples", report.Samples),
		zap.Bool("early_stop_triggered", report.EarlyStopTriggered),
	}
	if report.MeanTotalLoss != nil {
		fields = append(fields, zap.Float64("mean_total_loss", *report.MeanTotalLoss))
	}
	b.logger.Info("live RL optimizer update", fields...)

	b.mu.Lock()
	b.state.lastOptimizerReport = report
	b.mu.Unlock()
	return nil
}

func (b *Bridge) optimize(ctx context.Context) (*OptimizerReport, error) {
	ids, err := recentLiveRolloutIDs(ctx, b.store, b.cfg.MaxRolloutsPerUpdate)
	if err != nil {
		return nil, fmt.Errorf("failed to query succeeded live rollouts: %w", err)
	}
	if len(ids) == 0 {
		return &OptimizerReport{}, nil
	}

	trajectories, err := algorithm.CollectTrajectoryBatch(ctx, b.store, ids, algorithm.CollectOptions{Tracer: b.tracer})
	if err != nil {
		return nil, fmt.Errorf("failed to collect live trajectories: %w", err)
	}
	if len(trajectories) == 0 {
		return &OptimizerReport{}, nil
	}

	gae := algorithm.DefaultGAEConfig()
	var samples []algorithm.PPOSample
	for _, t := range trajectories {
		if len(t.Steps) == 0 {
			continue
		}
		values := t.Values()
		batch, err := algorithm.ComputeGAEBatchFromSlices(gae, t.Rewards(), values, t.Dones(), 0)
		if err != nil {
			return nil, fmt.Errorf("failed to compute GAE batch for live trajectory %q: %w", t.AttemptID, err)
		}
		for i, step := range t.Steps {
			entropy, _ := trainingstore.AsFloat(step.Metadata["entropy"])
			samples = append(samples, algorithm.PPOSample{
				OldLogProb: step.LogProb,
				NewLogProb: step.LogProb,
				Advantage:  batch.Advantages[i],
				Return:     batch.Returns[i],
				Value:      values[i],
				Entropy:    entropy,
			})
		}
	}
	if len(samples) == 0 {
		return &OptimizerReport{Trajectories: len(trajectories)}, nil
	}

	update, err := algorithm.ComputePPOUpdate(ctx, algorithm.DefaultPPOConfig(), samples, b.tracer)
	if err != nil {
		return nil, fmt.Errorf("failed PPO update for live RL runtime: %w", err)
	}

	report := &OptimizerReport{
		Executed:           true,
		Trajectories:       len(trajectories),
		Samples:            len(samples),
		MeanTotalLoss:      ptr(update.MeanTotalLoss),
		ObservedApproxKL:   ptr(update.ApproxKL),
		EarlyStopTriggered: update.EarlyStop,
	}
	if b.cfg.APOEnabled {
		apo, err := b.runLiveAPOUpdate(ctx, ids)
		if err != nil {
			apo = SkippedAPO(fmt.Sprintf("%s:%v", reasonAPORuntimeError, err), 0)
		}
		report.APO = apo
	}
	return report, nil
}
