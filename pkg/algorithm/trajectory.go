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
package algorithm

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/teradata-labs/liverl/pkg/observability"
	"github.com/teradata-labs/liverl/pkg/trainingstore"
)

// DefaultCollectConcurrency bounds concurrent span queries.
const DefaultCollectConcurrency = 8

// Step is one decision of a trajectory.
type Step struct {
	SequenceID int
	Reward     float64
	Value      float64
	// HasValue is false when the span carried no value estimate.
	HasValue bool
	LogProb  float64
	Done     bool
	Metadata map[string]any
}

// Trajectory is the ordered steps of one rollout attempt.
type Trajectory struct {
	RolloutID string
	AttemptID string
	Steps     []Step
}

// Rewards returns the per-step rewards.
func (t Trajectory) Rewards() []float64 {
	out := make([]float64, len(t.Steps))
	for i, s := range t.Steps {
		out[i] = s.Reward
	}
	return out
}

// Values returns the per-step value estimates, 0 where absent.
func (t Trajectory) Values() []float64 {
	out := make([]float64, len(t.Steps))
	for i, s := range t.Steps {
		out[i] = s.Value
	}
	return out
}

// Dones returns the per-step terminal flags.
func (t Trajectory) Dones() []bool {
	out := make([]bool, len(t.Steps))
	for i, s := range t.Steps {
		out[i] = s.Done
	}
	return out
}

// SpanSource is the read side of a training store.
type SpanSource interface {
	QuerySpans(ctx context.Context, rolloutID, attemptID string) ([]trainingstore.Span, error)
}

// CollectOptions tunes CollectTrajectoryBatch.
type CollectOptions struct {
	Concurrency int
	Tracer      observability.Tracer
}

// CollectTrajectoryBatch loads the spans of each rollout and turns every
// attempt into a trajectory. Output follows rolloutIDs order; rollouts without
// spans contribute nothing.
func CollectTrajectoryBatch(ctx context.Context, source SpanSource, rolloutIDs []string, opts ...CollectOptions) ([]Trajectory, error) {
	var opt CollectOptions
	if len(opts) > 0 {
		opt = opts[0]
	}
	if opt.Concurrency <= 0 {
		opt.Concurrency = DefaultCollectConcurrency
	}
	tracer := opt.Tracer
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}

	ctx, span := tracer.StartSpan(ctx, observability.SpanTrajectoryCollect,
		observability.WithAttribute("rollouts", len(rolloutIDs)))
	defer tracer.EndSpan(span)

	perRollout := make([][]Trajectory, len(rolloutIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opt.Concurrency)
	for i, id := range rolloutIDs {
		g.Go(func() error {
			spans, err := source.QuerySpans(gctx, id, "")
			if err != nil {
				return fmt.Errorf("failed to query spans for %s: %w", id, err)
			}
			perRollout[i] = trajectoriesFromSpans(id, spans)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		return nil, err
	}

	var out []Trajectory
	for _, ts := range perRollout {
		out = append(out, ts...)
	}
	span.SetAttribute("trajectories", len(out))
	return out, nil
}

// trajectoriesFromSpans groups spans by attempt in first-seen order. The
// last step of each attempt is terminal.
func trajectoriesFromSpans(rolloutID string, spans []trainingstore.Span) []Trajectory {
	if len(spans) == 0 {
		return nil
	}
	var order []string
	byAttempt := make(map[string][]trainingstore.Span)
	for _, s := range spans {
		if _, ok := byAttempt[s.AttemptID]; !ok {
			order = append(order, s.AttemptID)
		}
		byAttempt[s.AttemptID] = append(byAttempt[s.AttemptID], s)
	}

	out := make([]Trajectory, 0, len(order))
	for _, attempt := range order {
		group := byAttempt[attempt]
		sort.SliceStable(group, func(i, j int) bool { return group[i].SequenceID < group[j].SequenceID })
		steps := make([]Step, len(group))
		for i, s := range group {
			steps[i] = stepFromSpan(s)
		}
		steps[len(steps)-1].Done = true
		out = append(out, Trajectory{RolloutID: rolloutID, AttemptID: attempt, Steps: steps})
	}
	return out
}

func stepFromSpan(s trainingstore.Span) Step {
	step := Step{SequenceID: s.SequenceID, Metadata: make(map[string]any, len(s.Attributes))}
	for k, v := range s.Attributes {
		step.Metadata[k] = v
	}
	step.Reward, _ = s.Float("reward")
	step.Value, step.HasValue = s.Float("value")
	if lp, ok := s.Float("logprob"); ok {
		step.LogProb = lp
	} else {
		step.LogProb, _ = s.Float("log_prob")
	}
	step.Done, _ = s.Bool("done")
	return step
}
