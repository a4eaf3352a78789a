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
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/liverl/pkg/observability"
	"github.com/teradata-labs/liverl/pkg/trainingstore"
)

func TestComputeGAEBatchFromSlices(t *testing.T) {
	t.Run("single terminal step", func(t *testing.T) {
		batch, err := ComputeGAEBatchFromSlices(DefaultGAEConfig(), []float64{0.75}, []float64{0}, []bool{true}, 0)
		require.NoError(t, err)
		assert.Equal(t, []float64{0.75}, batch.Advantages)
		assert.Equal(t, []float64{0.75}, batch.Returns)
	})

	t.Run("discounted two steps", func(t *testing.T) {
		cfg := GAEConfig{Gamma: 0.5, Lambda: 1}
		batch, err := ComputeGAEBatchFromSlices(cfg, []float64{1, 2}, []float64{0, 0}, []bool{false, true}, 10)
		require.NoError(t, err)
		// t=1: delta=2 (done cuts bootstrap); t=0: delta=1+0.5*0-0=1, gae=1+0.5*2=2
		assert.InDelta(t, 2.0, batch.Advantages[1], 1e-12)
		assert.InDelta(t, 2.0, batch.Advantages[0], 1e-12)
	})

	t.Run("bootstrap when not done", func(t *testing.T) {
		cfg := GAEConfig{Gamma: 0.9, Lambda: 0.9}
		batch, err := ComputeGAEBatchFromSlices(cfg, []float64{0}, []float64{0.5}, []bool{false}, 1)
		require.NoError(t, err)
		assert.InDelta(t, 0.9-0.5, batch.Advantages[0], 1e-12)
		assert.InDelta(t, 0.9, batch.Returns[0], 1e-12)
	})

	t.Run("normalized", func(t *testing.T) {
		cfg := DefaultGAEConfig()
		cfg.Normalize = true
		batch, err := ComputeGAEBatchFromSlices(cfg, []float64{1, -1, 0.5}, []float64{0, 0, 0}, []bool{true, true, true}, 0)
		require.NoError(t, err)
		sum := 0.0
		for _, a := range batch.Advantages {
			sum += a
		}
		assert.InDelta(t, 0, sum, 1e-9)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := ComputeGAEBatchFromSlices(DefaultGAEConfig(), nil, nil, nil, 0)
		assert.True(t, errors.Is(err, ErrEmptyBatch))
		_, err = ComputeGAEBatchFromSlices(DefaultGAEConfig(), []float64{1}, []float64{}, []bool{true}, 0)
		assert.Error(t, err)
		_, err = ComputeGAEBatchFromSlices(DefaultGAEConfig(), []float64{math.NaN()}, []float64{0}, []bool{true}, 0)
		assert.Error(t, err)
		_, err = ComputeGAEBatchFromSlices(GAEConfig{Gamma: 2}, []float64{1}, []float64{0}, []bool{true}, 0)
		assert.Error(t, err)
	})
}

func TestComputePPOUpdate(t *testing.T) {
	ctx := context.Background()
	tracer := observability.NewMockTracer()

	// on-policy samples: ratio 1, no clipping, zero KL
	samples := []PPOSample{
		{Advantage: 1, Return: 1, Value: 0, Entropy: 0.5},
		{Advantage: -0.5, Return: -0.5, Value: 0, Entropy: 0.5},
	}
	update, err := ComputePPOUpdate(ctx, DefaultPPOConfig(), samples, tracer)
	require.NoError(t, err)
	assert.Equal(t, 2, update.SampleCount)
	assert.InDelta(t, -0.25, update.MeanPolicyLoss, 1e-12)
	assert.InDelta(t, 0.625, update.MeanValueLoss, 1e-12)
	assert.InDelta(t, 0.5, update.MeanEntropy, 1e-12)
	assert.InDelta(t, -0.25+0.5*0.625-0.01*0.5, update.MeanTotalLoss, 1e-12)
	assert.Zero(t, update.ApproxKL)
	assert.Zero(t, update.ClipFraction)
	assert.False(t, update.EarlyStop)
	require.NotNil(t, tracer.GetSpanByName(observability.SpanPPOUpdate))

	// policy moved far: ratio e^1 is clipped at 1.2 and KL triggers early stop
	update, err = ComputePPOUpdate(ctx, DefaultPPOConfig(), []PPOSample{
		{OldLogProb: -2, NewLogProb: -1, Advantage: 1},
	}, nil)
	require.NoError(t, err)
	assert.InDelta(t, -1.2, update.MeanPolicyLoss, 1e-12)
	assert.Equal(t, 1.0, update.ClipFraction)
	assert.InDelta(t, -1.0, update.ApproxKL, 1e-12)

	update, err = ComputePPOUpdate(ctx, DefaultPPOConfig(), []PPOSample{
		{OldLogProb: -1, NewLogProb: -1.5, Advantage: 1},
	}, nil)
	require.NoError(t, err)
	assert.True(t, update.EarlyStop)

	_, err = ComputePPOUpdate(ctx, DefaultPPOConfig(), nil, nil)
	assert.True(t, errors.Is(err, ErrEmptyBatch))
	_, err = ComputePPOUpdate(ctx, PPOConfig{}, samples, nil)
	assert.Error(t, err)
	_, err = ComputePPOUpdate(ctx, DefaultPPOConfig(), []PPOSample{{Advantage: math.Inf(1)}}, nil)
	assert.Error(t, err)
}

func TestCollectTrajectoryBatch(t *testing.T) {
	ctx := context.Background()
	store := trainingstore.NewMemoryStore(nil)
	t.Cleanup(func() { _ = store.Close() })

	for _, id := range []string{"r-1", "r-2", "r-3"} {
		require.NoError(t, store.EnqueueRollout(ctx, trainingstore.NewRollout(id, nil)))
	}
	add := func(rollout, attempt string, seq int, attrs map[string]any) {
		span := trainingstore.NewSpan(rollout, attempt, seq, "trace", "span", "", "live.agent.decision")
		for k, v := range attrs {
			span.Attributes[k] = v
		}
		require.NoError(t, store.AddSpan(ctx, span))
	}
	add("r-1", "a", 2, map[string]any{"reward": 0.5, "value": 0.1, "logprob": -0.3, "entropy": 0.2})
	add("r-1", "a", 1, map[string]any{"reward": 0.25})
	add("r-1", "b", 1, map[string]any{"reward": -1.0, "log_prob": -2.0, "done": true})
	add("r-3", "a", 1, map[string]any{"reward": 1, "done": true})

	tracer := observability.NewMockTracer()
	batch, err := CollectTrajectoryBatch(ctx, store, []string{"r-3", "r-2", "r-1"}, CollectOptions{Concurrency: 2, Tracer: tracer})
	require.NoError(t, err)
	require.Len(t, batch, 3)

	assert.Equal(t, "r-3", batch[0].RolloutID)
	assert.Equal(t, []float64{1}, batch[0].Rewards())

	assert.Equal(t, "r-1", batch[1].RolloutID)
	assert.Equal(t, "a", batch[1].AttemptID)
	assert.Equal(t, []float64{0.25, 0.5}, batch[1].Rewards())
	assert.Equal(t, []float64{0, 0.1}, batch[1].Values())
	assert.Equal(t, []bool{false, true}, batch[1].Dones(), "last step is terminal")
	assert.False(t, batch[1].Steps[0].HasValue)
	assert.Equal(t, -0.3, batch[1].Steps[1].LogProb)
	assert.Equal(t, 0.2, batch[1].Steps[1].Metadata["entropy"])

	assert.Equal(t, "b", batch[2].AttemptID)
	assert.Equal(t, -2.0, batch[2].Steps[0].LogProb)

	span := tracer.GetSpanByName(observability.SpanTrajectoryCollect)
	require.NotNil(t, span)
	assert.Equal(t, 3, span.Attributes["trajectories"])
}

type failingSource struct{}

func (failingSource) QuerySpans(ctx context.Context, rolloutID, attemptID string) ([]trainingstore.Span, error) {
	return nil, errors.New("disk gone")
}

func TestCollectTrajectoryBatch_Error(t *testing.T) {
	_, err := CollectTrajectoryBatch(context.Background(), failingSource{}, []string{"r-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "r-1")
}
