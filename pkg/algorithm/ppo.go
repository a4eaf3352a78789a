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
	"math"

	"github.com/teradata-labs/liverl/pkg/observability"
)

// PPOConfig holds the clipped-objective coefficients.
type PPOConfig struct {
	ClipEpsilon      float64
	ValueCoefficient float64
	EntropyCoef      float64
	// TargetKL triggers early stop when approx KL exceeds 1.5x this value.
	// Zero disables early stopping.
	TargetKL float64
}

// DefaultPPOConfig returns clip 0.2, value 0.5, entropy 0.01, target KL 0.02.
func DefaultPPOConfig() PPOConfig {
	return PPOConfig{ClipEpsilon: 0.2, ValueCoefficient: 0.5, EntropyCoef: 0.01, TargetKL: 0.02}
}

// PPOSample is one step prepared for the policy update.
type PPOSample struct {
	OldLogProb float64
	NewLogProb float64
	Advantage  float64
	Return     float64
	Value      float64
	Entropy    float64
}

// PPOUpdate summarizes the loss over a batch.
type PPOUpdate struct {
	SampleCount    int     `json:"sample_count"`
	MeanTotalLoss  float64 `json:"mean_total_loss"`
	MeanPolicyLoss float64 `json:"mean_policy_loss"`
	MeanValueLoss  float64 `json:"mean_value_loss"`
	MeanEntropy    float64 `json:"mean_entropy"`
	ApproxKL       float64 `json:"approx_kl"`
	ClipFraction   float64 `json:"clip_fraction"`
	EarlyStop      bool    `json:"early_stop"`
}

// ComputePPOUpdate evaluates the clipped surrogate objective:
//
//	ratio  = exp(new - old)
//	policy = -min(ratio·A, clip(ratio, 1-ε, 1+ε)·A)
//	value  = (V - R)²
//	total  = policy + c_v·value - c_e·entropy
func ComputePPOUpdate(ctx context.Context, cfg PPOConfig, samples []PPOSample, tracer observability.Tracer) (PPOUpdate, error) {
	if len(samples) == 0 {
		return PPOUpdate{}, ErrEmptyBatch
	}
	if cfg.ClipEpsilon <= 0 {
		return PPOUpdate{}, fmt.Errorf("ppo clip epsilon must be positive, got %g", cfg.ClipEpsilon)
	}
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	_, span := tracer.StartSpan(ctx, observability.SpanPPOUpdate,
		observability.WithAttribute(observability.AttrSampleCount, len(samples)))
	defer tracer.EndSpan(span)

	var policySum, valueSum, entropySum, klSum float64
	clipped := 0
	for i, s := range samples {
		if !finite(s.OldLogProb) || !finite(s.NewLogProb) || !finite(s.Advantage) ||
			!finite(s.Return) || !finite(s.Value) || !finite(s.Entropy) {
			err := fmt.Errorf("ppo sample %d is not finite", i)
			span.RecordError(err)
			return PPOUpdate{}, err
		}
		ratio := math.Exp(s.NewLogProb - s.OldLogProb)
		clippedRatio := math.Max(1-cfg.ClipEpsilon, math.Min(1+cfg.ClipEpsilon, ratio))
		if clippedRatio != ratio {
			clipped++
		}
		policySum += -math.Min(ratio*s.Advantage, clippedRatio*s.Advantage)
		valueSum += (s.Value - s.Return) * (s.Value - s.Return)
		entropySum += s.Entropy
		klSum += s.OldLogProb - s.NewLogProb
	}

	n := float64(len(samples))
	update := PPOUpdate{
		SampleCount:    len(samples),
		MeanPolicyLoss: policySum / n,
		MeanValueLoss:  valueSum / n,
		MeanEntropy:    entropySum / n,
		ApproxKL:       klSum / n,
		ClipFraction:   float64(clipped) / n,
	}
	update.MeanTotalLoss = update.MeanPolicyLoss +
		cfg.ValueCoefficient*update.MeanValueLoss -
		cfg.EntropyCoef*update.MeanEntropy
	update.EarlyStop = cfg.TargetKL > 0 && update.ApproxKL > 1.5*cfg.TargetKL

	span.SetAttribute("mean_total_loss", update.MeanTotalLoss)
	span.SetAttribute("approx_kl", update.ApproxKL)
	span.SetAttribute("early_stop", update.EarlyStop)
	return update, nil
}
