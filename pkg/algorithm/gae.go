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
	"errors"
	"fmt"
	"math"
)

// ErrEmptyBatch is returned when a kernel receives no data.
var ErrEmptyBatch = errors.New("empty batch")

// GAEConfig holds the discount and smoothing factors.
type GAEConfig struct {
	Gamma  float64
	Lambda float64
	// Normalize rescales advantages to zero mean and unit variance.
	Normalize bool
}

// DefaultGAEConfig returns gamma 0.99, lambda 0.95, no normalization.
func DefaultGAEConfig() GAEConfig {
	return GAEConfig{Gamma: 0.99, Lambda: 0.95}
}

// GAEBatch holds the advantages and returns of one trajectory.
type GAEBatch struct {
	Advantages []float64
	Returns    []float64
}

// ComputeGAEBatchFromSlices computes generalized advantage estimates
// backwards over a trajectory. A done step cuts the bootstrap from the step
// after it; bootstrapValue is the value estimate following the last step.
func ComputeGAEBatchFromSlices(cfg GAEConfig, rewards, values []float64, dones []bool, bootstrapValue float64) (GAEBatch, error) {
	n := len(rewards)
	if n == 0 {
		return GAEBatch{}, ErrEmptyBatch
	}
	if len(values) != n || len(dones) != n {
		return GAEBatch{}, fmt.Errorf("gae length mismatch: rewards=%d values=%d dones=%d", n, len(values), len(dones))
	}
	if cfg.Gamma < 0 || cfg.Gamma > 1 || cfg.Lambda < 0 || cfg.Lambda > 1 {
		return GAEBatch{}, fmt.Errorf("gae gamma and lambda must be in [0,1], got %g and %g", cfg.Gamma, cfg.Lambda)
	}
	for i := range rewards {
		if !finite(rewards[i]) || !finite(values[i]) {
			return GAEBatch{}, fmt.Errorf("gae input at step %d is not finite", i)
		}
	}

	advantages := make([]float64, n)
	returns := make([]float64, n)
	next := bootstrapValue
	gae := 0.0
	for t := n - 1; t >= 0; t-- {
		mask := 1.0
		if dones[t] {
			mask = 0
		}
		delta := rewards[t] + cfg.Gamma*next*mask - values[t]
		gae = delta + cfg.Gamma*cfg.Lambda*mask*gae
		advantages[t] = gae
		returns[t] = gae + values[t]
		next = values[t]
	}

	if cfg.Normalize && n > 1 {
		normalize(advantages)
	}
	return GAEBatch{Advantages: advantages, Returns: returns}, nil
}

func normalize(xs []float64) {
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	variance := 0.0
	for _, x := range xs {
		variance += (x - mean) * (x - mean)
	}
	std := math.Sqrt(variance / float64(len(xs)))
	if std < 1e-8 {
		for i := range xs {
			xs[i] -= mean
		}
		return
	}
	for i := range xs {
		xs[i] = (xs[i] - mean) / std
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
