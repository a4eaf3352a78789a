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
package metacognition

import (
	"math"
	"sort"
)

// Learning trend labels.
const (
	TrendInsufficientData = "insufficient_data"
	TrendImproving        = "improving"
	TrendPlateau          = "plateau"
	TrendRegressing       = "regressing"
)

const (
	minTrendSamples      = 4
	regressionThreshold  = -0.15
	improvementThreshold = 0.10
)

// Outcome is one past decision reduced to what diagnostics need.
type Outcome struct {
	Category                    string
	Reward                      float64
	PredictedSuccessProbability float64
	ActualSuccess               bool
}

// CalibrationError is |predicted - actual| for a single outcome.
func (o Outcome) CalibrationError() float64 {
	return math.Abs(o.PredictedSuccessProbability - boolToFloat(o.ActualSuccess))
}

// NormalizeRewardToQuality maps a reward in [-1, 1] onto [0, 1].
func NormalizeRewardToQuality(reward float64) float64 {
	return clamp((reward+1)/2, 0, 1)
}

// Mean returns the arithmetic mean, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// ClassifyLearningTrend compares the recent half of a chronologically
// ordered reward series against the rest.
func ClassifyLearningTrend(rewards []float64) string {
	n := len(rewards)
	if n < minTrendSamples {
		return TrendInsufficientData
	}
	window := n / 2
	if window < 2 {
		window = 2
	}
	if n <= window {
		return TrendInsufficientData
	}
	split := n - window
	delta := Mean(rewards[split:]) - Mean(rewards[:split])
	switch {
	case delta <= regressionThreshold:
		return TrendRegressing
	case delta >= improvementThreshold:
		return TrendImproving
	default:
		return TrendPlateau
	}
}

// SuccessRate is the fraction of outcomes that succeeded.
func SuccessRate(outcomes []Outcome) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	var hits int
	for _, o := range outcomes {
		if o.ActualSuccess {
			hits++
		}
	}
	return float64(hits) / float64(len(outcomes))
}

// MeanCalibrationError is the mean absolute gap between predicted success
// probability and the observed 0/1 outcome.
func MeanCalibrationError(outcomes []Outcome) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	var sum float64
	for _, o := range outcomes {
		sum += o.CalibrationError()
	}
	return sum / float64(len(outcomes))
}

// Rewards extracts the reward series in input order.
func Rewards(outcomes []Outcome) []float64 {
	out := make([]float64, len(outcomes))
	for i, o := range outcomes {
		out[i] = o.Reward
	}
	return out
}

// ShouldAskForHelp recommends escalation for a category with enough
// history, a poor success rate and no sign of improvement.
func ShouldAskForHelp(samples int, successRate float64, trend string) bool {
	return samples >= 4 && successRate < 0.55 && trend != TrendImproving
}

// CalibrationBin summarizes outcomes whose predicted probability falls in
// [Lower, Upper).
type CalibrationBin struct {
	Lower         float64 `yaml:"lower" json:"lower"`
	Upper         float64 `yaml:"upper" json:"upper"`
	Count         int     `yaml:"count" json:"count"`
	MeanPredicted float64 `yaml:"mean_predicted" json:"mean_predicted"`
	ObservedRate  float64 `yaml:"observed_rate" json:"observed_rate"`
	Gap           float64 `yaml:"gap" json:"gap"`
}

// Calibration is a reliability curve over predicted success probability.
type Calibration struct {
	Bins []CalibrationBin `yaml:"bins" json:"bins"`
	// ExpectedCalibrationError is the count-weighted mean of bin gaps.
	ExpectedCalibrationError float64 `yaml:"expected_calibration_error" json:"expected_calibration_error"`
	Samples                  int     `yaml:"samples" json:"samples"`
}

// CalibrationCurve buckets outcomes into equal-width bins over [0, 1].
// A probability of exactly 1 lands in the last bin. bins < 1 is treated as 1.
func CalibrationCurve(outcomes []Outcome, bins int) Calibration {
	if bins < 1 {
		bins = 1
	}
	width := 1.0 / float64(bins)
	curve := Calibration{Bins: make([]CalibrationBin, bins), Samples: len(outcomes)}

	predictedSum := make([]float64, bins)
	successes := make([]int, bins)
	for i := range curve.Bins {
		curve.Bins[i].Lower = float64(i) * width
		curve.Bins[i].Upper = float64(i+1) * width
	}
	for _, o := range outcomes {
		p := clamp(o.PredictedSuccessProbability, 0, 1)
		idx := int(p / width)
		if idx >= bins {
			idx = bins - 1
		}
		curve.Bins[idx].Count++
		predictedSum[idx] += p
		if o.ActualSuccess {
			successes[idx]++
		}
	}

	var weightedGap float64
	for i := range curve.Bins {
		bin := &curve.Bins[i]
		if bin.Count == 0 {
			continue
		}
		bin.MeanPredicted = predictedSum[i] / float64(bin.Count)
		bin.ObservedRate = float64(successes[i]) / float64(bin.Count)
		bin.Gap = math.Abs(bin.MeanPredicted - bin.ObservedRate)
		weightedGap += bin.Gap * float64(bin.Count)
	}
	if len(outcomes) > 0 {
		curve.ExpectedCalibrationError = weightedGap / float64(len(outcomes))
	}
	return curve
}

// CategoryStats aggregates outcomes of one category.
type CategoryStats struct {
	Category    string  `yaml:"category" json:"category"`
	Samples     int     `yaml:"samples" json:"samples"`
	MeanReward  float64 `yaml:"mean_reward" json:"mean_reward"`
	SuccessRate float64 `yaml:"success_rate" json:"success_rate"`
	// Difficulty is 1 - quality(mean reward).
	Difficulty float64 `yaml:"difficulty" json:"difficulty"`
}

// CategoryDifficulty groups outcomes by category and ranks the hardest
// first, ties broken by name.
func CategoryDifficulty(outcomes []Outcome) []CategoryStats {
	grouped := make(map[string][]Outcome)
	for _, o := range outcomes {
		grouped[o.Category] = append(grouped[o.Category], o)
	}
	stats := make([]CategoryStats, 0, len(grouped))
	for category, group := range grouped {
		mean := Mean(Rewards(group))
		stats = append(stats, CategoryStats{
			Category:    category,
			Samples:     len(group),
			MeanReward:  mean,
			SuccessRate: SuccessRate(group),
			Difficulty:  1 - NormalizeRewardToQuality(mean),
		})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Difficulty != stats[j].Difficulty {
			return stats[i].Difficulty > stats[j].Difficulty
		}
		return stats[i].Category < stats[j].Category
	})
	return stats
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
