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

// Package significance decides whether a candidate's scores beat a
// baseline's with statistical confidence.
package significance

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrUnsupportedAlpha is returned for an alpha outside SupportedAlphas.
	ErrUnsupportedAlpha = errors.New("unsupported significance alpha")
	// ErrLengthMismatch is returned when baseline and candidate differ in length.
	ErrLengthMismatch = errors.New("baseline and candidate sample lengths differ")
	// ErrEmptySample is returned for zero-length samples.
	ErrEmptySample = errors.New("empty sample")
	// ErrNonFiniteSample is returned when a score is NaN or infinite.
	ErrNonFiniteSample = errors.New("non-finite sample value")
)

// alphaTolerance is how close a configured alpha must be to a supported one.
const alphaTolerance = 1e-12

// two-sided critical values of the standard normal distribution
var criticalValues = []struct {
	alpha float64
	z     float64
}{
	{0.10, 1.6449},
	{0.05, 1.9600},
	{0.01, 2.5758},
}

// SupportedAlphas lists the significance levels a Comparer accepts.
func SupportedAlphas() []float64 {
	out := make([]float64, len(criticalValues))
	for i, cv := range criticalValues {
		out[i] = cv.alpha
	}
	return out
}

// IsSupportedAlpha reports whether alpha matches a supported level.
func IsSupportedAlpha(alpha float64) bool {
	_, ok := criticalValue(alpha)
	return ok
}

func criticalValue(alpha float64) (float64, bool) {
	for _, cv := range criticalValues {
		if math.Abs(alpha-cv.alpha) <= alphaTolerance {
			return cv.z, true
		}
	}
	return 0, false
}

// Report is the outcome of a comparison.
type Report struct {
	IsSignificantImprovement bool    `json:"is_significant_improvement"`
	MeanDelta                float64 `json:"mean_delta"`
	DeltaCILow               float64 `json:"delta_ci_low"`
	DeltaCIHigh              float64 `json:"delta_ci_high"`
	Alpha                    float64 `json:"alpha"`
	SampleCount              int     `json:"sample_count"`
}

// Comparer compares equal-length baseline and candidate scores.
type Comparer interface {
	Compare(baseline, candidate []float64, alpha float64) (Report, error)
}

// WelchZTest compares baseline and candidate as two independent samples.
// The interval of the mean delta is delta ± z·√(s²b/n + s²c/n) with s² the
// sample variance (n-1) of each group, so a candidate that only shifts every
// baseline score by a constant is still judged against the baseline spread.
// The improvement is significant when the lower bound is above zero; when both
// groups are constant it is significant when the delta itself is positive.
type WelchZTest struct{}

// NewWelchZTest returns the default Comparer.
func NewWelchZTest() WelchZTest {
	return WelchZTest{}
}

// Compare implements Comparer.
func (WelchZTest) Compare(baseline, candidate []float64, alpha float64) (Report, error) {
	z, ok := criticalValue(alpha)
	if !ok {
		return Report{}, fmt.Errorf("%w: %g (supported: 0.10, 0.05, 0.01)", ErrUnsupportedAlpha, alpha)
	}
	if len(baseline) != len(candidate) {
		return Report{}, fmt.Errorf("%w: baseline=%d candidate=%d", ErrLengthMismatch, len(baseline), len(candidate))
	}
	n := len(baseline)
	if n == 0 {
		return Report{}, ErrEmptySample
	}
	for i := range baseline {
		if !finite(baseline[i]) || !finite(candidate[i]) {
			return Report{}, fmt.Errorf("%w at index %d", ErrNonFiniteSample, i)
		}
	}

	meanB, varB := meanVar(baseline)
	meanC, varC := meanVar(candidate)
	delta := meanC - meanB
	margin := z * math.Sqrt(varB/float64(n)+varC/float64(n))

	report := Report{
		MeanDelta:   delta,
		DeltaCILow:  delta - margin,
		DeltaCIHigh: delta + margin,
		Alpha:       alpha,
		SampleCount: n,
	}
	if margin == 0 {
		report.IsSignificantImprovement = delta > 0
	} else {
		report.IsSignificantImprovement = report.DeltaCILow > 0
	}
	return report, nil
}

// meanVar returns the mean and the sample variance (0 for a single value).
func meanVar(xs []float64) (float64, float64) {
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	ss := 0.0
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return mean, ss / float64(len(xs)-1)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

var _ Comparer = WelchZTest{}
