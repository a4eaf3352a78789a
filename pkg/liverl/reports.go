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

// Gate is the failure gate state.
type Gate string

const (
	// GatePass accepts new runs.
	GatePass Gate = "pass"
	// GateHold ignores run-start events until ResetGate is called.
	GateHold Gate = "hold"
)

// APO reason codes.
const (
	ReasonAPOAdopted                  = "apo_adopted"
	ReasonAPOMissingRuntime           = "apo_missing_runtime"
	ReasonAPOInsufficientSamples      = "apo_insufficient_samples"
	ReasonAPONoBestPrompt             = "apo_no_best_prompt"
	ReasonAPONoSignificantImprovement = "apo_no_significant_improvement"

	// Prefixes; the error text follows the colon.
	reasonAPORunFailed          = "apo_run_failed"
	reasonAPOSignificanceFailed = "apo_significance_failed"
	reasonAPORuntimeError       = "apo_runtime_error"
)

// OptimizerReport summarizes the last optimizer trigger.
type OptimizerReport struct {
	Executed           bool       `json:"executed" yaml:"executed"`
	Trajectories       int        `json:"trajectories" yaml:"trajectories"`
	Samples            int        `json:"samples" yaml:"samples"`
	MeanTotalLoss      *float64   `json:"mean_total_loss,omitempty" yaml:"mean_total_loss,omitempty"`
	ObservedApproxKL   *float64   `json:"observed_approx_kl,omitempty" yaml:"observed_approx_kl,omitempty"`
	EarlyStopTriggered bool       `json:"early_stop_triggered" yaml:"early_stop_triggered"`
	APO                *APOReport `json:"apo,omitempty" yaml:"apo,omitempty"`
}

// APOReport describes one online prompt optimization attempt. A report with
// Executed false always carries a ReasonCode; Adopted implies Executed.
type APOReport struct {
	Executed                  bool     `json:"executed" yaml:"executed"`
	Adopted                   bool     `json:"adopted" yaml:"adopted"`
	SampleCount               int      `json:"sample_count" yaml:"sample_count"`
	CurriculumFocusCategory   string   `json:"curriculum_focus_category,omitempty" yaml:"curriculum_focus_category,omitempty"`
	CurriculumFocusMeanReward *float64 `json:"curriculum_focus_mean_reward,omitempty" yaml:"curriculum_focus_mean_reward,omitempty"`
	BaselineMeanReward        *float64 `json:"baseline_mean_reward,omitempty" yaml:"baseline_mean_reward,omitempty"`
	CandidateMeanReward       *float64 `json:"candidate_mean_reward,omitempty" yaml:"candidate_mean_reward,omitempty"`
	BestPromptVersion         string   `json:"best_prompt_version,omitempty" yaml:"best_prompt_version,omitempty"`
	BestPromptScore           *float64 `json:"best_prompt_score,omitempty" yaml:"best_prompt_score,omitempty"`
	ReasonCode                string   `json:"reason_code" yaml:"reason_code"`
}

// SkippedAPO builds a not-executed report.
func SkippedAPO(reason string, sampleCount int) *APOReport {
	return &APOReport{SampleCount: sampleCount, ReasonCode: reason}
}

// SkippedAPOWithCurriculum builds a not-executed report that still names the
// curriculum focus the selection produced.
func SkippedAPOWithCurriculum(reason string, sampleCount int, focus CurriculumFocus) *APOReport {
	r := SkippedAPO(reason, sampleCount)
	r.applyFocus(focus)
	return r
}

func (r *APOReport) applyFocus(focus CurriculumFocus) {
	if !focus.Valid {
		return
	}
	r.CurriculumFocusCategory = focus.Category
	r.CurriculumFocusMeanReward = ptr(focus.MeanReward)
}

// Snapshot is a point-in-time copy of the bridge state.
type Snapshot struct {
	Enabled             bool             `json:"enabled" yaml:"enabled"`
	StorePath           string           `json:"store_path" yaml:"store_path"`
	Gate                Gate             `json:"gate" yaml:"gate"`
	CompletedRollouts   int              `json:"completed_rollouts" yaml:"completed_rollouts"`
	ConsecutiveFailures int              `json:"consecutive_failures" yaml:"consecutive_failures"`
	LastError           string           `json:"last_error,omitempty" yaml:"last_error,omitempty"`
	LastOptimizerReport *OptimizerReport `json:"last_optimizer_report,omitempty" yaml:"last_optimizer_report,omitempty"`
	ActiveRolloutID     string           `json:"active_rollout_id,omitempty" yaml:"active_rollout_id,omitempty"`
}

func ptr[T any](v T) *T {
	return &v
}
