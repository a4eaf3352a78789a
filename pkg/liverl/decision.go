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
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/teradata-labs/liverl/pkg/metacognition"
	"github.com/teradata-labs/liverl/pkg/rewards"
	"github.com/teradata-labs/liverl/pkg/trainingstore"
)

// Decision record attribute keys.
const (
	attrPrompt                     = "prompt"
	attrAssistantText              = "assistant_text"
	attrTaskCategory               = "task_category"
	attrReward                     = "reward"
	attrRewardConfidence           = "reward_confidence"
	attrPredictedSuccess           = "predicted_success_probability"
	attrActualSuccess              = "actual_success"
	attrCalibrationError           = "confidence_calibration_error"
	attrAskForHelp                 = "ask_for_help_recommended"
	attrLearningTrend              = "learning_trend"
	attrHistoricalSamples          = "historical_category_samples"
	attrHistoricalSuccessRate      = "historical_success_rate"
	attrHistoricalCalibrationError = "historical_calibration_error"
	attrTurns                      = "turns"
	attrToolErrors                 = "tool_errors"
	attrSafetyBlocked              = "safety_blocked"
	attrDone                       = "done"
	attrEnrichmentError            = "meta_cognition_enrichment_error"
)

func trimText(s string) string {
	return strings.TrimSpace(s)
}

func (run *activeRun) rewardInput() rewards.Input {
	hasReply := run.assistantReply != ""
	return rewards.Input{
		HasCompletion:        hasReply,
		HasSessionCompletion: hasReply,
		ToolErrors:           run.toolErrors,
		SafetyBlocked:        run.safetyBlocked,
		Turns:                run.turns,
		PromptChars:          utf8.RuneCountInString(run.prompt),
		ReplyChars:           utf8.RuneCountInString(run.assistantReply),
	}
}

// buildDecisionSpan turns a finished run into its decision record. History
// dependent fields start at their neutral values and are filled by
// enrichDecisionSpan.
func (b *Bridge) buildDecisionSpan(run *activeRun) trainingstore.Span {
	breakdown := b.rewards.Infer(run.rewardInput())
	predicted := clampUnit(breakdown.Confidence)
	actual := breakdown.Composite > 0

	span := trainingstore.NewSpan(
		run.rolloutID,
		run.attemptID,
		1,
		"trace:"+run.rolloutID,
		"span:"+run.rolloutID+":1",
		"",
		DecisionSpanName,
	)
	attrs := span.Attributes
	attrs[attrPrompt] = run.prompt
	attrs[attrAssistantText] = run.assistantReply
	attrs[attrTaskCategory] = metacognition.InferTaskCategory(run.prompt)
	for k, v := range breakdown.Attributes() {
		attrs[k] = v
	}
	attrs[attrPredictedSuccess] = predicted
	attrs[attrActualSuccess] = actual
	attrs[attrCalibrationError] = math.Abs(predicted - boolToFloat(actual))
	attrs[attrAskForHelp] = false
	attrs[attrLearningTrend] = metacognition.TrendInsufficientData
	attrs[attrTurns] = run.turns
	attrs[attrToolErrors] = run.toolErrors
	attrs[attrSafetyBlocked] = run.safetyBlocked
	attrs[attrDone] = true
	span.EndTime = time.Now().UTC()
	return span
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func boolToFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
