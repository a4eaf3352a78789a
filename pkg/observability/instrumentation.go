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
package observability

// Span names.
const (
	// Bridge spans
	SpanBridgeRunStart  = "liverl.run_start"
	SpanBridgeFinalize  = "liverl.finalize"
	SpanBridgeEnrich    = "liverl.enrich"
	SpanOptimizerUpdate = "liverl.optimizer.update"
	SpanAPOUpdate       = "liverl.apo.update"

	// Training store spans
	SpanStoreEnqueue         = "store.enqueue_rollout"
	SpanStoreUpdateStatus    = "store.update_rollout_status"
	SpanStoreAddSpan         = "store.add_span"
	SpanStoreQuerySpans      = "store.query_spans"
	SpanStoreQueryRollouts   = "store.query_rollouts"
	SpanStoreUpdateResources = "store.update_resources"
	SpanStoreGetResources    = "store.get_resources"
	SpanStoreMigrate         = "store.migrate"

	// Algorithm spans
	SpanTrajectoryCollect = "algorithm.trajectory_collect"
	SpanPPOUpdate         = "algorithm.ppo_update"
	SpanAPORound          = "algorithm.apo_round"
	SpanPromptScore       = "algorithm.prompt_score"

	// LLM spans
	SpanLLMCompletion = "llm.completion"
)

// Metric names. Names ending in ".total" are counters.
const (
	MetricRolloutsStarted   = "liverl.rollouts.started.total"
	MetricRolloutsCompleted = "liverl.rollouts.completed.total"
	MetricRolloutsCancelled = "liverl.rollouts.cancelled.total"
	MetricFailures          = "liverl.failures.total"
	MetricGateHold          = "liverl.gate.hold"
	MetricConsecutiveFails  = "liverl.failures.consecutive"
	MetricReward            = "liverl.reward"
	MetricOptimizerRuns     = "liverl.optimizer.runs.total"
	MetricOptimizerSamples  = "liverl.optimizer.samples"
	MetricAPOAdopted        = "liverl.apo.adopted.total"
	MetricAPOSkipped        = "liverl.apo.skipped.total"

	MetricStoreLatency = "store.latency"
	MetricStoreErrors  = "store.errors.total"

	MetricLLMCalls   = "llm.calls.total"
	MetricLLMLatency = "llm.latency"
	MetricLLMErrors  = "llm.errors.total"
)

// EventGateChanged is recorded when the failure gate opens or closes.
const EventGateChanged = "liverl.gate.changed"

// Gauge metrics hold the last recorded value instead of accumulating.
var gaugeMetrics = map[string]bool{
	MetricGateHold:         true,
	MetricConsecutiveFails: true,
}

// Attribute names.
const (
	AttrRolloutID    = "rollout.id"
	AttrAttemptID    = "attempt.id"
	AttrStatus       = "rollout.status"
	AttrCategory     = "task.category"
	AttrSampleCount  = "sample.count"
	AttrReasonCode   = "reason.code"
	AttrResourcesVer = "resources.version"
	AttrStoreBackend = "store.backend"

	AttrLLMProvider = "llm.provider"
	AttrLLMModel    = "llm.model"

	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)
