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

// Package liverl turns a running agent's event stream into training data.
//
// A Bridge subscribes to one agent's lifecycle events and tracks at most one
// run at a time. Each finished run becomes a rollout with a single
// "live.agent.decision" span carrying its reward breakdown and calibration
// diagnostics. Every UpdateIntervalRollouts successes the bridge runs a
// policy-gradient pass over recent rollouts and, when enabled, an online
// prompt optimization (APO) round whose candidate is adopted only if a
// significance test shows a real improvement.
//
// Failures never reach the hosting agent. They are counted by a failure gate
// that stops new rollouts after MaxFailureStreak consecutive failures until
// an operator calls ResetGate.
package liverl

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/teradata-labs/liverl/internal/pubsub"
	"github.com/teradata-labs/liverl/pkg/llm"
	"github.com/teradata-labs/liverl/pkg/observability"
	"github.com/teradata-labs/liverl/pkg/rewards"
	"github.com/teradata-labs/liverl/pkg/significance"
	"github.com/teradata-labs/liverl/pkg/trainingstore"
)

const (
	// RolloutIDPrefix marks rollouts created by a bridge. Rollout ids are
	// zero-padded so lexical order is creation order.
	RolloutIDPrefix = "live-rl-rollout"
	attemptSuffix   = ":attempt-live"

	// DecisionSpanName names the per-rollout decision record.
	DecisionSpanName = "live.agent.decision"

	rolloutSource = "live_rl_runtime"
	rolloutKind   = "live_agent_decision"
)

// APORuntime is what online prompt optimization needs beyond the store.
type APORuntime struct {
	Client llm.ChatClient
	Model  string
	// SeedPrompt is used until a system_prompt resource has been adopted.
	SeedPrompt string
}

// Config wires a Bridge to its collaborators.
type Config struct {
	Runtime RuntimeConfig
	Store   trainingstore.Store

	// Rewards defaults to rewards.TraceBasedRewardInference.
	Rewards rewards.RewardInference
	// APO is nil when no chat client is configured; APO rounds then report
	// apo_missing_runtime.
	APO *APORuntime
	// Comparer defaults to significance.WelchZTest.
	Comparer significance.Comparer

	Tracer observability.Tracer
	Logger *zap.Logger

	// OnGateChange is called outside the state lock after every transition.
	OnGateChange func(from, to Gate)
}

// Bridge is the live RL runtime for one agent.
type Bridge struct {
	cfg          RuntimeConfig
	store        trainingstore.Store
	rewards      rewards.RewardInference
	apo          *APORuntime
	comparer     significance.Comparer
	tracer       observability.Tracer
	logger       *zap.Logger
	onGateChange func(from, to Gate)

	mu    sync.Mutex
	state runtimeState
}

type runtimeState struct {
	gate                Gate
	nextRolloutSequence uint64
	completedRollouts   int
	consecutiveFailures int
	lastError           string
	lastOptimizerReport *OptimizerReport
	activeRun           *activeRun
}

type activeRun struct {
	rolloutID      string
	attemptID      string
	prompt         string
	assistantReply string
	turns          int
	toolErrors     int
	safetyBlocked  bool
}

// NewBridge validates cfg and returns a bridge with the gate open.
func NewBridge(cfg Config) (*Bridge, error) {
	if cfg.Store == nil {
		return nil, errors.New("live RL bridge requires a training store")
	}
	if err := cfg.Runtime.Validate(); err != nil {
		return nil, fmt.Errorf("invalid live RL config: %w", err)
	}
	if cfg.Rewards == nil {
		cfg.Rewards = rewards.NewTraceBasedRewardInference()
	}
	if cfg.Comparer == nil {
		cfg.Comparer = significance.NewWelchZTest()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoOpTracer()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Bridge{
		cfg:          cfg.Runtime,
		store:        cfg.Store,
		rewards:      cfg.Rewards,
		apo:          cfg.APO,
		comparer:     cfg.Comparer,
		tracer:       cfg.Tracer,
		logger:       cfg.Logger,
		onGateChange: cfg.OnGateChange,
		state:        runtimeState{gate: GatePass},
	}, nil
}

// Config returns the runtime configuration.
func (b *Bridge) Config() RuntimeConfig {
	return b.cfg
}

// HandleEvent applies one agent event. It never fails: errors are absorbed
// by the failure gate or recorded in reports. Disabled bridges ignore every
// event.
func (b *Bridge) HandleEvent(ctx context.Context, ev Event) {
	if !b.cfg.Enabled {
		return
	}
	switch ev.Kind {
	case EventRunStart:
		b.handleRunStart(ctx)
	case EventMessage:
		b.handleMessage(ev.Role, ev.Text)
	case EventToolEnd:
		if ev.IsError {
			b.withActiveRun(func(run *activeRun) { run.toolErrors++ })
		}
	case EventTurnEnd:
		b.withActiveRun(func(run *activeRun) { run.turns++ })
	case EventSafetyApplied:
		if ev.Blocked {
			b.withActiveRun(func(run *activeRun) { run.safetyBlocked = true })
		}
	case EventRunEnd:
		b.handleRunEnd(ctx)
	default:
		b.logger.Debug("ignoring unknown live RL event", zap.String("kind", string(ev.Kind)))
	}
}

// Run consumes a broker subscription one event at a time until the channel
// closes or ctx is done.
func (b *Bridge) Run(ctx context.Context, events <-chan pubsub.Event[Event]) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			b.HandleEvent(ctx, ev.Payload)
		}
	}
}

// Snapshot copies the current state.
func (b *Bridge) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := Snapshot{
		Enabled:             b.cfg.Enabled,
		StorePath:           b.cfg.StorePath,
		Gate:                b.state.gate,
		CompletedRollouts:   b.state.completedRollouts,
		ConsecutiveFailures: b.state.consecutiveFailures,
		LastError:           b.state.lastError,
	}
	if r := b.state.lastOptimizerReport; r != nil {
		cp := *r
		if r.APO != nil {
			apo := *r.APO
			cp.APO = &apo
		}
		snap.LastOptimizerReport = &cp
	}
	if b.state.activeRun != nil {
		snap.ActiveRolloutID = b.state.activeRun.rolloutID
	}
	return snap
}

func (b *Bridge) handleRunStart(ctx context.Context) {
	b.mu.Lock()
	if b.state.gate == GateHold {
		b.mu.Unlock()
		b.logger.Debug("live RL gate is holding, ignoring run start")
		return
	}
	b.state.nextRolloutSequence++
	rolloutID := fmt.Sprintf("%s-%010d", RolloutIDPrefix, b.state.nextRolloutSequence)
	stale := b.state.activeRun
	b.state.activeRun = &activeRun{rolloutID: rolloutID, attemptID: rolloutID + attemptSuffix}
	b.mu.Unlock()

	ctx, span := b.tracer.StartSpan(ctx, observability.SpanBridgeRunStart,
		observability.WithAttribute(observability.AttrRolloutID, rolloutID))
	defer b.tracer.EndSpan(span)

	if stale != nil {
		b.logger.Info("cancelling stale live rollout",
			zap.String("rollout_id", stale.rolloutID),
			zap.String("replaced_by", rolloutID))
		b.finalize(ctx, stale, trainingstore.StatusCancelled)
	}

	if err := b.createRollout(ctx, rolloutID); err != nil {
		span.RecordError(err)
		b.clearActiveRun(rolloutID)
		b.registerFailure(fmt.Sprintf("live RL rollout init failed for %s: %v", rolloutID, err))
		return
	}
	b.tracer.RecordMetric(observability.MetricRolloutsStarted, 1, nil)
}

func (b *Bridge) handleMessage(role, text string) {
	text = trimText(text)
	if text == "" {
		return
	}
	b.withActiveRun(func(run *activeRun) {
		switch role {
		case RoleUser:
			if run.prompt == "" {
				run.prompt = text
			}
		case RoleAssistant:
			run.assistantReply = text
		}
	})
}

func (b *Bridge) handleRunEnd(ctx context.Context) {
	b.mu.Lock()
	run := b.state.activeRun
	b.state.activeRun = nil
	b.mu.Unlock()

	if run == nil {
		return
	}
	b.finalize(ctx, run, trainingstore.StatusSucceeded)
}

func (b *Bridge) withActiveRun(fn func(*activeRun)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state.activeRun != nil {
		fn(b.state.activeRun)
	}
}

func (b *Bridge) clearActiveRun(rolloutID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state.activeRun != nil && b.state.activeRun.rolloutID == rolloutID {
		b.state.activeRun = nil
	}
}

func (b *Bridge) createRollout(ctx context.Context, rolloutID string) error {
	rollout := trainingstore.NewRollout(rolloutID, map[string]any{
		"source": rolloutSource,
		"kind":   rolloutKind,
	})
	rollout.Metadata["source"] = rolloutSource
	if err := b.store.EnqueueRollout(ctx, rollout); err != nil {
		return fmt.Errorf("failed to enqueue live rollout %q: %w", rolloutID, err)
	}
	if err := b.store.UpdateRolloutStatus(ctx, rolloutID, trainingstore.StatusRunning); err != nil {
		return fmt.Errorf("failed to mark live rollout %q running: %w", rolloutID, err)
	}
	return nil
}

// finalize closes a run. Succeeded runs get a decision record written before
// the status flips; cancelled runs only change status.
func (b *Bridge) finalize(ctx context.Context, run *activeRun, status trainingstore.RolloutStatus) {
	ctx, span := b.tracer.StartSpan(ctx, observability.SpanBridgeFinalize,
		observability.WithAttribute(observability.AttrRolloutID, run.rolloutID),
		observability.WithAttribute(observability.AttrStatus, string(status)))
	defer b.tracer.EndSpan(span)

	succeeded := status == trainingstore.StatusSucceeded
	var record trainingstore.Span
	if succeeded {
		record = b.buildDecisionSpan(run)
		if err := b.enrichDecisionSpan(ctx, &record); err != nil {
			b.logger.Warn("meta-cognition enrichment failed",
				zap.String("rollout_id", run.rolloutID),
				zap.Error(err))
			record.Attributes[attrEnrichmentError] = err.Error()
		}
		if err := b.store.AddSpan(ctx, record); err != nil {
			span.RecordError(err)
			b.registerFailure(fmt.Sprintf("live RL span persistence failed for %s: %v", run.rolloutID, err))
			return
		}
	}

	if err := b.store.UpdateRolloutStatus(ctx, run.rolloutID, status); err != nil {
		span.RecordError(err)
		b.registerFailure(fmt.Sprintf("live RL rollout status update failed for %s: %v", run.rolloutID, err))
		return
	}

	if !succeeded {
		b.tracer.RecordMetric(observability.MetricRolloutsCancelled, 1, nil)
		return
	}

	if err := b.persistCurriculum(ctx, record); err != nil {
		span.RecordError(err)
		b.registerFailure(fmt.Sprintf("live RL curriculum update failed for %s: %v", run.rolloutID, err))
		return
	}

	category, _ := record.String(attrTaskCategory)
	reward, _ := record.Float(attrReward)
	b.tracer.RecordMetric(observability.MetricRolloutsCompleted, 1, nil)
	b.tracer.RecordMetric(observability.MetricReward, reward, map[string]string{
		observability.AttrCategory: category,
	})

	b.mu.Lock()
	b.state.completedRollouts++
	b.state.consecutiveFailures = 0
	b.state.lastError = ""
	due := b.state.completedRollouts%b.cfg.UpdateIntervalRollouts == 0
	if !due {
		b.state.lastOptimizerReport = nil
	}
	completed := b.state.completedRollouts
	b.mu.Unlock()
	b.tracer.RecordMetric(observability.MetricConsecutiveFails, 0, nil)

	b.logger.Debug("live rollout finalized",
		zap.String("rollout_id", run.rolloutID),
		zap.String("task_category", category),
		zap.Float64("reward", reward),
		zap.Int("completed_rollouts", completed))

	if due {
		if err := b.runOptimizerUpdate(ctx); err != nil {
			span.RecordError(err)
			b.registerFailure(fmt.Sprintf("live RL optimizer update failed: %v", err))
		}
	}
}
