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
	"context"

	"go.uber.org/zap"

	"github.com/teradata-labs/liverl/pkg/observability"
)

// RegisterFailure counts a failure and closes the gate once
// MaxFailureStreak consecutive failures have been seen. The gate stays
// closed until ResetGate; a successful run only resets the counter.
func (b *Bridge) RegisterFailure(message string) {
	b.registerFailure(message)
}

func (b *Bridge) registerFailure(message string) {
	b.mu.Lock()
	b.state.consecutiveFailures++
	b.state.lastError = message
	failures := b.state.consecutiveFailures
	from := b.state.gate
	if failures >= b.cfg.MaxFailureStreak {
		b.state.gate = GateHold
	}
	to := b.state.gate
	b.mu.Unlock()

	b.logger.Warn("live RL failure",
		zap.String("error", message),
		zap.Int("consecutive_failures", failures),
		zap.Int("max_failure_streak", b.cfg.MaxFailureStreak))
	b.tracer.RecordMetric(observability.MetricFailures, 1, nil)
	b.tracer.RecordMetric(observability.MetricConsecutiveFails, float64(failures), nil)
	b.gateChanged(from, to)
}

// ResetGate reopens the gate and clears the failure counter. The last error
// is kept for inspection.
func (b *Bridge) ResetGate() {
	b.mu.Lock()
	from := b.state.gate
	b.state.gate = GatePass
	b.state.consecutiveFailures = 0
	b.mu.Unlock()

	b.tracer.RecordMetric(observability.MetricConsecutiveFails, 0, nil)
	b.gateChanged(from, GatePass)
}

func (b *Bridge) gateChanged(from, to Gate) {
	if from == to {
		return
	}
	hold := 0.0
	if to == GateHold {
		hold = 1
		b.logger.Error("live RL gate closed, new rollouts are held until reset",
			zap.String("from", string(from)),
			zap.String("to", string(to)))
	} else {
		b.logger.Info("live RL gate reopened",
			zap.String("from", string(from)),
			zap.String("to", string(to)))
	}
	b.tracer.RecordMetric(observability.MetricGateHold, hold, nil)
	b.tracer.RecordEvent(context.Background(), observability.EventGateChanged, map[string]interface{}{
		"from": string(from),
		"to":   string(to),
	})
	if b.onGateChange != nil {
		b.onGateChange(from, to)
	}
}
