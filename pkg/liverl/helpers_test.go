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
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/liverl/pkg/llm"
	"github.com/teradata-labs/liverl/pkg/trainingstore"
)

const testStorePath = ".liverl/training/store.sqlite"

var errInjected = errors.New("injected store failure")

func testRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		Enabled:                true,
		StorePath:              testStorePath,
		UpdateIntervalRollouts: 8,
		MaxRolloutsPerUpdate:   32,
		MaxFailureStreak:       3,
		APOEnabled:             false,
		APOMinSamples:          4,
		APOMaxSamples:          32,
		APOSignificanceAlpha:   0.05,
	}
}

func apoConfig(minSamples, maxSamples int) RuntimeConfig {
	cfg := testRuntimeConfig()
	cfg.UpdateIntervalRollouts = 1
	cfg.APOEnabled = true
	cfg.APOMinSamples = minSamples
	cfg.APOMaxSamples = maxSamples
	return cfg
}

func newTestBridge(t *testing.T, store trainingstore.Store, cfg RuntimeConfig, apo *APORuntime) *Bridge {
	t.Helper()
	b, err := NewBridge(Config{Runtime: cfg, Store: store, APO: apo})
	require.NoError(t, err)
	return b
}

func scriptedAPO(replies ...string) *APORuntime {
	return &APORuntime{
		Client:     llm.NewScriptedClient(replies...),
		Model:      "gpt-4o-mini",
		SeedPrompt: "You are Tau.",
	}
}

// playRun drives one complete run with a single user and assistant message.
func playRun(b *Bridge, prompt, reply string) {
	ctx := context.Background()
	b.HandleEvent(ctx, RunStart())
	b.HandleEvent(ctx, UserMessage(prompt))
	b.HandleEvent(ctx, AssistantMessage(reply))
	b.HandleEvent(ctx, RunEnd())
}

func seedRollout(t *testing.T, store trainingstore.Store, id string, reward float64) {
	t.Helper()
	seedRolloutWithCategory(t, store, id, "seeded prompt", "seeded response", reward, "")
}

func seedRollouts(t *testing.T, store trainingstore.Store, prefix string, rewards []float64) []string {
	t.Helper()
	ids := make([]string, len(rewards))
	for i, r := range rewards {
		ids[i] = fmt.Sprintf("%s-%s-%04d", RolloutIDPrefix, prefix, i)
		seedRollout(t, store, ids[i], r)
	}
	return ids
}

func seedRolloutWithCategory(t *testing.T, store trainingstore.Store, id, prompt, response string, reward float64, category string) {
	t.Helper()
	ctx := context.Background()
	rollout := trainingstore.NewRollout(id, map[string]any{"source": "seed"})
	rollout.Metadata["source"] = "seeded_test"
	require.NoError(t, store.EnqueueRollout(ctx, rollout))
	require.NoError(t, store.UpdateRolloutStatus(ctx, id, trainingstore.StatusRunning))
	require.NoError(t, store.UpdateRolloutStatus(ctx, id, trainingstore.StatusSucceeded))

	span := trainingstore.NewSpan(id, id+attemptSuffix, 1, "trace:"+id, "span:"+id+":1", "", DecisionSpanName)
	span.Attributes["prompt"] = prompt
	span.Attributes["assistant_text"] = response
	span.Attributes["reward"] = reward
	span.Attributes["done"] = true
	if category != "" {
		span.Attributes["task_category"] = category
	}
	span.EndTime = time.Now().UTC()
	require.NoError(t, store.AddSpan(ctx, span))
}

func succeededRollouts(t *testing.T, store trainingstore.Store) []trainingstore.Rollout {
	t.Helper()
	rollouts, err := store.QueryRollouts(context.Background(), trainingstore.RolloutQuery{
		Statuses: []trainingstore.RolloutStatus{trainingstore.StatusSucceeded},
	})
	require.NoError(t, err)
	return rollouts
}

func onlySpan(t *testing.T, store trainingstore.Store, rolloutID string) trainingstore.Span {
	t.Helper()
	spans, err := store.QuerySpans(context.Background(), rolloutID, "")
	require.NoError(t, err)
	require.Len(t, spans, 1)
	return spans[0]
}

func liveRolloutID(seq int) string {
	return fmt.Sprintf("%s-%010d", RolloutIDPrefix, seq)
}

// failingStore injects errors into selected Store methods.
type failingStore struct {
	trainingstore.Store

	enqueueErr       error
	addSpanErr       error
	querySpansErr    error
	queryRolloutsErr error

	// latestFailFrom makes GetLatestResources fail from that call on (1-based).
	latestFailFrom int

	mu          sync.Mutex
	latestCalls int
}

func (s *failingStore) EnqueueRollout(ctx context.Context, r trainingstore.Rollout) error {
	if s.enqueueErr != nil {
		return s.enqueueErr
	}
	return s.Store.EnqueueRollout(ctx, r)
}

func (s *failingStore) AddSpan(ctx context.Context, span trainingstore.Span) error {
	if s.addSpanErr != nil {
		return s.addSpanErr
	}
	return s.Store.AddSpan(ctx, span)
}

func (s *failingStore) QuerySpans(ctx context.Context, rolloutID, attemptID string) ([]trainingstore.Span, error) {
	if s.querySpansErr != nil {
		return nil, s.querySpansErr
	}
	return s.Store.QuerySpans(ctx, rolloutID, attemptID)
}

func (s *failingStore) QueryRollouts(ctx context.Context, q trainingstore.RolloutQuery) ([]trainingstore.Rollout, error) {
	if s.queryRolloutsErr != nil {
		return nil, s.queryRolloutsErr
	}
	return s.Store.QueryRollouts(ctx, q)
}

func (s *failingStore) GetLatestResources(ctx context.Context) (*trainingstore.ResourcesUpdate, error) {
	s.mu.Lock()
	s.latestCalls++
	call := s.latestCalls
	s.mu.Unlock()
	if s.latestFailFrom > 0 && call >= s.latestFailFrom {
		return nil, errInjected
	}
	return s.Store.GetLatestResources(ctx)
}
