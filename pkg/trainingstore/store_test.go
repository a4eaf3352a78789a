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
package trainingstore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teradata-labs/liverl/pkg/observability"
)

type storeFactory func(t *testing.T, tracer observability.Tracer) Store

func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T, tracer observability.Tracer) Store {
			return NewMemoryStore(tracer)
		},
		"sqlite": func(t *testing.T, tracer observability.Tracer) Store {
			store, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "store.sqlite"), tracer)
			require.NoError(t, err)
			return store
		},
		"badger": func(t *testing.T, tracer observability.Tracer) Store {
			store, err := NewBadgerStore(BadgerConfig{Path: filepath.Join(t.TempDir(), "badger"), Tracer: tracer})
			require.NoError(t, err)
			return store
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, store Store)) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			store := factory(t, nil)
			t.Cleanup(func() { _ = store.Close() })
			fn(t, store)
		})
	}
}

func enqueueRunning(t *testing.T, store Store, id string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.EnqueueRollout(ctx, NewRollout(id, map[string]any{"source": "test"})))
	require.NoError(t, store.UpdateRolloutStatus(ctx, id, StatusRunning))
}

func TestStore_RolloutLifecycle(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		rollout := NewRollout("live-rl-rollout-0000000001", map[string]any{"kind": "live_agent_decision"})
		rollout.Metadata["source"] = "live_rl_runtime"
		require.NoError(t, store.EnqueueRollout(ctx, rollout))

		err := store.EnqueueRollout(ctx, rollout)
		assert.True(t, errors.Is(err, ErrRolloutExists), "got %v", err)

		require.NoError(t, store.UpdateRolloutStatus(ctx, rollout.RolloutID, StatusRunning))
		require.NoError(t, store.UpdateRolloutStatus(ctx, rollout.RolloutID, StatusSucceeded))

		err = store.UpdateRolloutStatus(ctx, rollout.RolloutID, StatusCancelled)
		assert.True(t, errors.Is(err, ErrInvalidTransition), "terminal states are immutable, got %v", err)

		err = store.UpdateRolloutStatus(ctx, "missing", StatusRunning)
		assert.True(t, errors.Is(err, ErrRolloutNotFound), "got %v", err)

		got, err := store.QueryRollouts(ctx, RolloutQuery{Statuses: []RolloutStatus{StatusSucceeded}})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, rollout.RolloutID, got[0].RolloutID)
		assert.Equal(t, StatusSucceeded, got[0].Status)
		assert.Equal(t, "live_rl_runtime", got[0].Metadata["source"])
		assert.Equal(t, "live_agent_decision", got[0].Input["kind"])
	})
}

func TestStore_EnqueueRejectsEmptyID(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		err := store.EnqueueRollout(context.Background(), NewRollout("", nil))
		assert.True(t, errors.Is(err, ErrInvalidRolloutID))
	})
}

func TestStore_QueryRolloutsFiltersAndOrders(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		for _, id := range []string{"r-3", "r-1", "r-2", "r-4"} {
			enqueueRunning(t, store, id)
		}
		require.NoError(t, store.UpdateRolloutStatus(ctx, "r-2", StatusSucceeded))
		require.NoError(t, store.UpdateRolloutStatus(ctx, "r-3", StatusSucceeded))
		require.NoError(t, store.UpdateRolloutStatus(ctx, "r-4", StatusFailed))

		all, err := store.QueryRollouts(ctx, RolloutQuery{})
		require.NoError(t, err)
		assert.Equal(t, []string{"r-1", "r-2", "r-3", "r-4"}, ids(all))

		succeeded, err := store.QueryRollouts(ctx, RolloutQuery{Statuses: []RolloutStatus{StatusSucceeded}})
		require.NoError(t, err)
		assert.Equal(t, []string{"r-2", "r-3"}, ids(succeeded))

		byID, err := store.QueryRollouts(ctx, RolloutQuery{
			Statuses:   []RolloutStatus{StatusSucceeded, StatusFailed},
			RolloutIDs: []string{"r-1", "r-4", "r-3"},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"r-3", "r-4"}, ids(byID))

		limited, err := store.QueryRollouts(ctx, RolloutQuery{Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"r-1", "r-2"}, ids(limited))
	})
}

func TestStore_Spans(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		enqueueRunning(t, store, "r-1")

		second := NewSpan("r-1", "r-1:attempt-live", 2, "trace:r-1", "span:r-1:2", "", "live.agent.decision")
		second.Attributes["reward"] = 0.75
		second.Attributes["turns"] = 3
		second.Attributes["done"] = true
		second.EndTime = time.Now().UTC()
		first := NewSpan("r-1", "r-1:attempt-live", 1, "trace:r-1", "span:r-1:1", "", "live.agent.decision")
		first.Attributes["prompt"] = "status"
		other := NewSpan("r-1", "r-1:attempt-2", 1, "trace:r-1", "span:r-1:x", "", "tool.call")

		require.NoError(t, store.AddSpan(ctx, second))
		require.NoError(t, store.AddSpan(ctx, first))
		require.NoError(t, store.AddSpan(ctx, other))

		spans, err := store.QuerySpans(ctx, "r-1", "r-1:attempt-live")
		require.NoError(t, err)
		require.Len(t, spans, 2)
		assert.Equal(t, 1, spans[0].SequenceID)
		assert.Equal(t, 2, spans[1].SequenceID)

		reward, ok := spans[1].Float("reward")
		require.True(t, ok)
		assert.Equal(t, 0.75, reward)
		turns, ok := spans[1].Float("turns")
		require.True(t, ok)
		assert.Equal(t, 3.0, turns)
		done, ok := spans[1].Bool("done")
		assert.True(t, ok && done)
		prompt, ok := spans[0].String("prompt")
		assert.True(t, ok)
		assert.Equal(t, "status", prompt)
		assert.False(t, spans[1].EndTime.IsZero())

		all, err := store.QuerySpans(ctx, "r-1", "")
		require.NoError(t, err)
		assert.Len(t, all, 3)

		none, err := store.QuerySpans(ctx, "r-unknown", "")
		require.NoError(t, err)
		assert.Empty(t, none)

		err = store.AddSpan(ctx, NewSpan("r-unknown", "a", 1, "t", "s", "", "x"))
		assert.True(t, errors.Is(err, ErrRolloutNotFound), "got %v", err)
	})
}

func TestStore_Resources(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		latest, err := store.GetLatestResources(ctx)
		require.NoError(t, err)
		assert.Nil(t, latest)

		v1, err := store.UpdateResources(ctx, map[string]any{"system_prompt": "You are Tau."})
		require.NoError(t, err)
		assert.Equal(t, int64(1), v1.Version)
		assert.True(t, v1.IsLatest)
		assert.NotEmpty(t, v1.ID)
		assert.Equal(t, "You are Tau.", v1.Resources["system_prompt"])

		v2, err := store.UpdateResources(ctx, map[string]any{"system_prompt": "v2", "score": 0.9})
		require.NoError(t, err)
		assert.Equal(t, int64(2), v2.Version)

		latest, err = store.GetLatestResources(ctx)
		require.NoError(t, err)
		require.NotNil(t, latest)
		assert.Equal(t, v2.ID, latest.ID)
		assert.True(t, latest.IsLatest)
		assert.Equal(t, 0.9, latest.Resources["score"])

		old, err := store.GetResourcesByID(ctx, v1.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), old.Version)
		assert.False(t, old.IsLatest)

		_, err = store.GetResourcesByID(ctx, "missing")
		assert.True(t, errors.Is(err, ErrResourcesNotFound), "got %v", err)
	})
}

func TestStore_ConcurrentEnqueue(t *testing.T) {
	forEachBackend(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		var wg sync.WaitGroup
		errs := make(chan error, 20)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- store.EnqueueRollout(ctx, NewRollout(fmt.Sprintf("r-%02d", i), nil))
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}
		all, err := store.QueryRollouts(ctx, RolloutQuery{})
		require.NoError(t, err)
		assert.Len(t, all, 20)
	})
}

func TestStore_TracesOperations(t *testing.T) {
	for name, factory := range backends() {
		t.Run(name, func(t *testing.T) {
			tracer := observability.NewMockTracer()
			store := factory(t, tracer)
			t.Cleanup(func() { _ = store.Close() })

			ctx := context.Background()
			require.NoError(t, store.EnqueueRollout(ctx, NewRollout("r-1", nil)))
			_ = store.UpdateRolloutStatus(ctx, "missing", StatusRunning)

			enqueue := tracer.GetSpanByName(observability.SpanStoreEnqueue)
			require.NotNil(t, enqueue)
			assert.Equal(t, "r-1", enqueue.Attributes[observability.AttrRolloutID])
			assert.Equal(t, name, enqueue.Attributes[observability.AttrStoreBackend])

			failed := tracer.GetSpanByName(observability.SpanStoreUpdateStatus)
			require.NotNil(t, failed)
			assert.Equal(t, observability.StatusError, failed.Status.Code)
			assert.Equal(t, 1.0, tracer.SumMetric(observability.MetricStoreErrors))
		})
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	store, err := Open(ctx, Options{Path: filepath.Join(t.TempDir(), "default.sqlite")})
	require.NoError(t, err)
	_, isSQLite := store.(*SQLiteStore)
	assert.True(t, isSQLite, "sqlite is the default backend")
	require.NoError(t, store.Close())

	store, err = Open(ctx, Options{Backend: BackendMemory})
	require.NoError(t, err)
	_, isMemory := store.(*MemoryStore)
	assert.True(t, isMemory)

	_, err = Open(ctx, Options{Backend: "etcd"})
	assert.True(t, errors.Is(err, ErrUnknownBackend))
}

func TestParseBackend(t *testing.T) {
	b, err := ParseBackend("")
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, b)

	b, err = ParseBackend(" Badger ")
	require.NoError(t, err)
	assert.Equal(t, BackendBadger, b)

	_, err = ParseBackend("postgres")
	assert.Error(t, err)
}

func ids(rollouts []Rollout) []string {
	out := make([]string, len(rollouts))
	for i, r := range rollouts {
		out[i] = r.RolloutID
	}
	return out
}
