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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/liverl/pkg/trainingstore"
)

func TestNoResourceWriteStore_UpdateResourcesWritesNothing(t *testing.T) {
	ctx := context.Background()
	inner := trainingstore.NewMemoryStore(nil)
	proxy := NewNoResourceWriteStore(inner)

	echo, err := proxy.UpdateResources(ctx, map[string]any{"system_prompt": "candidate"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), echo.Version)
	assert.Equal(t, "live-apo-shadow-1", echo.ID)
	assert.False(t, echo.IsLatest)
	assert.Equal(t, "candidate", echo.Resources["system_prompt"])

	latest, err := inner.GetLatestResources(ctx)
	require.NoError(t, err)
	assert.Nil(t, latest)

	_, err = inner.UpdateResources(ctx, map[string]any{"system_prompt": "adopted"})
	require.NoError(t, err)
	echo, err = proxy.UpdateResources(ctx, map[string]any{"system_prompt": "candidate 2"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), echo.Version)

	latest, err = proxy.GetLatestResources(ctx)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, int64(1), latest.Version)
	assert.Equal(t, "adopted", latest.Resources["system_prompt"])
}

func TestNoResourceWriteStore_EchoIsACopy(t *testing.T) {
	proxy := NewNoResourceWriteStore(trainingstore.NewMemoryStore(nil))
	in := map[string]any{"score": 0.4}

	echo, err := proxy.UpdateResources(context.Background(), in)
	require.NoError(t, err)
	in["score"] = 0.9
	assert.Equal(t, 0.4, echo.Resources["score"])
}

func TestNoResourceWriteStore_ForwardsEverythingElse(t *testing.T) {
	ctx := context.Background()
	inner := trainingstore.NewMemoryStore(nil)
	proxy := NewNoResourceWriteStore(inner)

	require.NoError(t, proxy.EnqueueRollout(ctx, trainingstore.NewRollout("r1", nil)))
	require.NoError(t, proxy.UpdateRolloutStatus(ctx, "r1", trainingstore.StatusRunning))
	require.NoError(t, proxy.AddSpan(ctx, trainingstore.NewSpan("r1", "a1", 1, "t", "s", "", DecisionSpanName)))

	rollouts, err := inner.QueryRollouts(ctx, trainingstore.RolloutQuery{})
	require.NoError(t, err)
	require.Len(t, rollouts, 1)
	assert.Equal(t, trainingstore.StatusRunning, rollouts[0].Status)

	spans, err := proxy.QuerySpans(ctx, "r1", "")
	require.NoError(t, err)
	assert.Len(t, spans, 1)
}

func TestNoResourceWriteStore_PropagatesLatestError(t *testing.T) {
	store := &failingStore{Store: trainingstore.NewMemoryStore(nil), latestFailFrom: 1}
	proxy := NewNoResourceWriteStore(store)

	_, err := proxy.UpdateResources(context.Background(), map[string]any{"k": "v"})
	assert.ErrorIs(t, err, errInjected)
}
