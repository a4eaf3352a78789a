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
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teradata-labs/liverl/pkg/observability"
)

// MemoryStore keeps everything in process memory.
// Thread-safe: All methods can be called concurrently.
type MemoryStore struct {
	mu        sync.RWMutex
	rollouts  map[string]Rollout
	spans     map[string][]Span
	resources []ResourcesUpdate
	obs       instrumenter
}

// NewMemoryStore creates an empty store. A nil tracer disables tracing.
func NewMemoryStore(tracer observability.Tracer) *MemoryStore {
	return &MemoryStore{
		rollouts: make(map[string]Rollout),
		spans:    make(map[string][]Span),
		obs:      newInstrumenter(tracer, BackendMemory),
	}
}

// EnqueueRollout stores a new rollout.
func (s *MemoryStore) EnqueueRollout(ctx context.Context, rollout Rollout) (err error) {
	_, finish := s.obs.start(ctx, observability.SpanStoreEnqueue, rollout.RolloutID)
	defer func() { finish(err) }()

	if rollout.RolloutID == "" {
		return ErrInvalidRolloutID
	}
	if rollout.Status == "" {
		rollout.Status = StatusQueuing
	}
	now := time.Now().UTC()
	if rollout.CreatedAt.IsZero() {
		rollout.CreatedAt = now
	}
	rollout.UpdatedAt = now
	rollout.Input = cloneMap(rollout.Input)
	rollout.Metadata = cloneMap(rollout.Metadata)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rollouts[rollout.RolloutID]; exists {
		return fmt.Errorf("%w: %s", ErrRolloutExists, rollout.RolloutID)
	}
	s.rollouts[rollout.RolloutID] = rollout
	return nil
}

// UpdateRolloutStatus moves a rollout to status.
func (s *MemoryStore) UpdateRolloutStatus(ctx context.Context, rolloutID string, status RolloutStatus) (err error) {
	_, finish := s.obs.start(ctx, observability.SpanStoreUpdateStatus, rolloutID)
	defer func() { finish(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	rollout, ok := s.rollouts[rolloutID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRolloutNotFound, rolloutID)
	}
	if err := checkTransition(rolloutID, rollout.Status, status); err != nil {
		return err
	}
	rollout.Status = status
	rollout.UpdatedAt = time.Now().UTC()
	s.rollouts[rolloutID] = rollout
	return nil
}

// AddSpan appends a span to its rollout.
func (s *MemoryStore) AddSpan(ctx context.Context, span Span) (err error) {
	_, finish := s.obs.start(ctx, observability.SpanStoreAddSpan, span.RolloutID)
	defer func() { finish(err) }()

	if err := validateSpan(span); err != nil {
		return err
	}
	span.Attributes = cloneMap(span.Attributes)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rollouts[span.RolloutID]; !ok {
		return fmt.Errorf("%w: %s", ErrRolloutNotFound, span.RolloutID)
	}
	s.spans[span.RolloutID] = append(s.spans[span.RolloutID], span)
	return nil
}

// QuerySpans returns the spans of a rollout, optionally for one attempt.
func (s *MemoryStore) QuerySpans(ctx context.Context, rolloutID, attemptID string) (_ []Span, err error) {
	_, finish := s.obs.start(ctx, observability.SpanStoreQuerySpans, rolloutID)
	defer func() { finish(err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Span
	for _, span := range s.spans[rolloutID] {
		if attemptID != "" && span.AttemptID != attemptID {
			continue
		}
		span.Attributes = cloneMap(span.Attributes)
		out = append(out, span)
	}
	sortSpans(out)
	return out, nil
}

// QueryRollouts returns rollouts matching query.
func (s *MemoryStore) QueryRollouts(ctx context.Context, query RolloutQuery) (_ []Rollout, err error) {
	_, finish := s.obs.start(ctx, observability.SpanStoreQueryRollouts, "")
	defer func() { finish(err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Rollout
	for _, r := range s.rollouts {
		if query.matches(r) {
			r.Input = cloneMap(r.Input)
			r.Metadata = cloneMap(r.Metadata)
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RolloutID < out[j].RolloutID })
	if query.Limit > 0 && len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

// UpdateResources appends a new resources version.
func (s *MemoryStore) UpdateResources(ctx context.Context, resources map[string]any) (_ *ResourcesUpdate, err error) {
	_, finish := s.obs.start(ctx, observability.SpanStoreUpdateResources, "")
	defer func() { finish(err) }()

	s.mu.Lock()
	defer s.mu.Unlock()
	update := ResourcesUpdate{
		ID:        uuid.NewString(),
		Version:   int64(len(s.resources)) + 1,
		Resources: cloneMap(resources),
		CreatedAt: time.Now().UTC(),
	}
	if update.Resources == nil {
		update.Resources = make(map[string]any)
	}
	s.resources = append(s.resources, update)
	return s.view(len(s.resources) - 1), nil
}

// GetLatestResources returns the newest version or nil.
func (s *MemoryStore) GetLatestResources(ctx context.Context) (_ *ResourcesUpdate, err error) {
	_, finish := s.obs.start(ctx, observability.SpanStoreGetResources, "")
	defer func() { finish(err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.resources) == 0 {
		return nil, nil
	}
	return s.view(len(s.resources) - 1), nil
}

// GetResourcesByID returns one version by id.
func (s *MemoryStore) GetResourcesByID(ctx context.Context, id string) (_ *ResourcesUpdate, err error) {
	_, finish := s.obs.start(ctx, observability.SpanStoreGetResources, "")
	defer func() { finish(err) }()

	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.resources {
		if s.resources[i].ID == id {
			return s.view(i), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrResourcesNotFound, id)
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

// view copies version i. Caller holds s.mu.
func (s *MemoryStore) view(i int) *ResourcesUpdate {
	update := s.resources[i]
	update.Resources = cloneMap(update.Resources)
	update.IsLatest = i == len(s.resources)-1
	return &update
}

func sortSpans(spans []Span) {
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].SequenceID != spans[j].SequenceID {
			return spans[i].SequenceID < spans[j].SequenceID
		}
		return spans[i].StartTime.Before(spans[j].StartTime)
	})
}

var _ Store = (*MemoryStore)(nil)
