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

// Package trainingstore persists rollouts, their spans and a single
// versioned resources document for reinforcement-learning training.
//
// Three backends implement Store: MemoryStore for tests and ephemeral
// runs, SQLiteStore (the default, WAL journaled) and BadgerStore.
package trainingstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Sentinel errors. Backends wrap them with context; match with errors.Is.
var (
	ErrRolloutNotFound   = errors.New("rollout not found")
	ErrRolloutExists     = errors.New("rollout already exists")
	ErrInvalidTransition = errors.New("invalid rollout status transition")
	ErrResourcesNotFound = errors.New("resources not found")
	ErrInvalidRolloutID  = errors.New("rollout id must not be empty")
	ErrUnknownBackend    = errors.New("unknown store backend")
)

// RolloutStatus is the lifecycle state of a rollout.
type RolloutStatus string

const (
	StatusQueuing   RolloutStatus = "queuing"
	StatusRunning   RolloutStatus = "running"
	StatusSucceeded RolloutStatus = "succeeded"
	StatusFailed    RolloutStatus = "failed"
	StatusCancelled RolloutStatus = "cancelled"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []RolloutStatus{StatusQueuing, StatusRunning, StatusSucceeded, StatusFailed, StatusCancelled}

// ParseRolloutStatus parses a case-insensitive status name.
func ParseRolloutStatus(raw string) (RolloutStatus, error) {
	s := RolloutStatus(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown rollout status %q", raw)
	}
	return s, nil
}

// Valid reports whether s is a known status.
func (s RolloutStatus) Valid() bool {
	switch s {
	case StatusQueuing, StatusRunning, StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s RolloutStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed || s == StatusCancelled
}

// CanTransition reports whether a rollout may move from one status to another.
// Queued rollouts may start or be abandoned; running rollouts may finish in
// any terminal state; terminal states are immutable.
func CanTransition(from, to RolloutStatus) bool {
	if !to.Valid() {
		return false
	}
	switch from {
	case StatusQueuing:
		return to == StatusRunning || to == StatusFailed || to == StatusCancelled
	case StatusRunning:
		return to.IsTerminal()
	default:
		return false
	}
}

func checkTransition(rolloutID string, from, to RolloutStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s for %s", ErrInvalidTransition, from, to, rolloutID)
	}
	return nil
}

// Rollout is one training unit: a complete agent run.
type Rollout struct {
	RolloutID string         `json:"rollout_id"`
	Status    RolloutStatus  `json:"status"`
	Input     map[string]any `json:"input,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// NewRollout builds a queued rollout.
func NewRollout(id string, input map[string]any) Rollout {
	now := time.Now().UTC()
	return Rollout{
		RolloutID: id,
		Status:    StatusQueuing,
		Input:     input,
		Metadata:  make(map[string]any),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Span is a structured record attached to a rollout attempt.
type Span struct {
	RolloutID  string         `json:"rollout_id"`
	AttemptID  string         `json:"attempt_id"`
	SequenceID int            `json:"sequence_id"`
	TraceID    string         `json:"trace_id"`
	SpanID     string         `json:"span_id"`
	ParentID   string         `json:"parent_id,omitempty"`
	Name       string         `json:"name"`
	Attributes map[string]any `json:"attributes"`
	StartTime  time.Time      `json:"start_time"`
	EndTime    time.Time      `json:"end_time"`
}

// NewSpan builds a span with an empty attribute map, started now.
func NewSpan(rolloutID, attemptID string, sequenceID int, traceID, spanID, parentID, name string) Span {
	return Span{
		RolloutID:  rolloutID,
		AttemptID:  attemptID,
		SequenceID: sequenceID,
		TraceID:    traceID,
		SpanID:     spanID,
		ParentID:   parentID,
		Name:       name,
		Attributes: make(map[string]any),
		StartTime:  time.Now().UTC(),
	}
}

// String returns a string attribute.
func (s Span) String(key string) (string, bool) {
	v, ok := s.Attributes[key].(string)
	return v, ok
}

// Float returns a numeric attribute. Values decoded from JSON arrive as
// float64, values set in-process may be any integer or float kind.
func (s Span) Float(key string) (float64, bool) {
	return AsFloat(s.Attributes[key])
}

// Bool returns a boolean attribute.
func (s Span) Bool(key string) (bool, bool) {
	v, ok := s.Attributes[key].(bool)
	return v, ok
}

// AsFloat converts a numeric attribute value to float64.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// RolloutQuery filters QueryRollouts. Empty filters match everything.
type RolloutQuery struct {
	Statuses   []RolloutStatus
	RolloutIDs []string
	// Limit caps the result count; 0 means no limit.
	Limit int
}

func (q RolloutQuery) matches(r Rollout) bool {
	if len(q.Statuses) > 0 && !containsStatus(q.Statuses, r.Status) {
		return false
	}
	if len(q.RolloutIDs) > 0 && !containsString(q.RolloutIDs, r.RolloutID) {
		return false
	}
	return true
}

// ResourcesUpdate is one version of the resources document.
type ResourcesUpdate struct {
	ID        string         `json:"id"`
	Version   int64          `json:"version"`
	Resources map[string]any `json:"resources"`
	CreatedAt time.Time      `json:"created_at"`
	IsLatest  bool           `json:"is_latest"`
}

func containsStatus(list []RolloutStatus, s RolloutStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// validateSpan rejects spans that could not be queried back.
func validateSpan(span Span) error {
	if span.RolloutID == "" {
		return ErrInvalidRolloutID
	}
	if span.Name == "" {
		return fmt.Errorf("span for %s has no name", span.RolloutID)
	}
	for k, v := range span.Attributes {
		if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
			return fmt.Errorf("span attribute %q for %s is not finite", k, span.RolloutID)
		}
	}
	return nil
}
