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
	"strings"
	"time"

	"github.com/teradata-labs/liverl/pkg/observability"
	"go.uber.org/zap"
)

// Store is the persistence contract for training data.
//
// Status transitions are validated (see CanTransition). Every resources
// write creates a new version; exactly one version is latest. Rollouts and
// spans are never deleted.
type Store interface {
	EnqueueRollout(ctx context.Context, rollout Rollout) error
	UpdateRolloutStatus(ctx context.Context, rolloutID string, status RolloutStatus) error
	AddSpan(ctx context.Context, span Span) error
	// QuerySpans returns spans ordered by sequence id. An empty attemptID
	// matches every attempt.
	QuerySpans(ctx context.Context, rolloutID, attemptID string) ([]Span, error)
	// QueryRollouts returns matching rollouts ordered by rollout id.
	QueryRollouts(ctx context.Context, query RolloutQuery) ([]Rollout, error)
	// UpdateResources stores resources as the next version and echoes it.
	UpdateResources(ctx context.Context, resources map[string]any) (*ResourcesUpdate, error)
	// GetLatestResources returns nil, nil when nothing was ever written.
	GetLatestResources(ctx context.Context) (*ResourcesUpdate, error)
	GetResourcesByID(ctx context.Context, id string) (*ResourcesUpdate, error)
	Close() error
}

// Backend names a Store implementation.
type Backend string

const (
	BackendSQLite Backend = "sqlite"
	BackendBadger Backend = "badger"
	BackendMemory Backend = "memory"
)

// ParseBackend parses a backend name; empty selects SQLite.
func ParseBackend(raw string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(raw))); b {
	case "":
		return BackendSQLite, nil
	case BackendSQLite, BackendBadger, BackendMemory:
		return b, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, raw)
	}
}

// Options selects and configures a backend for Open.
type Options struct {
	Backend Backend
	// Path is the SQLite file or the Badger directory. Ignored for memory.
	Path   string
	Tracer observability.Tracer
	Logger *zap.Logger
}

// Open creates the configured store.
func Open(ctx context.Context, opts Options) (Store, error) {
	backend := opts.Backend
	if backend == "" {
		backend = BackendSQLite
	}
	switch backend {
	case BackendSQLite:
		return NewSQLiteStore(ctx, opts.Path, opts.Tracer)
	case BackendBadger:
		return NewBadgerStore(BadgerConfig{Path: opts.Path, Tracer: opts.Tracer, Logger: opts.Logger})
	case BackendMemory:
		return NewMemoryStore(opts.Tracer), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// instrumenter wraps store operations in tracer spans and latency metrics.
type instrumenter struct {
	tracer  observability.Tracer
	backend Backend
}

func newInstrumenter(tracer observability.Tracer, backend Backend) instrumenter {
	if tracer == nil {
		tracer = observability.NewNoOpTracer()
	}
	return instrumenter{tracer: tracer, backend: backend}
}

// start opens a span; the returned func ends it and must receive the
// operation's final error.
func (in instrumenter) start(ctx context.Context, name, rolloutID string) (context.Context, func(error)) {
	ctx, span := in.tracer.StartSpan(ctx, name,
		observability.WithSpanKind("store"),
		observability.WithAttribute(observability.AttrStoreBackend, string(in.backend)),
	)
	if rolloutID != "" {
		span.SetAttribute(observability.AttrRolloutID, rolloutID)
	}
	started := time.Now()
	return ctx, func(err error) {
		labels := map[string]string{
			observability.AttrStoreBackend: string(in.backend),
			"operation":                    name,
		}
		if err != nil {
			span.RecordError(err)
			in.tracer.RecordMetric(observability.MetricStoreErrors, 1, labels)
		}
		in.tracer.RecordMetric(observability.MetricStoreLatency, time.Since(started).Seconds(), labels)
		in.tracer.EndSpan(span)
	}
}
