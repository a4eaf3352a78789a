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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/teradata-labs/liverl/internal/sqlitedriver"
	"github.com/teradata-labs/liverl/pkg/observability"
)

// SQLiteStore persists training data in a single SQLite file.
// Multiple processes may share the file; writers wait on the busy timeout.
type SQLiteStore struct {
	db   *sql.DB
	path string
	obs  instrumenter
}

// NewSQLiteStore opens (creating if needed) the database at path and
// applies pending migrations. Use ":memory:" for a throwaway database.
func NewSQLiteStore(ctx context.Context, path string, tracer observability.Tracer) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite store path is required")
	}
	db, err := sqlitedriver.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	migrator, err := NewMigrator(db, tracer)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrator.MigrateUp(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate training store %s: %w", path, err)
	}
	return &SQLiteStore{db: db, path: path, obs: newInstrumenter(tracer, BackendSQLite)}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// EnqueueRollout inserts a new rollout.
func (s *SQLiteStore) EnqueueRollout(ctx context.Context, rollout Rollout) (err error) {
	ctx, finish := s.obs.start(ctx, observability.SpanStoreEnqueue, rollout.RolloutID)
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
	input, err := marshalMap(rollout.Input)
	if err != nil {
		return err
	}
	metadata, err := marshalMap(rollout.Metadata)
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM rollouts WHERE rollout_id = ?", rollout.RolloutID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check rollout %s: %w", rollout.RolloutID, err)
		}
		if exists > 0 {
			return fmt.Errorf("%w: %s", ErrRolloutExists, rollout.RolloutID)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO rollouts (rollout_id, status, input, metadata, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			rollout.RolloutID, string(rollout.Status), input, metadata,
			rollout.CreatedAt.UnixNano(), now.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to insert rollout %s: %w", rollout.RolloutID, err)
		}
		return nil
	})
}

// UpdateRolloutStatus validates and applies a status transition.
func (s *SQLiteStore) UpdateRolloutStatus(ctx context.Context, rolloutID string, status RolloutStatus) (err error) {
	ctx, finish := s.obs.start(ctx, observability.SpanStoreUpdateStatus, rolloutID)
	defer func() { finish(err) }()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx,
			"SELECT status FROM rollouts WHERE rollout_id = ?", rolloutID,
		).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrRolloutNotFound, rolloutID)
		}
		if err != nil {
			return fmt.Errorf("failed to read rollout %s: %w", rolloutID, err)
		}
		if err := checkTransition(rolloutID, RolloutStatus(current), status); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE rollouts SET status = ?, updated_at = ? WHERE rollout_id = ?",
			string(status), time.Now().UTC().UnixNano(), rolloutID,
		); err != nil {
			return fmt.Errorf("failed to update rollout %s: %w", rolloutID, err)
		}
		return nil
	})
}

// AddSpan appends a span under an existing rollout.
func (s *SQLiteStore) AddSpan(ctx context.Context, span Span) (err error) {
	ctx, finish := s.obs.start(ctx, observability.SpanStoreAddSpan, span.RolloutID)
	defer func() { finish(err) }()

	if err := validateSpan(span); err != nil {
		return err
	}
	attrs, err := marshalMap(span.Attributes)
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM rollouts WHERE rollout_id = ?", span.RolloutID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check rollout %s: %w", span.RolloutID, err)
		}
		if exists == 0 {
			return fmt.Errorf("%w: %s", ErrRolloutNotFound, span.RolloutID)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO spans (rollout_id, attempt_id, sequence_id, trace_id, span_id, parent_id,
			                   name, attributes, start_time, end_time)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			span.RolloutID, span.AttemptID, span.SequenceID, span.TraceID, span.SpanID, span.ParentID,
			span.Name, attrs, unixNano(span.StartTime), unixNano(span.EndTime))
		if err != nil {
			return fmt.Errorf("failed to insert span for %s: %w", span.RolloutID, err)
		}
		return nil
	})
}

// QuerySpans returns spans of a rollout ordered by sequence id.
func (s *SQLiteStore) QuerySpans(ctx context.Context, rolloutID, attemptID string) (_ []Span, err error) {
	ctx, finish := s.obs.start(ctx, observability.SpanStoreQuerySpans, rolloutID)
	defer func() { finish(err) }()

	query := `SELECT rollout_id, attempt_id, sequence_id, trace_id, span_id, parent_id,
	                 name, attributes, start_time, end_time
	          FROM spans WHERE rollout_id = ?`
	args := []any{rolloutID}
	if attemptID != "" {
		query += " AND attempt_id = ?"
		args = append(args, attemptID)
	}
	query += " ORDER BY sequence_id, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query spans for %s: %w", rolloutID, err)
	}
	defer rows.Close()

	var spans []Span
	for rows.Next() {
		var (
			span           Span
			attrs          string
			start, endTime int64
		)
		if err := rows.Scan(&span.RolloutID, &span.AttemptID, &span.SequenceID, &span.TraceID,
			&span.SpanID, &span.ParentID, &span.Name, &attrs, &start, &endTime); err != nil {
			return nil, fmt.Errorf("failed to scan span: %w", err)
		}
		if span.Attributes, err = unmarshalMap(attrs); err != nil {
			return nil, err
		}
		span.StartTime = fromUnixNano(start)
		span.EndTime = fromUnixNano(endTime)
		spans = append(spans, span)
	}
	return spans, rows.Err()
}

// QueryRollouts returns rollouts matching query ordered by id.
func (s *SQLiteStore) QueryRollouts(ctx context.Context, q RolloutQuery) (_ []Rollout, err error) {
	ctx, finish := s.obs.start(ctx, observability.SpanStoreQueryRollouts, "")
	defer func() { finish(err) }()

	var (
		where []string
		args  []any
	)
	if len(q.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(q.Statuses))+")")
		for _, st := range q.Statuses {
			args = append(args, string(st))
		}
	}
	if len(q.RolloutIDs) > 0 {
		where = append(where, "rollout_id IN ("+placeholders(len(q.RolloutIDs))+")")
		for _, id := range q.RolloutIDs {
			args = append(args, id)
		}
	}
	query := "SELECT rollout_id, status, input, metadata, created_at, updated_at FROM rollouts"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY rollout_id"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rollouts: %w", err)
	}
	defer rows.Close()

	var out []Rollout
	for rows.Next() {
		var (
			r                  Rollout
			status             string
			input, metadata    string
			created, updatedAt int64
		)
		if err := rows.Scan(&r.RolloutID, &status, &input, &metadata, &created, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rollout: %w", err)
		}
		r.Status = RolloutStatus(status)
		if r.Input, err = unmarshalMap(input); err != nil {
			return nil, err
		}
		if r.Metadata, err = unmarshalMap(metadata); err != nil {
			return nil, err
		}
		r.CreatedAt = fromUnixNano(created)
		r.UpdatedAt = fromUnixNano(updatedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateResources inserts the next resources version.
func (s *SQLiteStore) UpdateResources(ctx context.Context, resources map[string]any) (_ *ResourcesUpdate, err error) {
	ctx, finish := s.obs.start(ctx, observability.SpanStoreUpdateResources, "")
	defer func() { finish(err) }()

	if resources == nil {
		resources = make(map[string]any)
	}
	payload, err := marshalMap(resources)
	if err != nil {
		return nil, err
	}
	update := &ResourcesUpdate{
		ID:        uuid.NewString(),
		Resources: cloneMap(resources),
		CreatedAt: time.Now().UTC(),
		IsLatest:  true,
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(version), 0) + 1 FROM resources",
		).Scan(&update.Version); err != nil {
			return fmt.Errorf("failed to read resources version: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO resources (id, version, resources, created_at) VALUES (?, ?, ?, ?)",
			update.ID, update.Version, payload, update.CreatedAt.UnixNano(),
		); err != nil {
			return fmt.Errorf("failed to insert resources version %d: %w", update.Version, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return update, nil
}

// GetLatestResources returns the newest version or nil.
func (s *SQLiteStore) GetLatestResources(ctx context.Context) (_ *ResourcesUpdate, err error) {
	ctx, finish := s.obs.start(ctx, observability.SpanStoreGetResources, "")
	defer func() { finish(err) }()

	update, err := s.scanResources(ctx,
		"SELECT id, version, resources, created_at FROM resources ORDER BY version DESC LIMIT 1")
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	update.IsLatest = true
	return update, nil
}

// GetResourcesByID returns one version by id.
func (s *SQLiteStore) GetResourcesByID(ctx context.Context, id string) (_ *ResourcesUpdate, err error) {
	ctx, finish := s.obs.start(ctx, observability.SpanStoreGetResources, "")
	defer func() { finish(err) }()

	update, err := s.scanResources(ctx,
		"SELECT id, version, resources, created_at FROM resources WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrResourcesNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	var latest int64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(version) FROM resources").Scan(&latest); err != nil {
		return nil, fmt.Errorf("failed to read latest resources version: %w", err)
	}
	update.IsLatest = update.Version == latest
	return update, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) scanResources(ctx context.Context, query string, args ...any) (*ResourcesUpdate, error) {
	var (
		update  ResourcesUpdate
		payload string
		created int64
	)
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&update.ID, &update.Version, &payload, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read resources: %w", err)
	}
	if update.Resources, err = unmarshalMap(payload); err != nil {
		return nil, err
	}
	update.CreatedAt = fromUnixNano(created)
	return &update, nil
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func marshalMap(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("failed to encode map: %w", err)
	}
	return string(data), nil
}

func unmarshalMap(raw string) (map[string]any, error) {
	out := make(map[string]any)
	if raw == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("failed to decode map: %w", err)
	}
	return out, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

var _ Store = (*SQLiteStore)(nil)
