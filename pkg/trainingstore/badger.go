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
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/teradata-labs/liverl/pkg/observability"
	"go.uber.org/zap"
)

// Key layout:
//
//	rollout/<rollout_id>                          -> zstd(JSON Rollout)
//	span/<rollout_id>/<sequence:010d>/<uuid>      -> zstd(JSON Span)
//	resources/version/<version:big-endian uint64> -> zstd(JSON ResourcesUpdate)
//	resources/id/<id>                             -> big-endian uint64 version
const (
	rolloutPrefix      = "rollout/"
	spanPrefix         = "span/"
	resourcesVerPrefix = "resources/version/"
	resourcesIDPrefix  = "resources/id/"

	maxConflictRetries = 5
)

// BadgerConfig configures a BadgerStore.
type BadgerConfig struct {
	// Path is the database directory. Required unless InMemory.
	Path     string
	InMemory bool
	// SyncWrites fsyncs every commit (default false).
	SyncWrites bool
	Tracer     observability.Tracer
	Logger     *zap.Logger
}

// BadgerStore persists training data in an embedded Badger key-value store
// with zstd-compressed JSON values.
type BadgerStore struct {
	db      *badger.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	obs     instrumenter
	logger  *zap.Logger
}

// badgerLogger forwards Badger's internal logging to zap.
type badgerLogger struct {
	sugar *zap.SugaredLogger
}

func (l badgerLogger) Errorf(format string, args ...interface{})   { l.sugar.Errorf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...interface{}) { l.sugar.Warnf(format, args...) }
func (l badgerLogger) Infof(format string, args ...interface{})    { l.sugar.Debugf(format, args...) }
func (l badgerLogger) Debugf(format string, args ...interface{})   { l.sugar.Debugf(format, args...) }

// NewBadgerStore opens (creating if needed) a Badger database.
func NewBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger store path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(badgerLogger{sugar: logger.Named("badger").Sugar()})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		_ = encoder.Close()
		_ = db.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &BadgerStore{
		db:      db,
		encoder: encoder,
		decoder: decoder,
		obs:     newInstrumenter(cfg.Tracer, BackendBadger),
		logger:  logger,
	}, nil
}

// EnqueueRollout stores a new rollout.
func (s *BadgerStore) EnqueueRollout(ctx context.Context, rollout Rollout) (err error) {
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

	return s.update(func(txn *badger.Txn) error {
		key := []byte(rolloutPrefix + rollout.RolloutID)
		if _, err := txn.Get(key); err == nil {
			return fmt.Errorf("%w: %s", ErrRolloutExists, rollout.RolloutID)
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return s.put(txn, key, rollout)
	})
}

// UpdateRolloutStatus validates and applies a status transition.
func (s *BadgerStore) UpdateRolloutStatus(ctx context.Context, rolloutID string, status RolloutStatus) (err error) {
	_, finish := s.obs.start(ctx, observability.SpanStoreUpdateStatus, rolloutID)
	defer func() { finish(err) }()

	return s.update(func(txn *badger.Txn) error {
		key := []byte(rolloutPrefix + rolloutID)
		var rollout Rollout
		if err := s.get(txn, key, &rollout); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrRolloutNotFound, rolloutID)
			}
			return err
		}
		if err := checkTransition(rolloutID, rollout.Status, status); err != nil {
			return err
		}
		rollout.Status = status
		rollout.UpdatedAt = time.Now().UTC()
		return s.put(txn, key, rollout)
	})
}

// AddSpan appends a span under an existing rollout.
func (s *BadgerStore) AddSpan(ctx context.Context, span Span) (err error) {
	_, finish := s.obs.start(ctx, observability.SpanStoreAddSpan, span.RolloutID)
	defer func() { finish(err) }()

	if err := validateSpan(span); err != nil {
		return err
	}
	return s.update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(rolloutPrefix + span.RolloutID)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("%w: %s", ErrRolloutNotFound, span.RolloutID)
			}
			return err
		}
		key := fmt.Sprintf("%s%s/%010d/%s", spanPrefix, span.RolloutID, span.SequenceID, uuid.NewString())
		return s.put(txn, []byte(key), span)
	})
}

// QuerySpans returns spans of a rollout ordered by sequence id.
func (s *BadgerStore) QuerySpans(ctx context.Context, rolloutID, attemptID string) (_ []Span, err error) {
	_, finish := s.obs.start(ctx, observability.SpanStoreQuerySpans, rolloutID)
	defer func() { finish(err) }()

	var spans []Span
	err = s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(spanPrefix + rolloutID + "/")
		return s.scan(txn, prefix, func(item *badger.Item) error {
			var span Span
			if err := s.decodeItem(item, &span); err != nil {
				return err
			}
			if attemptID == "" || span.AttemptID == attemptID {
				spans = append(spans, span)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query spans for %s: %w", rolloutID, err)
	}
	sortSpans(spans)
	return spans, nil
}

// QueryRollouts returns rollouts matching q ordered by id.
func (s *BadgerStore) QueryRollouts(ctx context.Context, q RolloutQuery) (_ []Rollout, err error) {
	_, finish := s.obs.start(ctx, observability.SpanStoreQueryRollouts, "")
	defer func() { finish(err) }()

	var out []Rollout
	err = s.db.View(func(txn *badger.Txn) error {
		// keys iterate in byte order, which is rollout id order
		return s.scan(txn, []byte(rolloutPrefix), func(item *badger.Item) error {
			if q.Limit > 0 && len(out) >= q.Limit {
				return errStopScan
			}
			var r Rollout
			if err := s.decodeItem(item, &r); err != nil {
				return err
			}
			if q.matches(r) {
				out = append(out, r)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query rollouts: %w", err)
	}
	return out, nil
}

// UpdateResources stores the next resources version.
func (s *BadgerStore) UpdateResources(ctx context.Context, resources map[string]any) (_ *ResourcesUpdate, err error) {
	_, finish := s.obs.start(ctx, observability.SpanStoreUpdateResources, "")
	defer func() { finish(err) }()

	if resources == nil {
		resources = make(map[string]any)
	}
	var update ResourcesUpdate
	err = s.update(func(txn *badger.Txn) error {
		latest, err := s.latestVersion(txn)
		if err != nil {
			return err
		}
		update = ResourcesUpdate{
			ID:        uuid.NewString(),
			Version:   latest + 1,
			Resources: cloneMap(resources),
			CreatedAt: time.Now().UTC(),
		}
		if err := s.put(txn, versionKey(update.Version), update); err != nil {
			return err
		}
		return txn.Set([]byte(resourcesIDPrefix+update.ID), encodeVersion(update.Version))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update resources: %w", err)
	}
	update.IsLatest = true
	return &update, nil
}

// GetLatestResources returns the newest version or nil.
func (s *BadgerStore) GetLatestResources(ctx context.Context) (_ *ResourcesUpdate, err error) {
	_, finish := s.obs.start(ctx, observability.SpanStoreGetResources, "")
	defer func() { finish(err) }()

	var update *ResourcesUpdate
	err = s.db.View(func(txn *badger.Txn) error {
		latest, err := s.latestVersion(txn)
		if err != nil || latest == 0 {
			return err
		}
		update = &ResourcesUpdate{}
		return s.get(txn, versionKey(latest), update)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read latest resources: %w", err)
	}
	if update != nil {
		update.IsLatest = true
	}
	return update, nil
}

// GetResourcesByID returns one version by id.
func (s *BadgerStore) GetResourcesByID(ctx context.Context, id string) (_ *ResourcesUpdate, err error) {
	_, finish := s.obs.start(ctx, observability.SpanStoreGetResources, "")
	defer func() { finish(err) }()

	var update ResourcesUpdate
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(resourcesIDPrefix + id))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", ErrResourcesNotFound, id)
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		version := decodeVersion(raw)
		if err := s.get(txn, versionKey(version), &update); err != nil {
			return err
		}
		latest, err := s.latestVersion(txn)
		if err != nil {
			return err
		}
		update.IsLatest = version == latest
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &update, nil
}

// Close flushes and closes the database.
func (s *BadgerStore) Close() error {
	s.decoder.Close()
	encErr := s.encoder.Close()
	if err := s.db.Close(); err != nil {
		return err
	}
	return encErr
}

var errStopScan = errors.New("stop scan")

// update runs fn in a read-write transaction, retrying on conflicts.
func (s *BadgerStore) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.logger.Debug("badger transaction conflict, retrying", zap.Int("attempt", attempt+1))
	}
	return err
}

func (s *BadgerStore) scan(txn *badger.Txn, prefix []byte, fn func(*badger.Item) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := fn(it.Item()); err != nil {
			if errors.Is(err, errStopScan) {
				return nil
			}
			return err
		}
	}
	return nil
}

func (s *BadgerStore) latestVersion(txn *badger.Txn) (int64, error) {
	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	opts.PrefetchValues = false
	prefix := []byte(resourcesVerPrefix)
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	// seek past the largest possible key of the prefix
	seek := append(append([]byte{}, prefix...), 0xff)
	it.Seek(seek)
	if !it.ValidForPrefix(prefix) {
		return 0, nil
	}
	key := it.Item().Key()
	return decodeVersion(key[len(prefix):]), nil
}

func (s *BadgerStore) put(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	return txn.Set(key, s.encoder.EncodeAll(data, nil))
}

func (s *BadgerStore) get(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return s.decodeItem(item, v)
}

func (s *BadgerStore) decodeItem(item *badger.Item, v any) error {
	return item.Value(func(val []byte) error {
		data, err := s.decoder.DecodeAll(val, nil)
		if err != nil {
			return fmt.Errorf("failed to decompress %s: %w", item.Key(), err)
		}
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("failed to decode %s: %w", item.Key(), err)
		}
		return nil
	})
}

func versionKey(version int64) []byte {
	return append([]byte(resourcesVerPrefix), encodeVersion(version)...)
}

func encodeVersion(version int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(version))
	return buf
}

func decodeVersion(raw []byte) int64 {
	if len(raw) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(raw))
}

var _ Store = (*BadgerStore)(nil)
