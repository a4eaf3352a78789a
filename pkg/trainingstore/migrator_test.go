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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teradata-labs/liverl/internal/sqlitedriver"
	"github.com/teradata-labs/liverl/pkg/observability"
)

func TestMigrator_UpDownPending(t *testing.T) {
	ctx := context.Background()
	db, err := sqlitedriver.Open(ctx, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	tracer := observability.NewMockTracer()
	m, err := NewMigrator(db, tracer)
	require.NoError(t, err)

	migrations := m.Migrations()
	require.Len(t, migrations, 2)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "initial_schema", migrations[0].Description)
	assert.NotEmpty(t, migrations[0].UpSQL)
	assert.NotEmpty(t, migrations[0].DownSQL)

	version, err := m.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, version)

	pending, err := m.PendingMigrations(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	require.NoError(t, m.MigrateUp(ctx))
	require.NoError(t, m.MigrateUp(ctx), "migrating twice is a no-op")

	version, err = m.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	pending, err = m.PendingMigrations(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, m.MigrateDown(ctx, 1))
	version, err = m.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	var indexes int
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name='idx_spans_name'").Scan(&indexes))
	assert.Equal(t, 0, indexes)

	require.NoError(t, m.MigrateUp(ctx))
	version, err = m.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	spans := tracer.GetSpansByName(observability.SpanStoreMigrate)
	require.Len(t, spans, 4)
	assert.Equal(t, "down", spans[2].Attributes["direction"])
}
