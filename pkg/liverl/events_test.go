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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEvent(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"kind":"message","role":"assistant","text":"done"}`))
	require.NoError(t, err)
	assert.Equal(t, AssistantMessage("done"), ev)

	ev, err = DecodeEvent([]byte(`{"kind":"tool_end","is_error":true}`))
	require.NoError(t, err)
	assert.Equal(t, ToolEnd(true), ev)

	ev, err = DecodeEvent([]byte(`{"kind":"safety_applied","blocked":true}`))
	require.NoError(t, err)
	assert.Equal(t, SafetyApplied(true), ev)

	_, err = DecodeEvent([]byte(`{"kind":"compaction"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown event kind "compaction"`)

	_, err = DecodeEvent([]byte(`not json`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode event")
}

func TestEventKindValid(t *testing.T) {
	for _, k := range []EventKind{EventRunStart, EventMessage, EventToolEnd, EventTurnEnd, EventSafetyApplied, EventRunEnd} {
		assert.True(t, k.Valid(), k)
	}
	assert.False(t, EventKind("").Valid())
	assert.False(t, EventKind("RUN_START").Valid())
}
