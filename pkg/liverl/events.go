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
	"encoding/json"
	"fmt"
)

// EventKind names an agent lifecycle event.
type EventKind string

const (
	EventRunStart      EventKind = "run_start"
	EventMessage       EventKind = "message"
	EventToolEnd       EventKind = "tool_end"
	EventTurnEnd       EventKind = "turn_end"
	EventSafetyApplied EventKind = "safety_applied"
	EventRunEnd        EventKind = "run_end"
)

// Message roles. Roles other than user and assistant are ignored.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Event is one observation from the hosting agent. Only the fields that
// belong to Kind are meaningful.
type Event struct {
	Kind EventKind `json:"kind"`

	// message
	Role string `json:"role,omitempty"`
	Text string `json:"text,omitempty"`

	// tool_end
	IsError bool `json:"is_error,omitempty"`

	// safety_applied
	Blocked bool `json:"blocked,omitempty"`
}

// Constructors for in-process hosts.

func RunStart() Event { return Event{Kind: EventRunStart} }

func UserMessage(text string) Event { return Event{Kind: EventMessage, Role: RoleUser, Text: text} }

func AssistantMessage(text string) Event {
	return Event{Kind: EventMessage, Role: RoleAssistant, Text: text}
}

func ToolEnd(isError bool) Event { return Event{Kind: EventToolEnd, IsError: isError} }

func TurnEnd() Event { return Event{Kind: EventTurnEnd} }

func SafetyApplied(blocked bool) Event { return Event{Kind: EventSafetyApplied, Blocked: blocked} }

func RunEnd() Event { return Event{Kind: EventRunEnd} }

// Valid reports whether k is a known kind.
func (k EventKind) Valid() bool {
	switch k {
	case EventRunStart, EventMessage, EventToolEnd, EventTurnEnd, EventSafetyApplied, EventRunEnd:
		return true
	}
	return false
}

// DecodeEvent parses one JSON event, e.g. {"kind":"message","role":"user","text":"hi"}.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("failed to decode event: %w", err)
	}
	if !ev.Kind.Valid() {
		return Event{}, fmt.Errorf("unknown event kind %q", ev.Kind)
	}
	return ev, nil
}
