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
package agent

import (
	"github.com/teradata-labs/weft/pkg/tools"
	"github.com/teradata-labs/weft/pkg/types"
)

// EventType discriminates engine events.
type EventType string

const (
	// EventStarted opens the stream once the conversation is resolved.
	EventStarted EventType = "started"

	// EventConversationCreated reports a newly created conversation,
	// including the silent replacement of an unknown requested id.
	EventConversationCreated EventType = "conversation_created"

	// EventText carries an incremental chunk of assistant text.
	EventText EventType = "text"

	// EventThinking carries an incremental chunk of model reasoning.
	EventThinking EventType = "thinking"

	// EventWarning reports a non-terminal condition (budget threshold).
	EventWarning EventType = "warning"

	// EventToolStart reports a tool execution beginning.
	EventToolStart EventType = "tool_start"

	// EventToolResult reports a completed tool execution.
	EventToolResult EventType = "tool_result"

	// EventDone terminates a successful query.
	EventDone EventType = "done"

	// EventError terminates a failed query.
	EventError EventType = "error"

	// EventAborted terminates a canceled query.
	EventAborted EventType = "aborted"
)

// Done statuses.
const (
	// StatusSuccess: the model finished with end_turn.
	StatusSuccess = "success"

	// StatusMaxTurns: the loop hit its turn bound. Not an error.
	StatusMaxTurns = "max_turns"
)

// ToolResultEvent is the payload of EventToolResult.
type ToolResultEvent struct {
	// ToolUseID ties the result to the model's tool_use block.
	ToolUseID string `json:"tool_use_id"`

	// Tool is the tool name.
	Tool string `json:"tool"`

	Success bool `json:"success"`

	// Result is the serialized result text fed back to the model,
	// possibly truncated.
	Result string `json:"result"`

	// IsTruncated is set when Result was cut at the feedback cap.
	IsTruncated bool `json:"is_truncated,omitempty"`

	// ActualLength is the pre-truncation length in bytes.
	ActualLength int `json:"actual_length,omitempty"`

	// ErrorKind classifies a failure (recoverable, rate_limit, fatal,
	// timeout).
	ErrorKind tools.ErrorKind `json:"error_kind,omitempty"`

	// Retryable mirrors ErrorKind.Retryable for clients.
	Retryable bool `json:"retryable,omitempty"`

	// TimedOut is set when the execution deadline elapsed.
	TimedOut bool `json:"timed_out,omitempty"`

	DurationMs int64 `json:"duration_ms"`
}

// Event is one element of an engine event stream. Fields beyond Type
// are populated per event type.
type Event struct {
	Type EventType `json:"type"`

	// EventStarted / EventConversationCreated
	ConversationID string `json:"conversation_id,omitempty"`
	StoreID        string `json:"store_id,omitempty"`
	Model          string `json:"model,omitempty"`

	// EventText / EventThinking
	Text string `json:"text,omitempty"`

	// EventWarning
	Warning string `json:"warning,omitempty"`

	// EventToolStart
	Tool      string                 `json:"tool,omitempty"`
	ToolUseID string                 `json:"tool_use_id,omitempty"`
	ToolInput map[string]interface{} `json:"tool_input,omitempty"`

	// EventToolResult
	ToolResult *ToolResultEvent `json:"tool_result,omitempty"`

	// EventDone
	Status string           `json:"status,omitempty"`
	Usage  *types.TurnUsage `json:"usage,omitempty"`

	// EventError
	Error       string `json:"error,omitempty"`
	Recoverable bool   `json:"recoverable,omitempty"`
}
