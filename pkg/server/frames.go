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
package server

import (
	"encoding/json"

	"github.com/teradata-labs/weft/pkg/agent"
	"github.com/teradata-labs/weft/pkg/types"
)

// Inbound frame types.
const (
	FrameQuery            = "query"
	FrameAbort            = "abort"
	FramePing             = "ping"
	FrameGetTools         = "get_tools"
	FrameNewConversation  = "new_conversation"
	FrameGetConversations = "get_conversations"
	FrameLoadConversation = "load_conversation"
)

// Outbound frame types beyond the engine event names.
const (
	FrameReady              = "ready"
	FrameTools              = "tools"
	FramePong               = "pong"
	FrameError              = "error"
	FrameShutdown           = "shutdown"
	FrameConversations      = "conversations"
	FrameConversationLoaded = "conversation_loaded"
)

// inboundFrame is one client request. Type selects which fields matter.
type inboundFrame struct {
	Type string `json:"type"`

	// query
	Prompt         string        `json:"prompt,omitempty"`
	StoreID        string        `json:"store_id,omitempty"`
	UserID         string        `json:"user_id,omitempty"`
	ConversationID string        `json:"conversation_id,omitempty"`
	Config         *agent.Config `json:"config,omitempty"`

	// get_conversations
	Limit int `json:"limit,omitempty"`
}

// toolInfo is the wire-facing tool metadata in ready/tools frames.
type toolInfo struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
	IsReadOnly  bool            `json:"is_read_only,omitempty"`
}

// outboundFrame is one server message. Type selects which fields are
// populated; everything else is omitted from the JSON.
type outboundFrame struct {
	Type string `json:"type"`

	// ready / shutdown
	Version string `json:"version,omitempty"`
	Reason  string `json:"reason,omitempty"`

	// ready / tools
	Tools []toolInfo `json:"tools,omitempty"`

	// engine events
	ConversationID string                 `json:"conversation_id,omitempty"`
	StoreID        string                 `json:"store_id,omitempty"`
	Model          string                 `json:"model,omitempty"`
	Text           string                 `json:"text,omitempty"`
	Warning        string                 `json:"warning,omitempty"`
	Tool           string                 `json:"tool,omitempty"`
	ToolUseID      string                 `json:"tool_use_id,omitempty"`
	ToolInput      map[string]interface{} `json:"tool_input,omitempty"`
	ToolResult     *agent.ToolResultEvent `json:"tool_result,omitempty"`
	Status         string                 `json:"status,omitempty"`
	Usage          *types.TurnUsage       `json:"usage,omitempty"`

	// error
	Error       string `json:"error,omitempty"`
	Recoverable bool   `json:"recoverable,omitempty"`

	// conversations / conversation_loaded
	Conversations []types.Conversation `json:"conversations,omitempty"`
	Conversation  *types.Conversation  `json:"conversation,omitempty"`
	Messages      []types.Message      `json:"messages,omitempty"`
}

// frameFromEvent maps an engine event to its outbound frame; event
// types double as frame types.
func frameFromEvent(ev agent.Event) outboundFrame {
	return outboundFrame{
		Type:           string(ev.Type),
		ConversationID: ev.ConversationID,
		StoreID:        ev.StoreID,
		Model:          ev.Model,
		Text:           ev.Text,
		Warning:        ev.Warning,
		Tool:           ev.Tool,
		ToolUseID:      ev.ToolUseID,
		ToolInput:      ev.ToolInput,
		ToolResult:     ev.ToolResult,
		Status:         ev.Status,
		Usage:          ev.Usage,
		Error:          ev.Error,
		Recoverable:    ev.Recoverable,
	}
}
