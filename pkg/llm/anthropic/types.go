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
package anthropic

import "encoding/json"

// messagesRequest represents a request to the Anthropic Messages API.
type messagesRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature,omitempty"`
	Tools       []wireTool    `json:"tools,omitempty"`
	System      string        `json:"system,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

// wireMessage is a single message in the Messages API conversation.
type wireMessage struct {
	Role    string      `json:"role"`
	Content []wireBlock `json:"content"`
}

// wireBlock is a content block in a message.
// Uses custom MarshalJSON to ensure tool_use blocks always include "input": {}.
type wireBlock struct {
	Type      string                 `json:"type"`
	Text      string                 `json:"text,omitempty"`
	ID        string                 `json:"id,omitempty"`
	Name      string                 `json:"name,omitempty"`
	Input     map[string]interface{} `json:"input,omitempty"`
	ToolUseID string                 `json:"tool_use_id,omitempty"`
	Content   string                 `json:"content,omitempty"`
	IsError   bool                   `json:"is_error,omitempty"`
}

// MarshalJSON implements custom JSON marshaling for wireBlock.
// The API requires tool_use blocks to always have "input" present (even if
// empty {}). Go's omitempty treats empty maps the same as nil, so we handle
// this explicitly.
func (b wireBlock) MarshalJSON() ([]byte, error) {
	m := map[string]interface{}{
		"type": b.Type,
	}
	if b.Text != "" {
		m["text"] = b.Text
	}
	if b.ID != "" {
		m["id"] = b.ID
	}
	if b.Name != "" {
		m["name"] = b.Name
	}
	if b.Type == "tool_use" {
		if len(b.Input) == 0 {
			m["input"] = map[string]interface{}{}
		} else {
			m["input"] = b.Input
		}
	} else if len(b.Input) > 0 {
		m["input"] = b.Input
	}
	if b.ToolUseID != "" {
		m["tool_use_id"] = b.ToolUseID
	}
	if b.Content != "" {
		m["content"] = b.Content
	}
	if b.IsError {
		m["is_error"] = true
	}
	return json.Marshal(m)
}

// wireTool is a tool definition for the Messages API. The schema passes
// through verbatim.
type wireTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
}

// wireUsage represents token usage information.
type wireUsage struct {
	InputTokens              int `json:"input_tokens"`
	OutputTokens             int `json:"output_tokens"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
}

// streamEvent represents a streaming event from the Messages API.
type streamEvent struct {
	Type         string         `json:"type"` // message_start, content_block_start, content_block_delta, content_block_stop, message_delta, message_stop, error
	Message      *streamMessage `json:"message,omitempty"`
	Index        int            `json:"index,omitempty"`
	ContentBlock *wireBlock     `json:"content_block,omitempty"`
	Delta        *streamDelta   `json:"delta,omitempty"`
	Usage        *wireUsage     `json:"usage,omitempty"`
	Error        *apiErrorBody  `json:"error,omitempty"`
}

// streamMessage is the message envelope carried by message_start events.
type streamMessage struct {
	ID    string    `json:"id"`
	Model string    `json:"model"`
	Usage wireUsage `json:"usage"`
}

// streamDelta represents a delta in a streaming event.
type streamDelta struct {
	Type        string `json:"type,omitempty"`         // text_delta, thinking_delta, input_json_delta
	Text        string `json:"text,omitempty"`         // For text deltas
	Thinking    string `json:"thinking,omitempty"`     // For thinking deltas
	PartialJSON string `json:"partial_json,omitempty"` // For input_json_delta (tool input streaming)
	StopReason  string `json:"stop_reason,omitempty"`  // For message_delta events
}

// apiErrorBody is the error payload of a non-2xx response.
type apiErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// errorEnvelope wraps apiErrorBody in non-2xx response bodies.
type errorEnvelope struct {
	Type  string       `json:"type"`
	Error apiErrorBody `json:"error"`
}
