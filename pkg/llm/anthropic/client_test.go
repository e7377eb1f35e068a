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

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/weft/pkg/llm"
	"github.com/teradata-labs/weft/pkg/types"
)

// sseServer serves a fixed sequence of SSE data lines.
func sseServer(t *testing.T, lines []string, capture *[]byte) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			body, _ := io.ReadAll(r.Body)
			*capture = body
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, line := range lines {
			fmt.Fprintf(w, "data: %s\n\n", line)
		}
	}))
}

func drain(t *testing.T, events <-chan llm.StreamEvent) (texts []string, done *llm.Response, errEvent error) {
	t.Helper()
	for ev := range events {
		switch ev.Type {
		case llm.EventTextDelta:
			texts = append(texts, ev.Text)
		case llm.EventDone:
			done = ev.Response
		case llm.EventError:
			errEvent = ev.Err
		}
	}
	return texts, done, errEvent
}

func TestStreamTextResponse(t *testing.T) {
	var captured []byte
	srv := sseServer(t, []string{
		`{"type":"message_start","message":{"usage":{"input_tokens":120,"cache_read_input_tokens":50}}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"text"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":", world"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":7}}`,
		`{"type":"message_stop"}`,
	}, &captured)
	defer srv.Close()

	c := NewClient(Config{APIKey: "key", Endpoint: srv.URL})
	events, err := c.Stream(context.Background(), llm.Request{
		System:    "be brief",
		Messages:  []types.Message{types.TextMessage(types.RoleUser, "hi")},
		MaxTokens: 100,
	})
	require.NoError(t, err)

	texts, done, errEvent := drain(t, events)
	require.NoError(t, errEvent)
	require.NotNil(t, done)

	assert.Equal(t, []string{"Hello", ", world"}, texts)
	assert.Equal(t, "Hello, world", done.Content)
	assert.Equal(t, "end_turn", done.StopReason)
	assert.Equal(t, 120, done.Usage.InputTokens)
	assert.Equal(t, 7, done.Usage.OutputTokens)
	assert.Equal(t, 50, done.Usage.CacheReadTokens)
	assert.Empty(t, done.ToolCalls)

	// Request carried system, streaming flag, and the user message.
	var req map[string]interface{}
	require.NoError(t, json.Unmarshal(captured, &req))
	assert.Equal(t, "be brief", req["system"])
	assert.Equal(t, true, req["stream"])
	assert.Equal(t, float64(100), req["max_tokens"])
}

func TestStreamToolUse(t *testing.T) {
	srv := sseServer(t, []string{
		`{"type":"message_start","message":{"usage":{"input_tokens":10}}}`,
		`{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"tu_abc","name":"run_query"}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"limit\""}}`,
		`{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":": 5}"}}`,
		`{"type":"content_block_stop","index":0}`,
		`{"type":"message_delta","delta":{"stop_reason":"tool_use"},"usage":{"output_tokens":3}}`,
		`{"type":"message_stop"}`,
	}, nil)
	defer srv.Close()

	c := NewClient(Config{APIKey: "key", Endpoint: srv.URL})
	events, err := c.Stream(context.Background(), llm.Request{
		Messages: []types.Message{types.TextMessage(types.RoleUser, "count")},
	})
	require.NoError(t, err)

	_, done, errEvent := drain(t, events)
	require.NoError(t, errEvent)
	require.NotNil(t, done)

	assert.Equal(t, "tool_use", done.StopReason)
	require.Len(t, done.ToolCalls, 1)
	call := done.ToolCalls[0]
	assert.Equal(t, "tu_abc", call.ID)
	assert.Equal(t, "run_query", call.Name)
	assert.Equal(t, map[string]interface{}{"limit": float64(5)}, call.Input)
}

func TestStreamThinking(t *testing.T) {
	srv := sseServer(t, []string{
		`{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"pondering"}}`,
		`{"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"answer"}}`,
		`{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":2}}`,
	}, nil)
	defer srv.Close()

	c := NewClient(Config{APIKey: "key", Endpoint: srv.URL})
	events, err := c.Stream(context.Background(), llm.Request{
		Messages: []types.Message{types.TextMessage(types.RoleUser, "think")},
	})
	require.NoError(t, err)

	var thinking string
	var done *llm.Response
	for ev := range events {
		switch ev.Type {
		case llm.EventThinkingDelta:
			thinking += ev.Thinking
		case llm.EventDone:
			done = ev.Response
		}
	}
	require.NotNil(t, done)
	assert.Equal(t, "pondering", thinking)
	assert.Equal(t, "pondering", done.Thinking)
	assert.Equal(t, "answer", done.Content)
}

func TestStreamHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "key", Endpoint: srv.URL})
	events, err := c.Stream(context.Background(), llm.Request{
		Messages: []types.Message{types.TextMessage(types.RoleUser, "hi")},
	})
	require.NoError(t, err)

	_, done, errEvent := drain(t, events)
	assert.Nil(t, done)
	require.Error(t, errEvent)

	var apiErr *llm.APIError
	require.ErrorAs(t, errEvent, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Equal(t, "rate_limit_error", apiErr.Type)
	assert.Equal(t, llm.KindRateLimit, llm.Classify(errEvent))
}

func TestStreamInStreamError(t *testing.T) {
	srv := sseServer(t, []string{
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"partial"}}`,
		`{"type":"error","error":{"type":"overloaded_error","message":"shedding load"}}`,
	}, nil)
	defer srv.Close()

	c := NewClient(Config{APIKey: "key", Endpoint: srv.URL})
	events, err := c.Stream(context.Background(), llm.Request{
		Messages: []types.Message{types.TextMessage(types.RoleUser, "hi")},
	})
	require.NoError(t, err)

	_, done, errEvent := drain(t, events)
	assert.Nil(t, done)
	require.Error(t, errEvent)
	assert.Equal(t, llm.KindOverloaded, llm.Classify(errEvent))
}

func TestStreamSetsHeaders(t *testing.T) {
	var gotKey, gotVersion string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotVersion = r.Header.Get("anthropic-version")
		fmt.Fprint(w, "data: {\"type\":\"message_stop\"}\n\n")
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "secret-key", Endpoint: srv.URL})
	events, err := c.Stream(context.Background(), llm.Request{
		Messages: []types.Message{types.TextMessage(types.RoleUser, "hi")},
	})
	require.NoError(t, err)
	drain(t, events)

	assert.Equal(t, "secret-key", gotKey)
	assert.Equal(t, apiVersion, gotVersion)
}

func TestConvertMessages(t *testing.T) {
	msgs := []types.Message{
		types.TextMessage(types.RoleUser, "question"),
		{
			Role:    types.RoleAssistant,
			Content: "thinking about it",
			Blocks: []types.ContentBlock{
				{Type: types.BlockText, Text: "thinking about it"},
				{Type: types.BlockToolUse, ID: "tu_1", Name: "lookup", Input: map[string]interface{}{"k": "v"}},
			},
		},
		{
			Role: types.RoleToolResult,
			Blocks: []types.ContentBlock{
				{Type: types.BlockToolResult, ToolUseID: "tu_1", Content: "found it", IsError: false},
			},
		},
	}

	wire := convertMessages(msgs)
	require.Len(t, wire, 3)

	assert.Equal(t, "user", wire[0].Role)
	assert.Equal(t, "assistant", wire[1].Role)
	require.Len(t, wire[1].Content, 2)
	assert.Equal(t, "tool_use", wire[1].Content[1].Type)

	// Tool results ride back as user messages.
	assert.Equal(t, "user", wire[2].Role)
	require.Len(t, wire[2].Content, 1)
	assert.Equal(t, "tool_result", wire[2].Content[0].Type)
	assert.Equal(t, "tu_1", wire[2].Content[0].ToolUseID)
}

func TestConvertToolsDefaultSchema(t *testing.T) {
	wire := convertTools([]llm.ToolSpec{{Name: "bare"}})
	require.Len(t, wire, 1)
	assert.JSONEq(t, `{"type":"object"}`, string(wire[0].InputSchema))

	assert.Nil(t, convertTools(nil))
}

func TestToolUseInputMarshalsAsObject(t *testing.T) {
	// The API rejects tool_use blocks whose input is null.
	b, err := json.Marshal(wireBlock{Type: "tool_use", ID: "x", Name: "t"})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"input":{}`)
}

func TestLLMComplete(t *testing.T) {
	srv := sseServer(t, []string{
		`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"done"}}`,
		`{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":1}}`,
	}, nil)
	defer srv.Close()

	c := NewClient(Config{APIKey: "key", Endpoint: srv.URL})
	resp, err := llm.Complete(context.Background(), c, llm.Request{
		Messages: []types.Message{types.TextMessage(types.RoleUser, "hi")},
	})
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Content)
	assert.Equal(t, "end_turn", resp.StopReason)
}
