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

// Package anthropic implements the llm.Provider interface against the
// Anthropic Messages API using Server-Sent Events streaming.
package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/teradata-labs/weft/pkg/llm"
	"github.com/teradata-labs/weft/pkg/types"
)

const (
	// DefaultEndpoint is the Anthropic Messages API endpoint.
	DefaultEndpoint = "https://api.anthropic.com/v1/messages"

	// DefaultModel is used when the config does not name one.
	DefaultModel = "claude-sonnet-4-20250514"

	// DefaultMaxTokens bounds responses when the request does not.
	DefaultMaxTokens = 4096

	apiVersion = "2023-06-01"
)

// Config configures the Anthropic client.
type Config struct {
	// APIKey is the Anthropic API key. Required.
	APIKey string

	// Model is the default model identifier.
	Model string

	// MaxTokens is the default response bound.
	MaxTokens int

	// Temperature for sampling. Zero value means API default.
	Temperature float64

	// Endpoint overrides the API endpoint (tests, proxies).
	Endpoint string

	// HTTPClient overrides the transport. A long timeout is applied
	// when nil since streamed responses can run for minutes.
	HTTPClient *http.Client
}

// Client talks to the Anthropic Messages API.
type Client struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	endpoint    string
	httpClient  *http.Client
}

// NewClient creates an Anthropic client from config, filling defaults.
func NewClient(config Config) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = DefaultMaxTokens
	}
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: 10 * time.Minute}
	}
	return &Client{
		apiKey:      config.APIKey,
		model:       config.Model,
		maxTokens:   config.MaxTokens,
		temperature: config.Temperature,
		endpoint:    config.Endpoint,
		httpClient:  config.HTTPClient,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "anthropic"
}

// Model returns the default model identifier.
func (c *Client) Model() string {
	return c.model
}

// Stream sends a streaming Messages API request and returns a channel of
// events. The channel is closed after EventDone or EventError.
func (c *Client) Stream(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	apiReq := &messagesRequest{
		Model:       model,
		Messages:    convertMessages(req.Messages),
		MaxTokens:   maxTokens,
		Temperature: c.temperature,
		System:      req.System,
		Tools:       convertTools(req.Tools),
		Stream:      true,
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)
	// Prompt caching beta — cached tokens don't count against ITPM limits
	httpReq.Header.Set("anthropic-beta", "prompt-caching-2024-07-31")

	events := make(chan llm.StreamEvent, 16)
	go func() {
		defer close(events)

		httpResp, err := c.httpClient.Do(httpReq)
		if err != nil {
			events <- llm.StreamEvent{Type: llm.EventError, Err: fmt.Errorf("HTTP request failed: %w", err)}
			return
		}
		defer func() { _ = httpResp.Body.Close() }()

		if httpResp.StatusCode != http.StatusOK {
			events <- llm.StreamEvent{Type: llm.EventError, Err: readAPIError(httpResp)}
			return
		}

		resp, err := c.consumeSSE(ctx, httpResp.Body, events)
		if err != nil {
			events <- llm.StreamEvent{Type: llm.EventError, Err: err}
			return
		}
		events <- llm.StreamEvent{Type: llm.EventDone, Response: resp}
	}()

	return events, nil
}

// consumeSSE scans the SSE body, relaying deltas onto the event channel
// and assembling the final response.
func (c *Client) consumeSSE(ctx context.Context, body io.Reader, events chan<- llm.StreamEvent) (*llm.Response, error) {
	var contentBuffer strings.Builder
	var thinkingBuffer strings.Builder
	usage := llm.Usage{}
	var stopReason string
	var toolCalls []types.ToolCall
	// Track tool input JSON as it streams in (indexed by content block index)
	toolInputBuffers := make(map[int]*strings.Builder)
	// Map content block index → toolCalls slice index for tool_use blocks
	toolCallIndex := make(map[int]int)

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()

		// SSE format: "event: <event_type>" or "data: <json>"
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		jsonData := strings.TrimSpace(strings.TrimPrefix(line, "data:"))

		var event streamEvent
		if err := json.Unmarshal([]byte(jsonData), &event); err != nil {
			// Skip malformed events but continue processing
			continue
		}

		switch event.Type {
		case "content_block_delta":
			if event.Delta == nil {
				continue
			}
			switch event.Delta.Type {
			case "text_delta":
				if event.Delta.Text != "" {
					contentBuffer.WriteString(event.Delta.Text)
					events <- llm.StreamEvent{Type: llm.EventTextDelta, Text: event.Delta.Text}
				}
			case "thinking_delta":
				if event.Delta.Thinking != "" {
					thinkingBuffer.WriteString(event.Delta.Thinking)
					events <- llm.StreamEvent{Type: llm.EventThinkingDelta, Thinking: event.Delta.Thinking}
				}
			case "input_json_delta":
				// Accumulate tool input JSON fragments
				if buf, exists := toolInputBuffers[event.Index]; exists {
					buf.WriteString(event.Delta.PartialJSON)
				}
			}

		case "content_block_start":
			if event.ContentBlock != nil && event.ContentBlock.Type == "tool_use" {
				idx := len(toolCalls)
				toolCalls = append(toolCalls, types.ToolCall{
					ID:    event.ContentBlock.ID,
					Name:  event.ContentBlock.Name,
					Input: make(map[string]interface{}),
				})
				toolInputBuffers[event.Index] = &strings.Builder{}
				toolCallIndex[event.Index] = idx
			}

		case "content_block_stop":
			// Finalize tool input: parse accumulated JSON
			if buf, exists := toolInputBuffers[event.Index]; exists && buf.Len() > 0 {
				var input map[string]interface{}
				if err := json.Unmarshal([]byte(buf.String()), &input); err == nil {
					if idx, ok := toolCallIndex[event.Index]; ok && idx < len(toolCalls) {
						toolCalls[idx].Input = input
					}
				}
			}
			delete(toolInputBuffers, event.Index)
			delete(toolCallIndex, event.Index)

		case "message_start":
			// Initial event: capture input tokens and cache token counts
			if event.Message != nil {
				usage.InputTokens = event.Message.Usage.InputTokens
				usage.CacheReadTokens = event.Message.Usage.CacheReadInputTokens
				usage.CacheCreationTokens = event.Message.Usage.CacheCreationInputTokens
			}

		case "message_delta":
			if event.Delta != nil && event.Delta.StopReason != "" {
				stopReason = event.Delta.StopReason
			}
			if event.Usage != nil {
				usage.OutputTokens = event.Usage.OutputTokens
			}

		case "message_stop":
			// Final event — usage may be updated here with cache tokens too
			if event.Usage != nil {
				if event.Usage.InputTokens > 0 {
					usage.InputTokens = event.Usage.InputTokens
				}
				if event.Usage.OutputTokens > 0 {
					usage.OutputTokens = event.Usage.OutputTokens
				}
				if event.Usage.CacheReadInputTokens > 0 {
					usage.CacheReadTokens = event.Usage.CacheReadInputTokens
				}
				if event.Usage.CacheCreationInputTokens > 0 {
					usage.CacheCreationTokens = event.Usage.CacheCreationInputTokens
				}
			}

		case "error":
			if event.Error != nil {
				return nil, &llm.APIError{
					StatusCode: httpStatusFromErrorType(event.Error.Type),
					Type:       event.Error.Type,
					Message:    event.Error.Message,
				}
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading stream: %w", err)
	}

	return &llm.Response{
		Content:    contentBuffer.String(),
		Thinking:   thinkingBuffer.String(),
		ToolCalls:  toolCalls,
		StopReason: stopReason,
		Usage:      usage,
	}, nil
}

// readAPIError parses a non-2xx response body into a structured error.
func readAPIError(resp *http.Response) error {
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var envelope errorEnvelope
	if err := json.Unmarshal(respBody, &envelope); err == nil && envelope.Error.Type != "" {
		return &llm.APIError{
			StatusCode: resp.StatusCode,
			Type:       envelope.Error.Type,
			Message:    envelope.Error.Message,
		}
	}
	return &llm.APIError{
		StatusCode: resp.StatusCode,
		Type:       "api_error",
		Message:    string(respBody),
	}
}

// httpStatusFromErrorType maps in-stream error types to their usual
// HTTP status so Classify treats them like their non-streaming twins.
func httpStatusFromErrorType(errType string) int {
	switch errType {
	case "rate_limit_error":
		return 429
	case "overloaded_error":
		return 529
	default:
		return 500
	}
}

// convertMessages maps conversation messages to Messages API form.
// Tool-result messages become user messages carrying tool_result blocks,
// which is how the Messages API round-trips tool output.
func convertMessages(messages []types.Message) []wireMessage {
	out := make([]wireMessage, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case types.RoleAssistant:
			var blocks []wireBlock
			for _, b := range msg.Blocks {
				switch b.Type {
				case types.BlockText:
					if b.Text != "" {
						blocks = append(blocks, wireBlock{Type: "text", Text: b.Text})
					}
				case types.BlockToolUse:
					blocks = append(blocks, wireBlock{Type: "tool_use", ID: b.ID, Name: b.Name, Input: b.Input})
				}
			}
			if len(blocks) == 0 && msg.Content != "" {
				blocks = []wireBlock{{Type: "text", Text: msg.Content}}
			}
			if len(blocks) > 0 {
				out = append(out, wireMessage{Role: "assistant", Content: blocks})
			}

		case types.RoleToolResult:
			var blocks []wireBlock
			for _, b := range msg.Blocks {
				if b.Type == types.BlockToolResult {
					blocks = append(blocks, wireBlock{
						Type:      "tool_result",
						ToolUseID: b.ToolUseID,
						Content:   b.Content,
						IsError:   b.IsError,
					})
				}
			}
			if len(blocks) > 0 {
				out = append(out, wireMessage{Role: "user", Content: blocks})
			}

		default: // user
			text := msg.Content
			if text == "" {
				for _, b := range msg.Blocks {
					if b.Type == types.BlockText {
						text += b.Text
					}
				}
			}
			out = append(out, wireMessage{Role: "user", Content: []wireBlock{{Type: "text", Text: text}}})
		}
	}
	return out
}

// convertTools maps tool specs to Messages API tool definitions.
func convertTools(tools []llm.ToolSpec) []wireTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		schema := t.InputSchema
		if len(schema) == 0 {
			schema = json.RawMessage(`{"type":"object"}`)
		}
		out = append(out, wireTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schema,
		})
	}
	return out
}
