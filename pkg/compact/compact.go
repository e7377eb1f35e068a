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

// Package compact shrinks oversized conversation history by replacing
// the middle of the conversation with a model-generated summary while
// keeping the head and tail verbatim.
package compact

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/teradata-labs/weft/internal/log"
	"github.com/teradata-labs/weft/pkg/llm"
	"github.com/teradata-labs/weft/pkg/types"
)

const (
	// CharsPerToken is the fixed estimation ratio. Estimation must be
	// deterministic, so no tokenizer is consulted here.
	CharsPerToken = 4

	// ThresholdFraction of the context window at which compaction
	// triggers.
	ThresholdFraction = 0.92

	// KeepStart messages are preserved verbatim from the head.
	KeepStart = 3

	// KeepEnd messages are preserved verbatim from the tail.
	KeepEnd = 8

	// SummaryMaxTokens bounds the summarization call's output.
	SummaryMaxTokens = 1024

	// DefaultContextWindow is used when the config does not set one.
	DefaultContextWindow = 200_000
)

const summarySystemPrompt = "You summarize conversation transcripts. " +
	"Produce a dense summary that preserves decisions, facts, tool results, " +
	"open questions, and anything the assistant promised to do. Plain text only."

// Config tunes the compactor. Zero values take the package defaults.
type Config struct {
	ContextWindow int
	Model         string
}

// Compactor summarizes the middle of oversized histories.
type Compactor struct {
	provider      llm.Provider
	contextWindow int
	model         string
	logger        *zap.Logger
}

// New creates a compactor using the given provider for summary calls.
func New(provider llm.Provider, config Config) *Compactor {
	if config.ContextWindow <= 0 {
		config.ContextWindow = DefaultContextWindow
	}
	return &Compactor{
		provider:      provider,
		contextWindow: config.ContextWindow,
		model:         config.Model,
		logger:        log.Named("compact"),
	}
}

// EstimateTokens estimates token usage of a history as total text
// length divided by CharsPerToken. All text-bearing content counts:
// message text, thinking, tool inputs, and tool result content.
func EstimateTokens(history []types.Message) int {
	chars := 0
	for _, msg := range history {
		chars += messageChars(msg)
	}
	return chars / CharsPerToken
}

func messageChars(msg types.Message) int {
	if len(msg.Blocks) == 0 {
		return len(msg.Content)
	}
	chars := 0
	for _, b := range msg.Blocks {
		chars += len(b.Text) + len(b.Content) + len(b.Name)
		if len(b.Input) > 0 {
			if raw, err := json.Marshal(b.Input); err == nil {
				chars += len(raw)
			}
		}
	}
	return chars
}

// Compact returns the history unchanged when it fits, otherwise the
// compacted form: KeepStart head messages, a synthetic user summary, a
// synthetic assistant acknowledgment, and KeepEnd tail messages. A
// 30-message input compacts to 13 messages.
//
// Summarization failure returns the original history; compaction never
// fails a turn.
func (c *Compactor) Compact(ctx context.Context, history []types.Message) ([]types.Message, bool) {
	estimate := EstimateTokens(history)
	threshold := int(ThresholdFraction * float64(c.contextWindow))
	if estimate < threshold {
		return history, false
	}
	if len(history) <= KeepStart+KeepEnd {
		return history, false
	}

	head := history[:KeepStart]
	middle := history[KeepStart : len(history)-KeepEnd]
	tail := history[len(history)-KeepEnd:]

	summary, err := c.summarize(ctx, middle)
	if err != nil {
		c.logger.Warn("summarization failed, keeping full history",
			zap.Int("messages", len(history)),
			zap.Int("estimated_tokens", estimate),
			zap.Error(err))
		return history, false
	}

	compacted := make([]types.Message, 0, KeepStart+2+KeepEnd)
	compacted = append(compacted, head...)
	compacted = append(compacted,
		types.TextMessage(types.RoleUser,
			fmt.Sprintf("[Conversation summary of %d earlier messages]\n%s", len(middle), summary)),
		types.TextMessage(types.RoleAssistant,
			"Understood. I'll use that summary as context for the rest of the conversation."),
	)
	compacted = append(compacted, tail...)

	c.logger.Info("history compacted",
		zap.Int("before", len(history)),
		zap.Int("after", len(compacted)),
		zap.Int("estimated_tokens", estimate))
	return compacted, true
}

// summarize runs one bounded model call over a rendered transcript of
// the middle messages.
func (c *Compactor) summarize(ctx context.Context, middle []types.Message) (string, error) {
	transcript := renderTranscript(middle)

	resp, err := llm.Complete(ctx, c.provider, llm.Request{
		Model:     c.model,
		System:    summarySystemPrompt,
		MaxTokens: SummaryMaxTokens,
		Messages: []types.Message{
			types.TextMessage(types.RoleUser,
				"Summarize the following conversation transcript:\n\n"+transcript),
		},
	})
	if err != nil {
		return "", err
	}
	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "", fmt.Errorf("summarizer returned empty content")
	}
	return summary, nil
}

// renderTranscript flattens messages into labeled plain text.
func renderTranscript(messages []types.Message) string {
	var sb strings.Builder
	for _, msg := range messages {
		sb.WriteString(msg.Role)
		sb.WriteString(": ")
		if len(msg.Blocks) == 0 {
			sb.WriteString(msg.Content)
		} else {
			for _, b := range msg.Blocks {
				switch b.Type {
				case types.BlockText, types.BlockThinking:
					sb.WriteString(b.Text)
				case types.BlockToolUse:
					input, _ := json.Marshal(b.Input)
					fmt.Fprintf(&sb, "[called tool %s with %s]", b.Name, string(input))
				case types.BlockToolResult:
					fmt.Fprintf(&sb, "[tool result: %s]", b.Content)
				}
				sb.WriteString(" ")
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
