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

// Package agent drives the multi-turn conversation loop: model calls,
// tool fan-out, budget enforcement, compaction, and telemetry.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/weft/internal/log"
	"github.com/teradata-labs/weft/pkg/compact"
	"github.com/teradata-labs/weft/pkg/llm"
	"github.com/teradata-labs/weft/pkg/observability"
	"github.com/teradata-labs/weft/pkg/pricing"
	"github.com/teradata-labs/weft/pkg/tools"
	"github.com/teradata-labs/weft/pkg/types"
)

// ToolResultMaxBytes caps how much of a tool result is fed back to the
// model. Full results stay available to backends; only the model
// feedback is truncated.
const ToolResultMaxBytes = 16 * 1024

const spanModelCall = "agent.model_call"

// ConversationStore is the persistence surface the engine writes
// through. Implemented by conversation.Store.
type ConversationStore interface {
	Create(ctx context.Context, conv types.Conversation) (types.Conversation, error)
	Get(ctx context.Context, id string) (types.Conversation, error)
	AppendUser(ctx context.Context, conversationID, text string) error
	AppendAssistant(ctx context.Context, conversationID string, msg types.Message) error
	AppendToolResults(ctx context.Context, conversationID string, blocks []types.ContentBlock) error
	LoadHistory(ctx context.Context, conversationID string) ([]types.Message, error)
}

// Request is one agent query.
type Request struct {
	// Prompt is the user's message.
	Prompt string

	// StoreID scopes the query to one tenant store.
	StoreID string

	// UserID attributes the conversation, optional.
	UserID string

	// ConversationID resumes an existing conversation. Empty or
	// unknown ids cause a fresh conversation to be created.
	ConversationID string

	// Config controls the loop.
	Config Config
}

// Engine runs agent queries. Safe for concurrent use; each query pins
// the registry snapshot it starts with.
type Engine struct {
	store     ConversationStore
	provider  llm.Provider
	executor  *tools.Executor
	registry  *tools.Registry
	compactor *compact.Compactor
	tracer    observability.Tracer
	counter   *TokenCounter
	logger    *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTracer sets the telemetry tracer (no-op by default).
func WithTracer(tracer observability.Tracer) EngineOption {
	return func(e *Engine) { e.tracer = tracer }
}

// WithCompactor enables history compaction.
func WithCompactor(c *compact.Compactor) EngineOption {
	return func(e *Engine) { e.compactor = c }
}

// NewEngine creates an engine over its collaborators.
func NewEngine(store ConversationStore, provider llm.Provider, executor *tools.Executor, registry *tools.Registry, opts ...EngineOption) *Engine {
	e := &Engine{
		store:    store,
		provider: provider,
		executor: executor,
		registry: registry,
		tracer:   observability.NewNoOpTracer(),
		counter:  GetTokenCounter(),
		logger:   log.Named("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Query starts one agent query and returns its event stream. The
// returned error covers configuration problems only; everything after
// that arrives as events. The channel closes after a terminal event
// (done, error, aborted).
func (e *Engine) Query(ctx context.Context, req Request) (<-chan Event, error) {
	cfg := req.Config.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid query config: %w", err)
	}
	if req.Prompt == "" {
		return nil, fmt.Errorf("invalid query config: prompt is empty")
	}

	events := make(chan Event, 64)
	go func() {
		defer close(events)
		e.run(ctx, req, cfg, events)
	}()
	return events, nil
}

func (e *Engine) run(ctx context.Context, req Request, cfg Config, events chan<- Event) {
	// Pin the tool catalog for the whole query; a concurrent Reload
	// never changes a loop in flight.
	snapshot := e.registry.Snapshot()
	defs := snapshot.All()
	if req.Config.EnabledTools != nil {
		defs = snapshot.Subset(req.Config.EnabledTools)
	}
	specs := tools.Specs(defs)

	model := cfg.Model
	if model == "" {
		model = e.provider.Model()
	}

	conv, created := e.resolveConversation(ctx, req)
	if created {
		events <- Event{Type: EventConversationCreated, ConversationID: conv.ID, StoreID: req.StoreID}
	}
	events <- Event{Type: EventStarted, ConversationID: conv.ID, StoreID: req.StoreID, Model: model}

	history, err := e.store.LoadHistory(ctx, conv.ID)
	if err != nil {
		// Persistence problems never abort a query.
		e.logger.Warn("failed to load history, continuing with empty context",
			zap.String("conversation_id", conv.ID), zap.Error(err))
		history = nil
	}

	if e.compactor != nil {
		history, _ = e.compactor.Compact(ctx, history)
	}

	userMsg := types.TextMessage(types.RoleUser, req.Prompt)
	if cfg.ConversationTokenBudget > 0 {
		estimate := compact.EstimateTokens(append(history[:len(history):len(history)], userMsg))
		switch {
		case estimate > cfg.ConversationTokenBudget:
			events <- Event{
				Type: EventError,
				Error: fmt.Sprintf("conversation token budget exceeded: estimated %d tokens, budget %d",
					estimate, cfg.ConversationTokenBudget),
				Recoverable: false,
			}
			return
		case float64(estimate) > cfg.BudgetWarningFraction*float64(cfg.ConversationTokenBudget):
			events <- Event{
				Type: EventWarning,
				Warning: fmt.Sprintf("conversation approaching token budget: estimated %d of %d tokens",
					estimate, cfg.ConversationTokenBudget),
			}
		}
	}

	if err := e.store.AppendUser(ctx, conv.ID, req.Prompt); err != nil {
		e.logger.Warn("failed to persist user message",
			zap.String("conversation_id", conv.ID), zap.Error(err))
	}
	history = append(history, userMsg)

	traceID := observability.NewTraceID()
	totals := types.TurnUsage{}

	for turn := 1; turn <= cfg.MaxTurns; turn++ {
		// Cancellation boundary: checked at the top of every
		// iteration, never mid-stream.
		select {
		case <-ctx.Done():
			events <- Event{Type: EventAborted, ConversationID: conv.ID}
			return
		default:
		}

		resp, turnUsage, err := e.callModel(ctx, req, conv, cfg, model, traceID, turn, history, specs, events)
		if err != nil {
			if ctx.Err() != nil {
				events <- Event{Type: EventAborted, ConversationID: conv.ID}
				return
			}
			kind := llm.Classify(err)
			events <- Event{
				Type:        EventError,
				Error:       fmt.Sprintf("model call failed: %v", err),
				Recoverable: kind.Recoverable(),
			}
			return
		}
		totals.Add(turnUsage)

		assistantMsg := assistantMessage(resp)
		history = append(history, assistantMsg)
		if err := e.store.AppendAssistant(ctx, conv.ID, assistantMsg); err != nil {
			e.logger.Warn("failed to persist assistant message",
				zap.String("conversation_id", conv.ID), zap.Error(err))
		}

		if len(resp.ToolCalls) == 0 {
			events <- Event{Type: EventDone, Status: StatusSuccess, ConversationID: conv.ID, Usage: &totals}
			return
		}

		resultBlocks := e.runTools(ctx, snapshot, resp.ToolCalls, req.StoreID, events)
		toolMsg := types.Message{Role: types.RoleToolResult, Blocks: resultBlocks}
		history = append(history, toolMsg)
		if err := e.store.AppendToolResults(ctx, conv.ID, resultBlocks); err != nil {
			e.logger.Warn("failed to persist tool results",
				zap.String("conversation_id", conv.ID), zap.Error(err))
		}
	}

	// Exhausting the turn bound is a normal terminal state.
	events <- Event{Type: EventDone, Status: StatusMaxTurns, ConversationID: conv.ID, Usage: &totals}
}

// resolveConversation loads the requested conversation or creates a
// fresh one. An unknown id is replaced silently with a new conversation
// rather than failing the query.
func (e *Engine) resolveConversation(ctx context.Context, req Request) (types.Conversation, bool) {
	if req.ConversationID != "" {
		conv, err := e.store.Get(ctx, req.ConversationID)
		if err == nil {
			return conv, false
		}
		e.logger.Warn("requested conversation unavailable, creating new",
			zap.String("conversation_id", req.ConversationID), zap.Error(err))
	}

	conv, err := e.store.Create(ctx, types.Conversation{
		StoreID: req.StoreID,
		UserID:  req.UserID,
	})
	if err != nil {
		// Run the query without persistence rather than failing it.
		e.logger.Error("failed to create conversation, running unpersisted", zap.Error(err))
		conv = types.Conversation{ID: "", StoreID: req.StoreID, UserID: req.UserID}
	}
	return conv, true
}

// callModel makes one model call, re-emitting stream deltas, and
// records exactly one telemetry span whether it succeeds or fails.
func (e *Engine) callModel(ctx context.Context, req Request, conv types.Conversation, cfg Config,
	model, traceID string, turn int, history []types.Message, specs []llm.ToolSpec,
	events chan<- Event) (*llm.Response, types.TurnUsage, error) {

	_, span := e.tracer.StartSpan(ctx, spanModelCall,
		observability.WithTraceID(traceID),
		observability.WithAttribute(observability.AttrModel, model),
		observability.WithAttribute(observability.AttrStoreID, req.StoreID),
		observability.WithAttribute(observability.AttrConversation, conv.ID),
		observability.WithAttribute(observability.AttrTurn, turn))
	defer e.tracer.EndSpan(span)

	start := time.Now()
	stream, err := e.provider.Stream(ctx, llm.Request{
		Model:     model,
		System:    cfg.SystemPrompt,
		MaxTokens: cfg.MaxTokensPerCall,
		Messages:  history,
		Tools:     specs,
	})
	if err != nil {
		span.RecordError(err, string(llm.Classify(err)))
		return nil, types.TurnUsage{}, err
	}

	var resp *llm.Response
	for ev := range stream {
		switch ev.Type {
		case llm.EventTextDelta:
			events <- Event{Type: EventText, Text: ev.Text}
		case llm.EventThinkingDelta:
			events <- Event{Type: EventThinking, Text: ev.Thinking}
		case llm.EventDone:
			resp = ev.Response
		case llm.EventError:
			span.RecordError(ev.Err, string(llm.Classify(ev.Err)))
			return nil, types.TurnUsage{}, ev.Err
		}
	}
	if resp == nil {
		err := ctx.Err()
		if err == nil {
			err = fmt.Errorf("model stream ended without a response")
		}
		span.RecordError(err, string(llm.Classify(err)))
		return nil, types.TurnUsage{}, err
	}

	turnUsage := types.TurnUsage{
		InputTokens:         resp.Usage.InputTokens,
		OutputTokens:        resp.Usage.OutputTokens,
		CacheReadTokens:     resp.Usage.CacheReadTokens,
		CacheCreationTokens: resp.Usage.CacheCreationTokens,
		CostUSD: pricing.Cost(model, resp.Usage.InputTokens, resp.Usage.OutputTokens,
			resp.Usage.CacheReadTokens, resp.Usage.CacheCreationTokens),
		StopReason: resp.StopReason,
		DurationMs: time.Since(start).Milliseconds(),
	}
	span.SetUsage(turnUsage)
	span.SetAttribute("llm.output_tokens_tokenizer", e.counter.CountTokens(resp.Content))
	span.SetOK()
	return resp, turnUsage, nil
}

// runTools executes the model's tool calls in order and returns the
// result blocks to feed back, truncated to the feedback cap.
func (e *Engine) runTools(ctx context.Context, snapshot *tools.Snapshot, calls []types.ToolCall,
	storeID string, events chan<- Event) []types.ContentBlock {

	blocks := make([]types.ContentBlock, 0, len(calls))
	for _, call := range calls {
		events <- Event{Type: EventToolStart, Tool: call.Name, ToolUseID: call.ID, ToolInput: call.Input}

		var res *tools.Result
		if def, ok := snapshot.Get(call.Name); ok {
			res = e.executor.Execute(ctx, def, call.Input, storeID)
		} else {
			res = &tools.Result{
				Success:   false,
				ErrorKind: tools.KindRecoverable,
				Error: &tools.Error{
					Code:      "unknown_tool",
					Message:   fmt.Sprintf("tool %q is not in the catalog", call.Name),
					Retryable: true,
				},
			}
		}

		text, truncated, actualLen := renderResult(res)
		events <- Event{Type: EventToolResult, ToolResult: &ToolResultEvent{
			ToolUseID:    call.ID,
			Tool:         call.Name,
			Success:      res.Success,
			Result:       text,
			IsTruncated:  truncated,
			ActualLength: actualLen,
			ErrorKind:    res.ErrorKind,
			Retryable:    res.ErrorKind.Retryable(),
			TimedOut:     res.TimedOut,
			DurationMs:   res.DurationMs,
		}}

		blocks = append(blocks, types.ContentBlock{
			Type:      types.BlockToolResult,
			ToolUseID: call.ID,
			Content:   text,
			IsError:   !res.Success,
		})
	}
	return blocks
}

// renderResult serializes a tool result for model feedback, truncating
// at ToolResultMaxBytes.
func renderResult(res *tools.Result) (text string, truncated bool, actualLen int) {
	if res.Success {
		switch data := res.Data.(type) {
		case string:
			text = data
		case nil:
			text = "(no output)"
		default:
			b, err := json.Marshal(data)
			if err != nil {
				text = fmt.Sprintf("%v", data)
			} else {
				text = string(b)
			}
		}
	} else {
		text = fmt.Sprintf("error (%s): %s", res.Error.Code, res.Error.Message)
	}

	actualLen = len(text)
	if actualLen > ToolResultMaxBytes {
		text = text[:ToolResultMaxBytes]
		truncated = true
	}
	return text, truncated, actualLen
}

// assistantMessage builds the persisted assistant message from a model
// response: text plus tool_use blocks, in that order.
func assistantMessage(resp *llm.Response) types.Message {
	msg := types.Message{Role: types.RoleAssistant, Content: resp.Content}
	if resp.Content != "" {
		msg.Blocks = append(msg.Blocks, types.ContentBlock{Type: types.BlockText, Text: resp.Content})
	}
	for _, call := range resp.ToolCalls {
		msg.Blocks = append(msg.Blocks, types.ContentBlock{
			Type:  types.BlockToolUse,
			ID:    call.ID,
			Name:  call.Name,
			Input: call.Input,
		})
	}
	return msg
}
