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

// Package observability provides tracing for weft agent queries.
//
// Every model call is instrumented as a span carrying token usage and
// cost. Spans are exported fire-and-forget: export failures are logged
// and never propagated to the caller.
//
// Example usage:
//
//	ctx, span := tracer.StartSpan(ctx, "agent.model_call")
//	defer tracer.EndSpan(span)
//	span.SetUsage(usage)
package observability

import (
	"time"

	"github.com/teradata-labs/weft/pkg/types"
)

// Common span attribute keys.
const (
	AttrErrorMessage = "error.message"
	AttrErrorKind    = "error.kind"
	AttrModel        = "llm.model"
	AttrStoreID      = "store.id"
	AttrConversation = "conversation.id"
	AttrTurn         = "agent.turn"
)

// StatusCode represents the final status of a span.
type StatusCode int

const (
	// StatusUnset indicates status was not explicitly set.
	StatusUnset StatusCode = iota
	// StatusOK indicates successful completion.
	StatusOK
	// StatusError indicates an error occurred.
	StatusError
)

func (s StatusCode) String() string {
	switch s {
	case StatusUnset:
		return "unset"
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Status represents the final status of a span with optional message.
type Status struct {
	Code    StatusCode
	Message string
}

// Span represents a unit of work with timing, usage, and metadata.
// Spans form a tree structure via ParentID references; all spans of one
// agent query share a TraceID.
type Span struct {
	// Identifiers. TraceID is 32 lowercase hex chars, SpanID is 16.
	TraceID  string
	SpanID   string
	ParentID string // empty for root

	// Name is the operation name (e.g., "agent.model_call").
	Name string

	// Attributes holds key-value metadata.
	Attributes map[string]interface{}

	// Usage carries per-call token accounting and derived cost.
	// Nil for spans that made no model call.
	Usage *types.TurnUsage

	// ErrorKind classifies the failure for failed spans
	// (rate_limit, overloaded, fatal, timeout).
	ErrorKind string

	// Timing
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration // Calculated on EndSpan

	Status Status
}

// SetAttribute sets a key-value attribute on the span.
func (s *Span) SetAttribute(key string, value interface{}) {
	if s.Attributes == nil {
		s.Attributes = make(map[string]interface{})
	}
	s.Attributes[key] = value
}

// SetUsage attaches token usage to the span.
func (s *Span) SetUsage(usage types.TurnUsage) {
	u := usage
	s.Usage = &u
}

// SetOK marks the span successful.
func (s *Span) SetOK() {
	s.Status = Status{Code: StatusOK}
}

// RecordError records an error on the span with its classification.
// Sets status to StatusError.
func (s *Span) RecordError(err error, kind string) {
	if err == nil {
		return
	}
	s.Status = Status{
		Code:    StatusError,
		Message: err.Error(),
	}
	s.ErrorKind = kind
	s.SetAttribute(AttrErrorMessage, err.Error())
	if kind != "" {
		s.SetAttribute(AttrErrorKind, kind)
	}
}

// SpanOption is a functional option for configuring spans.
type SpanOption func(*Span)

// WithAttribute returns a SpanOption that sets an attribute.
func WithAttribute(key string, value interface{}) SpanOption {
	return func(s *Span) {
		s.SetAttribute(key, value)
	}
}

// WithTraceID pins the span to an existing trace. Used by the agent
// loop so every model call of one query shares a trace.
func WithTraceID(traceID string) SpanOption {
	return func(s *Span) {
		s.TraceID = traceID
	}
}

// WithParentSpanID returns a SpanOption that explicitly sets the parent span ID.
func WithParentSpanID(parentID string) SpanOption {
	return func(s *Span) {
		s.ParentID = parentID
	}
}
