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
package observability

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/weft/pkg/types"
)

var (
	traceIDRe = regexp.MustCompile(`^[0-9a-f]{32}$`)
	spanIDRe  = regexp.MustCompile(`^[0-9a-f]{16}$`)
)

func TestIDShapes(t *testing.T) {
	for i := 0; i < 100; i++ {
		assert.Regexp(t, traceIDRe, NewTraceID())
		assert.Regexp(t, spanIDRe, NewSpanID())
	}
}

func TestIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewTraceID()
		require.False(t, seen[id], "duplicate trace id %s", id)
		seen[id] = true
	}
}

func TestSpanLifecycle(t *testing.T) {
	tracer := NewRecordingTracer()

	_, span := tracer.StartSpan(context.Background(), "agent.model_call",
		WithAttribute(AttrModel, "claude-sonnet-4-20250514"),
		WithAttribute(AttrTurn, 3))
	span.SetUsage(types.TurnUsage{InputTokens: 100, OutputTokens: 20, CostUSD: 0.0006})
	span.SetOK()
	tracer.EndSpan(span)

	spans := tracer.SpansNamed("agent.model_call")
	require.Len(t, spans, 1)

	got := spans[0]
	assert.Regexp(t, traceIDRe, got.TraceID)
	assert.Regexp(t, spanIDRe, got.SpanID)
	assert.Equal(t, StatusOK, got.Status.Code)
	assert.Equal(t, "claude-sonnet-4-20250514", got.Attributes[AttrModel])
	assert.Equal(t, 3, got.Attributes[AttrTurn])
	require.NotNil(t, got.Usage)
	assert.Equal(t, 100, got.Usage.InputTokens)
	assert.False(t, got.EndTime.IsZero())
}

func TestSpanRecordError(t *testing.T) {
	tracer := NewRecordingTracer()

	_, span := tracer.StartSpan(context.Background(), "agent.model_call")
	span.RecordError(fmt.Errorf("throttled"), "rate_limit")
	tracer.EndSpan(span)

	got := tracer.Spans()[0]
	assert.Equal(t, StatusError, got.Status.Code)
	assert.Equal(t, "rate_limit", got.ErrorKind)
	assert.Equal(t, "throttled", got.Attributes[AttrErrorMessage])
}

func TestSpanParentLinking(t *testing.T) {
	tracer := NewRecordingTracer()

	ctx, parent := tracer.StartSpan(context.Background(), "outer")
	_, child := tracer.StartSpan(ctx, "inner")

	assert.Equal(t, parent.TraceID, child.TraceID)
	assert.Equal(t, parent.SpanID, child.ParentID)
}

func TestWithTraceIDPinsTrace(t *testing.T) {
	tracer := NewRecordingTracer()

	ctx, _ := tracer.StartSpan(context.Background(), "outer")
	pinned := NewTraceID()
	_, span := tracer.StartSpan(ctx, "inner", WithTraceID(pinned))

	// An explicitly pinned trace id is never overridden by the context
	// parent.
	assert.Equal(t, pinned, span.TraceID)
	assert.Empty(t, span.ParentID)
}

func TestNoOpTracer(t *testing.T) {
	tracer := NewNoOpTracer()
	ctx, span := tracer.StartSpan(context.Background(), "anything")
	require.NotNil(t, span)
	span.SetOK()
	tracer.EndSpan(span)
	assert.NoError(t, tracer.Flush(ctx))
}

func TestSpanFromContext(t *testing.T) {
	assert.Nil(t, SpanFromContext(context.Background()))

	tracer := NewRecordingTracer()
	ctx, span := tracer.StartSpan(context.Background(), "s")
	assert.Same(t, span, SpanFromContext(ctx))
}
