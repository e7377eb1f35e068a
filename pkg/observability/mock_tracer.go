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
	"sync"
	"time"
)

// RecordingTracer keeps ended spans in memory for test assertions.
type RecordingTracer struct {
	mu    sync.Mutex
	spans []*Span
}

// NewRecordingTracer creates an in-memory tracer for tests.
func NewRecordingTracer() *RecordingTracer {
	return &RecordingTracer{}
}

// StartSpan creates a span linked to any parent in the context.
func (t *RecordingTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	span := newSpan(ctx, name, opts...)
	return ContextWithSpan(ctx, span), span
}

// EndSpan completes the span and records it.
func (t *RecordingTracer) EndSpan(span *Span) {
	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = append(t.spans, span)
}

// Flush does nothing.
func (t *RecordingTracer) Flush(ctx context.Context) error {
	return nil
}

// Spans returns a copy of all ended spans, in end order.
func (t *RecordingTracer) Spans() []*Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Span, len(t.spans))
	copy(out, t.spans)
	return out
}

// SpansNamed returns ended spans with the given name.
func (t *RecordingTracer) SpansNamed(name string) []*Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*Span
	for _, s := range t.spans {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

// Ensure RecordingTracer implements Tracer interface.
var _ Tracer = (*RecordingTracer)(nil)
