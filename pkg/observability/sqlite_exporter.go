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
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/weft/internal/log"
)

const auditLogSchema = `
CREATE TABLE IF NOT EXISTS agent_audit_log (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trace_id TEXT NOT NULL,
	span_id TEXT NOT NULL,
	parent_span_id TEXT,
	name TEXT NOT NULL,
	status TEXT NOT NULL,
	status_message TEXT,
	error_kind TEXT,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	cache_read_tokens INTEGER NOT NULL DEFAULT 0,
	cache_creation_tokens INTEGER NOT NULL DEFAULT 0,
	cost_usd REAL NOT NULL DEFAULT 0,
	stop_reason TEXT,
	attributes_json TEXT,
	started_at TIMESTAMP NOT NULL,
	ended_at TIMESTAMP NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_audit_trace ON agent_audit_log(trace_id);
CREATE INDEX IF NOT EXISTS idx_audit_started ON agent_audit_log(started_at);
`

// SQLiteTracer exports spans to the agent_audit_log table.
//
// Export is asynchronous: EndSpan queues the span on a buffered channel
// and returns immediately. A single writer goroutine drains the queue.
// When the queue is full or a write fails the span is dropped and the
// failure logged; telemetry never blocks or fails an agent query.
type SQLiteTracer struct {
	db     *sql.DB
	logger *zap.Logger
	queue  chan *Span
	flush  chan chan struct{}
	done   chan struct{}
}

// NewSQLiteTracer creates a tracer writing to the given database handle.
// The handle is shared with the conversation store; the tracer creates
// its own table and owns no connection lifecycle.
func NewSQLiteTracer(db *sql.DB) (*SQLiteTracer, error) {
	if _, err := db.Exec(auditLogSchema); err != nil {
		return nil, fmt.Errorf("failed to create audit log schema: %w", err)
	}

	t := &SQLiteTracer{
		db:     db,
		logger: log.Named("tracer"),
		queue:  make(chan *Span, 256),
		flush:  make(chan chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go t.writeLoop()
	return t, nil
}

// StartSpan creates a new span linked to any parent in the context.
func (t *SQLiteTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	span := newSpan(ctx, name, opts...)
	return ContextWithSpan(ctx, span), span
}

// EndSpan completes the span and queues it for export. Never blocks:
// if the queue is full the span is dropped with a log line.
func (t *SQLiteTracer) EndSpan(span *Span) {
	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)

	select {
	case t.queue <- span:
	default:
		t.logger.Warn("span queue full, dropping span",
			zap.String("trace_id", span.TraceID),
			zap.String("span", span.Name))
	}
}

// Flush blocks until all queued spans are written or ctx expires.
func (t *SQLiteTracer) Flush(ctx context.Context) error {
	ack := make(chan struct{})
	select {
	case t.flush <- ack:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-ack:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes outstanding spans and stops the writer goroutine.
func (t *SQLiteTracer) Close(ctx context.Context) error {
	err := t.Flush(ctx)
	close(t.done)
	return err
}

func (t *SQLiteTracer) writeLoop() {
	for {
		select {
		case span := <-t.queue:
			t.write(span)
		case ack := <-t.flush:
			t.drain()
			close(ack)
		case <-t.done:
			return
		}
	}
}

// drain writes everything currently queued.
func (t *SQLiteTracer) drain() {
	for {
		select {
		case span := <-t.queue:
			t.write(span)
		default:
			return
		}
	}
}

func (t *SQLiteTracer) write(span *Span) {
	var attrsJSON []byte
	if len(span.Attributes) > 0 {
		attrsJSON, _ = json.Marshal(span.Attributes)
	}

	var inputTokens, outputTokens, cacheRead, cacheCreation int
	var costUSD float64
	var stopReason string
	if span.Usage != nil {
		inputTokens = span.Usage.InputTokens
		outputTokens = span.Usage.OutputTokens
		cacheRead = span.Usage.CacheReadTokens
		cacheCreation = span.Usage.CacheCreationTokens
		costUSD = span.Usage.CostUSD
		stopReason = span.Usage.StopReason
	}

	_, err := t.db.Exec(`
		INSERT INTO agent_audit_log (
			trace_id, span_id, parent_span_id, name, status, status_message,
			error_kind, input_tokens, output_tokens, cache_read_tokens,
			cache_creation_tokens, cost_usd, stop_reason, attributes_json,
			started_at, ended_at, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		span.TraceID, span.SpanID, nullable(span.ParentID), span.Name,
		span.Status.Code.String(), nullable(span.Status.Message),
		nullable(span.ErrorKind), inputTokens, outputTokens, cacheRead,
		cacheCreation, costUSD, nullable(stopReason), nullable(string(attrsJSON)),
		span.StartTime, span.EndTime, span.Duration.Milliseconds(),
	)
	if err != nil {
		t.logger.Warn("failed to export span",
			zap.String("trace_id", span.TraceID),
			zap.String("span", span.Name),
			zap.Error(err))
	}
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Ensure SQLiteTracer implements Tracer interface.
var _ Tracer = (*SQLiteTracer)(nil)
