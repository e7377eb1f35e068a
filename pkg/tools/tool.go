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

// Package tools holds the tool catalog and the executor that dispatches
// tool calls to their backends: platform procedure calls, templated HTTP
// requests, sandboxed read queries, and in-process local handlers.
package tools

import (
	"encoding/json"
	"time"
)

// BindingType selects the execution backend of a tool.
type BindingType string

const (
	// BindingProcedure calls a named procedure on the data platform RPC
	// surface.
	BindingProcedure BindingType = "procedure"

	// BindingHTTP renders an HTTP request template and performs it.
	BindingHTTP BindingType = "http"

	// BindingQuery renders a sandboxed query template and runs it
	// through the injected QueryRunner.
	BindingQuery BindingType = "query"

	// BindingLocal dispatches to an in-process handler by tag.
	BindingLocal BindingType = "local"
)

// HTTPTemplate is a request template with {{name}} placeholders.
type HTTPTemplate struct {
	// Method is the HTTP method, GET when empty.
	Method string `json:"method,omitempty"`

	// URL is the request URL template.
	URL string `json:"url"`

	// Headers are header templates keyed by header name.
	Headers map[string]string `json:"headers,omitempty"`

	// Body is the request body template, empty for body-less methods.
	Body string `json:"body,omitempty"`
}

// Binding describes how a tool executes. Exactly one payload field is
// meaningful, selected by Type.
type Binding struct {
	Type BindingType `json:"type"`

	// Procedure names the platform procedure (BindingProcedure).
	Procedure string `json:"procedure,omitempty"`

	// HTTP is the request template (BindingHTTP).
	HTTP *HTTPTemplate `json:"http,omitempty"`

	// Query is the SQL template (BindingQuery).
	Query string `json:"query,omitempty"`

	// LocalTag names the in-process handler (BindingLocal).
	LocalTag string `json:"local_tag,omitempty"`
}

// ToolDefinition describes one tool in the catalog.
type ToolDefinition struct {
	// Name is the unique tool name exposed to the model.
	Name string `json:"name"`

	// Description tells the model when to use the tool.
	Description string `json:"description"`

	// InputSchema is a JSON Schema document validating tool input.
	InputSchema json.RawMessage `json:"input_schema,omitempty"`

	// Binding selects and configures the execution backend.
	Binding Binding `json:"binding"`

	// IsReadOnly marks tools that must not mutate platform state.
	// Query bindings with this flag get a leading-keyword guard.
	IsReadOnly bool `json:"is_read_only,omitempty"`

	// RequiresApproval marks tools needing human sign-off before
	// execution.
	RequiresApproval bool `json:"requires_approval,omitempty"`

	// MaxExecutionTime bounds one execution. Zero means the executor
	// default.
	MaxExecutionTime time.Duration `json:"max_execution_time,omitempty"`
}

// ErrorKind classifies a tool execution failure.
type ErrorKind string

const (
	// KindRecoverable means the same call could succeed if retried or
	// reformulated (validation failures, transient backend errors).
	KindRecoverable ErrorKind = "recoverable"

	// KindRateLimit means the backend throttled the call.
	KindRateLimit ErrorKind = "rate_limit"

	// KindFatal means retrying is pointless (misconfigured binding,
	// unknown handler).
	KindFatal ErrorKind = "fatal"

	// KindTimeout means the execution deadline elapsed.
	KindTimeout ErrorKind = "timeout"
)

// Retryable reports whether the model may reasonably try again.
func (k ErrorKind) Retryable() bool {
	return k == KindRecoverable || k == KindRateLimit
}

// Error carries structured failure information inside a result.
// Tool-level failures are values, not Go errors: the loop feeds them
// back to the model rather than aborting the query.
type Error struct {
	// Code is a machine-readable error code.
	Code string `json:"code"`

	// Message is a human-readable error message.
	Message string `json:"message"`

	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable,omitempty"`
}

// Result represents the outcome of one tool execution.
type Result struct {
	// Success indicates if the tool executed successfully.
	Success bool `json:"success"`

	// Data contains the result data (format varies by tool).
	Data interface{} `json:"data,omitempty"`

	// Error contains failure information when Success is false.
	Error *Error `json:"error,omitempty"`

	// ErrorKind classifies the failure when Success is false.
	ErrorKind ErrorKind `json:"error_kind,omitempty"`

	// TimedOut is set when the execution deadline elapsed.
	TimedOut bool `json:"timed_out,omitempty"`

	// DurationMs is wall-clock execution time in milliseconds.
	DurationMs int64 `json:"duration_ms"`
}

// failure builds an error result.
func failure(kind ErrorKind, code, message string) *Result {
	return &Result{
		Success:   false,
		ErrorKind: kind,
		Error: &Error{
			Code:      code,
			Message:   message,
			Retryable: kind.Retryable(),
		},
	}
}
