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
package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/teradata-labs/weft/internal/log"
)

// DefaultTimeout bounds tool executions whose definition sets none.
const DefaultTimeout = 30 * time.Second

// Approver decides whether a RequiresApproval tool may run.
type Approver interface {
	Approve(ctx context.Context, def ToolDefinition, args map[string]interface{}) (bool, error)
}

// Executor dispatches tool calls to their binding backends, enforcing
// input validation and per-call deadlines. It never retries; retry
// policy belongs to the model loop above it.
type Executor struct {
	rpc        RPCClient
	query      QueryRunner
	httpClient *http.Client
	local      map[string]LocalHandler
	approver   Approver
	logger     *zap.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithRPCClient sets the procedure-call backend.
func WithRPCClient(rpc RPCClient) ExecutorOption {
	return func(e *Executor) { e.rpc = rpc }
}

// WithQueryRunner sets the sandboxed-query backend.
func WithQueryRunner(runner QueryRunner) ExecutorOption {
	return func(e *Executor) { e.query = runner }
}

// WithHTTPClient overrides the HTTP backend transport.
func WithHTTPClient(client *http.Client) ExecutorOption {
	return func(e *Executor) { e.httpClient = client }
}

// WithLocalHandlers replaces the local handler table.
func WithLocalHandlers(handlers map[string]LocalHandler) ExecutorOption {
	return func(e *Executor) { e.local = handlers }
}

// WithApprover sets the approver consulted for RequiresApproval tools.
// Without one, such tools are rejected.
func WithApprover(approver Approver) ExecutorOption {
	return func(e *Executor) { e.approver = approver }
}

// NewExecutor creates an executor. Backends left unset reject tools
// bound to them with a fatal error.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		local:      BuiltinHandlers(),
		logger:     log.Named("executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one tool call and always returns a result, never a Go
// error. The call is bounded by def.MaxExecutionTime (DefaultTimeout
// when unset): the backend runs in a goroutine racing the deadline, and
// a result arriving after the deadline is discarded, never awaited.
func (e *Executor) Execute(ctx context.Context, def ToolDefinition, args map[string]interface{}, storeID string) *Result {
	start := time.Now()
	finish := func(r *Result) *Result {
		r.DurationMs = time.Since(start).Milliseconds()
		return r
	}

	if def.RequiresApproval {
		if e.approver == nil {
			return finish(failure(KindRecoverable, "approval_required",
				fmt.Sprintf("tool %s requires approval and no approver is configured", def.Name)))
		}
		ok, err := e.approver.Approve(ctx, def, args)
		if err != nil {
			return finish(failure(KindRecoverable, "approval_failed", err.Error()))
		}
		if !ok {
			return finish(failure(KindRecoverable, "approval_denied",
				fmt.Sprintf("execution of tool %s was not approved", def.Name)))
		}
	}

	if err := ValidateInput(def, args); err != nil {
		return finish(failure(KindRecoverable, "invalid_input", err.Error()))
	}

	timeout := def.MaxExecutionTime
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan *Result, 1)
	go func() {
		resultCh <- e.dispatch(execCtx, def, args, storeID)
	}()

	select {
	case res := <-resultCh:
		return finish(res)
	case <-execCtx.Done():
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			e.logger.Warn("tool execution timed out",
				zap.String("tool", def.Name),
				zap.Duration("timeout", timeout))
			res := failure(KindTimeout, "timeout",
				fmt.Sprintf("tool %s exceeded its %s execution limit", def.Name, timeout))
			res.TimedOut = true
			return finish(res)
		}
		return finish(failure(KindRecoverable, "canceled", "tool execution canceled"))
	}
}

// dispatch routes the call to its binding backend.
func (e *Executor) dispatch(ctx context.Context, def ToolDefinition, args map[string]interface{}, storeID string) *Result {
	switch def.Binding.Type {
	case BindingProcedure:
		return e.executeProcedure(ctx, def, args, storeID)
	case BindingHTTP:
		return e.executeHTTP(ctx, def, args, storeID)
	case BindingQuery:
		return e.executeQuery(ctx, def, args, storeID)
	case BindingLocal:
		return e.executeLocal(ctx, def, args, storeID)
	default:
		return failure(KindFatal, "unknown_binding",
			fmt.Sprintf("tool %s has unsupported binding type %q", def.Name, def.Binding.Type))
	}
}

// executeProcedure calls the named platform procedure. The store id
// always comes from the session; a caller-supplied value is overridden.
func (e *Executor) executeProcedure(ctx context.Context, def ToolDefinition, args map[string]interface{}, storeID string) *Result {
	if e.rpc == nil {
		return failure(KindFatal, "no_rpc_client",
			fmt.Sprintf("tool %s is procedure-bound but no RPC client is configured", def.Name))
	}

	payload := make(map[string]interface{}, len(args)+1)
	for k, v := range args {
		payload[k] = v
	}
	payload["store_id"] = storeID

	data, err := e.rpc.Call(ctx, def.Binding.Procedure, payload)
	if err != nil {
		kind := KindRecoverable
		var rateErr *RateLimitError
		if errors.As(err, &rateErr) {
			kind = KindRateLimit
		}
		return failure(kind, "procedure_failed",
			fmt.Sprintf("procedure %s failed: %v", def.Binding.Procedure, err))
	}
	return &Result{Success: true, Data: data}
}

// executeLocal dispatches to an in-process handler by tag.
func (e *Executor) executeLocal(ctx context.Context, def ToolDefinition, args map[string]interface{}, storeID string) *Result {
	handler, ok := e.local[def.Binding.LocalTag]
	if !ok {
		return failure(KindFatal, "unknown_handler",
			fmt.Sprintf("tool %s references unknown local handler %q", def.Name, def.Binding.LocalTag))
	}
	data, err := handler(ctx, args, storeID)
	if err != nil {
		return failure(KindRecoverable, "handler_failed", err.Error())
	}
	return &Result{Success: true, Data: data}
}
