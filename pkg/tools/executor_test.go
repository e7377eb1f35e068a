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
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRPC records the last procedure call.
type fakeRPC struct {
	lastProcedure string
	lastPayload   map[string]interface{}
	result        interface{}
	err           error
}

func (f *fakeRPC) Call(ctx context.Context, procedure string, payload map[string]interface{}) (interface{}, error) {
	f.lastProcedure = procedure
	f.lastPayload = payload
	return f.result, f.err
}

type staticApprover bool

func (a staticApprover) Approve(ctx context.Context, def ToolDefinition, args map[string]interface{}) (bool, error) {
	return bool(a), nil
}

func localDef(name, tag string) ToolDefinition {
	return ToolDefinition{
		Name:    name,
		Binding: Binding{Type: BindingLocal, LocalTag: tag},
	}
}

func TestExecuteTimeout(t *testing.T) {
	slow := map[string]LocalHandler{
		"sleep": func(ctx context.Context, args map[string]interface{}, storeID string) (interface{}, error) {
			select {
			case <-time.After(5 * time.Second):
				return "done", nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	}
	e := NewExecutor(WithLocalHandlers(slow))

	def := localDef("sleepy", "sleep")
	def.MaxExecutionTime = 50 * time.Millisecond

	start := time.Now()
	res := e.Execute(context.Background(), def, nil, "s")

	require.False(t, res.Success)
	assert.Equal(t, KindTimeout, res.ErrorKind)
	assert.True(t, res.TimedOut)
	assert.False(t, res.Error.Retryable)
	assert.Less(t, time.Since(start), 2*time.Second, "must not wait for the slow handler")
}

func TestExecuteCancellation(t *testing.T) {
	blocking := map[string]LocalHandler{
		"block": func(ctx context.Context, args map[string]interface{}, storeID string) (interface{}, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	e := NewExecutor(WithLocalHandlers(blocking))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	res := e.Execute(ctx, localDef("blocker", "block"), nil, "s")

	require.False(t, res.Success)
	assert.Equal(t, KindRecoverable, res.ErrorKind)
	assert.Equal(t, "canceled", res.Error.Code)
	assert.False(t, res.TimedOut)
}

func TestExecuteValidatesInput(t *testing.T) {
	e := NewExecutor()

	def := localDef("reader", "read_file")
	def.InputSchema = json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`)

	res := e.Execute(context.Background(), def, map[string]interface{}{}, "s")

	require.False(t, res.Success)
	assert.Equal(t, KindRecoverable, res.ErrorKind)
	assert.Equal(t, "invalid_input", res.Error.Code)
	assert.True(t, res.Error.Retryable)
}

func TestExecuteApproval(t *testing.T) {
	handlers := map[string]LocalHandler{
		"noop": func(ctx context.Context, args map[string]interface{}, storeID string) (interface{}, error) {
			return "ran", nil
		},
	}

	def := localDef("danger", "noop")
	def.RequiresApproval = true

	t.Run("no approver", func(t *testing.T) {
		e := NewExecutor(WithLocalHandlers(handlers))
		res := e.Execute(context.Background(), def, nil, "s")
		require.False(t, res.Success)
		assert.Equal(t, "approval_required", res.Error.Code)
	})

	t.Run("denied", func(t *testing.T) {
		e := NewExecutor(WithLocalHandlers(handlers), WithApprover(staticApprover(false)))
		res := e.Execute(context.Background(), def, nil, "s")
		require.False(t, res.Success)
		assert.Equal(t, "approval_denied", res.Error.Code)
	})

	t.Run("approved", func(t *testing.T) {
		e := NewExecutor(WithLocalHandlers(handlers), WithApprover(staticApprover(true)))
		res := e.Execute(context.Background(), def, nil, "s")
		require.True(t, res.Success)
		assert.Equal(t, "ran", res.Data)
	})
}

func TestExecuteProcedureInjectsStoreID(t *testing.T) {
	rpc := &fakeRPC{result: map[string]interface{}{"ok": true}}
	e := NewExecutor(WithRPCClient(rpc))

	def := ToolDefinition{
		Name:    "list_tables",
		Binding: Binding{Type: BindingProcedure, Procedure: "catalog.list_tables"},
	}
	args := map[string]interface{}{"schema": "sales", "store_id": "spoofed"}
	res := e.Execute(context.Background(), def, args, "store-9")

	require.True(t, res.Success)
	assert.Equal(t, "catalog.list_tables", rpc.lastProcedure)
	assert.Equal(t, "store-9", rpc.lastPayload["store_id"], "session store id must override caller args")
	assert.Equal(t, "sales", rpc.lastPayload["schema"])
	// The caller's map is left untouched.
	assert.Equal(t, "spoofed", args["store_id"])
}

func TestExecuteProcedureRateLimit(t *testing.T) {
	rpc := &fakeRPC{err: &RateLimitError{Procedure: "catalog.list_tables"}}
	e := NewExecutor(WithRPCClient(rpc))

	def := ToolDefinition{
		Name:    "list_tables",
		Binding: Binding{Type: BindingProcedure, Procedure: "catalog.list_tables"},
	}
	res := e.Execute(context.Background(), def, nil, "s")

	require.False(t, res.Success)
	assert.Equal(t, KindRateLimit, res.ErrorKind)
	assert.True(t, res.Error.Retryable)
}

func TestExecuteProcedureNoClient(t *testing.T) {
	e := NewExecutor()

	def := ToolDefinition{
		Name:    "p",
		Binding: Binding{Type: BindingProcedure, Procedure: "x"},
	}
	res := e.Execute(context.Background(), def, nil, "s")

	require.False(t, res.Success)
	assert.Equal(t, KindFatal, res.ErrorKind)
}

func TestExecuteUnknownBinding(t *testing.T) {
	e := NewExecutor()

	res := e.Execute(context.Background(), ToolDefinition{
		Name:    "weird",
		Binding: Binding{Type: "grpc"},
	}, nil, "s")

	require.False(t, res.Success)
	assert.Equal(t, KindFatal, res.ErrorKind)
	assert.Equal(t, "unknown_binding", res.Error.Code)
}

func TestExecuteUnknownLocalHandler(t *testing.T) {
	e := NewExecutor(WithLocalHandlers(map[string]LocalHandler{}))

	res := e.Execute(context.Background(), localDef("ghost", "missing"), nil, "s")

	require.False(t, res.Success)
	assert.Equal(t, KindFatal, res.ErrorKind)
	assert.Equal(t, "unknown_handler", res.Error.Code)
}

func TestExecuteLocalHandlerError(t *testing.T) {
	handlers := map[string]LocalHandler{
		"fail": func(ctx context.Context, args map[string]interface{}, storeID string) (interface{}, error) {
			return nil, fmt.Errorf("disk full")
		},
	}
	e := NewExecutor(WithLocalHandlers(handlers))

	res := e.Execute(context.Background(), localDef("f", "fail"), nil, "s")

	require.False(t, res.Success)
	assert.Equal(t, KindRecoverable, res.ErrorKind)
	assert.Contains(t, res.Error.Message, "disk full")
}

func TestExecuteRecordsDuration(t *testing.T) {
	handlers := map[string]LocalHandler{
		"ok": func(ctx context.Context, args map[string]interface{}, storeID string) (interface{}, error) {
			return nil, nil
		},
	}
	e := NewExecutor(WithLocalHandlers(handlers))

	res := e.Execute(context.Background(), localDef("ok", "ok"), nil, "s")

	require.True(t, res.Success)
	assert.GreaterOrEqual(t, res.DurationMs, int64(0))
}

func TestErrorKindRetryable(t *testing.T) {
	assert.True(t, KindRecoverable.Retryable())
	assert.True(t, KindRateLimit.Retryable())
	assert.False(t, KindFatal.Retryable())
	assert.False(t, KindTimeout.Retryable())
}

func TestValidateInput(t *testing.T) {
	schema := json.RawMessage(`{
		"type": "object",
		"properties": {
			"path": {"type": "string"},
			"limit": {"type": "integer"}
		},
		"required": ["path"]
	}`)
	def := ToolDefinition{Name: "t", InputSchema: schema}

	assert.NoError(t, ValidateInput(def, map[string]interface{}{"path": "/tmp/x"}))
	assert.NoError(t, ValidateInput(ToolDefinition{Name: "open"}, map[string]interface{}{"anything": 1}))

	assert.Error(t, ValidateInput(def, map[string]interface{}{}))
	assert.Error(t, ValidateInput(def, map[string]interface{}{"path": 42}))
	assert.Error(t, ValidateInput(def, map[string]interface{}{"path": "/x", "limit": "ten"}))
	assert.Error(t, ValidateInput(def, nil))
}
