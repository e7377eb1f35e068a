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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RPCClient calls named procedures on the hosted data platform.
type RPCClient interface {
	Call(ctx context.Context, procedure string, payload map[string]interface{}) (interface{}, error)
}

// RateLimitError signals the platform throttled the call.
type RateLimitError struct {
	Procedure string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("procedure %s rate limited", e.Procedure)
}

// HTTPRPCClient is an RPCClient speaking JSON over HTTP POST:
// {"procedure": "...", "payload": {...}} against a single endpoint.
type HTTPRPCClient struct {
	endpoint   string
	authToken  string
	httpClient *http.Client
}

// NewHTTPRPCClient creates a client for the platform RPC endpoint.
func NewHTTPRPCClient(endpoint, authToken string) *HTTPRPCClient {
	return &HTTPRPCClient{
		endpoint:   endpoint,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type rpcRequest struct {
	Procedure string                 `json:"procedure"`
	Payload   map[string]interface{} `json:"payload"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error,omitempty"`
}

// Call performs the procedure call and decodes the result.
func (c *HTTPRPCClient) Call(ctx context.Context, procedure string, payload map[string]interface{}) (interface{}, error) {
	body, err := json.Marshal(rpcRequest{Procedure: procedure, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rpc call failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{Procedure: procedure}
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return nil, fmt.Errorf("rpc call returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("failed to decode rpc response: %w", err)
	}
	if rpcResp.Error != "" {
		return nil, fmt.Errorf("procedure %s failed: %s", procedure, rpcResp.Error)
	}

	var result interface{}
	if len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, &result); err != nil {
			return nil, fmt.Errorf("failed to decode rpc result: %w", err)
		}
	}
	return result, nil
}
