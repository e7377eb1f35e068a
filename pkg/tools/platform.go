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

// HTTPQueryRunner runs sandboxed queries against the platform's query
// gateway: POST {"query": "..."} returning {"rows": [...]} or
// {"error": "..."}.
type HTTPQueryRunner struct {
	endpoint   string
	authToken  string
	httpClient *http.Client
}

// NewHTTPQueryRunner creates a runner for the platform query endpoint.
func NewHTTPQueryRunner(endpoint, authToken string) *HTTPQueryRunner {
	return &HTTPQueryRunner{
		endpoint:   endpoint,
		authToken:  authToken,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	Rows  json.RawMessage `json:"rows"`
	Error string          `json:"error,omitempty"`
}

// Query performs the rendered query and decodes the row set.
func (r *HTTPQueryRunner) Query(ctx context.Context, query string) (interface{}, error) {
	body, err := json.Marshal(queryRequest{Query: query})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create query request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+r.authToken)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return nil, fmt.Errorf("query gateway returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var queryResp queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&queryResp); err != nil {
		return nil, fmt.Errorf("failed to decode query response: %w", err)
	}
	if queryResp.Error != "" {
		return nil, fmt.Errorf("query failed: %s", queryResp.Error)
	}

	var rows interface{}
	if len(queryResp.Rows) > 0 {
		if err := json.Unmarshal(queryResp.Rows, &rows); err != nil {
			return nil, fmt.Errorf("failed to decode query rows: %w", err)
		}
	}
	return rows, nil
}

// Ensure HTTPQueryRunner implements QueryRunner.
var _ QueryRunner = (*HTTPQueryRunner)(nil)
