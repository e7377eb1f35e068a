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
	"io"
	"net/http"
	"regexp"
	"strings"
)

// errorBodyLimit caps how much of an error response body is carried
// into tool results.
const errorBodyLimit = 512

// placeholderRe matches {{name}} template placeholders.
var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_:.-]+)\s*\}\}`)

// executeHTTP renders the tool's request template and performs it.
func (e *Executor) executeHTTP(ctx context.Context, def ToolDefinition, args map[string]interface{}, storeID string) *Result {
	tmpl := def.Binding.HTTP
	if tmpl == nil || tmpl.URL == "" {
		return failure(KindFatal, "invalid_binding",
			fmt.Sprintf("tool %s has an http binding without a URL template", def.Name))
	}

	method := tmpl.Method
	if method == "" {
		method = http.MethodGet
	}

	url := substitute(tmpl.URL, args, storeID)
	var body io.Reader
	if tmpl.Body != "" {
		body = strings.NewReader(substitute(tmpl.Body, args, storeID))
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return failure(KindFatal, "invalid_request",
			fmt.Sprintf("tool %s produced an invalid request: %v", def.Name, err))
	}
	for name, value := range tmpl.Headers {
		req.Header.Set(name, substitute(value, args, storeID))
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return failure(KindRecoverable, "http_failed",
			fmt.Sprintf("request for tool %s failed: %v", def.Name, err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return failure(KindRateLimit, "http_rate_limited",
			fmt.Sprintf("tool %s was rate limited (status 429)", def.Name))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		kind := KindRecoverable
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			kind = KindFatal
		}
		return failure(kind, "http_error",
			fmt.Sprintf("tool %s returned status %d: %s", def.Name, resp.StatusCode, string(respBody)))
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return failure(KindRecoverable, "http_read_failed",
			fmt.Sprintf("failed to read response for tool %s: %v", def.Name, err))
	}

	// Decode JSON responses so downstream truncation sees structure;
	// anything else passes through as text.
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "application/json") {
		var data interface{}
		if err := json.Unmarshal(respBody, &data); err == nil {
			return &Result{Success: true, Data: data}
		}
	}
	return &Result{Success: true, Data: string(respBody)}
}

// substitute replaces {{name}} placeholders with argument values.
// {{store_id}} always resolves to the session's store id regardless of
// arguments. {{secret:*}} placeholders are left verbatim; secrets are
// resolved server-side by the platform gateway, never here.
func substitute(template string, args map[string]interface{}, storeID string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		name := strings.TrimSpace(strings.Trim(match, "{}"))
		if strings.HasPrefix(name, "secret:") {
			return match
		}
		if name == "store_id" {
			return storeID
		}
		if val, ok := args[name]; ok {
			return stringify(val)
		}
		return match
	})
}

// stringify renders an argument value for textual substitution.
func stringify(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	case float64, int, int64, bool:
		return fmt.Sprintf("%v", val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}
