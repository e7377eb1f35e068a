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
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubstitute(t *testing.T) {
	args := map[string]interface{}{
		"region":   "emea",
		"limit":    float64(5),
		"store_id": "spoofed",
	}

	tests := []struct {
		name     string
		template string
		want     string
	}{
		{"arg value", "https://api.example.com/{{region}}/orders", "https://api.example.com/emea/orders"},
		{"number", "limit={{limit}}", "limit=5"},
		{"store id from session", "store={{store_id}}", "store=store-3"},
		{"whitespace in braces", "store={{ store_id }}", "store=store-3"},
		{"secret left verbatim", "Bearer {{secret:api_token}}", "Bearer {{secret:api_token}}"},
		{"unknown left intact", "x={{nope}}", "x={{nope}}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, substitute(tt.template, args, "store-3"))
		})
	}
}

func httpDef(tmpl HTTPTemplate) ToolDefinition {
	return ToolDefinition{
		Name:    "webhook",
		Binding: Binding{Type: BindingHTTP, HTTP: &tmpl},
	}
}

func TestExecuteHTTPSuccess(t *testing.T) {
	var gotPath, gotBody, gotHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotHeader = r.Header.Get("X-Store")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"rows": [1, 2, 3]}`))
	}))
	defer srv.Close()

	e := NewExecutor(WithHTTPClient(srv.Client()))
	def := httpDef(HTTPTemplate{
		Method:  "POST",
		URL:     srv.URL + "/orders/{{region}}",
		Headers: map[string]string{"X-Store": "{{store_id}}"},
		Body:    `{"limit": {{limit}}}`,
	})

	res := e.Execute(context.Background(), def, map[string]interface{}{
		"region": "emea",
		"limit":  float64(10),
	}, "store-3")

	require.True(t, res.Success)
	assert.Equal(t, "/orders/emea", gotPath)
	assert.Equal(t, `{"limit": 10}`, gotBody)
	assert.Equal(t, "store-3", gotHeader)
	assert.Equal(t, map[string]interface{}{"rows": []interface{}{1.0, 2.0, 3.0}}, res.Data)
}

func TestExecuteHTTPPlainTextResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("plain output"))
	}))
	defer srv.Close()

	e := NewExecutor(WithHTTPClient(srv.Client()))
	res := e.Execute(context.Background(), httpDef(HTTPTemplate{URL: srv.URL}), nil, "s")

	require.True(t, res.Success)
	assert.Equal(t, "plain output", res.Data)
}

func TestExecuteHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantKind ErrorKind
	}{
		{"rate limited", http.StatusTooManyRequests, KindRateLimit},
		{"client error", http.StatusNotFound, KindFatal},
		{"server error", http.StatusBadGateway, KindRecoverable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("nope"))
			}))
			defer srv.Close()

			e := NewExecutor(WithHTTPClient(srv.Client()))
			res := e.Execute(context.Background(), httpDef(HTTPTemplate{URL: srv.URL}), nil, "s")

			require.False(t, res.Success)
			assert.Equal(t, tt.wantKind, res.ErrorKind)
		})
	}
}

func TestExecuteHTTPErrorBodyTruncated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(strings.Repeat("e", 4096)))
	}))
	defer srv.Close()

	e := NewExecutor(WithHTTPClient(srv.Client()))
	res := e.Execute(context.Background(), httpDef(HTTPTemplate{URL: srv.URL}), nil, "s")

	require.False(t, res.Success)
	// Message carries at most errorBodyLimit bytes of the body plus the
	// fixed prefix.
	assert.Less(t, len(res.Error.Message), errorBodyLimit+100)
}

func TestExecuteHTTPMissingURL(t *testing.T) {
	e := NewExecutor()
	res := e.Execute(context.Background(), httpDef(HTTPTemplate{}), nil, "s")

	require.False(t, res.Success)
	assert.Equal(t, KindFatal, res.ErrorKind)
	assert.Equal(t, "invalid_binding", res.Error.Code)
}

func TestExecuteHTTPConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	e := NewExecutor()
	res := e.Execute(context.Background(), httpDef(HTTPTemplate{URL: url}), nil, "s")

	require.False(t, res.Success)
	assert.Equal(t, KindRecoverable, res.ErrorKind)
	assert.True(t, res.Error.Retryable)
}

func TestHTTPRPCClient(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			b, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"procedure":"p.one","payload":{"store_id":"s1"}}`, string(b))
			_, _ = w.Write([]byte(`{"result": {"count": 2}}`))
		}))
		defer srv.Close()

		c := NewHTTPRPCClient(srv.URL, "tok")
		result, err := c.Call(context.Background(), "p.one", map[string]interface{}{"store_id": "s1"})
		require.NoError(t, err)
		assert.Equal(t, map[string]interface{}{"count": 2.0}, result)
	})

	t.Run("rate limited", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()

		c := NewHTTPRPCClient(srv.URL, "")
		_, err := c.Call(context.Background(), "p.one", nil)
		var rateErr *RateLimitError
		require.ErrorAs(t, err, &rateErr)
		assert.Equal(t, "p.one", rateErr.Procedure)
	})

	t.Run("platform error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error": "no such procedure"}`))
		}))
		defer srv.Close()

		c := NewHTTPRPCClient(srv.URL, "")
		_, err := c.Call(context.Background(), "p.missing", nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no such procedure")
	})
}

func TestHTTPQueryRunner(t *testing.T) {
	t.Run("rows decoded", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"query":"SELECT 1"}`, string(b))
			_, _ = w.Write([]byte(`{"rows": [{"n": 1}]}`))
		}))
		defer srv.Close()

		runner := NewHTTPQueryRunner(srv.URL, "")
		rows, err := runner.Query(context.Background(), "SELECT 1")
		require.NoError(t, err)
		assert.Equal(t, []interface{}{map[string]interface{}{"n": 1.0}}, rows)
	})

	t.Run("query error surfaced", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"error": "syntax error at line 1"}`))
		}))
		defer srv.Close()

		runner := NewHTTPQueryRunner(srv.URL, "")
		_, err := runner.Query(context.Background(), "SELEC 1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "syntax error")
	})
}
