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
	"strings"
)

// QueryRunner executes rendered queries against the hosted data
// platform's sandboxed query surface. The textual substitution below is
// a compatibility requirement of that surface; isolating it behind this
// interface lets a parameter-binding implementation replace it without
// touching the executor.
type QueryRunner interface {
	Query(ctx context.Context, query string) (interface{}, error)
}

// executeQuery renders the tool's query template and runs it.
func (e *Executor) executeQuery(ctx context.Context, def ToolDefinition, args map[string]interface{}, storeID string) *Result {
	if e.query == nil {
		return failure(KindFatal, "no_query_runner",
			fmt.Sprintf("tool %s is query-bound but no query runner is configured", def.Name))
	}
	if def.Binding.Query == "" {
		return failure(KindFatal, "invalid_binding",
			fmt.Sprintf("tool %s has a query binding without a template", def.Name))
	}

	if def.IsReadOnly {
		if err := guardReadOnly(def.Binding.Query); err != nil {
			return failure(KindFatal, "not_read_only", err.Error())
		}
	}

	rendered := renderQuery(def.Binding.Query, args, storeID)

	data, err := e.query.Query(ctx, rendered)
	if err != nil {
		return failure(KindRecoverable, "query_failed",
			fmt.Sprintf("query for tool %s failed: %v", def.Name, err))
	}
	return &Result{Success: true, Data: data}
}

// guardReadOnly rejects templates whose leading statement keyword is not
// SELECT. The check is case-insensitive and skips SQL comments, so
// "-- note\nDELETE ..." and "dElEtE ..." both fail.
func guardReadOnly(template string) error {
	keyword := leadingKeyword(template)
	if keyword != "SELECT" {
		return fmt.Errorf("read-only tool may only run SELECT statements, got %q", keyword)
	}
	return nil
}

// leadingKeyword extracts the first SQL keyword, skipping whitespace and
// line/block comments.
func leadingKeyword(query string) string {
	s := strings.TrimSpace(query)
	for {
		switch {
		case strings.HasPrefix(s, "--"):
			idx := strings.IndexByte(s, '\n')
			if idx < 0 {
				return ""
			}
			s = strings.TrimSpace(s[idx+1:])
		case strings.HasPrefix(s, "/*"):
			idx := strings.Index(s, "*/")
			if idx < 0 {
				return ""
			}
			s = strings.TrimSpace(s[idx+2:])
		default:
			fields := strings.Fields(s)
			if len(fields) == 0 {
				return ""
			}
			return strings.ToUpper(strings.Trim(fields[0], "(;"))
		}
	}
}

// renderQuery substitutes {{name}} placeholders into the query template
// with type-aware quoting. The store_id placeholder always resolves to
// the session's store id; an args entry of the same name is ignored.
func renderQuery(template string, args map[string]interface{}, storeID string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		name := strings.TrimSpace(strings.Trim(match, "{}"))
		if strings.HasPrefix(name, "secret:") {
			return match
		}
		if name == "store_id" {
			return quoteSQL(storeID)
		}
		if val, ok := args[name]; ok {
			return sqlLiteral(val)
		}
		return match
	})
}

// sqlLiteral renders one argument value as a SQL literal: strings are
// quoted with embedded quotes doubled, numbers pass through, booleans
// and null become their keywords.
func sqlLiteral(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case bool:
		if val {
			return "TRUE"
		}
		return "FALSE"
	case float64:
		// JSON numbers decode as float64; render integral values
		// without a fractional part.
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%g", val)
	case int:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	case string:
		return quoteSQL(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return quoteSQL(fmt.Sprintf("%v", val))
		}
		return quoteSQL(string(b))
	}
}

// quoteSQL single-quotes a string, doubling embedded quotes.
func quoteSQL(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
