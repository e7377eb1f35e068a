// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llm

import (
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindFatal},
		{"status 429", &APIError{StatusCode: 429}, KindRateLimit},
		{"rate limit type", &APIError{StatusCode: 400, Type: "rate_limit_error"}, KindRateLimit},
		{"status 529", &APIError{StatusCode: 529}, KindOverloaded},
		{"overloaded type", &APIError{StatusCode: 500, Type: "overloaded_error"}, KindOverloaded},
		{"auth failure", &APIError{StatusCode: 401, Type: "authentication_error"}, KindFatal},
		{"bad request", &APIError{StatusCode: 400, Type: "invalid_request_error"}, KindFatal},
		{"wrapped api error", fmt.Errorf("call failed: %w", &APIError{StatusCode: 429}), KindRateLimit},
		{"substring rate limit", fmt.Errorf("provider said: Rate Limit exceeded"), KindRateLimit},
		{"substring 429", fmt.Errorf("unexpected status 429"), KindRateLimit},
		{"substring overloaded", fmt.Errorf("upstream OVERLOADED, try later"), KindOverloaded},
		{"plain network error", fmt.Errorf("connection refused"), KindFatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestRecoverable(t *testing.T) {
	if !KindRateLimit.Recoverable() {
		t.Error("rate_limit must be recoverable")
	}
	if !KindOverloaded.Recoverable() {
		t.Error("overloaded must be recoverable")
	}
	if KindFatal.Recoverable() {
		t.Error("fatal must not be recoverable")
	}
}

func TestAPIErrorString(t *testing.T) {
	err := &APIError{StatusCode: 429, Type: "rate_limit_error", Message: "slow down"}
	want := "api error (status 429, type rate_limit_error): slow down"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}
