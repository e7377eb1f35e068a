// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llm

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies a provider failure for retry decisions upstream.
type ErrorKind string

const (
	// KindRateLimit means the provider throttled the request (HTTP 429).
	KindRateLimit ErrorKind = "rate_limit"

	// KindOverloaded means the provider is shedding load (HTTP 529).
	KindOverloaded ErrorKind = "overloaded"

	// KindFatal covers everything else: auth, bad request, network.
	KindFatal ErrorKind = "fatal"
)

// Recoverable reports whether a retry of the same request could succeed.
func (k ErrorKind) Recoverable() bool {
	return k == KindRateLimit || k == KindOverloaded
}

// APIError is a non-2xx response from the provider API.
type APIError struct {
	// StatusCode is the HTTP status.
	StatusCode int

	// Type is the provider error type ("rate_limit_error",
	// "overloaded_error", "invalid_request_error", ...).
	Type string

	// Message is the provider error message.
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d, type %s): %s", e.StatusCode, e.Type, e.Message)
}

// Classify maps an error to its ErrorKind. Structured APIErrors are
// classified by status and type; anything else falls back to substring
// matching so wrapped transport errors still classify correctly.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindFatal
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429 || apiErr.Type == "rate_limit_error":
			return KindRateLimit
		case apiErr.StatusCode == 529 || apiErr.Type == "overloaded_error":
			return KindOverloaded
		default:
			return KindFatal
		}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit") || strings.Contains(msg, "429"):
		return KindRateLimit
	case strings.Contains(msg, "overloaded") || strings.Contains(msg, "529"):
		return KindOverloaded
	default:
		return KindFatal
	}
}
