// Copyright © 2026 Teradata Corporation - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package pricing derives USD cost from model token usage.
package pricing

import (
	"math"
	"strings"
)

// ModelPrice holds USD-per-million-token rates for one model family.
type ModelPrice struct {
	InputPerMTok      float64
	OutputPerMTok     float64
	CacheReadPerMTok  float64
	CacheWritePerMTok float64
}

// DefaultTier is used for models missing from the table. Matches the
// Sonnet-class rates so unmatched models are never billed at zero.
var DefaultTier = ModelPrice{
	InputPerMTok:      3.0,
	OutputPerMTok:     15.0,
	CacheReadPerMTok:  0.30,
	CacheWritePerMTok: 3.75,
}

// prices is keyed by model-id prefix; longest matching prefix wins.
var prices = map[string]ModelPrice{
	"claude-opus-4":     {InputPerMTok: 15.0, OutputPerMTok: 75.0, CacheReadPerMTok: 1.50, CacheWritePerMTok: 18.75},
	"claude-sonnet-4":   {InputPerMTok: 3.0, OutputPerMTok: 15.0, CacheReadPerMTok: 0.30, CacheWritePerMTok: 3.75},
	"claude-3-7-sonnet": {InputPerMTok: 3.0, OutputPerMTok: 15.0, CacheReadPerMTok: 0.30, CacheWritePerMTok: 3.75},
	"claude-3-5-sonnet": {InputPerMTok: 3.0, OutputPerMTok: 15.0, CacheReadPerMTok: 0.30, CacheWritePerMTok: 3.75},
	"claude-3-5-haiku":  {InputPerMTok: 0.80, OutputPerMTok: 4.0, CacheReadPerMTok: 0.08, CacheWritePerMTok: 1.0},
	"claude-3-haiku":    {InputPerMTok: 0.25, OutputPerMTok: 1.25, CacheReadPerMTok: 0.03, CacheWritePerMTok: 0.30},
}

// Lookup returns the price tier for a model id, falling back to
// DefaultTier when no prefix matches.
func Lookup(model string) ModelPrice {
	best := ""
	for prefix := range prices {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return DefaultTier
	}
	return prices[best]
}

// Cost computes the USD cost of one model call, rounded to 6 decimal
// places. 1,000,000 input tokens at $3/MTok is exactly 3.000000.
func Cost(model string, inputTokens, outputTokens, cacheReadTokens, cacheWriteTokens int) float64 {
	p := Lookup(model)
	cost := float64(inputTokens)/1_000_000*p.InputPerMTok +
		float64(outputTokens)/1_000_000*p.OutputPerMTok +
		float64(cacheReadTokens)/1_000_000*p.CacheReadPerMTok +
		float64(cacheWriteTokens)/1_000_000*p.CacheWritePerMTok
	return Round(cost)
}

// Round rounds a USD amount to 6 decimal places.
func Round(usd float64) float64 {
	return math.Round(usd*1e6) / 1e6
}
