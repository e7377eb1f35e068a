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
package agent

import (
	"fmt"

	"github.com/teradata-labs/weft/pkg/compact"
)

const (
	// DefaultMaxTurns bounds the model-call loop of one query.
	DefaultMaxTurns = 20

	// DefaultMaxTokensPerCall bounds one model response.
	DefaultMaxTokensPerCall = 4096

	// DefaultBudgetWarningFraction of the token budget at which a
	// warning event is emitted.
	DefaultBudgetWarningFraction = 0.8
)

// Config controls one agent query. Zero values take the defaults above;
// SystemPrompt has no default and must be set.
type Config struct {
	// Model overrides the provider's default model.
	Model string `json:"model,omitempty"`

	// MaxTurns bounds loop iterations (model calls).
	MaxTurns int `json:"max_turns,omitempty"`

	// MaxTokensPerCall bounds one model response.
	MaxTokensPerCall int `json:"max_tokens_per_call,omitempty"`

	// SystemPrompt is required; a query without one is a configuration
	// error reported before any model call.
	SystemPrompt string `json:"system_prompt,omitempty"`

	// EnabledTools restricts the tool subset offered to the model.
	// Nil means the full catalog; unknown names are ignored.
	EnabledTools []string `json:"enabled_tools,omitempty"`

	// ConversationTokenBudget caps estimated history tokens for the
	// whole conversation. Zero disables the budget.
	ConversationTokenBudget int `json:"conversation_token_budget,omitempty"`

	// BudgetWarningFraction of the budget at which a warning event is
	// emitted.
	BudgetWarningFraction float64 `json:"budget_warning_fraction,omitempty"`

	// ContextWindow sizes the compaction threshold.
	ContextWindow int `json:"context_window,omitempty"`
}

// withDefaults returns a copy with defaults applied.
func (c Config) withDefaults() Config {
	if c.MaxTurns <= 0 {
		c.MaxTurns = DefaultMaxTurns
	}
	if c.MaxTokensPerCall <= 0 {
		c.MaxTokensPerCall = DefaultMaxTokensPerCall
	}
	if c.BudgetWarningFraction <= 0 || c.BudgetWarningFraction >= 1 {
		c.BudgetWarningFraction = DefaultBudgetWarningFraction
	}
	if c.ContextWindow <= 0 {
		c.ContextWindow = compact.DefaultContextWindow
	}
	return c
}

// validate rejects configurations that must fail before any model call.
func (c Config) validate() error {
	if c.SystemPrompt == "" {
		return fmt.Errorf("system prompt is required")
	}
	return nil
}
