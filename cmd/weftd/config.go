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
package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultConfigFileName is the name of the config file (weftd.yaml).
const DefaultConfigFileName = "weftd"

// Config holds all configuration for the weft daemon.
// Priority: CLI flags > config file > env vars > defaults.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Database DatabaseConfig `mapstructure:"database"`
	Agent    AgentConfig    `mapstructure:"agent"`
	Platform PlatformConfig `mapstructure:"platform"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig holds the session endpoint configuration.
type ServerConfig struct {
	// Listen is the address of the WebSocket session endpoint.
	Listen string `mapstructure:"listen"`

	// GracePeriod bounds shutdown draining.
	GracePeriod time.Duration `mapstructure:"grace_period"`
}

// LLMConfig holds provider configuration.
type LLMConfig struct {
	AnthropicAPIKey string  `mapstructure:"anthropic_api_key"`
	AnthropicModel  string  `mapstructure:"anthropic_model"`
	MaxTokens       int     `mapstructure:"max_tokens"`
	Temperature     float64 `mapstructure:"temperature"`
}

// DatabaseConfig holds SQLite configuration.
type DatabaseConfig struct {
	Path            string `mapstructure:"path"`
	EncryptDatabase bool   `mapstructure:"encrypt"`
	EncryptionKey   string `mapstructure:"encryption_key"`

	// RetentionTTL deletes conversations idle longer than this.
	// Zero disables retention.
	RetentionTTL time.Duration `mapstructure:"retention_ttl"`

	// RetentionSchedule is the sweep cron expression.
	RetentionSchedule string `mapstructure:"retention_schedule"`
}

// AgentConfig seeds every query's defaults.
type AgentConfig struct {
	SystemPrompt            string  `mapstructure:"system_prompt"`
	MaxTurns                int     `mapstructure:"max_turns"`
	ContextWindow           int     `mapstructure:"context_window"`
	ConversationTokenBudget int     `mapstructure:"conversation_token_budget"`
	BudgetWarningFraction   float64 `mapstructure:"budget_warning_fraction"`
	CompactionEnabled       bool    `mapstructure:"compaction_enabled"`
}

// PlatformConfig holds the hosted data platform endpoints for tool
// backends.
type PlatformConfig struct {
	// RPCEndpoint serves procedure-bound tools.
	RPCEndpoint string `mapstructure:"rpc_endpoint"`

	// RPCAuthToken authenticates procedure calls.
	RPCAuthToken string `mapstructure:"rpc_auth_token"`

	// QueryEndpoint serves sandboxed-query tools.
	QueryEndpoint string `mapstructure:"query_endpoint"`

	// QueryAuthToken authenticates query calls.
	QueryAuthToken string `mapstructure:"query_auth_token"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig loads configuration with the standard priority order.
func LoadConfig(cfgFile string) (*Config, error) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/weft/")
		viper.SetConfigName(DefaultConfigFileName)
	}

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// Missing config file is fine; flags/env/defaults carry.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	viper.SetEnvPrefix("WEFT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.listen", "127.0.0.1:8700")
	viper.SetDefault("server.grace_period", "10s")

	viper.SetDefault("llm.anthropic_model", "claude-sonnet-4-20250514")
	viper.SetDefault("llm.max_tokens", 4096)
	viper.SetDefault("llm.temperature", 1.0)

	viper.SetDefault("database.path", "weft.db")
	viper.SetDefault("database.encrypt", false)
	viper.SetDefault("database.retention_ttl", "0")
	viper.SetDefault("database.retention_schedule", "@hourly")

	viper.SetDefault("agent.system_prompt",
		"You are a data analysis assistant operating against a hosted data store. "+
			"Use the available tools to answer questions; never fabricate data.")
	viper.SetDefault("agent.max_turns", 20)
	viper.SetDefault("agent.context_window", 200000)
	viper.SetDefault("agent.conversation_token_budget", 0)
	viper.SetDefault("agent.budget_warning_fraction", 0.8)
	viper.SetDefault("agent.compaction_enabled", true)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}
