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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/teradata-labs/weft/internal/log"
	"github.com/teradata-labs/weft/internal/version"
	"github.com/teradata-labs/weft/pkg/agent"
	"github.com/teradata-labs/weft/pkg/compact"
	"github.com/teradata-labs/weft/pkg/conversation"
	"github.com/teradata-labs/weft/pkg/llm/anthropic"
	"github.com/teradata-labs/weft/pkg/observability"
	"github.com/teradata-labs/weft/pkg/server"
	"github.com/teradata-labs/weft/pkg/tools"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the weft session server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	logger, err := buildLogger(config.Logging)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	log.SetLogger(logger)
	defer func() { _ = log.Sync() }()

	if config.LLM.AnthropicAPIKey == "" {
		return fmt.Errorf("anthropic api key is required (--anthropic-key or WEFT_LLM_ANTHROPIC_API_KEY)")
	}

	db, err := conversation.OpenDB(conversation.DBConfig{
		Path:            config.Database.Path,
		EncryptDatabase: config.Database.EncryptDatabase,
		EncryptionKey:   config.Database.EncryptionKey,
	})
	if err != nil {
		return err
	}

	store, err := conversation.NewStore(db)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	tracer, err := observability.NewSQLiteTracer(store.DB())
	if err != nil {
		return err
	}

	registry, err := tools.NewRegistry(ctx, tools.MultiSource{store, builtinToolSource()})
	if err != nil {
		return err
	}

	provider := anthropic.NewClient(anthropic.Config{
		APIKey:      config.LLM.AnthropicAPIKey,
		Model:       config.LLM.AnthropicModel,
		MaxTokens:   config.LLM.MaxTokens,
		Temperature: config.LLM.Temperature,
	})

	executorOpts := []tools.ExecutorOption{}
	if config.Platform.RPCEndpoint != "" {
		executorOpts = append(executorOpts,
			tools.WithRPCClient(tools.NewHTTPRPCClient(config.Platform.RPCEndpoint, config.Platform.RPCAuthToken)))
	}
	if config.Platform.QueryEndpoint != "" {
		executorOpts = append(executorOpts,
			tools.WithQueryRunner(tools.NewHTTPQueryRunner(config.Platform.QueryEndpoint, config.Platform.QueryAuthToken)))
	}
	executor := tools.NewExecutor(executorOpts...)

	engineOpts := []agent.EngineOption{agent.WithTracer(tracer)}
	if config.Agent.CompactionEnabled {
		engineOpts = append(engineOpts, agent.WithCompactor(compact.New(provider, compact.Config{
			ContextWindow: config.Agent.ContextWindow,
			Model:         config.LLM.AnthropicModel,
		})))
	}
	engine := agent.NewEngine(store, provider, executor, registry, engineOpts...)

	sweeper := conversation.NewRetentionSweeper(store, conversation.RetentionConfig{
		TTL:      config.Database.RetentionTTL,
		Schedule: config.Database.RetentionSchedule,
	})
	if err := sweeper.Start(); err != nil {
		return err
	}
	defer sweeper.Stop()

	sessions := server.NewServer(engine, store, registry, server.Config{
		Version:     version.Get(),
		GracePeriod: config.Server.GracePeriod,
		QueryDefaults: agent.Config{
			Model:                   config.LLM.AnthropicModel,
			MaxTurns:                config.Agent.MaxTurns,
			MaxTokensPerCall:        config.LLM.MaxTokens,
			SystemPrompt:            config.Agent.SystemPrompt,
			ConversationTokenBudget: config.Agent.ConversationTokenBudget,
			BudgetWarningFraction:   config.Agent.BudgetWarningFraction,
			ContextWindow:           config.Agent.ContextWindow,
		},
	})

	mux := http.NewServeMux()
	mux.Handle("/session", sessions)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	httpServer := &http.Server{
		Addr:              config.Server.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(signalCtx)
	g.Go(func() error {
		log.Info("weftd listening",
			zap.String("addr", config.Server.Listen),
			zap.String("version", version.Get()))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		drainCtx, cancel := context.WithTimeout(context.Background(), config.Server.GracePeriod+5*time.Second)
		defer cancel()

		if err := sessions.Shutdown(drainCtx); err != nil {
			log.Warn("session drain incomplete", zap.Error(err))
		}
		if err := tracer.Close(drainCtx); err != nil {
			log.Warn("tracer flush incomplete", zap.Error(err))
		}
		return httpServer.Shutdown(drainCtx)
	})
	return g.Wait()
}

// buildLogger constructs the process logger from config.
func buildLogger(cfg LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}

// builtinToolSource exposes the local handler toolset so a fresh
// database still serves a useful catalog.
func builtinToolSource() tools.StaticSource {
	obj := func(props string) json.RawMessage {
		return json.RawMessage(`{"type":"object","properties":` + props + `}`)
	}
	return tools.StaticSource{
		{
			Name:        "read_file",
			Description: "Read a file from the daemon's filesystem.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
			Binding:     tools.Binding{Type: tools.BindingLocal, LocalTag: "read_file"},
			IsReadOnly:  true,
		},
		{
			Name:        "write_file",
			Description: "Write a file on the daemon's filesystem.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"},"content":{"type":"string"}},"required":["path","content"]}`),
			Binding:     tools.Binding{Type: tools.BindingLocal, LocalTag: "write_file"},
		},
		{
			Name:        "list_dir",
			Description: "List a directory on the daemon's filesystem.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`),
			Binding:     tools.Binding{Type: tools.BindingLocal, LocalTag: "list_dir"},
			IsReadOnly:  true,
		},
		{
			Name:             "shell_execute",
			Description:      "Run a shell command on the daemon host.",
			InputSchema:      json.RawMessage(`{"type":"object","properties":{"command":{"type":"string"}},"required":["command"]}`),
			Binding:          tools.Binding{Type: tools.BindingLocal, LocalTag: "shell_execute"},
			RequiresApproval: true,
		},
		{
			Name:        "search",
			Description: "Search files under a directory for a substring.",
			InputSchema: obj(`{"path":{"type":"string"},"pattern":{"type":"string"}}`),
			Binding:     tools.Binding{Type: tools.BindingLocal, LocalTag: "search"},
			IsReadOnly:  true,
		},
	}
}
