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

// Package server exposes the agent engine over a WebSocket connection
// speaking JSON frames with a type discriminator. Each connection is a
// session with at most one in-flight query.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/teradata-labs/weft/internal/log"
	"github.com/teradata-labs/weft/pkg/agent"
	"github.com/teradata-labs/weft/pkg/conversation"
	"github.com/teradata-labs/weft/pkg/tools"
)

// DefaultGracePeriod bounds how long Shutdown waits for sessions to
// finish before force-closing them.
const DefaultGracePeriod = 10 * time.Second

// QueryEngine is the engine surface the server depends on. Satisfied by
// *agent.Engine; narrowed to an interface so tests can script events.
type QueryEngine interface {
	Query(ctx context.Context, req agent.Request) (<-chan agent.Event, error)
}

// Config configures the session server.
type Config struct {
	// Version is reported in the ready frame.
	Version string

	// GracePeriod bounds shutdown draining.
	GracePeriod time.Duration

	// QueryDefaults seeds every query's config; per-query overrides
	// are merged on top.
	QueryDefaults agent.Config
}

// Server manages WebSocket sessions over a shared engine, store, and
// tool registry.
type Server struct {
	engine   QueryEngine
	store    *conversation.Store
	registry *tools.Registry
	cfg      Config
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu           sync.Mutex
	sessions     map[*session]struct{}
	shuttingDown bool
}

// NewServer creates a session server.
func NewServer(engine QueryEngine, store *conversation.Store, registry *tools.Registry, cfg Config) *Server {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	return &Server{
		engine:   engine,
		store:    store,
		registry: registry,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The daemon fronts trusted desktop clients; origin policy
			// belongs to the deployment proxy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:   log.Named("server"),
		sessions: make(map[*session]struct{}),
	}
}

// ServeHTTP upgrades the request and runs the session until disconnect.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.shuttingDown {
		s.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	s.mu.Unlock()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sess := newSession(s, conn)
	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	s.mu.Unlock()

	s.logger.Info("session connected", zap.String("remote", conn.RemoteAddr().String()))
	sess.run()
}

func (s *Server) removeSession(sess *session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	remaining := len(s.sessions)
	s.mu.Unlock()
	s.logger.Info("session disconnected", zap.Int("remaining", remaining))
}

// SessionCount returns the number of live sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Shutdown stops accepting connections, broadcasts a shutdown frame,
// waits up to the grace period for sessions to drain, then force-closes
// the stragglers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shuttingDown = true
	open := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	for _, sess := range open {
		sess.enqueue(outboundFrame{Type: FrameShutdown, Reason: "server shutting down"})
	}

	deadline := time.NewTimer(s.cfg.GracePeriod)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for {
		if s.SessionCount() == 0 {
			return nil
		}
		select {
		case <-tick.C:
		case <-deadline.C:
			s.forceCloseAll()
			return nil
		case <-ctx.Done():
			s.forceCloseAll()
			return ctx.Err()
		}
	}
}

func (s *Server) forceCloseAll() {
	s.mu.Lock()
	open := make([]*session, 0, len(s.sessions))
	for sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()

	if len(open) > 0 {
		s.logger.Warn("force-closing sessions after grace period", zap.Int("count", len(open)))
	}
	for _, sess := range open {
		sess.forceClose()
	}
}

// toolInfos renders the current catalog for ready/tools frames.
func (s *Server) toolInfos() []toolInfo {
	defs := s.registry.Snapshot().All()
	out := make([]toolInfo, 0, len(defs))
	for _, def := range defs {
		out = append(out, toolInfo{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
			IsReadOnly:  def.IsReadOnly,
		})
	}
	return out
}
