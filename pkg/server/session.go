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
package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/teradata-labs/weft/pkg/agent"
	"github.com/teradata-labs/weft/pkg/types"
)

// session is one client connection. A reader goroutine dispatches
// inbound frames; a writer goroutine serializes outbound frames; at
// most one query runs at a time.
type session struct {
	srv    *Server
	conn   *websocket.Conn
	logger *zap.Logger

	// ctx is canceled on disconnect and on server shutdown, tearing
	// down any in-flight query.
	ctx    context.Context
	cancel context.CancelFunc

	send chan outboundFrame

	mu             sync.Mutex
	inFlight       bool
	cancelQuery    context.CancelFunc
	conversationID string
	totalTokens    int
}

func newSession(srv *Server, conn *websocket.Conn) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		srv:    srv,
		conn:   conn,
		logger: srv.logger.With(zap.String("remote", conn.RemoteAddr().String())),
		ctx:    ctx,
		cancel: cancel,
		send:   make(chan outboundFrame, 64),
	}
}

// run services the connection until it closes.
func (s *session) run() {
	defer s.teardown()

	go s.writeLoop()

	s.enqueue(outboundFrame{
		Type:    FrameReady,
		Version: s.srv.cfg.Version,
		Tools:   s.srv.toolInfos(),
	})

	for {
		var frame inboundFrame
		if err := s.conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("connection closed", zap.Error(err))
			}
			return
		}
		s.dispatch(frame)
	}
}

func (s *session) teardown() {
	s.cancel()
	s.srv.removeSession(s)
	_ = s.conn.Close()
}

// writeLoop owns the connection's write side. Exits when the session
// context is canceled.
func (s *session) writeLoop() {
	for {
		select {
		case frame := <-s.send:
			if err := s.conn.WriteJSON(frame); err != nil {
				s.logger.Debug("write failed", zap.Error(err))
				s.cancel()
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}

// enqueue queues a frame for writing. Returns once the frame is queued
// or the session is gone; a vanished client never stalls the engine.
func (s *session) enqueue(frame outboundFrame) {
	select {
	case s.send <- frame:
	case <-s.ctx.Done():
	}
}

func (s *session) dispatch(frame inboundFrame) {
	switch frame.Type {
	case FrameQuery:
		s.handleQuery(frame)
	case FrameAbort:
		s.handleAbort()
	case FramePing:
		s.enqueue(outboundFrame{Type: FramePong})
	case FrameGetTools:
		s.enqueue(outboundFrame{Type: FrameTools, Tools: s.srv.toolInfos()})
	case FrameNewConversation:
		s.handleNewConversation(frame)
	case FrameGetConversations:
		s.handleGetConversations(frame)
	case FrameLoadConversation:
		s.handleLoadConversation(frame)
	default:
		s.enqueue(outboundFrame{
			Type:  FrameError,
			Error: fmt.Sprintf("unknown frame type %q", frame.Type),
		})
	}
}

// handleQuery starts a query unless one is already in flight; a second
// concurrent query is a protocol error, not a queue entry.
func (s *session) handleQuery(frame inboundFrame) {
	s.mu.Lock()
	if s.inFlight {
		s.mu.Unlock()
		s.enqueue(outboundFrame{
			Type:  FrameError,
			Error: "a query is already in flight on this connection",
		})
		return
	}

	cfg := s.srv.cfg.QueryDefaults
	if frame.Config != nil {
		cfg = mergeConfig(cfg, *frame.Config)
	}
	conversationID := frame.ConversationID
	if conversationID == "" {
		conversationID = s.conversationID
	}

	queryCtx, cancelQuery := context.WithCancel(s.ctx)
	events, err := s.srv.engine.Query(queryCtx, agent.Request{
		Prompt:         frame.Prompt,
		StoreID:        frame.StoreID,
		UserID:         frame.UserID,
		ConversationID: conversationID,
		Config:         cfg,
	})
	if err != nil {
		cancelQuery()
		s.mu.Unlock()
		s.enqueue(outboundFrame{Type: FrameError, Error: err.Error()})
		return
	}

	s.inFlight = true
	s.cancelQuery = cancelQuery
	s.mu.Unlock()

	go s.relayEvents(events, cancelQuery)
}

// relayEvents forwards engine events to the client and clears the
// in-flight flag on the terminal event.
func (s *session) relayEvents(events <-chan agent.Event, cancelQuery context.CancelFunc) {
	defer func() {
		cancelQuery()
		s.mu.Lock()
		s.inFlight = false
		s.cancelQuery = nil
		s.mu.Unlock()
	}()

	for ev := range events {
		switch ev.Type {
		case agent.EventConversationCreated, agent.EventStarted:
			s.mu.Lock()
			s.conversationID = ev.ConversationID
			s.mu.Unlock()
		case agent.EventDone:
			if ev.Usage != nil {
				s.mu.Lock()
				s.totalTokens += ev.Usage.InputTokens + ev.Usage.OutputTokens
				s.mu.Unlock()
			}
		}
		s.enqueue(frameFromEvent(ev))
	}
}

// handleAbort cancels the in-flight query, if any. The engine emits the
// aborted event at its next cancellation boundary.
func (s *session) handleAbort() {
	s.mu.Lock()
	cancel := s.cancelQuery
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *session) handleNewConversation(frame inboundFrame) {
	conv, err := s.srv.store.Create(s.ctx, conversationMeta(frame))
	if err != nil {
		s.enqueue(outboundFrame{Type: FrameError, Error: fmt.Sprintf("failed to create conversation: %v", err)})
		return
	}
	s.mu.Lock()
	s.conversationID = conv.ID
	s.mu.Unlock()
	s.enqueue(outboundFrame{
		Type:           string(agent.EventConversationCreated),
		ConversationID: conv.ID,
		StoreID:        conv.StoreID,
	})
}

func (s *session) handleGetConversations(frame inboundFrame) {
	convs, err := s.srv.store.List(s.ctx, frame.StoreID, frame.Limit)
	if err != nil {
		s.enqueue(outboundFrame{Type: FrameError, Error: fmt.Sprintf("failed to list conversations: %v", err)})
		return
	}
	s.enqueue(outboundFrame{Type: FrameConversations, Conversations: convs})
}

func (s *session) handleLoadConversation(frame inboundFrame) {
	conv, err := s.srv.store.Get(s.ctx, frame.ConversationID)
	if err != nil {
		s.enqueue(outboundFrame{Type: FrameError, Error: fmt.Sprintf("failed to load conversation: %v", err)})
		return
	}
	messages, err := s.srv.store.LoadHistory(s.ctx, frame.ConversationID)
	if err != nil {
		s.enqueue(outboundFrame{Type: FrameError, Error: fmt.Sprintf("failed to load history: %v", err)})
		return
	}
	s.mu.Lock()
	s.conversationID = conv.ID
	s.mu.Unlock()
	s.enqueue(outboundFrame{
		Type:         FrameConversationLoaded,
		Conversation: &conv,
		Messages:     messages,
	})
}

// forceClose tears the connection down immediately (shutdown stragglers).
func (s *session) forceClose() {
	s.cancel()
	_ = s.conn.Close()
}

func conversationMeta(frame inboundFrame) types.Conversation {
	return types.Conversation{
		StoreID: frame.StoreID,
		UserID:  frame.UserID,
	}
}

// mergeConfig overlays non-zero override fields onto the defaults.
func mergeConfig(base, override agent.Config) agent.Config {
	if override.Model != "" {
		base.Model = override.Model
	}
	if override.MaxTurns > 0 {
		base.MaxTurns = override.MaxTurns
	}
	if override.MaxTokensPerCall > 0 {
		base.MaxTokensPerCall = override.MaxTokensPerCall
	}
	if override.SystemPrompt != "" {
		base.SystemPrompt = override.SystemPrompt
	}
	if override.EnabledTools != nil {
		base.EnabledTools = override.EnabledTools
	}
	if override.ConversationTokenBudget > 0 {
		base.ConversationTokenBudget = override.ConversationTokenBudget
	}
	if override.BudgetWarningFraction > 0 {
		base.BudgetWarningFraction = override.BudgetWarningFraction
	}
	if override.ContextWindow > 0 {
		base.ContextWindow = override.ContextWindow
	}
	return base
}
