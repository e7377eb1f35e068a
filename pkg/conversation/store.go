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

// Package conversation persists conversations and their append-only
// message history in SQLite. The same database also holds the tool
// catalog table the registry loads from.
package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/teradata-labs/weft/internal/log"
	"github.com/teradata-labs/weft/pkg/tools"
	"github.com/teradata-labs/weft/pkg/types"
)

// ErrNotFound is returned when a conversation id does not exist.
var ErrNotFound = errors.New("conversation not found")

const schema = `
CREATE TABLE IF NOT EXISTS conversations (
	id TEXT PRIMARY KEY,
	store_id TEXT NOT NULL,
	user_id TEXT,
	agent_id TEXT,
	title TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	conversation_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT,
	blocks_json TEXT,
	created_at TIMESTAMP NOT NULL,
	FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS tool_definitions (
	name TEXT PRIMARY KEY,
	description TEXT NOT NULL DEFAULT '',
	input_schema_json TEXT,
	binding_json TEXT NOT NULL,
	is_read_only INTEGER NOT NULL DEFAULT 0,
	requires_approval INTEGER NOT NULL DEFAULT 0,
	max_execution_ms INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, id);
CREATE INDEX IF NOT EXISTS idx_conversations_store ON conversations(store_id, updated_at);
`

// Store persists conversations in SQLite. Safe for concurrent use;
// message ordering is guaranteed by rowid AUTOINCREMENT, so independent
// appends land in arrival order.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewStore creates a store over an open database handle and ensures the
// schema exists.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{
		db:     db,
		logger: log.Named("conversation"),
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to initialize conversation schema: %w", err)
	}
	return s, nil
}

// DB exposes the underlying handle so the telemetry exporter can share
// the same database file.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a new conversation. A missing ID gets a fresh UUID.
func (s *Store) Create(ctx context.Context, conv types.Conversation) (types.Conversation, error) {
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	conv.CreatedAt = now
	conv.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, store_id, user_id, agent_id, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.StoreID, nullable(conv.UserID), nullable(conv.AgentID),
		conv.Title, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return types.Conversation{}, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// Get loads conversation metadata. Returns ErrNotFound for unknown ids.
func (s *Store) Get(ctx context.Context, id string) (types.Conversation, error) {
	var conv types.Conversation
	var userID, agentID sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, store_id, user_id, agent_id, title, created_at, updated_at
		FROM conversations WHERE id = ?`, id).
		Scan(&conv.ID, &conv.StoreID, &userID, &agentID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Conversation{}, ErrNotFound
	}
	if err != nil {
		return types.Conversation{}, fmt.Errorf("failed to load conversation %s: %w", id, err)
	}
	conv.UserID = userID.String
	conv.AgentID = agentID.String
	return conv, nil
}

// List returns conversations for a store, most recently updated first.
// A non-positive limit defaults to 50.
func (s *Store) List(ctx context.Context, storeID string, limit int) ([]types.Conversation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, store_id, user_id, agent_id, title, created_at, updated_at
		FROM conversations WHERE store_id = ?
		ORDER BY updated_at DESC LIMIT ?`, storeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.Conversation
	for rows.Next() {
		var conv types.Conversation
		var userID, agentID sql.NullString
		if err := rows.Scan(&conv.ID, &conv.StoreID, &userID, &agentID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		conv.UserID = userID.String
		conv.AgentID = agentID.String
		out = append(out, conv)
	}
	return out, rows.Err()
}

// AppendUser appends a user message. The conversation title is set from
// the first user message when still empty.
func (s *Store) AppendUser(ctx context.Context, conversationID, text string) error {
	if err := s.append(ctx, conversationID, types.TextMessage(types.RoleUser, text)); err != nil {
		return err
	}
	title := text
	if len(title) > 80 {
		title = title[:80]
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET title = ? WHERE id = ? AND title = ''`,
		title, conversationID)
	if err != nil {
		// Title is cosmetic; the message is already stored.
		s.logger.Warn("failed to set conversation title",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}
	return nil
}

// AppendAssistant appends an assistant message with its block sequence.
func (s *Store) AppendAssistant(ctx context.Context, conversationID string, msg types.Message) error {
	msg.Role = types.RoleAssistant
	return s.append(ctx, conversationID, msg)
}

// AppendToolResults appends one tool-result message carrying the given
// result blocks, preserving their order.
func (s *Store) AppendToolResults(ctx context.Context, conversationID string, blocks []types.ContentBlock) error {
	return s.append(ctx, conversationID, types.Message{
		Role:   types.RoleToolResult,
		Blocks: blocks,
	})
}

func (s *Store) append(ctx context.Context, conversationID string, msg types.Message) error {
	var blocksJSON interface{}
	if len(msg.Blocks) > 0 {
		b, err := json.Marshal(msg.Blocks)
		if err != nil {
			return fmt.Errorf("failed to marshal message blocks: %w", err)
		}
		blocksJSON = string(b)
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, role, content, blocks_json, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		conversationID, msg.Role, nullable(msg.Content), blocksJSON, now)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE conversations SET updated_at = ? WHERE id = ?`, now, conversationID)
	if err != nil {
		s.logger.Warn("failed to touch conversation",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}
	return nil
}

// LoadHistory returns the full message history in insertion order.
func (s *Store) LoadHistory(ctx context.Context, conversationID string) ([]types.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, blocks_json, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.Message
	for rows.Next() {
		var msg types.Message
		var rowID int64
		var content, blocksJSON sql.NullString
		if err := rows.Scan(&rowID, &msg.Role, &content, &blocksJSON, &msg.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.ID = fmt.Sprintf("%d", rowID)
		msg.Content = content.String
		if blocksJSON.Valid && blocksJSON.String != "" {
			if err := json.Unmarshal([]byte(blocksJSON.String), &msg.Blocks); err != nil {
				s.logger.Warn("skipping malformed message blocks",
					zap.String("conversation_id", conversationID),
					zap.Int64("message_id", rowID), zap.Error(err))
			}
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// Delete removes a conversation and its messages.
func (s *Store) Delete(ctx context.Context, conversationID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, conversationID); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// LoadDefinitions implements tools.DefinitionSource over the
// tool_definitions table.
func (s *Store) LoadDefinitions(ctx context.Context) ([]tools.ToolDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, description, input_schema_json, binding_json,
		       is_read_only, requires_approval, max_execution_ms
		FROM tool_definitions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to load tool definitions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []tools.ToolDefinition
	for rows.Next() {
		var def tools.ToolDefinition
		var schemaJSON sql.NullString
		var bindingJSON string
		var maxMs int64
		if err := rows.Scan(&def.Name, &def.Description, &schemaJSON, &bindingJSON,
			&def.IsReadOnly, &def.RequiresApproval, &maxMs); err != nil {
			return nil, fmt.Errorf("failed to scan tool definition: %w", err)
		}
		if schemaJSON.Valid {
			def.InputSchema = json.RawMessage(schemaJSON.String)
		}
		if err := json.Unmarshal([]byte(bindingJSON), &def.Binding); err != nil {
			s.logger.Warn("skipping tool with malformed binding",
				zap.String("tool", def.Name), zap.Error(err))
			continue
		}
		def.MaxExecutionTime = time.Duration(maxMs) * time.Millisecond
		out = append(out, def)
	}
	return out, rows.Err()
}

// SaveDefinition upserts one tool definition into the catalog table.
func (s *Store) SaveDefinition(ctx context.Context, def tools.ToolDefinition) error {
	bindingJSON, err := json.Marshal(def.Binding)
	if err != nil {
		return fmt.Errorf("failed to marshal tool binding: %w", err)
	}
	var schemaJSON interface{}
	if len(def.InputSchema) > 0 {
		schemaJSON = string(def.InputSchema)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tool_definitions
			(name, description, input_schema_json, binding_json, is_read_only, requires_approval, max_execution_ms, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			input_schema_json = excluded.input_schema_json,
			binding_json = excluded.binding_json,
			is_read_only = excluded.is_read_only,
			requires_approval = excluded.requires_approval,
			max_execution_ms = excluded.max_execution_ms,
			updated_at = excluded.updated_at`,
		def.Name, def.Description, schemaJSON, string(bindingJSON),
		def.IsReadOnly, def.RequiresApproval, def.MaxExecutionTime.Milliseconds(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save tool definition: %w", err)
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Ensure Store implements the registry source interface.
var _ tools.DefinitionSource = (*Store)(nil)
