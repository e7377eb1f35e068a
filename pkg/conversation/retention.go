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
package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/teradata-labs/weft/internal/log"
)

// RetentionConfig configures the periodic cleanup of idle conversations.
type RetentionConfig struct {
	// TTL is how long a conversation may stay idle before deletion.
	// Zero disables the sweeper.
	TTL time.Duration

	// Schedule is a cron expression; hourly when empty.
	Schedule string
}

// RetentionSweeper deletes conversations idle longer than the TTL on a
// cron schedule.
type RetentionSweeper struct {
	store  *Store
	config RetentionConfig
	cron   *cron.Cron
	logger *zap.Logger
}

// NewRetentionSweeper creates a sweeper. Start it explicitly.
func NewRetentionSweeper(store *Store, config RetentionConfig) *RetentionSweeper {
	if config.Schedule == "" {
		config.Schedule = "@hourly"
	}
	return &RetentionSweeper{
		store:  store,
		config: config,
		cron:   cron.New(),
		logger: log.Named("retention"),
	}
}

// Start schedules the sweep. No-op when TTL is zero.
func (r *RetentionSweeper) Start() error {
	if r.config.TTL <= 0 {
		return nil
	}
	_, err := r.cron.AddFunc(r.config.Schedule, func() {
		if err := r.SweepOnce(context.Background()); err != nil {
			r.logger.Warn("retention sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule retention sweep: %w", err)
	}
	r.cron.Start()
	r.logger.Info("retention sweeper started",
		zap.Duration("ttl", r.config.TTL),
		zap.String("schedule", r.config.Schedule))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (r *RetentionSweeper) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
}

// SweepOnce deletes every conversation idle longer than the TTL.
func (r *RetentionSweeper) SweepOnce(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-r.config.TTL)

	rows, err := r.store.db.QueryContext(ctx,
		`SELECT id FROM conversations WHERE updated_at < ?`, cutoff)
	if err != nil {
		return fmt.Errorf("failed to find stale conversations: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return fmt.Errorf("failed to scan conversation id: %w", err)
		}
		stale = append(stale, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range stale {
		if err := r.store.Delete(ctx, id); err != nil {
			r.logger.Warn("failed to delete stale conversation",
				zap.String("conversation_id", id), zap.Error(err))
		}
	}
	if len(stale) > 0 {
		r.logger.Info("retention sweep complete", zap.Int("deleted", len(stale)))
	}
	return nil
}
