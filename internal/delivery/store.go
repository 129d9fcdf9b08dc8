// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package delivery keeps a Postgres ledger of webhook invocations and
// their outcomes. The ledger holds no addresses, names, bodies or birth
// data: only the provider message id and what happened to it.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Record is one webhook invocation.
type Record struct {
	ID        int64
	RequestID string
	MessageID string
	Outcome   string
	ReplySent bool
	Error     string
	CreatedAt time.Time
}

// Recorder persists invocation records.
type Recorder interface {
	Record(ctx context.Context, r Record) error
}

// Store is the Postgres-backed ledger.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a ledger backed by the given Postgres pool.
// It ensures the deliveries table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure delivery schema: %w", err)
	}
	slog.Info("delivery ledger initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS deliveries (
			id          BIGSERIAL PRIMARY KEY,
			request_id  TEXT NOT NULL,
			message_id  TEXT DEFAULT '',
			outcome     TEXT NOT NULL,
			reply_sent  BOOLEAN NOT NULL DEFAULT FALSE,
			error       TEXT DEFAULT '',
			created_at  TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_deliveries_message ON deliveries(message_id);
		CREATE INDEX IF NOT EXISTS idx_deliveries_created ON deliveries(created_at);
	`)
	return err
}

// Record inserts one invocation.
func (s *Store) Record(ctx context.Context, r Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO deliveries (request_id, message_id, outcome, reply_sent, error)
		VALUES ($1, $2, $3, $4, $5)
	`, r.RequestID, r.MessageID, r.Outcome, r.ReplySent, r.Error)
	if err != nil {
		return fmt.Errorf("insert delivery: %w", err)
	}
	return nil
}

// ListByMessage returns the invocations recorded for a provider message id,
// oldest first.
func (s *Store) ListByMessage(ctx context.Context, messageID string) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, request_id, message_id, outcome, reply_sent, error, created_at
		FROM deliveries
		WHERE message_id = $1
		ORDER BY created_at, id
	`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// Recent returns the newest invocations, up to limit.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, request_id, message_id, outcome, reply_sent, error, created_at
		FROM deliveries
		ORDER BY created_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// Ping checks the Postgres connection.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

func collectRecords(rows pgx.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.RequestID, &r.MessageID, &r.Outcome, &r.ReplySent, &r.Error, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Nop discards records. It is used when no database is configured.
type Nop struct{}

// Record does nothing.
func (Nop) Record(context.Context, Record) error { return nil }
