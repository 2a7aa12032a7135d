// Copyright 2025 The Scout Authors
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

// Package store is the durable sqlite store for strategy documents,
// global settings and subscriptions. Strategy documents are read once at
// boot into the immutable cache; subscriptions are read per batch run.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned for lookups of absent rows.
var ErrNotFound = errors.New("not found")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS strategies (
    slug VARCHAR(255) PRIMARY KEY,
    doc TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS documents (
    name VARCHAR(255) PRIMARY KEY,
    doc TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS subscriptions (
    id VARCHAR(255) PRIMARY KEY,
    email VARCHAR(255) NOT NULL,
    topic TEXT NOT NULL,
    frequency VARCHAR(50) NOT NULL,
    active BOOLEAN NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_subscriptions_active ON subscriptions(active);
`

const (
	docIndex    = "index"
	docSettings = "settings"
)

// Subscription is one registered research request.
type Subscription struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Topic     string    `json:"topic"`
	Frequency string    `json:"frequency"` // daily or weekly
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store wraps the sqlite database. Safe for concurrent use; the driver
// serializes writes.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the sqlite database at dsn and ensures
// the schema exists.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("store dsn is required")
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	// sqlite performs best with a single writer connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// StrategyDocs returns every stored strategy document ordered by slug.
// Part of the strategy source contract consumed at boot.
func (s *Store) StrategyDocs(ctx context.Context) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM strategies ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var docs [][]byte
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		docs = append(docs, []byte(doc))
	}
	return docs, rows.Err()
}

// IndexDoc returns the strategy index document.
func (s *Store) IndexDoc(ctx context.Context) ([]byte, error) {
	return s.document(ctx, docIndex)
}

// SettingsDoc returns the global settings document.
func (s *Store) SettingsDoc(ctx context.Context) ([]byte, error) {
	return s.document(ctx, docSettings)
}

func (s *Store) document(ctx context.Context, name string) ([]byte, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM documents WHERE name = ?`, name).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return []byte(doc), nil
}

// PutStrategyDoc upserts one strategy document. Used by the import CLI,
// never by the serving path.
func (s *Store) PutStrategyDoc(ctx context.Context, slug string, doc []byte) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO strategies (slug, doc, updated_at) VALUES (?, ?, ?)
ON CONFLICT(slug) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		slug, string(doc), time.Now().UTC())
	return err
}

// PutIndexDoc upserts the strategy index document.
func (s *Store) PutIndexDoc(ctx context.Context, doc []byte) error {
	return s.putDocument(ctx, docIndex, doc)
}

// PutSettingsDoc upserts the global settings document.
func (s *Store) PutSettingsDoc(ctx context.Context, doc []byte) error {
	return s.putDocument(ctx, docSettings, doc)
}

func (s *Store) putDocument(ctx context.Context, name string, doc []byte) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO documents (name, doc, updated_at) VALUES (?, ?, ?)
ON CONFLICT(name) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		name, string(doc), time.Now().UTC())
	return err
}

// CreateSubscription inserts a subscription, assigning an ID when absent.
func (s *Store) CreateSubscription(ctx context.Context, sub *Subscription) error {
	if sub.Email == "" || sub.Topic == "" {
		return fmt.Errorf("email and topic are required")
	}
	if sub.Frequency == "" {
		sub.Frequency = "daily"
	}
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
INSERT INTO subscriptions (id, email, topic, frequency, active, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sub.ID, sub.Email, sub.Topic, sub.Frequency, sub.Active, sub.CreatedAt, sub.UpdatedAt)
	return err
}

// GetSubscription returns one subscription by ID.
func (s *Store) GetSubscription(ctx context.Context, id string) (*Subscription, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, email, topic, frequency, active, created_at, updated_at
FROM subscriptions WHERE id = ?`, id)

	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subscription %q: %w", id, ErrNotFound)
	}
	return sub, err
}

// ListSubscriptions returns subscriptions ordered by creation time.
func (s *Store) ListSubscriptions(ctx context.Context, activeOnly bool) ([]*Subscription, error) {
	query := `
SELECT id, email, topic, frequency, active, created_at, updated_at
FROM subscriptions`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var subs []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// UpdateSubscription rewrites the mutable fields of a subscription.
func (s *Store) UpdateSubscription(ctx context.Context, sub *Subscription) error {
	sub.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
UPDATE subscriptions SET email = ?, topic = ?, frequency = ?, active = ?, updated_at = ?
WHERE id = ?`,
		sub.Email, sub.Topic, sub.Frequency, sub.Active, sub.UpdatedAt, sub.ID)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("subscription %q: %w", sub.ID, ErrNotFound)
	}
	return nil
}

// DeleteSubscription removes a subscription.
func (s *Store) DeleteSubscription(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("subscription %q: %w", id, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*Subscription, error) {
	var sub Subscription
	err := row.Scan(&sub.ID, &sub.Email, &sub.Topic, &sub.Frequency, &sub.Active, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
