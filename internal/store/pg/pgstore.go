// Package pg implements the Postgres-backed user store and security-event
// sink over database/sql with the pgx stdlib driver.
package pg

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

type Store struct {
	db *sql.DB
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection pool (used by tests).
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// EnsureSchema creates the tables this subsystem owns if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`create table if not exists users (
			id            text primary key,
			email         text not null unique,
			username      text not null unique,
			display_name  text not null default '',
			avatar_url    text not null default '',
			password_hash text not null,
			role          text not null default 'user',
			status        text not null default 'active',
			verified      boolean not null default false,
			created_at    timestamptz not null default now(),
			updated_at    timestamptz not null default now()
		)`,
		`create table if not exists security_events (
			id               text primary key,
			event_type       text not null,
			severity         text not null,
			subject_user_id  text not null default '',
			source_address   text not null default '',
			client_signature text not null default '',
			occurred_at      timestamptz not null,
			details          jsonb not null default '{}'::jsonb
		)`,
		`create index if not exists security_events_subject_idx
			on security_events(subject_user_id, occurred_at desc)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
