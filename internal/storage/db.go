package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const (
	// walCheckpointInterval is how often the WAL file is checkpointed
	// to prevent unbounded growth during long-running sessions.
	walCheckpointInterval = 5 * time.Minute

	defaultBusyTimeout = 5 * time.Second
)

// Options configures the SQLite store.
type Options struct {
	// Path is the database file. Required; config.Paths.DatabaseFile gives
	// the default location.
	Path string

	// BusyTimeout is how long SQLite waits on a locked database.
	BusyTimeout time.Duration

	// CheckpointInterval overrides the WAL checkpoint interval. Negative
	// disables the periodic checkpoint.
	CheckpointInterval time.Duration

	Logger *slog.Logger
}

// SQLiteStore persists commands, usage and variable completions in SQLite.
// Every statement goes through a single connection actor.
type SQLiteStore struct {
	db        *sql.DB
	actor     *Actor
	path      string
	logger    *slog.Logger
	closeOnce sync.Once
	closeErr  error
}

// NewSQLiteStore opens (creating if needed) the database described by opts,
// runs migrations and starts the connection actor.
func NewSQLiteStore(ctx context.Context, opts Options) (*SQLiteStore, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = defaultBusyTimeout
	}
	switch {
	case opts.CheckpointInterval == 0:
		opts.CheckpointInterval = walCheckpointInterval
	case opts.CheckpointInterval < 0:
		opts.CheckpointInterval = 0
	}

	dbPath := opts.Path
	if dbPath == "" {
		return nil, errors.New("database path is required")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// modernc.org/sqlite uses _pragma=name(value) syntax
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		dbPath, opts.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// The actor holds the only connection for the store's lifetime.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	actor := StartActor(func(ctx context.Context) (*sql.Conn, error) {
		conn, err := db.Conn(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := migrate(ctx, conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return conn, nil
	}, ActorOptions{
		Logger:             opts.Logger,
		CheckpointInterval: opts.CheckpointInterval,
	})

	if err := actor.Ready(ctx); err != nil {
		_ = actor.Close()
		db.Close()
		return nil, err
	}

	return &SQLiteStore{
		db:     db,
		actor:  actor,
		path:   dbPath,
		logger: opts.Logger,
	}, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

// WithConn runs fn on the store's connection. See Actor.WithConn.
func (s *SQLiteStore) WithConn(ctx context.Context, fn func(ctx context.Context, conn *sql.Conn) error) error {
	return s.actor.WithConn(ctx, fn)
}

// WithConnMut runs fn in a transaction on the store's connection. See
// Actor.WithConnMut.
func (s *SQLiteStore) WithConnMut(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	return s.actor.WithConnMut(ctx, fn)
}

// Close stops the actor and closes the database.
// It is safe to call Close multiple times.
func (s *SQLiteStore) Close() error {
	s.closeOnce.Do(func() {
		actorErr := s.actor.Close()
		s.closeErr = errors.Join(actorErr, s.db.Close())
	})
	return s.closeErr
}

// Querier is satisfied by *sql.Conn and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// migrate brings the schema up to date.
func migrate(ctx context.Context, conn Querier) error {
	currentVersion := 0
	row := conn.QueryRowContext(ctx, `
		SELECT version FROM schema_meta ORDER BY version DESC LIMIT 1
	`)
	if err := row.Scan(&currentVersion); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows), isTableNotFoundError(err):
			currentVersion = 0
		default:
			return fmt.Errorf("failed to read schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		if _, err := conn.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("migration v%d failed: %w", m.version, err)
		}

		_, err := conn.ExecContext(ctx, `
			INSERT OR REPLACE INTO schema_meta (version, applied_at_unix_ms)
			VALUES (?, ?)
		`, m.version, time.Now().UnixMilli())
		if err != nil {
			return fmt.Errorf("failed to record migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// isTableNotFoundError checks if the error indicates a missing table.
func isTableNotFoundError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}

// isUniqueConstraintError checks if the error is a UNIQUE or PRIMARY KEY
// violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY constraint failed")
}

// isForeignKeyError checks if the error is a FOREIGN KEY violation.
func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
