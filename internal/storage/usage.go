package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
)

// IncrementUsage records one use of the command from path and returns the
// new count for that (command, path) pair. A relative path is resolved
// against the process working directory.
func (s *SQLiteStore) IncrementUsage(ctx context.Context, commandID, path string) (int64, error) {
	if commandID == "" {
		return 0, errors.New("command_id is required")
	}
	if path == "" {
		return 0, errors.New("path is required")
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve path: %w", err)
	}

	var count int64
	err = s.actor.WithConnMut(ctx, func(ctx context.Context, tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			INSERT INTO command_usage (command_id, path, usage_count)
			VALUES (?, ?, 1)
			ON CONFLICT (command_id, path) DO UPDATE SET usage_count = usage_count + 1
			RETURNING usage_count
		`, commandID, path)
		return row.Scan(&count)
	})
	if err != nil {
		if isForeignKeyError(err) {
			return 0, fmt.Errorf("command %s: %w", commandID, ErrNotFound)
		}
		return 0, fmt.Errorf("failed to increment usage: %w", err)
	}
	return count, nil
}
