package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/runger/shellmark/internal/cmdutil"
)

// InsertCompletion stores a variable completion. The variable name is
// flattened so it matches names extracted from templates.
func (s *SQLiteStore) InsertCompletion(ctx context.Context, c *VariableCompletion) error {
	if c == nil {
		return errors.New("completion cannot be nil")
	}
	c.RootCmd = strings.TrimSpace(c.RootCmd)
	c.Variable = cmdutil.Flatten(c.Variable)
	c.SuggestionsProvider = strings.TrimSpace(c.SuggestionsProvider)
	if c.Variable == "" {
		return errors.New("variable is required")
	}
	if c.SuggestionsProvider == "" {
		return errors.New("suggestions provider is required")
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAtUnixMs == 0 {
		c.CreatedAtUnixMs = time.Now().UnixMilli()
	}

	return s.actor.WithConnMut(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO variable_completions (
				id, root_cmd, variable, suggestions_provider,
				created_at_unix_ms, updated_at_unix_ms
			) VALUES (?, ?, ?, ?, ?, ?)
		`, c.ID, c.RootCmd, c.Variable, c.SuggestionsProvider, c.CreatedAtUnixMs, c.UpdatedAtUnixMs)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("completion for %q (root %q): %w", c.Variable, c.RootCmd, ErrAlreadyExists)
			}
			return fmt.Errorf("failed to insert completion: %w", err)
		}
		return nil
	})
}

// DeleteCompletion removes the completion with the given ID.
func (s *SQLiteStore) DeleteCompletion(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("id is required")
	}
	return s.actor.WithConnMut(ctx, func(ctx context.Context, tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM variable_completions WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete completion: %w", err)
		}
		return requireAffected(result, "completion", id)
	})
}

// ListCompletions returns completions matching q, root-specific ones before
// global ones, then by variable.
func (s *SQLiteStore) ListCompletions(ctx context.Context, q CompletionQuery) ([]VariableCompletion, error) {
	query := `
		SELECT id, root_cmd, variable, suggestions_provider,
		       created_at_unix_ms, updated_at_unix_ms
		FROM variable_completions
		WHERE 1=1
	`
	args := make([]any, 0, len(q.Variables)+1)

	if q.RootCmd != nil {
		query += " AND root_cmd IN (?, '')"
		args = append(args, strings.TrimSpace(*q.RootCmd))
	}
	if len(q.Variables) > 0 {
		query += " AND variable IN (" + placeholders(len(q.Variables)) + ")"
		for _, v := range q.Variables {
			args = append(args, cmdutil.Flatten(v))
		}
	}
	query += " ORDER BY root_cmd = '' ASC, root_cmd ASC, variable ASC"

	var completions []VariableCompletion
	err := s.actor.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var c VariableCompletion
			if err := rows.Scan(
				&c.ID, &c.RootCmd, &c.Variable, &c.SuggestionsProvider,
				&c.CreatedAtUnixMs, &c.UpdatedAtUnixMs,
			); err != nil {
				return err
			}
			completions = append(completions, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list completions: %w", err)
	}
	return completions, nil
}

// placeholders returns n comma-separated bind markers.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}
