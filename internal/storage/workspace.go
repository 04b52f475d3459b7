package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// LoadWorkspace replaces the connection-local workspace commands with cmds.
// Commands with the same trimmed cmd are loaded once. It returns the number of
// commands loaded.
func (s *SQLiteStore) LoadWorkspace(ctx context.Context, cmds []Command) (int, error) {
	prepared := make([]Command, 0, len(cmds))
	seen := make(map[string]bool, len(cmds))
	now := time.Now().UnixMilli()
	for _, c := range cmds {
		c.Category = CategoryWorkspace
		c.Source = SourceWorkspace
		if err := prepareCommand(&c); err != nil {
			return 0, fmt.Errorf("invalid workspace command: %w", err)
		}
		if seen[c.Cmd] {
			continue
		}
		seen[c.Cmd] = true
		if c.ID == "" {
			c.ID = uuid.NewString()
		}
		if c.CreatedAtUnixMs == 0 {
			c.CreatedAtUnixMs = now
		}
		prepared = append(prepared, c)
	}

	err := s.actor.WithConnMut(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, workspaceSchema); err != nil {
			return fmt.Errorf("failed to create workspace tables: %w", err)
		}
		for _, table := range []string{"workspace_commands", "workspace_commands_fts", "workspace_commands_trgm"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM temp."+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		for i := range prepared {
			if err := insertWorkspaceCommand(ctx, tx, &prepared[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Debug("workspace loaded", "commands", len(prepared))
	return len(prepared), nil
}

func insertWorkspaceCommand(ctx context.Context, tx *sql.Tx, c *Command) error {
	tags, err := encodeTags(c.Tags)
	if err != nil {
		return err
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO temp.workspace_commands (
			id, category, source, alias, cmd, flat_cmd,
			description, flat_description, tags,
			created_at_unix_ms, updated_at_unix_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		c.ID, c.Category, c.Source, c.Alias, c.Cmd, c.FlatCmd,
		c.Description, c.FlatDescription, tags,
		c.CreatedAtUnixMs, c.UpdatedAtUnixMs,
	)
	if err != nil {
		return fmt.Errorf("failed to insert workspace command %q: %w", c.Cmd, err)
	}
	pk, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get workspace command rowid: %w", err)
	}

	for _, table := range []string{"workspace_commands_fts", "workspace_commands_trgm"} {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO temp."+table+" (rowid, flat_cmd, flat_description) VALUES (?, ?, ?)",
			pk, c.FlatCmd, c.FlatDescription)
		if err != nil {
			return fmt.Errorf("failed to index workspace command %q: %w", c.Cmd, err)
		}
	}
	return nil
}

// ClearWorkspace drops the workspace tables, so searches only see the
// persistent store again.
func (s *SQLiteStore) ClearWorkspace(ctx context.Context) error {
	return s.actor.WithConnMut(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, table := range []string{"workspace_commands_trgm", "workspace_commands_fts", "workspace_commands"} {
			if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS temp."+table); err != nil {
				return fmt.Errorf("failed to drop %s: %w", table, err)
			}
		}
		return nil
	})
}

// WorkspaceLoaded reports whether the workspace tables exist on the
// connection behind q.
func WorkspaceLoaded(ctx context.Context, q Querier) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM temp.sqlite_master
		WHERE type = 'table' AND name = 'workspace_commands'
	`).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check workspace tables: %w", err)
	}
	return n > 0, nil
}
