package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/runger/shellmark/internal/cmdutil"
)

var commandColumnNames = []string{
	"id", "category", "source", "alias", "cmd", "flat_cmd",
	"description", "flat_description", "tags",
	"created_at_unix_ms", "updated_at_unix_ms",
}

// CommandColumns returns the select list matching ScanCommand, qualified with
// the given table alias when it is non-empty.
func CommandColumns(alias string) string {
	if alias == "" {
		return strings.Join(commandColumnNames, ", ")
	}
	cols := make([]string, len(commandColumnNames))
	for i, c := range commandColumnNames {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanCommand reads a row selected with CommandColumns. Any extra
// destinations are scanned from the columns that follow.
func ScanCommand(sc Scanner, extra ...any) (Command, error) {
	var (
		c    Command
		tags sql.NullString
	)
	dest := append([]any{
		&c.ID, &c.Category, &c.Source, &c.Alias, &c.Cmd, &c.FlatCmd,
		&c.Description, &c.FlatDescription, &tags,
		&c.CreatedAtUnixMs, &c.UpdatedAtUnixMs,
	}, extra...)
	if err := sc.Scan(dest...); err != nil {
		return Command{}, err
	}

	if tags.Valid && tags.String != "" {
		if err := json.Unmarshal([]byte(tags.String), &c.Tags); err != nil {
			return Command{}, fmt.Errorf("failed to decode tags of command %s: %w", c.ID, err)
		}
	}
	return c, nil
}

// InsertCommand stores a new command. Missing ID, category and source are
// filled in, and the flattened fields and tags are derived from Cmd and
// Description.
func (s *SQLiteStore) InsertCommand(ctx context.Context, c *Command) error {
	if c == nil {
		return errors.New("command cannot be nil")
	}
	if err := prepareCommand(c); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.CreatedAtUnixMs == 0 {
		c.CreatedAtUnixMs = time.Now().UnixMilli()
	}

	tags, err := encodeTags(c.Tags)
	if err != nil {
		return err
	}

	return s.actor.WithConnMut(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO commands (
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
			return commandWriteError(c, err, "insert")
		}
		return nil
	})
}

// UpdateCommand replaces every mutable field of the command with the given ID.
// Tags carried by the stored description are dropped unless the new
// description still has them, so editing a description doesn't leave stale
// tags behind.
func (s *SQLiteStore) UpdateCommand(ctx context.Context, c *Command) error {
	if c == nil {
		return errors.New("command cannot be nil")
	}
	if c.ID == "" {
		return errors.New("id is required")
	}

	return s.actor.WithConnMut(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var oldDescription sql.NullString
		err := tx.QueryRowContext(ctx, `SELECT description FROM commands WHERE id = ?`, c.ID).Scan(&oldDescription)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("command %s: %w", c.ID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to read command: %w", err)
		}
		if oldDescription.Valid {
			c.Tags = dropTags(c.Tags, cmdutil.ExtractTags(oldDescription.String))
		}

		if err := prepareCommand(c); err != nil {
			return err
		}
		now := time.Now().UnixMilli()
		c.UpdatedAtUnixMs = &now

		tags, err := encodeTags(c.Tags)
		if err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx, `
			UPDATE commands
			SET category = ?, source = ?, alias = ?, cmd = ?, flat_cmd = ?,
			    description = ?, flat_description = ?, tags = ?,
			    updated_at_unix_ms = ?
			WHERE id = ?
		`,
			c.Category, c.Source, c.Alias, c.Cmd, c.FlatCmd,
			c.Description, c.FlatDescription, tags,
			now, c.ID,
		)
		if err != nil {
			return commandWriteError(c, err, "update")
		}
		return requireAffected(result, "command", c.ID)
	})
}

// DeleteCommand removes a command and, by cascade, its usage rows.
func (s *SQLiteStore) DeleteCommand(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("id is required")
	}
	return s.actor.WithConnMut(ctx, func(ctx context.Context, tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM commands WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete command: %w", err)
		}
		return requireAffected(result, "command", id)
	})
}

// GetCommand returns the persistent command with the given ID.
func (s *SQLiteStore) GetCommand(ctx context.Context, id string) (*Command, error) {
	var c Command
	err := s.actor.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		row := conn.QueryRowContext(ctx,
			`SELECT `+CommandColumns("")+` FROM commands WHERE id = ?`, id)
		var err error
		c, err = ScanCommand(row)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("command %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get command: %w", err)
	}
	return &c, nil
}

// FindCommandsByAlias returns the commands whose alias equals alias, looking
// at the persistent store first and then at the loaded workspace. A workspace
// command whose cmd is already stored is not returned twice.
func (s *SQLiteStore) FindCommandsByAlias(ctx context.Context, alias string) ([]Command, error) {
	var cmds []Command
	err := s.actor.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		var err error
		cmds, err = FindCommandsByAlias(ctx, conn, alias)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cmds, nil
}

// FindCommandsByAlias runs the alias lookup on an already acquired
// connection.
func FindCommandsByAlias(ctx context.Context, q Querier, alias string) ([]Command, error) {
	loaded, err := WorkspaceLoaded(ctx, q)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + CommandColumns("c") + `, 0 AS src FROM commands c WHERE c.alias = ?`
	args := []any{alias}
	if loaded {
		query += `
			UNION ALL
			SELECT ` + CommandColumns("w") + `, 1 AS src
			FROM temp.workspace_commands w
			WHERE w.alias = ?
			  AND NOT EXISTS (SELECT 1 FROM commands c2 WHERE trim(c2.cmd) = trim(w.cmd))`
		args = append(args, alias)
	}
	query = `SELECT * FROM (` + query + `) ORDER BY src, cmd`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find commands by alias: %w", err)
	}
	defer rows.Close()

	var cmds []Command
	for rows.Next() {
		var src int
		c, err := ScanCommand(rows, &src)
		if err != nil {
			return nil, fmt.Errorf("failed to scan command: %w", err)
		}
		cmds = append(cmds, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate commands: %w", err)
	}
	return cmds, nil
}

// ListCategories returns the distinct categories in use, sorted.
func (s *SQLiteStore) ListCategories(ctx context.Context) ([]string, error) {
	var categories []string
	err := s.actor.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `SELECT DISTINCT category FROM commands ORDER BY category`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var c string
			if err := rows.Scan(&c); err != nil {
				return err
			}
			categories = append(categories, c)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// ListTags returns every tag with the number of commands carrying it, most
// used first.
func (s *SQLiteStore) ListTags(ctx context.Context) ([]TagCount, error) {
	var tags []TagCount
	err := s.actor.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `
			SELECT t.value, COUNT(*) AS n
			FROM commands c, json_each(c.tags) t
			WHERE c.tags IS NOT NULL
			GROUP BY t.value
			ORDER BY n DESC, t.value ASC
		`)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var tc TagCount
			if err := rows.Scan(&tc.Tag, &tc.Count); err != nil {
				return err
			}
			tags = append(tags, tc)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	return tags, nil
}

// prepareCommand validates c and derives its flattened fields and tags.
func prepareCommand(c *Command) error {
	c.Cmd = strings.TrimSpace(c.Cmd)
	if c.Cmd == "" {
		return errors.New("cmd is required")
	}
	if c.Category == "" {
		c.Category = CategoryUser
	}
	if c.Source == "" {
		c.Source = SourceUser
	}
	c.Alias = trimOptional(c.Alias)
	c.Description = trimOptional(c.Description)

	c.FlatCmd = cmdutil.Flatten(c.Cmd)
	c.FlatDescription = cmdutil.FlattenPtr(c.Description)

	tags := c.Tags
	if c.Description != nil {
		tags = append(tags, cmdutil.ExtractTags(*c.Description)...)
	}
	c.Tags = normalizeTags(tags)
	return nil
}

// dropTags returns tags without the ones in remove, compared normalized.
func dropTags(tags, remove []string) []string {
	if len(tags) == 0 || len(remove) == 0 {
		return tags
	}
	drop := make(map[string]bool, len(remove))
	for _, t := range remove {
		drop[cmdutil.NormalizeTag(t)] = true
	}
	kept := make([]string, 0, len(tags))
	for _, t := range tags {
		if !drop[cmdutil.NormalizeTag(t)] {
			kept = append(kept, t)
		}
	}
	return kept
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

// normalizeTags returns the distinct normalized tags in first-seen order.
func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		n := cmdutil.NormalizeTag(t)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func encodeTags(tags []string) (*string, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", err)
	}
	s := string(b)
	return &s, nil
}

// commandWriteError maps constraint violations to ErrAlreadyExists.
func commandWriteError(c *Command, err error, op string) error {
	if !isUniqueConstraintError(err) {
		return fmt.Errorf("failed to %s command: %w", op, err)
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "commands.alias") && c.Alias != nil:
		return fmt.Errorf("alias %q: %w", *c.Alias, ErrAlreadyExists)
	case strings.Contains(msg, "commands.cmd"):
		return fmt.Errorf("command %q: %w", c.Cmd, ErrAlreadyExists)
	default:
		return fmt.Errorf("command %s: %w", c.ID, ErrAlreadyExists)
	}
}

func requireAffected(result sql.Result, kind, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}
