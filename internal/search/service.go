// Package search finds and ranks bookmarked commands.
//
// A search runs as one SQL statement built from staged common table
// expressions (filter, text match per mode, workspace merge, usage by
// directory) on the store's connection actor, and the rows are then re-ranked
// by normalized, weighted scores.
package search

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"time"

	"github.com/runger/shellmark/internal/storage"
)

// Conn runs closures on the store's single connection.
type Conn interface {
	WithConn(ctx context.Context, fn func(ctx context.Context, conn *sql.Conn) error) error
}

// Config configures the search service.
type Config struct {
	// Logger for search operations.
	Logger *slog.Logger

	// Tuning holds the ranking weights. Nil uses DefaultTuning.
	Tuning *Tuning
}

// DefaultConfig returns the default search configuration.
func DefaultConfig() Config {
	tuning := DefaultTuning()
	return Config{
		Logger: slog.Default(),
		Tuning: &tuning,
	}
}

// Service searches commands.
type Service struct {
	conn   Conn
	logger *slog.Logger
	tuning Tuning
}

// NewService creates a new search service.
func NewService(conn Conn, cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	tuning := DefaultTuning()
	if cfg.Tuning != nil {
		tuning = *cfg.Tuning
	}
	return &Service{
		conn:   conn,
		logger: cfg.Logger,
		tuning: tuning,
	}
}

// SearchCommands returns the commands matching filter, best first. When the
// search term equals a command alias, only the aliased commands are returned
// and the second result is true. workingPath is the directory the search is
// made from; usage recorded near it ranks higher. A relative workingPath is
// resolved against the process working directory.
func (s *Service) SearchCommands(ctx context.Context, filter Filter, workingPath string) ([]storage.Command, bool, error) {
	start := time.Now()
	f := filter.Cleaned()

	if workingPath != "" {
		abs, err := filepath.Abs(workingPath)
		if err != nil {
			return nil, false, fmt.Errorf("failed to resolve working path: %w", err)
		}
		workingPath = abs
	}

	var (
		cmds    []storage.Command
		aliased bool
	)
	err := s.conn.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		if f.SearchTerm != nil {
			byAlias, err := storage.FindCommandsByAlias(ctx, conn, *f.SearchTerm)
			if err != nil {
				return err
			}
			if len(byAlias) > 0 {
				cmds, aliased = byAlias, true
				return nil
			}
		}

		withWorkspace, err := storage.WorkspaceLoaded(ctx, conn)
		if err != nil {
			return err
		}
		items, err := s.runQuery(ctx, conn, f, workingPath, withWorkspace)
		if err != nil {
			return err
		}
		cmds = rerank(items, s.tuning)
		return nil
	})
	if err != nil {
		if IsUserError(err) {
			return nil, false, err
		}
		return nil, false, fmt.Errorf("failed to search commands: %w", err)
	}

	s.logger.Debug("search completed",
		"mode", f.SearchMode,
		"term", f.Term(),
		"results", len(cmds),
		"alias_match", aliased,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return cmds, aliased, nil
}

func (s *Service) runQuery(ctx context.Context, conn *sql.Conn, f Filter, workingPath string, withWorkspace bool) ([]resultItem, error) {
	query, args, err := buildQuery(f, workingPath, s.tuning, withWorkspace)
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]resultItem, 0)
	for rows.Next() {
		var (
			item       resultItem
			usageTotal float64
		)
		item.cmd, err = storage.ScanCommand(rows, &item.isWorkspace, &item.textScore, &item.pathScore, &usageTotal)
		if err != nil {
			return nil, err
		}
		item.usageScore = math.Log1p(usageTotal)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
