// Package cmd implements the shellmark command line.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/runger/shellmark/internal/config"
	"github.com/runger/shellmark/internal/logging"
	"github.com/runger/shellmark/internal/search"
	"github.com/runger/shellmark/internal/storage"
)

const (
	groupCore  = "core"
	groupSetup = "setup"
)

// app holds the state shared by the commands of one invocation.
type app struct {
	configPath string
	dbPath     string
	colorMode  string

	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error
	store    *storage.SQLiteStore
}

// Execute runs the root command.
func Execute() error {
	root, a := newRootCmd()
	defer a.close()
	return root.Execute()
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{}

	root := &cobra.Command{
		Use:   "shellmark",
		Short: "bookmark, search and reuse shell commands",
		Long: `shellmark - bookmark, search and reuse shell commands
  - save snippets with {{variables}}, aliases and #tags
  - search them five ways, ranked by where you use them`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/shellmark/config.yaml)")
	root.PersistentFlags().StringVar(&a.dbPath, "db", "", "database file (overrides storage.db_path)")
	root.PersistentFlags().StringVar(&a.colorMode, "color", "auto", "color output: auto, always, or never")

	root.AddGroup(
		&cobra.Group{ID: groupCore, Title: "Commands:"},
		&cobra.Group{ID: groupSetup, Title: "Setup:"},
	)

	root.AddCommand(
		newAddCmd(a),
		newUpdateCmd(a),
		newRmCmd(a),
		newSearchCmd(a),
		newUseCmd(a),
		newTagsCmd(a),
		newCompletionCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return root, a
}

// setup loads the configuration and logger before any subcommand runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if err := applyColorMode(a.colorMode, cmd.OutOrStdout()); err != nil {
		return err
	}

	path := a.configPath
	if path == "" {
		path = config.DefaultPaths().ConfigFile()
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.dbPath != "" {
		cfg.Storage.DBPath = a.dbPath
	}
	a.cfg = cfg
	a.configPath = path

	logger, closeLog, err := logging.Open(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	a.logger = logger
	a.closeLog = closeLog
	slog.SetDefault(logger)
	return nil
}

// openStore opens the database on first use.
func (a *app) openStore(ctx context.Context) (*storage.SQLiteStore, error) {
	if a.store != nil {
		return a.store, nil
	}
	store, err := storage.NewSQLiteStore(ctx, storage.Options{
		Path:        a.cfg.DatabaseFile(),
		BusyTimeout: a.cfg.BusyTimeout(),
		Logger:      a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.store = store
	return store, nil
}

func (a *app) searchService(store *storage.SQLiteStore) *search.Service {
	tuning := a.cfg.Tuning.SearchTuning()
	return search.NewService(store, search.Config{
		Logger: a.logger,
		Tuning: &tuning,
	})
}

func (a *app) close() error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	if a.closeLog != nil {
		errs = append(errs, a.closeLog())
		a.closeLog = nil
	}
	return errors.Join(errs...)
}

// workingDir returns dir as an absolute path, or the process working
// directory when dir is empty.
func workingDir(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve directory %s: %w", dir, err)
	}
	return abs, nil
}
