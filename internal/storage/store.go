// Package storage provides SQLite-based persistent storage for shellmark.
// It handles bookmarked commands, their per-directory usage and variable
// completions. All access is serialized through a single connection actor.
package storage

import (
	"context"
	"database/sql"
	"errors"
)

var (
	// ErrNotFound is returned when a command or completion does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when a unique cmd, alias or completion
	// key is already taken.
	ErrAlreadyExists = errors.New("already exists")
)

// Command categories.
const (
	CategoryUser      = "user"
	CategoryWorkspace = "workspace"
	CategoryTLDR      = "tldr"
)

// Command sources.
const (
	SourceUser      = "user"
	SourceImport    = "import"
	SourceTLDR      = "tldr"
	SourceWorkspace = "workspace"
)

// Store defines the interface for all storage operations.
type Store interface {
	// Commands
	InsertCommand(ctx context.Context, c *Command) error
	UpdateCommand(ctx context.Context, c *Command) error
	DeleteCommand(ctx context.Context, id string) error
	GetCommand(ctx context.Context, id string) (*Command, error)
	FindCommandsByAlias(ctx context.Context, alias string) ([]Command, error)
	ListCategories(ctx context.Context) ([]string, error)
	ListTags(ctx context.Context) ([]TagCount, error)

	// Usage
	IncrementUsage(ctx context.Context, commandID, path string) (int64, error)

	// Workspace
	LoadWorkspace(ctx context.Context, cmds []Command) (int, error)
	ClearWorkspace(ctx context.Context) error

	// Variable completions
	InsertCompletion(ctx context.Context, c *VariableCompletion) error
	DeleteCompletion(ctx context.Context, id string) error
	ListCompletions(ctx context.Context, q CompletionQuery) ([]VariableCompletion, error)

	// Raw access for the search engine
	WithConn(ctx context.Context, fn func(ctx context.Context, conn *sql.Conn) error) error
	WithConnMut(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error

	// Lifecycle
	Close() error
}

// Command is a bookmarked shell command. Cmd may contain {{variable}}
// placeholders.
type Command struct {
	ID              string
	Category        string
	Source          string
	Alias           *string
	Cmd             string
	FlatCmd         string
	Description     *string
	FlatDescription *string
	Tags            []string
	CreatedAtUnixMs int64
	UpdatedAtUnixMs *int64
}

// TagCount is a tag with the number of commands carrying it.
type TagCount struct {
	Tag   string
	Count int
}

// VariableCompletion maps a template variable to a shell command whose output
// lines are suggested values. An empty RootCmd applies to every command.
type VariableCompletion struct {
	ID                  string
	RootCmd             string
	Variable            string
	SuggestionsProvider string
	CreatedAtUnixMs     int64
	UpdatedAtUnixMs     *int64
}

// CompletionQuery selects variable completions.
type CompletionQuery struct {
	// RootCmd, when set, limits results to completions for that root command
	// plus the global ones.
	RootCmd *string

	// Variables, when non-empty, limits results to these flattened names.
	Variables []string
}
