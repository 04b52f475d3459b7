package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/runger/shellmark/internal/picker"
	"github.com/runger/shellmark/internal/search"
	"github.com/runger/shellmark/internal/storage"
	"github.com/runger/shellmark/internal/workspace"
)

type searchOptions struct {
	mode        string
	categories  []string
	source      string
	tags        []string
	json        bool
	interactive bool
	limit       int
	path        string
	noWorkspace bool
}

func newSearchCmd(a *app) *cobra.Command {
	var opts searchOptions
	cmd := &cobra.Command{
		Use:     "search [term...]",
		Short:   "Search bookmarked commands",
		GroupID: groupCore,
		Long: `Search bookmarked commands, best match first.

A term equal to an alias returns the aliased commands only. Results blend text
relevance with how often each command was used in and around the working
directory. Commands from the nearest .shellmark.yaml rank above the rest.

Modes:
  auto     word prefixes, then typo-tolerant matches; -word excludes
  exact    every word appears as a whole word
  relaxed  any word matches
  regex    RE2 regular expression
  fuzzy    fzf-style terms: 'exact ^prefix suffix$ !negated a | b

Examples:
  shellmark search docker up          # Auto mode
  shellmark search -m regex '^git (push|pull)'
  shellmark search -t k8s --json      # Everything tagged #k8s, as JSON
  shellmark search -i                 # Interactive picker`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, a, &opts, strings.Join(args, " "))
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&opts.mode, "mode", "m", "", "auto, exact, relaxed, regex or fuzzy (default search.default_mode)")
	fs.StringSliceVarP(&opts.categories, "category", "c", nil, "only these categories (repeatable)")
	fs.StringVar(&opts.source, "source", "", "only this source")
	fs.StringSliceVarP(&opts.tags, "tag", "t", nil, "only commands with all these tags (repeatable)")
	fs.BoolVar(&opts.json, "json", false, "output results as JSON")
	fs.BoolVarP(&opts.interactive, "interactive", "i", false, "pick a result interactively")
	fs.IntVarP(&opts.limit, "limit", "n", 0, "maximum number of results (0 = no limit)")
	fs.StringVar(&opts.path, "path", "", "directory to search from (default: working directory)")
	fs.BoolVar(&opts.noWorkspace, "no-workspace", false, "ignore workspace files")
	cmd.MarkFlagsMutuallyExclusive("json", "interactive")
	return cmd
}

func runSearch(cmd *cobra.Command, a *app, opts *searchOptions, term string) error {
	ctx := cmd.Context()

	mode := a.cfg.DefaultMode()
	if opts.mode != "" {
		m, err := search.ParseMode(opts.mode)
		if err != nil {
			return err
		}
		mode = m
	}
	dir, err := workingDir(opts.path)
	if err != nil {
		return err
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if !opts.noWorkspace {
		file, n, err := workspace.Load(ctx, store, dir, a.cfg.Search.WorkspaceFile)
		if err != nil {
			return err
		}
		if file != "" {
			a.logger.Debug("workspace file loaded", "path", file, "commands", n)
		}
	}

	filter := search.Filter{
		SearchTerm: optional(term),
		SearchMode: mode,
		Categories: opts.categories,
		Source:     optional(opts.source),
		Tags:       opts.tags,
	}
	svc := a.searchService(store)

	if opts.interactive {
		return runPicker(cmd, a, store, svc, filter, dir)
	}

	cmds, aliased, err := svc.SearchCommands(ctx, filter, dir)
	if err != nil {
		return err
	}
	if opts.limit > 0 && len(cmds) > opts.limit {
		cmds = cmds[:opts.limit]
	}

	out := cmd.OutOrStdout()
	if opts.json {
		return writeSearchJSON(out, cmds, aliased)
	}
	if len(cmds) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}
	width := termWidth(out)
	for _, c := range cmds {
		printCommand(out, c, width)
	}
	return nil
}

// runPicker searches interactively on the terminal, prints the chosen
// command and records its use.
func runPicker(cmd *cobra.Command, a *app, store *storage.SQLiteStore, svc *search.Service, filter search.Filter, dir string) error {
	// stdout carries the result, so the TUI talks to the terminal directly.
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("interactive search needs a terminal: %w", err)
	}
	defer tty.Close()
	lipgloss.SetColorProfile(termenv.NewOutput(tty).ColorProfile())

	model := picker.NewModel(picker.NewSearchProvider(svc, filter, dir), picker.Options{
		Mode:     filter.SearchMode,
		Query:    filter.Term(),
		Debounce: time.Duration(a.cfg.Search.DebounceMs) * time.Millisecond,
	})
	final, err := tea.NewProgram(model,
		tea.WithAltScreen(),
		tea.WithInput(tty),
		tea.WithOutput(tty),
		tea.WithContext(cmd.Context()),
	).Run()
	if err != nil {
		return fmt.Errorf("picker failed: %w", err)
	}

	m, ok := final.(picker.Model)
	if !ok {
		return errors.New("picker returned an unexpected model")
	}
	item, ok := m.Result()
	if !ok {
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), item.Cmd)

	if !item.Workspace {
		recordUse(cmd.Context(), a, store, item.ID, dir)
	}
	return nil
}

func recordUse(ctx context.Context, a *app, store *storage.SQLiteStore, id, dir string) {
	if _, err := store.IncrementUsage(ctx, id, dir); err != nil {
		a.logger.Warn("failed to record usage", "id", id, "error", err)
	}
}

// printCommand writes one result line: the command, its alias and its
// description, cut to width columns when width is positive.
func printCommand(out io.Writer, c storage.Command, width int) {
	line := c.Cmd
	var extra string
	if c.Alias != nil {
		extra += " [" + *c.Alias + "]"
	}
	if c.Description != nil {
		extra += "  # " + strings.Join(strings.Fields(*c.Description), " ")
	}
	if width > 0 {
		extra = picker.MiddleTruncate(extra, width-len([]rune(line)))
	}

	marker := ""
	if c.Category == storage.CategoryWorkspace {
		marker = colorGreen + "◆ " + colorReset
	}
	fmt.Fprintf(out, "%s%s%s%s%s%s\n", marker, colorBold, line, colorReset, colorDim+extra, colorReset)
}

type searchOutput struct {
	ID          string   `json:"id"`
	Cmd         string   `json:"cmd"`
	Alias       string   `json:"alias,omitempty"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category"`
	Source      string   `json:"source"`
	Tags        []string `json:"tags,omitempty"`
	Workspace   bool     `json:"workspace,omitempty"`
}

type searchResponse struct {
	Results    []searchOutput `json:"results"`
	Total      int            `json:"total"`
	AliasMatch bool           `json:"alias_match"`
}

func writeSearchJSON(out io.Writer, cmds []storage.Command, aliased bool) error {
	resp := searchResponse{
		Results:    make([]searchOutput, len(cmds)),
		Total:      len(cmds),
		AliasMatch: aliased,
	}
	for i, c := range cmds {
		o := searchOutput{
			ID:        c.ID,
			Cmd:       c.Cmd,
			Category:  c.Category,
			Source:    c.Source,
			Tags:      c.Tags,
			Workspace: c.Category == storage.CategoryWorkspace,
		}
		if c.Alias != nil {
			o.Alias = *c.Alias
		}
		if c.Description != nil {
			o.Description = *c.Description
		}
		resp.Results[i] = o
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
