// Package completion suggests values for the {{variables}} of a command
// template by running the shell commands registered as their providers.
package completion

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/runger/shellmark/internal/cmdutil"
	"github.com/runger/shellmark/internal/storage"
)

// ErrTimeout is reported for a variable whose provider did not finish in time.
var ErrTimeout = errors.New("completion provider timed out")

// Source lists registered completions.
type Source interface {
	ListCompletions(ctx context.Context, q storage.CompletionQuery) ([]storage.VariableCompletion, error)
}

// Runner executes a provider command and returns its standard output.
type Runner func(ctx context.Context, provider string) ([]byte, error)

// Config configures a Fetcher.
type Config struct {
	Logger *slog.Logger

	// Timeout bounds each provider run (default: 2s).
	Timeout time.Duration

	// MaxConcurrency bounds the providers running at once (default: 4).
	MaxConcurrency int

	// Runner executes providers. Nil runs them with ShellRunner.
	Runner Runner
}

// Result holds the suggestions for one template variable.
type Result struct {
	Variable cmdutil.Variable

	// Provider is the command that produced Values, "" when none is
	// registered for the variable.
	Provider string

	// Values are the distinct non-empty output lines, in output order.
	Values []string

	// Err is set when the provider failed or timed out.
	Err error
}

// Fetcher resolves and runs completion providers.
type Fetcher struct {
	source  Source
	logger  *slog.Logger
	timeout time.Duration
	limit   int
	run     Runner
}

// NewFetcher creates a Fetcher reading completions from source.
func NewFetcher(source Source, cfg Config) *Fetcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 4
	}
	if cfg.Runner == nil {
		cfg.Runner = ShellRunner
	}
	return &Fetcher{
		source:  source,
		logger:  cfg.Logger,
		timeout: cfg.Timeout,
		limit:   cfg.MaxConcurrency,
		run:     cfg.Runner,
	}
}

// Fetch returns one Result per variable of cmd, in template order. A
// completion registered for the command's root token wins over a global one.
// Provider failures are reported on their Result; the returned error is only
// set when the lookup fails or ctx is done.
func (f *Fetcher) Fetch(ctx context.Context, cmd string) ([]Result, error) {
	vars := cmdutil.ExtractVariables(cmd)
	if len(vars) == 0 {
		return nil, nil
	}

	providers, err := f.resolve(ctx, cmd, vars)
	if err != nil {
		return nil, err
	}

	results := make([]Result, len(vars))
	g := new(errgroup.Group)
	g.SetLimit(f.limit)
	for i, v := range vars {
		i, v := i, v
		results[i] = Result{Variable: v, Provider: providers[v.Flat]}
		if results[i].Provider == "" {
			continue
		}
		g.Go(func() error {
			results[i].Values, results[i].Err = f.fetchOne(ctx, results[i].Provider)
			if results[i].Err != nil {
				f.logger.Debug("completion provider failed",
					"variable", v.Flat,
					"provider", results[i].Provider,
					"error", results[i].Err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// resolve maps each flattened variable name to its provider.
func (f *Fetcher) resolve(ctx context.Context, cmd string, vars []cmdutil.Variable) (map[string]string, error) {
	names := make([]string, len(vars))
	for i, v := range vars {
		names[i] = v.Flat
	}
	root := cmdutil.RootToken(cmd)

	completions, err := f.source.ListCompletions(ctx, storage.CompletionQuery{
		RootCmd:   &root,
		Variables: names,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up completions: %w", err)
	}

	// Root-specific rows are listed before global ones.
	providers := make(map[string]string, len(completions))
	for _, c := range completions {
		if _, ok := providers[c.Variable]; !ok {
			providers[c.Variable] = c.SuggestionsProvider
		}
	}
	return providers, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, provider string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	out, err := f.run(ctx, provider)
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return nil, fmt.Errorf("%w after %s", ErrTimeout, f.timeout)
	}
	if err != nil {
		return nil, err
	}
	return Lines(out), nil
}

// Lines returns the distinct non-empty trimmed lines of out.
func Lines(out []byte) []string {
	var lines []string
	seen := make(map[string]bool)
	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || seen[line] {
			continue
		}
		seen[line] = true
		lines = append(lines, line)
	}
	return lines
}

// ShellRunner runs provider with the platform shell.
func ShellRunner(ctx context.Context, provider string) ([]byte, error) {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd", "/C", provider)
	} else {
		cmd = exec.CommandContext(ctx, "/bin/sh", "-c", provider)
	}
	cmd.WaitDelay = 100 * time.Millisecond

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	return out, nil
}
