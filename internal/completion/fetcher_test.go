package completion

import (
	"context"
	"errors"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runger/shellmark/internal/storage"
)

type fakeSource struct {
	completions []storage.VariableCompletion
	err         error

	mu      sync.Mutex
	queries []storage.CompletionQuery
}

func (s *fakeSource) ListCompletions(_ context.Context, q storage.CompletionQuery) ([]storage.VariableCompletion, error) {
	s.mu.Lock()
	s.queries = append(s.queries, q)
	s.mu.Unlock()
	return s.completions, s.err
}

func staticRunner(outputs map[string]string) Runner {
	return func(_ context.Context, provider string) ([]byte, error) {
		out, ok := outputs[provider]
		if !ok {
			return nil, errors.New("unknown provider")
		}
		return []byte(out), nil
	}
}

func TestFetch_NoVariables(t *testing.T) {
	t.Parallel()

	src := &fakeSource{}
	f := NewFetcher(src, Config{Runner: staticRunner(nil)})

	results, err := f.Fetch(context.Background(), "ls -la")
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Empty(t, src.queries)
}

func TestFetch_RootSpecificWins(t *testing.T) {
	t.Parallel()

	src := &fakeSource{completions: []storage.VariableCompletion{
		{RootCmd: "git", Variable: "branch", SuggestionsProvider: "git-branches"},
		{RootCmd: "", Variable: "branch", SuggestionsProvider: "global-branches"},
		{RootCmd: "", Variable: "remote", SuggestionsProvider: "remotes"},
	}}
	f := NewFetcher(src, Config{Runner: staticRunner(map[string]string{
		"git-branches":    "main\nfeature\n\nmain\n",
		"global-branches": "wrong\n",
		"remotes":         "  origin  \nupstream",
	})})

	results, err := f.Fetch(context.Background(), "git push {{remote}} {{branch}} --force-with-lease={{branch}}")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "remote", results[0].Variable.Flat)
	assert.Equal(t, []string{"origin", "upstream"}, results[0].Values)
	assert.Equal(t, "branch", results[1].Variable.Flat)
	assert.Equal(t, "git-branches", results[1].Provider)
	assert.Equal(t, []string{"main", "feature"}, results[1].Values)

	require.Len(t, src.queries, 1)
	require.NotNil(t, src.queries[0].RootCmd)
	assert.Equal(t, "git", *src.queries[0].RootCmd)
	assert.ElementsMatch(t, []string{"remote", "branch"}, src.queries[0].Variables)
}

func TestFetch_UnregisteredVariable(t *testing.T) {
	t.Parallel()

	f := NewFetcher(&fakeSource{}, Config{Runner: staticRunner(nil)})

	results, err := f.Fetch(context.Background(), "echo {{message}}")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Empty(t, results[0].Provider)
	assert.Nil(t, results[0].Values)
	assert.NoError(t, results[0].Err)
}

func TestFetch_TimeoutIsPerVariable(t *testing.T) {
	t.Parallel()

	src := &fakeSource{completions: []storage.VariableCompletion{
		{Variable: "slow", SuggestionsProvider: "sleep"},
		{Variable: "fast", SuggestionsProvider: "echo"},
	}}
	runner := func(ctx context.Context, provider string) ([]byte, error) {
		if provider == "sleep" {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return []byte("value\n"), nil
	}
	f := NewFetcher(src, Config{Timeout: 20 * time.Millisecond, Runner: runner})

	results, err := f.Fetch(context.Background(), "cmd {{slow}} {{fast}}")
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.ErrorIs(t, results[0].Err, ErrTimeout)
	assert.Nil(t, results[0].Values)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, []string{"value"}, results[1].Values)
}

func TestFetch_ProviderError(t *testing.T) {
	t.Parallel()

	src := &fakeSource{completions: []storage.VariableCompletion{
		{Variable: "x", SuggestionsProvider: "missing"},
	}}
	f := NewFetcher(src, Config{Runner: staticRunner(nil)})

	results, err := f.Fetch(context.Background(), "cmd {{x}}")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
	assert.NotErrorIs(t, results[0].Err, ErrTimeout)
}

func TestFetch_SourceError(t *testing.T) {
	t.Parallel()

	f := NewFetcher(&fakeSource{err: errors.New("boom")}, Config{Runner: staticRunner(nil)})

	_, err := f.Fetch(context.Background(), "cmd {{x}}")
	assert.ErrorContains(t, err, "boom")
}

func TestFetch_RespectsConcurrencyLimit(t *testing.T) {
	t.Parallel()

	src := &fakeSource{completions: []storage.VariableCompletion{
		{Variable: "a", SuggestionsProvider: "p"},
		{Variable: "b", SuggestionsProvider: "p"},
		{Variable: "c", SuggestionsProvider: "p"},
		{Variable: "d", SuggestionsProvider: "p"},
	}}

	var running, peak atomic.Int32
	runner := func(context.Context, string) ([]byte, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		running.Add(-1)
		return []byte("v"), nil
	}
	f := NewFetcher(src, Config{MaxConcurrency: 2, Runner: runner})

	results, err := f.Fetch(context.Background(), "{{a}} {{b}} {{c}} {{d}}")
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestFetch_CanceledContext(t *testing.T) {
	t.Parallel()

	src := &fakeSource{completions: []storage.VariableCompletion{
		{Variable: "x", SuggestionsProvider: "p"},
	}}
	f := NewFetcher(src, Config{Runner: staticRunner(map[string]string{"p": "v"})})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, "cmd {{x}}")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFetch_WithStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, err := storage.NewSQLiteStore(ctx, storage.Options{
		Path:               filepath.Join(t.TempDir(), "test.db"),
		CheckpointInterval: -1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.InsertCompletion(ctx, &storage.VariableCompletion{
		Variable: "Namespace", SuggestionsProvider: "global-ns",
	}))
	require.NoError(t, store.InsertCompletion(ctx, &storage.VariableCompletion{
		RootCmd: "kubectl", Variable: "namespace", SuggestionsProvider: "kube-ns",
	}))

	f := NewFetcher(store, Config{Runner: staticRunner(map[string]string{
		"global-ns": "other",
		"kube-ns":   "default\nkube-system",
	})})

	results, err := f.Fetch(ctx, "kubectl get pods -n {{namespace}}")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "kube-ns", results[0].Provider)
	assert.Equal(t, []string{"default", "kube-system"}, results[0].Values)

	results, err = f.Fetch(ctx, "helm list -n {{namespace}}")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "global-ns", results[0].Provider)
}

func TestLines(t *testing.T) {
	t.Parallel()

	assert.Nil(t, Lines(nil))
	assert.Equal(t, []string{"a", "b"}, Lines([]byte("a\r\n\n b \na\n")))
}

func TestShellRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses /bin/sh")
	}
	t.Parallel()

	out, err := ShellRunner(context.Background(), "printf 'one\\ntwo\\n'")
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, Lines(out))

	_, err = ShellRunner(context.Background(), "echo nope >&2; exit 3")
	assert.ErrorContains(t, err, "nope")
}
