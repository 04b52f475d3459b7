package storage

import (
	"context"
	"database/sql"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertCommand_DerivesFields(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	c := &Command{
		Cmd:         "  Grep -Ri 'Café' .  ",
		Alias:       strPtr(" gr "),
		Description: strPtr("Search recursively for café #Search #grep"),
	}
	require.NoError(t, store.InsertCommand(ctx, c))

	assert.NotEmpty(t, c.ID)
	assert.Equal(t, CategoryUser, c.Category)
	assert.Equal(t, SourceUser, c.Source)
	assert.NotZero(t, c.CreatedAtUnixMs)

	got, err := store.GetCommand(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Grep -Ri 'Café' .", got.Cmd)
	assert.Equal(t, "grep -ri 'cafe' .", got.FlatCmd)
	require.NotNil(t, got.Alias)
	assert.Equal(t, "gr", *got.Alias)
	require.NotNil(t, got.FlatDescription)
	assert.Equal(t, "search recursively for cafe #search #grep", *got.FlatDescription)
	assert.Equal(t, []string{"#search", "#grep"}, got.Tags)
	assert.Nil(t, got.UpdatedAtUnixMs)
}

func TestInsertCommand_Validation(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.Error(t, store.InsertCommand(ctx, nil))
	require.Error(t, store.InsertCommand(ctx, &Command{Cmd: "   "}))
}

func TestInsertCommand_Duplicates(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertCommand(ctx, &Command{Cmd: "git status", Alias: strPtr("gs")}))

	err := store.InsertCommand(ctx, &Command{Cmd: "git status"})
	require.ErrorIs(t, err, ErrAlreadyExists)
	assert.Contains(t, err.Error(), "git status")

	err = store.InsertCommand(ctx, &Command{Cmd: "git stash", Alias: strPtr("gs")})
	require.ErrorIs(t, err, ErrAlreadyExists)
	assert.Contains(t, err.Error(), "alias")

	// Commands without alias don't collide on NULL.
	require.NoError(t, store.InsertCommand(ctx, &Command{Cmd: "git log"}))
	require.NoError(t, store.InsertCommand(ctx, &Command{Cmd: "git diff"}))
}

func TestUpdateCommand(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	c := &Command{Cmd: "docker ps", Description: strPtr("list containers #docker")}
	require.NoError(t, store.InsertCommand(ctx, c))

	c.Cmd = "docker ps -a"
	c.Description = strPtr("list all containers #docker #all")
	c.Tags = nil
	require.NoError(t, store.UpdateCommand(ctx, c))

	got, err := store.GetCommand(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "docker ps -a", got.Cmd)
	assert.Equal(t, []string{"#docker", "#all"}, got.Tags)
	require.NotNil(t, got.UpdatedAtUnixMs)

	// The FTS index follows the update.
	var hits int
	require.NoError(t, store.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM commands_fts WHERE commands_fts MATCH '"all"'`).Scan(&hits)
	}))
	assert.Equal(t, 1, hits)

	err = store.UpdateCommand(ctx, &Command{ID: "missing", Cmd: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateCommand_DescriptionTagsFollowDescription(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	c := &Command{Cmd: "deploy app", Description: strPtr("ship it #prod"), Tags: []string{"ops"}}
	require.NoError(t, store.InsertCommand(ctx, c))

	loaded, err := store.GetCommand(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"#ops", "#prod"}, loaded.Tags)

	loaded.Description = strPtr("ship it to staging #staging")
	require.NoError(t, store.UpdateCommand(ctx, loaded))

	got, err := store.GetCommand(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"#ops", "#staging"}, got.Tags)

	tags, err := store.ListTags(ctx)
	require.NoError(t, err)
	names := make([]string, len(tags))
	for i, tc := range tags {
		names[i] = tc.Tag
	}
	assert.ElementsMatch(t, []string{"#ops", "#staging"}, names)

	// Clearing the description drops its tags too.
	got.Description = nil
	require.NoError(t, store.UpdateCommand(ctx, got))
	got, err = store.GetCommand(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"#ops"}, got.Tags)
}

func TestDeleteCommand_CascadesUsage(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	c := &Command{Cmd: "make test"}
	require.NoError(t, store.InsertCommand(ctx, c))
	_, err := store.IncrementUsage(ctx, c.ID, "/src/project")
	require.NoError(t, err)

	require.NoError(t, store.DeleteCommand(ctx, c.ID))

	_, err = store.GetCommand(ctx, c.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	var usageRows, ftsRows int
	require.NoError(t, store.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM command_usage`).Scan(&usageRows); err != nil {
			return err
		}
		return conn.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM commands_trgm WHERE commands_trgm MATCH '"make"'`).Scan(&ftsRows)
	}))
	assert.Zero(t, usageRows)
	assert.Zero(t, ftsRows)

	assert.ErrorIs(t, store.DeleteCommand(ctx, c.ID), ErrNotFound)
}

func TestIncrementUsage(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	c := &Command{Cmd: "go test ./..."}
	require.NoError(t, store.InsertCommand(ctx, c))

	n, err := store.IncrementUsage(ctx, c.ID, "/home/me/code")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.IncrementUsage(ctx, c.ID, "/home/me/code/")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = store.IncrementUsage(ctx, c.ID, "/tmp")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = store.IncrementUsage(ctx, "missing", "/tmp")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIncrementUsage_ResolvesRelativePath(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	c := &Command{Cmd: "make lint"}
	require.NoError(t, store.InsertCommand(ctx, c))

	wd, err := os.Getwd()
	require.NoError(t, err)

	n, err := store.IncrementUsage(ctx, c.ID, ".")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = store.IncrementUsage(ctx, c.ID, wd)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	var path string
	require.NoError(t, store.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		return conn.QueryRowContext(ctx, `SELECT path FROM command_usage WHERE command_id = ?`, c.ID).Scan(&path)
	}))
	assert.Equal(t, wd, path)
}

func TestFindCommandsByAlias(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertCommand(ctx, &Command{Cmd: "git commit", Alias: strPtr("gc")}))
	require.NoError(t, store.InsertCommand(ctx, &Command{Cmd: "git checkout"}))

	cmds, err := store.FindCommandsByAlias(ctx, "gc")
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	assert.Equal(t, "git commit", cmds[0].Cmd)

	cmds, err = store.FindCommandsByAlias(ctx, "nope")
	require.NoError(t, err)
	assert.Empty(t, cmds)

	_, err = store.LoadWorkspace(ctx, []Command{
		{Cmd: "make build", Alias: strPtr("gc")},
		{Cmd: "git commit", Alias: strPtr("gc")},
	})
	require.NoError(t, err)

	cmds, err = store.FindCommandsByAlias(ctx, "gc")
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	assert.Equal(t, "git commit", cmds[0].Cmd)
	assert.Equal(t, CategoryUser, cmds[0].Category)
	assert.Equal(t, "make build", cmds[1].Cmd)
	assert.Equal(t, CategoryWorkspace, cmds[1].Category)
}

func TestListCategoriesAndTags(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.InsertCommand(ctx, &Command{Cmd: "kubectl get pods", Description: strPtr("#k8s #pods")}))
	require.NoError(t, store.InsertCommand(ctx, &Command{Cmd: "kubectl logs", Description: strPtr("#k8s")}))
	require.NoError(t, store.InsertCommand(ctx, &Command{Cmd: "tar xzf", Category: CategoryTLDR, Source: SourceTLDR}))

	categories, err := store.ListCategories(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{CategoryTLDR, CategoryUser}, categories)

	tags, err := store.ListTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []TagCount{{Tag: "#k8s", Count: 2}, {Tag: "#pods", Count: 1}}, tags)
}

func TestLoadWorkspace(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	loaded := func() bool {
		var ok bool
		require.NoError(t, store.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
			var err error
			ok, err = WorkspaceLoaded(ctx, conn)
			return err
		}))
		return ok
	}
	assert.False(t, loaded())

	n, err := store.LoadWorkspace(ctx, []Command{
		{Cmd: "npm run dev", Description: strPtr("start dev server")},
		{Cmd: " npm run dev "},
		{Cmd: "npm test"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, loaded())

	// A second load replaces the first.
	n, err = store.LoadWorkspace(ctx, []Command{{Cmd: "cargo build"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var rows, hits int
	require.NoError(t, store.WithConn(ctx, func(ctx context.Context, conn *sql.Conn) error {
		if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM temp.workspace_commands`).Scan(&rows); err != nil {
			return err
		}
		return conn.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM temp.workspace_commands_trgm WHERE workspace_commands_trgm MATCH '"car"'`).Scan(&hits)
	}))
	assert.Equal(t, 1, rows)
	assert.Equal(t, 1, hits)

	require.NoError(t, store.ClearWorkspace(ctx))
	assert.False(t, loaded())

	_, err = store.LoadWorkspace(ctx, []Command{{Cmd: ""}})
	assert.Error(t, err)
}
