package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompletions(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	ctx := context.Background()

	global := &VariableCompletion{Variable: "Branch", SuggestionsProvider: "git branch --format='%(refname:short)'"}
	require.NoError(t, store.InsertCompletion(ctx, global))
	assert.Equal(t, "branch", global.Variable)

	gitOnly := &VariableCompletion{RootCmd: "git", Variable: "branch", SuggestionsProvider: "git branch -r"}
	require.NoError(t, store.InsertCompletion(ctx, gitOnly))

	other := &VariableCompletion{RootCmd: "docker", Variable: "container", SuggestionsProvider: "docker ps --format '{{.Names}}'"}
	require.NoError(t, store.InsertCompletion(ctx, other))

	err := store.InsertCompletion(ctx, &VariableCompletion{RootCmd: "git", Variable: "BRANCH", SuggestionsProvider: "echo"})
	assert.ErrorIs(t, err, ErrAlreadyExists)

	require.Error(t, store.InsertCompletion(ctx, &VariableCompletion{Variable: "x"}))
	require.Error(t, store.InsertCompletion(ctx, &VariableCompletion{SuggestionsProvider: "echo"}))

	all, err := store.ListCompletions(ctx, CompletionQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	git := "git"
	forGit, err := store.ListCompletions(ctx, CompletionQuery{RootCmd: &git, Variables: []string{"Branch"}})
	require.NoError(t, err)
	require.Len(t, forGit, 2)
	assert.Equal(t, gitOnly.ID, forGit[0].ID, "root-specific completion comes first")
	assert.Equal(t, global.ID, forGit[1].ID)

	require.NoError(t, store.DeleteCompletion(ctx, gitOnly.ID))
	assert.ErrorIs(t, store.DeleteCompletion(ctx, gitOnly.ID), ErrNotFound)

	forGit, err = store.ListCompletions(ctx, CompletionQuery{RootCmd: &git})
	require.NoError(t, err)
	require.Len(t, forGit, 1)
	assert.Equal(t, global.ID, forGit[0].ID)
}
