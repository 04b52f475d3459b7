package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestFilter_Cleaned(t *testing.T) {
	t.Parallel()

	f := Filter{
		SearchTerm: strPtr("  git  "),
		Categories: []string{" user", "user", "", "tldr "},
		Source:     strPtr("   "),
		Tags:       []string{"K8s", "#k8s", "  ", "#Prod"},
	}
	got := f.Cleaned()

	require.NotNil(t, got.SearchTerm)
	assert.Equal(t, "git", *got.SearchTerm)
	assert.Equal(t, ModeAuto, got.SearchMode)
	assert.Equal(t, []string{"user", "tldr"}, got.Categories)
	assert.Nil(t, got.Source)
	assert.Equal(t, []string{"#k8s", "#prod"}, got.Tags)

	// The original is untouched.
	assert.Equal(t, "  git  ", *f.SearchTerm)
	assert.Equal(t, []string{" user", "user", "", "tldr "}, f.Categories)
}

func TestFilter_CleanedBlankTerm(t *testing.T) {
	t.Parallel()

	got := Filter{SearchTerm: strPtr(" \t "), SearchMode: ModeRegex}.Cleaned()
	assert.Nil(t, got.SearchTerm)
	assert.Equal(t, "", got.Term())
	assert.Equal(t, ModeRegex, got.SearchMode)
	assert.Nil(t, got.Categories)
	assert.Nil(t, got.Tags)
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	for _, m := range Modes {
		got, err := ParseMode(" " + string(m) + " ")
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}

	got, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeAuto, got)

	got, err = ParseMode("FUZZY")
	require.NoError(t, err)
	assert.Equal(t, ModeFuzzy, got)

	_, err = ParseMode("semantic")
	assert.Error(t, err)
}
