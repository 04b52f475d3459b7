package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runger/shellmark/internal/storage"
)

func TestApplyColorMode(t *testing.T) {
	t.Cleanup(disableColors)
	var buf bytes.Buffer

	require.NoError(t, applyColorMode("always", &buf))
	assert.NotEmpty(t, colorReset)

	require.NoError(t, applyColorMode("never", &buf))
	assert.Empty(t, colorReset)

	require.NoError(t, applyColorMode("always", &buf))
	require.NoError(t, applyColorMode("auto", &buf))
	assert.Empty(t, colorReset, "a buffer is not a terminal")

	assert.Error(t, applyColorMode("sometimes", &buf))
}

func TestShouldDisableColors_NoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	assert.True(t, shouldDisableColors(&bytes.Buffer{}))
}

func TestTermWidth_NotAFile(t *testing.T) {
	assert.Equal(t, 0, termWidth(&bytes.Buffer{}))
}

func TestPrintCommand(t *testing.T) {
	t.Cleanup(disableColors)
	disableColors()

	alias := "gl"
	desc := "show   the\nhistory"
	var buf bytes.Buffer
	printCommand(&buf, storage.Command{Cmd: "git log", Alias: &alias, Description: &desc, Category: storage.CategoryUser}, 0)
	assert.Equal(t, "git log [gl]  # show the history\n", buf.String())

	buf.Reset()
	printCommand(&buf, storage.Command{Cmd: "make lint", Category: storage.CategoryWorkspace}, 0)
	assert.Equal(t, "◆ make lint\n", buf.String())
}
