package cmdutil

import (
	"strings"

	"github.com/google/shlex"
)

// SplitCommand splits a command line into shell words, honoring quotes.
// It falls back to whitespace splitting when the line isn't valid shell
// syntax (an unterminated quote, for instance).
func SplitCommand(cmd string) []string {
	tokens, err := shlex.Split(cmd)
	if err == nil && len(tokens) > 0 {
		return tokens
	}
	return strings.Fields(cmd)
}

// RootToken returns the first word of a command, skipping a leading sudo.
func RootToken(cmd string) string {
	tokens := SplitCommand(cmd)
	if len(tokens) > 1 && tokens[0] == "sudo" {
		return tokens[1]
	}
	if len(tokens) == 0 {
		return ""
	}
	return tokens[0]
}
