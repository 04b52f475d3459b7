package picker

import (
	"regexp"
	"strings"

	"github.com/mattn/go-runewidth"
)

// ansiRE matches CSI, OSC, charset and other two-byte escape sequences.
var ansiRE = regexp.MustCompile(`\x1b(?:` +
	`\[[0-9;]*[A-Za-z]` +
	`|` +
	`\].*?(?:\x1b\\|\x07)` +
	`|` +
	`[()][A-B0-2]` +
	`|` +
	`[#()*+\-./][A-Za-z0-9]` +
	`)`)

// escapeLiterals spells literal escape prefixes in a readable form.
var escapeLiterals = strings.NewReplacer(
	"\\033[", "<ESC>[",
	"\\x1b[", "<ESC>[",
	"\\x1B[", "<ESC>[",
	"\\e[", "<ESC>[",
)

// StripANSI removes ANSI escape sequences from a string.
func StripANSI(s string) string {
	return ansiRE.ReplaceAllString(s, "")
}

// displayText makes a stored command safe to draw on one terminal line. The
// result is for display only and must never be executed.
func displayText(s string) string {
	s = strings.ToValidUTF8(s, "�")
	s = StripANSI(s)
	s = escapeLiterals.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// MiddleTruncate shortens s to maxWidth display columns by replacing its
// middle with an ellipsis. Below three columns it truncates from the right.
func MiddleTruncate(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth < 3 {
		return runewidth.Truncate(s, maxWidth, "")
	}

	remaining := maxWidth - 1
	head := runewidth.Truncate(s, (remaining+1)/2, "")
	return head + "…" + suffixOfWidth(s, remaining/2)
}

// suffixOfWidth returns the longest suffix of s at most maxWidth columns wide.
func suffixOfWidth(s string, maxWidth int) string {
	runes := []rune(s)
	w, start := 0, len(runes)
	for i := len(runes) - 1; i >= 0; i-- {
		rw := runewidth.RuneWidth(runes[i])
		if w+rw > maxWidth {
			break
		}
		w += rw
		start = i
	}
	return string(runes[start:])
}
