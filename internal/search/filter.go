package search

import (
	"fmt"
	"strings"

	"github.com/runger/shellmark/internal/cmdutil"
)

// Mode selects how the search term is matched.
type Mode string

// Search modes.
const (
	ModeAuto    Mode = "auto"
	ModeExact   Mode = "exact"
	ModeRelaxed Mode = "relaxed"
	ModeRegex   Mode = "regex"
	ModeFuzzy   Mode = "fuzzy"
)

// Modes lists every search mode in display order.
var Modes = []Mode{ModeAuto, ModeExact, ModeRelaxed, ModeRegex, ModeFuzzy}

// ParseMode parses a mode name, case-insensitively. The empty string is auto.
func ParseMode(s string) (Mode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ModeAuto, nil
	}
	for _, m := range Modes {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown search mode %q (valid: auto, exact, relaxed, regex, fuzzy)", s)
}

// String returns the mode name.
func (m Mode) String() string {
	return string(m)
}

// Filter is a snapshot of what the caller is looking for.
type Filter struct {
	// SearchTerm is the text to match. Nil or blank lists every command
	// that passes the other criteria.
	SearchTerm *string
	SearchMode Mode

	// Categories restricts results to any of these categories.
	Categories []string

	// Source restricts results to one source.
	Source *string

	// Tags restricts results to commands carrying all of these tags.
	Tags []string
}

// Cleaned returns a normalized copy of f: the term and source are trimmed
// (nil when blank), the mode defaults to auto, categories are trimmed and
// deduplicated, and tags are normalized to their stored "#tag" form.
func (f Filter) Cleaned() Filter {
	out := Filter{
		SearchTerm: trimmedOrNil(f.SearchTerm),
		SearchMode: f.SearchMode,
		Source:     trimmedOrNil(f.Source),
		Categories: dedupe(f.Categories, strings.TrimSpace),
		Tags:       dedupe(f.Tags, cmdutil.NormalizeTag),
	}
	if out.SearchMode == "" {
		out.SearchMode = ModeAuto
	}
	return out
}

// Term returns the search term, or "" when there is none.
func (f Filter) Term() string {
	if f.SearchTerm == nil {
		return ""
	}
	return *f.SearchTerm
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

// dedupe applies norm to each value and keeps the distinct non-empty results
// in first-seen order.
func dedupe(values []string, norm func(string) string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = norm(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
