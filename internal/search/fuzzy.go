package search

import (
	"strings"
)

// TermKind is how a single fuzzy term matches.
type TermKind int

// Fuzzy term kinds.
const (
	// TermFuzzy matches when the term's characters appear in order.
	TermFuzzy TermKind = iota
	// TermExact ('term) matches a substring.
	TermExact
	// TermExactBoundary ('term') matches a whole word.
	TermExactBoundary
	// TermPrefixExact (^term) matches a prefix.
	TermPrefixExact
	// TermSuffixExact (term$) matches a suffix.
	TermSuffixExact
	// TermInverseExact (!term) excludes a substring.
	TermInverseExact
	// TermInversePrefixExact (!^term) excludes a prefix.
	TermInversePrefixExact
	// TermInverseSuffixExact (!term$) excludes a suffix.
	TermInverseSuffixExact
)

var termKindNames = map[TermKind]string{
	TermFuzzy:              "Fuzzy",
	TermExact:              "Exact",
	TermExactBoundary:      "ExactBoundary",
	TermPrefixExact:        "PrefixExact",
	TermSuffixExact:        "SuffixExact",
	TermInverseExact:       "InverseExact",
	TermInversePrefixExact: "InversePrefixExact",
	TermInverseSuffixExact: "InverseSuffixExact",
}

func (k TermKind) String() string {
	if name, ok := termKindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Inverse reports whether the kind excludes matches.
func (k TermKind) Inverse() bool {
	return k == TermInverseExact || k == TermInversePrefixExact || k == TermInverseSuffixExact
}

// FuzzyTerm is one term of a fuzzy query. Value is the term text without its
// markers, as written in the query.
type FuzzyTerm struct {
	Kind  TermKind
	Value string
}

// FuzzyMatch is one top-level item of a fuzzy query: a single term, or a
// group of alternatives when Or is non-nil.
type FuzzyMatch struct {
	Term FuzzyTerm
	Or   []FuzzyTerm
}

// Terms returns the terms of the item.
func (m FuzzyMatch) Terms() []FuzzyTerm {
	if m.Or != nil {
		return m.Or
	}
	return []FuzzyTerm{m.Term}
}

// ParseFuzzy parses a fuzzy query. Terms are separated by whitespace and all
// must match; "a | b" matches either a or b. A "|" with no term before it is
// ignored, as is a term left empty once its markers are removed.
func ParseFuzzy(query string) []FuzzyMatch {
	var (
		items  []FuzzyMatch
		joinOr bool
	)
	for _, token := range strings.Fields(query) {
		if token == "|" {
			if len(items) > 0 {
				joinOr = true
			}
			continue
		}

		term, ok := parseFuzzyTerm(token)
		if !ok {
			continue
		}

		if joinOr {
			last := &items[len(items)-1]
			if last.Or == nil {
				last.Or = []FuzzyTerm{last.Term}
				last.Term = FuzzyTerm{}
			}
			last.Or = append(last.Or, term)
			joinOr = false
			continue
		}
		items = append(items, FuzzyMatch{Term: term})
	}
	return items
}

func parseFuzzyTerm(token string) (FuzzyTerm, bool) {
	var (
		kind  TermKind
		value string
	)
	switch {
	case strings.HasPrefix(token, "!^"):
		kind, value = TermInversePrefixExact, token[2:]
	case len(token) >= 2 && strings.HasPrefix(token, "!") && strings.HasSuffix(token, "$"):
		kind, value = TermInverseSuffixExact, token[1:len(token)-1]
	case len(token) >= 2 && strings.HasPrefix(token, "'") && strings.HasSuffix(token, "'"):
		kind, value = TermExactBoundary, token[1:len(token)-1]
	case strings.HasPrefix(token, "'"):
		kind, value = TermExact, token[1:]
	case strings.HasPrefix(token, "^"):
		kind, value = TermPrefixExact, token[1:]
	case strings.HasSuffix(token, "$"):
		kind, value = TermSuffixExact, token[:len(token)-1]
	case strings.HasPrefix(token, "!"):
		kind, value = TermInverseExact, token[1:]
	default:
		kind, value = TermFuzzy, token
	}
	if value == "" {
		return FuzzyTerm{}, false
	}
	return FuzzyTerm{Kind: kind, Value: value}, true
}
