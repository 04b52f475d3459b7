package cmdutil

import (
	"regexp"
	"strings"
	"unicode"
)

// placeholderPattern matches {{variable}} placeholders inside a command template.
var placeholderPattern = regexp.MustCompile(`\{\{(.+?)\}\}`)

// Capture groups used when a template is compiled into a regular expression.
const (
	// tokenGroup matches a double-quoted, single-quoted or bare token.
	tokenGroup = `("[^"]*"|'[^']*'|[^\s"']+)`
)

// Variable is a placeholder found in a command template.
type Variable struct {
	Name string // Name as written, trimmed
	Flat string // Flattened name, used to look up completions
}

// IsTemplate reports whether cmd contains at least one {{variable}} placeholder.
func IsTemplate(cmd string) bool {
	return placeholderPattern.MatchString(cmd)
}

// ExtractVariables returns the distinct placeholders of cmd in order of first
// appearance.
func ExtractVariables(cmd string) []Variable {
	matches := placeholderPattern.FindAllStringSubmatch(cmd, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	vars := make([]Variable, 0, len(matches))
	for _, m := range matches {
		name := strings.TrimSpace(m[1])
		if name == "" {
			continue
		}
		flat := Flatten(name)
		if seen[flat] {
			continue
		}
		seen[flat] = true
		vars = append(vars, Variable{Name: name, Flat: flat})
	}
	return vars
}

// TemplateToRegex compiles a command template into an anchored regular
// expression. Literal text is quoted, whitespace runs match any whitespace and
// each placeholder becomes a capture group matching one quoted or bare token.
// A placeholder wrapped in matching quotes ('{{msg}}') captures everything up
// to the closing quote instead, so multi-word values still match.
func TemplateToRegex(cmd string) string {
	cmd = strings.TrimSpace(cmd)

	var b strings.Builder
	b.WriteString(`^\s*`)

	last := 0
	for _, loc := range placeholderPattern.FindAllStringIndex(cmd, -1) {
		writeLiteral(&b, cmd[last:loc[0]])

		var prev, next byte
		if loc[0] > 0 {
			prev = cmd[loc[0]-1]
		}
		if loc[1] < len(cmd) {
			next = cmd[loc[1]]
		}
		if (prev == '\'' || prev == '"') && prev == next {
			b.WriteString(`([^` + string(prev) + `]*)`)
		} else {
			b.WriteString(tokenGroup)
		}
		last = loc[1]
	}
	writeLiteral(&b, cmd[last:])

	b.WriteString(`\s*$`)
	return b.String()
}

// writeLiteral appends s to the pattern, quoting metacharacters and turning
// whitespace runs into \s+.
func writeLiteral(b *strings.Builder, s string) {
	inSpace := false
	start := 0
	for i, r := range s {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteString(regexp.QuoteMeta(s[start:i]))
				b.WriteString(`\s+`)
				inSpace = true
			}
			continue
		}
		if inSpace {
			start = i
			inSpace = false
		}
	}
	if !inSpace {
		b.WriteString(regexp.QuoteMeta(s[start:]))
	}
}
