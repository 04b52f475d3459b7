package cmdutil

import (
	"regexp"
	"strings"
)

// tagPattern matches #hashtags in a description. A tag must start the text or
// follow whitespace, so "issue#12" is not a tag.
var tagPattern = regexp.MustCompile(`(?:^|\s)(#[\p{L}\p{N}_\-]+)`)

// ExtractTags returns the distinct, flattened #tags found in description in
// order of first appearance. It returns nil when there are none.
func ExtractTags(description string) []string {
	matches := tagPattern.FindAllStringSubmatch(description, -1)
	if len(matches) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(matches))
	var tags []string
	for _, m := range matches {
		tag := Flatten(m[1])
		if seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}
	return tags
}

// NormalizeTag flattens a user-supplied tag and ensures the leading '#'.
// It returns "" for a tag with no content.
func NormalizeTag(tag string) string {
	tag = strings.TrimLeft(Flatten(tag), "#")
	if tag == "" {
		return ""
	}
	return "#" + tag
}
