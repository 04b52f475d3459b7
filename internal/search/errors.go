package search

import "errors"

var (
	// ErrInvalidRegex is returned when a regex-mode search term does not
	// compile.
	ErrInvalidRegex = errors.New("invalid regex")

	// ErrInvalidFuzzy is returned when a fuzzy-mode search term contains no
	// usable term.
	ErrInvalidFuzzy = errors.New("invalid fuzzy query")
)

// IsUserError reports whether err was caused by the search input rather than
// by the store.
func IsUserError(err error) bool {
	return errors.Is(err, ErrInvalidRegex) || errors.Is(err, ErrInvalidFuzzy)
}
