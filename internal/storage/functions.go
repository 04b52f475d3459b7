package storage

import (
	"database/sql/driver"
	"fmt"
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"
	"modernc.org/sqlite"

	"github.com/runger/shellmark/internal/cmdutil"
)

// regexCacheSize bounds the compiled patterns kept for the regexp() function.
// A single search compiles one pattern per template command, so the cache is
// sized for a few thousand templates.
const regexCacheSize = 4096

var regexCache *lru.Cache[string, *regexp.Regexp]

func init() {
	regexCache, _ = lru.New[string, *regexp.Regexp](regexCacheSize)

	// "regexp" backs the REGEXP operator: X REGEXP Y calls regexp(Y, X).
	sqlite.MustRegisterDeterministicScalarFunction("regexp", 2, sqlRegexp)
	sqlite.MustRegisterDeterministicScalarFunction("cmd_to_regex", 1, sqlCmdToRegex)
}

// CompileRegex compiles pattern with Go RE2 syntax, reusing the cache shared
// with the SQL regexp() function.
func CompileRegex(pattern string) (*regexp.Regexp, error) {
	if re, ok := regexCache.Get(pattern); ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	regexCache.Add(pattern, re)
	return re, nil
}

func sqlRegexp(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	pattern, ok := textArg(args[0])
	if !ok {
		return nil, nil
	}
	value, ok := textArg(args[1])
	if !ok {
		return nil, nil
	}

	re, err := CompileRegex(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex %q: %w", pattern, err)
	}
	if re.MatchString(value) {
		return int64(1), nil
	}
	return int64(0), nil
}

func sqlCmdToRegex(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	cmd, ok := textArg(args[0])
	if !ok {
		return nil, nil
	}
	return cmdutil.TemplateToRegex(cmd), nil
}

// textArg converts a SQL argument to a string. NULL reports false.
func textArg(v driver.Value) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case nil:
		return "", false
	default:
		return fmt.Sprint(v), true
	}
}
