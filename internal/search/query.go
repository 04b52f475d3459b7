package search

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/runger/shellmark/internal/cmdutil"
	"github.com/runger/shellmark/internal/storage"
)

// tableSet names the tables one source of commands is searched through.
type tableSet struct {
	prefix   string // CTE name prefix
	base     string // command table as written in FROM
	fts      string // unicode61 index as referenced in MATCH and bm25
	ftsFrom  string
	trgm     string // trigram index as referenced in MATCH and bm25
	trgmFrom string
}

var (
	persistentTables = tableSet{
		prefix:   "g",
		base:     "commands",
		fts:      "commands_fts",
		ftsFrom:  "commands_fts",
		trgm:     "commands_trgm",
		trgmFrom: "commands_trgm",
	}
	workspaceTables = tableSet{
		prefix:   "w",
		base:     "temp.workspace_commands",
		fts:      "workspace_commands_fts",
		ftsFrom:  "temp.workspace_commands_fts",
		trgm:     "workspace_commands_trgm",
		trgmFrom: "temp.workspace_commands_trgm",
	}
)

// descColumn never yields NULL, so negated predicates keep rows without a
// description.
const descColumn = "COALESCE(c.flat_description, '')"

// minTrigramRunes is the shortest word the trigram index can match.
const minTrigramRunes = 3

// queryTerms is the search term split for the text stage.
type queryTerms struct {
	// words are the flattened positive words that contain a letter or digit.
	words []string
	// negations are the flattened values of !word tokens (auto mode only).
	negations []string
	// positive is the term with negations removed.
	positive string
	// root is the flattened first positive word.
	root string
}

func splitTerm(term string, mode Mode) queryTerms {
	var (
		t        queryTerms
		positive []string
	)
	for _, token := range strings.Fields(term) {
		if mode == ModeAuto && len(token) > 1 && strings.HasPrefix(token, "!") {
			if v := cmdutil.Flatten(token[1:]); v != "" {
				t.negations = append(t.negations, v)
			}
			continue
		}
		positive = append(positive, token)
		if flat := cmdutil.Flatten(token); cmdutil.HasWordChar(flat) {
			t.words = append(t.words, flat)
		}
	}
	t.positive = strings.Join(positive, " ")
	if len(positive) > 0 {
		t.root = cmdutil.Flatten(positive[0])
	}
	return t
}

// queryBuilder accumulates SQL text and its positional arguments together,
// so arguments always follow the order of their placeholders.
type queryBuilder struct {
	sql    strings.Builder
	args   []any
	ctes   int
	tuning Tuning
}

func (q *queryBuilder) write(s string, args ...any) {
	q.sql.WriteString(s)
	q.args = append(q.args, args...)
}

// cte starts a named common table expression. The caller writes the body and
// closes it with endCTE.
func (q *queryBuilder) cte(name string) {
	if q.ctes == 0 {
		q.write("WITH ")
	} else {
		q.write(",\n")
	}
	q.ctes++
	q.write(name + " AS (\n")
}

func (q *queryBuilder) endCTE() {
	q.write("\n)")
}

// buildQuery builds the search statement for a cleaned filter. The statement
// selects storage.CommandColumns followed by is_workspace, text_score,
// path_score and usage_total.
func buildQuery(f Filter, workingPath string, tuning Tuning, withWorkspace bool) (string, []any, error) {
	term := f.Term()

	var fuzzy []FuzzyMatch
	switch f.SearchMode {
	case ModeRegex:
		if term != "" {
			if _, err := storage.CompileRegex(term); err != nil {
				return "", nil, fmt.Errorf("%w: %v", ErrInvalidRegex, err)
			}
		}
	case ModeFuzzy:
		if term != "" {
			fuzzy = ParseFuzzy(term)
			if len(fuzzy) == 0 {
				return "", nil, fmt.Errorf("%w: %q has no terms", ErrInvalidFuzzy, term)
			}
		}
	case ModeAuto, ModeExact, ModeRelaxed:
	default:
		return "", nil, fmt.Errorf("unknown search mode %q", f.SearchMode)
	}

	terms := splitTerm(term, f.SearchMode)
	q := &queryBuilder{tuning: tuning}

	sources := []tableSet{persistentTables}
	if withWorkspace {
		sources = append(sources, workspaceTables)
	}
	for _, ts := range sources {
		q.filterStage(ts, f, terms)
		q.textStage(ts, f.SearchMode, term, terms, fuzzy)
	}

	if withWorkspace {
		q.mergeWorkspaceStage()
	} else {
		q.resultsStage()
	}
	q.usageStage(workingPath)
	q.finalSelect(withWorkspace)

	return q.sql.String(), q.args, nil
}

// filterStage restricts a source to the requested categories, source, tags
// and auto-mode negations.
func (q *queryBuilder) filterStage(ts tableSet, f Filter, t queryTerms) {
	q.cte(ts.prefix + "_filtered")
	q.write("  SELECT c.pk AS pk FROM " + ts.base + " c\n  WHERE 1=1")

	if len(f.Categories) > 0 {
		q.write(" AND c.category IN ("+placeholders(len(f.Categories))+")", stringArgs(f.Categories)...)
	}
	if f.Source != nil {
		q.write(" AND c.source = ?", *f.Source)
	}
	if len(f.Tags) > 0 {
		q.write(
			" AND (SELECT COUNT(*) FROM json_each(c.tags) WHERE json_each.value IN ("+
				placeholders(len(f.Tags))+")) = "+strconv.Itoa(len(f.Tags)),
			stringArgs(f.Tags)...)
	}
	for _, neg := range t.negations {
		q.write(" AND NOT (instr(c.flat_cmd, ?) > 0 OR instr("+descColumn+", ?) > 0)", neg, neg)
	}
	q.endCTE()
}

// textStage writes <prefix>_text(pk, text_score) for the search mode.
func (q *queryBuilder) textStage(ts tableSet, mode Mode, term string, t queryTerms, fuzzy []FuzzyMatch) {
	switch {
	case term == "" || (mode == ModeAuto && t.positive == ""):
		q.allRowsText(ts)
	case mode == ModeExact:
		q.exactText(ts, t)
	case mode == ModeRelaxed:
		q.relaxedText(ts, t)
	case mode == ModeRegex:
		q.regexText(ts, term)
	case mode == ModeFuzzy:
		q.fuzzyText(ts, fuzzy)
	default:
		q.autoText(ts, t)
	}
}

func (q *queryBuilder) allRowsText(ts tableSet) {
	q.cte(ts.prefix + "_text")
	q.write("  SELECT pk, 0.0 AS text_score FROM " + ts.prefix + "_filtered")
	q.endCTE()
}

func (q *queryBuilder) emptyText(ts tableSet) {
	q.cte(ts.prefix + "_text")
	q.write("  SELECT NULL AS pk, 0.0 AS text_score WHERE 0")
	q.endCTE()
}

// ftsStage writes a CTE with the rows of an index matching expr, scored by
// inverted bm25 so that higher is better.
func (q *queryBuilder) ftsStage(name, index, from, filtered, expr string) {
	q.cte(name)
	q.write(
		"  SELECT "+index+".rowid AS pk, -bm25("+index+", "+
			sqlFloat(q.tuning.Text.CmdWeight)+", "+sqlFloat(q.tuning.Text.DescriptionWeight)+") AS score\n"+
			"  FROM "+from+"\n"+
			"  WHERE "+index+" MATCH ? AND "+index+".rowid IN (SELECT pk FROM "+filtered+")\n"+
			"  ORDER BY score DESC\n"+
			"  LIMIT "+strconv.Itoa(MaxResults),
		expr)
	q.endCTE()
}

func (q *queryBuilder) exactText(ts tableSet, t queryTerms) {
	if len(t.words) == 0 {
		q.emptyText(ts)
		return
	}
	q.ftsStage(ts.prefix+"_exact", ts.fts, ts.ftsFrom, ts.prefix+"_filtered", ftsQuery(t.words, "AND", false))
	q.cte(ts.prefix + "_text")
	q.write("  SELECT pk, score AS text_score FROM " + ts.prefix + "_exact")
	q.endCTE()
}

func (q *queryBuilder) relaxedText(ts tableSet, t queryTerms) {
	filtered := ts.prefix + "_filtered"
	long := longWords(t.words)
	switch {
	case len(long) > 0:
		q.ftsStage(ts.prefix+"_relaxed", ts.trgm, ts.trgmFrom, filtered, ftsQuery(long, "OR", false))
	case len(t.words) > 0:
		// Too short for trigrams: fall back to word prefixes.
		q.ftsStage(ts.prefix+"_relaxed", ts.fts, ts.ftsFrom, filtered, ftsQuery(t.words, "OR", true))
	default:
		q.emptyText(ts)
		return
	}
	q.cte(ts.prefix + "_text")
	q.write("  SELECT pk, score AS text_score FROM " + ts.prefix + "_relaxed")
	q.endCTE()
}

func (q *queryBuilder) regexText(ts tableSet, pattern string) {
	q.cte(ts.prefix + "_text")
	q.write(
		"  SELECT c.pk AS pk, 0.0 AS text_score FROM "+ts.base+" c\n"+
			"  WHERE c.pk IN (SELECT pk FROM "+ts.prefix+"_filtered) AND c.cmd REGEXP ?",
		pattern)
	q.endCTE()
}

func (q *queryBuilder) fuzzyText(ts tableSet, items []FuzzyMatch) {
	q.cte(ts.prefix + "_text")
	q.write(
		"  SELECT c.pk AS pk, 0.0 AS text_score FROM " + ts.base + " c\n" +
			"  WHERE c.pk IN (SELECT pk FROM " + ts.prefix + "_filtered)")
	for _, item := range items {
		q.write("\n    AND (")
		for i, term := range item.Terms() {
			if i > 0 {
				q.write(" OR ")
			}
			q.fuzzyPredicate(term)
		}
		q.write(")")
	}
	q.endCTE()
}

// fuzzyPredicate writes the condition for one fuzzy term, tested against the
// flattened command and description.
func (q *queryBuilder) fuzzyPredicate(t FuzzyTerm) {
	v := cmdutil.Flatten(t.Value)

	var cond, arg string
	switch t.Kind {
	case TermFuzzy:
		cond, arg = `%s LIKE ? ESCAPE '\'`, subsequencePattern(v)
	case TermExact, TermInverseExact:
		cond, arg = `instr(%s, ?) > 0`, v
	case TermExactBoundary:
		cond, arg = `%s REGEXP ?`, wordBoundaryPattern(v)
	case TermPrefixExact, TermInversePrefixExact:
		cond, arg = `%s LIKE ? ESCAPE '\'`, escapeLike(v)+"%"
	case TermSuffixExact, TermInverseSuffixExact:
		cond, arg = `%s LIKE ? ESCAPE '\'`, "%"+escapeLike(v)
	}

	if t.Kind.Inverse() {
		q.write("NOT ")
	}
	q.write("("+fmt.Sprintf(cond, "c.flat_cmd")+" OR "+fmt.Sprintf(cond, descColumn)+")", arg, arg)
}

// autoPart is one scored sub-search of auto mode.
type autoPart struct {
	cte    string
	weight float64
}

func (q *queryBuilder) autoText(ts tableSet, t queryTerms) {
	filtered := ts.prefix + "_filtered"
	auto := q.tuning.Text.Auto

	var parts []autoPart
	if len(t.words) > 0 {
		q.ftsStage(ts.prefix+"_prefix", ts.fts, ts.ftsFrom, filtered, ftsQuery(t.words, "AND", true))
		parts = append(parts, autoPart{cte: ts.prefix + "_prefix", weight: auto.Prefix})

		if long := longWords(t.words); len(long) > 0 {
			q.ftsStage(ts.prefix+"_fuzzy", ts.trgm, ts.trgmFrom, filtered, ftsQuery(long, "AND", false))
			parts = append(parts, autoPart{cte: ts.prefix + "_fuzzy", weight: auto.Fuzzy})

			q.ftsStage(ts.prefix+"_loose", ts.trgm, ts.trgmFrom, filtered, ftsQuery(long, "OR", false))
			parts = append(parts, autoPart{cte: ts.prefix + "_loose", weight: auto.Relaxed})
		}
	}

	rootPattern := escapeLike(t.root) + "%"

	q.cte(ts.prefix + "_text")
	q.write("  SELECT pk, MAX(score) AS text_score FROM (\n")
	for _, p := range parts {
		q.write(
			"    SELECT m.pk AS pk, m.score * "+sqlFloat(p.weight)+
				" * (CASE WHEN c.flat_cmd LIKE ? ESCAPE '\\' THEN "+sqlFloat(auto.Root)+" ELSE 1.0 END) AS score\n"+
				"    FROM "+p.cte+" m JOIN "+ts.base+" c ON c.pk = m.pk\n"+
				"    UNION ALL\n",
			rootPattern)
	}
	q.write(
		"    SELECT c.pk AS pk, "+sqlFloat(TemplateMatchRank)+" AS score FROM "+ts.base+" c\n"+
			"    WHERE c.pk IN (SELECT pk FROM "+filtered+")\n"+
			"      AND c.cmd LIKE '%{{%' AND regexp(cmd_to_regex(c.cmd), ?)\n"+
			"  ) GROUP BY pk",
		t.positive)
	q.endCTE()
}

// resultsStage exposes the persistent matches as results.
func (q *queryBuilder) resultsStage() {
	q.cte("results")
	q.write(
		"  SELECT 0 AS src, c.pk AS pk, c.id AS id, t.text_score AS text_score, 0 AS is_workspace\n" +
			"  FROM g_text t JOIN commands c ON c.pk = t.pk")
	q.endCTE()
}

// mergeWorkspaceStage merges persistent and workspace matches by trimmed
// cmd. The persistent row wins, carrying the best text score of the group,
// and is flagged as a workspace command when the workspace defines it too.
func (q *queryBuilder) mergeWorkspaceStage() {
	q.cte("candidates")
	q.write(
		"  SELECT 0 AS src, c.pk AS pk, c.id AS id, trim(c.cmd) AS cmd_key, t.text_score AS text_score\n" +
			"  FROM g_text t JOIN commands c ON c.pk = t.pk\n" +
			"  UNION ALL\n" +
			"  SELECT 1 AS src, w.pk AS pk, w.id AS id, trim(w.cmd) AS cmd_key, t.text_score AS text_score\n" +
			"  FROM w_text t JOIN temp.workspace_commands w ON w.pk = t.pk")
	q.endCTE()

	q.cte("ranked")
	q.write(
		"  SELECT src, pk, id, cmd_key,\n" +
			"    MAX(text_score) OVER (PARTITION BY cmd_key) AS text_score,\n" +
			"    ROW_NUMBER() OVER (PARTITION BY cmd_key ORDER BY src) AS rn\n" +
			"  FROM candidates")
	q.endCTE()

	q.cte("results")
	q.write(
		"  SELECT r.src AS src, r.pk AS pk, r.id AS id, r.text_score AS text_score,\n" +
			"    CASE WHEN r.src = 1 OR EXISTS (\n" +
			"      SELECT 1 FROM temp.workspace_commands w WHERE trim(w.cmd) = r.cmd_key\n" +
			"    ) THEN 1 ELSE 0 END AS is_workspace\n" +
			"  FROM ranked r WHERE r.rn = 1")
	q.endCTE()
}

// usageStage weighs every usage row of the results by how its directory
// relates to the working directory.
func (q *queryBuilder) usageStage(workingPath string) {
	p := q.tuning.Path

	q.cte("usage")
	q.write(
		"  SELECT command_id, SUM(usage_count * rel) AS usage_total, MAX(rel) AS path_score\n" +
			"  FROM (\n" +
			"    SELECT u.command_id AS command_id, u.usage_count AS usage_count,\n")
	if workingPath == "" {
		q.write("      " + sqlFloat(p.Unrelated) + " AS rel\n")
	} else {
		wp := filepath.Clean(workingPath)
		q.write("      CASE\n")
		q.write("        WHEN u.path = ? THEN "+sqlFloat(p.Exact)+"\n", wp)
		q.write("        WHEN substr(?, 1, length(rtrim(u.path, '/')) + 1) = rtrim(u.path, '/') || '/' THEN "+
			sqlFloat(p.Ancestor)+"\n", wp)
		q.write("        WHEN substr(u.path, 1, length(rtrim(?, '/')) + 1) = rtrim(?, '/') || '/' THEN "+
			sqlFloat(p.Descendant)+"\n", wp, wp)
		q.write("        ELSE " + sqlFloat(p.Unrelated) + "\n      END AS rel\n")
	}
	q.write(
		"    FROM command_usage u\n" +
			"    WHERE u.command_id IN (SELECT id FROM results)\n" +
			"  )\n" +
			"  GROUP BY command_id")
	q.endCTE()
}

func (q *queryBuilder) finalSelect(withWorkspace bool) {
	scores := ", r.is_workspace AS is_workspace, r.text_score AS text_score," +
		" COALESCE(us.path_score, 0.0) AS path_score, COALESCE(us.usage_total, 0.0) AS usage_total\n"

	q.write("\nSELECT * FROM (\n")
	q.write("  SELECT " + storage.CommandColumns("c") + scores +
		"  FROM results r JOIN commands c ON c.pk = r.pk\n" +
		"  LEFT JOIN usage us ON us.command_id = r.id\n" +
		"  WHERE r.src = 0\n")
	if withWorkspace {
		q.write("  UNION ALL\n")
		q.write("  SELECT " + storage.CommandColumns("w") + scores +
			"  FROM results r JOIN temp.workspace_commands w ON w.pk = r.pk\n" +
			"  LEFT JOIN usage us ON us.command_id = r.id\n" +
			"  WHERE r.src = 1\n")
	}
	q.write(")\nORDER BY text_score DESC, usage_total DESC, cmd ASC\nLIMIT " + strconv.Itoa(MaxResults))
}

// ftsQuery joins words as quoted FTS5 strings with op, optionally as prefix
// queries.
func ftsQuery(words []string, op string, prefix bool) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = `"` + strings.ReplaceAll(w, `"`, `""`) + `"`
		if prefix {
			parts[i] += "*"
		}
	}
	return strings.Join(parts, " "+op+" ")
}

// longWords returns the words the trigram index can match.
func longWords(words []string) []string {
	var out []string
	for _, w := range words {
		if utf8.RuneCountInString(w) >= minTrigramRunes {
			out = append(out, w)
		}
	}
	return out
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike escapes LIKE wildcards for use with ESCAPE '\'.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// subsequencePattern builds a LIKE pattern matching s's characters in order
// with anything in between.
func subsequencePattern(s string) string {
	var b strings.Builder
	b.WriteByte('%')
	for _, r := range s {
		b.WriteString(escapeLike(string(r)))
		b.WriteByte('%')
	}
	return b.String()
}

// wordBoundaryPattern matches s as a whole word.
func wordBoundaryPattern(s string) string {
	return `(^|[^\pL\pN_])` + regexp.QuoteMeta(s) + `($|[^\pL\pN_])`
}

// sqlFloat formats v as a SQL real literal.
func sqlFloat(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}
