package search

// TemplateMatchRank is the text score given to a command whose template
// matches the whole search term. It outranks any full-text score.
const TemplateMatchRank = 1_000_000

// MaxResults bounds every ranked stage of the query and the final result.
const MaxResults = 500

// Tuning holds the weights used to score and rank search results.
type Tuning struct {
	Text  TextTuning
	Path  PathTuning
	Usage UsageTuning
}

// TextTuning weights text relevance.
type TextTuning struct {
	// Points is the share of the final score given to text relevance.
	Points float64

	// CmdWeight and DescriptionWeight are the bm25 column weights.
	CmdWeight         float64
	DescriptionWeight float64

	Auto AutoTuning
}

// AutoTuning scales the sub-searches of auto mode.
type AutoTuning struct {
	Prefix  float64
	Fuzzy   float64
	Relaxed float64

	// Root multiplies matches whose command starts with the first word of
	// the search term.
	Root float64
}

// PathTuning weights how a usage row's directory relates to the working
// directory.
type PathTuning struct {
	Points     float64
	Exact      float64
	Ancestor   float64
	Descendant float64
	Unrelated  float64
}

// UsageTuning weights usage volume.
type UsageTuning struct {
	Points float64
}

// DefaultTuning returns the default weights.
func DefaultTuning() Tuning {
	return Tuning{
		Text: TextTuning{
			Points:            600,
			CmdWeight:         2.0,
			DescriptionWeight: 1.0,
			Auto: AutoTuning{
				Prefix:  1.5,
				Fuzzy:   1.0,
				Relaxed: 0.5,
				Root:    2.0,
			},
		},
		Path: PathTuning{
			Points:     300,
			Exact:      1.0,
			Ancestor:   0.5,
			Descendant: 0.25,
			Unrelated:  0.1,
		},
		Usage: UsageTuning{
			Points: 100,
		},
	}
}
