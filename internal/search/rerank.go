package search

import (
	"sort"

	"github.com/runger/shellmark/internal/storage"
)

// resultItem is a matched command with its raw scores.
type resultItem struct {
	cmd         storage.Command
	isWorkspace bool
	textScore   float64
	pathScore   float64
	usageScore  float64
}

// rerank orders query results. Template matches come first in query order.
// The rest are sorted by workspace membership, then by the weighted sum of
// their min/max normalized scores; ties keep query order.
func rerank(items []resultItem, tuning Tuning) []storage.Command {
	if len(items) <= 1 {
		return commandsOf(items)
	}

	var templates, others []resultItem
	for _, item := range items {
		if item.textScore >= TemplateMatchRank {
			templates = append(templates, item)
		} else {
			others = append(others, item)
		}
	}

	text := newNormalizer(others, func(i resultItem) float64 { return i.textScore })
	path := newNormalizer(others, func(i resultItem) float64 { return i.pathScore })
	usage := newNormalizer(others, func(i resultItem) float64 { return i.usageScore })

	type scored struct {
		item  resultItem
		final float64
	}
	ranked := make([]scored, len(others))
	for i, item := range others {
		ranked[i] = scored{
			item: item,
			final: text.normalize(item.textScore)*tuning.Text.Points +
				path.normalize(item.pathScore)*tuning.Path.Points +
				usage.normalize(item.usageScore)*tuning.Usage.Points,
		}
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].item.isWorkspace != ranked[b].item.isWorkspace {
			return ranked[a].item.isWorkspace
		}
		return ranked[a].final > ranked[b].final
	})

	out := make([]storage.Command, 0, len(items))
	for _, item := range templates {
		out = append(out, item.cmd)
	}
	for _, r := range ranked {
		out = append(out, r.item.cmd)
	}
	return out
}

// normalizer maps a signal onto [0, 1] using the observed maximum and the
// observed minimum capped at zero.
type normalizer struct {
	min, max float64
}

func newNormalizer(items []resultItem, signal func(resultItem) float64) normalizer {
	n := normalizer{}
	for i, item := range items {
		v := signal(item)
		if i == 0 || v > n.max {
			n.max = v
		}
		if v < n.min {
			n.min = v
		}
	}
	return n
}

func (n normalizer) normalize(v float64) float64 {
	if n.max == n.min {
		return 0.5
	}
	return (v - n.min) / (n.max - n.min)
}

func commandsOf(items []resultItem) []storage.Command {
	out := make([]storage.Command, len(items))
	for i, item := range items {
		out[i] = item.cmd
	}
	return out
}
