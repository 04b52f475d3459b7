package picker

import (
	"context"

	"github.com/runger/shellmark/internal/search"
	"github.com/runger/shellmark/internal/storage"
)

// Provider supplies items to the picker.
type Provider interface {
	Fetch(ctx context.Context, req Request) (Response, error)
}

// Request describes what items the picker wants from a Provider.
type Request struct {
	RequestID uint64 // Monotonically increasing, for stale response detection
	Query     string
	Mode      search.Mode
}

// Response carries items back from a Provider.
type Response struct {
	RequestID uint64 // Must match Request.RequestID to be accepted
	Items     []Item
}

// Item is one selectable command.
type Item struct {
	ID          string
	Cmd         string
	Alias       string
	Description string
	Workspace   bool
}

// ItemFromCommand converts a stored command into a picker item.
func ItemFromCommand(c storage.Command) Item {
	item := Item{
		ID:        c.ID,
		Cmd:       c.Cmd,
		Workspace: c.Category == storage.CategoryWorkspace,
	}
	if c.Alias != nil {
		item.Alias = *c.Alias
	}
	if c.Description != nil {
		item.Description = *c.Description
	}
	return item
}

// Searcher runs command searches.
type Searcher interface {
	SearchCommands(ctx context.Context, filter search.Filter, workingPath string) ([]storage.Command, bool, error)
}

// SearchProvider feeds the picker from the search service. The request's
// query and mode replace the term and mode of the base filter.
type SearchProvider struct {
	searcher    Searcher
	base        search.Filter
	workingPath string
}

// NewSearchProvider creates a provider searching from workingPath.
func NewSearchProvider(s Searcher, base search.Filter, workingPath string) *SearchProvider {
	return &SearchProvider{searcher: s, base: base, workingPath: workingPath}
}

// Fetch implements Provider.
func (p *SearchProvider) Fetch(ctx context.Context, req Request) (Response, error) {
	f := p.base
	query := req.Query
	f.SearchTerm = &query
	f.SearchMode = req.Mode

	cmds, _, err := p.searcher.SearchCommands(ctx, f, p.workingPath)
	if err != nil {
		return Response{}, err
	}

	items := make([]Item, len(cmds))
	for i, c := range cmds {
		items[i] = ItemFromCommand(c)
	}
	return Response{RequestID: req.RequestID, Items: items}, nil
}
