package operations

import (
	"context"

	"github.com/Pelmog/zigi-amazon-mcp/internal/envelope"
	"github.com/Pelmog/zigi-amazon-mcp/internal/filtercatalog"
)

// ListFiltersParams is the listFilters tool's input (spec.md §6). This
// operation never touches the dispatcher: it is a read against the local
// filter catalog, not an SP-API call.
type ListFiltersParams struct {
	Endpoint   string
	Category   string
	Kind       string
	SearchTerm string
}

// ListFilters implements catalog search (spec.md §4.8 Search), projecting
// each matching FilterDefinition to a caller-facing summary.
func (a *Adapter) ListFilters(ctx context.Context, p ListFiltersParams) envelope.Envelope {
	mp := a.marketplaces.Default()
	meta := a.baseMetadata(mp, "")

	defs := a.catalog.Search(p.Endpoint, p.Category, filtercatalog.Kind(p.Kind), p.SearchTerm)
	out := make([]map[string]interface{}, 0, len(defs))
	for _, d := range defs {
		out = append(out, map[string]interface{}{
			"id":          d.ID,
			"name":        d.Name,
			"description": d.Description,
			"category":    d.Category,
			"kind":        string(d.Kind),
			"endpoints":   d.Endpoints,
			"tags":        d.Tags,
		})
	}
	return envelope.Success(out, meta)
}
