// Package postprocess is the response post-processor (C10): it runs an
// operation's decoded payload through the filter engine (C3) and folds the
// resulting size/reduction accounting into the envelope metadata every
// adapter returns (spec.md §4.7 "Post-processing metadata").
package postprocess

import (
	"github.com/Pelmog/zigi-amazon-mcp/internal/envelope"
	"github.com/Pelmog/zigi-amazon-mcp/internal/filterengine"
)

// Processor applies the filter engine to operation payloads and merges the
// result into a caller-supplied base envelope.Metadata.
type Processor struct {
	engine *filterengine.Engine
}

// New returns a Processor backed by engine.
func New(engine *filterengine.Engine) *Processor {
	return &Processor{engine: engine}
}

// FilterSelection is the caller-facing filter-family parameter group every
// list/projection tool accepts (spec.md §6 "filter-family params").
type FilterSelection struct {
	FilterID       string
	FilterChain    string
	CustomFilter   string
	FilterParams   map[string]interface{}
	ReduceResponse bool
}

// Apply runs data through the engine according to sel for operation, and
// returns data merged into base's size/reduction/filters-applied fields. A
// zero-value FilterSelection with ReduceResponse unset falls through to the
// engine's own pass-through behavior.
func (p *Processor) Apply(data interface{}, operation string, sel FilterSelection, base envelope.Metadata) (interface{}, envelope.Metadata, error) {
	req := filterengine.Request{
		FilterID:       sel.FilterID,
		FilterChain:    sel.FilterChain,
		CustomFilter:   sel.CustomFilter,
		FilterParams:   sel.FilterParams,
		ReduceResponse: sel.ReduceResponse,
		Operation:      operation,
	}
	out, fmeta, err := p.engine.Apply(data, req)
	if err != nil {
		return nil, envelope.Metadata{}, err
	}
	base.OriginalSizeBytes = fmeta.OriginalBytes
	base.FinalSizeBytes = fmeta.FinalBytes
	base.ReductionPercent = fmeta.ReductionPct
	base.FiltersApplied = fmeta.FiltersApplied
	return out, base, nil
}
