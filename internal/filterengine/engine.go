package filterengine

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/Pelmog/zigi-amazon-mcp/internal/envelope"
	"github.com/Pelmog/zigi-amazon-mcp/internal/filtercatalog"
)

// Engine applies catalog-backed and ad-hoc filters to response documents,
// implementing the four application modes of spec.md §4.7.
type Engine struct {
	catalog *filtercatalog.Catalog
	limits  Limits
}

// New returns an Engine backed by catalog, with the given cost limits
// (zero fields fall back to DefaultLimits).
func New(catalog *filtercatalog.Catalog, limits Limits) *Engine {
	if limits.MaxDepth == 0 {
		limits.MaxDepth = DefaultLimits.MaxDepth
	}
	if limits.MaxNodes == 0 {
		limits.MaxNodes = DefaultLimits.MaxNodes
	}
	return &Engine{catalog: catalog, limits: limits}
}

// DefaultLimits matches spec.md §4.7's stated defaults.
var DefaultLimits = Limits{MaxDepth: 32, MaxNodes: 10000}

// Metadata records the post-processing facts spec.md §4.7 requires:
// original/final canonical-JSON byte sizes, percent reduction rounded to
// one decimal, and which filters were applied.
type Metadata struct {
	OriginalBytes  int      `json:"originalBytes"`
	FinalBytes     int      `json:"finalBytes"`
	ReductionPct   float64  `json:"reductionPercent"`
	FiltersApplied []string `json:"filtersApplied"`
}

// Request carries the caller's filter selection for one operation
// response (spec.md §6 filter-family params).
type Request struct {
	FilterID       string
	FilterChain    string
	CustomFilter   string
	FilterParams   map[string]Value
	ReduceResponse bool
	Operation      string
}

// Apply dispatches to the mode implied by which Request fields are set, in
// the priority order spec.md §4.7 lists: named filter, custom expression,
// chain, then default reduction; an empty Request is a pass-through.
func (e *Engine) Apply(input Value, req Request) (Value, Metadata, error) {
	originalBytes, err := canonicalSize(input)
	if err != nil {
		return nil, Metadata{}, err
	}

	var out Value
	var applied []string

	switch {
	case req.FilterID != "":
		out, err = e.applySingle(input, req.FilterID, req.FilterParams)
		applied = []string{req.FilterID}
	case req.CustomFilter != "":
		out, err = e.applyCustom(input, req.CustomFilter, req.FilterParams)
		applied = []string{"<custom>"}
	case req.FilterChain != "":
		out, applied, err = e.applyChain(input, req.FilterChain, req.FilterParams)
	case req.ReduceResponse:
		out, applied, err = e.applyDefaultReduction(input, req.Operation, req.FilterParams)
	default:
		out, applied = input, nil
	}
	if err != nil {
		return nil, Metadata{}, err
	}

	finalBytes, err := canonicalSize(out)
	if err != nil {
		return nil, Metadata{}, err
	}
	return out, Metadata{
		OriginalBytes:  originalBytes,
		FinalBytes:     finalBytes,
		ReductionPct:   reductionPercent(originalBytes, finalBytes),
		FiltersApplied: applied,
	}, nil
}

// applySingle resolves filterID in the catalog and evaluates its
// expression with caller-supplied parameters merged over declared
// defaults; a required parameter without a supplied value is InvalidInput
// (spec.md §4.7 mode 1).
func (e *Engine) applySingle(input Value, filterID string, callerParams map[string]Value) (Value, error) {
	fd, ok := e.catalog.GetByID(filterID)
	if !ok {
		return nil, envelope.New(envelope.InvalidInput, "unknown filter id: "+filterID)
	}
	params, err := mergeParams(fd, callerParams)
	if err != nil {
		return nil, err
	}
	return e.evalExpression(fd.Expression, input, params)
}

// applyCustom evaluates an ad-hoc expression with no parameter
// substitution (spec.md §4.7 mode 2).
func (e *Engine) applyCustom(input Value, expr string, callerParams map[string]Value) (Value, error) {
	return e.evalExpression(expr, input, nil)
}

// applyChain executes a comma-separated list of filter ids, or a single
// chain filter id, piping each step's output into the next (spec.md §4.7
// mode 3). Unknown ids are InvalidInput. Each step runs with the overall
// invocation's merged parameter map; unknown parameters to a given step
// are simply ignored by that step's expression.
func (e *Engine) applyChain(input Value, chainSpec string, callerParams map[string]Value) (Value, []string, error) {
	steps, err := e.resolveChainSteps(chainSpec)
	if err != nil {
		return nil, nil, err
	}

	current := input
	for _, stepID := range steps {
		fd, ok := e.catalog.GetByID(stepID)
		if !ok {
			return nil, nil, envelope.New(envelope.InvalidInput, "unknown filter chain step: "+stepID)
		}
		params, err := mergeParams(fd, callerParams)
		if err != nil {
			return nil, nil, err
		}
		current, err = e.evalExpression(fd.Expression, current, params)
		if err != nil {
			return nil, nil, err
		}
	}
	return current, steps, nil
}

func (e *Engine) resolveChainSteps(chainSpec string) ([]string, error) {
	if fd, ok := e.catalog.GetByID(chainSpec); ok && fd.Kind == filtercatalog.KindChain {
		return fd.ChainSteps, nil
	}
	var steps []string
	for _, part := range strings.Split(chainSpec, ",") {
		id := strings.TrimSpace(part)
		if id == "" {
			continue
		}
		steps = append(steps, id)
	}
	if len(steps) == 0 {
		return nil, envelope.New(envelope.InvalidInput, "empty filter chain")
	}
	return steps, nil
}

// applyDefaultReduction selects the catalog's default filter for
// operation and applies it, passing the input through unchanged if none
// is registered (spec.md §4.7 mode 4).
func (e *Engine) applyDefaultReduction(input Value, operation string, callerParams map[string]Value) (Value, []string, error) {
	fd, ok := e.catalog.DefaultFor(operation)
	if !ok {
		return input, nil, nil
	}
	params, err := mergeParams(fd, callerParams)
	if err != nil {
		return nil, nil, err
	}
	out, err := e.evalExpression(fd.Expression, input, params)
	if err != nil {
		return nil, nil, err
	}
	return out, []string{fd.ID}, nil
}

func (e *Engine) evalExpression(expr string, input Value, params map[string]Value) (Value, error) {
	n, err := Parse(expr)
	if err != nil {
		return nil, envelope.Wrap(envelope.FilterFailed, "failed to parse filter expression", err)
	}
	out, err := Eval(n, input, params, e.limits)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// mergeParams merges caller-supplied values over a filter's declared
// defaults, erroring on any missing required parameter.
func mergeParams(fd *filtercatalog.FilterDefinition, callerParams map[string]Value) (map[string]Value, error) {
	out := make(map[string]Value, len(fd.Parameters))
	for _, p := range fd.Parameters {
		if v, ok := callerParams[p.Name]; ok {
			out[p.Name] = v
			continue
		}
		if p.Default != nil {
			out[p.Name] = p.Default
			continue
		}
		if p.Required {
			return nil, envelope.New(envelope.InvalidInput, "missing required filter parameter: "+p.Name)
		}
	}
	// Parameters not declared by this filter pass through unchanged, so a
	// chain step can see parameters meant for a sibling step and simply
	// not reference them.
	for k, v := range callerParams {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return out, nil
}

func canonicalSize(v Value) (int, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return 0, envelope.Wrap(envelope.FilterFailed, "failed to canonicalize document for size accounting", err)
	}
	return len(b), nil
}

func reductionPercent(original, final int) float64 {
	if original == 0 {
		return 0
	}
	pct := (1 - float64(final)/float64(original)) * 100
	return math.Round(pct*10) / 10
}
