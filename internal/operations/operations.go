// Package operations implements the operation adapters (C9): thin
// per-operation bindings that assemble a dispatcher.RequestContext, invoke
// the dispatcher, unwrap the upstream {payload, errors} envelope with gjson,
// and wrap the result in the standard envelope.Envelope (spec.md §4.6).
//
// DESIGN: grounded on the teacher's external/llm.go CallLLM — build request,
// context-bound timeout (here delegated to the dispatcher), decode the
// response body, translate non-2xx into a typed error. Response unwrapping
// uses tidwall/gjson instead of hand-rolled map type-assertions, since the
// upstream payload shape varies per operation and the filter engine already
// expects generic map[string]interface{}/[]interface{} values.
package operations

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/Pelmog/zigi-amazon-mcp/internal/clock"
	"github.com/Pelmog/zigi-amazon-mcp/internal/dispatcher"
	"github.com/Pelmog/zigi-amazon-mcp/internal/envelope"
	"github.com/Pelmog/zigi-amazon-mcp/internal/filtercatalog"
	"github.com/Pelmog/zigi-amazon-mcp/internal/marketplace"
	"github.com/Pelmog/zigi-amazon-mcp/internal/pagination"
	"github.com/Pelmog/zigi-amazon-mcp/internal/postprocess"
)

// Dispatch is the subset of *dispatcher.Dispatcher the adapters depend on.
type Dispatch interface {
	Dispatch(ctx context.Context, rc dispatcher.RequestContext) (*dispatcher.Result, error)
}

// Adapter holds the shared collaborators every operation binds through:
// the dispatcher (C7, via rate limiter/credentials/signer), the marketplace
// table, the pagination driver (C8), the post-processor (C10), and a clock
// for envelope timestamps.
type Adapter struct {
	dispatch     Dispatch
	marketplaces *marketplace.Table
	pager        *pagination.Driver
	post         *postprocess.Processor
	catalog      *filtercatalog.Catalog
	clock        clock.Clock
}

// New builds an Adapter.
func New(dispatch Dispatch, marketplaces *marketplace.Table, pager *pagination.Driver, post *postprocess.Processor, catalog *filtercatalog.Catalog, clk clock.Clock) *Adapter {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Adapter{dispatch: dispatch, marketplaces: marketplaces, pager: pager, post: post, catalog: catalog, clock: clk}
}

// FilterParams is the caller-facing filter-family parameter group shared by
// every list/projection tool (spec.md §6).
type FilterParams struct {
	FilterID       string
	FilterChain    string
	CustomFilter   string
	FilterParams   map[string]interface{}
	ReduceResponse bool
}

func (f FilterParams) selection() postprocess.FilterSelection {
	return postprocess.FilterSelection{
		FilterID:       f.FilterID,
		FilterChain:    f.FilterChain,
		CustomFilter:   f.CustomFilter,
		FilterParams:   f.FilterParams,
		ReduceResponse: f.ReduceResponse,
	}
}

// baseMetadata starts the envelope.Metadata every operation returns.
func (a *Adapter) baseMetadata(mp marketplace.Marketplace, requestID string) envelope.Metadata {
	return envelope.Metadata{
		Timestamp:     a.clock.Now().UTC(),
		MarketplaceID: mp.ID,
		RequestID:     requestID,
	}
}

// resolveOne validates a single caller-supplied marketplace id list down to
// one marketplace (most operations bind to exactly one host/region), using
// the table's default when ids is empty (spec.md §8 "Unknown marketplace id
// rejected before any network call").
func (a *Adapter) resolveOne(ids []string) (marketplace.Marketplace, error) {
	resolved, err := a.marketplaces.ResolveAll(ids)
	if err != nil {
		return marketplace.Marketplace{}, err
	}
	return resolved[0], nil
}

// endpointURL builds the fully-resolved target URL for a regional host and
// path, with query parameters attached.
func endpointURL(mp marketplace.Marketplace, path string, query map[string]string) string {
	u := fmt.Sprintf("https://%s%s", mp.EndpointHost, path)
	if len(query) == 0 {
		return u
	}
	first := true
	for k, v := range query {
		sep := "&"
		if first {
			sep = "?"
			first = false
		}
		u += sep + k + "=" + v
	}
	return u
}

// dispatchJSON runs rc through the dispatcher and returns the raw response
// body on success.
func (a *Adapter) dispatchJSON(ctx context.Context, rc dispatcher.RequestContext) (*dispatcher.Result, error) {
	return a.dispatch.Dispatch(ctx, rc)
}

// payloadArray extracts a gjson path from body as a generic []interface{},
// the shape the filter engine and envelope JSON encoding both expect.
func payloadArray(body []byte, path string) []interface{} {
	r := gjson.GetBytes(body, path)
	if !r.Exists() {
		return nil
	}
	v := r.Value()
	arr, ok := v.([]interface{})
	if !ok {
		return nil
	}
	return arr
}

// payloadObject extracts a gjson path from body as a generic
// map[string]interface{}. An empty path decodes the whole body.
func payloadObject(body []byte, path string) map[string]interface{} {
	var v interface{}
	if path == "" {
		v = gjson.ParseBytes(body).Value()
	} else {
		r := gjson.GetBytes(body, path)
		if !r.Exists() {
			return nil
		}
		v = r.Value()
	}
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	return obj
}

// validateISODate rejects anything that isn't RFC3339/ISO-8601 with a
// trailing Z or explicit offset (spec.md §6 "Dates are ISO-8601").
func validateISODate(field, value string) error {
	if value == "" {
		return nil
	}
	if _, err := time.Parse(time.RFC3339, value); err != nil {
		return envelope.New(envelope.InvalidInput, fmt.Sprintf("%s must be ISO-8601: %s", field, value))
	}
	return nil
}

// listingUpdateAdvisory is attached to mutating listing calls (spec.md §4.6
// "a listing_update advisory object noting which fields changed and the
// typical propagation delay; this is an observation, not a guarantee").
type listingUpdateAdvisory struct {
	ChangedFields    []string `json:"changedFields"`
	PropagationDelay string   `json:"typicalPropagationDelay"`
}

func newAdvisory(fields []string) listingUpdateAdvisory {
	return listingUpdateAdvisory{ChangedFields: fields, PropagationDelay: "up to 15 minutes"}
}

const (
	methodGet   = http.MethodGet
	methodPatch = http.MethodPatch
	methodPost  = http.MethodPost
	methodPut   = http.MethodPut
)
