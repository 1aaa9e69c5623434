package operations

import (
	"context"
	"sort"
	"strings"

	"github.com/Pelmog/zigi-amazon-mcp/internal/dispatcher"
	"github.com/Pelmog/zigi-amazon-mcp/internal/envelope"
	"github.com/Pelmog/zigi-amazon-mcp/internal/marketplace"
)

// InventoryParams is the inventoryInStock tool's input.
type InventoryParams struct {
	MarketplaceIDs  []string
	FulfillmentType string // FBA, FBM, or ALL (default FBA)
	Details         bool
	MaxResults      int
	Filter          FilterParams
}

// InventoryInStock implements `GET /fba/inventory/v1/summaries`, with the
// intrinsic zero-quantity filter and descending totalQuantity sort spec.md
// §4.6 mandates independent of any caller-selected filter. When
// fulfillmentType is FBM, the FBA summaries endpoint does not apply; the
// adapter falls back to the listings endpoint for a best-effort view and
// surfaces the limitation via metadata.warning (spec.md §9 Open Question).
func (a *Adapter) InventoryInStock(ctx context.Context, p InventoryParams) envelope.Envelope {
	mp, err := a.resolveOne(p.MarketplaceIDs)
	if err != nil {
		return envelope.Failure(err, envelope.Metadata{})
	}
	meta := a.baseMetadata(mp, "")

	fulfillmentType := strings.ToUpper(p.FulfillmentType)
	if fulfillmentType == "" {
		fulfillmentType = "FBA"
	}

	var records []interface{}
	switch fulfillmentType {
	case "FBM":
		records, meta, err = a.fbmBestEffortView(ctx, mp, meta)
	case "ALL":
		records, meta, err = a.allFulfillmentView(ctx, mp, meta, p.Details)
	default:
		records, meta, err = a.fbaInventorySummaries(ctx, mp, meta, p.Details)
	}
	if err != nil {
		return envelope.Failure(err, meta)
	}

	records = filterInStock(records)
	sortByTotalQuantityDesc(records)
	if p.MaxResults > 0 && len(records) > p.MaxResults {
		records = records[:p.MaxResults]
	}

	out, meta, err := a.post.Apply(records, "inventoryInStock", p.Filter.selection(), meta)
	if err != nil {
		return envelope.Failure(err, meta)
	}
	return envelope.Success(out, meta)
}

func (a *Adapter) fbaInventorySummaries(ctx context.Context, mp marketplace.Marketplace, meta envelope.Metadata, details bool) ([]interface{}, envelope.Metadata, error) {
	const path = "/fba/inventory/v1/summaries"
	query := map[string]string{
		"granularityType": "Marketplace",
		"granularityId":   mp.ID,
		"marketplaceIds":  mp.ID,
	}
	if details {
		query["details"] = "true"
	}
	result, err := a.dispatchJSON(ctx, dispatcher.RequestContext{
		OperationName: "inventoryInStock",
		Method:        methodGet,
		Path:          path,
		URL:           endpointURL(mp, path, query),
		Query:         query,
		Marketplace:   mp,
	})
	if err != nil {
		return nil, meta, err
	}
	meta.RequestID = result.RequestID
	return payloadArray(result.Body, "inventorySummaries"), meta, nil
}

// allFulfillmentView combines the FBA summaries endpoint with the FBM
// best-effort view so fulfillmentType=ALL does not silently collapse to
// FBA-only (spec.md §9 Open Question: the FBM substitution must be
// caller-visible, which applies here too since ALL carries it through).
func (a *Adapter) allFulfillmentView(ctx context.Context, mp marketplace.Marketplace, meta envelope.Metadata, details bool) ([]interface{}, envelope.Metadata, error) {
	fbaRecords, meta, err := a.fbaInventorySummaries(ctx, mp, meta, details)
	if err != nil {
		return nil, meta, err
	}
	fbmRecords, meta, err := a.fbmBestEffortView(ctx, mp, meta)
	if err != nil {
		return nil, meta, err
	}
	return append(fbaRecords, fbmRecords...), meta, nil
}

// fbmBestEffortView implements the documented FBM limitation: there is no
// FBA-style aggregate summary endpoint for merchant-fulfilled inventory, so
// the adapter queries the listings endpoint and reports what it can,
// flagging the substitution rather than returning partial data silently.
func (a *Adapter) fbmBestEffortView(ctx context.Context, mp marketplace.Marketplace, meta envelope.Metadata) ([]interface{}, envelope.Metadata, error) {
	const path = "/listings/2021-08-01/items"
	query := map[string]string{"marketplaceIds": mp.ID}
	result, err := a.dispatchJSON(ctx, dispatcher.RequestContext{
		OperationName: "inventoryInStock",
		Method:        methodGet,
		Path:          path,
		URL:           endpointURL(mp, path, query),
		Query:         query,
		Marketplace:   mp,
	})
	meta.Warning = "FBM inventory is not exposed by the FBA summaries endpoint; this is a best-effort view derived from the listings endpoint and may omit fields the FBA endpoint would report"
	if err != nil {
		return nil, meta, err
	}
	meta.RequestID = result.RequestID
	return payloadArray(result.Body, "items"), meta, nil
}

func filterInStock(records []interface{}) []interface{} {
	out := make([]interface{}, 0, len(records))
	for _, r := range records {
		m, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		if totalQuantityOf(m) > 0 {
			out = append(out, r)
		}
	}
	return out
}

func sortByTotalQuantityDesc(records []interface{}) {
	sort.SliceStable(records, func(i, j int) bool {
		mi, _ := records[i].(map[string]interface{})
		mj, _ := records[j].(map[string]interface{})
		return totalQuantityOf(mi) > totalQuantityOf(mj)
	})
}

func totalQuantityOf(m map[string]interface{}) float64 {
	if m == nil {
		return 0
	}
	switch v := m["totalQuantity"].(type) {
	case float64:
		return v
	default:
		return 0
	}
}
