package operations

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/sjson"

	"github.com/Pelmog/zigi-amazon-mcp/internal/dispatcher"
	"github.com/Pelmog/zigi-amazon-mcp/internal/envelope"
)

const maxListingListEntries = 5

// GetListingParams is the getListing tool's input.
type GetListingParams struct {
	SellerID       string
	SKU            string
	MarketplaceIDs []string
	IncludedData   []string
}

// GetListing implements
// `GET /listings/2021-08-01/items/{sellerId}/{sku}`.
func (a *Adapter) GetListing(ctx context.Context, p GetListingParams) envelope.Envelope {
	mp, err := a.resolveOne(p.MarketplaceIDs)
	if err != nil {
		return envelope.Failure(err, envelope.Metadata{})
	}
	meta := a.baseMetadata(mp, "")
	if p.SellerID == "" || p.SKU == "" {
		return envelope.Failure(envelope.New(envelope.InvalidInput, "sellerId and sku are required"), meta)
	}

	path := fmt.Sprintf("/listings/2021-08-01/items/%s/%s", p.SellerID, p.SKU)
	query := map[string]string{"marketplaceIds": mp.ID}
	if len(p.IncludedData) > 0 {
		query["includedData"] = strings.Join(p.IncludedData, ",")
	}

	result, err := a.dispatchJSON(ctx, dispatcher.RequestContext{
		OperationName: "getListing",
		Method:        methodGet,
		Path:          "/listings/2021-08-01/items",
		URL:           endpointURL(mp, path, query),
		Query:         query,
		Marketplace:   mp,
	})
	if err != nil {
		return envelope.Failure(err, meta)
	}
	meta.RequestID = result.RequestID
	return envelope.Success(payloadObject(result.Body, ""), meta)
}

// UpdateListingParams is the updateListing tool's input; only non-nil/
// non-empty fields produce a patch operation (spec.md §4.6).
type UpdateListingParams struct {
	SellerID       string
	SKU            string
	Title          *string
	BulletPoints   []string
	Description    *string
	SearchTerms    []string
	Brand          *string
	Manufacturer   *string
	MarketplaceIDs []string
}

// UpdateListing implements the partial-update PATCH, building the patch
// document with sjson and capping bulletPoints/searchTerms at 5 entries
// (spec.md §4.6, §8 boundary behavior).
func (a *Adapter) UpdateListing(ctx context.Context, p UpdateListingParams) envelope.Envelope {
	mp, err := a.resolveOne(p.MarketplaceIDs)
	if err != nil {
		return envelope.Failure(err, envelope.Metadata{})
	}
	meta := a.baseMetadata(mp, "")
	if p.SellerID == "" || p.SKU == "" {
		return envelope.Failure(envelope.New(envelope.InvalidInput, "sellerId and sku are required"), meta)
	}
	if len(p.BulletPoints) > maxListingListEntries {
		return envelope.Failure(envelope.New(envelope.InvalidInput, "bulletPoints accepts at most 5 entries"), meta)
	}
	if len(p.SearchTerms) > maxListingListEntries {
		return envelope.Failure(envelope.New(envelope.InvalidInput, "searchTerms accepts at most 5 entries"), meta)
	}

	body := []byte(`{"patches":[]}`)
	var changed []string
	appendPatch := func(attrPath string, value interface{}) {
		body, _ = sjson.SetBytes(body, "patches.-1.op", "replace")
		body, _ = sjson.SetBytes(body, "patches.-1.path", attrPath)
		body, _ = sjson.SetBytes(body, "patches.-1.value", value)
	}

	if p.Title != nil {
		appendPatch("/attributes/item_name", []map[string]string{{"value": *p.Title}})
		changed = append(changed, "title")
	}
	if len(p.BulletPoints) > 0 {
		appendPatch("/attributes/bullet_point", bulletValues(p.BulletPoints))
		changed = append(changed, "bulletPoints")
	}
	if p.Description != nil {
		appendPatch("/attributes/product_description", []map[string]string{{"value": *p.Description}})
		changed = append(changed, "description")
	}
	if len(p.SearchTerms) > 0 {
		appendPatch("/attributes/generic_keyword", bulletValues(p.SearchTerms))
		changed = append(changed, "searchTerms")
	}
	if p.Brand != nil {
		appendPatch("/attributes/brand", []map[string]string{{"value": *p.Brand}})
		changed = append(changed, "brand")
	}
	if p.Manufacturer != nil {
		appendPatch("/attributes/manufacturer", []map[string]string{{"value": *p.Manufacturer}})
		changed = append(changed, "manufacturer")
	}
	if len(changed) == 0 {
		return envelope.Failure(envelope.New(envelope.InvalidInput, "at least one field to update must be supplied"), meta)
	}

	path := fmt.Sprintf("/listings/2021-08-01/items/%s/%s", p.SellerID, p.SKU)
	query := map[string]string{"marketplaceIds": mp.ID}
	result, err := a.dispatchJSON(ctx, dispatcher.RequestContext{
		OperationName: "updateListing",
		Method:        methodPatch,
		Path:          "/listings/2021-08-01/items",
		URL:           endpointURL(mp, path, query),
		Query:         query,
		Body:          body,
		Marketplace:   mp,
	})
	if err != nil {
		return envelope.Failure(err, meta)
	}
	meta.RequestID = result.RequestID
	return envelope.Success(map[string]interface{}{
		"status":   payloadObject(result.Body, ""),
		"advisory": newAdvisory(changed),
	}, meta)
}

func bulletValues(values []string) []map[string]string {
	out := make([]map[string]string, len(values))
	for i, v := range values {
		out[i] = map[string]string{"value": v}
	}
	return out
}

// UpdatePriceParams is the updatePrice tool's input.
type UpdatePriceParams struct {
	SellerID       string
	SKU            string
	NewPrice       string
	Currency       string
	MarketplaceIDs []string
}

// UpdatePrice implements the replace-price PATCH (spec.md §4.6, scenario S5).
func (a *Adapter) UpdatePrice(ctx context.Context, p UpdatePriceParams) envelope.Envelope {
	mp, err := a.resolveOne(p.MarketplaceIDs)
	if err != nil {
		return envelope.Failure(err, envelope.Metadata{})
	}
	meta := a.baseMetadata(mp, "")
	if p.SellerID == "" || p.SKU == "" || p.NewPrice == "" {
		return envelope.Failure(envelope.New(envelope.InvalidInput, "sellerId, sku, and newPrice are required"), meta)
	}
	currency := p.Currency
	if currency == "" {
		currency = "GBP"
	}

	body := []byte(`{"patches":[]}`)
	body, _ = sjson.SetBytes(body, "patches.0.op", "replace")
	body, _ = sjson.SetBytes(body, "patches.0.path", "/attributes/purchasable_offer")
	body, _ = sjson.SetBytes(body, "patches.0.value", []map[string]interface{}{
		{"marketplace_id": mp.ID, "our_price": []map[string]interface{}{
			{"schedule": []map[string]interface{}{
				{"value_with_tax": p.NewPrice},
			}},
		}, "currency": currency, "amount": p.NewPrice},
	})

	path := fmt.Sprintf("/listings/2021-08-01/items/%s/%s", p.SellerID, p.SKU)
	query := map[string]string{"marketplaceIds": mp.ID}
	result, err := a.dispatchJSON(ctx, dispatcher.RequestContext{
		OperationName: "updatePrice",
		Method:        methodPatch,
		Path:          "/products/pricing/v0/price",
		URL:           endpointURL(mp, path, query),
		Query:         query,
		Body:          body,
		Marketplace:   mp,
	})
	if err != nil {
		return envelope.Failure(err, meta)
	}
	meta.RequestID = result.RequestID
	return envelope.Success(map[string]interface{}{
		"status":   payloadObject(result.Body, ""),
		"advisory": newAdvisory([]string{"price"}),
	}, meta)
}

// UpdateFbmInventoryParams is the updateFbmInventory tool's input.
type UpdateFbmInventoryParams struct {
	SellerID       string
	SKU            string
	Quantity       int
	HandlingTime   int
	RestockDate    string
	MarketplaceIDs []string
}

// UpdateFbmInventory implements the replace-fulfillment_availability PATCH,
// rejecting negative quantities, out-of-range handling times, and
// past-dated restock dates (spec.md §4.6, §8 boundary behaviors).
func (a *Adapter) UpdateFbmInventory(ctx context.Context, p UpdateFbmInventoryParams) envelope.Envelope {
	return a.updateFbmInventoryOne(ctx, p)
}

func (a *Adapter) updateFbmInventoryOne(ctx context.Context, p UpdateFbmInventoryParams) envelope.Envelope {
	mp, err := a.resolveOne(p.MarketplaceIDs)
	if err != nil {
		return envelope.Failure(err, envelope.Metadata{})
	}
	meta := a.baseMetadata(mp, "")
	if p.SellerID == "" || p.SKU == "" {
		return envelope.Failure(envelope.New(envelope.InvalidInput, "sellerId and sku are required"), meta)
	}
	if p.Quantity < 0 {
		return envelope.Failure(envelope.New(envelope.InvalidInput, "quantity must be >= 0"), meta)
	}
	if p.HandlingTime != 0 && (p.HandlingTime < 1 || p.HandlingTime > 30) {
		return envelope.Failure(envelope.New(envelope.InvalidInput, "handlingTime must be between 1 and 30"), meta)
	}
	if p.RestockDate != "" {
		if err := validateISODate("restockDate", p.RestockDate); err != nil {
			return envelope.Failure(err, meta)
		}
		restock, _ := time.Parse(time.RFC3339, p.RestockDate)
		if restock.Before(a.clock.Now()) {
			return envelope.Failure(envelope.New(envelope.InvalidInput, "restockDate must not be in the past"), meta)
		}
	}

	availability := map[string]interface{}{"quantity": p.Quantity}
	if p.HandlingTime != 0 {
		availability["handling_time"] = p.HandlingTime
	}
	if p.RestockDate != "" {
		availability["restock_date"] = p.RestockDate
	}

	body := []byte(`{"patches":[]}`)
	body, _ = sjson.SetBytes(body, "patches.0.op", "replace")
	body, _ = sjson.SetBytes(body, "patches.0.path", "/attributes/fulfillment_availability")
	body, _ = sjson.SetBytes(body, "patches.0.value", []map[string]interface{}{availability})

	path := fmt.Sprintf("/listings/2021-08-01/items/%s/%s", p.SellerID, p.SKU)
	query := map[string]string{"marketplaceIds": mp.ID}
	result, err := a.dispatchJSON(ctx, dispatcher.RequestContext{
		OperationName: "updateFbmInventory",
		Method:        methodPatch,
		Path:          "/listings/2021-08-01/items",
		URL:           endpointURL(mp, path, query),
		Query:         query,
		Body:          body,
		Marketplace:   mp,
	})
	if err != nil {
		return envelope.Failure(err, meta)
	}
	meta.RequestID = result.RequestID
	return envelope.Success(map[string]interface{}{
		"status":   payloadObject(result.Body, ""),
		"advisory": newAdvisory([]string{"fulfillmentAvailability"}),
	}, meta)
}

// BulkUpdateFbmInventoryParams is the bulkUpdateFbmInventory tool's input:
// a batch of single-SKU updates sharing one marketplace.
type BulkUpdateFbmInventoryParams struct {
	Updates       []UpdateFbmInventoryParams
	MarketplaceID string
}

// BulkUpdateFbmInventory applies UpdateFbmInventory to each entry in turn,
// returning a per-entry result list; one entry's failure does not abort the
// others (spec.md §6 extends the minimum set with a batch convenience tool).
func (a *Adapter) BulkUpdateFbmInventory(ctx context.Context, p BulkUpdateFbmInventoryParams) envelope.Envelope {
	mp, err := a.resolveOne(stringSliceOf(p.MarketplaceID))
	if err != nil {
		return envelope.Failure(err, envelope.Metadata{})
	}
	meta := a.baseMetadata(mp, "")

	results := make([]envelope.Envelope, 0, len(p.Updates))
	for _, u := range p.Updates {
		if len(u.MarketplaceIDs) == 0 && p.MarketplaceID != "" {
			u.MarketplaceIDs = []string{p.MarketplaceID}
		}
		results = append(results, a.updateFbmInventoryOne(ctx, u))
	}
	return envelope.Success(results, meta)
}

func stringSliceOf(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}
