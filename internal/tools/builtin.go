package tools

import (
	"context"

	"github.com/Pelmog/zigi-amazon-mcp/internal/envelope"
	"github.com/Pelmog/zigi-amazon-mcp/internal/operations"
	"github.com/Pelmog/zigi-amazon-mcp/internal/session"
)

// builtinTools returns the required tool surface of spec.md §6, each bound
// to ops. gate is closed over by the authenticate handler only — every
// other handler's token check is Registry.Invoke's job, not the handler's.
func builtinTools(ops *operations.Adapter, gate *session.Gate) []Tool {
	return []Tool{
		{
			Name: "authenticate",
			ParameterSchema: map[string]interface{}{
				"type": "object", "properties": map[string]interface{}{},
			},
			RequiresToken: false,
			Handler: func(ctx context.Context, params map[string]interface{}) envelope.Envelope {
				token, err := gate.Authenticate()
				if err != nil {
					return envelope.Failure(err, envelope.Metadata{})
				}
				return envelope.Success(map[string]interface{}{"token": token}, envelope.Metadata{})
			},
		},
		{
			Name:          "listOrders",
			RequiresToken: true,
			ParameterSchema: schema("marketplaceIds", "createdAfter", "createdBefore", "statuses", "maxResults",
				"filterId", "filterChain", "customFilter", "filterParams", "reduceResponse"),
			Handler: func(ctx context.Context, params map[string]interface{}) envelope.Envelope {
				return ops.ListOrders(ctx, operations.ListOrdersParams{
					MarketplaceIDs: strSliceParam(params, "marketplaceIds"),
					CreatedAfter:   strParam(params, "createdAfter"),
					CreatedBefore:  strParam(params, "createdBefore"),
					Statuses:       strSliceParam(params, "statuses"),
					MaxResults:     intParam(params, "maxResults"),
					Filter:         filterParams(params),
				})
			},
		},
		{
			Name:            "getOrder",
			RequiresToken:   true,
			ParameterSchema: schema("orderId"),
			Handler: func(ctx context.Context, params map[string]interface{}) envelope.Envelope {
				return ops.GetOrder(ctx, operations.GetOrderParams{OrderID: strParam(params, "orderId")})
			},
		},
		{
			Name:          "getOrderItems",
			RequiresToken: true,
			ParameterSchema: schema("orderId", "maxResults",
				"filterId", "filterChain", "customFilter", "filterParams", "reduceResponse"),
			Handler: func(ctx context.Context, params map[string]interface{}) envelope.Envelope {
				return ops.GetOrderItems(ctx, operations.GetOrderItemsParams{
					OrderID:    strParam(params, "orderId"),
					MaxResults: intParam(params, "maxResults"),
					Filter:     filterParams(params),
				})
			},
		},
		{
			Name:          "inventoryInStock",
			RequiresToken: true,
			ParameterSchema: schema("marketplaceIds", "fulfillmentType", "details", "maxResults",
				"filterId", "filterChain", "customFilter", "filterParams", "reduceResponse"),
			Handler: func(ctx context.Context, params map[string]interface{}) envelope.Envelope {
				return ops.InventoryInStock(ctx, operations.InventoryParams{
					MarketplaceIDs:  strSliceParam(params, "marketplaceIds"),
					FulfillmentType: strParam(params, "fulfillmentType"),
					Details:         boolParam(params, "details"),
					MaxResults:      intParam(params, "maxResults"),
					Filter:          filterParams(params),
				})
			},
		},
		{
			Name:            "getListing",
			RequiresToken:   true,
			ParameterSchema: schema("sellerId", "sku", "marketplaceIds", "includedData"),
			Handler: func(ctx context.Context, params map[string]interface{}) envelope.Envelope {
				return ops.GetListing(ctx, operations.GetListingParams{
					SellerID:       strParam(params, "sellerId"),
					SKU:            strParam(params, "sku"),
					MarketplaceIDs: strSliceParam(params, "marketplaceIds"),
					IncludedData:   strSliceParam(params, "includedData"),
				})
			},
		},
		{
			Name:          "updateListing",
			RequiresToken: true,
			ParameterSchema: schema("sellerId", "sku", "title", "bulletPoints", "description",
				"searchTerms", "brand", "manufacturer", "marketplaceIds"),
			Handler: func(ctx context.Context, params map[string]interface{}) envelope.Envelope {
				return ops.UpdateListing(ctx, operations.UpdateListingParams{
					SellerID:       strParam(params, "sellerId"),
					SKU:            strParam(params, "sku"),
					Title:          strPtrParam(params, "title"),
					BulletPoints:   strSliceParam(params, "bulletPoints"),
					Description:    strPtrParam(params, "description"),
					SearchTerms:    strSliceParam(params, "searchTerms"),
					Brand:          strPtrParam(params, "brand"),
					Manufacturer:   strPtrParam(params, "manufacturer"),
					MarketplaceIDs: strSliceParam(params, "marketplaceIds"),
				})
			},
		},
		{
			Name:            "updatePrice",
			RequiresToken:   true,
			ParameterSchema: schema("sellerId", "sku", "newPrice", "currency", "marketplaceIds"),
			Handler: func(ctx context.Context, params map[string]interface{}) envelope.Envelope {
				return ops.UpdatePrice(ctx, operations.UpdatePriceParams{
					SellerID:       strParam(params, "sellerId"),
					SKU:            strParam(params, "sku"),
					NewPrice:       strParam(params, "newPrice"),
					Currency:       strParam(params, "currency"),
					MarketplaceIDs: strSliceParam(params, "marketplaceIds"),
				})
			},
		},
		{
			Name:            "updateFbmInventory",
			RequiresToken:   true,
			ParameterSchema: schema("sellerId", "sku", "quantity", "handlingTime", "restockDate", "marketplaceIds"),
			Handler: func(ctx context.Context, params map[string]interface{}) envelope.Envelope {
				return ops.UpdateFbmInventory(ctx, operations.UpdateFbmInventoryParams{
					SellerID:       strParam(params, "sellerId"),
					SKU:            strParam(params, "sku"),
					Quantity:       intParam(params, "quantity"),
					HandlingTime:   intParam(params, "handlingTime"),
					RestockDate:    strParam(params, "restockDate"),
					MarketplaceIDs: strSliceParam(params, "marketplaceIds"),
				})
			},
		},
		{
			Name:            "bulkUpdateFbmInventory",
			RequiresToken:   true,
			ParameterSchema: schema("updatesJsonArray", "marketplaceId"),
			Handler: func(ctx context.Context, params map[string]interface{}) envelope.Envelope {
				return ops.BulkUpdateFbmInventory(ctx, operations.BulkUpdateFbmInventoryParams{
					Updates:       bulkUpdatesFrom(params["updatesJsonArray"]),
					MarketplaceID: strParam(params, "marketplaceId"),
				})
			},
		},
		{
			Name:            "submitFeed",
			RequiresToken:   true,
			ParameterSchema: schema("feedType", "content", "marketplaceIds"),
			Handler: func(ctx context.Context, params map[string]interface{}) envelope.Envelope {
				return ops.SubmitFeed(ctx, operations.SubmitFeedParams{
					FeedType:       strParam(params, "feedType"),
					Content:        []byte(strParam(params, "content")),
					MarketplaceIDs: strSliceParam(params, "marketplaceIds"),
				})
			},
		},
		{
			Name:            "feedStatus",
			RequiresToken:   true,
			ParameterSchema: schema("feedId"),
			Handler: func(ctx context.Context, params map[string]interface{}) envelope.Envelope {
				return ops.FeedStatus(ctx, operations.FeedStatusParams{FeedID: strParam(params, "feedId")})
			},
		},
		{
			Name:            "requestReport",
			RequiresToken:   true,
			ParameterSchema: schema("reportType", "marketplaceIds", "startDate", "endDate"),
			Handler: func(ctx context.Context, params map[string]interface{}) envelope.Envelope {
				return ops.RequestReport(ctx, operations.RequestReportParams{
					ReportType:     strParam(params, "reportType"),
					MarketplaceIDs: strSliceParam(params, "marketplaceIds"),
					StartDate:      strParam(params, "startDate"),
					EndDate:        strParam(params, "endDate"),
				})
			},
		},
		{
			Name:            "getReport",
			RequiresToken:   true,
			ParameterSchema: schema("reportId"),
			Handler: func(ctx context.Context, params map[string]interface{}) envelope.Envelope {
				return ops.GetReport(ctx, operations.GetReportParams{ReportID: strParam(params, "reportId")})
			},
		},
		{
			Name:            "listFilters",
			RequiresToken:   true,
			ParameterSchema: schema("endpoint", "category", "kind", "searchTerm"),
			Handler: func(ctx context.Context, params map[string]interface{}) envelope.Envelope {
				return ops.ListFilters(ctx, operations.ListFiltersParams{
					Endpoint:   strParam(params, "endpoint"),
					Category:   strParam(params, "category"),
					Kind:       strParam(params, "kind"),
					SearchTerm: strParam(params, "searchTerm"),
				})
			},
		},
	}
}

// schema is a minimal parameter-schema builder: every named field is
// advertised as an optional property of unspecified JSON type, leaving
// precise typing to the transport's own schema layer.
func schema(fields ...string) map[string]interface{} {
	props := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		props[f] = map[string]interface{}{}
	}
	return map[string]interface{}{"type": "object", "properties": props}
}

// bulkUpdatesFrom decodes the updatesJsonArray parameter (a []interface{} of
// per-SKU update objects) into typed params.
func bulkUpdatesFrom(raw interface{}) []operations.UpdateFbmInventoryParams {
	arr, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]operations.UpdateFbmInventoryParams, 0, len(arr))
	for _, item := range arr {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, operations.UpdateFbmInventoryParams{
			SellerID:       strParam(m, "sellerId"),
			SKU:            strParam(m, "sku"),
			Quantity:       intParam(m, "quantity"),
			HandlingTime:   intParam(m, "handlingTime"),
			RestockDate:    strParam(m, "restockDate"),
			MarketplaceIDs: strSliceParam(m, "marketplaceIds"),
		})
	}
	return out
}
