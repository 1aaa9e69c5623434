package filterengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pelmog/zigi-amazon-mcp/internal/filtercatalog"
)

func openSeededCatalog(t *testing.T) *filtercatalog.Catalog {
	t.Helper()
	c, err := filtercatalog.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	require.NoError(t, c.ImportSeedDir("../filtercatalog/seed"))
	return c
}

// TestApplySingle_OrderSummary is scenario S2: apply the field filter
// order_summary to one order and expect ≥80% size reduction.
func TestApplySingle_OrderSummary(t *testing.T) {
	catalog := openSeededCatalog(t)
	e := New(catalog, Limits{})

	input := []interface{}{
		map[string]interface{}{
			"AmazonOrderId":                "123-1234567-1234567",
			"SellerOrderId":                "SO-98765",
			"PurchaseDate":                 "2025-01-30T10:00:00Z",
			"LastUpdateDate":               "2025-01-31T09:15:00Z",
			"OrderStatus":                  "Shipped",
			"FulfillmentChannel":           "MFN",
			"SalesChannel":                 "Amazon.co.uk",
			"OrderChannel":                 "",
			"ShipServiceLevel":             "Std UK Dom_1",
			"OrderTotal":                   map[string]interface{}{"Amount": "89.99", "CurrencyCode": "GBP"},
			"NumberOfItemsShipped":         1.0,
			"NumberOfItemsUnshipped":       0.0,
			"PaymentMethod":                "Other",
			"MarketplaceId":                "A1F83G8C2ARO7P",
			"ShipmentServiceLevelCategory": "Standard",
			"OrderType":                    "StandardOrder",
			"EarliestShipDate":             "2025-01-30T23:59:59Z",
			"LatestShipDate":               "2025-01-31T23:59:59Z",
			"EarliestDeliveryDate":         "2025-02-01T23:59:59Z",
			"LatestDeliveryDate":           "2025-02-03T23:59:59Z",
			"IsBusinessOrder":              false,
			"IsPrime":                      true,
			"IsPremiumOrder":               false,
			"IsGlobalExpressEnabled":       false,
			"ShippingAddress": map[string]interface{}{
				"Name":          "Jane Doe",
				"AddressLine1":  "1 High Street",
				"City":          "London",
				"StateOrRegion": "Greater London",
				"PostalCode":    "SW1A 1AA",
				"CountryCode":   "GB",
				"Phone":         "+44 20 7946 0000",
			},
			"BuyerInfo": map[string]interface{}{
				"BuyerEmail": "buyer@marketplace.amazon.co.uk",
				"BuyerName":  "Jane Doe",
			},
		},
	}

	out, meta, err := e.Apply(input, Request{FilterID: "order_summary"})
	require.NoError(t, err)

	want := []interface{}{
		map[string]interface{}{"orderId": "123-1234567-1234567", "status": "Shipped", "total": "89.99", "currency": "GBP"},
	}
	assert.Equal(t, want, out)
	assert.GreaterOrEqual(t, meta.ReductionPct, 80.0)
	assert.Equal(t, []string{"order_summary"}, meta.FiltersApplied)
}

// TestApplySingle_HighValueItems is scenario S3: the record filter
// high_value_items(threshold=50).
func TestApplySingle_HighValueItems(t *testing.T) {
	catalog := openSeededCatalog(t)
	e := New(catalog, Limits{})

	input := []interface{}{
		map[string]interface{}{"OrderItemId": "a", "ItemPrice": map[string]interface{}{"Amount": "75.00"}},
		map[string]interface{}{"OrderItemId": "b", "ItemPrice": map[string]interface{}{"Amount": "25.00"}},
	}

	out, _, err := e.Apply(input, Request{FilterID: "high_value_items", FilterParams: map[string]Value{"threshold": 50.0}})
	require.NoError(t, err)

	want := []interface{}{
		map[string]interface{}{"OrderItemId": "a", "ItemPrice": map[string]interface{}{"Amount": "75.00"}},
	}
	assert.Equal(t, want, out)
}

func TestApplySingle_UsesDeclaredDefaultWhenParamOmitted(t *testing.T) {
	catalog := openSeededCatalog(t)
	e := New(catalog, Limits{})

	input := []interface{}{
		map[string]interface{}{"OrderItemId": "a", "ItemPrice": map[string]interface{}{"Amount": "75.00"}},
		map[string]interface{}{"OrderItemId": "b", "ItemPrice": map[string]interface{}{"Amount": "25.00"}},
	}
	out, _, err := e.Apply(input, Request{FilterID: "high_value_items"})
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestApplySingle_UnknownFilterIDIsInvalidInput(t *testing.T) {
	catalog := openSeededCatalog(t)
	e := New(catalog, Limits{})
	_, _, err := e.Apply(nil, Request{FilterID: "does_not_exist"})
	require.Error(t, err)
}

func TestApplyCustom_NoParameterSubstitution(t *testing.T) {
	catalog := openSeededCatalog(t)
	e := New(catalog, Limits{})
	out, meta, err := e.Apply([]interface{}{1.0, 2.0, 3.0}, Request{CustomFilter: "filter(. > 1)"})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{2.0, 3.0}, out)
	assert.Equal(t, []string{"<custom>"}, meta.FiltersApplied)
}

func TestApplyChain_CommaSeparatedIDs(t *testing.T) {
	catalog := openSeededCatalog(t)
	e := New(catalog, Limits{})

	input := []interface{}{
		map[string]interface{}{
			"AmazonOrderId": "1",
			"OrderStatus":   "Shipped",
			"OrderTotal":    map[string]interface{}{"Amount": "150.00", "CurrencyCode": "GBP"},
		},
		map[string]interface{}{
			"AmazonOrderId": "2",
			"OrderStatus":   "Shipped",
			"OrderTotal":    map[string]interface{}{"Amount": "10.00", "CurrencyCode": "GBP"},
		},
	}

	out, applied, err := e.applyChain(input, "high_value_orders,order_summary", map[string]Value{"threshold": 100.0})
	require.NoError(t, err)
	assert.Equal(t, []string{"high_value_orders", "order_summary"}, applied)
	assert.Equal(t, []interface{}{
		map[string]interface{}{"orderId": "1", "status": "Shipped", "total": "150.00", "currency": "GBP"},
	}, out)
}

func TestApplyChain_NamedChainFilter(t *testing.T) {
	catalog := openSeededCatalog(t)
	e := New(catalog, Limits{})

	input := []interface{}{
		map[string]interface{}{
			"AmazonOrderId": "1",
			"OrderStatus":   "Shipped",
			"OrderTotal":    map[string]interface{}{"Amount": "150.00", "CurrencyCode": "GBP"},
		},
	}
	out, applied, err := e.Apply(input, Request{FilterChain: "order_value_summary"})
	require.NoError(t, err)
	assert.Equal(t, []string{"high_value_orders", "order_summary"}, applied)
	assert.Equal(t, []interface{}{
		map[string]interface{}{"orderId": "1", "status": "Shipped", "total": "150.00", "currency": "GBP"},
	}, out)
}

func TestApplyChain_UnknownStepIsInvalidInput(t *testing.T) {
	catalog := openSeededCatalog(t)
	e := New(catalog, Limits{})
	_, _, err := e.Apply([]interface{}{}, Request{FilterChain: "high_value_orders,does_not_exist"})
	require.Error(t, err)
}

func TestApplyDefaultReduction_UsesTaggedDefault(t *testing.T) {
	catalog := openSeededCatalog(t)
	e := New(catalog, Limits{})

	input := []interface{}{
		map[string]interface{}{"AmazonOrderId": "1", "OrderTotal": map[string]interface{}{"Amount": "150.00"}},
		map[string]interface{}{"AmazonOrderId": "2", "OrderTotal": map[string]interface{}{"Amount": "10.00"}},
	}
	out, applied, err := e.Apply(input, Request{ReduceResponse: true, Operation: "listOrders"})
	require.NoError(t, err)
	assert.Equal(t, []string{"high_value_orders"}, applied)
	assert.Len(t, out, 1)
}

func TestApplyDefaultReduction_PassesThroughWhenNoneRegistered(t *testing.T) {
	catalog := openSeededCatalog(t)
	e := New(catalog, Limits{})
	input := []interface{}{"anything"}
	out, applied, err := e.Apply(input, Request{ReduceResponse: true, Operation: "noSuchOperation"})
	require.NoError(t, err)
	assert.Nil(t, applied)
	assert.Equal(t, input, out)
}

func TestApply_PassThroughWhenNoFilterSelected(t *testing.T) {
	catalog := openSeededCatalog(t)
	e := New(catalog, Limits{})
	input := map[string]interface{}{"a": 1.0}
	out, meta, err := e.Apply(input, Request{})
	require.NoError(t, err)
	assert.Equal(t, input, out)
	assert.Equal(t, 0.0, meta.ReductionPct)
}
