package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pelmog/zigi-amazon-mcp/internal/config"
	"github.com/Pelmog/zigi-amazon-mcp/internal/dispatcher"
	"github.com/Pelmog/zigi-amazon-mcp/internal/envelope"
	"github.com/Pelmog/zigi-amazon-mcp/internal/filtercatalog"
	"github.com/Pelmog/zigi-amazon-mcp/internal/filterengine"
	"github.com/Pelmog/zigi-amazon-mcp/internal/marketplace"
	"github.com/Pelmog/zigi-amazon-mcp/internal/operations"
	"github.com/Pelmog/zigi-amazon-mcp/internal/pagination"
	"github.com/Pelmog/zigi-amazon-mcp/internal/postprocess"
	"github.com/Pelmog/zigi-amazon-mcp/internal/session"
)

// stubDispatch satisfies operations.Dispatch without ever making a network
// call, returning a fixed body to every request.
type stubDispatch struct{ body string }

func (s stubDispatch) Dispatch(ctx context.Context, rc dispatcher.RequestContext) (*dispatcher.Result, error) {
	return &dispatcher.Result{StatusCode: 200, Body: []byte(s.body), RequestID: "req-stub"}, nil
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	mps, err := marketplace.NewTable(config.MarketplaceConfig{})
	require.NoError(t, err)

	catalog, err := filtercatalog.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })
	require.NoError(t, catalog.ImportSeedDir("../filtercatalog/seed"))

	engine := filterengine.New(catalog, filterengine.Limits{})
	pager := pagination.New(5 * time.Second)
	post := postprocess.New(engine)
	ops := operations.New(stubDispatch{body: `{"payload":{"AmazonOrderId":"1"}}`}, mps, pager, post, catalog, nil)

	gate := session.New()
	return NewRegistry(ops, gate, nil)
}

func TestInvoke_AuthenticateNeedsNoToken(t *testing.T) {
	r := newTestRegistry(t)
	env := r.Invoke(context.Background(), "authenticate", map[string]interface{}{})
	require.True(t, env.Ok)
	data := env.Data.(map[string]interface{})
	assert.NotEmpty(t, data["token"])
}

func TestInvoke_ProtectedToolRejectsMissingToken(t *testing.T) {
	r := newTestRegistry(t)
	env := r.Invoke(context.Background(), "getOrder", map[string]interface{}{"orderId": "1"})
	require.False(t, env.Ok)
	assert.Equal(t, envelope.AuthFailed, env.Error.Kind)
}

func TestInvoke_AuthenticateThenProtectedToolSucceeds(t *testing.T) {
	r := newTestRegistry(t)
	authEnv := r.Invoke(context.Background(), "authenticate", map[string]interface{}{})
	require.True(t, authEnv.Ok)
	token := authEnv.Data.(map[string]interface{})["token"].(string)

	env := r.Invoke(context.Background(), "getOrder", map[string]interface{}{"token": token, "orderId": "1"})
	require.True(t, env.Ok)
}

func TestInvoke_UnknownToolIsInvalidInput(t *testing.T) {
	r := newTestRegistry(t)
	env := r.Invoke(context.Background(), "notARealTool", map[string]interface{}{})
	require.False(t, env.Ok)
	assert.Equal(t, envelope.InvalidInput, env.Error.Kind)
}

func TestInvoke_ListFiltersAfterAuthenticate(t *testing.T) {
	r := newTestRegistry(t)
	authEnv := r.Invoke(context.Background(), "authenticate", map[string]interface{}{})
	token := authEnv.Data.(map[string]interface{})["token"].(string)

	env := r.Invoke(context.Background(), "listFilters", map[string]interface{}{"token": token, "endpoint": "listOrders"})
	require.True(t, env.Ok)
	defs := env.Data.([]map[string]interface{})
	var found bool
	for _, d := range defs {
		if d["id"] == "high_value_orders" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestNames_IncludesRequiredSurface(t *testing.T) {
	r := newTestRegistry(t)
	names := r.Names()
	for _, want := range []string{
		"authenticate", "listOrders", "getOrder", "getOrderItems", "inventoryInStock",
		"getListing", "updateListing", "updatePrice", "updateFbmInventory",
		"bulkUpdateFbmInventory", "submitFeed", "feedStatus", "requestReport",
		"getReport", "listFilters",
	} {
		assert.Contains(t, names, want)
	}
}
