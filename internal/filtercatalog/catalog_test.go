package filtercatalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestImportSeedDir_LoadsAllFilters(t *testing.T) {
	c := openTestCatalog(t)
	require.NoError(t, c.ImportSeedDir("seed"))

	_, ok := c.GetByID("high_value_orders")
	assert.True(t, ok)
	_, ok = c.GetByID("order_summary")
	assert.True(t, ok)
	_, ok = c.GetByID("high_value_items")
	assert.True(t, ok)
	_, ok = c.GetByID("order_value_summary")
	assert.True(t, ok)
}

func TestImportSeedDir_IsIdempotent(t *testing.T) {
	c := openTestCatalog(t)
	require.NoError(t, c.ImportSeedDir("seed"))
	before, ok := c.GetByID("high_value_orders")
	require.True(t, ok)
	beforeCopy := *before

	require.NoError(t, c.ImportSeedDir("seed"))
	after, ok := c.GetByID("high_value_orders")
	require.True(t, ok)

	assert.Equal(t, beforeCopy.Name, after.Name)
	assert.Equal(t, beforeCopy.Expression, after.Expression)
	assert.Equal(t, beforeCopy.Endpoints, after.Endpoints)
	assert.Equal(t, beforeCopy.Parameters, after.Parameters)
	assert.Equal(t, beforeCopy.Tags, after.Tags)

	all := c.Search("", "", "", "")
	seen := make(map[string]bool)
	for _, fd := range all {
		assert.False(t, seen[fd.ID], "duplicate id %s after re-import", fd.ID)
		seen[fd.ID] = true
	}
}

func TestDefaultFor_ReturnsTaggedDefault(t *testing.T) {
	c := openTestCatalog(t)
	require.NoError(t, c.ImportSeedDir("seed"))

	fd, ok := c.DefaultFor("listOrders")
	require.True(t, ok)
	assert.Equal(t, "high_value_orders", fd.ID)
}

func TestSearch_FiltersByEndpointCategoryKindAndTerm(t *testing.T) {
	c := openTestCatalog(t)
	require.NoError(t, c.ImportSeedDir("seed"))

	results := c.Search("getOrderItems", "", "", "")
	var ids []string
	for _, fd := range results {
		ids = append(ids, fd.ID)
	}
	assert.Contains(t, ids, "high_value_items")

	results = c.Search("", "", KindChain, "")
	require.Len(t, results, 1)
	assert.Equal(t, "order_value_summary", results[0].ID)

	results = c.Search("", "", "", "summary")
	assert.NotEmpty(t, results)
}

func TestListChainSteps_ReturnsOrderedSteps(t *testing.T) {
	c := openTestCatalog(t)
	require.NoError(t, c.ImportSeedDir("seed"))

	steps := c.ListChainSteps("order_value_summary")
	assert.Equal(t, []string{"high_value_orders", "order_summary"}, steps)
}

func TestImportDoc_RejectsDirectCycle(t *testing.T) {
	c := openTestCatalog(t)
	doc := seedDoc{Filters: []seedFilter{
		{ID: "a", Name: "a", Kind: string(KindChain), Active: true, Steps: []string{"b"}},
		{ID: "b", Name: "b", Kind: string(KindChain), Active: true, Steps: []string{"a"}},
	}}
	err := c.importDoc(doc)
	require.Error(t, err)
	assert.ErrorIs(t, err, errCycle)
}

func TestImportDoc_RejectsSelfCycle(t *testing.T) {
	c := openTestCatalog(t)
	doc := seedDoc{Filters: []seedFilter{
		{ID: "a", Name: "a", Kind: string(KindChain), Active: true, Steps: []string{"a"}},
	}}
	err := c.importDoc(doc)
	require.Error(t, err)
	assert.ErrorIs(t, err, errCycle)
}

func TestImportDoc_AcceptsNonCyclicChainOfChains(t *testing.T) {
	c := openTestCatalog(t)
	doc := seedDoc{Filters: []seedFilter{
		{ID: "leaf", Name: "leaf", Kind: string(KindRecord), Active: true, Expression: "."},
		{ID: "mid", Name: "mid", Kind: string(KindChain), Active: true, Steps: []string{"leaf"}},
		{ID: "top", Name: "top", Kind: string(KindChain), Active: true, Steps: []string{"mid", "leaf"}},
	}}
	require.NoError(t, c.importDoc(doc))

	_, ok := c.GetByID("top")
	assert.True(t, ok)
}
