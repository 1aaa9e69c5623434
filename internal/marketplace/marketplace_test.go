package marketplace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pelmog/zigi-amazon-mcp/internal/config"
)

func TestNewTable_DefaultsToUK(t *testing.T) {
	tbl, err := NewTable(config.MarketplaceConfig{})
	require.NoError(t, err)
	assert.Equal(t, "A1F83G8C2ARO7P", tbl.Default().ID)
	assert.Equal(t, "GBP", tbl.Default().Currency)
}

func TestByID_UnknownRejected(t *testing.T) {
	tbl, err := NewTable(config.MarketplaceConfig{})
	require.NoError(t, err)
	_, err = tbl.ByID("NOT-A-REAL-ID")
	require.Error(t, err)
}

func TestResolveAll_EmptyUsesDefault(t *testing.T) {
	tbl, err := NewTable(config.MarketplaceConfig{})
	require.NoError(t, err)
	mps, err := tbl.ResolveAll(nil)
	require.NoError(t, err)
	require.Len(t, mps, 1)
	assert.Equal(t, tbl.Default().ID, mps[0].ID)
}

func TestNewTable_OverrideCustomDefault(t *testing.T) {
	tbl, err := NewTable(config.MarketplaceConfig{
		Default: "ZZ",
		Overrides: map[string]config.Marketplace{
			"ZZ": {ID: "AZZZZZZZZZZZZZ", EndpointHost: "sellingpartnerapi-eu.amazon.com", Region: "eu-west-1", Currency: "GBP"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "AZZZZZZZZZZZZZ", tbl.Default().ID)
}

func TestNewTable_UnknownDefaultRejected(t *testing.T) {
	_, err := NewTable(config.MarketplaceConfig{Default: "NOPE"})
	require.Error(t, err)
}
