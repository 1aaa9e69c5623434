// Package marketplace holds the process-wide marketplace constant table
// (spec.md §3 Marketplace) plus config.yaml overrides/additions.
package marketplace

import (
	"fmt"
	"sort"

	"github.com/Pelmog/zigi-amazon-mcp/internal/config"
	"github.com/Pelmog/zigi-amazon-mcp/internal/envelope"
)

// Marketplace is the spec.md §3 record: country-scoped id, endpoint host,
// signing region, and default currency.
type Marketplace struct {
	CountryCode  string
	ID           string
	EndpointHost string
	Region       string
	Currency     string
}

var builtin = map[string]Marketplace{
	"UK": {CountryCode: "UK", ID: "A1F83G8C2ARO7P", EndpointHost: "sellingpartnerapi-eu.amazon.com", Region: "eu-west-1", Currency: "GBP"},
	"US": {CountryCode: "US", ID: "ATVPDKIKX0DER", EndpointHost: "sellingpartnerapi-na.amazon.com", Region: "us-east-1", Currency: "USD"},
	"DE": {CountryCode: "DE", ID: "A1PA6795UKMFR9", EndpointHost: "sellingpartnerapi-eu.amazon.com", Region: "eu-west-1", Currency: "EUR"},
	"FR": {CountryCode: "FR", ID: "A13V1IB3VIYZZH", EndpointHost: "sellingpartnerapi-eu.amazon.com", Region: "eu-west-1", Currency: "EUR"},
	"JP": {CountryCode: "JP", ID: "A1VC38T7YXB528", EndpointHost: "sellingpartnerapi-fe.amazon.com", Region: "us-west-2", Currency: "JPY"},
}

// Table resolves marketplace ids and country codes to full Marketplace
// records. It is process-wide constant data plus config overrides, read-only
// after construction and therefore safe for concurrent lookup without a
// mutex (spec.md §5 "Filter catalog: reads use a read-mostly strategy"
// applies equally here — there simply are no writes after NewTable).
type Table struct {
	byCountry map[string]Marketplace
	byID      map[string]Marketplace
	def       Marketplace
}

// NewTable builds a Table from the built-in constants overlaid with cfg.
func NewTable(cfg config.MarketplaceConfig) (*Table, error) {
	byCountry := make(map[string]Marketplace, len(builtin))
	for k, v := range builtin {
		byCountry[k] = v
	}
	for code, o := range cfg.Overrides {
		byCountry[code] = Marketplace{
			CountryCode:  code,
			ID:           o.ID,
			EndpointHost: o.EndpointHost,
			Region:       o.Region,
			Currency:     o.Currency,
		}
	}

	byID := make(map[string]Marketplace, len(byCountry))
	for _, mp := range byCountry {
		byID[mp.ID] = mp
	}

	defCode := cfg.Default
	if defCode == "" {
		defCode = "UK"
	}
	def, ok := byCountry[defCode]
	if !ok {
		return nil, fmt.Errorf("marketplace: default country code %q not found in table", defCode)
	}

	return &Table{byCountry: byCountry, byID: byID, def: def}, nil
}

// Default returns the process default marketplace (UK unless overridden).
func (t *Table) Default() Marketplace { return t.def }

// ByID resolves a marketplace id (e.g. "A1F83G8C2ARO7P") to its record.
// Returns an InvalidInput CoreError on an unknown id, so adapters can reject
// bad marketplace ids before any network call (spec.md §8 boundary case).
func (t *Table) ByID(id string) (Marketplace, error) {
	mp, ok := t.byID[id]
	if !ok {
		return Marketplace{}, envelope.New(envelope.InvalidInput, fmt.Sprintf("unknown marketplace id %q", id))
	}
	return mp, nil
}

// ByCountryCode resolves a country code (e.g. "UK") to its record.
func (t *Table) ByCountryCode(code string) (Marketplace, error) {
	mp, ok := t.byCountry[code]
	if !ok {
		return Marketplace{}, envelope.New(envelope.InvalidInput, fmt.Sprintf("unknown marketplace country code %q", code))
	}
	return mp, nil
}

// ResolveAll validates a caller-supplied list of marketplace ids, defaulting
// to []Marketplace{Default()} when ids is empty.
func (t *Table) ResolveAll(ids []string) ([]Marketplace, error) {
	if len(ids) == 0 {
		return []Marketplace{t.def}, nil
	}
	out := make([]Marketplace, 0, len(ids))
	for _, id := range ids {
		mp, err := t.ByID(id)
		if err != nil {
			return nil, err
		}
		out = append(out, mp)
	}
	return out, nil
}

// CountryCodes returns all known country codes, sorted, mainly for tests and
// diagnostics.
func (t *Table) CountryCodes() []string {
	codes := make([]string, 0, len(t.byCountry))
	for c := range t.byCountry {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
