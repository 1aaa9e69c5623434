// Package filtercatalog implements the filter catalog store (C2): a
// durable, schema-versioned store of FilterDefinition records and their
// relationships (spec.md §3 FilterDefinition/FilterCatalog, §4.8).
//
// DESIGN: grounded on the teacher's internal/store/store.go for the
// open/seed/idempotent-upsert shape, backed here by modernc.org/sqlite (a
// pure-Go sqlite driver present but unused in the teacher's go.mod) instead
// of the teacher's in-memory map, since spec.md §4.8 requires durability
// and schema-versioned migrations that a plain map cannot express.
package filtercatalog

// Kind is the FilterDefinition.kind enum (spec.md §3).
type Kind string

const (
	KindRecord Kind = "record"
	KindField  Kind = "field"
	KindChain  Kind = "chain"
)

// ParamType is a declared filter-parameter's value type.
type ParamType string

const (
	ParamString  ParamType = "string"
	ParamNumber  ParamType = "number"
	ParamBoolean ParamType = "boolean"
	ParamDate    ParamType = "date"
)

// ParameterDef is one entry of a FilterDefinition's ordered parameter map.
type ParameterDef struct {
	Name        string
	Type        ParamType
	Default     interface{}
	Required    bool
	Description string
}

// Example is one FilterDefinition.examples entry.
type Example struct {
	Description string
	InputJSON   string
	OutputJSON  string
}

// Test is one FilterDefinition.tests entry (spec.md §3).
type Test struct {
	InputJSON    string
	ExpectedJSON string
}

// FilterDefinition is the spec.md §3 FilterDefinition record.
type FilterDefinition struct {
	ID                       string
	Name                     string
	Description              string
	Category                 string
	Kind                     Kind
	Expression               string
	Author                   string
	Version                  string
	Active                   bool
	EstimatedReductionPct    *float64
	Endpoints                []string
	Parameters               []ParameterDef
	Examples                 []Example
	Tags                     []string
	Tests                    []Test
	ChainSteps               []string // ordered stepFilterId list, only for Kind == KindChain
}
