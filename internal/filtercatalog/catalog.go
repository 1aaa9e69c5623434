package filtercatalog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/Pelmog/zigi-amazon-mcp/internal/envelope"
)

const currentSchemaVersion = 1

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS filters (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL,
		category TEXT NOT NULL,
		kind TEXT NOT NULL,
		expression TEXT NOT NULL,
		author TEXT NOT NULL,
		version TEXT NOT NULL,
		active INTEGER NOT NULL,
		estimated_reduction_percent REAL
	);
	CREATE TABLE IF NOT EXISTS filter_endpoints (
		filter_id TEXT NOT NULL REFERENCES filters(id),
		endpoint TEXT NOT NULL,
		PRIMARY KEY (filter_id, endpoint)
	);
	CREATE TABLE IF NOT EXISTS filter_parameters (
		filter_id TEXT NOT NULL REFERENCES filters(id),
		ord INTEGER NOT NULL,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		default_json TEXT,
		required INTEGER NOT NULL,
		description TEXT NOT NULL,
		PRIMARY KEY (filter_id, name)
	);
	CREATE TABLE IF NOT EXISTS filter_examples (
		filter_id TEXT NOT NULL REFERENCES filters(id),
		ord INTEGER NOT NULL,
		description TEXT NOT NULL,
		input_json TEXT NOT NULL,
		output_json TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS filter_tags (
		filter_id TEXT NOT NULL REFERENCES filters(id),
		tag TEXT NOT NULL,
		PRIMARY KEY (filter_id, tag)
	);
	CREATE TABLE IF NOT EXISTS filter_tests (
		filter_id TEXT NOT NULL REFERENCES filters(id),
		ord INTEGER NOT NULL,
		input_json TEXT NOT NULL,
		expected_json TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS filter_chains (
		chain_id TEXT NOT NULL REFERENCES filters(id),
		step_order INTEGER NOT NULL,
		step_filter_id TEXT NOT NULL,
		PRIMARY KEY (chain_id, step_order)
	);`,
}

// Catalog is the durable filter definition store. Reads are served from an
// in-memory snapshot refreshed on open and after each import, matching the
// "read-mostly, cached after open" discipline of spec.md §5.
type Catalog struct {
	db *sql.DB

	mu   sync.RWMutex
	byID map[string]*FilterDefinition
}

// Open opens (creating if absent) the sqlite-backed catalog at dsn, applies
// pending migrations in order, and loads the in-memory snapshot.
func Open(dsn string) (*Catalog, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("filtercatalog: open %s: %w", dsn, err)
	}
	c := &Catalog{db: db, byID: make(map[string]*FilterDefinition)}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	if err := c.reload(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) Close() error { return c.db.Close() }

// migrate applies every migration in order. Each statement is idempotent
// (CREATE TABLE IF NOT EXISTS), so re-running on an already-migrated
// database is a no-op; this stands in for a version-gated runner until a
// second migration is ever added.
func (c *Catalog) migrate() error {
	for i, stmt := range migrations {
		if _, err := c.db.Exec(stmt); err != nil {
			return fmt.Errorf("filtercatalog: migration %d: %w", i+1, err)
		}
	}

	if _, err := c.db.Exec(
		`INSERT INTO metadata (key, value) VALUES ('schema_version', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		fmt.Sprintf("%d", currentSchemaVersion),
	); err != nil {
		return fmt.Errorf("filtercatalog: record schema version: %w", err)
	}
	return nil
}

// reload rebuilds the in-memory snapshot from the database.
func (c *Catalog) reload() error {
	rows, err := c.db.Query(`SELECT id, name, description, category, kind, expression, author, version, active, estimated_reduction_percent FROM filters`)
	if err != nil {
		return fmt.Errorf("filtercatalog: load filters: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*FilterDefinition)
	for rows.Next() {
		var fd FilterDefinition
		var kind string
		var active int
		var pct sql.NullFloat64
		if err := rows.Scan(&fd.ID, &fd.Name, &fd.Description, &fd.Category, &kind, &fd.Expression, &fd.Author, &fd.Version, &active, &pct); err != nil {
			return fmt.Errorf("filtercatalog: scan filter row: %w", err)
		}
		fd.Kind = Kind(kind)
		fd.Active = active != 0
		if pct.Valid {
			v := pct.Float64
			fd.EstimatedReductionPct = &v
		}
		byID[fd.ID] = &fd
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for id, fd := range byID {
		endpoints, err := c.loadEndpoints(id)
		if err != nil {
			return err
		}
		fd.Endpoints = endpoints

		params, err := c.loadParameters(id)
		if err != nil {
			return err
		}
		fd.Parameters = params

		tags, err := c.loadTags(id)
		if err != nil {
			return err
		}
		fd.Tags = tags

		examples, err := c.loadExamples(id)
		if err != nil {
			return err
		}
		fd.Examples = examples

		tests, err := c.loadTests(id)
		if err != nil {
			return err
		}
		fd.Tests = tests

		if fd.Kind == KindChain {
			steps, err := c.loadChainSteps(id)
			if err != nil {
				return err
			}
			fd.ChainSteps = steps
		}
	}

	c.mu.Lock()
	c.byID = byID
	c.mu.Unlock()
	return nil
}

func (c *Catalog) loadEndpoints(id string) ([]string, error) {
	rows, err := c.db.Query(`SELECT endpoint FROM filter_endpoints WHERE filter_id = ? ORDER BY endpoint`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (c *Catalog) loadParameters(id string) ([]ParameterDef, error) {
	rows, err := c.db.Query(`SELECT name, type, default_json, required, description FROM filter_parameters WHERE filter_id = ? ORDER BY ord`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ParameterDef
	for rows.Next() {
		var p ParameterDef
		var typ string
		var required int
		var defaultJSON sql.NullString
		if err := rows.Scan(&p.Name, &typ, &defaultJSON, &required, &p.Description); err != nil {
			return nil, err
		}
		p.Type = ParamType(typ)
		p.Required = required != 0
		if defaultJSON.Valid {
			var v interface{}
			if err := json.Unmarshal([]byte(defaultJSON.String), &v); err == nil {
				p.Default = v
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (c *Catalog) loadTags(id string) ([]string, error) {
	rows, err := c.db.Query(`SELECT tag FROM filter_tags WHERE filter_id = ? ORDER BY tag`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (c *Catalog) loadExamples(id string) ([]Example, error) {
	rows, err := c.db.Query(`SELECT description, input_json, output_json FROM filter_examples WHERE filter_id = ? ORDER BY ord`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Example
	for rows.Next() {
		var e Example
		if err := rows.Scan(&e.Description, &e.InputJSON, &e.OutputJSON); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (c *Catalog) loadTests(id string) ([]Test, error) {
	rows, err := c.db.Query(`SELECT input_json, expected_json FROM filter_tests WHERE filter_id = ? ORDER BY ord`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Test
	for rows.Next() {
		var t Test
		if err := rows.Scan(&t.InputJSON, &t.ExpectedJSON); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (c *Catalog) loadChainSteps(id string) ([]string, error) {
	rows, err := c.db.Query(`SELECT step_filter_id FROM filter_chains WHERE chain_id = ? ORDER BY step_order`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetByID looks up a filter definition by id from the in-memory snapshot.
func (c *Catalog) GetByID(id string) (*FilterDefinition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fd, ok := c.byID[id]
	return fd, ok
}

// Search returns filters matching every supplied non-empty criterion
// (spec.md §4.8): endpoint membership, exact category, exact kind, and a
// case-insensitive substring over name/description/tags. Empty criteria are
// ignored; results are sorted by id.
func (c *Catalog) Search(endpoint, category string, kind Kind, searchTerm string) []*FilterDefinition {
	c.mu.RLock()
	defer c.mu.RUnlock()

	term := strings.ToLower(searchTerm)
	var out []*FilterDefinition
	for _, fd := range c.byID {
		if endpoint != "" && !containsStr(fd.Endpoints, endpoint) {
			continue
		}
		if category != "" && fd.Category != category {
			continue
		}
		if kind != "" && fd.Kind != kind {
			continue
		}
		if term != "" && !matchesSearchTerm(fd, term) {
			continue
		}
		out = append(out, fd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func containsStr(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func matchesSearchTerm(fd *FilterDefinition, lowerTerm string) bool {
	if strings.Contains(strings.ToLower(fd.Name), lowerTerm) {
		return true
	}
	if strings.Contains(strings.ToLower(fd.Description), lowerTerm) {
		return true
	}
	for _, tag := range fd.Tags {
		if strings.Contains(strings.ToLower(tag), lowerTerm) {
			return true
		}
	}
	return false
}

// ListEndpointsFor, ListParameters, ListChainSteps satisfy spec.md §4.8's
// read surface directly from the snapshot.
func (c *Catalog) ListEndpointsFor(id string) []string {
	fd, ok := c.GetByID(id)
	if !ok {
		return nil
	}
	return fd.Endpoints
}

func (c *Catalog) ListParameters(id string) []ParameterDef {
	fd, ok := c.GetByID(id)
	if !ok {
		return nil
	}
	return fd.Parameters
}

func (c *Catalog) ListChainSteps(id string) []string {
	fd, ok := c.GetByID(id)
	if !ok {
		return nil
	}
	return fd.ChainSteps
}

// DefaultFor returns the first active, non-chain filter tagged for
// endpoint with the catalog's "default" tag, used by the filter engine's
// default-reduction mode (spec.md §4.7 mode 4).
func (c *Catalog) DefaultFor(endpoint string) (*FilterDefinition, bool) {
	candidates := c.Search(endpoint, "", "", "")
	for _, fd := range candidates {
		if !fd.Active || fd.Kind == KindChain {
			continue
		}
		if containsStr(fd.Tags, "default") {
			return fd, true
		}
	}
	return nil, false
}

// errCycle is returned internally by cycle detection during import.
var errCycle = envelope.New(envelope.InvalidInput, "filter chain contains a cycle")
