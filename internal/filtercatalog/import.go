package filtercatalog

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Pelmog/zigi-amazon-mcp/internal/envelope"
)

// seedDoc is the on-disk seed JSON shape: a flat list of filter
// definitions, optionally including chain step lists.
type seedDoc struct {
	Filters []seedFilter `json:"filters"`
}

type seedFilter struct {
	ID                    string          `json:"id"`
	Name                  string          `json:"name"`
	Description           string          `json:"description"`
	Category              string          `json:"category"`
	Kind                  string          `json:"kind"`
	Expression            string          `json:"expression"`
	Author                string          `json:"author"`
	Version               string          `json:"version"`
	Active                bool            `json:"active"`
	EstimatedReductionPct *float64        `json:"estimatedReductionPercent,omitempty"`
	Endpoints             []string        `json:"endpoints"`
	Parameters            []seedParameter `json:"parameters"`
	Examples              []seedExample   `json:"examples"`
	Tags                  []string        `json:"tags"`
	Tests                 []seedTest      `json:"tests"`
	Steps                 []string        `json:"steps,omitempty"`
}

type seedParameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Default     interface{} `json:"default,omitempty"`
	Required    bool        `json:"required"`
	Description string      `json:"description"`
}

type seedExample struct {
	Description string `json:"description"`
	InputJSON   string `json:"inputJson"`
	OutputJSON  string `json:"outputJson"`
}

type seedTest struct {
	InputJSON    string `json:"inputJson"`
	ExpectedJSON string `json:"expectedJson"`
}

// ImportSeedDir imports every *.json file under dir, in lexical filename
// order, so "chains.json" is imported before the "common.json" filters its
// steps reference; step ids need not exist yet at import time. Import is
// idempotent: importing the same document twice
// yields identical catalog state by id (spec.md §8 property 5).
func (c *Catalog) ImportSeedDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("filtercatalog: read seed dir %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	for _, f := range files {
		if err := c.ImportSeedFile(f); err != nil {
			return fmt.Errorf("filtercatalog: import %s: %w", f, err)
		}
	}
	return nil
}

// ImportSeedFile imports one seed JSON document.
func (c *Catalog) ImportSeedFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc seedDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse seed document: %w", err)
	}
	return c.importDoc(doc)
}

func (c *Catalog) importDoc(doc seedDoc) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, sf := range doc.Filters {
		if err := upsertFilter(tx, sf); err != nil {
			return err
		}
	}

	// Cycle detection over the full chain graph implied by this import,
	// before committing (spec.md §4.8: "Chain cycles are rejected at
	// import time by depth-first traversal").
	if err := detectCycles(tx, doc); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	return c.reload()
}

func upsertFilter(tx *sql.Tx, sf seedFilter) error {
	_, err := tx.Exec(
		`INSERT INTO filters (id, name, description, category, kind, expression, author, version, active, estimated_reduction_percent)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, description = excluded.description, category = excluded.category,
			kind = excluded.kind, expression = excluded.expression, author = excluded.author,
			version = excluded.version, active = excluded.active,
			estimated_reduction_percent = excluded.estimated_reduction_percent`,
		sf.ID, sf.Name, sf.Description, sf.Category, sf.Kind, sf.Expression, sf.Author, sf.Version, boolToInt(sf.Active), sf.EstimatedReductionPct,
	)
	if err != nil {
		return fmt.Errorf("upsert filter %s: %w", sf.ID, err)
	}

	if _, err := tx.Exec(`DELETE FROM filter_endpoints WHERE filter_id = ?`, sf.ID); err != nil {
		return err
	}
	for _, ep := range sf.Endpoints {
		if _, err := tx.Exec(`INSERT INTO filter_endpoints (filter_id, endpoint) VALUES (?, ?)`, sf.ID, ep); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`DELETE FROM filter_parameters WHERE filter_id = ?`, sf.ID); err != nil {
		return err
	}
	for i, p := range sf.Parameters {
		var defaultJSON sql.NullString
		if p.Default != nil {
			b, err := json.Marshal(p.Default)
			if err != nil {
				return err
			}
			defaultJSON = sql.NullString{String: string(b), Valid: true}
		}
		if _, err := tx.Exec(
			`INSERT INTO filter_parameters (filter_id, ord, name, type, default_json, required, description) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sf.ID, i, p.Name, p.Type, defaultJSON, boolToInt(p.Required), p.Description,
		); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`DELETE FROM filter_tags WHERE filter_id = ?`, sf.ID); err != nil {
		return err
	}
	for _, tag := range sf.Tags {
		if _, err := tx.Exec(`INSERT INTO filter_tags (filter_id, tag) VALUES (?, ?)`, sf.ID, tag); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`DELETE FROM filter_examples WHERE filter_id = ?`, sf.ID); err != nil {
		return err
	}
	for i, ex := range sf.Examples {
		if _, err := tx.Exec(
			`INSERT INTO filter_examples (filter_id, ord, description, input_json, output_json) VALUES (?, ?, ?, ?, ?)`,
			sf.ID, i, ex.Description, ex.InputJSON, ex.OutputJSON,
		); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`DELETE FROM filter_tests WHERE filter_id = ?`, sf.ID); err != nil {
		return err
	}
	for i, tst := range sf.Tests {
		if _, err := tx.Exec(
			`INSERT INTO filter_tests (filter_id, ord, input_json, expected_json) VALUES (?, ?, ?, ?)`,
			sf.ID, i, tst.InputJSON, tst.ExpectedJSON,
		); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`DELETE FROM filter_chains WHERE chain_id = ?`, sf.ID); err != nil {
		return err
	}
	for i, step := range sf.Steps {
		if _, err := tx.Exec(
			`INSERT INTO filter_chains (chain_id, step_order, step_filter_id) VALUES (?, ?, ?)`,
			sf.ID, i, step,
		); err != nil {
			return err
		}
	}

	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// detectCycles walks every chain filter's step list depth-first, rejecting
// the whole import if any cycle is reachable.
func detectCycles(tx *sql.Tx, doc seedDoc) error {
	chainSteps := make(map[string][]string)
	for _, sf := range doc.Filters {
		if sf.Kind == string(KindChain) {
			if len(sf.Steps) == 0 {
				return envelope.New(envelope.InvalidInput, fmt.Sprintf("chain filter %s has no steps", sf.ID))
			}
			chainSteps[sf.ID] = sf.Steps
		}
	}

	// Steps for chains not touched by this import still need to resolve,
	// so fall back to the database for any id not present in the batch.
	resolveSteps := func(id string) ([]string, error) {
		if steps, ok := chainSteps[id]; ok {
			return steps, nil
		}
		rows, err := tx.Query(`SELECT step_filter_id FROM filter_chains WHERE chain_id = ? ORDER BY step_order`, id)
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

	var visit func(id string, stack map[string]bool) error
	visit = func(id string, stack map[string]bool) error {
		if stack[id] {
			return errCycle
		}
		steps, err := resolveSteps(id)
		if err != nil || len(steps) == 0 {
			return err
		}
		stack[id] = true
		for _, step := range steps {
			if err := visit(step, stack); err != nil {
				return err
			}
		}
		delete(stack, id)
		return nil
	}

	for id := range chainSteps {
		if err := visit(id, make(map[string]bool)); err != nil {
			return err
		}
	}
	return nil
}
