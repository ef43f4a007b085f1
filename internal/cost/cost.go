// Package cost merges static monthly cost estimates into discovered nodes.
// The tables are pure data keyed by resource shape; a missing entry yields
// a nil estimate, never an error.
package cost

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"resource-graph/pkg/api"
)

//go:embed tables.yaml
var tablesYAML []byte

// Table is a provider → resource type → shape → monthly USD lookup.
type Table struct {
	prices map[string]map[string]map[string]decimal.Decimal
}

// Load parses a table from YAML bytes.
func Load(data []byte) (*Table, error) {
	var raw map[string]map[string]map[string]float64
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode cost tables: %w", err)
	}

	prices := make(map[string]map[string]map[string]decimal.Decimal, len(raw))
	for provider, types := range raw {
		prices[provider] = make(map[string]map[string]decimal.Decimal, len(types))
		for rt, shapes := range types {
			prices[provider][rt] = make(map[string]decimal.Decimal, len(shapes))
			for shape, usd := range shapes {
				prices[provider][rt][shape] = decimal.NewFromFloat(usd)
			}
		}
	}
	return &Table{prices: prices}, nil
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the embedded table.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := Load(tablesYAML)
		if err != nil {
			// The embedded table is validated by tests; an empty table
			// degrades every lookup to "no estimate".
			t = &Table{prices: map[string]map[string]map[string]decimal.Decimal{}}
		}
		defaultTable = t
	})
	return defaultTable
}

// MonthlyEstimate returns the monthly USD estimate for a resource shape, or
// nil when the table has no entry.
func (t *Table) MonthlyEstimate(provider string, resourceType api.ResourceType, shape string) *decimal.Decimal {
	types, ok := t.prices[provider]
	if !ok {
		return nil
	}
	shapes, ok := types[string(resourceType)]
	if !ok {
		return nil
	}
	if shape != "" {
		if price, ok := shapes[shape]; ok {
			return &price
		}
	}
	if price, ok := shapes["default"]; ok {
		return &price
	}
	return nil
}
