package resolver

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Override levels in resolution order. Each level maps one input column
// through an in-memory alias table; later levels only see rows the earlier
// ones left unresolved.
const (
	LevelPlan        = "plan"
	LevelAccount     = "account"
	LevelHardcode    = "hardcode"
	LevelName        = "name"
	LevelAccountName = "account_name"
)

// overrideLevelOrder fixes the priority of the five override levels.
var overrideLevelOrder = []string{
	LevelPlan, LevelAccount, LevelHardcode, LevelName, LevelAccountName,
}

// Overrides is the legacy YAML override table: level → alias → company id.
type Overrides map[string]map[string]string

// LoadOverrides reads the override table from a YAML file shaped as five
// top-level maps (plan, account, hardcode, name, account_name). Missing
// levels load as empty maps.
func LoadOverrides(path string) (Overrides, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading overrides file: %w", err)
	}

	overrides := Overrides{}
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return nil, fmt.Errorf("parsing overrides file: %w", err)
	}

	for _, level := range overrideLevelOrder {
		if overrides[level] == nil {
			overrides[level] = map[string]string{}
		}
	}
	return overrides, nil
}

// EmptyOverrides returns an override table with all levels present and empty.
func EmptyOverrides() Overrides {
	overrides := Overrides{}
	for _, level := range overrideLevelOrder {
		overrides[level] = map[string]string{}
	}
	return overrides
}

// levelColumn maps an override level to the strategy column it matches on.
// The hardcode level re-reads the plan code column.
func levelColumn(level string, strategy Strategy) string {
	switch level {
	case LevelPlan, LevelHardcode:
		return strategy.PlanCodeColumn
	case LevelAccount:
		return strategy.AccountNumberColumn
	case LevelName:
		return strategy.CustomerNameColumn
	case LevelAccountName:
		return strategy.AccountNameColumn
	default:
		return ""
	}
}

// resolveViaOverrides applies the five override levels to all still
// unresolved rows, writing hits into the output column. Returns hits per
// level.
func (r *Resolver) resolveViaOverrides(table Table, strategy Strategy, resolved []bool) map[string]int {
	hits := make(map[string]int, len(overrideLevelOrder))

	for _, level := range overrideLevelOrder {
		hits[level] = 0
		column := levelColumn(level, strategy)
		if column == "" {
			continue
		}
		mappings := r.overrides[level]
		if len(mappings) == 0 {
			continue
		}

		for idx, row := range table {
			if resolved[idx] {
				continue
			}
			value := row.Get(column)
			if value == "" {
				continue
			}
			if companyID, ok := mappings[value]; ok {
				row[strategy.OutputColumn] = companyID
				resolved[idx] = true
				hits[level]++
			}
		}
	}
	return hits
}
