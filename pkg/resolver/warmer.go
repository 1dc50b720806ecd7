package resolver

import (
	"context"

	"github.com/wisbric/companyid/pkg/mapping"
	"github.com/wisbric/companyid/pkg/normalize"
)

// warmedNames is the in-memory hit map built by cache warming: normalized
// customer name → cached index record.
type warmedNames map[string]mapping.IndexRecord

// warmCache extracts the distinct customer names from the table, normalizes
// and deduplicates them, and fetches their enrichment_index rows in one
// batched lookup. A failure here is non-fatal: it returns a nil map, and the
// cache layer then includes the name keys in its own batch query.
func (r *Resolver) warmCache(ctx context.Context, table Table, customerNameColumn string) warmedNames {
	seen := make(map[string]struct{})
	var names []string
	for _, row := range table {
		raw := row.Get(customerNameColumn)
		if raw == "" {
			continue
		}
		normalized := normalize.Name(raw)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		names = append(names, normalized)
	}

	if len(names) == 0 {
		return warmedNames{}
	}

	results, err := r.mappings.LookupIndexBatch(ctx, map[mapping.LookupType][]string{
		mapping.LookupCustomerName: names,
	})
	if err != nil {
		// nil tells the cache layer to include name keys in its own query.
		r.logger.Warn("cache warming failed, falling back to on-demand name lookups",
			"names", len(names),
			"error", err,
		)
		return nil
	}

	warmed := make(warmedNames, len(results))
	for key, record := range results {
		if key.Type == mapping.LookupCustomerName {
			warmed[key.Key] = record
		}
	}

	r.logger.Info("cache warming complete",
		"unique_names", len(names),
		"hits", len(warmed),
	)
	return warmed
}
