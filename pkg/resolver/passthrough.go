package resolver

import (
	"context"
	"strings"

	"github.com/wisbric/companyid/pkg/mapping"
	"github.com/wisbric/companyid/pkg/normalize"
	"github.com/wisbric/companyid/pkg/tempid"
)

// backflowConfidences are the cache confidences for mappings observed via
// the existing-column passthrough, per lookup type. They track the domain
// learning defaults so backflow and learning agree on trust.
var backflowConfidences = map[mapping.LookupType]float64{
	mapping.LookupPlanCode:      0.95,
	mapping.LookupAccountNumber: 0.95,
	mapping.LookupCustomerName:  0.85,
	mapping.LookupAccountName:   0.90,
}

// resolveViaExistingColumn copies a usable company id from the row's own id
// column into the output for rows still unresolved. Returns the indices of
// the rows it resolved, which feed the backflow write.
func (r *Resolver) resolveViaExistingColumn(table Table, strategy Strategy, resolved []bool, stats *Statistics) []int {
	if strategy.CompanyIDColumn == "" {
		return nil
	}

	var passthroughRows []int
	for idx, row := range table {
		if resolved[idx] {
			continue
		}
		existing := row.Get(strategy.CompanyIDColumn)
		if !mapping.ValidCompanyID(existing) {
			continue
		}
		row[strategy.OutputColumn] = strings.TrimSpace(existing)
		resolved[idx] = true
		stats.ExistingColumnHits++
		passthroughRows = append(passthroughRows, idx)
	}

	if len(passthroughRows) > 0 {
		r.logger.Info("existing column passthrough complete", "hits", len(passthroughRows))
	}
	return passthroughRows
}

// backflowField describes one weak key the passthrough step feeds back into
// the cache.
type backflowField struct {
	column     func(Strategy) string
	lookupType mapping.LookupType
	normalized bool
}

var backflowFields = []backflowField{
	{func(s Strategy) string { return s.PlanCodeColumn }, mapping.LookupPlanCode, false},
	{func(s Strategy) string { return s.AccountNumberColumn }, mapping.LookupAccountNumber, false},
	{func(s Strategy) string { return s.CustomerNameColumn }, mapping.LookupCustomerName, true},
	{func(s Strategy) string { return s.AccountNameColumn }, mapping.LookupAccountName, false},
}

// backflowMappings writes the (key → id) pairs observed on passthrough rows
// into enrichment_index so the next batch hits the cache instead. Rows whose
// id is a temp id are excluded. Failures are logged and swallowed: backflow
// is an optimization, not a correctness requirement.
func (r *Resolver) backflowMappings(ctx context.Context, table Table, strategy Strategy, rowIndices []int) BackflowStats {
	var records []mapping.IndexRecord
	seen := map[mapping.IndexKey]struct{}{}

	for _, idx := range rowIndices {
		row := table[idx]
		companyID := row.Get(strategy.OutputColumn)
		if tempid.IsTemp(companyID) {
			continue
		}

		for _, field := range backflowFields {
			column := field.column(strategy)
			if column == "" {
				continue
			}
			value := strings.TrimSpace(row.Get(column))
			if value == "" {
				continue
			}
			key := value
			if field.normalized {
				key = normalize.Name(value)
				if key == "" {
					continue
				}
			}

			ik := mapping.IndexKey{Type: field.lookupType, Key: key}
			if _, ok := seen[ik]; ok {
				continue
			}
			seen[ik] = struct{}{}

			records = append(records, mapping.IndexRecord{
				LookupKey:  key,
				LookupType: field.lookupType,
				CompanyID:  companyID,
				Confidence: backflowConfidences[field.lookupType],
				Source:     mapping.SourceBackflow,
			})
		}
	}

	if len(records) == 0 {
		return BackflowStats{}
	}

	result, err := r.mappings.UpsertIndexBatch(ctx, records)
	if err != nil {
		r.logger.Warn("backflow insert failed", "records", len(records), "error", err)
		return BackflowStats{}
	}

	r.logger.Info("backflow complete",
		"inserted", result.Affected,
		"skipped", result.Skipped,
	)
	return BackflowStats{Inserted: result.Affected, Skipped: result.Skipped}
}
