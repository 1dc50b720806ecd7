package resolver

import (
	"context"
	"strings"

	"github.com/wisbric/companyid/pkg/mapping"
	"github.com/wisbric/companyid/pkg/normalize"
)

// eqcCacheConfidence is the confidence recorded for cache rows written from
// successful sync lookups. Provider answers outrank observed-data mappings.
const eqcCacheConfidence = 0.95

// resolveViaEqcSync is the budgeted external layer. Unresolved rows are
// grouped by normalized customer name so a group costs one budget unit no
// matter how many rows share the name. Successful lookups resolve the whole
// group and are staged for a cache write; failures fall through to the next
// group. The adapter's budget counter is authoritative throughout.
func (r *Resolver) resolveViaEqcSync(ctx context.Context, table Table, strategy Strategy, resolved []bool, stats *Statistics) {
	r.adapter.SetBudget(r.eqcConfig.SyncBudget)

	// Group rows by normalized name, remembering one raw exemplar per group
	// to send to the provider.
	groupRows := map[string][]int{}
	exemplar := map[string]string{}
	var order []string
	for idx, row := range table {
		if resolved[idx] {
			continue
		}
		raw := strings.TrimSpace(row.Get(strategy.CustomerNameColumn))
		if raw == "" {
			continue
		}
		name := normalize.Name(raw)
		if name == "" {
			name = raw
		}
		if _, ok := groupRows[name]; !ok {
			order = append(order, name)
			exemplar[name] = raw
		}
		groupRows[name] = append(groupRows[name], idx)
	}

	var staged []mapping.IndexRecord
	stagedKeys := map[mapping.IndexKey]struct{}{}
	for _, name := range order {
		if !r.adapter.Available() {
			break
		}

		match, err := r.adapter.Lookup(ctx, exemplar[name])
		if r.observer != nil {
			r.observer.RecordAPICall()
		}
		if err != nil {
			// Timeouts, transport failures, and no-result all drop the group
			// to the temp-id path; the batch keeps going.
			r.logger.Debug("eqc sync lookup failed", "error", err)
			continue
		}

		for _, idx := range groupRows[name] {
			table[idx][strategy.OutputColumn] = match.CompanyID
			resolved[idx] = true
			stats.EqcSyncHits++
		}

		ik := mapping.IndexKey{Type: mapping.LookupCustomerName, Key: name}
		if _, ok := stagedKeys[ik]; !ok {
			stagedKeys[ik] = struct{}{}
			staged = append(staged, mapping.IndexRecord{
				LookupKey:  name,
				LookupType: mapping.LookupCustomerName,
				CompanyID:  match.CompanyID,
				Confidence: eqcCacheConfidence,
				Source:     mapping.SourceEQC,
			})
		}
	}

	stats.BudgetRemaining = r.adapter.Remaining()
	stats.BudgetConsumed = r.eqcConfig.SyncBudget - stats.BudgetRemaining

	if len(staged) > 0 && r.mappings != nil {
		if _, err := r.mappings.UpsertIndexBatch(ctx, staged); err != nil {
			r.logger.Warn("eqc result cache write failed", "records", len(staged), "error", err)
		}
	}

	r.logger.Info("eqc sync layer complete",
		"hits", stats.EqcSyncHits,
		"budget_consumed", stats.BudgetConsumed,
		"budget_remaining", stats.BudgetRemaining,
	)
}
