package resolver

import (
	"context"
	"strings"

	"github.com/wisbric/companyid/pkg/mapping"
	"github.com/wisbric/companyid/pkg/normalize"
)

// cachePriorityOrder fixes the lookup-type priority within the cache layer:
// DB-P1 through DB-P5. The first key whose cached id passes the sentinel
// check wins.
var cachePriorityOrder = []mapping.LookupType{
	mapping.LookupPlanCode,
	mapping.LookupAccountName,
	mapping.LookupAccountNumber,
	mapping.LookupCustomerName,
	mapping.LookupPlanCustomer,
}

var cachePathLabels = map[mapping.LookupType]string{
	mapping.LookupPlanCode:      "DB-P1",
	mapping.LookupAccountName:   "DB-P2",
	mapping.LookupAccountNumber: "DB-P3",
	mapping.LookupCustomerName:  "DB-P4",
	mapping.LookupPlanCustomer:  "DB-P5",
}

// rowCandidateKeys returns the candidate cache key per lookup type for one
// row. Missing inputs yield empty keys, which record as MISS in the
// decision path.
func rowCandidateKeys(row Row, strategy Strategy) map[mapping.LookupType]string {
	planCode := row.Get(strategy.PlanCodeColumn)
	normalizedCustomer := ""
	if raw := row.Get(strategy.CustomerNameColumn); raw != "" {
		normalizedCustomer = normalize.Name(raw)
	}

	keys := map[mapping.LookupType]string{
		mapping.LookupPlanCode:      planCode,
		mapping.LookupAccountName:   row.Get(strategy.AccountNameColumn),
		mapping.LookupAccountNumber: row.Get(strategy.AccountNumberColumn),
		mapping.LookupCustomerName:  normalizedCustomer,
	}
	if planCode != "" && normalizedCustomer != "" {
		keys[mapping.LookupPlanCustomer] = mapping.PlanCustomerKey(planCode, normalizedCustomer)
	} else {
		keys[mapping.LookupPlanCustomer] = ""
	}
	return keys
}

// resolveViaDBCache is the cache layer. It collects candidate keys for all
// unresolved rows, resolves them against enrichment_index in one round-trip
// (name keys come from the pre-warmed map instead), then applies the fixed
// priority order per row and records each row's decision path. A failed
// batch lookup is fatal for the batch; failed hit-count updates are not.
func (r *Resolver) resolveViaDBCache(ctx context.Context, table Table, strategy Strategy, resolved []bool, warmed warmedNames, stats *Statistics) error {
	keysByType := map[mapping.LookupType][]string{}
	seen := map[mapping.IndexKey]struct{}{}
	for idx, row := range table {
		if resolved[idx] {
			continue
		}
		for typ, key := range rowCandidateKeys(row, strategy) {
			if key == "" {
				continue
			}
			// Name keys were fetched during warming; don't query them twice.
			// A nil map means warming failed and they must be queried here.
			if typ == mapping.LookupCustomerName && warmed != nil {
				continue
			}
			ik := mapping.IndexKey{Type: typ, Key: key}
			if _, ok := seen[ik]; ok {
				continue
			}
			seen[ik] = struct{}{}
			keysByType[typ] = append(keysByType[typ], key)
		}
	}

	results := map[mapping.IndexKey]mapping.IndexRecord{}
	if len(keysByType) > 0 {
		var err error
		results, err = r.mappings.LookupIndexBatch(ctx, keysByType)
		if err != nil {
			return &RepositoryError{Op: "enrichment index batch lookup", Err: err}
		}
	}
	for name, record := range warmed {
		results[mapping.IndexKey{Type: mapping.LookupCustomerName, Key: name}] = record
	}

	var usedKeys []mapping.IndexKey
	for idx, row := range table {
		if resolved[idx] {
			continue
		}

		candidates := rowCandidateKeys(row, strategy)
		var segments []string
		for _, typ := range cachePriorityOrder {
			label := cachePathLabels[typ]
			key := candidates[typ]
			if key == "" {
				segments = append(segments, label+":MISS")
				continue
			}

			record, ok := results[mapping.IndexKey{Type: typ, Key: key}]
			if !ok {
				segments = append(segments, label+":MISS")
				continue
			}
			if !mapping.ValidCompanyID(record.CompanyID) {
				segments = append(segments, label+":INVALID")
				continue
			}

			row[strategy.OutputColumn] = strings.TrimSpace(record.CompanyID)
			resolved[idx] = true
			stats.DBCacheHits[string(typ)]++
			usedKeys = append(usedKeys, mapping.IndexKey{Type: typ, Key: key})
			segments = append(segments, label+":HIT")
			if r.observer != nil {
				r.observer.RecordCacheHit(string(typ))
			}
			break
		}

		path := strings.Join(segments, "→")
		stats.DecisionPaths[idx] = path
		stats.DecisionPathCounts[path]++
		r.logger.Debug("cache layer decision path", "row", idx, "path", path)
	}

	// Best-effort hit accounting; a failure here must not fail the batch.
	for _, used := range usedKeys {
		if _, err := r.mappings.UpdateHitCount(ctx, used.Key, used.Type); err != nil {
			r.logger.Warn("hit count update failed", "error", err)
		}
	}
	return nil
}
