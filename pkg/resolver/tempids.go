package resolver

import (
	"context"
	"strings"

	"github.com/wisbric/companyid/pkg/mapping"
	"github.com/wisbric/companyid/pkg/normalize"
	"github.com/wisbric/companyid/pkg/queue"
	"github.com/wisbric/companyid/pkg/tempid"
)

// emptyPlaceholders are spreadsheet values that mean "no customer name".
// They must yield no id at all rather than a shared temp id: a temp id means
// "unresolved but known name", an empty output means "no name available".
var emptyPlaceholders = map[string]struct{}{
	"0":  {},
	"空白": {},
}

// tempIDFor returns the deterministic temp id for a customer name, or ""
// when the name is absent, whitespace, or a known placeholder.
func (r *Resolver) tempIDFor(rawName string) string {
	trimmed := strings.TrimSpace(rawName)
	if trimmed == "" {
		return ""
	}
	if _, placeholder := emptyPlaceholders[trimmed]; placeholder {
		return ""
	}
	return tempid.Generate(rawName, r.salt)
}

// generateTempIDs assigns temp ids to the rows no layer resolved. Returns
// the indices of rows that actually received one; rows with placeholder
// names stay unresolved.
func (r *Resolver) generateTempIDs(table Table, strategy Strategy, resolved []bool, stats *Statistics) []int {
	var tempIDRows []int
	for idx, row := range table {
		if resolved[idx] {
			continue
		}
		id := r.tempIDFor(row.Get(strategy.CustomerNameColumn))
		if id == "" {
			continue
		}
		row[strategy.OutputColumn] = id
		resolved[idx] = true
		stats.TempIDsGenerated++
		tempIDRows = append(tempIDRows, idx)
		if r.observer != nil {
			r.observer.RecordTempID(row.Get(strategy.CustomerNameColumn), id)
		}
	}

	if stats.TempIDsGenerated > 0 {
		r.logger.Info("temp ids generated", "count", stats.TempIDsGenerated)
	}
	return tempIDRows
}

// enqueueForEnrichment queues the names behind freshly assigned temp ids for
// background resolution, deduplicated by normalized name within the batch.
// The partial unique index handles cross-batch dedup. Enqueue failures are
// logged and swallowed; workers are woken over Redis on success.
func (r *Resolver) enqueueForEnrichment(ctx context.Context, table Table, strategy Strategy, tempIDRows []int) int64 {
	seen := map[string]struct{}{}
	var requests []mapping.EnqueueRequest
	for _, idx := range tempIDRows {
		row := table[idx]
		rawName := strings.TrimSpace(row.Get(strategy.CustomerNameColumn))
		if rawName == "" {
			continue
		}
		normalized := normalize.Name(rawName)
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		requests = append(requests, mapping.EnqueueRequest{
			RawName:        rawName,
			NormalizedName: normalized,
			TempID:         row.Get(strategy.OutputColumn),
		})
	}

	if len(requests) == 0 {
		return 0
	}

	result, err := r.mappings.EnqueueRequests(ctx, requests)
	if err != nil {
		r.logger.Warn("async enqueue failed", "requests", len(requests), "error", err)
		return 0
	}

	if r.observer != nil {
		for i := int64(0); i < result.Queued; i++ {
			r.observer.RecordAsyncQueued()
		}
	}
	if result.Queued > 0 {
		queue.PublishWake(ctx, r.rdb)
	}

	r.logger.Info("async enqueue complete",
		"queued", result.Queued,
		"skipped", result.Skipped,
	)
	return result.Queued
}
