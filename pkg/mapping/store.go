package mapping

import (
	"context"
	"fmt"

	"github.com/wisbric/companyid/internal/db"
	"github.com/wisbric/companyid/pkg/normalize"
)

// Store provides database operations for enrichment_index and the enqueue
// side of enrichment_requests. The caller owns the transaction: pass a
// pgx.Tx to run inside one, or the pool for autocommit per statement.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a mapping Store backed by the given connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

// normalizeKey applies the shared name normalizer to the key types that are
// stored in normalized form. Other types pass through raw.
func normalizeKey(key string, typ LookupType) string {
	switch typ {
	case LookupCustomerName:
		return normalize.Name(key)
	case LookupPlanCustomer:
		// Format is {plan_code}|{customer_name}; only the customer half is
		// normalized.
		if plan, customer, found := cutPipe(key); found {
			return plan + "|" + normalize.Name(customer)
		}
		return normalize.Name(key)
	default:
		return key
	}
}

func cutPipe(s string) (before, after string, found bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '|' {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}

// LookupIndexBatch resolves many (type, key) pairs in a single round-trip.
// Keys are paired with their types positionally through unnest WITH
// ORDINALITY; per-row probes do not scale to the batch sizes this pipeline
// sees. Missing keys are absent from the result map, which is keyed by the
// normalized lookup key as stored.
func (s *Store) LookupIndexBatch(ctx context.Context, keysByType map[LookupType][]string) (map[IndexKey]IndexRecord, error) {
	var lookupKeys, lookupTypes []string
	for typ, keys := range keysByType {
		for _, key := range keys {
			lookupKeys = append(lookupKeys, normalizeKey(key, typ))
			lookupTypes = append(lookupTypes, string(typ))
		}
	}
	if len(lookupKeys) == 0 {
		return map[IndexKey]IndexRecord{}, nil
	}

	rows, err := s.dbtx.Query(ctx,
		`WITH input_pairs AS (
		     SELECT k.key AS lookup_key, t.type AS lookup_type
		     FROM unnest($1::text[]) WITH ORDINALITY AS k(key, idx)
		     JOIN unnest($2::text[]) WITH ORDINALITY AS t(type, idx)
		       ON k.idx = t.idx
		 )
		 SELECT ei.lookup_key, ei.lookup_type, ei.company_id, ei.confidence,
		        ei.source, ei.source_domain, ei.source_table, ei.hit_count,
		        ei.last_hit_at, ei.created_at, ei.updated_at
		 FROM enrichment_index AS ei
		 JOIN input_pairs AS ip
		   ON ei.lookup_key = ip.lookup_key
		  AND ei.lookup_type = ip.lookup_type`,
		lookupKeys, lookupTypes,
	)
	if err != nil {
		return nil, fmt.Errorf("looking up enrichment index batch: %w", err)
	}
	defer rows.Close()

	results := make(map[IndexKey]IndexRecord)
	for rows.Next() {
		var r IndexRecord
		if err := rows.Scan(
			&r.LookupKey, &r.LookupType, &r.CompanyID, &r.Confidence,
			&r.Source, &r.SourceDomain, &r.SourceTable, &r.HitCount,
			&r.LastHitAt, &r.CreatedAt, &r.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning enrichment index row: %w", err)
		}
		results[IndexKey{Type: r.LookupType, Key: r.LookupKey}] = r
	}
	return results, rows.Err()
}

// UpsertIndexBatch inserts records into enrichment_index, resolving
// conflicts on (lookup_key, lookup_type) so the cache never loses trust:
//
//   - confidence becomes GREATEST(existing, new)
//   - company_id/source/source_domain/source_table are replaced only when
//     the new confidence is strictly higher
//   - hit_count increments and last_hit_at/updated_at are touched, because
//     an upsert of a known key is itself a cache-touch event
func (s *Store) UpsertIndexBatch(ctx context.Context, records []IndexRecord) (UpsertResult, error) {
	if len(records) == 0 {
		return UpsertResult{}, nil
	}

	n := len(records)
	lookupKeys := make([]string, n)
	lookupTypes := make([]string, n)
	companyIDs := make([]string, n)
	confidences := make([]float64, n)
	sources := make([]string, n)
	sourceDomains := make([]*string, n)
	sourceTables := make([]*string, n)
	for i, r := range records {
		lookupKeys[i] = normalizeKey(r.LookupKey, r.LookupType)
		lookupTypes[i] = string(r.LookupType)
		companyIDs[i] = r.CompanyID
		confidences[i] = r.Confidence
		sources[i] = string(r.Source)
		sourceDomains[i] = r.SourceDomain
		sourceTables[i] = r.SourceTable
	}

	tag, err := s.dbtx.Exec(ctx,
		`INSERT INTO enrichment_index
		     (lookup_key, lookup_type, company_id, confidence, source,
		      source_domain, source_table, hit_count, created_at, updated_at)
		 SELECT
		     lookup_key, lookup_type, company_id, confidence, source,
		     source_domain, source_table, 0, now(), now()
		 FROM unnest(
		     $1::text[], $2::text[], $3::text[], $4::numeric[],
		     $5::text[], $6::text[], $7::text[]
		 ) AS t(lookup_key, lookup_type, company_id, confidence, source,
		        source_domain, source_table)
		 ON CONFLICT (lookup_key, lookup_type) DO UPDATE SET
		     confidence = GREATEST(enrichment_index.confidence, EXCLUDED.confidence),
		     company_id = CASE
		         WHEN EXCLUDED.confidence > enrichment_index.confidence
		         THEN EXCLUDED.company_id
		         ELSE enrichment_index.company_id
		     END,
		     source = CASE
		         WHEN EXCLUDED.confidence > enrichment_index.confidence
		         THEN EXCLUDED.source
		         ELSE enrichment_index.source
		     END,
		     source_domain = CASE
		         WHEN EXCLUDED.confidence > enrichment_index.confidence
		         THEN EXCLUDED.source_domain
		         ELSE enrichment_index.source_domain
		     END,
		     source_table = CASE
		         WHEN EXCLUDED.confidence > enrichment_index.confidence
		         THEN EXCLUDED.source_table
		         ELSE enrichment_index.source_table
		     END,
		     hit_count = enrichment_index.hit_count + 1,
		     last_hit_at = now(),
		     updated_at = now()`,
		lookupKeys, lookupTypes, companyIDs, confidences,
		sources, sourceDomains, sourceTables,
	)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upserting enrichment index batch: %w", err)
	}

	affected := tag.RowsAffected()
	return UpsertResult{Affected: affected, Skipped: int64(n) - affected}, nil
}

// UpdateHitCount increments hit_count and touches last_hit_at/updated_at for
// a cache hit. Returns false when no row matched.
func (s *Store) UpdateHitCount(ctx context.Context, key string, typ LookupType) (bool, error) {
	tag, err := s.dbtx.Exec(ctx,
		`UPDATE enrichment_index
		 SET hit_count = hit_count + 1,
		     last_hit_at = now(),
		     updated_at = now()
		 WHERE lookup_key = $1 AND lookup_type = $2`,
		normalizeKey(key, typ), string(typ),
	)
	if err != nil {
		return false, fmt.Errorf("updating hit count: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// EnqueueRequests inserts lookup requests as a single statement. The partial
// unique index on normalized_name for pending/processing rows deduplicates
// in-flight work; conflicting rows are counted as skipped.
func (s *Store) EnqueueRequests(ctx context.Context, requests []EnqueueRequest) (EnqueueResult, error) {
	if len(requests) == 0 {
		return EnqueueResult{}, nil
	}

	n := len(requests)
	rawNames := make([]string, n)
	normalizedNames := make([]string, n)
	tempIDs := make([]string, n)
	for i, r := range requests {
		rawNames[i] = r.RawName
		normalizedNames[i] = r.NormalizedName
		tempIDs[i] = r.TempID
	}

	tag, err := s.dbtx.Exec(ctx,
		`INSERT INTO enrichment_requests
		     (raw_name, normalized_name, temp_id, status, next_retry_at, created_at)
		 SELECT raw_name, normalized_name, temp_id, 'pending', now(), now()
		 FROM unnest($1::text[], $2::text[], $3::text[])
		     AS t(raw_name, normalized_name, temp_id)
		 ON CONFLICT DO NOTHING`,
		rawNames, normalizedNames, tempIDs,
	)
	if err != nil {
		return EnqueueResult{}, fmt.Errorf("enqueueing enrichment requests: %w", err)
	}

	queued := tag.RowsAffected()
	return EnqueueResult{Queued: queued, Skipped: int64(n) - queued}, nil
}
