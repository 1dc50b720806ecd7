// Package resolver implements batch company identity resolution: a
// five-layer strategy pipeline over an in-memory row table, backed by the
// enrichment_index cache, a budgeted external lookup, and the async queue.
package resolver

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/wisbric/companyid/pkg/eqc"
	"github.com/wisbric/companyid/pkg/mapping"
)

// MappingStore is the persistence surface the resolver needs. Implemented
// by *mapping.Store; tests substitute fakes.
type MappingStore interface {
	LookupIndexBatch(ctx context.Context, keysByType map[mapping.LookupType][]string) (map[mapping.IndexKey]mapping.IndexRecord, error)
	UpsertIndexBatch(ctx context.Context, records []mapping.IndexRecord) (mapping.UpsertResult, error)
	UpdateHitCount(ctx context.Context, key string, typ mapping.LookupType) (bool, error)
	EnqueueRequests(ctx context.Context, requests []mapping.EnqueueRequest) (mapping.EnqueueResult, error)
}

// Adapter is the external lookup contract. The adapter's budget counter is
// authoritative; the resolver never keeps its own count. Implemented by
// *eqc.Provider.
type Adapter interface {
	Available() bool
	Remaining() int
	SetBudget(budget int)
	Lookup(ctx context.Context, rawName string) (eqc.Match, error)
}

// Resolver orchestrates batch resolution. All dependencies besides the
// salt are optional: without a mapping store the cache and queue layers are
// skipped, without an adapter the external layer is skipped.
type Resolver struct {
	overrides Overrides
	mappings  MappingStore
	adapter   Adapter
	eqcConfig eqc.LookupConfig
	observer  *Observer
	rdb       *redis.Client
	salt      string
	logger    *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithOverrides sets the YAML override table.
func WithOverrides(overrides Overrides) Option {
	return func(r *Resolver) { r.overrides = overrides }
}

// WithMappingStore sets the cache/queue repository.
func WithMappingStore(store MappingStore) Option {
	return func(r *Resolver) { r.mappings = store }
}

// WithAdapter sets the external lookup adapter.
func WithAdapter(adapter Adapter) Option {
	return func(r *Resolver) { r.adapter = adapter }
}

// WithObserver attaches a run observer.
func WithObserver(observer *Observer) Option {
	return func(r *Resolver) { r.observer = observer }
}

// WithRedis sets the Redis client used to wake queue workers after enqueues.
func WithRedis(rdb *redis.Client) Option {
	return func(r *Resolver) { r.rdb = rdb }
}

// New creates a Resolver. The salt feeds temporary-id hashing and must be
// stable across runs; eqcConfig gates the external sync layer.
func New(salt string, eqcConfig eqc.LookupConfig, logger *slog.Logger, opts ...Option) *Resolver {
	r := &Resolver{
		overrides: EmptyOverrides(),
		eqcConfig: eqcConfig,
		salt:      salt,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResolveBatch annotates every row of the table with a company id (or
// leaves it unresolved) and returns per-layer statistics. The five layers
// run in strict priority order; each only sees rows the previous layers
// left unresolved. Rows are modified in place.
func (r *Resolver) ResolveBatch(ctx context.Context, table Table, strategy Strategy) (Result, error) {
	if err := strategy.Validate(); err != nil {
		return Result{}, err
	}
	if len(table) > 0 && !table.hasColumn(strategy.CustomerNameColumn) {
		return Result{}, &ConfigError{
			Reason: "input table missing customer name column",
		}
	}

	stats := newStatistics(len(table), r.eqcConfig.SyncBudget)
	resolved := make([]bool, len(table))

	// Output column starts empty for every row.
	for _, row := range table {
		delete(row, strategy.OutputColumn)
	}
	if r.observer != nil {
		for range table {
			r.observer.RecordLookup()
		}
	}

	// Pre-batch cache warming: one round-trip covers every distinct
	// customer name, so the cache layer's name lookups need no further I/O.
	var warmed warmedNames
	if r.mappings != nil {
		warmed = r.warmCache(ctx, table, strategy.CustomerNameColumn)
	}

	// Layer 1: YAML overrides.
	stats.YamlHits = r.resolveViaOverrides(table, strategy, resolved)
	r.logger.Info("override layer complete", "hits", stats.YamlHitsTotal())

	// Layer 2: enrichment_index cache.
	if r.mappings != nil && anyUnresolved(resolved) {
		if err := r.resolveViaDBCache(ctx, table, strategy, resolved, warmed, stats); err != nil {
			return Result{}, err
		}
		r.logger.Info("cache layer complete",
			"hits", stats.DBCacheHitsTotal(),
			"hits_by_type", stats.DBCacheHits,
		)
	}

	// Layer 3: existing-column passthrough, then backflow of what it saw.
	passthroughRows := r.resolveViaExistingColumn(table, strategy, resolved, stats)
	if strategy.EnableBackflow && r.mappings != nil && len(passthroughRows) > 0 {
		stats.Backflow = r.backflowMappings(ctx, table, strategy, passthroughRows)
	}

	// Layer 4: budgeted external sync lookup.
	if r.eqcConfig.Enabled && r.eqcConfig.SyncBudget > 0 && r.adapter != nil && anyUnresolved(resolved) {
		r.resolveViaEqcSync(ctx, table, strategy, resolved, stats)
	}

	// Layer 5: deterministic temp ids, then the async queue.
	if strategy.GenerateTempIDs && anyUnresolved(resolved) {
		tempIDRows := r.generateTempIDs(table, strategy, resolved, stats)
		if strategy.EnableAsyncQueue && r.mappings != nil && len(tempIDRows) > 0 {
			stats.AsyncQueued = r.enqueueForEnrichment(ctx, table, strategy, tempIDRows)
		}
	}

	for idx := range table {
		if table[idx].Get(strategy.OutputColumn) == "" {
			stats.Unresolved++
		}
	}

	r.logger.Info("batch resolution complete",
		"total_rows", stats.TotalRows,
		"yaml_hits", stats.YamlHitsTotal(),
		"db_cache_hits", stats.DBCacheHitsTotal(),
		"existing_column_hits", stats.ExistingColumnHits,
		"eqc_sync_hits", stats.EqcSyncHits,
		"temp_ids_generated", stats.TempIDsGenerated,
		"async_queued", stats.AsyncQueued,
		"unresolved", stats.Unresolved,
		"budget_consumed", stats.BudgetConsumed,
	)

	return Result{Table: table, Statistics: stats}, nil
}

func anyUnresolved(resolved []bool) bool {
	for _, done := range resolved {
		if !done {
			return true
		}
	}
	return false
}
