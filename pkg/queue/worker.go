package queue

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/companyid/pkg/eqc"
	"github.com/wisbric/companyid/pkg/mapping"
)

// WakeChannel is the Redis pub/sub channel the resolver publishes to after
// enqueueing requests. The engine subscribes so new work is drained without
// waiting for the next poll tick. Durability never depends on Redis: a lost
// message only delays processing until the ticker fires.
const WakeChannel = "companyid:requests:enqueued"

// eqcConfidence is the cache confidence recorded for names the worker
// resolves through EQC. Above the learning defaults so a provider answer
// outranks observed-data mappings.
const eqcConfidence = 0.95

// EngineMetrics groups the Prometheus collectors the engine reports to.
// Any field may be nil.
type EngineMetrics struct {
	ProcessedTotal *prometheus.CounterVec // requests processed, by outcome
	PendingDepth   prometheus.Gauge       // ready pending rows after each tick
}

// Engine is the background worker that drains enrichment_requests: it looks
// each pending name up through EQC, writes hits into enrichment_index, and
// applies the retry state machine to misses and failures.
type Engine struct {
	store      *Store
	mappings   *mapping.Store
	searcher   eqc.Searcher
	rdb        *redis.Client
	logger     *slog.Logger
	metrics    EngineMetrics
	interval   time.Duration
	batchSize  int
	staleAfter time.Duration
}

// NewEngine creates a queue engine. rdb may be nil; the engine then relies
// on polling alone.
func NewEngine(store *Store, mappings *mapping.Store, searcher eqc.Searcher, rdb *redis.Client, logger *slog.Logger, metrics EngineMetrics) *Engine {
	return &Engine{
		store:      store,
		mappings:   mappings,
		searcher:   searcher,
		rdb:        rdb,
		logger:     logger,
		metrics:    metrics,
		interval:   30 * time.Second,
		batchSize:  50,
		staleAfter: 15 * time.Minute,
	}
}

// Run starts the engine loop. It blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("lookup queue engine started",
		"interval", e.interval,
		"batch_size", e.batchSize,
	)

	// Recover rows orphaned by a crashed worker before taking new work.
	if n, err := e.store.ResetStaleProcessing(ctx, e.staleAfter); err != nil {
		e.logger.Error("stale processing recovery", "error", err)
	} else if n > 0 {
		e.logger.Warn("reclaimed stale processing requests", "count", n)
	}

	var wakeCh <-chan *redis.Message
	if e.rdb != nil {
		pubsub := e.rdb.Subscribe(ctx, WakeChannel)
		defer pubsub.Close()
		wakeCh = pubsub.Channel()
	}

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("lookup queue engine stopped")
			return nil
		case <-wakeCh:
			e.logger.Debug("wake event received, draining queue")
			if err := e.tick(ctx); err != nil {
				e.logger.Error("queue drain after wake", "error", err)
			}
		case <-ticker.C:
			if err := e.tick(ctx); err != nil {
				e.logger.Error("queue drain tick", "error", err)
			}
		}
	}
}

// tick performs one drain pass: stale recovery, then dequeue-and-process
// until the ready queue is empty.
func (e *Engine) tick(ctx context.Context) error {
	if _, err := e.store.ResetStaleProcessing(ctx, e.staleAfter); err != nil {
		e.logger.Error("stale processing recovery", "error", err)
	}

	for {
		requests, err := e.store.Dequeue(ctx, e.batchSize)
		if err != nil {
			return err
		}
		if len(requests) == 0 {
			break
		}

		e.logger.Info("processing lookup requests", "count", len(requests))
		for _, req := range requests {
			e.processRequest(ctx, req)
		}
	}

	if e.metrics.PendingDepth != nil {
		if depth, err := e.store.Depth(ctx, StatusPending, true); err == nil {
			e.metrics.PendingDepth.Set(float64(depth))
		}
	}
	return nil
}

// processRequest resolves one queue row. Adapter failures and no-result
// answers are both recoverable: the row goes back to pending with backoff
// until the attempt limit permanently fails it.
func (e *Engine) processRequest(ctx context.Context, req Request) {
	match, err := e.searcher.Search(ctx, req.RawName)
	if err != nil {
		reason := "lookup failed"
		if errors.Is(err, eqc.ErrNoResult) {
			reason = "no results for name"
		}
		e.logger.Debug("lookup request failed",
			"request_id", req.ID,
			"attempts", req.Attempts+1,
			"reason", reason,
		)
		if failErr := e.store.MarkFailed(ctx, req.ID, reason+": "+err.Error(), req.Attempts+1); failErr != nil {
			// Swallow so the original failure is not lost behind a
			// bookkeeping error; the stale-recovery pass will reclaim the row.
			e.logger.Error("marking request failed", "request_id", req.ID, "error", failErr)
		}
		e.countProcessed("failed")
		return
	}

	record := mapping.IndexRecord{
		LookupKey:  req.NormalizedName,
		LookupType: mapping.LookupCustomerName,
		CompanyID:  match.CompanyID,
		Confidence: eqcConfidence,
		Source:     mapping.SourceEQC,
	}
	if _, err := e.mappings.UpsertIndexBatch(ctx, []mapping.IndexRecord{record}); err != nil {
		// The answer is lost unless we retry, so treat a cache-write failure
		// like a lookup failure.
		e.logger.Error("caching lookup result", "request_id", req.ID, "error", err)
		if failErr := e.store.MarkFailed(ctx, req.ID, "caching result: "+err.Error(), req.Attempts+1); failErr != nil {
			e.logger.Error("marking request failed", "request_id", req.ID, "error", failErr)
		}
		e.countProcessed("failed")
		return
	}

	if err := e.store.MarkDone(ctx, req.ID); err != nil {
		e.logger.Error("marking request done", "request_id", req.ID, "error", err)
		e.countProcessed("failed")
		return
	}
	e.countProcessed("done")
}

func (e *Engine) countProcessed(outcome string) {
	if e.metrics.ProcessedTotal != nil {
		e.metrics.ProcessedTotal.WithLabelValues(outcome).Inc()
	}
}

// PublishWake notifies listening engines that new requests were enqueued.
// Best-effort: errors are ignored because polling covers the gap.
func PublishWake(ctx context.Context, rdb *redis.Client) {
	if rdb == nil {
		return
	}
	rdb.Publish(ctx, WakeChannel, "enqueued")
}
