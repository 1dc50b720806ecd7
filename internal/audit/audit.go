// Package audit persists per-run enrichment statistics so the monthly
// pipeline keeps a durable history of how each batch resolved.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RunEntry is one completed resolver run.
type RunEntry struct {
	RunID            uuid.UUID
	DomainName       string
	TotalRows        int
	CacheHits        int
	EqcSyncHits      int
	TempIDsGenerated int
	AsyncQueued      int
	Unresolved       int
	BudgetConsumed   int
	StartedAt        time.Time
	FinishedAt       time.Time
}

// Writer is an async, buffered run log writer. Entries are sent to an
// internal channel and flushed by a background goroutine; a full buffer
// drops entries rather than blocking the pipeline.
type Writer struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	entries chan RunEntry
	wg      sync.WaitGroup
}

const (
	bufferSize    = 64
	flushInterval = 2 * time.Second
)

// NewWriter creates a run log Writer. Call Start to begin processing.
func NewWriter(pool *pgxpool.Pool, logger *slog.Logger) *Writer {
	return &Writer{
		pool:    pool,
		logger:  logger,
		entries: make(chan RunEntry, bufferSize),
	}
}

// Start begins the background goroutine that flushes entries.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close waits for all pending entries to be flushed.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log enqueues a run entry for async writing. It never blocks the caller.
func (w *Writer) Log(entry RunEntry) {
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("run log buffer full, dropping entry", "run_id", entry.RunID)
	}
}

func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	var batch []RunEntry

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (w *Writer) flush(entries []RunEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, e := range entries {
		if _, err := w.pool.Exec(ctx,
			`INSERT INTO enrichment_runs
			     (run_id, domain_name, total_rows, cache_hits, eqc_sync_hits,
			      temp_ids_generated, async_queued, unresolved,
			      budget_consumed, started_at, finished_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			e.RunID, e.DomainName, e.TotalRows, e.CacheHits, e.EqcSyncHits,
			e.TempIDsGenerated, e.AsyncQueued, e.Unresolved,
			e.BudgetConsumed, e.StartedAt, e.FinishedAt,
		); err != nil {
			w.logger.Error("writing run log entry", "run_id", e.RunID, "error", err)
		}
	}
}
