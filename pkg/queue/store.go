package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/wisbric/companyid/internal/db"
)

// Store provides the queue state machine over enrichment_requests.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a queue Store backed by the given connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const requestColumns = `id, raw_name, normalized_name, temp_id, status,
	attempts, last_error, next_retry_at, created_at, updated_at`

func scanRequest(row interface{ Scan(...any) error }) (Request, error) {
	var r Request
	err := row.Scan(
		&r.ID, &r.RawName, &r.NormalizedName, &r.TempID, &r.Status,
		&r.Attempts, &r.LastError, &r.NextRetryAt, &r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

// Dequeue atomically claims up to batchSize ready pending requests, oldest
// first. The CTE takes row locks with SKIP LOCKED so concurrent workers
// never claim the same row, then the outer UPDATE flips them to processing.
func (s *Store) Dequeue(ctx context.Context, batchSize int) ([]Request, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	rows, err := s.dbtx.Query(ctx,
		`WITH ready AS (
		     SELECT id FROM enrichment_requests
		     WHERE status = 'pending'
		       AND (next_retry_at IS NULL OR next_retry_at <= now())
		     ORDER BY created_at ASC
		     LIMIT $1
		     FOR UPDATE SKIP LOCKED
		 )
		 UPDATE enrichment_requests
		 SET status = 'processing', updated_at = now()
		 FROM ready
		 WHERE enrichment_requests.id = ready.id
		 RETURNING `+requestColumns,
		batchSize,
	)
	if err != nil {
		return nil, fmt.Errorf("dequeueing requests: %w", err)
	}
	defer rows.Close()

	var requests []Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning dequeued request: %w", err)
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

// MarkDone transitions a processing request to done.
func (s *Store) MarkDone(ctx context.Context, id int64) error {
	tag, err := s.dbtx.Exec(ctx,
		`UPDATE enrichment_requests
		 SET status = 'done', updated_at = now()
		 WHERE id = $1 AND status = 'processing'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("marking request %d done: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("request %d: %w", id, ErrNotProcessing)
	}
	return nil
}

// MarkFailed records a failure on a processing request. Below
// MaxRetryAttempts the row returns to pending with the backoff delay applied
// to next_retry_at; at or beyond it the row becomes failed permanently.
func (s *Store) MarkFailed(ctx context.Context, id int64, lastError string, attempts int) error {
	if attempts < 0 {
		return fmt.Errorf("attempts must be non-negative, got %d", attempts)
	}
	if lastError == "" {
		lastError = "unknown error"
	}

	query := `UPDATE enrichment_requests
		 SET status = 'pending',
		     last_error = $1,
		     attempts = $2,
		     next_retry_at = $3,
		     updated_at = now()
		 WHERE id = $4 AND status = 'processing'`
	var nextRetry *time.Time
	if attempts >= MaxRetryAttempts {
		query = `UPDATE enrichment_requests
		 SET status = 'failed',
		     last_error = $1,
		     attempts = $2,
		     next_retry_at = $3,
		     updated_at = now()
		 WHERE id = $4 AND status = 'processing'`
	} else {
		t := time.Now().UTC().Add(Backoff(attempts))
		nextRetry = &t
	}

	tag, err := s.dbtx.Exec(ctx, query, lastError, attempts, nextRetry, id)
	if err != nil {
		return fmt.Errorf("marking request %d failed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("request %d: %w", id, ErrNotProcessing)
	}
	return nil
}

// ResetStaleProcessing reclaims rows stuck in processing longer than
// staleAfter (measured on updated_at), typically after a worker crash. Rows
// return to pending with attempts incremented and the matching backoff
// delay. Returns the number of rows reclaimed.
func (s *Store) ResetStaleProcessing(ctx context.Context, staleAfter time.Duration) (int64, error) {
	tag, err := s.dbtx.Exec(ctx,
		`UPDATE enrichment_requests
		 SET status = 'pending',
		     attempts = attempts + 1,
		     next_retry_at = CASE
		         WHEN attempts + 1 >= 3 THEN now() + interval '15 minutes'
		         WHEN attempts + 1 = 2 THEN now() + interval '5 minutes'
		         ELSE now() + interval '1 minute'
		     END,
		     updated_at = now()
		 WHERE status = 'processing'
		   AND updated_at < now() - make_interval(secs => $1)`,
		staleAfter.Seconds(),
	)
	if err != nil {
		return 0, fmt.Errorf("resetting stale processing rows: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetStats returns per-status row counts.
func (s *Store) GetStats(ctx context.Context) (Stats, error) {
	rows, err := s.dbtx.Query(ctx,
		`SELECT status, COUNT(*) FROM enrichment_requests GROUP BY status`,
	)
	if err != nil {
		return Stats{}, fmt.Errorf("querying queue stats: %w", err)
	}
	defer rows.Close()

	var stats Stats
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, fmt.Errorf("scanning queue stats: %w", err)
		}
		switch status {
		case StatusPending:
			stats.Pending = count
		case StatusProcessing:
			stats.Processing = count
		case StatusDone:
			stats.Done = count
		case StatusFailed:
			stats.Failed = count
		}
	}
	return stats, rows.Err()
}

// Depth returns the number of rows with the given status. With readyOnly
// and status pending, only rows whose backoff window has elapsed count —
// the signal a scheduler should poll.
func (s *Store) Depth(ctx context.Context, status string, readyOnly bool) (int64, error) {
	query := `SELECT COUNT(*) FROM enrichment_requests WHERE status = $1`
	if status == StatusPending && readyOnly {
		query += ` AND (next_retry_at IS NULL OR next_retry_at <= now())`
	}

	var count int64
	if err := s.dbtx.QueryRow(ctx, query, status).Scan(&count); err != nil {
		return 0, fmt.Errorf("querying queue depth: %w", err)
	}
	return count, nil
}
