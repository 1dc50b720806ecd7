// Package enrichment is the run-level entry point the ETL calls: it wires
// the resolver, observer, run log, metrics, and the learning feedback loop
// into one service with a per-domain lifecycle.
package enrichment

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/companyid/internal/audit"
	"github.com/wisbric/companyid/internal/telemetry"
	"github.com/wisbric/companyid/pkg/learning"
	"github.com/wisbric/companyid/pkg/resolver"
	"github.com/wisbric/companyid/pkg/slack"
)

// Service runs batch resolution for a domain and closes the loop afterwards:
// run statistics are persisted, a summary may go to Slack, and the learning
// service feeds confirmed mappings back into the cache.
type Service struct {
	resolver *resolver.Resolver
	observer *resolver.Observer
	learning *learning.Service
	runLog   *audit.Writer
	notifier *slack.Notifier
	logger   *slog.Logger
}

// NewService creates an enrichment service. learning, runLog, and notifier
// may be nil; the corresponding steps are skipped.
func NewService(res *resolver.Resolver, observer *resolver.Observer, learningSvc *learning.Service, runLog *audit.Writer, notifier *slack.Notifier, logger *slog.Logger) *Service {
	return &Service{
		resolver: res,
		observer: observer,
		learning: learningSvc,
		runLog:   runLog,
		notifier: notifier,
		logger:   logger,
	}
}

// Run is the outcome of one ResolveBatch call through the service.
type Run struct {
	RunID      uuid.UUID
	Result     resolver.Result
	Stats      resolver.Stats
	StartedAt  time.Time
	FinishedAt time.Time
}

// ResolveBatch resolves one batch for a domain and records the run. The
// observer is reset first, so stats are scoped to this run.
func (s *Service) ResolveBatch(ctx context.Context, domainName string, table resolver.Table, strategy resolver.Strategy) (Run, error) {
	run := Run{RunID: uuid.New(), StartedAt: time.Now().UTC()}
	if s.observer != nil {
		s.observer.Reset()
	}

	result, err := s.resolver.ResolveBatch(ctx, table, strategy)
	if err != nil {
		return Run{}, err
	}
	run.Result = result
	run.FinishedAt = time.Now().UTC()
	if s.observer != nil {
		run.Stats = s.observer.GetStats()
	}

	stats := result.Statistics
	telemetry.RowsResolvedTotal.WithLabelValues("yaml").Add(float64(stats.YamlHitsTotal()))
	telemetry.RowsResolvedTotal.WithLabelValues("db_cache").Add(float64(stats.DBCacheHitsTotal()))
	telemetry.RowsResolvedTotal.WithLabelValues("existing_column").Add(float64(stats.ExistingColumnHits))
	telemetry.RowsResolvedTotal.WithLabelValues("eqc_sync").Add(float64(stats.EqcSyncHits))
	telemetry.TempIDsGeneratedTotal.Add(float64(stats.TempIDsGenerated))

	if s.runLog != nil {
		s.runLog.Log(audit.RunEntry{
			RunID:            run.RunID,
			DomainName:       domainName,
			TotalRows:        stats.TotalRows,
			CacheHits:        stats.DBCacheHitsTotal(),
			EqcSyncHits:      stats.EqcSyncHits,
			TempIDsGenerated: stats.TempIDsGenerated,
			AsyncQueued:      int(stats.AsyncQueued),
			Unresolved:       stats.Unresolved,
			BudgetConsumed:   stats.BudgetConsumed,
			StartedAt:        run.StartedAt,
			FinishedAt:       run.FinishedAt,
		})
	}

	if s.notifier != nil && s.observer != nil {
		unknowns := len(s.observer.UnknownCompanies())
		if err := s.notifier.PostRunSummary(ctx, domainName, run.Stats, unknowns); err != nil {
			s.logger.Warn("run summary notification failed", "error", err)
		}
	}

	return run, nil
}

// LearnFromRun feeds the annotated table back into the cache after the
// downstream load succeeded. Never fails the pipeline.
func (s *Service) LearnFromRun(ctx context.Context, domainName, tableName string, table resolver.Table) learning.Result {
	if s.learning == nil {
		return learning.Result{DomainName: domainName, TableName: tableName}
	}
	result := s.learning.LearnFromDomainSafely(ctx, domainName, tableName, table)
	for typeKey, count := range result.Extracted {
		telemetry.LearnedMappingsTotal.WithLabelValues(typeKey).Add(float64(count))
	}
	return result
}

// UnknownCompanyRows exposes the run's unknown-company export rows.
func (s *Service) UnknownCompanyRows() [][]string {
	if s.observer == nil {
		return nil
	}
	return s.observer.UnknownCompanyRows()
}
