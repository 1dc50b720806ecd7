package eqc

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Searcher is the lookup capability Provider wraps. *Client implements it;
// tests substitute fakes.
type Searcher interface {
	Search(ctx context.Context, name string) (Match, error)
}

// ErrBudgetExhausted is returned by Lookup once the per-run budget is spent.
var ErrBudgetExhausted = errors.New("eqc: sync lookup budget exhausted")

// Provider is the budgeted adapter the resolver consumes; the queue worker
// calls a Searcher directly, outside any budget.
// The budget is authoritative here: callers must not keep their own count.
// A Provider may be shared across workers; budget accounting is serialized.
type Provider struct {
	searcher Searcher
	logger   *slog.Logger

	mu        sync.Mutex
	budget    int
	remaining int
}

// NewProvider creates a Provider with the given budget.
func NewProvider(searcher Searcher, budget int, logger *slog.Logger) *Provider {
	return &Provider{
		searcher:  searcher,
		logger:    logger,
		budget:    budget,
		remaining: budget,
	}
}

// Available reports whether the provider is configured and has budget left.
func (p *Provider) Available() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.searcher != nil && p.remaining > 0
}

// Budget returns the configured budget.
func (p *Provider) Budget() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.budget
}

// Remaining returns the unconsumed budget.
func (p *Provider) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remaining
}

// SetBudget resets both budget and remaining. The resolver calls this before
// the first lookup of a run so the provider matches the run configuration.
func (p *Provider) SetBudget(budget int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.budget = budget
	p.remaining = budget
}

// Lookup consumes one budget unit and queries the provider. Every attempt
// consumes budget, successful or not; failed names fall through to the
// temp-id path rather than being retried synchronously.
func (p *Provider) Lookup(ctx context.Context, rawName string) (Match, error) {
	p.mu.Lock()
	if p.searcher == nil || p.remaining <= 0 {
		p.mu.Unlock()
		return Match{}, ErrBudgetExhausted
	}
	p.remaining--
	remaining := p.remaining
	p.mu.Unlock()

	match, err := p.searcher.Search(ctx, rawName)
	if err != nil {
		p.logger.Debug("eqc lookup failed", "remaining_budget", remaining, "error", err)
		return Match{}, err
	}

	p.logger.Debug("eqc lookup hit", "remaining_budget", remaining)
	return match, nil
}
