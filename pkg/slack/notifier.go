// Package slack posts enrichment run summaries to a Slack channel so the
// data team sees unresolved-name growth without opening dashboards. Posts
// carry counts only — never company names or ids.
package slack

import (
	"context"
	"fmt"
	"log/slog"

	goslack "github.com/slack-go/slack"

	"github.com/wisbric/companyid/pkg/resolver"
)

// Notifier sends run summaries to Slack. If botToken is empty the notifier
// is a noop.
type Notifier struct {
	client  *goslack.Client
	channel string
	logger  *slog.Logger
}

// NewNotifier creates a Slack Notifier.
func NewNotifier(botToken, channel string, logger *slog.Logger) *Notifier {
	var client *goslack.Client
	if botToken != "" {
		client = goslack.New(botToken)
	}
	return &Notifier{
		client:  client,
		channel: channel,
		logger:  logger,
	}
}

// IsEnabled returns true if the notifier has a valid Slack client.
func (n *Notifier) IsEnabled() bool {
	return n.client != nil && n.channel != ""
}

// PostRunSummary sends a per-run enrichment summary to the configured
// channel.
func (n *Notifier) PostRunSummary(ctx context.Context, domainName string, stats resolver.Stats, unknownCount int) error {
	if !n.IsEnabled() {
		n.logger.Debug("slack notifier disabled, skipping run summary", "domain", domainName)
		return nil
	}

	text := fmt.Sprintf(
		"Enrichment run for *%s*: %d lookups, %d cache hits (%.1f%%), %d temp ids, %d queued, %d unknown companies",
		domainName,
		stats.TotalLookups,
		stats.CacheHits,
		stats.CacheHitRate()*100,
		stats.TempIDsGenerated,
		stats.AsyncQueued,
		unknownCount,
	)

	_, _, err := n.client.PostMessageContext(ctx, n.channel,
		goslack.MsgOptionText(text, false),
	)
	if err != nil {
		return fmt.Errorf("posting run summary to slack: %w", err)
	}

	n.logger.Info("posted run summary to slack",
		"domain", domainName,
		"unknown_companies", unknownCount,
	)
	return nil
}
