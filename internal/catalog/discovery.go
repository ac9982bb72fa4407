package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/serenityjs/plugin-registry/internal/github"
	"github.com/serenityjs/plugin-registry/internal/pkg/metrics"
	"github.com/serenityjs/plugin-registry/internal/pkg/tracing"
	"github.com/serenityjs/plugin-registry/internal/repository"
)

// CycleReport tallies how a discovery cycle classified the search results.
type CycleReport struct {
	Seen      int
	Admitted  int // persisted as pending and announced
	Discarded int // unknown with no releases
	Pending   int // known, awaiting approval
	Cached    int // approved and already served
	Enriched  int
	Failed    int
}

func (r *CycleReport) count(classification string) {
	switch classification {
	case "admitted":
		r.Admitted++
	case "discarded":
		r.Discarded++
	case "pending":
		r.Pending++
	case "cached":
		r.Cached++
	case "enriched":
		r.Enriched++
	case "failed":
		r.Failed++
	}
	metrics.DiscoveredTotal.WithLabelValues(classification).Inc()
}

// Run performs a cycle immediately, then on every refresh tick. On every clear
// tick the cache is emptied and a cycle runs right away to repopulate it.
// Run returns when ctx is done.
func (c *Catalog) Run(ctx context.Context) error {
	c.logger.Info("discovery started", "topic", c.topic, "interval", c.interval, "clear_interval", c.clearInterval)
	c.runLogged(ctx)

	refresh := time.NewTicker(c.interval)
	defer refresh.Stop()
	clearTick := time.NewTicker(c.clearInterval)
	defer clearTick.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("discovery stopped")
			return nil
		case <-refresh.C:
			c.runLogged(ctx)
		case <-clearTick.C:
			c.cache.Clear()
			c.logger.Info("serving cache cleared")
			c.runLogged(ctx)
		}
	}
}

func (c *Catalog) runLogged(ctx context.Context) {
	report, err := c.RunCycle(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("discovery cycle aborted", "error", err)
		}
		return
	}
	c.logger.Info("discovery cycle completed",
		"seen", report.Seen,
		"admitted", report.Admitted,
		"discarded", report.Discarded,
		"pending", report.Pending,
		"cached", report.Cached,
		"enriched", report.Enriched,
		"failed", report.Failed,
	)
}

// RunCycle searches the topic once and reconciles every result with the
// registry and the cache. A search failure aborts the cycle.
func (c *Catalog) RunCycle(ctx context.Context) (CycleReport, error) {
	ctx, span := tracing.StartSpan(ctx, "catalog.discovery_cycle", attribute.String("topic", c.topic))
	defer span.End()

	var report CycleReport
	repos, err := c.platform.SearchRepositories(ctx, "topic:"+c.topic)
	if err != nil {
		metrics.DiscoveryCyclesTotal.WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return report, fmt.Errorf("search topic %s: %w", c.topic, err)
	}

	for i := range repos {
		if err := ctx.Err(); err != nil {
			metrics.DiscoveryCyclesTotal.WithLabelValues("failed").Inc()
			return report, err
		}
		report.Seen++
		report.count(c.reconcile(ctx, repos[i]))
	}

	metrics.DiscoveryCyclesTotal.WithLabelValues("ok").Inc()
	span.SetAttributes(attribute.Int("discovery.seen", report.Seen), attribute.Int("discovery.enriched", report.Enriched))
	return report, nil
}

// reconcile classifies one search result and acts on it.
func (c *Catalog) reconcile(ctx context.Context, r github.Repository) string {
	log := c.logger.With("plugin_id", r.ID, "plugin", r.FullName)

	known, err := c.repo.Has(ctx, r.ID)
	if err != nil {
		log.Warn("registry lookup failed", "error", err)
		return "failed"
	}
	if !known {
		return c.admit(ctx, r)
	}

	approved, err := c.repo.IsApproved(ctx, r.ID)
	if err != nil {
		log.Warn("approval lookup failed", "error", err)
		return "failed"
	}
	if !approved {
		return "pending"
	}
	if c.cache.Has(r.ID) {
		return "cached"
	}

	stored, err := c.repo.Get(ctx, r.ID)
	if err != nil || stored == nil {
		log.Warn("registry read failed", "error", err)
		return "failed"
	}
	enriched, err := c.materialize(ctx, *stored, r, "poll")
	if err != nil {
		log.Warn("enrichment failed", "error", err)
		return "failed"
	}
	if !enriched {
		return "cached"
	}
	return "enriched"
}

// admit persists an unknown repository as pending and announces it. Candidates
// without releases, or whose release listing fails, are discarded unpersisted.
func (c *Catalog) admit(ctx context.Context, r github.Repository) string {
	releases, err := c.platform.ListReleases(ctx, r.Owner.Login, r.Name)
	if err != nil {
		c.logger.Debug("release probe failed", "plugin_id", r.ID, "error", err)
		return "discarded"
	}
	if len(releases) == 0 {
		return "discarded"
	}

	stored := storedFromRepository(r)
	if err := c.repo.Insert(ctx, &stored); err != nil {
		if errors.Is(err, repository.ErrPluginExists) {
			return "pending"
		}
		c.logger.Warn("registry insert failed", "plugin_id", r.ID, "error", err)
		return "failed"
	}
	c.logger.Info("plugin discovered", "plugin_id", r.ID, "name", r.Name, "owner", r.Owner.Login)
	c.NotifyPending(ctx, stored)
	return "admitted"
}
