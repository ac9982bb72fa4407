package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/serenityjs/plugin-registry/internal/github"
	"github.com/serenityjs/plugin-registry/internal/models"
	"github.com/serenityjs/plugin-registry/internal/pkg/metrics"
	"github.com/serenityjs/plugin-registry/internal/repository"
)

const (
	DefaultInterval      = 5 * time.Minute
	DefaultClearInterval = time.Hour
)

// Options configures a Catalog. Zero durations select the defaults.
type Options struct {
	Topic         string
	Interval      time.Duration
	ClearInterval time.Duration
	Logger        *slog.Logger
}

// Catalog owns the discovery → persistence → approval → enrichment → cache pipeline.
type Catalog struct {
	repo     repository.PluginRepository
	cache    *Cache
	enricher *Enricher
	platform Platform
	notifier Notifier

	topic         string
	interval      time.Duration
	clearInterval time.Duration
	logger        *slog.Logger

	// inflight admits one enrichment per plugin id across poll and approval triggers.
	inflight singleflight.Group
	// putMu orders the approval re-read and Put against reject evictions.
	putMu sync.Mutex
}

func New(repo repository.PluginRepository, cache *Cache, enricher *Enricher, platform Platform, notifier Notifier, opts Options) *Catalog {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.ClearInterval <= 0 {
		opts.ClearInterval = DefaultClearInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Catalog{
		repo:          repo,
		cache:         cache,
		enricher:      enricher,
		platform:      platform,
		notifier:      notifier,
		topic:         opts.Topic,
		interval:      opts.Interval,
		clearInterval: opts.ClearInterval,
		logger:        opts.Logger,
	}
}

// GetFromCache returns the cached plugin with id, if any.
func (c *Catalog) GetFromCache(id int64) (models.Plugin, bool) {
	return c.cache.Get(id)
}

// GetAllFromCache returns every cached plugin in insertion order.
func (c *Catalog) GetAllFromCache() []models.Plugin {
	return c.cache.All()
}

// Ping reports whether the registry is reachable.
func (c *Catalog) Ping(ctx context.Context) error {
	return c.repo.Ping(ctx)
}

// materialize enriches stored and caches the result. It reports whether a new
// entry was written; a cached id or an approval revoked mid-enrichment is a no-op.
func (c *Catalog) materialize(ctx context.Context, stored models.StoredPlugin, repo github.Repository, trigger string) (bool, error) {
	v, err, _ := c.inflight.Do(strconv.FormatInt(stored.ID, 10), func() (any, error) {
		if c.cache.Has(stored.ID) {
			return false, nil
		}

		if repo.DefaultBranch != "" && repo.DefaultBranch != stored.Branch {
			branch := repo.DefaultBranch
			if err := c.repo.Update(ctx, stored.ID, models.StoredPluginUpdate{Branch: &branch}); err != nil {
				return false, fmt.Errorf("update branch of plugin %d: %w", stored.ID, err)
			}
			c.logger.Info("plugin default branch changed", "plugin_id", stored.ID, "from", stored.Branch, "to", branch)
			stored.Branch = branch
		}

		plugin := c.enricher.Enrich(ctx, stored, repo)

		c.putMu.Lock()
		defer c.putMu.Unlock()
		approved, err := c.repo.IsApproved(ctx, stored.ID)
		if err != nil {
			return false, fmt.Errorf("recheck approval of plugin %d: %w", stored.ID, err)
		}
		if !approved {
			c.logger.Info("plugin approval revoked during enrichment", "plugin_id", stored.ID)
			return false, nil
		}
		c.cache.Put(plugin)
		metrics.EnrichmentsTotal.WithLabelValues(trigger).Inc()
		c.logger.Info("plugin cached", "plugin_id", stored.ID, "name", stored.Name, "trigger", trigger)
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

// evict removes id from the cache once its approval has been withdrawn.
func (c *Catalog) evict(id int64) {
	c.putMu.Lock()
	defer c.putMu.Unlock()
	c.cache.Delete(id)
}

func storedFromRepository(r github.Repository) models.StoredPlugin {
	branch := r.DefaultBranch
	if branch == "" {
		branch = "main"
	}
	return models.StoredPlugin{
		ID:     r.ID,
		Name:   r.Name,
		Owner:  identityFromUser(r.Owner),
		URL:    r.HTMLURL,
		Branch: branch,
	}
}
