package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/serenityjs/plugin-registry/internal/models"
	"github.com/serenityjs/plugin-registry/internal/pkg/metrics"
	"github.com/serenityjs/plugin-registry/internal/repository"
)

// ErrUnknownPlugin is returned for decisions on ids the registry has never stored.
var ErrUnknownPlugin = errors.New("unknown plugin")

// Notifier delivers pending-approval prompts to reviewers.
type Notifier interface {
	NotifyPending(ctx context.Context, notice models.PendingNotice) error
}

// NotifyPending announces stored to reviewers. Delivery is best effort: failures
// are logged and the plugin stays pending.
func (c *Catalog) NotifyPending(ctx context.Context, stored models.StoredPlugin) {
	if c.notifier == nil {
		return
	}
	notice := models.PendingNotice{Plugin: stored, LogoURL: c.enricher.LogoURL(ctx, stored)}
	if err := c.notifier.NotifyPending(ctx, notice); err != nil {
		metrics.NotificationsTotal.WithLabelValues("failed").Inc()
		c.logger.Warn("pending notification failed", "plugin_id", stored.ID, "error", err)
		return
	}
	metrics.NotificationsTotal.WithLabelValues("sent").Inc()
}

// Decide records d in the registry. A reject also evicts the plugin from the cache.
func (c *Catalog) Decide(ctx context.Context, d models.ApprovalDecision) error {
	if !d.Action.Valid() {
		return fmt.Errorf("invalid decision action %q", d.Action)
	}
	err := c.repo.SetApproval(ctx, d.PluginID, d.Approved())
	switch {
	case errors.Is(err, repository.ErrPluginNotFound):
		metrics.ApprovalDecisionsTotal.WithLabelValues(string(d.Action), "unknown").Inc()
		return fmt.Errorf("%w: %d", ErrUnknownPlugin, d.PluginID)
	case err != nil:
		metrics.ApprovalDecisionsTotal.WithLabelValues(string(d.Action), "failed").Inc()
		return fmt.Errorf("record %s of plugin %d: %w", d.Action, d.PluginID, err)
	}
	metrics.ApprovalDecisionsTotal.WithLabelValues(string(d.Action), "applied").Inc()
	c.logger.Info("approval decision recorded", "plugin_id", d.PluginID, "action", d.Action)

	if !d.Approved() {
		c.evict(d.PluginID)
	}
	return nil
}

// OnDecision records d, acknowledges it through ack and, on approval, enriches
// and caches the plugin.
func (c *Catalog) OnDecision(ctx context.Context, d models.ApprovalDecision, ack func(string)) error {
	if err := c.Decide(ctx, d); err != nil {
		return err
	}
	if ack != nil {
		ack(AckMessage(d))
	}
	if !d.Approved() {
		return nil
	}
	return c.EnrichApproved(ctx, d.PluginID)
}

// EnrichApproved fetches the live repository of an approved plugin and caches
// its enrichment. A platform failure leaves the plugin for the next discovery cycle.
func (c *Catalog) EnrichApproved(ctx context.Context, id int64) error {
	repo, err := c.platform.GetRepository(ctx, id)
	if err != nil {
		c.logger.Info("repository fetch failed, deferring to discovery", "plugin_id", id, "error", err)
		return nil
	}
	stored, err := c.repo.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("read plugin %d: %w", id, err)
	}
	if stored == nil {
		return fmt.Errorf("%w: %d", ErrUnknownPlugin, id)
	}
	_, err = c.materialize(ctx, *stored, *repo, "approval")
	return err
}

// AckMessage is the reply shown to the reviewer who issued d.
func AckMessage(d models.ApprovalDecision) string {
	if d.Approved() {
		return "Plugin approved."
	}
	return "Plugin rejected."
}
