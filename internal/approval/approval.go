// Package approval implements the reviewer-facing channels of the plugin
// registry: outbound pending-approval prompts and inbound decisions.
package approval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/serenityjs/plugin-registry/internal/models"
	"github.com/serenityjs/plugin-registry/internal/pkg/validate"
)

// ErrInvalidDecision is returned for decision ids that are not "<action>:<plugin id>".
var ErrInvalidDecision = errors.New("invalid approval decision")

// DecisionHandler applies a reviewer decision. ack is called once the decision
// is recorded, before any follow-up work.
type DecisionHandler interface {
	OnDecision(ctx context.Context, d models.ApprovalDecision, ack func(string)) error
}

// DecisionID encodes an action and plugin id as a button identifier.
func DecisionID(action models.DecisionAction, pluginID int64) string {
	return string(action) + ":" + strconv.FormatInt(pluginID, 10)
}

// ParseDecision decodes a DecisionID.
func ParseDecision(id string) (models.ApprovalDecision, error) {
	action, rawID, ok := strings.Cut(id, ":")
	if !ok {
		return models.ApprovalDecision{}, fmt.Errorf("%w: %q", ErrInvalidDecision, id)
	}
	d := models.ApprovalDecision{Action: models.DecisionAction(action)}
	if !d.Action.Valid() {
		return models.ApprovalDecision{}, fmt.Errorf("%w: unknown action %q", ErrInvalidDecision, action)
	}
	pluginID, ok := validate.PluginID(rawID)
	if !ok {
		return models.ApprovalDecision{}, fmt.Errorf("%w: bad plugin id %q", ErrInvalidDecision, rawID)
	}
	d.PluginID = pluginID
	return d, nil
}

// LogNotifier writes pending prompts to the log. Decisions then arrive through
// the CLI or the approvals endpoint.
type LogNotifier struct {
	logger *slog.Logger
}

func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyPending(_ context.Context, notice models.PendingNotice) error {
	p := notice.Plugin
	n.logger.Info("plugin awaiting approval",
		"plugin_id", p.ID,
		"name", p.Name,
		"owner", p.Owner.Username,
		"url", p.URL,
		"approve", DecisionID(models.DecisionApprove, p.ID),
		"reject", DecisionID(models.DecisionReject, p.ID),
	)
	return nil
}
