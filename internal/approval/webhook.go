package approval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/serenityjs/plugin-registry/internal/models"
)

const (
	FormatJSON  = "json"
	FormatSlack = "slack"
)

// webhookEvent is the generic JSON payload for a pending plugin.
type webhookEvent struct {
	Event        string              `json:"event"`
	Plugin       models.StoredPlugin `json:"plugin"`
	LogoURL      string              `json:"logo_url"`
	ApproveID    string              `json:"approve_id"`
	RejectID     string              `json:"reject_id"`
	DecisionPath string              `json:"decision_path"`
	OccurredAt   string              `json:"occurred_at"`
}

// Webhook posts pending prompts to an HTTP endpoint, either as a JSON event
// or as a Slack incoming-webhook message.
type Webhook struct {
	url    string
	format string
	client *http.Client
	logger *slog.Logger
}

func NewWebhook(url, format string, logger *slog.Logger) *Webhook {
	if format == "" {
		format = FormatJSON
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Webhook{
		url:    url,
		format: format,
		client: &http.Client{Timeout: 5 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		logger: logger,
	}
}

func (w *Webhook) NotifyPending(ctx context.Context, notice models.PendingNotice) error {
	var payload interface{}
	p := notice.Plugin
	decisionPath := fmt.Sprintf("/approvals/%d", p.ID)

	switch w.format {
	case FormatSlack:
		text := fmt.Sprintf("*[plugin-registry/pending]* <%s|%s/%s> awaits review", p.URL, p.Owner.Username, p.Name)
		text += fmt.Sprintf("\n> POST %s with {\"action\":\"approve\"} or {\"action\":\"reject\"}", decisionPath)
		payload = map[string]string{"text": text}

	default:
		payload = webhookEvent{
			Event:        "plugin.pending",
			Plugin:       p,
			LogoURL:      notice.LogoURL,
			ApproveID:    DecisionID(models.DecisionApprove, p.ID),
			RejectID:     DecisionID(models.DecisionReject, p.ID),
			DecisionPath: decisionPath,
			OccurredAt:   time.Now().UTC().Format(time.RFC3339),
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "plugin-registry-notifier/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d from webhook", resp.StatusCode)
	}
	w.logger.Debug("pending notification delivered", "plugin_id", p.ID, "format", w.format)
	return nil
}
