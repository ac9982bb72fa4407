package approval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serenityjs/plugin-registry/internal/models"
)

func pendingNotice() models.PendingNotice {
	return models.PendingNotice{
		Plugin: models.StoredPlugin{
			ID:     43,
			Name:   "foo",
			Owner:  models.Identity{Username: "alice", ProfileURL: "https://github.com/alice"},
			URL:    "https://github.com/alice/foo",
			Branch: "main",
		},
		LogoURL: "https://raw.test/alice/foo/main/public/logo.png",
	}
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		in      string
		want    models.ApprovalDecision
		wantErr bool
	}{
		{in: "approve:43", want: models.ApprovalDecision{Action: models.DecisionApprove, PluginID: 43}},
		{in: "reject:7", want: models.ApprovalDecision{Action: models.DecisionReject, PluginID: 7}},
		{in: "approve", wantErr: true},
		{in: "maybe:43", wantErr: true},
		{in: "approve:abc", wantErr: true},
		{in: "approve:-1", wantErr: true},
		{in: "approve:43:1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDecision(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDecision)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecisionIDRoundTrip(t *testing.T) {
	d, err := ParseDecision(DecisionID(models.DecisionReject, 123456789))
	require.NoError(t, err)
	assert.Equal(t, models.DecisionReject, d.Action)
	assert.Equal(t, int64(123456789), d.PluginID)
}

func TestBuildPrompt(t *testing.T) {
	msg := BuildPrompt(pendingNotice())

	require.Len(t, msg.Embeds, 1)
	embed := msg.Embeds[0]
	assert.Equal(t, promptTitle, embed.Title)
	assert.Equal(t, promptColor, embed.Color)
	require.NotNil(t, embed.Thumbnail)
	assert.Equal(t, "https://raw.test/alice/foo/main/public/logo.png", embed.Thumbnail.URL)

	require.Len(t, msg.Components, 1)
	row, ok := msg.Components[0].(discordgo.ActionsRow)
	require.True(t, ok)
	require.Len(t, row.Components, 2)
	assert.Equal(t, "approve:43", row.Components[0].(discordgo.Button).CustomID)
	assert.Equal(t, "reject:43", row.Components[1].(discordgo.Button).CustomID)
}

func TestWebhook_JSONPayload(t *testing.T) {
	var got webhookEvent
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	err := NewWebhook(server.URL, FormatJSON, nil).NotifyPending(context.Background(), pendingNotice())
	require.NoError(t, err)
	assert.Equal(t, "plugin.pending", got.Event)
	assert.Equal(t, int64(43), got.Plugin.ID)
	assert.Equal(t, "approve:43", got.ApproveID)
	assert.Equal(t, "/approvals/43", got.DecisionPath)
}

func TestWebhook_SlackPayload(t *testing.T) {
	var payload map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
	}))
	defer server.Close()

	err := NewWebhook(server.URL, FormatSlack, nil).NotifyPending(context.Background(), pendingNotice())
	require.NoError(t, err)
	assert.Contains(t, payload["text"], "[plugin-registry/pending]")
	assert.Contains(t, payload["text"], "alice/foo")
}

func TestWebhook_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := NewWebhook(server.URL, FormatJSON, nil).NotifyPending(context.Background(), pendingNotice())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, NewLogNotifier(nil).NotifyPending(context.Background(), pendingNotice()))
}
