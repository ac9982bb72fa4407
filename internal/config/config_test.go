package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "")
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, 4000, cfg.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "./plugins.db", cfg.Database.Path)
	assert.Equal(t, "serenityjs-plugin", cfg.GitHub.Topic)
	assert.Equal(t, "https://api.github.com", cfg.GitHub.APIURL)
	assert.Equal(t, 300, cfg.Discovery.IntervalSec)
	assert.Equal(t, 3600, cfg.Discovery.CacheClearIntervalSec)
	assert.Equal(t, "log", cfg.Approval.Channel)
	assert.NotEmpty(t, cfg.Discovery.DefaultLogoURL)
}

func TestLoad_FileValues(t *testing.T) {
	path := writeConfig(t, `
port: 9090
database:
  driver: postgres
  url: postgres://registry@localhost/plugins?sslmode=disable
github:
  topic: my-plugin
discovery:
  interval_sec: 60
approval:
  channel: webhook
webhook:
  url: https://hooks.example.com/approve
  format: slack
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "my-plugin", cfg.GitHub.Topic)
	assert.Equal(t, 60, cfg.Discovery.IntervalSec)
	assert.Equal(t, "slack", cfg.Webhook.Format)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PLUGIN_REGISTRY_PORT", "5050")
	t.Setenv("PLUGIN_REGISTRY_GITHUB_TOPIC", "env-topic")
	t.Setenv("GITHUB_TOKEN", "ghp_test")

	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	assert.Equal(t, 5050, cfg.Port)
	assert.Equal(t, "env-topic", cfg.GitHub.Topic)
	assert.Equal(t, "ghp_test", cfg.GitHub.Token)
}

func TestLoad_MissingExplicitFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 4000, cfg.Port)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"discord without token", "approval:\n  channel: discord\n", "discord.token"},
		{"postgres without url", "database:\n  driver: postgres\n", "database.url"},
		{"unknown driver", "database:\n  driver: mysql\n", "unknown database.driver"},
		{"bad webhook format", "approval:\n  channel: webhook\nwebhook:\n  url: http://x\n  format: xml\n", "webhook.format"},
		{"zero interval", "discovery:\n  interval_sec: 0\n", "discovery.interval_sec"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DISCORD_TOKEN", "")
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
