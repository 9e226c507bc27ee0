package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcplens/lens-proxy/internal/perr"
)

func writeConfig(t *testing.T, dir, contents string) string {
	t.Helper()
	path := filepath.Join(dir, "mcp-proxy.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.json"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Servers)
	assert.Equal(t, DefaultProxySettings(), cfg.Settings)
}

func TestLoadParsesServersAndSettings(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `{
		"mcpServers": {
			"weather": {"command": "weather-mcp", "args": ["--port", "9000"], "env": {"API_KEY": "x"}}
		},
		"proxySettings": {
			"maxResponseSize": 4000,
			"enableAutoTruncation": false
		}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Contains(t, cfg.Servers, "weather")
	assert.Equal(t, "weather-mcp", cfg.Servers["weather"].Command)
	assert.Equal(t, []string{"--port", "9000"}, cfg.Servers["weather"].Args)
	assert.Equal(t, 4000, cfg.Settings.MaxResponseSize)
	assert.False(t, cfg.Settings.EnableAutoTruncation)
}

func TestLoadRejectsInvalidServerName(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `{
		"mcpServers": {
			"bad name!": {"command": "x"}
		}
	}`)
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, perr.OfKind(err, perr.KindConfig))
}

func TestLoadRejectsEmptyCommand(t *testing.T) {
	path := writeConfig(t, t.TempDir(), `{
		"mcpServers": {
			"svc": {"command": ""}
		}
	}`)
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, perr.OfKind(err, perr.KindConfig))
}

func TestValidateAcceptsWellFormedSpec(t *testing.T) {
	cfg := &Config{Servers: map[string]ServerSpec{
		"svc-1": {Command: "do-thing"},
	}}
	assert.NoError(t, cfg.Validate())
}

func TestWatchReloadsSettingsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `{"proxySettings": {"maxResponseSize": 1000}}`)

	reloaded := make(chan ProxySettings, 1)
	w, err := Watch(path, func(s ProxySettings) {
		select {
		case reloaded <- s:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, []byte(`{"proxySettings": {"maxResponseSize": 2000}}`), 0o600))

	select {
	case s := <-reloaded:
		assert.Equal(t, 2000, s.MaxResponseSize)
	case <-time.After(2 * time.Second):
		t.Fatal("config watcher did not observe the write")
	}
}
