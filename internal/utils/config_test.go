package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("WS_URL", "")
	t.Setenv("AGENT_NAME", "")

	config, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "wss://ws.perfect-menu.it/agent", config.WsURL)
	assert.Equal(t, "default-agent", config.AgentName)
	assert.Equal(t, 9100, config.Printer.ProbePort)
	assert.Equal(t, 300*time.Millisecond, config.Printer.ProbeTimeout)
	assert.Equal(t, 5*time.Second, config.Printer.PrintTimeout)
	assert.Equal(t, 5*time.Second, config.Channel.ReconnectDelay)
	assert.Equal(t, "text", config.Receipt.Mode)
}

func TestLoadConfigFileAndEnvironment(t *testing.T) {
	path := writeFile(t, "config.yaml", `
ws_url: ws://localhost:8080/agent
restaurant_id: "12"
agent_name: bar
printer:
  print_timeout: 2s
  recheck_after_timeout: true
receipt:
  mode: html
  store_name: Cantina
channel:
  reconnect_delay: 1s
`)
	t.Setenv("WS_URL", "")
	t.Setenv("RESTAURANT_ID", "")
	t.Setenv("AGENT_NAME", "kitchen")
	t.Setenv("WS_SECRET", "s3cret")
	t.Setenv("STORE_NAME", "")

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8080/agent", config.WsURL)
	assert.Equal(t, "12", config.RestaurantID)
	assert.Equal(t, "kitchen", config.AgentName, "environment wins over the file")
	assert.Equal(t, "s3cret", config.WsSecret)
	assert.Equal(t, 2*time.Second, config.Printer.PrintTimeout)
	assert.True(t, config.Printer.RecheckAfterTimeout)
	assert.Equal(t, 9100, config.Printer.ProbePort, "unset keys keep their defaults")
	assert.Equal(t, "html", config.Receipt.Mode)
	assert.Equal(t, "Cantina", config.Receipt.StoreName)
	assert.Equal(t, time.Second, config.Channel.ReconnectDelay)
}

func TestLoadConfigValidation(t *testing.T) {
	t.Setenv("WS_URL", "")

	tests := []struct {
		name    string
		content string
	}{
		{"bad mode", "receipt:\n  mode: pdf\n"},
		{"zero timeout", "printer:\n  print_timeout: 0s\n"},
		{"negative reconnect", "channel:\n  reconnect_delay: -1s\n"},
		{"malformed yaml", "printer: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeFile(t, "config.yaml", tt.content))
			assert.Error(t, err)
		})
	}
}
