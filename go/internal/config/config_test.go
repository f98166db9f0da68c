package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "auction.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, 20*time.Second, cfg.Auction.CountdownWindow)
	assert.Equal(t, time.Second, cfg.AuctionConfig().StartTolerance)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9000"
store:
  driver: postgres
  migrate: true
nats:
  url: nats://nats:4222
auction:
  countdown_window: 30s
  bid_reset_window: 15s
websocket:
  message_burst: 5
`)
	t.Setenv("PORT", "9100")
	t.Setenv("RETRY_DELAY", "12s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9100", cfg.Server.Port, "env wins over yaml")
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, StorePostgres, cfg.Store.Driver)
	assert.True(t, cfg.Store.Migrate)
	assert.Equal(t, "nats://nats:4222", cfg.NATS.URL)
	assert.Equal(t, 5, cfg.WebSocket.MessageBurst)

	ac := cfg.AuctionConfig()
	assert.Equal(t, 30*time.Second, ac.CountdownWindow)
	assert.Equal(t, 15*time.Second, ac.BidResetWindow)
	assert.Equal(t, 12*time.Second, ac.RetryDelay)
	assert.Equal(t, time.Second, ac.TickPeriod, "unset keys keep defaults")
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "unknown driver", yaml: "store:\n  driver: mongo\n"},
		{name: "zero tick", yaml: "auction:\n  tick_period: 0s\n"},
		{name: "window shorter than tick", yaml: "auction:\n  countdown_window: 500ms\n"},
		{name: "not yaml", yaml: "server: [port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.yaml))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoadExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "assets", "auction.yaml"))
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Store.Driver)
	assert.Equal(t, "go/internal/assets/auction_seed.yaml", cfg.Store.Seed)
	assert.Equal(t, 5*time.Second, cfg.Auction.RetryDelay)
}
