package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/mcdev12/teamauction/go/internal/auction"
	"github.com/mcdev12/teamauction/go/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSeed = `
groups:
  - id: g1
    name: Office
teams:
  - id: duke
    group_id: g1
    team_name: Duke
    random_number: 1
participants:
  - id: alice
    first_name: Alice
    amount: 100
`

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testSeed), 0o600))

	cfg := config.Default()
	cfg.Store.Driver = config.StoreMemory
	cfg.Store.Seed = path
	return cfg
}

func TestSetupStoreMemorySeed(t *testing.T) {
	ctx := context.Background()
	store, closeStore, err := setupStore(ctx, memoryConfig(t))
	require.NoError(t, err)
	defer closeStore()

	team, err := store.NextUnresolvedTeam(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "duke", team.ID)

	p, err := store.GetParticipant(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, int64(100), p.Amount)
}

func TestSetupStoreBadSeed(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Seed = filepath.Join(t.TempDir(), "missing.yaml")

	_, _, err := setupStore(context.Background(), cfg)
	require.Error(t, err)
}

func TestServerRoutes(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig(t)

	store, closeStore, err := setupStore(ctx, cfg)
	require.NoError(t, err)
	defer closeStore()

	services, err := setupServices(ctx, cfg, store)
	require.NoError(t, err)
	defer services.Close()
	assert.Nil(t, services.Bus)

	ts := httptest.NewServer(setupServer(cfg, services).Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "auction_websocket_connections_active")

	resp, err = http.Get(ts.URL + "/api/groups/g1/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snapshot auction.GroupSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snapshot))
	assert.Equal(t, "g1", snapshot.GroupID)
}

func TestHTTPServerServiceShutsDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	svc := &httpServerService{
		server:          &http.Server{Addr: addr, Handler: http.NotFoundHandler()},
		shutdownTimeout: time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("http server did not shut down")
	}
	assert.Equal(t, "http-server", svc.String())
}
