package gateway

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/teamauction/go/internal/auction"
	"github.com/mcdev12/teamauction/go/internal/auction/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	svc    *Service
	coord  *auction.Coordinator
	store  *memstore.Store
	server *httptest.Server
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	store := memstore.New(nil)
	require.NoError(t, store.Apply(memstore.Seed{
		Groups: []auction.Group{{ID: "g1", Name: "Office"}},
		Teams:  []memstore.SeedTeam{{ID: "duke", GroupID: "g1", Name: "Duke", RandomNumber: 1}},
		Participants: []memstore.SeedParticipant{
			{ID: "alice", FirstName: "Alice", Amount: 100},
			{ID: "bob", FirstName: "Bob", Amount: 100},
		},
	}))

	svc := NewService(cfg)
	coord := auction.NewCoordinator(store, svc, clockwork.NewFakeClock(), auction.DefaultConfig())
	svc.Bind(coord)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.Serve(ctx)
	}()

	mux := http.NewServeMux()
	svc.RegisterRoutes(mux)
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		server.Close()
		cancel()
		<-done
		coord.Close()
	})
	return &testEnv{svc: svc, coord: coord, store: store, server: server}
}

type received struct {
	Type    string          `json:"type"`
	GroupID string          `json:"groupId"`
	Data    json.RawMessage `json:"data"`
}

func (e *testEnv) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(InboundMessage{Type: typ, Data: raw}))
}

func read(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg received
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func readMembers(t *testing.T, conn *websocket.Conn) []string {
	t.Helper()
	msg := read(t, conn)
	require.Equal(t, string(auction.EventMemberListUpdate), msg.Type)

	var payload struct {
		Members []struct {
			ID string `json:"id"`
		} `json:"members"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	ids := make([]string, 0, len(payload.Members))
	for _, m := range payload.Members {
		ids = append(ids, m.ID)
	}
	return ids
}

func TestJoinRoomBroadcastsMemberList(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	alice := env.dial(t)
	send(t, alice, MessageJoinRoom, JoinRoomData{ParticipantID: "alice", GroupID: "g1"})
	assert.Equal(t, []string{"alice"}, readMembers(t, alice))

	bob := env.dial(t)
	send(t, bob, MessageJoinRoom, JoinRoomData{ParticipantID: "bob", GroupID: "g1"})
	assert.Equal(t, []string{"alice", "bob"}, readMembers(t, bob))
	assert.Equal(t, []string{"alice", "bob"}, readMembers(t, alice))

	stats := env.svc.Stats()
	assert.Equal(t, 2, stats.TotalConnections)
	assert.Equal(t, 2, stats.GroupConnections["g1"])

	require.NoError(t, alice.Close())
	assert.Equal(t, []string{"bob"}, readMembers(t, bob))
}

func TestJoinRoomUnknownParticipant(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	conn := env.dial(t)
	send(t, conn, MessageJoinRoom, JoinRoomData{ParticipantID: "mallory", GroupID: "g1"})

	msg := read(t, conn)
	assert.Equal(t, MessageError, msg.Type)
	assert.Zero(t, env.svc.Stats().GroupConnections["g1"])
}

func TestFailedRejoinKeepsSubscription(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	alice := env.dial(t)
	send(t, alice, MessageJoinRoom, JoinRoomData{ParticipantID: "alice", GroupID: "g1"})
	assert.Equal(t, []string{"alice"}, readMembers(t, alice))

	send(t, alice, MessageJoinRoom, JoinRoomData{ParticipantID: "mallory", GroupID: "g1"})
	assert.Equal(t, MessageError, read(t, alice).Type)
	assert.Equal(t, 1, env.svc.Stats().GroupConnections["g1"])

	bob := env.dial(t)
	send(t, bob, MessageJoinRoom, JoinRoomData{ParticipantID: "bob", GroupID: "g1"})
	assert.Equal(t, []string{"alice", "bob"}, readMembers(t, bob))
	assert.Equal(t, []string{"alice", "bob"}, readMembers(t, alice), "alice still receives group broadcasts")
}

func TestNewBidIsRelayed(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	conn := env.dial(t)
	send(t, conn, MessageJoinRoom, JoinRoomData{ParticipantID: "alice", GroupID: "g1"})
	readMembers(t, conn)

	send(t, conn, MessageNewBid, map[string]any{
		"groupId":    "g1",
		"bidPayload": map[string]any{"teamId": "duke", "amount": 15},
	})
	msg := read(t, conn)
	require.Equal(t, string(auction.EventBidBroadcast), msg.Type)
	assert.Equal(t, "g1", msg.GroupID)
	assert.JSONEq(t, `{"bidPayload":{"teamId":"duke","amount":15}}`, string(msg.Data))
}

func TestInternalEventsStayOffConnections(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())

	conn := env.dial(t)
	send(t, conn, MessageJoinRoom, JoinRoomData{ParticipantID: "alice", GroupID: "g1"})
	readMembers(t, conn)

	now := time.Now()
	env.svc.Broadcast(auction.NewEvent("g1", auction.EventResolutionFailed, now, auction.ResolutionFailedPayload{Stage: "resolve"}))
	env.svc.Broadcast(auction.NewEvent("g1", auction.EventNoTeamFound, now, auction.StatusPayload{Message: "No Team Found"}))

	msg := read(t, conn)
	assert.Equal(t, string(auction.EventNoTeamFound), msg.Type)
}

func TestMalformedAndUnknownMessages(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	conn := env.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	assert.Equal(t, MessageError, read(t, conn).Type)

	send(t, conn, "shout", map[string]string{})
	assert.Equal(t, MessageError, read(t, conn).Type)

	send(t, conn, MessageNewBid, map[string]string{})
	assert.Equal(t, MessageError, read(t, conn).Type)
}

func TestInboundRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ConnectionConfig.MessagesPerSecond = 0.001
	cfg.ConnectionConfig.MessageBurst = 1
	env := newTestEnv(t, cfg)

	conn := env.dial(t)
	send(t, conn, MessageJoinRoom, JoinRoomData{ParticipantID: "alice", GroupID: "g1"})
	readMembers(t, conn)

	send(t, conn, MessageJoinRoom, JoinRoomData{ParticipantID: "alice", GroupID: "g1"})
	msg := read(t, conn)
	require.Equal(t, MessageError, msg.Type)
	assert.Contains(t, string(msg.Data), "rate limit exceeded")
}

func TestRESTRoutes(t *testing.T) {
	env := newTestEnv(t, DefaultConfig())
	client := env.server.Client()

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "group state",
			method:     http.MethodGet,
			path:       "/api/groups/g1/state",
			wantStatus: http.StatusOK,
			wantBody:   `"phase":"not_started"`,
		},
		{
			name:       "bid without running countdown",
			method:     http.MethodPost,
			path:       "/api/groups/g1/bids",
			body:       `{"participantId":"alice","teamId":"duke","amount":10}`,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "bid with bad body",
			method:     http.MethodPost,
			path:       "/api/groups/g1/bids",
			body:       `{`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "reset idle group",
			method:     http.MethodPost,
			path:       "/api/groups/g1/reset",
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "pause",
			method:     http.MethodPost,
			path:       "/api/auction/pause",
			body:       `{"duration":5}`,
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "stats",
			method:     http.MethodGet,
			path:       "/ws/stats",
			wantStatus: http.StatusOK,
			wantBody:   `"total_connections":0`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, env.server.URL+tt.path, bytes.NewBufferString(tt.body))
			require.NoError(t, err)
			resp, err := client.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantBody != "" {
				var buf bytes.Buffer
				_, err := buf.ReadFrom(resp.Body)
				require.NoError(t, err)
				assert.Contains(t, buf.String(), tt.wantBody)
			}
		})
	}

	snap, err := env.coord.Snapshot(context.Background(), "g1")
	require.NoError(t, err)
	require.NotNil(t, snap.PendingPause)
	assert.Equal(t, 5*time.Minute, *snap.PendingPause)
}
