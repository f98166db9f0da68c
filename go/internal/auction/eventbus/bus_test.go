package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/mcdev12/teamauction/go/internal/auction"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runServer(t *testing.T) string {
	t.Helper()
	ns, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	})
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		ns.Shutdown()
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns.ClientURL()
}

type recordingPauser struct {
	mu        sync.Mutex
	durations []time.Duration
}

func (p *recordingPauser) Pause(_ context.Context, d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.durations = append(p.durations, d)
	return nil
}

func startBus(t *testing.T, url string, pauser Pauser) *Bus {
	t.Helper()
	cfg := DefaultConfig()
	cfg.URL = url

	ctx, cancel := context.WithCancel(context.Background())
	bus, err := Connect(ctx, cfg, pauser)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		bus.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		bus.Close()
	})
	return bus
}

func TestBusPublishesEnvelope(t *testing.T) {
	url := runServer(t)
	bus := startBus(t, url, nil)

	nc, err := nats.Connect(url)
	require.NoError(t, err)
	defer nc.Close()

	sub, err := nc.SubscribeSync("auction.events.>")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	team := auction.Team{ID: "duke", Name: "Duke"}
	event := auction.NewEvent("g.1", auction.EventResolutionFailed, at, auction.ResolutionFailedPayload{
		Team: &team, Stage: "resolve", Error: "connection reset", RetryAt: at.Add(5 * time.Second),
	})
	bus.Broadcast(event)

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "auction.events.g_1.resolution-failed", msg.Subject)
	assert.Equal(t, event.ID, msg.Header.Get("Event-ID"))

	var env struct {
		EventID   string          `json:"eventId"`
		EventType string          `json:"eventType"`
		GroupID   string          `json:"groupId"`
		Timestamp time.Time       `json:"timestamp"`
		Payload   json.RawMessage `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &env))
	assert.Equal(t, event.ID, env.EventID)
	assert.Equal(t, "resolution-failed", env.EventType)
	assert.Equal(t, "g.1", env.GroupID)
	assert.True(t, env.Timestamp.Equal(at))
	assert.Contains(t, string(env.Payload), `"stage":"resolve"`)
}

func TestBusPauseCommand(t *testing.T) {
	url := runServer(t)
	pauser := &recordingPauser{}
	bus := startBus(t, url, pauser)

	nc, err := nats.Connect(url)
	require.NoError(t, err)
	defer nc.Close()

	var reply *nats.Msg
	require.Eventually(t, func() bool {
		reply, err = nc.Request(bus.CommandSubject("pause"), []byte(`{"duration":2}`), time.Second)
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)
	assert.JSONEq(t, `{"ok":true}`, string(reply.Data))

	reply, err = nc.Request(bus.CommandSubject("pause"), []byte(`{oops`), time.Second)
	require.NoError(t, err)
	assert.Contains(t, string(reply.Data), `"ok":false`)

	pauser.mu.Lock()
	defer pauser.mu.Unlock()
	assert.Equal(t, []time.Duration{2 * time.Minute}, pauser.durations)
}

func TestSubjectToken(t *testing.T) {
	assert.Equal(t, "_", subjectToken(""))
	assert.Equal(t, "group_a_b", subjectToken("group.a b"))
	assert.Equal(t, "plain", subjectToken("plain"))
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BreakerFailures = 3
	cfg.BreakerTimeout = time.Hour
	breaker := newBreaker(cfg)

	errPublish := errors.New("no responders")
	for i := 0; i < 3; i++ {
		_, err := breaker.Execute(func() (*jetstream.PubAck, error) { return nil, errPublish })
		require.ErrorIs(t, err, errPublish)
	}

	called := false
	_, err := breaker.Execute(func() (*jetstream.PubAck, error) {
		called = true
		return &jetstream.PubAck{}, nil
	})
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.False(t, called)
}
