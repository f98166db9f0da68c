package eventbus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/mcdev12/teamauction/go/internal/auction"
	"github.com/mcdev12/teamauction/go/internal/metrics"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"
)

type Config struct {
	URL             string
	StreamName      string
	SubjectPrefix   string
	MaxReconnects   int
	ReconnectWait   time.Duration
	MaxAge          time.Duration // How long to keep messages
	MaxMsgs         int64         // Max number of messages to keep
	Replicas        int
	DuplicateWindow time.Duration
	QueueSize       int
	PublishTimeout  time.Duration
	// Consecutive publish failures that open the breaker, and how long it
	// stays open before a trial publish.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		URL:             nats.DefaultURL,
		StreamName:      "AUCTION_EVENTS",
		SubjectPrefix:   "auction",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		MaxMsgs:         -1, // No limit
		Replicas:        1,
		DuplicateWindow: 2 * time.Minute,
		QueueSize:       1024,
		PublishTimeout:  5 * time.Second,
		BreakerFailures: 5,
		BreakerTimeout:  30 * time.Second,
	}
}

// Pauser receives pause commands from the bus.
type Pauser interface {
	Pause(ctx context.Context, duration time.Duration) error
}

// Bus publishes every auction event to JetStream and accepts remote pause
// commands on core NATS.
type Bus struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	config  Config
	pauser  Pauser
	queue   chan auction.Event
	breaker *gobreaker.CircuitBreaker[*jetstream.PubAck]
}

// Envelope is the JSON body of every published event.
type Envelope struct {
	EventID   string    `json:"eventId"`
	EventType string    `json:"eventType"`
	GroupID   string    `json:"groupId"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// PauseCommand is the body accepted on <prefix>.commands.pause.
type PauseCommand struct {
	Duration float64 `json:"duration"` // minutes
}

// Connect dials NATS and makes sure the event stream exists.
func Connect(ctx context.Context, cfg Config, pauser Pauser) (*Bus, error) {
	opts := []nats.Option{
		nats.Name("teamauction"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	b := &Bus{
		nc:      nc,
		js:      js,
		config:  cfg,
		pauser:  pauser,
		queue:   make(chan auction.Event, cfg.QueueSize),
		breaker: newBreaker(cfg),
	}
	if err := b.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}
	return b, nil
}

// SetPauser attaches the pause command target.
func (b *Bus) SetPauser(p Pauser) {
	b.pauser = p
}

func (b *Bus) ensureStream(ctx context.Context) error {
	sc := jetstream.StreamConfig{
		Name:        b.config.StreamName,
		Description: "Auction events",
		Subjects:    []string{b.config.SubjectPrefix + ".events.>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      b.config.MaxAge,
		MaxMsgs:     b.config.MaxMsgs,
		Storage:     jetstream.FileStorage,
		Replicas:    b.config.Replicas,
		Duplicates:  b.config.DuplicateWindow,
	}

	if _, err := b.js.CreateOrUpdateStream(ctx, sc); err != nil {
		return fmt.Errorf("create or update stream: %w", err)
	}
	log.Info().Str("stream", sc.Name).Strs("subjects", sc.Subjects).Msg("JetStream stream ready")
	return nil
}

// Broadcast implements auction.Broadcaster. Events are queued and published
// by Serve; a full queue drops the event.
func (b *Bus) Broadcast(event auction.Event) {
	select {
	case b.queue <- event:
	default:
		log.Warn().
			Str("group_id", event.GroupID).
			Str("event_type", string(event.Type)).
			Msg("event bus queue full, dropping event")
	}
}

// Serve subscribes to pause commands and publishes queued events until ctx
// is cancelled.
func (b *Bus) Serve(ctx context.Context) error {
	sub, err := b.nc.Subscribe(b.CommandSubject("pause"), func(msg *nats.Msg) {
		b.handlePause(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribe to pause commands: %w", err)
	}
	defer sub.Unsubscribe()

	log.Info().Str("subject", sub.Subject).Msg("event bus started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event bus stopped")
			return ctx.Err()
		case event := <-b.queue:
			b.publishGuarded(ctx, event)
		}
	}
}

// newBreaker opens after BreakerFailures consecutive publish failures. While
// open, events are dropped without contacting JetStream.
func newBreaker(cfg Config) *gobreaker.CircuitBreaker[*jetstream.PubAck] {
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	return gobreaker.NewCircuitBreaker[*jetstream.PubAck](gobreaker.Settings{
		Name:        "jetstream-publish",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("event bus breaker state changed")
		},
	})
}

func (b *Bus) publishGuarded(ctx context.Context, event auction.Event) {
	_, err := b.breaker.Execute(func() (*jetstream.PubAck, error) {
		return b.publish(ctx, event)
	})
	switch {
	case err == nil:
		metrics.EventBusPublishes.WithLabelValues("published").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.EventBusPublishes.WithLabelValues("dropped").Inc()
		log.Debug().
			Str("group_id", event.GroupID).
			Str("event_type", string(event.Type)).
			Msg("event bus breaker open, dropping event")
	default:
		metrics.EventBusPublishes.WithLabelValues("failed").Inc()
		log.Error().
			Err(err).
			Str("group_id", event.GroupID).
			Str("event_type", string(event.Type)).
			Msg("failed to publish event")
	}
}

func (b *Bus) publish(ctx context.Context, event auction.Event) (*jetstream.PubAck, error) {
	data, err := json.Marshal(Envelope{
		EventID:   event.ID,
		EventType: string(event.Type),
		GroupID:   event.GroupID,
		Timestamp: event.Timestamp.UTC(),
		Payload:   event.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}

	pubCtx, cancel := context.WithTimeout(ctx, b.config.PublishTimeout)
	defer cancel()

	subject := b.EventSubject(event.GroupID, event.Type)
	ack, err := b.js.PublishMsg(pubCtx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{string(event.Type)},
			"Group-ID":   []string{event.GroupID},
			"Event-ID":   []string{event.ID},
		},
	},
		jetstream.WithMsgID(event.ID),
		jetstream.WithExpectStream(b.config.StreamName),
	)
	if err != nil {
		return nil, fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", subject).
		Str("event_id", event.ID).
		Uint64("sequence", ack.Sequence).
		Msg("published to JetStream")
	return ack, nil
}

func (b *Bus) handlePause(ctx context.Context, msg *nats.Msg) {
	var cmd PauseCommand
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			log.Warn().Err(err).Msg("invalid pause command")
			b.reply(msg, err)
			return
		}
	}
	if b.pauser == nil {
		b.reply(msg, fmt.Errorf("no pause handler attached"))
		return
	}

	err := b.pauser.Pause(ctx, time.Duration(cmd.Duration*float64(time.Minute)))
	if err != nil {
		log.Error().Err(err).Msg("pause command failed")
	} else {
		log.Info().Float64("minutes", cmd.Duration).Msg("pause command accepted")
	}
	b.reply(msg, err)
}

func (b *Bus) reply(msg *nats.Msg, err error) {
	if msg.Reply == "" {
		return
	}
	body := map[string]any{"ok": err == nil}
	if err != nil {
		body["error"] = err.Error()
	}
	data, _ := json.Marshal(body)
	if err := msg.Respond(data); err != nil {
		log.Warn().Err(err).Msg("failed to reply to command")
	}
}

// EventSubject is <prefix>.events.<groupId>.<eventType>.
func (b *Bus) EventSubject(groupID string, typ auction.EventType) string {
	return fmt.Sprintf("%s.events.%s.%s", b.config.SubjectPrefix, subjectToken(groupID), typ)
}

// CommandSubject is <prefix>.commands.<name>.
func (b *Bus) CommandSubject(name string) string {
	return fmt.Sprintf("%s.commands.%s", b.config.SubjectPrefix, name)
}

func (b *Bus) Close() {
	if b.nc != nil {
		b.nc.Close()
	}
}

var tokenReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")

// subjectToken makes an id safe to use as a single subject token.
func subjectToken(id string) string {
	if id == "" {
		return "_"
	}
	return tokenReplacer.Replace(id)
}
