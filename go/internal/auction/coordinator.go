package auction

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) clockwork.Ticker
	NewTimer(d time.Duration) clockwork.Timer
}

// GroupSnapshot is a point-in-time view of a group.
type GroupSnapshot struct {
	GroupID      string         `json:"group_id"`
	Phase        PhaseName      `json:"phase"`
	Team         *Team          `json:"team,omitempty"`
	SecondsLeft  int            `json:"seconds_left"`
	ResumeAt     *time.Time     `json:"resume_at,omitempty"`
	RetryAt      *time.Time     `json:"retry_at,omitempty"`
	PendingPause *time.Duration `json:"pending_pause,omitempty"`
	Members      []Participant  `json:"members"`
}

// BidRequest is a bid placed through the REST surface.
type BidRequest struct {
	GroupID       string `json:"group_id"`
	TeamID        string `json:"teamId"`
	ParticipantID string `json:"participantId"`
	Amount        int64  `json:"amount"`
}

// Coordinator owns the room registry and one actor per group. Operations on
// a group run one at a time on its actor; groups proceed independently.
type Coordinator struct {
	store       Store
	broadcaster Broadcaster
	clock       Clock
	cfg         Config
	registry    *RoomRegistry
	resolver    *BidResolver

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	actors map[string]*groupActor
	closed bool
}

// NewCoordinator creates a coordinator. A nil clock means the real clock.
func NewCoordinator(store Store, broadcaster Broadcaster, clock Clock, cfg Config) *Coordinator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if broadcaster == nil {
		broadcaster = Broadcasters{}
	}
	registry := NewRoomRegistry()
	ctx, cancel := context.WithCancel(context.Background())

	return &Coordinator{
		store:       store,
		broadcaster: broadcaster,
		clock:       clock,
		cfg:         cfg.withDefaults(),
		registry:    registry,
		resolver:    NewBidResolver(store, registry),
		ctx:         ctx,
		cancel:      cancel,
		actors:      make(map[string]*groupActor),
	}
}

// Registry exposes the room registry for read-only callers.
func (c *Coordinator) Registry() *RoomRegistry {
	return c.registry
}

// Serve blocks until ctx is cancelled and then stops every group actor.
func (c *Coordinator) Serve(ctx context.Context) error {
	log.Info().Msg("auction coordinator started")
	select {
	case <-ctx.Done():
	case <-c.ctx.Done():
	}
	c.Close()
	log.Info().Msg("auction coordinator stopped")
	return ctx.Err()
}

// Close stops all actors and waits for them. In-flight countdowns are dropped.
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}

// actor returns the group's actor, starting one on first use. Only groups
// present in the store get an actor; other ids return ErrNotFound.
func (c *Coordinator) actor(ctx context.Context, groupID string) (*groupActor, error) {
	if a, ok, err := c.existingActor(groupID); ok || err != nil {
		return a, err
	}

	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OperationTimeout)
	_, err := c.store.GetGroup(opCtx, groupID)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to look up group: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if a, ok := c.actors[groupID]; ok {
		return a, nil
	}

	a := newGroupActor(groupID, c)
	c.actors[groupID] = a
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		a.run(c.ctx)
	}()
	return a, nil
}

func (c *Coordinator) existingActor(groupID string) (*groupActor, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, false, ErrClosed
	}
	a, ok := c.actors[groupID]
	return a, ok, nil
}

func (c *Coordinator) knownGroups() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.actors))
	for id := range c.actors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// do runs fn on the group's actor and waits for it to finish.
func (c *Coordinator) do(ctx context.Context, groupID string, fn func(ctx context.Context, a *groupActor)) error {
	a, err := c.actor(ctx, groupID)
	if err != nil {
		return err
	}

	finished := make(chan struct{})
	cmd := func(actx context.Context) {
		defer close(finished)
		fn(actx, a)
	}

	select {
	case a.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-a.done:
		return ErrClosed
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-a.done:
		return ErrClosed
	}
}

// send queues fn on the group's actor without waiting for it to run.
func (c *Coordinator) send(ctx context.Context, groupID string, fn func(ctx context.Context, a *groupActor)) error {
	a, err := c.actor(ctx, groupID)
	if err != nil {
		return err
	}
	select {
	case a.cmds <- func(actx context.Context) { fn(actx, a) }:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-a.done:
		return ErrClosed
	}
}

// Join registers connID for participantID in groupID and broadcasts the
// updated member list. A participant lookup miss returns ErrNotFound and
// changes nothing.
func (c *Coordinator) Join(ctx context.Context, groupID, participantID, connID string) error {
	if groupID == "" || participantID == "" {
		return fmt.Errorf("%w: group and participant are required", ErrNotFound)
	}

	var joinErr error
	err := c.do(ctx, groupID, func(actx context.Context, a *groupActor) {
		opCtx, cancel := a.opContext(actx)
		defer cancel()

		p, err := c.store.GetParticipant(opCtx, participantID)
		if err != nil {
			joinErr = fmt.Errorf("failed to look up participant %s: %w", participantID, err)
			return
		}
		members := c.registry.Join(groupID, p, connID, c.clock.Now())
		a.emit(EventMemberListUpdate, MemberListPayload{Members: members})

		log.Info().
			Str("group_id", groupID).
			Str("participant_id", participantID).
			Str("connection_id", connID).
			Int("members", len(members)).
			Msg("participant joined group")
	})
	if err != nil {
		return err
	}
	return joinErr
}

// Leave removes connID from every group it joined and broadcasts the
// resulting member lists.
func (c *Coordinator) Leave(ctx context.Context, connID string) {
	for _, groupID := range c.registry.GroupsOf(connID) {
		err := c.do(ctx, groupID, func(_ context.Context, a *groupActor) {
			d, ok := c.registry.LeaveGroup(a.id, connID)
			if !ok {
				return
			}
			a.emit(EventMemberListUpdate, MemberListPayload{Members: d.Members})
			log.Info().
				Str("group_id", a.id).
				Str("participant_id", d.ParticipantID).
				Str("connection_id", connID).
				Bool("removed", d.Removed).
				Msg("connection left group")
		})
		if err != nil {
			log.Warn().Err(err).Str("group_id", groupID).Str("connection_id", connID).Msg("failed to process leave")
		}
	}
}

// NewBid relays a client bid to the group and, when a countdown is running,
// restarts it with the bid reset window.
func (c *Coordinator) NewBid(ctx context.Context, groupID string, payload any) error {
	return c.do(ctx, groupID, func(_ context.Context, a *groupActor) {
		a.restart()
		a.emit(EventBidBroadcast, BidBroadcastPayload{BidPayload: payload})
	})
}

// PlaceBid validates and records a bid on the running team, then behaves
// like NewBid.
func (c *Coordinator) PlaceBid(ctx context.Context, req BidRequest) (Bid, error) {
	if req.GroupID == "" || req.TeamID == "" || req.ParticipantID == "" {
		return Bid{}, fmt.Errorf("%w: group, team and participant are required", ErrInvalidBid)
	}
	if req.Amount <= 0 {
		return Bid{}, fmt.Errorf("%w: amount must be positive", ErrInvalidBid)
	}

	var (
		placed Bid
		bidErr error
	)
	err := c.do(ctx, req.GroupID, func(actx context.Context, a *groupActor) {
		r, ok := a.phase.(*running)
		if !ok || r.team.ID != req.TeamID {
			bidErr = ErrNotRunning
			return
		}

		opCtx, cancel := a.opContext(actx)
		defer cancel()

		p, err := c.store.GetParticipant(opCtx, req.ParticipantID)
		if err != nil {
			bidErr = fmt.Errorf("failed to look up participant: %w", err)
			return
		}
		if p.Amount < req.Amount {
			bidErr = fmt.Errorf("%w: balance %d, bid %d", ErrInsufficientBalance, p.Amount, req.Amount)
			return
		}

		highest, err := c.store.HighestBid(opCtx, req.GroupID, req.TeamID)
		switch {
		case err == nil && req.Amount <= highest.Amount:
			bidErr = fmt.Errorf("%w: current highest bid is %d", ErrInvalidBid, highest.Amount)
			return
		case err != nil && !errors.Is(err, ErrNotFound):
			bidErr = fmt.Errorf("failed to query highest bid: %w", err)
			return
		}

		placed, err = c.store.RecordBid(opCtx, Bid{
			GroupID:       req.GroupID,
			TeamID:        req.TeamID,
			ParticipantID: req.ParticipantID,
			Amount:        req.Amount,
			CreatedAt:     c.clock.Now(),
		})
		if err != nil {
			bidErr = fmt.Errorf("failed to record bid: %w", err)
			return
		}

		a.restart()
		a.emit(EventBidBroadcast, BidBroadcastPayload{BidPayload: placed})
	})
	if err != nil {
		return Bid{}, err
	}
	return placed, bidErr
}

// Pause arms a pause of duration on every group. It takes effect when the
// group next advances. Durations below the configured minimum are raised to it.
func (c *Coordinator) Pause(ctx context.Context, duration time.Duration) error {
	if duration < c.cfg.MinPause {
		duration = c.cfg.MinPause
	}

	opCtx, cancel := context.WithTimeout(ctx, c.cfg.OperationTimeout)
	groups, err := c.store.ListGroups(opCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("failed to list groups: %w", err)
	}

	for _, g := range groups {
		err := c.do(ctx, g.ID, func(_ context.Context, a *groupActor) {
			a.pause = pauseRequest{armed: true, duration: duration}
		})
		if err != nil {
			return fmt.Errorf("failed to arm pause for group %s: %w", g.ID, err)
		}
	}

	log.Info().Int("groups", len(groups)).Dur("duration", duration).Msg("pause requested")
	return nil
}

// StartDue is called by the scheduler on every tick. Inside the start window
// every listed group that has not started is advanced; stalled groups are
// retried once their retry time has passed. Groups with a running countdown
// are never touched.
func (c *Coordinator) StartDue(ctx context.Context, now time.Time, inWindow bool) error {
	groupIDs := c.knownGroups()
	if inWindow {
		opCtx, cancel := context.WithTimeout(ctx, c.cfg.OperationTimeout)
		groups, err := c.store.ListGroups(opCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("failed to list groups: %w", err)
		}
		groupIDs = groupIDs[:0]
		for _, g := range groups {
			groupIDs = append(groupIDs, g.ID)
		}
	}

	for _, id := range groupIDs {
		err := c.send(ctx, id, func(actx context.Context, a *groupActor) {
			a.startIfDue(actx, now, inWindow)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Reset returns a finished, stalled or not-started group to not-started and
// clears any pending pause. Running, resolving and paused groups are refused.
func (c *Coordinator) Reset(ctx context.Context, groupID string) error {
	var resetErr error
	err := c.do(ctx, groupID, func(_ context.Context, a *groupActor) {
		switch a.phase.(type) {
		case *running, resolving, *paused:
			resetErr = ErrGroupActive
			return
		}
		a.pause = pauseRequest{}
		a.transition(notStarted{})
		log.Info().Str("group_id", groupID).Msg("group reset")
	})
	if err != nil {
		return err
	}
	return resetErr
}

// Snapshot returns the current state of a group.
func (c *Coordinator) Snapshot(ctx context.Context, groupID string) (GroupSnapshot, error) {
	var snap GroupSnapshot
	err := c.do(ctx, groupID, func(_ context.Context, a *groupActor) {
		snap = a.snapshot()
	})
	return snap, err
}
