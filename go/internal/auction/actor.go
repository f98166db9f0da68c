package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/teamauction/go/internal/metrics"
	"github.com/rs/zerolog/log"
)

// groupActor serializes every operation of one group on a single goroutine.
type groupActor struct {
	id    string
	c     *Coordinator
	cmds  chan func(ctx context.Context)
	done  chan struct{}
	phase phase
	pause pauseRequest
}

func newGroupActor(id string, c *Coordinator) *groupActor {
	return &groupActor{
		id:    id,
		c:     c,
		cmds:  make(chan func(ctx context.Context), c.cfg.CommandBuffer),
		done:  make(chan struct{}),
		phase: notStarted{},
	}
}

func (a *groupActor) run(ctx context.Context) {
	defer close(a.done)
	defer func() { a.transition(notStarted{}) }()

	log.Debug().Str("group_id", a.id).Msg("group actor started")

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("group_id", a.id).Msg("group actor shutting down")
			return
		case cmd := <-a.cmds:
			cmd(ctx)
		case <-a.tickC():
			a.onTick(ctx)
		case <-a.resumeC():
			a.onResume(ctx)
		}
	}
}

// tickC is nil unless a countdown is running; receiving from nil blocks forever.
func (a *groupActor) tickC() <-chan time.Time {
	if r, ok := a.phase.(*running); ok {
		return r.ticker.Chan()
	}
	return nil
}

func (a *groupActor) resumeC() <-chan time.Time {
	if p, ok := a.phase.(*paused); ok {
		return p.timer.Chan()
	}
	return nil
}

// transition is the only place the phase changes.
func (a *groupActor) transition(next phase) {
	prev := a.phase
	prev.stop()
	a.phase = next

	wasRunning := prev.name() == PhaseRunning
	isRunning := next.name() == PhaseRunning
	switch {
	case !wasRunning && isRunning:
		metrics.GroupsRunning.Inc()
	case wasRunning && !isRunning:
		metrics.GroupsRunning.Dec()
	}

	if prev.name() != next.name() {
		log.Debug().
			Str("group_id", a.id).
			Str("from", string(prev.name())).
			Str("to", string(next.name())).
			Msg("group phase changed")
	}
}

func (a *groupActor) emit(typ EventType, data any) {
	a.c.broadcaster.Broadcast(NewEvent(a.id, typ, a.c.clock.Now(), data))
}

func (a *groupActor) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.c.cfg.OperationTimeout)
}

// startCountdown installs a fresh countdown for team, replacing any running one.
func (a *groupActor) startCountdown(team Team, window time.Duration) {
	ticker := a.c.clock.NewTicker(a.c.cfg.TickPeriod)
	a.transition(&running{
		team:      team,
		countdown: newCountdown(a.c.cfg.ticks(window)),
		ticker:    ticker,
	})
	metrics.CountdownsStarted.Inc()

	log.Info().
		Str("group_id", a.id).
		Str("team_id", team.ID).
		Str("team_name", team.Name).
		Dur("window", window).
		Msg("countdown started")
}

func (a *groupActor) onTick(ctx context.Context) {
	r, ok := a.phase.(*running)
	if !ok {
		return
	}

	secondsLeft, expired := r.countdown.tick()
	if !expired {
		a.emit(EventCountdownProgress, CountdownProgressPayload{Team: r.team, SecondsLeft: secondsLeft})
		return
	}

	team := r.team
	a.transition(resolving{team: team})
	a.resolve(ctx, team)
}

func (a *groupActor) resolve(ctx context.Context, team Team) {
	opCtx, cancel := a.opContext(ctx)
	res, err := a.c.resolver.Resolve(opCtx, a.id, team)
	cancel()
	if err != nil {
		a.stall(&team, "resolve", err)
		return
	}

	if res.MembersChanged {
		a.emit(EventMemberListUpdate, MemberListPayload{Members: a.c.registry.Members(a.id)})
	}
	a.emit(EventTeamResolved, StatusPayload{
		Message: fmt.Sprintf("Team %s has been processed.", team.Name),
		Team:    &team,
		Status:  res.Status,
	})

	a.advance(ctx)
}

// advance moves the group to its next team, or into a pause window when one
// has been requested.
func (a *groupActor) advance(ctx context.Context) {
	now := a.c.clock.Now()

	if a.pause.armed {
		a.enterPause(ctx, now)
		return
	}

	opCtx, cancel := a.opContext(ctx)
	defer cancel()

	if _, err := a.c.store.UpdatePause(opCtx, PauseUpdate{PauseStatus: false}); err != nil {
		a.stall(nil, "advance", fmt.Errorf("failed to clear pause state: %w", err))
		return
	}

	team, err := a.c.store.NextUnresolvedTeam(opCtx, a.id)
	if errors.Is(err, ErrNotFound) {
		a.transition(finished{})
		a.emit(EventNoTeamFound, StatusPayload{Message: "No Team Found"})
		log.Info().Str("group_id", a.id).Msg("all teams resolved")
		return
	}
	if err != nil {
		a.stall(nil, "advance", fmt.Errorf("failed to select next team: %w", err))
		return
	}

	a.startCountdown(team, a.c.cfg.CountdownWindow)
}

func (a *groupActor) enterPause(ctx context.Context, now time.Time) {
	duration := a.pause.duration
	resumeAt := now.Add(duration)

	opCtx, cancel := a.opContext(ctx)
	settings, err := a.c.store.UpdatePause(opCtx, PauseUpdate{PauseStatus: true, PauseTime: &resumeAt})
	cancel()
	if err != nil {
		a.stall(nil, "pause", fmt.Errorf("failed to persist pause state: %w", err))
		return
	}

	a.pause = pauseRequest{}
	a.transition(&paused{resumeAt: resumeAt, timer: a.c.clock.NewTimer(duration)})
	a.emit(EventAuctionPaused, PausedPayload{
		Message:    "Auction is paused",
		PauseState: settings,
		ResumeAt:   resumeAt,
	})

	log.Info().
		Str("group_id", a.id).
		Dur("duration", duration).
		Time("resume_at", resumeAt).
		Msg("auction paused")
}

func (a *groupActor) onResume(ctx context.Context) {
	if _, ok := a.phase.(*paused); !ok {
		return
	}
	log.Info().Str("group_id", a.id).Msg("pause elapsed, resuming auction")
	a.advance(ctx)
}

// stall parks the group after a persistence failure. Nothing is sent to
// clients; the failure goes to logs, metrics and the internal event stream.
func (a *groupActor) stall(team *Team, stage string, err error) {
	retryAt := a.c.clock.Now().Add(a.c.cfg.RetryDelay)
	a.transition(stalled{retryAt: retryAt})
	metrics.ResolutionFailures.WithLabelValues(stage).Inc()

	ev := log.Error().Err(err).Str("group_id", a.id).Str("stage", stage).Time("retry_at", retryAt)
	if team != nil {
		ev = ev.Str("team_id", team.ID)
	}
	ev.Msg("auction step failed, group stalled")

	a.emit(EventResolutionFailed, ResolutionFailedPayload{
		Team:    team,
		Stage:   stage,
		Error:   err.Error(),
		RetryAt: retryAt,
	})
}

// startIfDue advances a group that has not started (inside the start window)
// or that is stalled and due for a retry. Any other phase is left alone.
func (a *groupActor) startIfDue(ctx context.Context, now time.Time, inWindow bool) {
	switch p := a.phase.(type) {
	case notStarted:
		if inWindow {
			log.Info().Str("group_id", a.id).Msg("auction start time reached")
			a.advance(ctx)
		}
	case stalled:
		if !now.Before(p.retryAt) {
			log.Info().Str("group_id", a.id).Msg("retrying stalled group")
			a.advance(ctx)
		}
	}
}

// restart gives the running team a fresh window after a bid.
func (a *groupActor) restart() bool {
	r, ok := a.phase.(*running)
	if !ok {
		return false
	}
	log.Debug().Str("group_id", a.id).Str("team_id", r.team.ID).Msg("new bid received, restarting countdown")
	a.startCountdown(r.team, a.c.cfg.BidResetWindow)
	metrics.CountdownRestarts.Inc()
	return true
}

func (a *groupActor) snapshot() GroupSnapshot {
	snap := GroupSnapshot{
		GroupID: a.id,
		Phase:   a.phase.name(),
		Members: a.c.registry.Members(a.id),
	}
	if a.pause.armed {
		d := a.pause.duration
		snap.PendingPause = &d
	}
	switch p := a.phase.(type) {
	case *running:
		team := p.team
		snap.Team = &team
		snap.SecondsLeft = p.countdown.left()
	case resolving:
		team := p.team
		snap.Team = &team
	case *paused:
		at := p.resumeAt
		snap.ResumeAt = &at
	case stalled:
		at := p.retryAt
		snap.RetryAt = &at
	}
	return snap
}
