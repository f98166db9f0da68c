package auction

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// PhaseName is the externally visible name of a group phase.
type PhaseName string

const (
	PhaseNotStarted PhaseName = "not_started"
	PhaseRunning    PhaseName = "running"
	PhaseResolving  PhaseName = "resolving"
	PhasePaused     PhaseName = "paused"
	PhaseFinished   PhaseName = "finished"
	PhaseStalled    PhaseName = "stalled"
)

// phase is the tagged per-group state. Only running owns a ticker and only
// paused owns a timer, so a countdown and a pause timer never coexist.
type phase interface {
	name() PhaseName
	// stop releases the clock resources owned by the phase.
	stop()
}

type notStarted struct{}

func (notStarted) name() PhaseName { return PhaseNotStarted }
func (notStarted) stop()           {}

type running struct {
	team      Team
	countdown *countdown
	ticker    clockwork.Ticker
}

func (*running) name() PhaseName { return PhaseRunning }
func (r *running) stop()         { r.ticker.Stop() }

// resolving holds the expired team while its outcome is persisted.
type resolving struct {
	team Team
}

func (resolving) name() PhaseName { return PhaseResolving }
func (resolving) stop()           {}

type paused struct {
	resumeAt time.Time
	timer    clockwork.Timer
}

func (*paused) name() PhaseName { return PhasePaused }
func (p *paused) stop()         { stopAndDrainTimer(p.timer) }

type finished struct{}

func (finished) name() PhaseName { return PhaseFinished }
func (finished) stop()           {}

type stalled struct {
	retryAt time.Time
}

func (stalled) name() PhaseName { return PhaseStalled }
func (stalled) stop()           {}

// pauseRequest is armed by Pause and consumed by the next advance.
type pauseRequest struct {
	armed    bool
	duration time.Duration
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
