package auction

import (
	"context"
	"errors"
	"time"

	"github.com/mcdev12/teamauction/go/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Scheduler is the top-level driver: on every interval it compares the clock
// against the configured auction date and starts idle groups once it arrives.
type Scheduler struct {
	coordinator *Coordinator
	settings    SettingsStore
	clock       Clock
	interval    time.Duration
	tolerance   time.Duration
	timeout     time.Duration
}

// NewScheduler creates a scheduler driving coordinator.
func NewScheduler(coordinator *Coordinator, settings SettingsStore) *Scheduler {
	return &Scheduler{
		coordinator: coordinator,
		settings:    settings,
		clock:       coordinator.clock,
		interval:    coordinator.cfg.SchedulerInterval,
		tolerance:   coordinator.cfg.StartTolerance,
		timeout:     coordinator.cfg.OperationTimeout,
	}
}

// Serve runs the tick loop until ctx is cancelled. A failed tick never stops
// the loop.
func (s *Scheduler) Serve(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", s.interval).Dur("tolerance", s.tolerance).Msg("auction scheduler started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("auction scheduler stopped")
			return ctx.Err()
		case <-ticker.Chan():
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduling pass.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.clock.Now()

	opCtx, cancel := context.WithTimeout(ctx, s.timeout)
	settings, err := s.settings.GetSettings(opCtx)
	cancel()
	if errors.Is(err, ErrNotFound) {
		// no auction date configured yet; stalled groups are still retried
		settings, err = Settings{}, nil
	}
	if err != nil {
		metrics.SchedulerTicks.WithLabelValues("error").Inc()
		log.Error().Err(err).Msg("scheduler failed to read settings")
		return
	}

	inWindow := s.inWindow(now, settings.AuctionDate)
	if err := s.coordinator.StartDue(ctx, now, inWindow); err != nil {
		metrics.SchedulerTicks.WithLabelValues("error").Inc()
		log.Error().Err(err).Bool("in_window", inWindow).Msg("scheduler tick failed")
		return
	}

	if inWindow {
		metrics.SchedulerTicks.WithLabelValues("in_window").Inc()
		log.Debug().Time("auction_date", *settings.AuctionDate).Msg("auction start window open")
		return
	}
	metrics.SchedulerTicks.WithLabelValues("idle").Inc()
}

func (s *Scheduler) inWindow(now time.Time, auctionDate *time.Time) bool {
	if auctionDate == nil {
		return false
	}
	diff := now.Sub(*auctionDate)
	if diff < 0 {
		diff = -diff
	}
	return diff <= s.tolerance
}
