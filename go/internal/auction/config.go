package auction

import "time"

// Config holds the timing knobs of the coordinator and scheduler.
type Config struct {
	CountdownWindow   time.Duration // window given to a freshly selected team
	BidResetWindow    time.Duration // window restored by each new bid
	TickPeriod        time.Duration // countdown progress period
	SchedulerInterval time.Duration
	StartTolerance    time.Duration // |now - auctionDate| that starts idle groups
	OperationTimeout  time.Duration // per persistence step
	RetryDelay        time.Duration // wait before a stalled group is advanced again
	MinPause          time.Duration
	CommandBuffer     int
}

// DefaultConfig returns the production timing.
func DefaultConfig() Config {
	return Config{
		CountdownWindow:   20 * time.Second,
		BidResetWindow:    20 * time.Second,
		TickPeriod:        time.Second,
		SchedulerInterval: time.Second,
		StartTolerance:    time.Second,
		OperationTimeout:  10 * time.Second,
		RetryDelay:        5 * time.Second,
		MinPause:          time.Minute,
		CommandBuffer:     64,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CountdownWindow <= 0 {
		c.CountdownWindow = d.CountdownWindow
	}
	if c.BidResetWindow <= 0 {
		c.BidResetWindow = d.BidResetWindow
	}
	if c.TickPeriod <= 0 {
		c.TickPeriod = d.TickPeriod
	}
	if c.SchedulerInterval <= 0 {
		c.SchedulerInterval = d.SchedulerInterval
	}
	if c.StartTolerance < 0 {
		c.StartTolerance = d.StartTolerance
	}
	if c.OperationTimeout <= 0 {
		c.OperationTimeout = d.OperationTimeout
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.MinPause <= 0 {
		c.MinPause = d.MinPause
	}
	if c.CommandBuffer <= 0 {
		c.CommandBuffer = d.CommandBuffer
	}
	return c
}

// ticks converts a window into countdown periods.
func (c Config) ticks(window time.Duration) int {
	return int(window / c.TickPeriod)
}
