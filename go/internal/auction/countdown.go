package auction

// countdown counts whole periods down to zero. Each tick with time left
// reports the remaining seconds and then decrements; the tick that finds
// zero reports expiry.
type countdown struct {
	remaining int
}

func newCountdown(seconds int) *countdown {
	if seconds < 0 {
		seconds = 0
	}
	return &countdown{remaining: seconds}
}

// tick advances the countdown by one period.
func (c *countdown) tick() (secondsLeft int, expired bool) {
	if c.remaining <= 0 {
		return 0, true
	}
	secondsLeft = c.remaining
	c.remaining--
	return secondsLeft, false
}

// left returns the seconds not yet announced.
func (c *countdown) left() int {
	return c.remaining
}
