package auction

import "errors"

var (
	// ErrNotFound is returned by stores when a group, team, participant, bid or settings row is missing.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientBalance is returned when a participant cannot cover a bid amount.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidBid is returned for malformed or non-winning bids.
	ErrInvalidBid = errors.New("invalid bid")
	// ErrNotRunning is returned when a bid targets a team that is not under the hammer.
	ErrNotRunning = errors.New("no countdown running for team")
	// ErrGroupActive is returned by Reset while a group is running, resolving or paused.
	ErrGroupActive = errors.New("group is active")
	// ErrClosed is returned once the coordinator has been shut down.
	ErrClosed = errors.New("coordinator closed")
)
