package auction

import "context"

// Participants looks up and reads bidding users.
type Participants interface {
	GetParticipant(ctx context.Context, id string) (Participant, error)
}

// Catalog lists groups and selects teams for auction.
type Catalog interface {
	ListGroups(ctx context.Context) ([]Group, error)
	GetGroup(ctx context.Context, groupID string) (Group, error)
	// NextUnresolvedTeam returns the team of groupID with the lowest random
	// number that has no transaction in that group yet, or ErrNotFound.
	NextUnresolvedTeam(ctx context.Context, groupID string) (Team, error)
	GetTeam(ctx context.Context, groupID, teamID string) (Team, error)
}

// BidLedger stores bids. The coordinator only reads the highest bid at
// resolution time and records bids placed through the REST surface.
type BidLedger interface {
	HighestBid(ctx context.Context, groupID, teamID string) (Bid, error)
	RecordBid(ctx context.Context, bid Bid) (Bid, error)
}

// Transactions persists resolution outcomes. Both record methods are
// idempotent per (team, group) and report whether a row was created.
type Transactions interface {
	RecordUnsold(ctx context.Context, groupID, teamID string) (bool, error)
	// RecordSale debits the winner and records the sold transaction atomically.
	// It returns ErrInsufficientBalance without side effects when the stored
	// balance no longer covers the amount.
	RecordSale(ctx context.Context, sale Sale) (SaleResult, error)
}

// SettingsStore reads and updates the global settings singleton.
type SettingsStore interface {
	GetSettings(ctx context.Context) (Settings, error)
	UpdatePause(ctx context.Context, update PauseUpdate) (Settings, error)
}

// Store is everything the coordinator consumes from persistence.
type Store interface {
	Participants
	Catalog
	BidLedger
	Transactions
	SettingsStore
}
