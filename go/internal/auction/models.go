package auction

import (
	"encoding/json"
	"time"
)

// Group is an auction room. Groups are administered outside the coordinator.
type Group struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Team is an auctionable unit of a group. RandomNumber fixes the order in
// which unresolved teams are put up for bidding (lowest first).
type Team struct {
	ID           string `json:"id"`
	GroupID      string `json:"group_id"`
	Name         string `json:"team_name"`
	RandomNumber int64  `json:"random_number"`
}

// Participant is a bidding user. Amount is the balance that winning bids draw down.
type Participant struct {
	ID        string          `json:"id"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	Email     string          `json:"email"`
	Amount    int64           `json:"amount"`
	Profile   json.RawMessage `json:"profile,omitempty"`
}

// Bid is a recorded offer by a participant for a team within a group.
type Bid struct {
	ID            string    `json:"id"`
	GroupID       string    `json:"group_id"`
	TeamID        string    `json:"team_id"`
	ParticipantID string    `json:"participant_id"`
	Amount        int64     `json:"amount"`
	CreatedAt     time.Time `json:"created_at"`
}

// TransactionStatus is the outcome of a resolved team.
type TransactionStatus string

const (
	StatusSold   TransactionStatus = "sold"
	StatusUnsold TransactionStatus = "unsold"
)

// Transaction records the outcome of a team in a group. At most one exists per (team, group).
type Transaction struct {
	ID            string            `json:"id"`
	GroupID       string            `json:"group_id"`
	TeamID        string            `json:"team_id"`
	ParticipantID string            `json:"participant_id,omitempty"`
	Amount        int64             `json:"amount,omitempty"`
	Status        TransactionStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Settings is the global singleton driving the auction start and pause state.
type Settings struct {
	AuctionDate *time.Time `json:"auction_date,omitempty"`
	PauseTime   *time.Time `json:"pause_time,omitempty"`
	PauseStatus bool       `json:"pause_status"`
}

// PauseUpdate is written to Settings whenever the pause state changes.
// A nil PauseTime leaves the stored value untouched.
type PauseUpdate struct {
	PauseStatus bool
	PauseTime   *time.Time
}

// Sale describes a winning bid to be settled against the winner's balance.
type Sale struct {
	GroupID       string
	TeamID        string
	ParticipantID string
	Amount        int64
}

// SaleResult reports the outcome of settling a Sale.
type SaleResult struct {
	Created bool  // false when the team already had a transaction
	Balance int64 // winner's balance after the debit
}
