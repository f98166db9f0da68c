package auction

import (
	"context"
	"errors"
	"fmt"

	"github.com/mcdev12/teamauction/go/internal/metrics"
	"github.com/rs/zerolog/log"
)

// Resolution is the outcome of resolving one team.
type Resolution struct {
	Team    Team
	Status  TransactionStatus
	Created bool // false when the team had already been resolved
	Winner  *Participant
	Amount  int64
	// MembersChanged is set when the winner's cached balance in the room was updated.
	MembersChanged bool
}

// BidResolver finalizes a team when its countdown expires.
type BidResolver struct {
	store    Store
	registry *RoomRegistry
}

// NewBidResolver creates a resolver over the given store and registry.
func NewBidResolver(store Store, registry *RoomRegistry) *BidResolver {
	return &BidResolver{store: store, registry: registry}
}

// Resolve settles team in groupID. The highest bid wins when the bidder can
// still cover it; otherwise, or without bids, the team is recorded unsold.
// A winner who is missing or short of funds therefore closes the team as
// unsold instead of leaving it without a transaction, which would put the
// same team up again on the next advance.
// Any persistence error aborts with nothing recorded for the team.
func (r *BidResolver) Resolve(ctx context.Context, groupID string, team Team) (Resolution, error) {
	bid, err := r.store.HighestBid(ctx, groupID, team.ID)
	if errors.Is(err, ErrNotFound) {
		return r.unsold(ctx, groupID, team)
	}
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to query highest bid: %w", err)
	}

	winner, err := r.store.GetParticipant(ctx, bid.ParticipantID)
	if errors.Is(err, ErrNotFound) {
		log.Warn().
			Str("group_id", groupID).
			Str("team_id", team.ID).
			Str("participant_id", bid.ParticipantID).
			Msg("winning bidder no longer exists, recording team unsold")
		return r.unsold(ctx, groupID, team)
	}
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to load winning bidder: %w", err)
	}

	if winner.Amount < bid.Amount {
		log.Info().
			Str("group_id", groupID).
			Str("team_id", team.ID).
			Str("participant_id", winner.ID).
			Int64("balance", winner.Amount).
			Int64("bid", bid.Amount).
			Msg("winning bidder cannot cover bid, recording team unsold")
		return r.unsold(ctx, groupID, team)
	}

	result, err := r.store.RecordSale(ctx, Sale{
		GroupID:       groupID,
		TeamID:        team.ID,
		ParticipantID: winner.ID,
		Amount:        bid.Amount,
	})
	if errors.Is(err, ErrInsufficientBalance) {
		// balance was spent between the read above and the debit
		return r.unsold(ctx, groupID, team)
	}
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to record sale: %w", err)
	}

	res := Resolution{
		Team:    team,
		Status:  StatusSold,
		Created: result.Created,
		Amount:  bid.Amount,
	}
	if !result.Created {
		return res, nil
	}

	winner.Amount = result.Balance
	res.Winner = &winner
	res.MembersChanged = r.registry.UpdateBalance(groupID, winner.ID, result.Balance)
	metrics.TeamsResolved.WithLabelValues(string(StatusSold)).Inc()

	log.Info().
		Str("group_id", groupID).
		Str("team_id", team.ID).
		Str("participant_id", winner.ID).
		Int64("amount", bid.Amount).
		Int64("balance", result.Balance).
		Msg("team sold")

	return res, nil
}

func (r *BidResolver) unsold(ctx context.Context, groupID string, team Team) (Resolution, error) {
	created, err := r.store.RecordUnsold(ctx, groupID, team.ID)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to record unsold team: %w", err)
	}
	if created {
		metrics.TeamsResolved.WithLabelValues(string(StatusUnsold)).Inc()
		log.Info().Str("group_id", groupID).Str("team_id", team.ID).Msg("team unsold")
	}
	return Resolution{Team: team, Status: StatusUnsold, Created: created}, nil
}
