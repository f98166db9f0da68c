// Package memstore is an in-memory auction.Store used for local runs and tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/teamauction/go/internal/auction"
)

type txKey struct {
	groupID string
	teamID  string
}

// Store keeps groups, teams, participants, bids, transactions and settings in
// maps guarded by one mutex. Every method is safe for concurrent use.
type Store struct {
	mu           sync.Mutex
	now          func() time.Time
	groups       map[string]auction.Group
	teams        map[string]auction.Team
	participants map[string]auction.Participant
	bids         map[txKey][]auction.Bid
	transactions map[txKey]auction.Transaction
	settings     auction.Settings
}

// New creates an empty store. A nil now uses time.Now.
func New(now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		now:          now,
		groups:       make(map[string]auction.Group),
		teams:        make(map[string]auction.Team),
		participants: make(map[string]auction.Participant),
		bids:         make(map[txKey][]auction.Bid),
		transactions: make(map[txKey]auction.Transaction),
	}
}

var _ auction.Store = (*Store)(nil)

// PutGroup inserts or replaces a group.
func (s *Store) PutGroup(g auction.Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[g.ID] = g
}

// PutTeam inserts or replaces a team.
func (s *Store) PutTeam(t auction.Team) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teams[t.ID] = t
}

// PutParticipant inserts or replaces a participant.
func (s *Store) PutParticipant(p auction.Participant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[p.ID] = p
}

// SetAuctionDate sets the configured auction start time.
func (s *Store) SetAuctionDate(at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.AuctionDate = &at
}

// Transactions returns the transactions recorded for groupID ordered by team id.
func (s *Store) Transactions(groupID string) []auction.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []auction.Transaction
	for k, tx := range s.transactions {
		if k.groupID == groupID {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TeamID < out[j].TeamID })
	return out
}

func (s *Store) GetParticipant(_ context.Context, id string) (auction.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[id]
	if !ok {
		return auction.Participant{}, fmt.Errorf("participant %s: %w", id, auction.ErrNotFound)
	}
	return p, nil
}

func (s *Store) ListGroups(_ context.Context) ([]auction.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	groups := make([]auction.Group, 0, len(s.groups))
	for _, g := range s.groups {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups, nil
}

func (s *Store) GetGroup(_ context.Context, groupID string) (auction.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[groupID]
	if !ok {
		return auction.Group{}, fmt.Errorf("group %s: %w", groupID, auction.ErrNotFound)
	}
	return g, nil
}

func (s *Store) NextUnresolvedTeam(_ context.Context, groupID string) (auction.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		next  auction.Team
		found bool
	)
	for _, t := range s.teams {
		if t.GroupID != groupID {
			continue
		}
		if _, done := s.transactions[txKey{groupID, t.ID}]; done {
			continue
		}
		if !found || t.RandomNumber < next.RandomNumber ||
			(t.RandomNumber == next.RandomNumber && t.ID < next.ID) {
			next, found = t, true
		}
	}
	if !found {
		return auction.Team{}, fmt.Errorf("unresolved team in group %s: %w", groupID, auction.ErrNotFound)
	}
	return next, nil
}

func (s *Store) GetTeam(_ context.Context, groupID, teamID string) (auction.Team, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.teams[teamID]
	if !ok || t.GroupID != groupID {
		return auction.Team{}, fmt.Errorf("team %s in group %s: %w", teamID, groupID, auction.ErrNotFound)
	}
	return t, nil
}

func (s *Store) HighestBid(_ context.Context, groupID, teamID string) (auction.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bids := s.bids[txKey{groupID, teamID}]
	if len(bids) == 0 {
		return auction.Bid{}, fmt.Errorf("bid for team %s: %w", teamID, auction.ErrNotFound)
	}
	best := bids[0]
	for _, b := range bids[1:] {
		if b.Amount > best.Amount {
			best = b
		}
	}
	return best, nil
}

func (s *Store) RecordBid(_ context.Context, bid auction.Bid) (auction.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if bid.ID == "" {
		bid.ID = uuid.NewString()
	}
	if bid.CreatedAt.IsZero() {
		bid.CreatedAt = s.now()
	}
	k := txKey{bid.GroupID, bid.TeamID}
	s.bids[k] = append(s.bids[k], bid)
	return bid, nil
}

func (s *Store) RecordUnsold(_ context.Context, groupID, teamID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := txKey{groupID, teamID}
	if _, exists := s.transactions[k]; exists {
		return false, nil
	}
	s.transactions[k] = auction.Transaction{
		ID:        uuid.NewString(),
		GroupID:   groupID,
		TeamID:    teamID,
		Status:    auction.StatusUnsold,
		CreatedAt: s.now(),
	}
	return true, nil
}

func (s *Store) RecordSale(_ context.Context, sale auction.Sale) (auction.SaleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[sale.ParticipantID]
	if !ok {
		return auction.SaleResult{}, fmt.Errorf("participant %s: %w", sale.ParticipantID, auction.ErrNotFound)
	}

	k := txKey{sale.GroupID, sale.TeamID}
	if _, exists := s.transactions[k]; exists {
		return auction.SaleResult{Created: false, Balance: p.Amount}, nil
	}
	if p.Amount < sale.Amount {
		return auction.SaleResult{}, fmt.Errorf("participant %s: %w", p.ID, auction.ErrInsufficientBalance)
	}

	p.Amount -= sale.Amount
	s.participants[p.ID] = p
	s.transactions[k] = auction.Transaction{
		ID:            uuid.NewString(),
		GroupID:       sale.GroupID,
		TeamID:        sale.TeamID,
		ParticipantID: p.ID,
		Amount:        sale.Amount,
		Status:        auction.StatusSold,
		CreatedAt:     s.now(),
	}
	return auction.SaleResult{Created: true, Balance: p.Amount}, nil
}

func (s *Store) GetSettings(_ context.Context) (auction.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings, nil
}

func (s *Store) UpdatePause(_ context.Context, update auction.PauseUpdate) (auction.Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings.PauseStatus = update.PauseStatus
	if update.PauseTime != nil {
		at := *update.PauseTime
		s.settings.PauseTime = &at
	}
	return s.settings, nil
}
