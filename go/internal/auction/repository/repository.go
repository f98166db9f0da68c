package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mcdev12/teamauction/go/internal/auction"
	"github.com/mcdev12/teamauction/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

//go:embed schema.sql
var schema string

const uniqueViolation = "23505"

// Repository is the Postgres implementation of auction.Store.
type Repository struct {
	queries *Queries
	db      *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		queries: New(db),
		db:      db,
	}
}

var _ auction.Store = (*Repository)(nil)

// Migrate creates the tables when they do not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (r *Repository) GetParticipant(ctx context.Context, id string) (auction.Participant, error) {
	u, err := r.queries.GetUser(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return auction.Participant{}, fmt.Errorf("participant %s: %w", id, auction.ErrNotFound)
	}
	if err != nil {
		return auction.Participant{}, fmt.Errorf("failed to get participant: %w", err)
	}
	return dbUserToModel(u), nil
}

func (r *Repository) ListGroups(ctx context.Context) ([]auction.Group, error) {
	rows, err := r.queries.ListGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	groups := make([]auction.Group, 0, len(rows))
	for _, g := range rows {
		groups = append(groups, auction.Group{ID: g.ID, Name: g.Name})
	}
	return groups, nil
}

func (r *Repository) GetGroup(ctx context.Context, groupID string) (auction.Group, error) {
	g, err := r.queries.GetGroup(ctx, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return auction.Group{}, fmt.Errorf("group %s: %w", groupID, auction.ErrNotFound)
	}
	if err != nil {
		return auction.Group{}, fmt.Errorf("failed to get group: %w", err)
	}
	return auction.Group{ID: g.ID, Name: g.Name}, nil
}

func (r *Repository) NextUnresolvedTeam(ctx context.Context, groupID string) (auction.Team, error) {
	t, err := r.queries.NextUnresolvedTeam(ctx, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return auction.Team{}, fmt.Errorf("unresolved team in group %s: %w", groupID, auction.ErrNotFound)
	}
	if err != nil {
		return auction.Team{}, fmt.Errorf("failed to select next team: %w", err)
	}
	return dbTeamToModel(t), nil
}

func (r *Repository) GetTeam(ctx context.Context, groupID, teamID string) (auction.Team, error) {
	t, err := r.queries.GetTeam(ctx, teamID, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return auction.Team{}, fmt.Errorf("team %s in group %s: %w", teamID, groupID, auction.ErrNotFound)
	}
	if err != nil {
		return auction.Team{}, fmt.Errorf("failed to get team: %w", err)
	}
	return dbTeamToModel(t), nil
}

func (r *Repository) HighestBid(ctx context.Context, groupID, teamID string) (auction.Bid, error) {
	b, err := r.queries.HighestBid(ctx, groupID, teamID)
	if errors.Is(err, sql.ErrNoRows) {
		return auction.Bid{}, fmt.Errorf("bid for team %s: %w", teamID, auction.ErrNotFound)
	}
	if err != nil {
		return auction.Bid{}, fmt.Errorf("failed to query highest bid: %w", err)
	}
	return auction.Bid{
		ID:            b.ID,
		GroupID:       b.GroupID,
		TeamID:        b.TeamID,
		ParticipantID: b.UserID,
		Amount:        b.Amount,
		CreatedAt:     b.CreatedAt,
	}, nil
}

func (r *Repository) RecordBid(ctx context.Context, bid auction.Bid) (auction.Bid, error) {
	if bid.ID == "" {
		bid.ID = uuid.NewString()
	}
	if bid.CreatedAt.IsZero() {
		bid.CreatedAt = time.Now()
	}
	err := r.queries.InsertBid(ctx, bidRow{
		ID:        bid.ID,
		GroupID:   bid.GroupID,
		TeamID:    bid.TeamID,
		UserID:    bid.ParticipantID,
		Amount:    bid.Amount,
		CreatedAt: bid.CreatedAt,
	})
	if err != nil {
		return auction.Bid{}, fmt.Errorf("failed to insert bid: %w", err)
	}
	return bid, nil
}

// RecordUnsold inserts the unsold transaction. A unique violation means
// another resolution got there first and is reported as not created.
func (r *Repository) RecordUnsold(ctx context.Context, groupID, teamID string) (bool, error) {
	err := r.queries.InsertTransaction(ctx, transactionRow{
		ID:      uuid.NewString(),
		GroupID: groupID,
		TeamID:  teamID,
		Status:  string(auction.StatusUnsold),
	})
	if isUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert unsold transaction: %w", err)
	}
	return true, nil
}

// RecordSale inserts the sold transaction and debits the winner in one
// transaction. The debit is conditional on the balance, so a balance spent
// concurrently rolls the insert back.
func (r *Repository) RecordSale(ctx context.Context, sale auction.Sale) (auction.SaleResult, error) {
	var result auction.SaleResult
	err := sqlutil.Run(ctx, r.db, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, r.queries.WithTx, func(q *Queries) error {
		created, err := q.InsertTransactionIfAbsent(ctx, transactionRow{
			ID:      uuid.NewString(),
			GroupID: sale.GroupID,
			TeamID:  sale.TeamID,
			UserID:  sqlutil.ToSqlString(sale.ParticipantID),
			Amount:  sqlutil.ToSqlInt64(sale.Amount),
			Status:  string(auction.StatusSold),
		})
		if err != nil {
			return fmt.Errorf("failed to insert sold transaction: %w", err)
		}

		if !created {
			u, err := q.GetUser(ctx, sale.ParticipantID)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("failed to read balance: %w", err)
			}
			result = auction.SaleResult{Created: false, Balance: u.Amount}
			return nil
		}

		balance, err := q.DebitUser(ctx, sale.ParticipantID, sale.Amount)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("participant %s: %w", sale.ParticipantID, auction.ErrInsufficientBalance)
		}
		if err != nil {
			return fmt.Errorf("failed to debit participant: %w", err)
		}
		result = auction.SaleResult{Created: true, Balance: balance}
		return nil
	})
	if err != nil {
		return auction.SaleResult{}, err
	}
	return result, nil
}

func (r *Repository) GetSettings(ctx context.Context) (auction.Settings, error) {
	s, err := r.queries.GetSettings(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return auction.Settings{}, fmt.Errorf("settings: %w", auction.ErrNotFound)
	}
	if err != nil {
		return auction.Settings{}, fmt.Errorf("failed to get settings: %w", err)
	}
	return dbSettingsToModel(s), nil
}

func (r *Repository) UpdatePause(ctx context.Context, update auction.PauseUpdate) (auction.Settings, error) {
	s, err := r.queries.UpdatePause(ctx, update.PauseStatus, sqlutil.ToSqlTime(update.PauseTime))
	if errors.Is(err, sql.ErrNoRows) {
		return auction.Settings{}, fmt.Errorf("settings: %w", auction.ErrNotFound)
	}
	if err != nil {
		return auction.Settings{}, fmt.Errorf("failed to update pause state: %w", err)
	}
	return dbSettingsToModel(s), nil
}

// Transactions lists the resolved teams of a group.
func (r *Repository) Transactions(ctx context.Context, groupID string) ([]auction.Transaction, error) {
	rows, err := r.queries.ListTransactions(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	out := make([]auction.Transaction, 0, len(rows))
	for _, t := range rows {
		out = append(out, auction.Transaction{
			ID:            t.ID,
			GroupID:       t.GroupID,
			TeamID:        t.TeamID,
			ParticipantID: sqlutil.FromSqlString(t.UserID, ""),
			Amount:        sqlutil.FromSqlInt64(t.Amount),
			Status:        auction.TransactionStatus(t.Status),
		})
	}
	return out, nil
}

// SaveGroup, SaveTeam, SaveParticipant and SetAuctionDate administer the
// catalog; the coordinator never calls them.

func (r *Repository) SaveGroup(ctx context.Context, g auction.Group) error {
	if err := r.queries.UpsertGroup(ctx, g.ID, g.Name); err != nil {
		return fmt.Errorf("failed to save group: %w", err)
	}
	return nil
}

func (r *Repository) SaveTeam(ctx context.Context, t auction.Team) error {
	err := r.queries.UpsertTeam(ctx, teamRow{
		ID:           t.ID,
		GroupID:      t.GroupID,
		TeamName:     t.Name,
		RandomNumber: t.RandomNumber,
	})
	if err != nil {
		return fmt.Errorf("failed to save team: %w", err)
	}
	return nil
}

func (r *Repository) SaveParticipant(ctx context.Context, p auction.Participant) error {
	err := r.queries.UpsertUser(ctx, userRow{
		ID:        p.ID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Email:     p.Email,
		Amount:    p.Amount,
		Profile:   pqtype.NullRawMessage{RawMessage: p.Profile, Valid: len(p.Profile) > 0},
	})
	if err != nil {
		return fmt.Errorf("failed to save participant: %w", err)
	}
	return nil
}

func (r *Repository) SetAuctionDate(ctx context.Context, at *time.Time) error {
	if err := r.queries.SetAuctionDate(ctx, sqlutil.ToSqlTime(at)); err != nil {
		return fmt.Errorf("failed to set auction date: %w", err)
	}
	return nil
}

// isUniqueViolation recognizes code 23505 from either supported driver.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == uniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return false
}

func dbUserToModel(u userRow) auction.Participant {
	p := auction.Participant{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Amount:    u.Amount,
	}
	if u.Profile.Valid {
		p.Profile = json.RawMessage(u.Profile.RawMessage)
	}
	return p
}

func dbTeamToModel(t teamRow) auction.Team {
	return auction.Team{
		ID:           t.ID,
		GroupID:      t.GroupID,
		Name:         t.TeamName,
		RandomNumber: t.RandomNumber,
	}
}

func dbSettingsToModel(s settingsRow) auction.Settings {
	return auction.Settings{
		AuctionDate: sqlutil.FromSqlTime(s.AuctionDate),
		PauseTime:   sqlutil.FromSqlTime(s.PauseTime),
		PauseStatus: s.PauseStatus,
	}
}
