package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/sqlc-dev/pqtype"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries holds the SQL used by Repository, bound to a pool or a transaction.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type userRow struct {
	ID        string
	FirstName string
	LastName  string
	Email     string
	Amount    int64
	Profile   pqtype.NullRawMessage
}

const getUser = `
SELECT id, first_name, last_name, email, amount, profile
FROM users
WHERE id = $1
`

func (q *Queries) GetUser(ctx context.Context, id string) (userRow, error) {
	var u userRow
	err := q.db.QueryRowContext(ctx, getUser, id).Scan(
		&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.Amount, &u.Profile,
	)
	return u, err
}

const upsertUser = `
INSERT INTO users (id, first_name, last_name, email, amount, profile)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE
SET first_name = EXCLUDED.first_name,
    last_name  = EXCLUDED.last_name,
    email      = EXCLUDED.email,
    amount     = EXCLUDED.amount,
    profile    = EXCLUDED.profile
`

func (q *Queries) UpsertUser(ctx context.Context, u userRow) error {
	_, err := q.db.ExecContext(ctx, upsertUser, u.ID, u.FirstName, u.LastName, u.Email, u.Amount, u.Profile)
	return err
}

const debitUser = `
UPDATE users
SET amount = amount - $2
WHERE id = $1 AND amount >= $2
RETURNING amount
`

// DebitUser returns sql.ErrNoRows when the user is missing or cannot cover amount.
func (q *Queries) DebitUser(ctx context.Context, id string, amount int64) (int64, error) {
	var balance int64
	err := q.db.QueryRowContext(ctx, debitUser, id, amount).Scan(&balance)
	return balance, err
}

const listGroups = `
SELECT id, name FROM groups ORDER BY id
`

type groupRow struct {
	ID   string
	Name string
}

func (q *Queries) ListGroups(ctx context.Context) ([]groupRow, error) {
	rows, err := q.db.QueryContext(ctx, listGroups)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []groupRow
	for rows.Next() {
		var g groupRow
		if err := rows.Scan(&g.ID, &g.Name); err != nil {
			return nil, err
		}
		items = append(items, g)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}

const getGroup = `
SELECT id, name FROM groups WHERE id = $1
`

func (q *Queries) GetGroup(ctx context.Context, id string) (groupRow, error) {
	var g groupRow
	err := q.db.QueryRowContext(ctx, getGroup, id).Scan(&g.ID, &g.Name)
	return g, err
}

const upsertGroup = `
INSERT INTO groups (id, name) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name
`

func (q *Queries) UpsertGroup(ctx context.Context, id, name string) error {
	_, err := q.db.ExecContext(ctx, upsertGroup, id, name)
	return err
}

type teamRow struct {
	ID           string
	GroupID      string
	TeamName     string
	RandomNumber int64
}

const nextUnresolvedTeam = `
SELECT t.id, t.group_id, t.team_name, t.random_number
FROM teams t
WHERE t.group_id = $1
  AND NOT EXISTS (
    SELECT 1 FROM team_transactions tt
    WHERE tt.team_id = t.id AND tt.group_id = t.group_id
  )
ORDER BY t.random_number ASC, t.id ASC
LIMIT 1
`

func (q *Queries) NextUnresolvedTeam(ctx context.Context, groupID string) (teamRow, error) {
	var t teamRow
	err := q.db.QueryRowContext(ctx, nextUnresolvedTeam, groupID).Scan(
		&t.ID, &t.GroupID, &t.TeamName, &t.RandomNumber,
	)
	return t, err
}

const getTeam = `
SELECT id, group_id, team_name, random_number
FROM teams
WHERE id = $1 AND group_id = $2
`

func (q *Queries) GetTeam(ctx context.Context, teamID, groupID string) (teamRow, error) {
	var t teamRow
	err := q.db.QueryRowContext(ctx, getTeam, teamID, groupID).Scan(
		&t.ID, &t.GroupID, &t.TeamName, &t.RandomNumber,
	)
	return t, err
}

const upsertTeam = `
INSERT INTO teams (id, group_id, team_name, random_number) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE
SET group_id = EXCLUDED.group_id,
    team_name = EXCLUDED.team_name,
    random_number = EXCLUDED.random_number
`

func (q *Queries) UpsertTeam(ctx context.Context, t teamRow) error {
	_, err := q.db.ExecContext(ctx, upsertTeam, t.ID, t.GroupID, t.TeamName, t.RandomNumber)
	return err
}

type bidRow struct {
	ID        string
	GroupID   string
	TeamID    string
	UserID    string
	Amount    int64
	CreatedAt time.Time
}

const highestBid = `
SELECT id, group_id, team_id, user_id, amount, created_at
FROM bids
WHERE group_id = $1 AND team_id = $2
ORDER BY amount DESC, created_at ASC
LIMIT 1
`

func (q *Queries) HighestBid(ctx context.Context, groupID, teamID string) (bidRow, error) {
	var b bidRow
	err := q.db.QueryRowContext(ctx, highestBid, groupID, teamID).Scan(
		&b.ID, &b.GroupID, &b.TeamID, &b.UserID, &b.Amount, &b.CreatedAt,
	)
	return b, err
}

const insertBid = `
INSERT INTO bids (id, group_id, team_id, user_id, amount, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`

func (q *Queries) InsertBid(ctx context.Context, b bidRow) error {
	_, err := q.db.ExecContext(ctx, insertBid, b.ID, b.GroupID, b.TeamID, b.UserID, b.Amount, b.CreatedAt)
	return err
}

type transactionRow struct {
	ID      string
	GroupID string
	TeamID  string
	UserID  sql.NullString
	Amount  sql.NullInt64
	Status  string
}

const insertTransaction = `
INSERT INTO team_transactions (id, group_id, team_id, user_id, amount, status)
VALUES ($1, $2, $3, $4, $5, $6)
`

// InsertTransaction fails with a unique violation when the team is already resolved.
func (q *Queries) InsertTransaction(ctx context.Context, t transactionRow) error {
	_, err := q.db.ExecContext(ctx, insertTransaction, t.ID, t.GroupID, t.TeamID, t.UserID, t.Amount, t.Status)
	return err
}

const insertTransactionIfAbsent = `
INSERT INTO team_transactions (id, group_id, team_id, user_id, amount, status)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (team_id, group_id) DO NOTHING
`

// InsertTransactionIfAbsent reports whether a row was inserted.
func (q *Queries) InsertTransactionIfAbsent(ctx context.Context, t transactionRow) (bool, error) {
	res, err := q.db.ExecContext(ctx, insertTransactionIfAbsent, t.ID, t.GroupID, t.TeamID, t.UserID, t.Amount, t.Status)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

const listTransactions = `
SELECT id, group_id, team_id, user_id, amount, status
FROM team_transactions
WHERE group_id = $1
ORDER BY team_id
`

func (q *Queries) ListTransactions(ctx context.Context, groupID string) ([]transactionRow, error) {
	rows, err := q.db.QueryContext(ctx, listTransactions, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []transactionRow
	for rows.Next() {
		var t transactionRow
		if err := rows.Scan(&t.ID, &t.GroupID, &t.TeamID, &t.UserID, &t.Amount, &t.Status); err != nil {
			return nil, err
		}
		items = append(items, t)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	return items, rows.Err()
}

type settingsRow struct {
	AuctionDate sql.NullTime
	PauseTime   sql.NullTime
	PauseStatus bool
}

const getSettings = `
SELECT auction_date, pause_time, pause_status FROM settings WHERE id = 1
`

func (q *Queries) GetSettings(ctx context.Context) (settingsRow, error) {
	var s settingsRow
	err := q.db.QueryRowContext(ctx, getSettings).Scan(&s.AuctionDate, &s.PauseTime, &s.PauseStatus)
	return s, err
}

const updatePause = `
UPDATE settings
SET pause_status = $1,
    pause_time   = COALESCE($2, pause_time)
WHERE id = 1
RETURNING auction_date, pause_time, pause_status
`

func (q *Queries) UpdatePause(ctx context.Context, status bool, pauseTime sql.NullTime) (settingsRow, error) {
	var s settingsRow
	err := q.db.QueryRowContext(ctx, updatePause, status, pauseTime).Scan(&s.AuctionDate, &s.PauseTime, &s.PauseStatus)
	return s, err
}

const setAuctionDate = `
UPDATE settings SET auction_date = $1 WHERE id = 1
`

func (q *Queries) SetAuctionDate(ctx context.Context, at sql.NullTime) error {
	_, err := q.db.ExecContext(ctx, setAuctionDate, at)
	return err
}
