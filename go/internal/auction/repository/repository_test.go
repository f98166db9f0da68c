package repository

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mcdev12/teamauction/go/internal/auction"
	"github.com/mcdev12/teamauction/go/internal/dbconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "plain", err: errors.New("boom"), want: false},
		{name: "pq unique", err: &pq.Error{Code: "23505"}, want: true},
		{name: "pq other", err: &pq.Error{Code: "23503"}, want: false},
		{name: "pgx unique", err: &pgconn.PgError{Code: "23505"}, want: true},
		{name: "wrapped pgx unique", err: errors.Join(errors.New("insert"), &pgconn.PgError{Code: "23505"}), want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isUniqueViolation(tt.err))
		})
	}
}

// openTestRepository connects to AUCTION_TEST_DATABASE_URL and resets every table.
func openTestRepository(t *testing.T, driver string) *Repository {
	t.Helper()
	dsn := os.Getenv("AUCTION_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("AUCTION_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := dbconfig.OpenDSN(ctx, driver, dsn, 10, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewRepository(db)
	require.NoError(t, repo.Migrate(ctx))
	_, err = db.ExecContext(ctx, `TRUNCATE team_transactions, bids, users, teams, groups`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `UPDATE settings SET auction_date = NULL, pause_time = NULL, pause_status = false`)
	require.NoError(t, err)

	require.NoError(t, repo.SaveGroup(ctx, auction.Group{ID: "g1", Name: "Office"}))
	require.NoError(t, repo.SaveTeam(ctx, auction.Team{ID: "duke", GroupID: "g1", Name: "Duke", RandomNumber: 1}))
	require.NoError(t, repo.SaveTeam(ctx, auction.Team{ID: "unc", GroupID: "g1", Name: "UNC", RandomNumber: 2}))
	require.NoError(t, repo.SaveParticipant(ctx, auction.Participant{
		ID: "alice", FirstName: "Alice", Amount: 100, Profile: json.RawMessage(`{"seat":12}`),
	}))
	return repo
}

func forEachDriver(t *testing.T, fn func(t *testing.T, repo *Repository)) {
	for _, driver := range []string{dbconfig.DriverPQ, dbconfig.DriverPGX} {
		t.Run(driver, func(t *testing.T) {
			fn(t, openTestRepository(t, driver))
		})
	}
}

func TestRepositoryCatalog(t *testing.T) {
	forEachDriver(t, func(t *testing.T, repo *Repository) {
		ctx := context.Background()

		groups, err := repo.ListGroups(ctx)
		require.NoError(t, err)
		assert.Equal(t, []auction.Group{{ID: "g1", Name: "Office"}}, groups)

		g, err := repo.GetGroup(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, "Office", g.Name)
		_, err = repo.GetGroup(ctx, "nope")
		assert.ErrorIs(t, err, auction.ErrNotFound)

		p, err := repo.GetParticipant(ctx, "alice")
		require.NoError(t, err)
		assert.JSONEq(t, `{"seat":12}`, string(p.Profile))

		_, err = repo.GetParticipant(ctx, "mallory")
		assert.ErrorIs(t, err, auction.ErrNotFound)

		team, err := repo.NextUnresolvedTeam(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, "duke", team.ID)

		created, err := repo.RecordUnsold(ctx, "g1", "duke")
		require.NoError(t, err)
		assert.True(t, created)
		created, err = repo.RecordUnsold(ctx, "g1", "duke")
		require.NoError(t, err)
		assert.False(t, created, "second unsold insert hits the unique key")

		team, err = repo.NextUnresolvedTeam(ctx, "g1")
		require.NoError(t, err)
		assert.Equal(t, "unc", team.ID)
	})
}

func TestRepositoryBidsAndSale(t *testing.T) {
	forEachDriver(t, func(t *testing.T, repo *Repository) {
		ctx := context.Background()

		_, err := repo.HighestBid(ctx, "g1", "duke")
		require.ErrorIs(t, err, auction.ErrNotFound)

		for _, amount := range []int64{20, 60, 40} {
			_, err := repo.RecordBid(ctx, auction.Bid{GroupID: "g1", TeamID: "duke", ParticipantID: "alice", Amount: amount})
			require.NoError(t, err)
		}
		bid, err := repo.HighestBid(ctx, "g1", "duke")
		require.NoError(t, err)
		assert.Equal(t, int64(60), bid.Amount)

		_, err = repo.RecordSale(ctx, auction.Sale{GroupID: "g1", TeamID: "unc", ParticipantID: "alice", Amount: 500})
		require.ErrorIs(t, err, auction.ErrInsufficientBalance)
		txs, err := repo.Transactions(ctx, "g1")
		require.NoError(t, err)
		assert.Empty(t, txs, "insufficient balance leaves no transaction behind")

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				res, err := repo.RecordSale(ctx, auction.Sale{GroupID: "g1", TeamID: "duke", ParticipantID: "alice", Amount: 60})
				if err != nil {
					t.Errorf("RecordSale: %v", err)
					return
				}
				if res.Created {
					mu.Lock()
					created++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 1, created)

		p, err := repo.GetParticipant(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(40), p.Amount)

		txs, err = repo.Transactions(ctx, "g1")
		require.NoError(t, err)
		require.Len(t, txs, 1)
		assert.Equal(t, auction.StatusSold, txs[0].Status)
		assert.Equal(t, "alice", txs[0].ParticipantID)
	})
}

func TestRepositorySettings(t *testing.T) {
	forEachDriver(t, func(t *testing.T, repo *Repository) {
		ctx := context.Background()

		settings, err := repo.GetSettings(ctx)
		require.NoError(t, err)
		assert.Nil(t, settings.AuctionDate)

		date := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, repo.SetAuctionDate(ctx, &date))

		until := date.Add(time.Minute)
		settings, err = repo.UpdatePause(ctx, auction.PauseUpdate{PauseStatus: true, PauseTime: &until})
		require.NoError(t, err)
		assert.True(t, settings.PauseStatus)
		require.NotNil(t, settings.AuctionDate)
		assert.True(t, settings.AuctionDate.Equal(date))

		settings, err = repo.UpdatePause(ctx, auction.PauseUpdate{PauseStatus: false})
		require.NoError(t, err)
		assert.False(t, settings.PauseStatus)
		require.NotNil(t, settings.PauseTime)
		assert.True(t, settings.PauseTime.Equal(until))
	})
}
