package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/teamauction/go/internal/auction/memstore"
	"github.com/mcdev12/teamauction/go/internal/dbconfig"
	"gopkg.in/yaml.v3"
)

type counts struct {
	inserted int
	skipped  int
	errs     int
}

func (c *counts) add(tag int64, err error) {
	switch {
	case err != nil:
		c.errs++
	case tag == 1:
		c.inserted++
	default:
		c.skipped++
	}
}

func main() {
	path := "go/internal/assets/auction_seed.yaml"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}

	// 1) Load the YAML seed
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read YAML: %v\n", err)
		os.Exit(1)
	}
	var seed memstore.Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal YAML: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	// 3) Insert and count; existing rows are left alone
	var groups, teams, users counts

	for _, g := range seed.Groups {
		tag, err := pool.Exec(ctx, `
            INSERT INTO groups (id, name) VALUES ($1, $2)
            ON CONFLICT (id) DO NOTHING
        `, g.ID, g.Name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting group %s: %v\n", g.ID, err)
		}
		groups.add(tag.RowsAffected(), err)
	}

	for _, t := range seed.Teams {
		tag, err := pool.Exec(ctx, `
            INSERT INTO teams (id, group_id, team_name, random_number)
            VALUES ($1, $2, $3, $4)
            ON CONFLICT (id) DO NOTHING
        `, t.ID, t.GroupID, t.Name, t.RandomNumber)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting team %s: %v\n", t.ID, err)
		}
		teams.add(tag.RowsAffected(), err)
	}

	for _, p := range seed.Participants {
		var profile []byte
		if len(p.Profile) > 0 {
			if profile, err = json.Marshal(p.Profile); err != nil {
				fmt.Fprintf(os.Stderr, "error encoding profile of %s: %v\n", p.ID, err)
				users.errs++
				continue
			}
		}
		tag, err := pool.Exec(ctx, `
            INSERT INTO users (id, first_name, last_name, email, amount, profile)
            VALUES ($1, $2, $3, $4, $5, $6)
            ON CONFLICT (id) DO NOTHING
        `, p.ID, p.FirstName, p.LastName, p.Email, p.Amount, profile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error inserting user %s: %v\n", p.ID, err)
		}
		users.add(tag.RowsAffected(), err)
	}

	if seed.AuctionDate != nil {
		if _, err := pool.Exec(ctx, `UPDATE settings SET auction_date = $1 WHERE id = 1`, *seed.AuctionDate); err != nil {
			fmt.Fprintf(os.Stderr, "error setting auction date: %v\n", err)
		}
	}

	// 4) Print summary
	fmt.Printf(
		"Auction seed complete: groups %d/%d/%d, teams %d/%d/%d, users %d/%d/%d (inserted/skipped/errors)\n",
		groups.inserted, groups.skipped, groups.errs,
		teams.inserted, teams.skipped, teams.errs,
		users.inserted, users.skipped, users.errs,
	)
	if n := countTransactions(ctx, pool); n > 0 {
		fmt.Printf("Note: %d team transactions already recorded\n", n)
	}
}

func countTransactions(ctx context.Context, pool *pgxpool.Pool) int {
	var n int
	if err := pool.QueryRow(ctx, `SELECT count(*) FROM team_transactions`).Scan(&n); err != nil && err != pgx.ErrNoRows {
		fmt.Fprintf(os.Stderr, "count transactions: %v\n", err)
	}
	return n
}
