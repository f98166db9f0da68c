package main

import (
	"context"
	"fmt"
	"time"

	"github.com/mcdev12/teamauction/go/internal/auction"
	"github.com/mcdev12/teamauction/go/internal/auction/memstore"
	"github.com/mcdev12/teamauction/go/internal/auction/repository"
	"github.com/mcdev12/teamauction/go/internal/config"
	"github.com/mcdev12/teamauction/go/internal/dbconfig"
	"github.com/rs/zerolog/log"
)

// setupStore returns the configured store and a function releasing it.
func setupStore(ctx context.Context, cfg *config.Config) (auction.Store, func(), error) {
	if cfg.Store.Driver == config.StoreMemory {
		store := memstore.New(time.Now)
		if cfg.Store.Seed != "" {
			if err := store.LoadSeed(cfg.Store.Seed); err != nil {
				return nil, nil, err
			}
			log.Info().Str("seed", cfg.Store.Seed).Msg("loaded in-memory seed")
		}
		return store, func() {}, nil
	}

	dbConfig := dbconfig.NewConfigFromEnv()
	dbConfig.Driver = cfg.Store.Driver

	database, err := dbConfig.Open(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info().
		Str("driver", dbConfig.Driver).
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("connected to database")

	repo := repository.NewRepository(database)
	if cfg.Store.Migrate {
		if err := repo.Migrate(ctx); err != nil {
			database.Close()
			return nil, nil, fmt.Errorf("failed to migrate schema: %w", err)
		}
		log.Info().Msg("schema migrated")
	}

	return repo, func() {
		if err := database.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}, nil
}
