package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/warp/oee-tracker/config"
	"github.com/warp/oee-tracker/logger"
	"github.com/warp/oee-tracker/production"
	"github.com/warp/oee-tracker/production/store"
	mongostore "github.com/warp/oee-tracker/store/mongo"
	"github.com/warp/oee-tracker/store/sqlite"
)

// openStore builds the Store selected by STORE_DRIVER.
func openStore(ctx context.Context, c config.Store) (production.Store, error) {
	log := logger.Named("store")

	switch c.Driver {
	case "memory":
		log.Warn().Msg("using in-memory store, data is lost on exit")
		return store.NewMemory(), nil

	case "mongo":
		s, err := mongostore.New(ctx, mongostore.Config{
			URI:          c.MongoURI,
			Database:     c.MongoDatabase,
			Transactions: c.MongoTransactions,
		})
		if err != nil {
			return nil, err
		}
		log.Info().Str("database", c.MongoDatabase).Bool("transactions", c.MongoTransactions).Msg("connected to mongo")
		return s, nil

	case "sqlite":
		if c.SQLitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(c.SQLitePath), 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		s, err := sqlite.New(c.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", c.SQLitePath).Msg("opened sqlite store")
		return s, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", c.Driver)
}
