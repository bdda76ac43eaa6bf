package repository

import (
	"context"

	"github.com/wadjakorntonsri/go-fact-collector/pkg/adapters/repository/mongostore"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/adapters/repository/sqldb"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/config"
	"github.com/wadjakorntonsri/go-fact-collector/pkg/ports"
)

// Open returns the MongoDB store when MONGODB_URI is configured and the SQL
// store for DATABASE_URL otherwise.
func Open(ctx context.Context, cfg *config.Config) (ports.FactRepository, error) {
	if cfg.MongoURI != "" {
		repo, err := mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}

	repo, err := sqldb.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// Backend names the store Open would choose, for logs.
func Backend(cfg *config.Config) string {
	if cfg.MongoURI != "" {
		return "mongodb"
	}
	return "sql"
}
