package postgres

import (
	"context"

	"github.com/upb/imagegen-gateway/config"
	"github.com/upb/imagegen-gateway/repositories"
	"go.uber.org/zap"
)

// RepositoryFactory owns the connection pool behind the Postgres repositories
type RepositoryFactory struct {
	db     *DB
	logger *zap.Logger
}

// NewRepositoryFactory connects to Postgres and ensures the schema exists
func NewRepositoryFactory(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*RepositoryFactory, error) {
	db, err := NewDB(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	if err := db.InitSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &RepositoryFactory{db: db, logger: logger}, nil
}

// NewUsageRepository returns the usage repository backed by this factory's pool
func (f *RepositoryFactory) NewUsageRepository() repositories.UsageRepository {
	return NewUsageRepository(f.db, f.logger)
}
