package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/upb/imagegen-gateway/models"
	"github.com/upb/imagegen-gateway/repositories"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var _ repositories.UsageRepository = (*UsageRepository)(nil)

// UsageRepository stores credential counters in a local SQLite file
type UsageRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the database at path and migrates the
// usage tables. ":memory:" is accepted for tests.
func Open(path string, log *zap.Logger) (*UsageRepository, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql db: %w", err)
	}
	// SQLite serialises writers; a single connection avoids "database is locked"
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.CredentialUsage{}, &models.ProviderReset{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate usage tables: %w", err)
	}

	log.Info("sqlite usage store ready", zap.String("path", path))

	return &UsageRepository{
		db:     db,
		logger: log.With(zap.String("component", "usage_repository")),
	}, nil
}

// LoadDay returns the counters recorded for provider on day
func (r *UsageRepository) LoadDay(ctx context.Context, provider, day string) (map[int]int64, error) {
	var rows []models.CredentialUsage
	err := r.db.WithContext(ctx).
		Where("provider = ? AND usage_day = ?", provider, day).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load usage: %w", err)
	}

	counts := make(map[int]int64, len(rows))
	for _, row := range rows {
		counts[row.CredentialIndex] = row.RequestCount
	}
	return counts, nil
}

// Increment adds one request to the credential's counter for day
func (r *UsageRepository) Increment(ctx context.Context, provider string, credential int, day string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		row := models.CredentialUsage{
			Provider:        provider,
			CredentialIndex: credential,
			UsageDay:        day,
			RequestCount:    1,
			UpdatedAt:       now,
		}

		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "provider"}, {Name: "credential_index"}, {Name: "usage_day"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"request_count": gorm.Expr("request_count + 1"),
				"updated_at":    now,
			}),
		}).Create(&row).Error
		if err != nil {
			return err
		}

		var stored models.CredentialUsage
		if err := tx.Where("provider = ? AND credential_index = ? AND usage_day = ?", provider, credential, day).
			Take(&stored).Error; err != nil {
			return err
		}
		count = stored.RequestCount
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment usage: %w", err)
	}

	return count, nil
}

// ResetDay deletes the provider's counters for day and records the reset
func (r *UsageRepository) ResetDay(ctx context.Context, provider, day string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("provider = ? AND usage_day = ?", provider, day).
			Delete(&models.CredentialUsage{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete usage: %w", result.Error)
		}

		r.logger.Debug("usage counters deleted",
			zap.String("provider", provider),
			zap.String("day", day),
			zap.Int64("rows_deleted", result.RowsAffected))

		return markReset(tx, provider, day)
	})
}

// MarkReset records day as the provider's last reset
func (r *UsageRepository) MarkReset(ctx context.Context, provider, day string) error {
	return markReset(r.db.WithContext(ctx), provider, day)
}

func markReset(tx *gorm.DB, provider, day string) error {
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"reset_day", "updated_at"}),
	}).Create(&models.ProviderReset{
		Provider:  provider,
		ResetDay:  day,
		UpdatedAt: time.Now().UTC(),
	}).Error
	if err != nil {
		return fmt.Errorf("failed to mark reset: %w", err)
	}
	return nil
}

// LastReset returns the provider's last reset day, or "" if none
func (r *UsageRepository) LastReset(ctx context.Context, provider string) (string, error) {
	var reset models.ProviderReset
	err := r.db.WithContext(ctx).Where("provider = ?", provider).Take(&reset).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get last reset: %w", err)
	}
	return reset.ResetDay, nil
}

// PurgeBefore removes counters for days earlier than day
func (r *UsageRepository) PurgeBefore(ctx context.Context, day string) (int64, error) {
	result := r.db.WithContext(ctx).Where("usage_day < ?", day).Delete(&models.CredentialUsage{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge usage: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Ping verifies the database file is reachable
func (r *UsageRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database
func (r *UsageRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql db: %w", err)
	}
	r.logger.Info("closing sqlite usage store")
	return sqlDB.Close()
}
