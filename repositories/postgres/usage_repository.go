package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/upb/imagegen-gateway/repositories"
	"go.uber.org/zap"
)

var _ repositories.UsageRepository = (*UsageRepository)(nil)

// UsageRepository stores credential counters in Postgres
type UsageRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUsageRepository creates a new Postgres usage repository
func NewUsageRepository(db *DB, logger *zap.Logger) *UsageRepository {
	return &UsageRepository{
		db:     db,
		logger: logger.With(zap.String("component", "usage_repository")),
	}
}

// LoadDay returns the counters recorded for provider on day
func (r *UsageRepository) LoadDay(ctx context.Context, provider, day string) (map[int]int64, error) {
	query := `
		SELECT credential_index, request_count
		FROM credential_usage
		WHERE provider = $1 AND usage_day = $2
	`

	rows, err := GetExecutor(ctx, r.db).QueryContext(ctx, query, provider, day)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage: %w", err)
	}
	defer rows.Close()

	counts := make(map[int]int64)
	for rows.Next() {
		var index int
		var count int64
		if err := rows.Scan(&index, &count); err != nil {
			return nil, fmt.Errorf("failed to scan usage: %w", err)
		}
		counts[index] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate usage: %w", err)
	}

	return counts, nil
}

// Increment adds one request to the credential's counter for day
func (r *UsageRepository) Increment(ctx context.Context, provider string, credential int, day string) (int64, error) {
	query := `
		INSERT INTO credential_usage (provider, credential_index, usage_day, request_count, updated_at)
		VALUES ($1, $2, $3, 1, NOW())
		ON CONFLICT (provider, credential_index, usage_day)
		DO UPDATE SET
			request_count = credential_usage.request_count + 1,
			updated_at = NOW()
		RETURNING request_count
	`

	var count int64
	if err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, provider, credential, day).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to increment usage: %w", err)
	}

	return count, nil
}

// ResetDay deletes the provider's counters for day and records the reset
func (r *UsageRepository) ResetDay(ctx context.Context, provider, day string) error {
	return r.db.InTransaction(ctx, func(txCtx context.Context) error {
		result, err := GetExecutor(txCtx, r.db).ExecContext(txCtx,
			"DELETE FROM credential_usage WHERE provider = $1 AND usage_day = $2", provider, day)
		if err != nil {
			return fmt.Errorf("failed to delete usage: %w", err)
		}

		deleted, _ := result.RowsAffected()
		r.logger.Debug("usage counters deleted",
			zap.String("provider", provider),
			zap.String("day", day),
			zap.Int64("rows_deleted", deleted))

		return r.MarkReset(txCtx, provider, day)
	})
}

// MarkReset records day as the provider's last reset
func (r *UsageRepository) MarkReset(ctx context.Context, provider, day string) error {
	query := `
		INSERT INTO provider_resets (provider, reset_day, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (provider)
		DO UPDATE SET
			reset_day = EXCLUDED.reset_day,
			updated_at = NOW()
	`

	if _, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, provider, day); err != nil {
		return fmt.Errorf("failed to mark reset: %w", err)
	}
	return nil
}

// LastReset returns the provider's last reset day, or "" if none
func (r *UsageRepository) LastReset(ctx context.Context, provider string) (string, error) {
	var day string
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx,
		"SELECT reset_day FROM provider_resets WHERE provider = $1", provider).Scan(&day)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get last reset: %w", err)
	}
	return day, nil
}

// PurgeBefore removes counters for days earlier than day
func (r *UsageRepository) PurgeBefore(ctx context.Context, day string) (int64, error) {
	result, err := GetExecutor(ctx, r.db).ExecContext(ctx,
		"DELETE FROM credential_usage WHERE usage_day < $1", day)
	if err != nil {
		return 0, fmt.Errorf("failed to purge usage: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// Ping verifies the database is reachable
func (r *UsageRepository) Ping(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// Close closes the connection pool
func (r *UsageRepository) Close() error {
	return r.db.Close()
}
