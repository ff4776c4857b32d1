package repositories

import (
	"context"
)

// UsageRepository persists per-credential request counters. Counters are
// keyed by provider name, credential index and day ("2006-01-02"); provider
// totals are always derived by summing credential counts.
type UsageRepository interface {
	// LoadDay returns the counters recorded for provider on day, keyed by
	// credential index. Missing credentials have no entry.
	LoadDay(ctx context.Context, provider, day string) (map[int]int64, error)

	// Increment adds one request for the credential and returns the new count
	Increment(ctx context.Context, provider string, credential int, day string) (int64, error)

	// ResetDay deletes the provider's counters for day and records day as
	// the provider's last reset
	ResetDay(ctx context.Context, provider, day string) error

	// MarkReset records day as the provider's last reset
	MarkReset(ctx context.Context, provider, day string) error

	// LastReset returns the provider's last reset day, or "" if none
	LastReset(ctx context.Context, provider string) (string, error)

	// PurgeBefore removes counters older than day and returns how many were removed
	PurgeBefore(ctx context.Context, day string) (int64, error)

	// Ping verifies the backing store is reachable
	Ping(ctx context.Context) error

	// Close releases the backing store
	Close() error
}
