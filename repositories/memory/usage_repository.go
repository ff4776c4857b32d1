package memory

import (
	"context"
	"sync"
)

type usageKey struct {
	provider string
	day      string
}

// UsageRepository keeps counters in process memory. Counts are lost on
// restart; intended for development and tests.
type UsageRepository struct {
	mu     sync.Mutex
	counts map[usageKey]map[int]int64
	resets map[string]string
}

// NewUsageRepository creates an empty in-memory repository
func NewUsageRepository() *UsageRepository {
	return &UsageRepository{
		counts: make(map[usageKey]map[int]int64),
		resets: make(map[string]string),
	}
}

// LoadDay returns a copy of the counters recorded for provider on day
func (r *UsageRepository) LoadDay(_ context.Context, provider, day string) (map[int]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := r.counts[usageKey{provider, day}]
	out := make(map[int]int64, len(stored))
	for index, count := range stored {
		out[index] = count
	}
	return out, nil
}

// Increment adds one request to the credential's counter for day
func (r *UsageRepository) Increment(_ context.Context, provider string, credential int, day string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := usageKey{provider, day}
	if r.counts[key] == nil {
		r.counts[key] = make(map[int]int64)
	}
	r.counts[key][credential]++
	return r.counts[key][credential], nil
}

// ResetDay deletes the provider's counters for day and records the reset
func (r *UsageRepository) ResetDay(_ context.Context, provider, day string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.counts, usageKey{provider, day})
	r.resets[provider] = day
	return nil
}

// MarkReset records day as the provider's last reset
func (r *UsageRepository) MarkReset(_ context.Context, provider, day string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.resets[provider] = day
	return nil
}

// LastReset returns the provider's last reset day, or "" if none
func (r *UsageRepository) LastReset(_ context.Context, provider string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.resets[provider], nil
}

// PurgeBefore drops counters for days earlier than day
func (r *UsageRepository) PurgeBefore(_ context.Context, day string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	for key, counts := range r.counts {
		if key.day < day {
			removed += int64(len(counts))
			delete(r.counts, key)
		}
	}
	return removed, nil
}

// Ping always succeeds
func (r *UsageRepository) Ping(context.Context) error {
	return nil
}

// Close is a no-op
func (r *UsageRepository) Close() error {
	return nil
}
