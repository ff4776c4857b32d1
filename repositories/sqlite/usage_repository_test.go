package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setupRepository(t *testing.T) *UsageRepository {
	t.Helper()

	repo, err := Open(filepath.Join(t.TempDir(), "data", "usage.db"), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestUsageRepository_IncrementAndLoad(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := repo.Increment(ctx, "gemini", 0, "2025-03-01")
		require.NoError(t, err)
	}
	count, err := repo.Increment(ctx, "gemini", 2, "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	_, err = repo.Increment(ctx, "gemini", 0, "2025-03-02")
	require.NoError(t, err)
	_, err = repo.Increment(ctx, "replicate", 0, "2025-03-01")
	require.NoError(t, err)

	counts, err := repo.LoadDay(ctx, "gemini", "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, map[int]int64{0: 3, 2: 1}, counts)

	empty, err := repo.LoadDay(ctx, "openrouter", "2025-03-01")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestUsageRepository_ConcurrentIncrements(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Increment(ctx, "huggingface", 1, "2025-03-01")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	counts, err := repo.LoadDay(ctx, "huggingface", "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, int64(20), counts[1])
}

func TestUsageRepository_ResetDay(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	_, err := repo.Increment(ctx, "gemini", 0, "2025-03-01")
	require.NoError(t, err)
	_, err = repo.Increment(ctx, "replicate", 0, "2025-03-01")
	require.NoError(t, err)

	require.NoError(t, repo.ResetDay(ctx, "gemini", "2025-03-01"))

	counts, err := repo.LoadDay(ctx, "gemini", "2025-03-01")
	require.NoError(t, err)
	assert.Empty(t, counts)

	other, err := repo.LoadDay(ctx, "replicate", "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, map[int]int64{0: 1}, other)

	day, err := repo.LastReset(ctx, "gemini")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01", day)
}

func TestUsageRepository_MarkReset(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	day, err := repo.LastReset(ctx, "openrouter")
	require.NoError(t, err)
	assert.Empty(t, day)

	require.NoError(t, repo.MarkReset(ctx, "openrouter", "2025-03-01"))
	require.NoError(t, repo.MarkReset(ctx, "openrouter", "2025-03-02"))

	day, err = repo.LastReset(ctx, "openrouter")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-02", day)
}

func TestUsageRepository_PurgeBefore(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	for _, day := range []string{"2025-02-20", "2025-02-21", "2025-03-01"} {
		_, err := repo.Increment(ctx, "gemini", 0, day)
		require.NoError(t, err)
	}

	removed, err := repo.PurgeBefore(ctx, "2025-02-22")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	counts, err := repo.LoadDay(ctx, "gemini", "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, map[int]int64{0: 1}, counts)
}

func TestUsageRepository_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.db")
	ctx := context.Background()

	repo, err := Open(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	_, err = repo.Increment(ctx, "gemini", 1, "2025-03-01")
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	reopened, err := Open(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer reopened.Close()

	counts, err := reopened.LoadDay(ctx, "gemini", "2025-03-01")
	require.NoError(t, err)
	assert.Equal(t, map[int]int64{1: 1}, counts)
	assert.NoError(t, reopened.Ping(ctx))
}
