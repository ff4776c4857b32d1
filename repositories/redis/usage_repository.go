package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/upb/imagegen-gateway/config"
	"github.com/upb/imagegen-gateway/repositories"
	"go.uber.org/zap"
)

const defaultKeyPrefix = "imagegen:"

var _ repositories.UsageRepository = (*UsageRepository)(nil)

// UsageRepository keeps credential counters in Redis so several gateway
// instances share one quota view. Keys follow the layout
//
//	<prefix>usage:<provider>:key_<index>:<day>  per-credential count
//	<prefix>reset:<provider>                    last reset day
//
// Counter keys expire after the retention window, so PurgeBefore has
// nothing to do.
type UsageRepository struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// Connect dials Redis and verifies the connection
func Connect(ctx context.Context, cfg config.RedisConfig, retention time.Duration, logger *zap.Logger) (*UsageRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis usage store connected",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB))

	return NewUsageRepository(client, cfg.KeyPrefix, retention, logger), nil
}

// NewUsageRepository wraps an existing client. An empty keyPrefix defaults
// to "imagegen:"; a zero retention keeps counters for a week.
func NewUsageRepository(client *redis.Client, keyPrefix string, retention time.Duration, logger *zap.Logger) *UsageRepository {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}

	return &UsageRepository{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       retention + 24*time.Hour,
		logger:    logger.With(zap.String("component", "usage_repository")),
	}
}

func (r *UsageRepository) credentialKey(provider string, credential int, day string) string {
	return fmt.Sprintf("%susage:%s:key_%d:%s", r.keyPrefix, provider, credential, day)
}

func (r *UsageRepository) dayPattern(provider, day string) string {
	return r.keyPrefix + "usage:" + provider + ":key_*:" + day
}

func (r *UsageRepository) resetKey(provider string) string {
	return r.keyPrefix + "reset:" + provider
}

// credentialIndex extracts the index from a key built by credentialKey
func (r *UsageRepository) credentialIndex(key, provider, day string) (int, error) {
	head := r.keyPrefix + "usage:" + provider + ":key_"
	tail := ":" + day
	if !strings.HasPrefix(key, head) || !strings.HasSuffix(key, tail) {
		return 0, fmt.Errorf("unexpected usage key %q", key)
	}
	index, err := strconv.Atoi(key[len(head) : len(key)-len(tail)])
	if err != nil {
		return 0, fmt.Errorf("invalid credential index in %q: %w", key, err)
	}
	return index, nil
}

func (r *UsageRepository) dayKeys(ctx context.Context, provider, day string) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.dayPattern(provider, day), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// LoadDay returns the counters recorded for provider on day
func (r *UsageRepository) LoadDay(ctx context.Context, provider, day string) (map[int]int64, error) {
	keys, err := r.dayKeys(ctx, provider, day)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage: %w", err)
	}

	counts := make(map[int]int64, len(keys))
	if len(keys) == 0 {
		return counts, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load usage: %w", err)
	}

	for i, key := range keys {
		raw, ok := values[i].(string)
		if !ok {
			// expired between SCAN and MGET
			continue
		}
		index, err := r.credentialIndex(key, provider, day)
		if err != nil {
			return nil, err
		}
		count, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid usage count %q: %w", raw, err)
		}
		counts[index] = count
	}
	return counts, nil
}

// Increment adds one request to the credential's counter for day
func (r *UsageRepository) Increment(ctx context.Context, provider string, credential int, day string) (int64, error) {
	key := r.credentialKey(provider, credential, day)

	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to increment usage: %w", err)
	}

	return incr.Val(), nil
}

// ResetDay deletes the provider's counters for day and records the reset
func (r *UsageRepository) ResetDay(ctx context.Context, provider, day string) error {
	keys, err := r.dayKeys(ctx, provider, day)
	if err != nil {
		return fmt.Errorf("failed to reset usage: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(keys) > 0 {
			pipe.Del(ctx, keys...)
		}
		pipe.Set(ctx, r.resetKey(provider), day, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to reset usage: %w", err)
	}

	r.logger.Debug("usage counters deleted",
		zap.String("provider", provider),
		zap.String("day", day),
		zap.Int("keys_deleted", len(keys)))
	return nil
}

// MarkReset records day as the provider's last reset
func (r *UsageRepository) MarkReset(ctx context.Context, provider, day string) error {
	if err := r.client.Set(ctx, r.resetKey(provider), day, 0).Err(); err != nil {
		return fmt.Errorf("failed to mark reset: %w", err)
	}
	return nil
}

// LastReset returns the provider's last reset day, or "" if none
func (r *UsageRepository) LastReset(ctx context.Context, provider string) (string, error) {
	day, err := r.client.Get(ctx, r.resetKey(provider)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get last reset: %w", err)
	}
	return day, nil
}

// PurgeBefore is a no-op: counters expire on their own
func (r *UsageRepository) PurgeBefore(_ context.Context, _ string) (int64, error) {
	return 0, nil
}

// Ping verifies Redis is reachable
func (r *UsageRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close closes the client
func (r *UsageRepository) Close() error {
	r.logger.Info("closing redis usage store")
	return r.client.Close()
}
