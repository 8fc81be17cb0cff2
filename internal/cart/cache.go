package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	// ErrStaleFill is returned by Set when the cart was invalidated after the
	// caller read its version. Nothing is stored.
	ErrStaleFill = errors.New("cart changed while loading")
)

// Cache holds cart lines per user. Every invalidation bumps a per-user
// generation; a fill is stored only if the generation it started from is
// still current.
type Cache interface {
	Get(ctx context.Context, userID uuid.UUID) ([]Line, error)
	Version(ctx context.Context, userID uuid.UUID) (int64, error)
	Set(ctx context.Context, userID uuid.UUID, version int64, lines []Line) error
	Invalidate(ctx context.Context, userID uuid.UUID) error
}

// generations must outlive any cached value
const generationTTL = 24 * time.Hour

// KEYS[1] lines, KEYS[2] generation; ARGV[1] expected generation, ARGV[2]
// payload, ARGV[3] ttl in ms.
var setIfCurrent = redis.NewScript(`
local gen = redis.call('GET', KEYS[2])
if (gen or '0') ~= ARGV[1] then
	return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: 15 * time.Minute,
	}
}

func (r *RedisCache) Get(ctx context.Context, userID uuid.UUID) ([]Line, error) {
	data, err := r.client.Get(ctx, linesKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var lines []Line
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, fmt.Errorf("unmarshal cart lines failed: %w", err)
	}
	return lines, nil
}

func (r *RedisCache) Version(ctx context.Context, userID uuid.UUID) (int64, error) {
	v, err := r.client.Get(ctx, generationKey(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation failed: %w", err)
	}
	return v, nil
}

func (r *RedisCache) Set(ctx context.Context, userID uuid.UUID, version int64, lines []Line) error {
	if lines == nil {
		lines = []Line{}
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("marshal cart lines failed: %w", err)
	}

	// jitter spreads expirations of carts cached at the same moment
	ttl := r.baseTTL + time.Duration(rand.Intn(5))*time.Minute
	keys := []string{linesKey(userID), generationKey(userID)}
	stored, err := setIfCurrent.Run(ctx, r.client, keys, version, data, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	if stored == 0 {
		return ErrStaleFill
	}
	return nil
}

func (r *RedisCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(userID))
		pipe.Expire(ctx, generationKey(userID), generationTTL)
		pipe.Del(ctx, linesKey(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate failed: %w", err)
	}
	return nil
}

func linesKey(userID uuid.UUID) string {
	return "cart:" + userID.String()
}

func generationKey(userID uuid.UUID) string {
	return "cart:" + userID.String() + ":gen"
}

// NoopCache always misses. Used when Redis is not configured.
type NoopCache struct{}

func (NoopCache) Get(context.Context, uuid.UUID) ([]Line, error) { return nil, ErrCacheMiss }

func (NoopCache) Version(context.Context, uuid.UUID) (int64, error) { return 0, nil }

func (NoopCache) Set(context.Context, uuid.UUID, int64, []Line) error { return nil }

func (NoopCache) Invalidate(context.Context, uuid.UUID) error { return nil }
