package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/paras-lehana/ai-for-bharat-prompt-challenge-sub001/internal/domain"
)

const (
	demandKeyPrefix = "agrimarket:demand:"
	trustKeyPrefix  = "agrimarket:trust:"
)

type RedisCache struct {
	client redis.UniversalClient
}

func NewRedisCache(addr string, password string, db int) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisCache{client: client}
}

// NewRedisCacheFromClient wraps an existing client, mainly for tests.
func NewRedisCacheFromClient(client redis.UniversalClient) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) GetDemandCount(ctx context.Context, key string) (int, bool, error) {
	val, err := c.client.Get(ctx, demandKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	count, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, err
	}
	return count, true, nil
}

func (c *RedisCache) SetDemandCount(ctx context.Context, key string, count int, ttl time.Duration) error {
	return c.client.Set(ctx, demandKeyPrefix+key, strconv.Itoa(count), ttl).Err()
}

func (c *RedisCache) GetTrustScore(ctx context.Context, vendorID string) (*domain.TrustScore, bool, error) {
	val, err := c.client.Get(ctx, trustKeyPrefix+vendorID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var score domain.TrustScore
	if err := json.Unmarshal([]byte(val), &score); err != nil {
		return nil, false, err
	}
	return &score, true, nil
}

func (c *RedisCache) SetTrustScore(ctx context.Context, score *domain.TrustScore, ttl time.Duration) error {
	if score == nil {
		return nil
	}
	payload, err := json.Marshal(score)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, trustKeyPrefix+score.VendorID, payload, ttl).Err()
}

func (c *RedisCache) InvalidateTrustScore(ctx context.Context, vendorID string) error {
	return c.client.Del(ctx, trustKeyPrefix+vendorID).Err()
}
