package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/realvibe/site-copilot/internal/core/domain"
)

// MemoryCache keeps recent answer-memory snapshots in Redis so the hot
// lookup path skips Postgres. Entries expire on a TTL; the durable store
// stays authoritative and writers invalidate after every upsert.
type MemoryCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewMemoryCache(addr, password string, db int, ttl time.Duration) (*MemoryCache, error) {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &MemoryCache{client: client, ttl: ttl}, nil
}

func (c *MemoryCache) Close() error {
	return c.client.Close()
}

func (c *MemoryCache) Get(ctx context.Context, siteID, questionHash string) (*domain.MemoryEntry, error) {
	raw, err := c.client.Get(ctx, memoryKey(siteID, questionHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get memory entry: %w", err)
	}

	var entry domain.MemoryEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		// A snapshot we cannot decode is as good as a miss.
		return nil, nil
	}
	return &entry, nil
}

func (c *MemoryCache) Set(ctx context.Context, entry *domain.MemoryEntry) error {
	if entry == nil {
		return nil
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode memory entry: %w", err)
	}
	if err := c.client.Set(ctx, memoryKey(entry.SiteID, entry.QuestionHash), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set memory entry: %w", err)
	}
	return nil
}

func (c *MemoryCache) Invalidate(ctx context.Context, siteID, questionHash string) error {
	if err := c.client.Del(ctx, memoryKey(siteID, questionHash)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis del memory entry: %w", err)
	}
	return nil
}

func memoryKey(siteID, questionHash string) string {
	return fmt.Sprintf("am:%s:%s", siteID, questionHash)
}
