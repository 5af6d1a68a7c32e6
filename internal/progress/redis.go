package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/voltlab/circuitreview/config"
)

// RedisStore keeps timelines in Redis lists with a TTL, for multi-process or
// restart-tolerant deployments.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

func key(id string) string { return "progress:" + id }

func (s *RedisStore) Append(ctx context.Context, id string, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := s.client.RPush(ctx, key(id), data).Err(); err != nil {
		return err
	}
	return s.client.Expire(ctx, key(id), s.ttl).Err()
}

func (s *RedisStore) Events(ctx context.Context, id string) ([]Event, error) {
	items, err := s.client.LRange(ctx, key(id), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, len(items))
	for _, item := range items {
		var ev Event
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

func (s *RedisStore) Clear(ctx context.Context, id string) error {
	return s.client.Del(ctx, key(id)).Err()
}

// NewStore selects the timeline backing once at process start: Redis when
// configured and reachable, otherwise the in-process map.
func NewStore(ctx context.Context, cfg config.ProgressConfig, logger *log.Logger) Store {
	if !cfg.Redis.Enabled() {
		return NewMemoryStore()
	}
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Addr(),
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.Timeout,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		if logger != nil {
			logger.Printf("redis unavailable (%v), using in-memory progress store", err)
		}
		return NewMemoryStore()
	}
	return NewRedisStore(client, cfg.TTL)
}
