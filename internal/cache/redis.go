package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nextlevelbuilder/researcher/internal/research"
)

const redisKeyPrefix = "researcher:resp:"

// Redis shares cached responses between gateway replicas.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to url (redis://[user:pass@]host:port/db) and pings it.
func NewRedis(ctx context.Context, url string, ttl time.Duration) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	slog.Info("response cache connected", "backend", "redis", "addr", opts.Addr)
	return NewRedisFromClient(client, ttl), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// Get treats every failure as a miss: a broken cache must never fail a query.
func (r *Redis) Get(ctx context.Context, key string) (research.Response, bool) {
	data, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("cache get failed", "backend", "redis", "error", err)
		}
		return research.Response{}, false
	}

	var resp research.Response
	if err := json.Unmarshal(data, &resp); err != nil || resp.IsEmpty() {
		slog.Warn("cache entry unreadable, ignoring", "key", key, "error", err)
		return research.Response{}, false
	}
	return resp, true
}

func (r *Redis) Set(ctx context.Context, key string, resp research.Response) error {
	if resp.IsEmpty() {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) Close() error { return r.client.Close() }
