package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/janiskrasemann/vmarket/internal/fetcher"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// Redis stores the latest Fields per source under "<prefix>:<id>".
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(cfg RedisConfig) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return newRedis(client, cfg.Prefix, cfg.TTL), nil
}

func newRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if prefix == "" {
		prefix = "vmarket"
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) Name() string { return "redis" }

func (r *Redis) Key(id string) string {
	return fmt.Sprintf("%s:%s", r.prefix, id)
}

// Ping checks connectivity so misconfiguration surfaces at startup.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Publish(ctx context.Context, id string, fields fetcher.Fields) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", id, err)
	}
	if err := r.client.Set(ctx, r.Key(id), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.Key(id), err)
	}
	return nil
}

func (r *Redis) Close() error {
	if r == nil || r.client == nil {
		return nil
	}
	return r.client.Close()
}
