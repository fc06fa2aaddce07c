package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"tradedeck/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const redisKeyPrefix = "series:"

// RedisConfig configures the Redis-backed series cache.
type RedisConfig struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
	TTL      time.Duration
}

// Redis is a SeriesCache backed by Redis, for deployments where several
// dashboard instances share one fetch budget against the exchange.
type Redis struct {
	client *goredis.Client
	ttl    time.Duration
}

// NewRedis creates a Redis series cache and pings the server.
func NewRedis(cfg RedisConfig) (*Redis, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[cache] redis connected at %s", cfg.Addr)
	return &Redis{client: client, ttl: cfg.TTL}, nil
}

// Get returns the cached series if present; Redis handles TTL expiry.
func (r *Redis) Get(ctx context.Context, key Key) ([]model.Bar, bool) {
	data, err := r.client.Get(ctx, redisKeyPrefix+key.String()).Bytes()
	if err != nil {
		if err != goredis.Nil {
			log.Printf("[cache] redis get %s: %v", key, err)
		}
		return nil, false
	}
	var bars []model.Bar
	if err := json.Unmarshal(data, &bars); err != nil {
		log.Printf("[cache] corrupt entry %s, invalidating: %v", key, err)
		r.Invalidate(ctx, key)
		return nil, false
	}
	return bars, true
}

// Set stores a series with the configured TTL.
func (r *Redis) Set(ctx context.Context, key Key, bars []model.Bar) {
	data, err := json.Marshal(bars)
	if err != nil {
		log.Printf("[cache] marshal %s: %v", key, err)
		return
	}
	if err := r.client.Set(ctx, redisKeyPrefix+key.String(), data, r.ttl).Err(); err != nil {
		log.Printf("[cache] redis set %s: %v", key, err)
	}
}

// Invalidate removes a series.
func (r *Redis) Invalidate(ctx context.Context, key Key) {
	if err := r.client.Del(ctx, redisKeyPrefix+key.String()).Err(); err != nil {
		log.Printf("[cache] redis del %s: %v", key, err)
	}
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
