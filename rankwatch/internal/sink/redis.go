package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/hazyhaar/rankcap/rankwatch/ranking"
)

// DefaultRedisChannel is the PUBLISH channel when none is configured.
const DefaultRedisChannel = "rankwatch:snapshots"

// redisClient is the subset of *redis.Client the sink uses.
type redisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// RedisConfig configures the Redis sink.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Channel receives every snapshot. Default: DefaultRedisChannel.
	Channel string
	// LatestTTL expires the rankwatch:latest:{source} key. Zero keeps it forever.
	LatestTTL time.Duration
}

// Redis publishes every snapshot envelope on a channel and keeps the bare
// latest successful snapshot of each source under rankwatch:latest:{source}.
type Redis struct {
	client  redisClient
	channel string
	ttl     time.Duration
}

// NewRedis connects lazily to cfg.Addr.
func NewRedis(cfg RedisConfig) *Redis {
	return newRedis(redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), cfg)
}

func newRedis(c redisClient, cfg RedisConfig) *Redis {
	if cfg.Channel == "" {
		cfg.Channel = DefaultRedisChannel
	}
	return &Redis{client: c, channel: cfg.Channel, ttl: cfg.LatestTTL}
}

// LatestKey is the key holding the newest successful snapshot of source.
func LatestKey(source string) string {
	return "rankwatch:latest:" + source
}

func (r *Redis) Publish(ctx context.Context, snap *ranking.Snapshot) error {
	body, err := json.Marshal(wrap(snap))
	if err != nil {
		return fmt.Errorf("redis: marshal: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, body).Err(); err != nil {
		return fmt.Errorf("redis: publish: %w", err)
	}
	if !snap.Succeeded() {
		return nil
	}
	latest, err := ranking.MarshalSnapshot(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal latest: %w", err)
	}
	if err := r.client.Set(ctx, LatestKey(snap.Source), latest, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis: set latest: %w", err)
	}
	return nil
}

func (r *Redis) Close() error { return r.client.Close() }
