package interaction

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// RedisStore is a ResultStore backed by Redis, for deployments where
// several engine instances should share one cache. Entry-count bounding
// is delegated to the Redis instance's own eviction policy; the TTL is
// enforced per key.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger zerolog.Logger
}

func NewRedisStore(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		prefix: "interaction:",
		logger: logger,
	}
}

// Get reports a miss on any Redis or decode error: a degraded cache must
// only ever cause recomputation, never a wrong answer.
func (s *RedisStore) Get(ctx context.Context, fingerprint string) ([]Result, bool) {
	raw, err := s.client.Get(ctx, s.prefix+fingerprint).Bytes()
	if err != nil {
		if err != redis.Nil {
			s.logger.Warn().Err(err).Msg("interaction cache read failed")
		}
		return nil, false
	}
	var results []Result
	if err := json.Unmarshal(raw, &results); err != nil {
		s.logger.Warn().Err(err).Msg("interaction cache entry corrupt")
		return nil, false
	}
	return results, true
}

func (s *RedisStore) Set(ctx context.Context, fingerprint string, results []Result) {
	raw, err := json.Marshal(results)
	if err != nil {
		s.logger.Warn().Err(err).Msg("interaction cache encode failed")
		return
	}
	if err := s.client.Set(ctx, s.prefix+fingerprint, raw, s.ttl).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("interaction cache write failed")
	}
}
