package repository

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pulseboard/device-service/internal/client"
)

const sessionKeyPrefix = "session:"

// SessionRecord is the Redis-side state for an issued token. The JWT itself
// carries the claims; this record exists so revocation takes effect before
// the token expires.
type SessionRecord struct {
	TokenID   string    `json:"token_id"`
	DeviceKey string    `json:"device_key"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionRepository tracks live sessions in Redis with a TTL matching token
// lifetime.
type SessionRepository interface {
	Put(ctx context.Context, rec SessionRecord, ttl time.Duration) error
	Get(ctx context.Context, tokenID string) (*SessionRecord, error)
	Delete(ctx context.Context, tokenID string) error
}

type redisSessionRepository struct {
	rdb *client.RedisClient
}

func NewRedisSessionRepository(rdb *client.RedisClient) SessionRepository {
	return &redisSessionRepository{rdb: rdb}
}

func (r *redisSessionRepository) Put(ctx context.Context, rec SessionRecord, ttl time.Duration) error {
	return r.rdb.SetJSON(ctx, sessionKeyPrefix+rec.TokenID, rec, ttl)
}

func (r *redisSessionRepository) Get(ctx context.Context, tokenID string) (*SessionRecord, error) {
	var rec SessionRecord
	if err := r.rdb.GetJSON(ctx, sessionKeyPrefix+tokenID, &rec); err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (r *redisSessionRepository) Delete(ctx context.Context, tokenID string) error {
	return r.rdb.Del(ctx, sessionKeyPrefix+tokenID).Err()
}
