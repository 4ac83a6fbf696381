package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenStore holds short-lived authentication state: revoked tokens and
// failed login counters.
type TokenStore interface {
	BlacklistToken(ctx context.Context, token string, expiry time.Duration) error
	IsTokenBlacklisted(ctx context.Context, token string) (bool, error)

	RecordFailedLogin(ctx context.Context, email string, window time.Duration) (int64, error)
	FailedLogins(ctx context.Context, email string) (int64, error)
	ResetFailedLogins(ctx context.Context, email string) error
}

// RedisTokenStore implements TokenStore using Redis.
type RedisTokenStore struct {
	redis *redis.Client
}

// NewRedisTokenStore creates a token store backed by Redis.
func NewRedisTokenStore(client *redis.Client) *RedisTokenStore {
	return &RedisTokenStore{redis: client}
}

const (
	blacklistPrefix    = "blacklist:"
	failedLoginsPrefix = "login_failures:"
)

// ---------------------------------------------------------------------------
// Token blacklist
// ---------------------------------------------------------------------------

func (s *RedisTokenStore) BlacklistToken(ctx context.Context, token string, expiry time.Duration) error {
	if expiry <= 0 {
		return nil
	}
	return s.redis.Set(ctx, blacklistPrefix+token, "1", expiry).Err()
}

func (s *RedisTokenStore) IsTokenBlacklisted(ctx context.Context, token string) (bool, error) {
	val, err := s.redis.Exists(ctx, blacklistPrefix+token).Result()
	if err != nil {
		return false, err
	}
	return val > 0, nil
}

// ---------------------------------------------------------------------------
// Failed login counters
// ---------------------------------------------------------------------------

// RecordFailedLogin increments the failure counter for email. The counter
// expires window after the first failure in the series.
func (s *RedisTokenStore) RecordFailedLogin(ctx context.Context, email string, window time.Duration) (int64, error) {
	key := failedLoginsPrefix + strings.ToLower(email)

	var incr *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("record failed login: %w", err)
	}
	return incr.Val(), nil
}

func (s *RedisTokenStore) FailedLogins(ctx context.Context, email string) (int64, error) {
	n, err := s.redis.Get(ctx, failedLoginsPrefix+strings.ToLower(email)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (s *RedisTokenStore) ResetFailedLogins(ctx context.Context, email string) error {
	return s.redis.Del(ctx, failedLoginsPrefix+strings.ToLower(email)).Err()
}
