package repository

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type redisCredentialStore struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewRedisCredentialStore keeps the token at credential:<slot>. No TTL is set;
// expiry is the server's concern.
func NewRedisCredentialStore(client *redis.Client, slot string, logger *zap.Logger) CredentialStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisCredentialStore{client: client, key: "credential:" + slot, logger: logger}
}

func (s *redisCredentialStore) Set(ctx context.Context, token string) error {
	return s.client.Set(ctx, s.key, token, 0).Err()
}

func (s *redisCredentialStore) Get(ctx context.Context) (string, bool) {
	token, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Warn("read credential", zap.String("key", s.key), zap.Error(err))
		}
		return "", false
	}
	return token, token != ""
}

func (s *redisCredentialStore) Clear(ctx context.Context) error {
	return s.client.Del(ctx, s.key).Err()
}
