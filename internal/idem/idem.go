package idem

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store guards against duplicate sends. Claim registers a correlation key
// for a message id; when the key was already claimed it returns the message
// id stored by the first claim.
type Store interface {
	Claim(ctx context.Context, key, messageID string, ttl time.Duration) (string, bool, error)
}

type redisStore struct {
	r *redis.Client
}

// NewRedis builds a redis-backed store.
func NewRedis(addr, password string) Store {
	return &redisStore{r: redis.NewClient(&redis.Options{Addr: addr, Password: password})}
}

func (s *redisStore) Claim(ctx context.Context, key, messageID string, ttl time.Duration) (string, bool, error) {
	ok, err := s.r.SetNX(ctx, "idem:"+key, messageID, ttl).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return messageID, true, nil
	}
	existing, err := s.r.Get(ctx, "idem:"+key).Result()
	if err != nil {
		return "", false, err
	}
	return existing, false, nil
}

// Noop always claims. Used when no redis address is configured.
type Noop struct{}

func (Noop) Claim(_ context.Context, _, messageID string, _ time.Duration) (string, bool, error) {
	return messageID, true, nil
}
