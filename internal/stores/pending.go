package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relaychat/authcore/internal/secrets"
)

const pendingTokenLength = 48

var (
	// ErrPendingNotFound means the token was never issued, has expired, or
	// was already consumed — the three cases are deliberately identical.
	ErrPendingNotFound = errors.New("pending record not found")
	// ErrPendingUnavailable wraps transport failures to the backend.
	ErrPendingUnavailable = errors.New("pending store backend unavailable")
)

// PendingStore holds single-use, TTL'd string values under a namespaced
// key: 2FA login tickets, OAuth anti-forgery state, email verification
// and password reset tokens. Consume is GETDEL, so a read that observes
// a value guarantees no other reader observes it afterward.
type PendingStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewPendingStore returns a store namespaced by prefix, e.g. "2fa_temp"
// or "oauth_state".
func NewPendingStore(client redis.UniversalClient, prefix string) *PendingStore {
	return &PendingStore{redis: client, prefix: prefix}
}

func (s *PendingStore) key(token string) string {
	return s.prefix + ":" + token
}

// Create stores value under a fresh random token and returns the token.
func (s *PendingStore) Create(ctx context.Context, value string, ttl time.Duration) (string, error) {
	pendingToken, err := secrets.RandomString(pendingTokenLength)
	if err != nil {
		return "", err
	}
	if err := s.redis.Set(ctx, s.key(pendingToken), value, ttl).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrPendingUnavailable, err)
	}
	return pendingToken, nil
}

// Consume atomically reads and deletes the value for token. A second
// Consume of the same token returns ErrPendingNotFound.
func (s *PendingStore) Consume(ctx context.Context, pendingToken string) (string, error) {
	value, err := s.redis.GetDel(ctx, s.key(pendingToken)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrPendingNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrPendingUnavailable, err)
	}
	return value, nil
}
