package stores

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TOTPSetupStore holds the pending TOTP secret generated at 2FA setup
// time, keyed by account id. The secret stays here, never on the
// account, until the user proves possession and confirms; then it is
// consumed and committed in one step.
type TOTPSetupStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewTOTPSetupStore returns a store under the "2fa_setup" namespace.
func NewTOTPSetupStore(client redis.UniversalClient) *TOTPSetupStore {
	return &TOTPSetupStore{redis: client, prefix: "2fa_setup"}
}

func (s *TOTPSetupStore) key(accountID string) string {
	return s.prefix + ":" + accountID
}

// Save stores the raw pending secret for accountID, replacing any
// earlier pending setup.
func (s *TOTPSetupStore) Save(ctx context.Context, accountID string, secret []byte, ttl time.Duration) error {
	if err := s.redis.Set(ctx, s.key(accountID), secret, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPendingUnavailable, err)
	}
	return nil
}

// Get returns the pending secret without consuming it. Setup needs the
// secret twice: once to check the user's first code, once at confirm.
func (s *TOTPSetupStore) Get(ctx context.Context, accountID string) ([]byte, error) {
	data, err := s.redis.Get(ctx, s.key(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPendingNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPendingUnavailable, err)
	}
	return data, nil
}

// Consume atomically reads and deletes the pending secret.
func (s *TOTPSetupStore) Consume(ctx context.Context, accountID string) ([]byte, error) {
	data, err := s.redis.GetDel(ctx, s.key(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrPendingNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrPendingUnavailable, err)
	}
	return data, nil
}

// Delete drops any pending setup for accountID.
func (s *TOTPSetupStore) Delete(ctx context.Context, accountID string) error {
	if err := s.redis.Del(ctx, s.key(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrPendingUnavailable, err)
	}
	return nil
}
