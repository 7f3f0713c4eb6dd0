package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relaychat/authcore/internal/secrets"
)

var (
	// ErrNotFound means no live session exists for the given id.
	ErrNotFound = errors.New("session not found")
	// ErrHashMismatch means the presented refresh token does not match the
	// stored hash — either a stale rotation or a stolen token.
	ErrHashMismatch = errors.New("refresh token hash mismatch")
	// ErrRedisUnavailable wraps transport failures to the backing store.
	ErrRedisUnavailable = errors.New("session backend unavailable")
)

// Store persists sessions in Redis, one record per refresh lineage keyed
// by the refresh token's jti, plus a per-account set index used for bulk
// invalidation. Rotation always deletes the old record and creates a new
// one; records are never updated in place.
type Store struct {
	redis  redis.UniversalClient
	prefix string
}

// NewStore returns a Store using prefix as the key namespace (default
// "session").
func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "session"
	}
	return &Store{redis: client, prefix: prefix}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

func (s *Store) accountKey(accountID string) string {
	return s.prefix + ":acct:" + accountID
}

// Create stores a new session for accountID holding the hash of
// rawRefresh, expiring after ttl.
func (s *Store) Create(ctx context.Context, accountID, sessionID, rawRefresh string, ttl time.Duration) (*Session, error) {
	now := time.Now()
	sess := &Session{
		ID:          sessionID,
		AccountID:   accountID,
		RefreshHash: HashRefreshToken(rawRefresh),
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(ttl).Unix(),
	}

	data, err := encodeSession(sess)
	if err != nil {
		return nil, err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.key(sessionID), data, ttl)
		pipe.SAdd(ctx, s.accountKey(accountID), sessionID)
		pipe.Expire(ctx, s.accountKey(accountID), ttl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return sess, nil
}

// Validate checks that a live session exists for sessionID, belongs to
// accountID, and matches the presented raw refresh token. The hash
// comparison is constant time. No state is mutated.
func (s *Store) Validate(ctx context.Context, accountID, sessionID, rawRefresh string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	sess, err := decodeSession(data)
	if err != nil {
		return nil, ErrNotFound
	}
	sess.ID = sessionID

	if time.Now().Unix() >= sess.ExpiresAt {
		_ = s.Delete(ctx, accountID, sessionID)
		return nil, ErrNotFound
	}
	if sess.AccountID != accountID {
		return nil, ErrNotFound
	}

	presented := HashRefreshToken(rawRefresh)
	if !secrets.Equal(presented[:], sess.RefreshHash[:]) {
		return nil, ErrHashMismatch
	}

	return sess, nil
}

// Delete removes one session and its index entry. Deleting an absent
// session is not an error.
func (s *Store) Delete(ctx context.Context, accountID, sessionID string) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.key(sessionID))
		pipe.SRem(ctx, s.accountKey(accountID), sessionID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// DeleteAllForAccount removes every session for accountID. It is
// unconditional: the caller's own session is not spared, so a password
// change always forces a global logout.
func (s *Store) DeleteAllForAccount(ctx context.Context, accountID string) error {
	accountKey := s.accountKey(accountID)

	sessionIDs, err := s.redis.SMembers(ctx, accountKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, sessionID := range sessionIDs {
			pipe.Del(ctx, s.key(sessionID))
		}
		pipe.Del(ctx, accountKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// ActiveSessionIDs returns the indexed session ids for accountID. Entries
// whose records have expired out from under the index are filtered.
func (s *Store) ActiveSessionIDs(ctx context.Context, accountID string) ([]string, error) {
	ids, err := s.redis.SMembers(ctx, s.accountKey(accountID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.IntCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.Exists(ctx, s.key(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	live := make([]string, 0, len(ids))
	for i, cmd := range cmds {
		if n, _ := cmd.Result(); n > 0 {
			live = append(live, ids[i])
		}
	}
	return live, nil
}
