package limiters

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const lockoutRecordVersion1 = 1

// ErrLockoutUnavailable wraps transport failures to the counter backend.
var ErrLockoutUnavailable = errors.New("lockout backend unavailable")

// LockoutConfig tunes the brute-force guard. The origin threshold is a
// multiple of the email threshold so shared origins (NAT gateways) are
// not over-blocked.
type LockoutConfig struct {
	EmailThreshold   int           // failures before an email lock (default 5)
	OriginMultiplier int           // origin threshold = multiplier × email threshold (default 2)
	AttemptWindow    time.Duration // sliding window for counting failures (default 5m)
	LockDuration     time.Duration // how long a lock holds (default 15m)
}

func (c *LockoutConfig) applyDefaults() {
	if c.EmailThreshold <= 0 {
		c.EmailThreshold = 5
	}
	if c.OriginMultiplier <= 0 {
		c.OriginMultiplier = 2
	}
	if c.AttemptWindow <= 0 {
		c.AttemptWindow = 5 * time.Minute
	}
	if c.LockDuration <= 0 {
		c.LockDuration = 15 * time.Minute
	}
}

// Status is the verdict of a pre-authentication lockout check.
type Status struct {
	Locked     bool
	RetryAfter time.Duration
}

// FailureResult reports the effect of recording one failed attempt.
type FailureResult struct {
	ShouldLock        bool
	AttemptsRemaining int
}

type lockoutRecord struct {
	Attempts    uint16
	LastAttempt int64
	LockedUntil int64
}

// LoginGuard keeps two independent sliding-window failure counters per
// login attempt: one keyed by normalized email, one by client origin.
// Counters are plain read-modify-write; a near-simultaneous pair of
// failures may under-count by one, which is accepted — availability wins
// over exact counting.
type LoginGuard struct {
	redis  redis.UniversalClient
	config LockoutConfig
	now    func() time.Time
}

// NewLoginGuard returns a guard over the given Redis client.
func NewLoginGuard(client redis.UniversalClient, cfg LockoutConfig) *LoginGuard {
	cfg.applyDefaults()
	return &LoginGuard{redis: client, config: cfg, now: time.Now}
}

func emailKey(email string) string {
	return "lockout:email:" + strings.ToLower(strings.TrimSpace(email))
}

func originKey(origin string) string {
	return "lockout:origin:" + origin
}

func (g *LoginGuard) originThreshold() int {
	return g.config.EmailThreshold * g.config.OriginMultiplier
}

// Check reports whether email or origin is currently locked. It must be
// called, and honored, before any password verification work: a locked
// account gets the same answer whether or not it exists.
func (g *LoginGuard) Check(ctx context.Context, email, origin string) (Status, error) {
	now := g.now()

	for _, key := range []string{emailKey(email), originKey(origin)} {
		record, err := g.load(ctx, key)
		if err != nil {
			return Status{}, err
		}
		if record == nil {
			continue
		}
		if record.LockedUntil > now.Unix() {
			return Status{
				Locked:     true,
				RetryAfter: time.Unix(record.LockedUntil, 0).Sub(now),
			}, nil
		}
	}

	return Status{}, nil
}

// RecordFailure bumps both counters for one failed attempt. A failure
// landing after the attempt window has elapsed resets its counter to 1
// rather than compounding — the window slides, it is not a fixed bucket.
// The returned AttemptsRemaining tracks the email counter, the one a UI
// hint is about.
func (g *LoginGuard) RecordFailure(ctx context.Context, email, origin string) (FailureResult, error) {
	now := g.now()

	emailLocked, remaining, err := g.bump(ctx, emailKey(email), g.config.EmailThreshold, now)
	if err != nil {
		return FailureResult{}, err
	}
	originLocked, _, err := g.bump(ctx, originKey(origin), g.originThreshold(), now)
	if err != nil {
		return FailureResult{}, err
	}

	return FailureResult{
		ShouldLock:        emailLocked || originLocked,
		AttemptsRemaining: remaining,
	}, nil
}

// Clear deletes both counters. Called on successful authentication so
// stale counters stop occupying storage.
func (g *LoginGuard) Clear(ctx context.Context, email, origin string) error {
	if err := g.redis.Del(ctx, emailKey(email), originKey(origin)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

func (g *LoginGuard) bump(ctx context.Context, key string, threshold int, now time.Time) (locked bool, remaining int, err error) {
	record, err := g.load(ctx, key)
	if err != nil {
		return false, 0, err
	}

	if record == nil || now.Unix()-record.LastAttempt > int64(g.config.AttemptWindow.Seconds()) {
		record = &lockoutRecord{}
		record.Attempts = 1
	} else {
		record.Attempts++
	}
	record.LastAttempt = now.Unix()

	ttl := g.config.AttemptWindow
	if int(record.Attempts) >= threshold {
		record.LockedUntil = now.Add(g.config.LockDuration).Unix()
		ttl = g.config.LockDuration
		locked = true
	}

	if err := g.save(ctx, key, record, ttl); err != nil {
		return false, 0, err
	}

	remaining = threshold - int(record.Attempts)
	if remaining < 0 {
		remaining = 0
	}
	return locked, remaining, nil
}

func (g *LoginGuard) load(ctx context.Context, key string) (*lockoutRecord, error) {
	data, err := g.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	record, err := decodeLockoutRecord(data)
	if err != nil {
		// A corrupt counter is dropped rather than trusted.
		return nil, nil
	}
	return record, nil
}

func (g *LoginGuard) save(ctx context.Context, key string, record *lockoutRecord, ttl time.Duration) error {
	data, err := encodeLockoutRecord(record)
	if err != nil {
		return err
	}
	if err := g.redis.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}

func encodeLockoutRecord(record *lockoutRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(lockoutRecordVersion1)
	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.LastAttempt); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.LockedUntil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeLockoutRecord(data []byte) (*lockoutRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != lockoutRecordVersion1 {
		return nil, errors.New("invalid lockout record version")
	}

	record := &lockoutRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.LastAttempt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.LockedUntil); err != nil {
		return nil, err
	}
	return record, nil
}
