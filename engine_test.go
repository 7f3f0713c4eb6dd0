package authcore

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// memStore is an in-memory AccountStore for engine tests.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]*Account // by id
}

func newMemStore() *memStore {
	return &memStore{accounts: map[string]*Account{}}
}

func (s *memStore) clone(a *Account) *Account {
	cp := *a
	cp.TOTPSecret = append([]byte(nil), a.TOTPSecret...)
	cp.BackupCodeHashes = append([]string(nil), a.BackupCodeHashes...)
	return &cp
}

func (s *memStore) GetByID(_ context.Context, id string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[id]; ok {
		return s.clone(a), nil
	}
	return nil, ErrAccountNotFound
}

func (s *memStore) GetByEmail(_ context.Context, email string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == email {
			return s.clone(a), nil
		}
	}
	return nil, ErrAccountNotFound
}

func (s *memStore) GetByProvider(_ context.Context, provider, providerID string) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Provider == provider && a.ProviderID == providerID {
			return s.clone(a), nil
		}
	}
	return nil, ErrAccountNotFound
}

func (s *memStore) Create(_ context.Context, account *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == account.Email {
			return ErrAccountExists
		}
	}
	s.accounts[account.ID] = s.clone(account)
	return nil
}

func (s *memStore) update(id string, mutate func(*Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	mutate(a)
	return nil
}

func (s *memStore) UpdatePasswordHash(_ context.Context, id, hash string) error {
	return s.update(id, func(a *Account) { a.PasswordHash = hash })
}

func (s *memStore) UpdateProfile(_ context.Context, id, displayName, avatarURL string) error {
	return s.update(id, func(a *Account) {
		a.DisplayName = displayName
		a.AvatarURL = avatarURL
	})
}

func (s *memStore) LinkProvider(_ context.Context, id, provider, providerID string) error {
	return s.update(id, func(a *Account) {
		a.Provider = provider
		a.ProviderID = providerID
	})
}

func (s *memStore) MarkEmailVerified(_ context.Context, id string) error {
	return s.update(id, func(a *Account) { a.EmailVerified = true })
}

func (s *memStore) EnableTOTP(_ context.Context, id string, secret []byte, backupHashes []string) error {
	return s.update(id, func(a *Account) {
		a.TOTPSecret = append([]byte(nil), secret...)
		a.BackupCodeHashes = append([]string(nil), backupHashes...)
		a.TOTPEnabled = true
	})
}

func (s *memStore) DisableTOTP(_ context.Context, id string) error {
	return s.update(id, func(a *Account) {
		a.TOTPSecret = nil
		a.BackupCodeHashes = nil
		a.TOTPEnabled = false
	})
}

func (s *memStore) ReplaceBackupCodes(_ context.Context, id string, backupHashes []string) error {
	return s.update(id, func(a *Account) {
		a.BackupCodeHashes = append([]string(nil), backupHashes...)
	})
}

// memMailer records the last token sent per address.
type memMailer struct {
	mu           sync.Mutex
	verification map[string]string
	reset        map[string]string
}

func newMemMailer() *memMailer {
	return &memMailer{verification: map[string]string{}, reset: map[string]string{}}
}

func (m *memMailer) SendEmailVerification(_ context.Context, email, _, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verification[email] = token
	return nil
}

func (m *memMailer) SendPasswordReset(_ context.Context, email, _, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset[email] = token
	return nil
}

func (m *memMailer) lastReset(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reset[email]
}

func (m *memMailer) lastVerification(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verification[email]
}

type testEnv struct {
	engine *Engine
	redis  *miniredis.Miniredis
	store  *memStore
	mailer *memMailer
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := DefaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Token.Issuer = "relaychat-test"
	cfg.TOTP.Issuer = "RelayChat"
	for _, m := range mutate {
		m(&cfg)
	}

	store := newMemStore()
	mailer := newMemMailer()
	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithAccountStore(store).
		WithMailer(mailer).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, redis: mr, store: store, mailer: mailer}
}

func (env *testEnv) register(t *testing.T, email, pw string) *LoginResult {
	t.Helper()
	result, err := env.engine.Register(context.Background(), email, pw, "Test User")
	if err != nil {
		t.Fatalf("Register(%s) failed: %v", email, err)
	}
	return result
}

func TestRegisterLoginRefreshRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg := env.register(t, "alice@example.com", "Passw0rd!")
	if reg.Tokens == nil {
		t.Fatal("registration must grant a session when verification is not required")
	}

	login, err := env.engine.Login(ctx, "alice@example.com", "Passw0rd!")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if login.Requires2FA || login.Tokens == nil {
		t.Fatalf("expected plain token grant, got %+v", login)
	}

	accountID, err := env.engine.VerifyAccess(login.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess failed: %v", err)
	}
	if accountID != reg.Account.ID {
		t.Fatalf("access token subject mismatch: %s vs %s", accountID, reg.Account.ID)
	}

	oldRefresh := login.Tokens.RefreshToken
	rotated, err := env.engine.Refresh(ctx, oldRefresh)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if rotated.RefreshToken == oldRefresh {
		t.Fatal("rotation must mint a new refresh token")
	}

	// The used refresh token is dead; the new one works.
	if _, err := env.engine.Refresh(ctx, oldRefresh); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected ErrRefreshInvalid on replay, got %v", err)
	}
	if _, err := env.engine.Refresh(ctx, rotated.RefreshToken); err != nil {
		t.Fatalf("new refresh token must rotate cleanly: %v", err)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)

	env.register(t, "alice@example.com", "Passw0rd!")
	if _, err := env.engine.Register(context.Background(), "Alice@Example.COM", "Passw0rd!", "Dup"); !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	env := newTestEnv(t)

	for _, pw := range []string{"short1A", "password123", "alllowercase1", "ALLUPPERCASE1", "NoDigitsHere"} {
		if _, err := env.engine.Register(context.Background(), "weak@example.com", pw, ""); !errors.Is(err, ErrPasswordPolicy) {
			t.Errorf("password %q: expected ErrPasswordPolicy, got %v", pw, err)
		}
	}
}

func TestRegistrationDisabled(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.Account.DisableRegistration = true })

	if _, err := env.engine.Register(context.Background(), "alice@example.com", "Passw0rd!", ""); !errors.Is(err, ErrRegistrationDisabled) {
		t.Fatalf("expected ErrRegistrationDisabled, got %v", err)
	}
}

func TestLogoutKillsSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg := env.register(t, "alice@example.com", "Passw0rd!")
	if err := env.engine.Logout(ctx, reg.Tokens.RefreshToken); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if _, err := env.engine.Refresh(ctx, reg.Tokens.RefreshToken); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("expected dead refresh token after logout, got %v", err)
	}
}

func TestLogoutAllKillsEverySession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	reg := env.register(t, "alice@example.com", "Passw0rd!")
	second, err := env.engine.Login(ctx, "alice@example.com", "Passw0rd!")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	if err := env.engine.LogoutAll(ctx, reg.Account.ID); err != nil {
		t.Fatalf("LogoutAll failed: %v", err)
	}

	for _, refresh := range []string{reg.Tokens.RefreshToken, second.Tokens.RefreshToken} {
		if _, err := env.engine.Refresh(ctx, refresh); !errors.Is(err, ErrRefreshInvalid) {
			t.Fatalf("expected dead refresh token after LogoutAll, got %v", err)
		}
	}
}

func TestEmailVerificationGate(t *testing.T) {
	env := newTestEnv(t, func(cfg *Config) { cfg.Account.RequireVerifiedEmail = true })
	ctx := context.Background()

	reg := env.register(t, "alice@example.com", "Passw0rd!")
	if reg.Tokens != nil {
		t.Fatal("no session before the email is verified")
	}

	if _, err := env.engine.Login(ctx, "alice@example.com", "Passw0rd!"); !errors.Is(err, ErrEmailUnverified) {
		t.Fatalf("expected ErrEmailUnverified, got %v", err)
	}

	verifyToken := env.mailer.lastVerification("alice@example.com")
	if verifyToken == "" {
		t.Fatal("registration must have mailed a verification token")
	}
	if err := env.engine.VerifyEmail(ctx, verifyToken); err != nil {
		t.Fatalf("VerifyEmail failed: %v", err)
	}

	// Tokens are single-use.
	if err := env.engine.VerifyEmail(ctx, verifyToken); !errors.Is(err, ErrActionTokenInvalid) {
		t.Fatalf("expected ErrActionTokenInvalid on reuse, got %v", err)
	}

	login, err := env.engine.Login(ctx, "alice@example.com", "Passw0rd!")
	if err != nil {
		t.Fatalf("Login after verification failed: %v", err)
	}
	if login.Tokens == nil {
		t.Fatal("expected a session after verification")
	}
}
