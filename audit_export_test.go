package authcore_test

// These tests live outside the package on purpose: they prove the audit
// surface is reachable through exported names alone, the way a host
// application sees it.

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/relaychat/authcore"
)

// recordingSink implements authcore.AuditSink without touching any
// internal package.
type recordingSink struct {
	mu     sync.Mutex
	events []authcore.AuditEvent
}

func (s *recordingSink) Emit(_ context.Context, event authcore.AuditEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Name
	}
	return out
}

type hostAccounts struct {
	mu       sync.Mutex
	accounts map[string]*authcore.Account
}

func (s *hostAccounts) GetByID(_ context.Context, id string) (*authcore.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.accounts[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, authcore.ErrAccountNotFound
}

func (s *hostAccounts) GetByEmail(_ context.Context, email string) (*authcore.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, authcore.ErrAccountNotFound
}

func (s *hostAccounts) GetByProvider(context.Context, string, string) (*authcore.Account, error) {
	return nil, authcore.ErrAccountNotFound
}

func (s *hostAccounts) Create(_ context.Context, account *authcore.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *account
	s.accounts[account.ID] = &cp
	return nil
}

func (s *hostAccounts) UpdatePasswordHash(context.Context, string, string) error    { return nil }
func (s *hostAccounts) UpdateProfile(context.Context, string, string, string) error { return nil }
func (s *hostAccounts) LinkProvider(context.Context, string, string, string) error  { return nil }
func (s *hostAccounts) MarkEmailVerified(context.Context, string) error             { return nil }
func (s *hostAccounts) EnableTOTP(context.Context, string, []byte, []string) error  { return nil }
func (s *hostAccounts) DisableTOTP(context.Context, string) error                   { return nil }
func (s *hostAccounts) ReplaceBackupCodes(context.Context, string, []string) error  { return nil }

func TestHostImplementedAuditSink(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := authcore.DefaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Audit = authcore.AuditConfig{Enabled: true, BufferSize: 16}

	sink := &recordingSink{}
	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(client).
		WithAccountStore(&hostAccounts{accounts: map[string]*authcore.Account{}}).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	ctx := authcore.WithClientIP(context.Background(), "203.0.113.9")
	if _, err := engine.Register(ctx, "alice@example.com", "Passw0rd!", ""); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := engine.Login(ctx, "alice@example.com", "WrongPass1"); err == nil {
		t.Fatal("expected a login failure")
	}

	// Close drains the dispatcher, so everything emitted so far has
	// reached the sink.
	engine.Close()

	want := map[string]bool{"register": false, "login_failure": false}
	for _, name := range sink.names() {
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("event %q never reached the host sink (got %v)", name, sink.names())
		}
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, e := range sink.events {
		if e.Name == "login_failure" && e.Origin != "203.0.113.9" {
			t.Errorf("failure event lost its origin: %+v", e)
		}
	}
}

func TestChannelAuditSinkDrains(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := authcore.DefaultConfig()
	cfg.Token.Secret = []byte("0123456789abcdef0123456789abcdef")
	cfg.Audit = authcore.AuditConfig{Enabled: true, BufferSize: 16}

	sink := authcore.NewChannelAuditSink(16)
	engine, err := authcore.New().
		WithConfig(cfg).
		WithRedis(client).
		WithAccountStore(&hostAccounts{accounts: map[string]*authcore.Account{}}).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := engine.Register(context.Background(), "bob@example.com", "Passw0rd!", ""); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	select {
	case event := <-sink.Events():
		if event.Name != "register" {
			t.Fatalf("expected register event, got %q", event.Name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event arrived on the channel sink")
	}
}
