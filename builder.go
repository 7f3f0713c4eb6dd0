package authcore

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/relaychat/authcore/internal/audit"
	"github.com/relaychat/authcore/internal/limiters"
	"github.com/relaychat/authcore/internal/metrics"
	"github.com/relaychat/authcore/internal/stores"
	"github.com/relaychat/authcore/oauth"
	"github.com/relaychat/authcore/password"
	"github.com/relaychat/authcore/session"
	"github.com/relaychat/authcore/token"
)

// Builder assembles an Engine. Redis and an AccountStore are required;
// everything else has a default or is optional.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	accounts  AccountStore
	mailer    Mailer
	providers []oauth.Provider
	auditSink AuditSink
}

func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithAccountStore(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithMailer enables the email verification and password reset flows.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithProvider registers an OAuth provider. Call once per provider.
func (b *Builder) WithProvider(p oauth.Provider) *Builder {
	b.providers = append(b.providers, p)
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the configuration and wires the engine together.
func (b *Builder) Build() (*Engine, error) {
	cfg := b.config
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.accounts == nil {
		return nil, errors.New("account store is required")
	}

	hasher, err := password.NewHasher(cfg.Password.Iterations)
	if err != nil {
		return nil, err
	}
	tokens, err := token.NewManager(token.Config{
		Secret:     cfg.Token.Secret,
		Issuer:     cfg.Token.Issuer,
		AccessTTL:  cfg.Token.AccessTTL,
		RefreshTTL: cfg.Token.RefreshTTL,
	})
	if err != nil {
		return nil, err
	}

	providers := make(map[string]oauth.Provider, len(b.providers))
	for _, p := range b.providers {
		if _, dup := providers[p.Name()]; dup {
			return nil, errors.New("duplicate oauth provider: " + p.Name())
		}
		providers[p.Name()] = p
	}

	e := &Engine{
		config:   cfg,
		accounts: b.accounts,
		mailer:   b.mailer,

		hasher:   hasher,
		policy:   cfg.Password.Policy,
		tokens:   tokens,
		sessions: session.NewStore(b.redis, "session"),
		guard:    limiters.NewLoginGuard(b.redis, cfg.Lockout),
		totp:     newTOTPManager(cfg.TOTP.Issuer, cfg.TOTP.Window),

		secondFactorLimiter: limiters.NewAttemptLimiter(b.redis, "2fa_attempts", cfg.TOTP.MaxAttempts, cfg.TOTP.TicketTTL),
		tickets:             stores.NewPendingStore(b.redis, "2fa_temp"),
		oauthStates:         stores.NewPendingStore(b.redis, "oauth_state"),
		verifyTokens:        stores.NewPendingStore(b.redis, "verify_email"),
		resetTokens:         stores.NewPendingStore(b.redis, "pwd_reset"),
		totpSetups:          stores.NewTOTPSetupStore(b.redis),

		providers: providers,

		audit:   audit.NewDispatcher(cfg.Audit, b.auditSink),
		metrics: metrics.NewRegistry(),
	}
	return e, nil
}
