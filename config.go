package authcore

import (
	"errors"
	"time"

	"github.com/relaychat/authcore/internal/limiters"
	"github.com/relaychat/authcore/password"
)

// TokenConfig covers the signed token pair.
type TokenConfig struct {
	Secret     []byte // HMAC key, at least 32 bytes
	Issuer     string
	AccessTTL  time.Duration // default 15m
	RefreshTTL time.Duration // default 7d
}

// PasswordConfig covers hashing and the acceptance policy.
type PasswordConfig struct {
	Iterations int // 0 means the current default, never below the floor
	Policy     password.Policy
}

// TOTPConfig covers the second factor.
type TOTPConfig struct {
	Issuer      string        // label shown in authenticator apps
	Window      int           // accepted steps either side of now, default 1
	SetupTTL    time.Duration // pending-setup secret lifetime, default 10m
	TicketTTL   time.Duration // post-password 2FA ticket lifetime, default 5m
	MaxAttempts int           // code guesses per account per window, default 5
}

// AccountConfig covers registration and email flows.
type AccountConfig struct {
	DisableRegistration  bool
	RequireVerifiedEmail bool          // withhold sessions until the email is verified
	VerificationTTL      time.Duration // email verification token, default 24h
	ResetTTL             time.Duration // password reset token, default 1h
}

// OAuthConfig covers the third-party linking flow.
type OAuthConfig struct {
	StateTTL time.Duration // anti-forgery state lifetime, default 10m
}

// Config assembles every tunable. Zero values fall back to safe
// defaults at Build time; only Token.Secret is mandatory.
type Config struct {
	Token    TokenConfig
	Password PasswordConfig
	Lockout  limiters.LockoutConfig
	TOTP     TOTPConfig
	Account  AccountConfig
	OAuth    OAuthConfig
	Audit    AuditConfig
}

// DefaultConfig returns a Config with every default filled in. The
// caller still has to supply Token.Secret.
func DefaultConfig() Config {
	cfg := Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Token.AccessTTL <= 0 {
		c.Token.AccessTTL = 15 * time.Minute
	}
	if c.Token.RefreshTTL <= 0 {
		c.Token.RefreshTTL = 7 * 24 * time.Hour
	}
	if c.Password.Policy.MinLength == 0 {
		c.Password.Policy = password.DefaultPolicy()
	}
	if c.TOTP.Issuer == "" {
		c.TOTP.Issuer = c.Token.Issuer
	}
	if c.TOTP.Window <= 0 {
		c.TOTP.Window = 1
	}
	if c.TOTP.SetupTTL <= 0 {
		c.TOTP.SetupTTL = 10 * time.Minute
	}
	if c.TOTP.TicketTTL <= 0 {
		c.TOTP.TicketTTL = 5 * time.Minute
	}
	if c.TOTP.MaxAttempts <= 0 {
		c.TOTP.MaxAttempts = 5
	}
	if c.Account.VerificationTTL <= 0 {
		c.Account.VerificationTTL = 24 * time.Hour
	}
	if c.Account.ResetTTL <= 0 {
		c.Account.ResetTTL = time.Hour
	}
	if c.OAuth.StateTTL <= 0 {
		c.OAuth.StateTTL = 10 * time.Minute
	}
}

func (c *Config) validate() error {
	if len(c.Token.Secret) < 32 {
		return errors.New("token secret must be at least 32 bytes")
	}
	return nil
}
