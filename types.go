package authcore

import (
	"context"
	"time"
)

// Account is the identity row this engine reads and writes. The host
// application owns the backing table; only the fields named here matter
// to authentication. PasswordHash is empty for OAuth-only accounts,
// TOTPSecret and BackupCodeHashes are set only while TOTPEnabled.
type Account struct {
	ID               string
	Email            string // lowercase-normalized, unique
	DisplayName      string
	PasswordHash     string
	TOTPSecret       []byte
	BackupCodeHashes []string // hex SHA-256, ordered
	TOTPEnabled      bool
	Provider         string // identity provider name, empty for local accounts
	ProviderID       string // provider-assigned subject
	EmailVerified    bool
	Role             string
	AvatarURL        string
	CreatedAt        time.Time
}

// AccountStore is implemented by the host application over its
// relational store. Lookups return ErrAccountNotFound when no row
// matches; Create returns ErrAccountExists on a duplicate email.
//
// EnableTOTP and DisableTOTP are multi-field commits: secret, backup
// code hashes, and the enabled flag change together or not at all.
type AccountStore interface {
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByProvider(ctx context.Context, provider, providerID string) (*Account, error)
	Create(ctx context.Context, account *Account) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	UpdateProfile(ctx context.Context, id, displayName, avatarURL string) error
	LinkProvider(ctx context.Context, id, provider, providerID string) error
	MarkEmailVerified(ctx context.Context, id string) error
	EnableTOTP(ctx context.Context, id string, secret []byte, backupHashes []string) error
	DisableTOTP(ctx context.Context, id string) error
	ReplaceBackupCodes(ctx context.Context, id string, backupHashes []string) error
}

// Mailer delivers the one-time tokens this engine generates. The engine
// never formats message bodies; it hands over address, display name,
// and the raw token.
type Mailer interface {
	SendEmailVerification(ctx context.Context, email, displayName, token string) error
	SendPasswordReset(ctx context.Context, email, displayName, token string) error
}

// TokenPair is a freshly minted access/refresh pair. ExpiresIn is the
// access token lifetime in seconds, for the HTTP response body.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// LoginResult is the outcome of a successful credential check. When
// Requires2FA is set, Tokens is nil and Ticket must be presented to
// ConfirmLoginTOTP or ConfirmLoginBackupCode within its TTL.
type LoginResult struct {
	Requires2FA bool       `json:"requires2FA"`
	Ticket      string     `json:"ticket,omitempty"`
	Tokens      *TokenPair `json:"tokens,omitempty"`
	Account     *Account   `json:"-"`
}

// TOTPSetup is handed to the user exactly once at 2FA setup time.
type TOTPSetup struct {
	SecretBase32 string
	ProvisionURI string
}

// OAuthResult is the outcome of a completed OAuth callback. ReturnURL
// is the post-login destination captured when the flow began.
type OAuthResult struct {
	LoginResult
	ReturnURL string
}
