package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token type discriminators carried in the "typ" claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// ErrInvalid is returned for every verification failure: bad signature,
// expired, wrong type, malformed. Callers never see the underlying cause,
// which keeps the boundary free of parser internals.
var ErrInvalid = errors.New("invalid token")

// Config holds the signing secret and lifetimes for both token kinds.
type Config struct {
	Secret     []byte
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Leeway     time.Duration
}

// Claims is the payload shared by access and refresh tokens. Subject is
// the account id; refresh tokens additionally carry a random ID (jti)
// that the session store uses to locate the stored hash.
type Claims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Manager signs and verifies HS256 access and refresh tokens.
type Manager struct {
	config Config
}

// NewManager validates cfg and returns a Manager. Defaults: 15m access,
// 7d refresh.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("token secret must be at least 32 bytes")
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = 15 * time.Minute
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid token TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	return &Manager{config: cfg}, nil
}

// AccessTTL returns the configured access-token lifetime.
func (m *Manager) AccessTTL() time.Duration {
	return m.config.AccessTTL
}

// RefreshTTL returns the configured refresh-token lifetime.
func (m *Manager) RefreshTTL() time.Duration {
	return m.config.RefreshTTL
}

// IssueAccess signs a short-lived access token for accountID.
func (m *Manager) IssueAccess(accountID string) (string, error) {
	return m.sign(accountID, TypeAccess, "", m.config.AccessTTL)
}

// IssueRefresh signs a refresh token for accountID and returns it with
// its jti. The jti is not secret; it only correlates the token with its
// session record.
func (m *Manager) IssueRefresh(accountID string) (string, string, error) {
	jti := uuid.NewString()
	signed, err := m.sign(accountID, TypeRefresh, jti, m.config.RefreshTTL)
	if err != nil {
		return "", "", err
	}
	return signed, jti, nil
}

func (m *Manager) sign(accountID, tokenType, jti string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			ID:        jti,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.Secret)
}

// VerifyAccess parses and verifies an access token. Any failure maps to
// ErrInvalid.
func (m *Manager) VerifyAccess(signed string) (*Claims, error) {
	return m.verify(signed, TypeAccess)
}

// VerifyRefresh parses and verifies a refresh token. Any failure maps to
// ErrInvalid; a structurally valid refresh token always carries a jti.
func (m *Manager) VerifyRefresh(signed string) (*Claims, error) {
	claims, err := m.verify(signed, TypeRefresh)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

func (m *Manager) verify(signed, wantType string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	parsed, err := parser.ParseWithClaims(signed, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return m.config.Secret, nil
	})
	if err != nil {
		return nil, ErrInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalid
	}
	if claims.TokenType != wantType || claims.Subject == "" {
		return nil, ErrInvalid
	}

	return claims, nil
}
