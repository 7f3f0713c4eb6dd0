package oauth

import (
	"context"
	"errors"

	"golang.org/x/oauth2"
)

// ErrProviderResponse means the provider's API answered with something
// other than the documented shape or status.
var ErrProviderResponse = errors.New("unexpected provider response")

// Config is the client registration for one provider, as issued by the
// provider's developer console.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string // empty means the provider's default profile scopes
}

// Profile is the normalized identity a provider reports after a
// completed code exchange. Subject is the provider-side stable user id;
// Email may be empty when the provider withholds it.
type Profile struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	DisplayName   string
	AvatarURL     string
}

// Provider drives the authorization-code flow for one identity
// provider. Implementations hold no per-request state and are safe for
// concurrent use.
type Provider interface {
	Name() string
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
	FetchProfile(ctx context.Context, token *oauth2.Token) (Profile, error)
}
