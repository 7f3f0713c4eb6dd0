package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const defaultGoogleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// Google implements Provider over Google's OpenID Connect userinfo
// endpoint.
type Google struct {
	oauth *oauth2.Config

	// UserInfoURL is overridable for tests; zero value means production.
	UserInfoURL string
}

func NewGoogle(cfg Config) *Google {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}
	return &Google{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoints.Google,
		},
	}
}

func (g *Google) Name() string { return "google" }

func (g *Google) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state)
}

func (g *Google) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return g.oauth.Exchange(ctx, code)
}

func (g *Google) FetchProfile(ctx context.Context, token *oauth2.Token) (Profile, error) {
	userInfoURL := g.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = defaultGoogleUserInfoURL
	}

	var info struct {
		Sub           string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		Name          string `json:"name"`
		Picture       string `json:"picture"`
	}
	if err := fetchJSON(ctx, g.oauth.Client(ctx, token), userInfoURL, &info); err != nil {
		return Profile{}, err
	}
	if info.Sub == "" {
		return Profile{}, fmt.Errorf("%w: missing subject", ErrProviderResponse)
	}

	return Profile{
		Provider:      g.Name(),
		Subject:       info.Sub,
		Email:         info.Email,
		EmailVerified: info.EmailVerified,
		DisplayName:   info.Name,
		AvatarURL:     info.Picture,
	}, nil
}

// fetchJSON GETs url with the authorized client and decodes the body.
func fetchJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d from %s", ErrProviderResponse, resp.StatusCode, url)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrProviderResponse, err)
	}
	return nil
}
