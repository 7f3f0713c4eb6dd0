package oauth

import (
	"context"
	"fmt"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const defaultGitHubAPIBaseURL = "https://api.github.com"

// GitHub implements Provider over the GitHub REST API. The profile's
// public email field is unreliable, so the email always comes from the
// /user/emails listing, which carries verification flags.
type GitHub struct {
	oauth *oauth2.Config

	// APIBaseURL is overridable for tests; zero value means production.
	APIBaseURL string
}

func NewGitHub(cfg Config) *GitHub {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"read:user", "user:email"}
	}
	return &GitHub{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoints.GitHub,
		},
	}
}

func (g *GitHub) Name() string { return "github" }

func (g *GitHub) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state)
}

func (g *GitHub) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return g.oauth.Exchange(ctx, code)
}

func (g *GitHub) FetchProfile(ctx context.Context, token *oauth2.Token) (Profile, error) {
	base := g.APIBaseURL
	if base == "" {
		base = defaultGitHubAPIBaseURL
	}
	client := g.oauth.Client(ctx, token)

	var user struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := fetchJSON(ctx, client, base+"/user", &user); err != nil {
		return Profile{}, err
	}
	if user.ID == 0 {
		return Profile{}, fmt.Errorf("%w: missing user id", ErrProviderResponse)
	}

	displayName := user.Name
	if displayName == "" {
		displayName = user.Login
	}

	profile := Profile{
		Provider:    g.Name(),
		Subject:     strconv.FormatInt(user.ID, 10),
		DisplayName: displayName,
		AvatarURL:   user.AvatarURL,
	}

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := fetchJSON(ctx, client, base+"/user/emails", &emails); err != nil {
		return Profile{}, err
	}

	// Prefer the primary verified address; fall back to any verified one.
	for _, e := range emails {
		if e.Primary && e.Verified {
			profile.Email = e.Email
			profile.EmailVerified = true
			return profile, nil
		}
	}
	for _, e := range emails {
		if e.Verified {
			profile.Email = e.Email
			profile.EmailVerified = true
			break
		}
	}
	return profile, nil
}
