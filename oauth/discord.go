package oauth

import (
	"context"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const defaultDiscordAPIBaseURL = "https://discord.com/api"

// Discord implements Provider over the Discord v10 API.
type Discord struct {
	oauth *oauth2.Config

	// APIBaseURL is overridable for tests; zero value means production.
	APIBaseURL string
}

func NewDiscord(cfg Config) *Discord {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"identify", "email"}
	}
	return &Discord{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoints.Discord,
		},
	}
}

func (d *Discord) Name() string { return "discord" }

func (d *Discord) AuthCodeURL(state string) string {
	return d.oauth.AuthCodeURL(state)
}

func (d *Discord) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return d.oauth.Exchange(ctx, code)
}

func (d *Discord) FetchProfile(ctx context.Context, token *oauth2.Token) (Profile, error) {
	base := d.APIBaseURL
	if base == "" {
		base = defaultDiscordAPIBaseURL
	}

	var user struct {
		ID         string `json:"id"`
		Username   string `json:"username"`
		GlobalName string `json:"global_name"`
		Email      string `json:"email"`
		Verified   bool   `json:"verified"`
		Avatar     string `json:"avatar"`
	}
	if err := fetchJSON(ctx, d.oauth.Client(ctx, token), base+"/users/@me", &user); err != nil {
		return Profile{}, err
	}
	if user.ID == "" {
		return Profile{}, fmt.Errorf("%w: missing user id", ErrProviderResponse)
	}

	displayName := user.GlobalName
	if displayName == "" {
		displayName = user.Username
	}

	var avatarURL string
	if user.Avatar != "" {
		avatarURL = "https://cdn.discordapp.com/avatars/" + user.ID + "/" + user.Avatar + ".png"
	}

	return Profile{
		Provider:      d.Name(),
		Subject:       user.ID,
		Email:         user.Email,
		EmailVerified: user.Verified,
		DisplayName:   displayName,
		AvatarURL:     avatarURL,
	}, nil
}
