package github

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	oauthgh "golang.org/x/oauth2/github"
)

var ErrEmptyToken = errors.New("oauth exchange returned an empty token")

// OAuth runs the GitHub authorization-code flow.
type OAuth struct {
	config *oauth2.Config
}

func NewOAuth(clientID, clientSecret, redirectURI string) *OAuth {
	return &OAuth{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURI,
			Scopes:       []string{"read:user", "user:email", "repo"},
			Endpoint:     oauthgh.Endpoint,
		},
	}
}

// AuthCodeURL returns the GitHub authorization page URL carrying state.
func (o *OAuth) AuthCodeURL(state string) string {
	return o.config.AuthCodeURL(state)
}

// Exchange swaps the callback code for a plaintext access token.
func (o *OAuth) Exchange(ctx context.Context, code string) (string, error) {
	token, err := o.config.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("exchange oauth code: %w", err)
	}
	if token.AccessToken == "" {
		return "", ErrEmptyToken
	}
	return token.AccessToken, nil
}
