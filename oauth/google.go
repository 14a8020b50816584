package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cloudcanvas/accounts/config"
	"github.com/cloudcanvas/accounts/utils"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleProvider authenticates against Google's OAuth 2.0 endpoints. Google
// returns the primary email directly on the userinfo document.
type GoogleProvider struct {
	cfg *oauth2.Config
}

func NewGoogleProvider(client config.OAuthClientConfig) *GoogleProvider {
	return &GoogleProvider{
		cfg: &oauth2.Config{
			ClientID:     client.ClientID,
			ClientSecret: client.ClientSecret,
			RedirectURL:  client.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
	}
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.cfg.AuthCodeURL(state)
}

func (p *GoogleProvider) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	token, err := p.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("google: %w: %v", utils.ErrProviderExchangeFailed, err)
	}
	return &Token{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	}, nil
}

func (p *GoogleProvider) FetchProfile(ctx context.Context, token *Token) (*Profile, error) {
	client := p.cfg.Client(ctx, &oauth2.Token{AccessToken: token.AccessToken})
	resp, err := client.Get(googleUserInfoURL)
	if err != nil {
		return nil, fmt.Errorf("google userinfo request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google userinfo status: %s", resp.Status)
	}
	var body struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode google userinfo: %w", err)
	}
	return &Profile{
		ProviderUserID: body.ID,
		Email:          body.Email,
		DisplayName:    body.Name,
	}, nil
}
