package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"

	"github.com/nkiryanov/userdir/internal/apperrors"
)

const (
	facebookAuthURL  = "https://www.facebook.com/v19.0/dialog/oauth"
	facebookTokenURL = "https://graph.facebook.com/v19.0/oauth/access_token"
	facebookGraphURL = "https://graph.facebook.com"
)

type FacebookConfig struct {
	AppConfig

	// Optional, used in tests to point to fake endpoints
	Endpoint   *oauth2.Endpoint
	GraphURL   string
	HTTPClient *http.Client
}

type Facebook struct {
	app      AppConfig
	oauth    *oauth2.Config
	graphURL string
	client   *http.Client
}

func NewFacebook(cfg FacebookConfig) *Facebook {
	endpoint := oauth2.Endpoint{AuthURL: facebookAuthURL, TokenURL: facebookTokenURL, AuthStyle: oauth2.AuthStyleInParams}
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	graphURL := cfg.GraphURL
	if graphURL == "" {
		graphURL = facebookGraphURL
	}

	return &Facebook{
		app: cfg.AppConfig,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{"email", "public_profile"},
		},
		graphURL: graphURL,
		client:   httpClientOrDefault(cfg.HTTPClient),
	}
}

func (f *Facebook) Name() string {
	return ProviderFacebook
}

func (f *Facebook) Configured() bool {
	return f.app.configured()
}

func (f *Facebook) AuthCodeURL(state string) string {
	return f.oauth.AuthCodeURL(state)
}

type facebookProfile struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (f *Facebook) Identify(ctx context.Context, code string) (Identity, error) {
	ctx = withClient(ctx, f.client)

	token, err := f.oauth.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: code exchange failed: %w", apperrors.ErrOAuthIdentity, err)
	}

	meURL := f.graphURL + "/me?" + url.Values{"fields": {"id,name,email"}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, meURL, nil)
	if err != nil {
		return Identity{}, err
	}

	resp, err := f.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: profile request failed: %w", apperrors.ErrOAuthIdentity, err)
	}
	defer resp.Body.Close() // nolint:errcheck

	var me facebookProfile
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return Identity{}, fmt.Errorf("%w: profile is not valid json: %w", apperrors.ErrOAuthIdentity, err)
	}
	if resp.StatusCode != http.StatusOK || me.ID == "" {
		reason := resp.Status
		if me.Error != nil {
			reason = me.Error.Message
		}
		return Identity{}, fmt.Errorf("%w: profile request failed: %s", apperrors.ErrOAuthIdentity, reason)
	}

	return Identity{Provider: ProviderFacebook, Subject: me.ID, Email: me.Email, Name: me.Name}, nil
}
