// Package discordoauth talks to the Discord OAuth2 API on behalf of members
// who authorized the bot to read their linked accounts.
package discordoauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

const (
	defaultAPIBase = "https://discord.com/api"
	requestTimeout = 10 * time.Second
)

var Scopes = []string{"identify", "connections"}

// ErrUnauthorized is returned when the API still refuses the token after a
// refresh.
var ErrUnauthorized = errors.New("discord oauth token rejected")

type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type Connection struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	Verified bool   `json:"verified"`
	Revoked  bool   `json:"revoked"`
}

type Client struct {
	cfg        *oauth2.Config
	apiBase    string
	httpClient *http.Client
}

type Option func(*Client)

// WithAPIBase points the client at another API root, token endpoints included.
func WithAPIBase(base string) Option {
	return func(c *Client) {
		c.apiBase = base
		c.cfg.Endpoint = oauth2.Endpoint{
			AuthURL:   base + "/oauth2/authorize",
			TokenURL:  base + "/oauth2/token",
			AuthStyle: oauth2.AuthStyleInParams,
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func New(clientID, clientSecret, redirectURL string, opts ...Option) *Client {
	c := &Client{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   "https://discord.com/oauth2/authorize",
				TokenURL:  defaultAPIBase + "/oauth2/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiBase:    defaultAPIBase,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AuthCodeURL is the consent page a member is sent to.
func (c *Client) AuthCodeURL(state string) string {
	return c.cfg.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "consent"))
}

func (c *Client) ctx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// Exchange trades an authorization code for a token.
func (c *Client) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, fmt.Errorf("empty authorization code")
	}
	tok, err := c.cfg.Exchange(c.ctx(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	return tok, nil
}

// Identity returns the member owning tok. The returned token differs from
// tok when it had to be refreshed.
func (c *Client) Identity(ctx context.Context, tok *oauth2.Token) (*Identity, *oauth2.Token, error) {
	var id Identity
	tok, err := c.get(ctx, tok, "/users/@me", &id)
	if err != nil {
		return nil, tok, err
	}
	return &id, tok, nil
}

// Connections returns the third-party accounts linked to the member's profile.
func (c *Client) Connections(ctx context.Context, tok *oauth2.Token) ([]Connection, *oauth2.Token, error) {
	var conns []Connection
	tok, err := c.get(ctx, tok, "/users/@me/connections", &conns)
	if err != nil {
		return nil, tok, err
	}
	return conns, tok, nil
}

// get refreshes an expired token first and retries once after a 401 with a
// forcibly refreshed token.
func (c *Client) get(ctx context.Context, tok *oauth2.Token, path string, dest any) (*oauth2.Token, error) {
	cur, err := c.cfg.TokenSource(c.ctx(ctx), tok).Token()
	if err != nil {
		return tok, fmt.Errorf("refresh token: %w", err)
	}

	status, err := c.do(ctx, cur, path, dest)
	if err != nil {
		return cur, err
	}
	if status != http.StatusUnauthorized {
		return cur, nil
	}

	if cur.RefreshToken == "" {
		return cur, ErrUnauthorized
	}
	stale := *cur
	stale.Expiry = time.Now().Add(-time.Minute)
	refreshed, err := c.cfg.TokenSource(c.ctx(ctx), &stale).Token()
	if err != nil {
		return cur, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	status, err = c.do(ctx, refreshed, path, dest)
	if err != nil {
		return refreshed, err
	}
	if status == http.StatusUnauthorized {
		return refreshed, ErrUnauthorized
	}
	return refreshed, nil
}

func (c *Client) do(ctx context.Context, tok *oauth2.Token, path string, dest any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase+path, nil)
	if err != nil {
		return 0, err
	}
	tok.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return resp.StatusCode, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
	}
	return resp.StatusCode, nil
}
