package shelfsdk

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/juanclpzq/digital-library/pkg/jwtx"
	"github.com/juanclpzq/digital-library/pkg/slogx"
)

const (
	DefaultTimeout  = 10 * time.Second
	DefaultTokenTTL = jwtx.DefaultAccessTokenTTL
)

// Client talks to the library backend. It holds no session state and is
// safe for concurrent use.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// DefaultTokenTTL is assumed when an access token carries no expiry.
	DefaultTokenTTL time.Duration

	Logger *slog.Logger

	now func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client, including its logging transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if c.HTTPClient != nil {
			c.HTTPClient.Timeout = d
		}
	}
}

// WithDefaultTokenTTL sets the lifetime assumed for tokens that carry none.
func WithDefaultTokenTTL(d time.Duration) Option {
	return func(c *Client) { c.DefaultTokenTTL = d }
}

// WithLogger sets the logger used for outbound requests.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.Logger = l }
}

// WithClock replaces the clock used to derive token expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient returns a Client for the API at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL:         strings.TrimSuffix(baseURL, "/"),
		DefaultTokenTTL: DefaultTokenTTL,
		Logger:          slog.Default(),
		now:             time.Now,
	}
	c.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(c)
	}
	if c.HTTPClient.Transport == nil {
		c.HTTPClient.Transport = slogx.NewTransport(nil, c.Logger)
	}
	return c
}

// tokens builds a Tokens value, working out when the access token expires.
func (c *Client) tokens(p tokenPayload, fallbackRefresh string) *Tokens {
	expiresAt, err := jwtx.ExpiresAt(p.Token)
	if err != nil {
		ttl := c.DefaultTokenTTL
		if p.ExpiresIn > 0 {
			ttl = time.Duration(p.ExpiresIn) * time.Second
		}
		expiresAt = c.now().Add(ttl)
	}

	refresh := p.RefreshToken
	if refresh == "" {
		refresh = fallbackRefresh
	}

	return &Tokens{
		AccessToken:  p.Token,
		RefreshToken: refresh,
		ExpiresAt:    expiresAt,
	}
}
