package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/teemow/mailsense/internal/instrumentation"
	"github.com/teemow/mailsense/internal/logging"
)

// CallbackPath is where Google redirects after consent.
const CallbackPath = "/oauth/callback"

// Config configures a Client.
type Config struct {
	ClientID     string
	ClientSecret string

	// BaseURL is the externally reachable server URL, used for the redirect
	// and completion URLs.
	BaseURL string

	// Scopes defaults to DefaultScopes.
	Scopes []string

	// Endpoint defaults to google.Endpoint.
	Endpoint oauth2.Endpoint
}

// Client implements the authorizer port against Google.
type Client struct {
	conf    *oauth2.Config
	baseURL string
	tokens  TokenStore
	logger  *slog.Logger
	metrics *instrumentation.Metrics
}

// NewClient creates a Client. logger and metrics may be nil.
func NewClient(cfg Config, tokens TokenStore, logger *slog.Logger, metrics *instrumentation.Metrics) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("google client id and secret are required")
	}
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if tokens == nil {
		return nil, errors.New("token store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	endpoint := cfg.Endpoint
	if endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	return &Client{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  baseURL + CallbackPath,
			Scopes:       scopes,
		},
		baseURL: baseURL,
		tokens:  tokens,
		logger:  logging.WithComponent(logger, "google"),
		metrics: metrics,
	}, nil
}

// BaseURL returns the configured server URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// BeginAuthorization returns the consent URL. flowID becomes the OAuth state.
func (c *Client) BeginAuthorization(_ context.Context, _ string, flowID string) (string, error) {
	if flowID == "" {
		return "", errors.New("flow id is required")
	}
	return c.conf.AuthCodeURL(flowID, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// CheckAuthorizationStatus reports whether a usable token is stored for userID.
func (c *Client) CheckAuthorizationStatus(_ context.Context, userID string) (bool, error) {
	tok, err := c.tokens.Load(userID)
	if errors.Is(err, ErrNoToken) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return tok.RefreshToken != "" || tok.Valid(), nil
}

// Exchange trades an authorization code for a token and stores it for userID.
func (c *Client) Exchange(ctx context.Context, userID, code string) error {
	var tok *oauth2.Token
	err := instrumentation.TrackExternal(ctx, c.metrics, instrumentation.ServiceGoogleOAuth, "exchange",
		func(ctx context.Context) error {
			var err error
			tok, err = c.conf.Exchange(ctx, code)
			return err
		})
	if err != nil {
		return fmt.Errorf("failed to exchange auth code: %w", err)
	}
	if err := c.tokens.Save(userID, tok); err != nil {
		return err
	}
	c.logger.Info("Stored Google token", logging.UserHash(userID))
	return nil
}

// SignOut deletes the stored token of userID.
func (c *Client) SignOut(userID string) error {
	return c.tokens.Delete(userID)
}

// TokenSource returns a refreshing token source for userID that writes
// refreshed tokens back to the store.
func (c *Client) TokenSource(ctx context.Context, userID string) (oauth2.TokenSource, error) {
	tok, err := c.tokens.Load(userID)
	if err != nil {
		return nil, err
	}
	return &savingTokenSource{
		base:   c.conf.TokenSource(ctx, tok),
		last:   tok.AccessToken,
		userID: userID,
		client: c,
	}, nil
}

// HTTPClient returns an authenticated client for userID.
// The client is configured to use HTTP/1.1 to avoid HTTP/2 protocol errors.
func (c *Client) HTTPClient(ctx context.Context, userID string) (*http.Client, error) {
	ts, err := c.TokenSource(ctx, userID)
	if err != nil {
		return nil, err
	}

	client := oauth2.NewClient(ctx, ts)
	if transport, ok := client.Transport.(*oauth2.Transport); ok {
		transport.Base = &http.Transport{
			Proxy:             http.ProxyFromEnvironment,
			ForceAttemptHTTP2: false,
		}
	}
	return client, nil
}

type savingTokenSource struct {
	mu     sync.Mutex
	base   oauth2.TokenSource
	last   string
	userID string
	client *Client
}

func (s *savingTokenSource) Token() (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	if tok.AccessToken != s.last {
		s.last = tok.AccessToken
		if err := s.client.tokens.Save(s.userID, tok); err != nil {
			s.client.logger.Warn("Failed to save refreshed token", logging.UserHash(s.userID), logging.Err(err))
		}
	}
	return tok, nil
}
