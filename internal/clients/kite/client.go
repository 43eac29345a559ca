// Package kite provides a Kite Connect client for the live trades feed and current holdings.
package kite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/aristath/tunefolio/internal/domain"
)

const DefaultBaseURL = "https://api.kite.trade"

var (
	// ErrNoCredentials is returned when the API key or access token is not configured
	ErrNoCredentials = errors.New("kite credentials not configured")
	// ErrTokenExpired is returned when Kite rejects the access token (HTTP 403)
	ErrTokenExpired = errors.New("kite access token expired")
)

// Client talks to the Kite Connect REST API
type Client struct {
	client *resty.Client
	apiKey string
	log    zerolog.Logger

	mu          sync.RWMutex
	accessToken string
}

var (
	_ domain.TradeFeed        = (*Client)(nil)
	_ domain.HoldingsProvider = (*Client)(nil)
)

// NewClient creates a new Kite client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL, apiKey, accessToken string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(15 * time.Second)
	client.SetHeader("X-Kite-Version", "3")

	return &Client{
		client:      client,
		apiKey:      apiKey,
		accessToken: accessToken,
		log:         log.With().Str("client", "kite").Logger(),
	}
}

// SetAccessToken replaces the session token. Kite tokens expire daily, so a
// long running server receives the new one here instead of through a restart.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	c.accessToken = strings.TrimSpace(token)
	c.mu.Unlock()
	c.log.Info().Msg("Access token replaced")
}

// HasCredentials reports whether both the API key and the access token are set
func (c *Client) HasCredentials() bool {
	_, ok := c.credentials()
	return ok
}

func (c *Client) credentials() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken, c.apiKey != "" && c.accessToken != ""
}

// envelope is the standard Kite response wrapper
type envelope struct {
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
	ErrorType string          `json:"error_type"`
}

// Trades returns the trades executed during the current session
func (c *Client) Trades(ctx context.Context) ([]domain.FeedTrade, error) {
	var trades []domain.FeedTrade
	if err := c.get(ctx, "/trades", &trades); err != nil {
		return nil, err
	}
	c.log.Debug().Int("count", len(trades)).Msg("Fetched trades")
	return trades, nil
}

// Holdings returns the positions currently held in the demat account
func (c *Client) Holdings(ctx context.Context) ([]domain.BrokerHolding, error) {
	var holdings []domain.BrokerHolding
	if err := c.get(ctx, "/portfolio/holdings", &holdings); err != nil {
		return nil, err
	}
	c.log.Debug().Int("count", len(holdings)).Msg("Fetched holdings")
	return holdings, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	token, ok := c.credentials()
	if !ok {
		return ErrNoCredentials
	}

	var body envelope
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Authorization", fmt.Sprintf("token %s:%s", c.apiKey, token)).
		SetResult(&body).
		SetError(&body).
		Get(path)
	if err != nil {
		return fmt.Errorf("kite request %s failed: %w", path, err)
	}

	switch {
	case resp.StatusCode() == http.StatusForbidden:
		c.log.Info().Str("path", path).Msg("Kite rejected access token")
		return ErrTokenExpired
	case resp.StatusCode() != http.StatusOK:
		return fmt.Errorf("kite request %s failed: HTTP %d: %s", path, resp.StatusCode(), body.Message)
	}

	if len(body.Data) == 0 || string(body.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(body.Data, out); err != nil {
		return fmt.Errorf("failed to parse kite %s response: %w", path, err)
	}
	return nil
}
