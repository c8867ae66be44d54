package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"

	serrors "github.com/x5uw/SyncRoom/internal/errors"
)

// SpotifyTokenURL is the Spotify token endpoint.
const SpotifyTokenURL = "https://accounts.spotify.com/api/token"

var log = logging.Logger("broker")

// Token is the subset of the token endpoint response the broker reads.
type Token struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	Scope        string `json:"scope"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
}

// tokenResponse is the raw response from Spotify's token endpoint.
type tokenResponse struct {
	Token
	Error     string `json:"error"`
	ErrorDesc string `json:"error_description"`
}

// Broker exchanges long-lived refresh tokens for short-lived access tokens.
// It holds no per-principal state and never caches a result.
type Broker struct {
	clientID     string
	clientSecret string
	tokenURL     string
	httpClient   *http.Client
}

// BrokerOption configures a Broker.
type BrokerOption func(*Broker)

// WithTokenURL points the broker at a different token endpoint.
func WithTokenURL(u string) BrokerOption {
	return func(b *Broker) {
		if u != "" {
			b.tokenURL = u
		}
	}
}

// WithHTTPClient sets the HTTP client used for token requests.
func WithHTTPClient(c *http.Client) BrokerOption {
	return func(b *Broker) {
		if c != nil {
			b.httpClient = c
		}
	}
}

// NewBroker creates a broker authenticating with the given client credentials.
func NewBroker(clientID, clientSecret string, opts ...BrokerOption) *Broker {
	b := &Broker{
		clientID:     clientID,
		clientSecret: clientSecret,
		tokenURL:     SpotifyTokenURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Refresh returns a fresh access token for the given refresh token.
// A rejected refresh token fails with errors.ErrUpstreamAuth.
func (b *Broker) Refresh(ctx context.Context, refreshToken string) (string, error) {
	tok, err := b.RefreshToken(ctx, refreshToken)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// RefreshToken is Refresh returning the full token response. The provider
// may rotate the refresh token; callers that persist tokens should keep it.
func (b *Broker) RefreshToken(ctx context.Context, refreshToken string) (*Token, error) {
	if refreshToken == "" {
		return nil, serrors.Upstream(serrors.ErrUpstreamAuth, 0, "empty refresh token")
	}

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.tokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(b.clientID, b.clientSecret)

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Debugw("refresh rejected", "status", resp.StatusCode, "body", string(body))
		return nil, serrors.Upstream(serrors.ErrUpstreamAuth, resp.StatusCode, string(body))
	}

	var tokenResp tokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if tokenResp.Error != "" {
		return nil, serrors.Upstream(serrors.ErrUpstreamAuth, resp.StatusCode,
			tokenResp.Error+": "+tokenResp.ErrorDesc)
	}
	if tokenResp.AccessToken == "" {
		return nil, serrors.Upstream(serrors.ErrUpstreamAuth, resp.StatusCode, "response has no access_token")
	}

	return &tokenResp.Token, nil
}
