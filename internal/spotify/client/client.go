package client

import (
	"bytes"
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

const (
	// BaseURL is the Spotify Web API base URL.
	BaseURL = "https://api.spotify.com/v1"
)

var log = logging.Logger("spotify")

// Client is a Spotify Web API client. It holds no credentials: every call
// carries the bearer token of the principal it acts for.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API root.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client used for API requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// New creates a new Spotify client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    BaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Response is a successful API response. Body is empty for 204 No Content.
type Response struct {
	StatusCode int
	Body       []byte
}

// Empty reports whether the provider answered without a body.
func (r *Response) Empty() bool {
	return r == nil || r.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(r.Body)) == 0
}

// Get performs a GET request to the Spotify API.
func (c *Client) Get(ctx context.Context, token, path string, result interface{}) (*Response, error) {
	return c.request(ctx, token, http.MethodGet, path, nil, result)
}

// Put performs a PUT request to the Spotify API.
func (c *Client) Put(ctx context.Context, token, path string, body interface{}, result interface{}) (*Response, error) {
	return c.request(ctx, token, http.MethodPut, path, body, result)
}

// Post performs a POST request to the Spotify API.
func (c *Client) Post(ctx context.Context, token, path string, body interface{}, result interface{}) (*Response, error) {
	return c.request(ctx, token, http.MethodPost, path, body, result)
}

// request performs a single attempt. Failures surface to the caller, which
// retries at its own cadence.
func (c *Client) request(ctx context.Context, token, method, path string, body interface{}, result interface{}) (*Response, error) {
	if token == "" {
		return nil, serrors.ErrNotAuthenticated
	}

	var bodyReader io.Reader
	var jsonBody []byte
	if body != nil {
		var err error
		jsonBody, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	fullURL := c.baseURL + path

	if jsonBody != nil {
		log.Debugf("%s %s body: %s", method, fullURL, string(jsonBody))
	} else {
		log.Debugf("%s %s", method, fullURL)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	log.Debugf("response: %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Debugf("response body: %s", string(respBody))
		return nil, serrors.Upstream(serrors.ErrUpstreamPlayback, resp.StatusCode, string(respBody))
	}

	out := &Response{StatusCode: resp.StatusCode, Body: respBody}
	if result != nil && !out.Empty() {
		if err := json.Unmarshal(respBody, result); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
	}

	return out, nil
}

// APIError represents a Spotify API error response body.
type APIError struct {
	ErrorInfo struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
		Reason  string `json:"reason"`
	} `json:"error"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Spotify API error %d: %s", e.ErrorInfo.Status, e.ErrorInfo.Message)
}

// ParseAPIError decodes the provider's error body from an upstream error.
// It returns nil when err carries no structured Spotify error.
func ParseAPIError(err error) *APIError {
	var upErr *serrors.UpstreamError
	if !serrors.As(err, &upErr) {
		return nil
	}
	var apiErr APIError
	if json.Unmarshal([]byte(upErr.Body), &apiErr) != nil || apiErr.ErrorInfo.Message == "" {
		return nil
	}
	return &apiErr
}

// IsNoActiveDeviceError checks if an error is a "no active device" error.
func IsNoActiveDeviceError(err error) bool {
	var upErr *serrors.UpstreamError
	if !serrors.As(err, &upErr) || upErr.Status != http.StatusNotFound {
		return false
	}
	if apiErr := ParseAPIError(err); apiErr != nil && apiErr.ErrorInfo.Reason != "" {
		return apiErr.ErrorInfo.Reason == "NO_ACTIVE_DEVICE"
	}
	return true
}

// BuildURL builds a URL with query parameters.
func BuildURL(path string, params map[string]string) string {
	if len(params) == 0 {
		return path
	}

	u, _ := url.Parse(path)
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}
