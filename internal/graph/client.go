// Package graph provides a client for the Meta Graph API endpoints used to
// operate Facebook Pages and their linked Instagram Business accounts:
// publishing posts and reels, fetching feeds and profiles, Messenger sends,
// page webhook subscriptions, and live video creation.
//
// Unlike a single-account client, every operation takes the target id and
// access token explicitly — the broker acts on behalf of many pages, with
// tokens resolved per call (from the request or the token store).
//
// The client is stateless and never retries. Platform-reported errors are
// returned as *APIError with the error payload preserved verbatim in Raw, so
// callers that report errors as data can pass it through untouched.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// defaultBaseURL is the Graph API base URL. The reel upload endpoints
	// require v22.0; the rest of the surface is unified on it.
	defaultBaseURL = "https://graph.facebook.com/v22.0"

	// defaultUploadBaseURL hosts the resumable video upload endpoint used by
	// the Facebook reel flow.
	defaultUploadBaseURL = "https://rupload.facebook.com/video-upload/v22.0"

	// defaultTimeout is the HTTP client timeout for API calls.
	defaultTimeout = 30 * time.Second
)

// Config holds the Meta app credentials loaded once at process start.
// AppID/AppSecret drive the OAuth exchanges and subscription management;
// VerifyToken is consumed by the webhook verification handshake.
type Config struct {
	AppID       string
	AppSecret   string
	VerifyToken string
}

// Client issues Graph API calls on behalf of pages and Instagram accounts.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	uploadBaseURL string
	app           Config
}

// Option customises a Client at construction time.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithBaseURL overrides the Graph API base URL (tests point this at a fake server).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithUploadBaseURL overrides the rupload base URL.
func WithUploadBaseURL(u string) Option {
	return func(c *Client) { c.uploadBaseURL = u }
}

// NewClient creates a Graph API client with the given app credentials.
func NewClient(app Config, opts ...Option) *Client {
	c := &Client{
		httpClient:    &http.Client{Timeout: defaultTimeout},
		baseURL:       defaultBaseURL,
		uploadBaseURL: defaultUploadBaseURL,
		app:           app,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AppID returns the configured Meta app id.
func (c *Client) AppID() string { return c.app.AppID }

// APIError is a Graph API platform error. Raw carries the platform's error
// object exactly as returned, for callers that propagate errors as data.
type APIError struct {
	Message      string          `json:"message"`
	Type         string          `json:"type"`
	Code         int             `json:"code"`
	ErrorSubcode int             `json:"error_subcode,omitempty"`
	FBTraceID    string          `json:"fbtrace_id,omitempty"`
	Raw          json.RawMessage `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Graph API error: %s (type: %s, code: %d)", e.Message, e.Type, e.Code)
}

// do sends the request and returns the response body. A response carrying an
// "error" object is always surfaced as *APIError, even when other fields are
// present alongside it.
func (c *Client) do(req *http.Request) ([]byte, error) {
	startTime := time.Now()
	httpResp, err := c.httpClient.Do(req)
	duration := time.Since(startTime)
	if err != nil {
		log.Debug().Str("method", req.Method).Str("path", req.URL.Path).Dur("duration", duration).Err(err).Msg("Graph API response")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	log.Debug().Str("method", req.Method).Str("path", req.URL.Path).Int("statusCode", httpResp.StatusCode).Dur("duration", duration).Msg("Graph API response")

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if apiErr := extractAPIError(body); apiErr != nil {
		log.Error().Str("errorMessage", apiErr.Message).Str("errorType", apiErr.Type).Int("errorCode", apiErr.Code).Msg("Graph API error")
		return nil, apiErr
	}
	return body, nil
}

// extractAPIError returns the platform error embedded in body, or nil.
func extractAPIError(body []byte) *APIError {
	var shell map[string]json.RawMessage
	if err := json.Unmarshal(body, &shell); err != nil {
		return nil
	}
	raw, ok := shell["error"]
	if !ok {
		return nil
	}
	var apiErr APIError
	if err := json.Unmarshal(raw, &apiErr); err != nil {
		// Non-object "error" values (e.g. a bare string) still mean failure.
		apiErr.Message = strings.Trim(string(raw), `"`)
	}
	apiErr.Raw = raw
	return &apiErr
}

// postForm sends a POST with form-encoded parameters and decodes the response into out.
// Pass a *json.RawMessage as out to capture the response verbatim.
func (c *Client) postForm(ctx context.Context, path string, params url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path,
		strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.decode(req, out)
}

// postJSON sends a POST with a JSON body (Messenger payloads) and query parameters.
func (c *Client) postJSON(ctx context.Context, path string, query url.Values, payload, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(string(data)))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.decode(req, out)
}

// getJSON sends a GET with query parameters and decodes the response into out.
func (c *Client) getJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.decode(req, out)
}

// deleteJSON sends a DELETE with query parameters and decodes the response into out.
func (c *Client) deleteJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.decode(req, out)
}

func (c *Client) decode(req *http.Request, out interface{}) error {
	body, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = append((*raw)[:0], body...)
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w (body: %s)", err, truncate(string(body), 200))
	}
	return nil
}

// truncate returns the first n characters of s, appending "..." if truncated.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
