// OAuth token exchange operations for Facebook Login.
//
// Three exchanges are supported:
//  1. Authorization code -> short-lived user token
//  2. Short-lived user token -> long-lived user token (fb_exchange_token)
//  3. Page token -> long-lived page token (access_type=page, ~60 days)
//
// Long-lived page tokens are what the broker persists in the token store so
// webhook-triggered actions can run without a token in the request.

package graph

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog/log"
)

// TokenResponse is the Graph API OAuth token payload.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
}

// UserAccessToken exchanges an OAuth authorization code for a user access token.
func (c *Client) UserAccessToken(ctx context.Context, authCode, redirectURI string) (*TokenResponse, error) {
	params := url.Values{
		"client_id":     {c.app.AppID},
		"client_secret": {c.app.AppSecret},
		"redirect_uri":  {redirectURI},
		"code":          {authCode},
	}
	var resp TokenResponse
	if err := c.getJSON(ctx, "/oauth/access_token", params, &resp); err != nil {
		return nil, fmt.Errorf("exchange auth code: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("exchange auth code: no access token in response")
	}
	log.Info().Msg("User access token obtained")
	return &resp, nil
}

// ExtendUserToken exchanges a short-lived user token for a long-lived one.
func (c *Client) ExtendUserToken(ctx context.Context, shortLivedToken string) (*TokenResponse, error) {
	params := url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {c.app.AppID},
		"client_secret":     {c.app.AppSecret},
		"fb_exchange_token": {shortLivedToken},
	}
	var resp TokenResponse
	if err := c.getJSON(ctx, "/oauth/access_token", params, &resp); err != nil {
		return nil, fmt.Errorf("extend user token: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("extend user token: no access token in response")
	}
	days := resp.ExpiresIn / 86400
	log.Info().Int64("expiresInDays", days).Msg("Long-lived user token obtained")
	return &resp, nil
}

// ExtendPageToken exchanges a page token for a long-lived page token
// (valid for roughly 60 days).
func (c *Client) ExtendPageToken(ctx context.Context, pageAccessToken string) (*TokenResponse, error) {
	params := url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {c.app.AppID},
		"client_secret":     {c.app.AppSecret},
		"fb_exchange_token": {pageAccessToken},
		"access_type":       {"page"},
	}
	var resp TokenResponse
	if err := c.getJSON(ctx, "/oauth/access_token", params, &resp); err != nil {
		return nil, fmt.Errorf("extend page token: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("extend page token: no access token in response")
	}
	log.Info().Msg("Long-lived page token obtained")
	return &resp, nil
}
