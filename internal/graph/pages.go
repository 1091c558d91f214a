package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/rs/zerolog/log"
)

// defaultFeedFields is the field list returned by PageFeed when the caller
// does not ask for specific fields.
const defaultFeedFields = "id,message,created_time,full_picture,permalink_url,shares,reactions.summary(total_count),comments.summary(total_count)"

// MediaKind selects the page post endpoint.
type MediaKind string

const (
	MediaNone  MediaKind = "none"
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// Page is one entry from the user's /me/accounts listing, with the linked
// Instagram Business Account resolved.
type Page struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
	Category    string `json:"category,omitempty"`
	About       string `json:"about,omitempty"`
	Bio         string `json:"bio,omitempty"`
	Description string `json:"description,omitempty"`
	Story       string `json:"story,omitempty"`
	FanCount    int64  `json:"fan_count,omitempty"`
	Link        string `json:"link,omitempty"`
	Website     string `json:"website,omitempty"`
	InstagramID string `json:"instagram_id,omitempty"`
}

type pagesResponse struct {
	Data []Page `json:"data"`
}

type igAccountResponse struct {
	InstagramBusinessAccount *struct {
		ID string `json:"id"`
	} `json:"instagram_business_account"`
}

// PostToPage publishes a text, photo, or video post to a page's feed.
// The decoded platform response is returned as-is (pass-through call).
func (c *Client) PostToPage(ctx context.Context, pageID, accessToken, message string, media MediaKind, mediaURL string) (json.RawMessage, error) {
	var path string
	params := url.Values{"access_token": {accessToken}}

	switch {
	case media == MediaImage && mediaURL != "":
		path = fmt.Sprintf("/%s/photos", pageID)
		params.Set("message", message)
		params.Set("url", mediaURL)
	case media == MediaVideo && mediaURL != "":
		path = fmt.Sprintf("/%s/videos", pageID)
		params.Set("description", message)
		params.Set("file_url", mediaURL)
	default:
		path = fmt.Sprintf("/%s/feed", pageID)
		params.Set("message", message)
	}

	var raw json.RawMessage
	if err := c.postForm(ctx, path, params, &raw); err != nil {
		return nil, fmt.Errorf("post to page %s: %w", pageID, err)
	}
	log.Info().Str("pageId", pageID).Str("media", string(media)).Msg("Page post created")
	return raw, nil
}

// PageFeed fetches a page's recent posts. limit <= 0 defaults to 25; an empty
// fields string selects the default field list.
func (c *Client) PageFeed(ctx context.Context, pageID, accessToken string, limit int, fields string) (json.RawMessage, error) {
	if limit <= 0 {
		limit = 25
	}
	if fields == "" {
		fields = defaultFeedFields
	}
	params := url.Values{
		"access_token": {accessToken},
		"limit":        {strconv.Itoa(limit)},
		"fields":       {fields},
	}
	var raw json.RawMessage
	if err := c.getJSON(ctx, fmt.Sprintf("/%s/feed", pageID), params, &raw); err != nil {
		return nil, fmt.Errorf("page feed %s: %w", pageID, err)
	}
	return raw, nil
}

// PageData fetches a page's identity fields (name, category, about, bio, description).
func (c *Client) PageData(ctx context.Context, pageID, accessToken string) (json.RawMessage, error) {
	params := url.Values{
		"access_token": {accessToken},
		"fields":       {"id,name,category,about.limit(10000),bio,description"},
	}
	var raw json.RawMessage
	if err := c.getJSON(ctx, "/"+pageID, params, &raw); err != nil {
		return nil, fmt.Errorf("page data %s: %w", pageID, err)
	}
	return raw, nil
}

// Pages lists the pages the user token can manage and resolves each page's
// linked Instagram Business Account id. A page whose Instagram lookup fails
// is returned without an instagram_id rather than dropped.
func (c *Client) Pages(ctx context.Context, userAccessToken string) ([]Page, error) {
	params := url.Values{
		"access_token": {userAccessToken},
		"fields":       {"id,name,access_token,category,about,bio,description,story,fan_count,link,website,picture"},
	}
	var resp pagesResponse
	if err := c.getJSON(ctx, "/me/accounts", params, &resp); err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}

	for i := range resp.Data {
		page := &resp.Data[i]
		// The instagram_business_account edge requires the page token.
		igParams := url.Values{
			"access_token": {page.AccessToken},
			"fields":       {"instagram_business_account"},
		}
		var ig igAccountResponse
		if err := c.getJSON(ctx, "/"+page.ID, igParams, &ig); err != nil {
			log.Warn().Err(err).Str("pageId", page.ID).Msg("Instagram account lookup failed")
			continue
		}
		if ig.InstagramBusinessAccount != nil {
			page.InstagramID = ig.InstagramBusinessAccount.ID
		}
	}

	log.Debug().Int("pages", len(resp.Data)).Msg("Pages listed")
	return resp.Data, nil
}
