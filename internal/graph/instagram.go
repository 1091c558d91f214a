// Instagram Business operations. Media publishing goes through the container
// protocol: create a REELS container referencing a hosted video URL, poll its
// status_code until FINISHED, then publish it. The container id is the handle
// the reelflow state machine carries between phases.

package graph

import (
	"context"
	"fmt"
	"net/url"

	"github.com/rs/zerolog/log"
)

// Instagram container status codes returned by ContainerStatus.
const (
	ContainerFinished   = "FINISHED"
	ContainerInProgress = "IN_PROGRESS"
	ContainerError      = "ERROR"
)

// InstagramProfile is an Instagram Business account's public profile.
type InstagramProfile struct {
	ID                string `json:"id"`
	IGID              int64  `json:"ig_id,omitempty"`
	Username          string `json:"username,omitempty"`
	Name              string `json:"name,omitempty"`
	Biography         string `json:"biography,omitempty"`
	Website           string `json:"website,omitempty"`
	ProfilePictureURL string `json:"profile_picture_url,omitempty"`
	FollowersCount    int64  `json:"followers_count,omitempty"`
	FollowsCount      int64  `json:"follows_count,omitempty"`
	MediaCount        int64  `json:"media_count,omitempty"`
}

type containerStatusResponse struct {
	ID         string `json:"id"`
	StatusCode string `json:"status_code"`
}

// InstagramProfile fetches profile details for an Instagram Business Account,
// authorized by the connected page's access token.
func (c *Client) InstagramProfile(ctx context.Context, instagramID, accessToken string) (*InstagramProfile, error) {
	params := url.Values{
		"access_token": {accessToken},
		"fields":       {"biography,username,profile_picture_url,website,followers_count,follows_count,media_count,name,ig_id"},
	}
	var resp InstagramProfile
	if err := c.getJSON(ctx, "/"+instagramID, params, &resp); err != nil {
		return nil, fmt.Errorf("instagram profile %s: %w", instagramID, err)
	}
	return &resp, nil
}

// CreateReelContainer creates a REELS media container from a hosted video URL.
// Instagram ingests the URL server-side; there is no separate upload step.
// Returns the container (creation) id.
func (c *Client) CreateReelContainer(ctx context.Context, instagramID, accessToken, videoURL, caption string, shareToFeed bool) (string, error) {
	params := url.Values{
		"media_type":   {"REELS"},
		"video_url":    {videoURL},
		"caption":      {caption},
		"access_token": {accessToken},
	}
	if shareToFeed {
		params.Set("share_to_feed", "true")
	}
	var resp createdObjectResponse
	if err := c.postForm(ctx, fmt.Sprintf("/%s/media", instagramID), params, &resp); err != nil {
		return "", fmt.Errorf("create reel container: %w", err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("create reel container: no id in response")
	}
	log.Info().Str("instagramId", instagramID).Str("creationId", resp.ID).Msg("Reel container created")
	return resp.ID, nil
}

// ContainerStatus returns the processing status_code of a media container:
// IN_PROGRESS, FINISHED, or ERROR. An empty string means the platform
// returned neither a status nor an error.
func (c *Client) ContainerStatus(ctx context.Context, creationID, accessToken string) (string, error) {
	params := url.Values{
		"access_token": {accessToken},
		"fields":       {"status_code"},
	}
	var resp containerStatusResponse
	if err := c.getJSON(ctx, "/"+creationID, params, &resp); err != nil {
		return "", fmt.Errorf("container status %s: %w", creationID, err)
	}
	return resp.StatusCode, nil
}

// PublishContainer publishes a finished media container and returns the id of
// the created media object.
func (c *Client) PublishContainer(ctx context.Context, instagramID, creationID, accessToken string) (string, error) {
	params := url.Values{
		"creation_id":  {creationID},
		"access_token": {accessToken},
	}
	var resp createdObjectResponse
	if err := c.postForm(ctx, fmt.Sprintf("/%s/media_publish", instagramID), params, &resp); err != nil {
		return "", fmt.Errorf("publish container %s: %w", creationID, err)
	}
	if resp.ID == "" {
		return "", fmt.Errorf("publish container %s: no id in response", creationID)
	}
	log.Info().Str("creationId", creationID).Str("mediaId", resp.ID).Msg("Container published")
	return resp.ID, nil
}
