// Facebook reel upload protocol. Unlike Instagram's single container call,
// Facebook splits publishing into an upload-start phase (reserving a video
// id), a hosted-file upload against rupload.facebook.com, status polling on
// the video id, and a finish phase that actually publishes.

package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"
)

// Facebook video_status values surfaced by VideoStatus.
const (
	VideoReady = "ready"
	VideoError = "error"
)

// VideoStatusResult is the status block of a processing reel video.
// Raw preserves the platform's full status object for diagnostics.
type VideoStatusResult struct {
	VideoStatus string          `json:"video_status"`
	Error       json.RawMessage `json:"error,omitempty"`
	Raw         json.RawMessage `json:"-"`
}

// FinishReelResult is the response of the finish/publish phase. Facebook is
// not uniform here: success may arrive as {success:true, post_id} or as
// {id, permalink_url}. Succeeded recognizes both shapes.
type FinishReelResult struct {
	Success      bool   `json:"success,omitempty"`
	PostID       string `json:"post_id,omitempty"`
	ID           string `json:"id,omitempty"`
	PermalinkURL string `json:"permalink_url,omitempty"`
	Message      string `json:"message,omitempty"`
}

// Succeeded reports whether the finish response matches any known success
// shape. Reviewed against the platform docs whenever the API version moves.
func (r *FinishReelResult) Succeeded() bool {
	return r.Success || r.ID != ""
}

// ReelID returns the published reel's id, whichever shape carried it.
func (r *FinishReelResult) ReelID() string {
	if r.PostID != "" {
		return r.PostID
	}
	return r.ID
}

// PublishReelOptions are the optional parameters of the finish phase.
type PublishReelOptions struct {
	ShareToFeed  bool
	AudioName    string
	ThumbnailURL string
}

type startReelResponse struct {
	VideoID string `json:"video_id"`
}

type videoStatusEnvelope struct {
	Status json.RawMessage `json:"status"`
}

// StartReelUpload begins a reel upload for a page and returns the video id
// that identifies the upload session on the platform side.
func (c *Client) StartReelUpload(ctx context.Context, pageID, accessToken, videoURL string) (string, error) {
	params := url.Values{
		"upload_phase": {"start"},
		"access_token": {accessToken},
		"video_url":    {videoURL},
	}
	var resp startReelResponse
	if err := c.postForm(ctx, fmt.Sprintf("/%s/video_reels", pageID), params, &resp); err != nil {
		return "", fmt.Errorf("start reel upload: %w", err)
	}
	if resp.VideoID == "" {
		return "", fmt.Errorf("start reel upload: missing video_id in start response")
	}
	log.Info().Str("pageId", pageID).Str("videoId", resp.VideoID).Msg("Reel upload started")
	return resp.VideoID, nil
}

// UploadHostedReel points the reserved video id at a hosted file URL. The
// platform pulls the file itself; the call returns once the pull is accepted.
func (c *Client) UploadHostedReel(ctx context.Context, videoID, accessToken, fileURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/%s", c.uploadBaseURL, videoID), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	// rupload authenticates via header, not query/form parameters.
	req.Header.Set("Authorization", "OAuth "+accessToken)
	req.Header.Set("file_url", fileURL)

	body, err := c.do(req)
	if err != nil {
		return fmt.Errorf("upload hosted reel %s: %w", videoID, err)
	}
	var resp successResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return fmt.Errorf("upload hosted reel %s: parse response: %w", videoID, err)
	}
	if !resp.Success {
		return fmt.Errorf("upload hosted reel %s: platform reported failure", videoID)
	}
	log.Info().Str("videoId", videoID).Msg("Hosted reel file upload accepted")
	return nil
}

// VideoStatus fetches the processing status of an uploaded reel video.
func (c *Client) VideoStatus(ctx context.Context, videoID, accessToken string) (*VideoStatusResult, error) {
	params := url.Values{
		"access_token": {accessToken},
		"fields":       {"status"},
	}
	var envelope videoStatusEnvelope
	if err := c.getJSON(ctx, "/"+videoID, params, &envelope); err != nil {
		return nil, fmt.Errorf("video status %s: %w", videoID, err)
	}
	if envelope.Status == nil {
		return &VideoStatusResult{}, nil
	}
	var result VideoStatusResult
	if err := json.Unmarshal(envelope.Status, &result); err != nil {
		return nil, fmt.Errorf("video status %s: parse status: %w", videoID, err)
	}
	result.Raw = envelope.Status
	return &result, nil
}

// FinishReelUpload publishes a processed reel video to the page.
func (c *Client) FinishReelUpload(ctx context.Context, pageID, accessToken, videoID, description string, opts PublishReelOptions) (*FinishReelResult, error) {
	shareToFeed := "false"
	if opts.ShareToFeed {
		shareToFeed = "true"
	}
	params := url.Values{
		"upload_phase":  {"finish"},
		"video_id":      {videoID},
		"description":   {description},
		"share_to_feed": {shareToFeed},
		"access_token":  {accessToken},
		"video_state":   {"PUBLISHED"},
	}
	if opts.AudioName != "" {
		params.Set("audio_name", opts.AudioName)
	}
	if opts.ThumbnailURL != "" {
		params.Set("thumbnail_url", opts.ThumbnailURL)
	}

	var resp FinishReelResult
	if err := c.postForm(ctx, fmt.Sprintf("/%s/video_reels", pageID), params, &resp); err != nil {
		return nil, fmt.Errorf("finish reel upload %s: %w", videoID, err)
	}
	if resp.Succeeded() {
		log.Info().Str("pageId", pageID).Str("videoId", videoID).Str("reelId", resp.ReelID()).Msg("Reel published")
	}
	return &resp, nil
}
