package graph

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

// LiveStream is a created live video with its ingest endpoint split into the
// server/key pair that streaming software (OBS and friends) expects.
type LiveStream struct {
	VideoID      string `json:"video_id"`
	StreamURL    string `json:"stream_url"`
	ServerURL    string `json:"server_url"`
	StreamKey    string `json:"stream_key"`
	SecureURL    string `json:"secure_stream_url,omitempty"`
	BackupURL    string `json:"backup_stream_url,omitempty"`
	BackupKey    string `json:"backup_stream_key,omitempty"`
	BackupServer string `json:"backup_server_url,omitempty"`
}

type liveVideoResponse struct {
	ID                  string   `json:"id"`
	StreamURL           string   `json:"stream_url"`
	SecureStreamURL     string   `json:"secure_stream_url"`
	StreamSecondaryURLs []string `json:"stream_secondary_urls"`
}

// CreateLiveStream creates a live video on a page in LIVE_NOW state and
// returns its RTMPS ingest details. Backup ingest is requested so streaming
// software can fail over mid-broadcast.
func (c *Client) CreateLiveStream(ctx context.Context, pageID, accessToken, title, description string) (*LiveStream, error) {
	params := url.Values{
		"status":               {"LIVE_NOW"},
		"access_token":         {accessToken},
		"enable_backup_ingest": {"true"},
	}
	if title != "" {
		params.Set("title", title)
	}
	if description != "" {
		params.Set("description", description)
	}

	var resp liveVideoResponse
	if err := c.postForm(ctx, fmt.Sprintf("/%s/live_videos", pageID), params, &resp); err != nil {
		return nil, fmt.Errorf("create live stream: %w", err)
	}

	streamURL := resp.SecureStreamURL
	if streamURL == "" {
		streamURL = resp.StreamURL
	}
	if streamURL == "" {
		return nil, fmt.Errorf("create live stream: no stream URL in response")
	}

	server, key, err := ParseStreamURL(streamURL)
	if err != nil {
		return nil, fmt.Errorf("create live stream: %w", err)
	}

	stream := &LiveStream{
		VideoID:   resp.ID,
		StreamURL: streamURL,
		ServerURL: server,
		StreamKey: key,
		SecureURL: resp.SecureStreamURL,
	}
	if len(resp.StreamSecondaryURLs) > 0 {
		stream.BackupURL = resp.StreamSecondaryURLs[0]
		if bServer, bKey, err := ParseStreamURL(stream.BackupURL); err == nil {
			stream.BackupServer = bServer
			stream.BackupKey = bKey
		}
	}

	log.Info().Str("pageId", pageID).Str("videoId", resp.ID).Str("serverUrl", server).Msg("Live stream created")
	return stream, nil
}

// ParseStreamURL splits an RTMPS ingest URL into the server URL and stream
// key. The key is everything after the "/rtmp/" path segment, query string
// included — the platform encodes stream parameters there and they must
// travel with the key.
func ParseStreamURL(streamURL string) (serverURL, streamKey string, err error) {
	const marker = "/rtmp/"
	idx := strings.Index(streamURL, marker)
	if idx < 0 {
		return "", "", fmt.Errorf("unexpected stream URL format: %s", streamURL)
	}
	serverURL = streamURL[:idx] + "/rtmp"
	streamKey = streamURL[idx+len(marker):]
	if streamKey == "" {
		return "", "", fmt.Errorf("stream URL has empty stream key: %s", streamURL)
	}
	return serverURL, streamKey, nil
}
