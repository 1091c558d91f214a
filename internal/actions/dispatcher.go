// Package actions routes string-keyed operations from direct Lambda
// invocations (Step Functions states, EventBridge rule targets) to the
// Graph API client and the reel publishing flow. Missing required
// parameters come back as structured error records, never as panics or
// transport errors; the orchestrator branches on the record's fields.
package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sfn"
	"github.com/rs/zerolog/log"

	"pagebridge/internal/graph"
	"pagebridge/internal/metrics"
	"pagebridge/internal/reelflow"
	"pagebridge/internal/tokenstore"
)

// metricsNamespace is the CloudWatch namespace for action metrics.
const metricsNamespace = "PageBridge/Actions"

// Request is the direct-invocation payload. Fields are a union across all
// actions; each action validates the subset it needs.
type Request struct {
	Action string `json:"action"`

	PageID          string `json:"page_id,omitempty"`
	InstagramID     string `json:"instagram_id,omitempty"`
	PageAccessToken string `json:"page_access_token,omitempty"`
	Message         string `json:"message,omitempty"`
	MediaType       string `json:"mediaType,omitempty"`
	MediaURL        string `json:"mm_url,omitempty"`
	SocialMedia     string `json:"social_media,omitempty"`
	Platform        string `json:"platform,omitempty"`

	VideoID        string `json:"video_id,omitempty"`
	CreationID     string `json:"creation_id,omitempty"`
	Attempt        int    `json:"attempt,omitempty"`
	PublishAttempt int    `json:"publish_attempt,omitempty"`
	ShareToFeed    *bool  `json:"share_to_feed,omitempty"`
	AudioName      string `json:"audio_name,omitempty"`
	ThumbnailURL   string `json:"thumbnail_url,omitempty"`

	UserToken   string `json:"userToken,omitempty"`
	Token       string `json:"token,omitempty"`
	AuthCode    string `json:"authCode,omitempty"`
	RedirectURI string `json:"redirectUri,omitempty"`

	Limit  int    `json:"limit,omitempty"`
	Fields string `json:"fields,omitempty"`

	OriginalCommentID string `json:"original_comment_id,omitempty"`
	ReplyText         string `json:"reply_text,omitempty"`
	CommenterID       string `json:"commenter_id,omitempty"`

	RecipientID    string `json:"recipient_id,omitempty"`
	MessageText    string `json:"message_text,omitempty"`
	AttachmentType string `json:"attachment_type,omitempty"`
	AttachmentURL  string `json:"attachment_url,omitempty"`
	UserID         string `json:"user_id,omitempty"`

	LiveStreamData    json.RawMessage `json:"live_stream_data,omitempty"`
	StreamDescription string          `json:"stream_description,omitempty"`
}

// ErrorRecord is the structured failure shape handed back to the invoker.
type ErrorRecord struct {
	Status       string `json:"status,omitempty"`
	Error        string `json:"error"`
	ErrorDetails string `json:"error_details,omitempty"`
	Timestamp    string `json:"timestamp,omitempty"`
}

// Dispatcher executes actions. StateMachineARN, when set, lets post_reel
// hand the multi-phase flow to a Step Functions execution instead of
// answering inline.
type Dispatcher struct {
	graph           *graph.Client
	flow            *reelflow.Flow
	tokens          tokenstore.Store
	sfnClient       *sfn.Client
	stateMachineARN string
}

// New creates a Dispatcher. sfnClient may be nil when no state machine is
// configured.
func New(g *graph.Client, flow *reelflow.Flow, tokens tokenstore.Store, sfnClient *sfn.Client, stateMachineARN string) *Dispatcher {
	return &Dispatcher{
		graph:           g,
		flow:            flow,
		tokens:          tokens,
		sfnClient:       sfnClient,
		stateMachineARN: stateMachineARN,
	}
}

// Dispatch runs one action and returns its result record. An unknown action
// is the only hard error; everything else, validation failures included,
// comes back as data.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (interface{}, error) {
	rec := metrics.New(metricsNamespace).Dimension("Action", req.Action)
	start := time.Now()
	defer func() {
		rec.Metric("DurationMs", float64(time.Since(start).Milliseconds()), metrics.UnitMilliseconds)
		rec.Count("Invocations")
		rec.Flush()
	}()

	log.Info().Str("action", req.Action).Msg("Dispatching action")

	switch req.Action {
	case "get_pages":
		return d.getPages(ctx, req)
	case "get_page_info":
		return d.getPageInfo(ctx, req)
	case "post_to_page":
		return d.postToPage(ctx, req)
	case "post_reel":
		return d.postReel(ctx, req)
	case "init_reel_upload":
		return d.initReelUpload(ctx, req)
	case "upload_hosted_file":
		return d.uploadHostedFile(ctx, req)
	case "check_reel_upload_status":
		return d.checkReelUploadStatus(ctx, req)
	case "publish_reel":
		return d.publishReel(ctx, req)
	case "create_live_stream":
		return d.createLiveStream(ctx, req)
	case "extend_token":
		return d.extendToken(ctx, req)
	case "get_access_token":
		return d.getAccessToken(ctx, req)
	case "get_page_feed":
		return d.getPageFeed(ctx, req)
	case "reply_to_comment":
		return d.replyToComment(ctx, req)
	case "send_message":
		return d.sendMessage(ctx, req)
	case "send_message_attachment":
		return d.sendMessageAttachment(ctx, req)
	case "get_user_profile":
		return d.getUserProfile(ctx, req)
	case "get_instagram_profile":
		return d.getInstagramProfile(ctx, req)
	default:
		return nil, fmt.Errorf("invalid action: %q", req.Action)
	}
}

// missing builds the structured record for absent required parameters.
func missing(params ...string) ErrorRecord {
	return ErrorRecord{
		Error:     "Missing required parameters: " + strings.Join(params, ", "),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// platformError converts a failed Graph API call into an error record,
// preserving the platform's payload when one exists.
func platformError(err error) ErrorRecord {
	record := ErrorRecord{
		Status:    "error",
		Error:     err.Error(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	var apiErr *graph.APIError
	if errors.As(err, &apiErr) {
		record.ErrorDetails = string(apiErr.Raw)
	}
	return record
}

func (d *Dispatcher) getPages(ctx context.Context, req Request) (interface{}, error) {
	if req.UserToken == "" {
		return missing("userToken"), nil
	}
	pages, err := d.graph.Pages(ctx, req.UserToken)
	if err != nil {
		return platformError(err), nil
	}
	return pages, nil
}

// getPageInfo resolves one page from the user's page listing, extends its
// short-lived token to a long-lived one, and stores it for webhook-driven
// actions that arrive without credentials.
func (d *Dispatcher) getPageInfo(ctx context.Context, req Request) (interface{}, error) {
	if req.UserToken == "" || req.PageID == "" {
		return missing("userToken", "pageId"), nil
	}

	pages, err := d.graph.Pages(ctx, req.UserToken)
	if err != nil {
		return platformError(err), nil
	}

	for _, page := range pages {
		if page.ID != req.PageID {
			continue
		}
		extended, err := d.graph.ExtendPageToken(ctx, page.AccessToken)
		if err != nil {
			log.Warn().Err(err).Str("pageId", page.ID).Msg("Page token extension failed")
		} else {
			err = d.tokens.Put(ctx, tokenstore.PageToken{
				PageID:      page.ID,
				AccessToken: extended.AccessToken,
			})
			if err != nil {
				log.Warn().Err(err).Str("pageId", page.ID).Msg("Page token store failed")
			}
		}
		return page, nil
	}
	return ErrorRecord{Error: "Page ID not found"}, nil
}

func (d *Dispatcher) postToPage(ctx context.Context, req Request) (interface{}, error) {
	if req.PageID == "" || req.PageAccessToken == "" || req.Message == "" {
		return missing("page_id", "page_access_token", "message"), nil
	}
	if req.SocialMedia == "Instagram" {
		// Instagram media goes through the container state machine, not a
		// synchronous post.
		return map[string]interface{}{
			"redirect_to_state_machine": true,
			"message":                   "Instagram posts must use the state machine workflow (init_reel_upload, check_reel_upload_status, publish_reel).",
		}, nil
	}

	result, err := d.graph.PostToPage(ctx, req.PageID, req.PageAccessToken, req.Message, graph.MediaKind(req.MediaType), req.MediaURL)
	if err != nil {
		return platformError(err), nil
	}
	return result, nil
}

// postReel starts a Step Functions execution driving the full reel flow
// when a state machine is configured, and otherwise redirects the caller to
// the individual phase actions.
func (d *Dispatcher) postReel(ctx context.Context, req Request) (interface{}, error) {
	if req.PageID == "" || req.PageAccessToken == "" || req.Message == "" || req.MediaURL == "" {
		return missing("page_id", "page_access_token", "message", "mm_url"), nil
	}

	if d.sfnClient == nil || d.stateMachineARN == "" {
		return map[string]interface{}{
			"status":  "redirect",
			"message": "Reel uploads use the state machine actions: init_reel_upload, upload_hosted_file, check_reel_upload_status, publish_reel.",
		}, nil
	}

	session := d.sessionFromRequest(req)
	input, err := json.Marshal(session)
	if err != nil {
		return nil, fmt.Errorf("marshal state machine input: %w", err)
	}

	out, err := d.sfnClient.StartExecution(ctx, &sfn.StartExecutionInput{
		StateMachineArn: aws.String(d.stateMachineARN),
		Input:           aws.String(string(input)),
	})
	if err != nil {
		return platformError(err), nil
	}

	log.Info().Str("executionArn", aws.ToString(out.ExecutionArn)).Str("pageId", req.PageID).Msg("Reel state machine execution started")
	return map[string]interface{}{
		"status":        "accepted",
		"execution_arn": aws.ToString(out.ExecutionArn),
	}, nil
}

// sessionFromRequest maps the invocation payload onto a flow session.
func (d *Dispatcher) sessionFromRequest(req Request) reelflow.Session {
	shareToFeed := true
	if req.ShareToFeed != nil {
		shareToFeed = *req.ShareToFeed
	}
	platform := req.Platform
	if platform == "" {
		platform = reelflow.PlatformFacebook
	}
	return reelflow.Session{
		Platform:       platform,
		PageID:         req.PageID,
		InstagramID:    req.InstagramID,
		AccessToken:    req.PageAccessToken,
		Description:    req.Message,
		VideoURL:       req.MediaURL,
		VideoID:        req.VideoID,
		CreationID:     req.CreationID,
		Attempt:        req.Attempt,
		PublishAttempt: req.PublishAttempt,
		ShareToFeed:    shareToFeed,
		AudioName:      req.AudioName,
		ThumbnailURL:   req.ThumbnailURL,
	}
}

func (d *Dispatcher) initReelUpload(ctx context.Context, req Request) (interface{}, error) {
	if req.PageID == "" || req.PageAccessToken == "" || req.Message == "" || req.MediaURL == "" {
		return missing("page_id", "page_access_token", "message", "mm_url"), nil
	}
	return d.flow.Init(ctx, d.sessionFromRequest(req)), nil
}

func (d *Dispatcher) uploadHostedFile(ctx context.Context, req Request) (interface{}, error) {
	if req.PageID == "" || req.PageAccessToken == "" || req.VideoID == "" || req.MediaURL == "" {
		return missing("page_id", "page_access_token", "video_id", "mm_url"), nil
	}
	return d.flow.UploadHostedFile(ctx, d.sessionFromRequest(req)), nil
}

func (d *Dispatcher) checkReelUploadStatus(ctx context.Context, req Request) (interface{}, error) {
	if req.PageID == "" || req.PageAccessToken == "" || req.VideoID == "" {
		return missing("page_id", "page_access_token", "video_id"), nil
	}
	return d.flow.CheckStatus(ctx, d.sessionFromRequest(req)), nil
}

func (d *Dispatcher) publishReel(ctx context.Context, req Request) (interface{}, error) {
	if req.PageID == "" || req.PageAccessToken == "" || req.VideoID == "" || req.Message == "" {
		return missing("page_id", "page_access_token", "video_id", "message"), nil
	}
	return d.flow.Publish(ctx, d.sessionFromRequest(req)), nil
}

func (d *Dispatcher) createLiveStream(ctx context.Context, req Request) (interface{}, error) {
	if req.PageID == "" {
		return missing("page_id"), nil
	}
	if req.PageAccessToken == "" {
		return missing("page_access_token"), nil
	}

	// live_stream_data arrives either as an object or a JSON string,
	// depending on the upstream state definition.
	title := liveStreamTitle(req.LiveStreamData)
	if title == "" {
		return missing("title"), nil
	}
	description := req.StreamDescription
	if description == "" {
		description = title
	}

	stream, err := d.graph.CreateLiveStream(ctx, req.PageID, req.PageAccessToken, title, description)
	if err != nil {
		return platformError(err), nil
	}
	return stream, nil
}

// liveStreamTitle extracts the title from the live_stream_data payload.
func liveStreamTitle(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var data struct {
		Title string `json:"title"`
	}
	if err := json.Unmarshal(raw, &data); err == nil && data.Title != "" {
		return data.Title
	}
	// A double-encoded payload: the value is a JSON string holding JSON.
	var nested string
	if err := json.Unmarshal(raw, &nested); err == nil {
		if err := json.Unmarshal([]byte(nested), &data); err == nil {
			return data.Title
		}
	}
	return ""
}

func (d *Dispatcher) extendToken(ctx context.Context, req Request) (interface{}, error) {
	if req.Token == "" {
		return missing("token"), nil
	}
	result, err := d.graph.ExtendUserToken(ctx, req.Token)
	if err != nil {
		return platformError(err), nil
	}
	return result, nil
}

func (d *Dispatcher) getAccessToken(ctx context.Context, req Request) (interface{}, error) {
	if req.AuthCode == "" || req.RedirectURI == "" {
		return missing("authCode", "redirectUri"), nil
	}
	result, err := d.graph.UserAccessToken(ctx, req.AuthCode, req.RedirectURI)
	if err != nil {
		return platformError(err), nil
	}
	return result, nil
}

func (d *Dispatcher) getPageFeed(ctx context.Context, req Request) (interface{}, error) {
	if req.PageID == "" || req.PageAccessToken == "" {
		return missing("page_id", "page_access_token"), nil
	}
	feed, err := d.graph.PageFeed(ctx, req.PageID, req.PageAccessToken, req.Limit, req.Fields)
	if err != nil {
		return platformError(err), nil
	}
	return feed, nil
}

func (d *Dispatcher) replyToComment(ctx context.Context, req Request) (interface{}, error) {
	if req.OriginalCommentID == "" || req.PageAccessToken == "" || req.ReplyText == "" {
		return missing("original_comment_id", "page_access_token", "reply_text"), nil
	}
	replyID, err := d.graph.ReplyToComment(ctx, req.OriginalCommentID, req.PageAccessToken, req.ReplyText, req.CommenterID)
	if err != nil {
		return platformError(err), nil
	}
	return map[string]interface{}{
		"status":    "success",
		"reply_id":  replyID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func (d *Dispatcher) sendMessage(ctx context.Context, req Request) (interface{}, error) {
	if req.RecipientID == "" || req.MessageText == "" || req.PageAccessToken == "" {
		return missing("recipient_id", "message_text", "page_access_token"), nil
	}
	result, err := d.graph.SendMessage(ctx, req.RecipientID, req.MessageText, req.PageAccessToken)
	if err != nil {
		return platformError(err), nil
	}
	return result, nil
}

func (d *Dispatcher) sendMessageAttachment(ctx context.Context, req Request) (interface{}, error) {
	if req.RecipientID == "" || req.AttachmentType == "" || req.AttachmentURL == "" || req.PageAccessToken == "" {
		return missing("recipient_id", "attachment_type", "attachment_url", "page_access_token"), nil
	}
	result, err := d.graph.SendAttachment(ctx, req.RecipientID, req.AttachmentType, req.AttachmentURL, req.PageAccessToken)
	if err != nil {
		return platformError(err), nil
	}
	return result, nil
}

func (d *Dispatcher) getUserProfile(ctx context.Context, req Request) (interface{}, error) {
	if req.UserID == "" || req.PageAccessToken == "" {
		return missing("user_id", "page_access_token"), nil
	}
	profile, err := d.graph.UserProfile(ctx, req.UserID, req.PageAccessToken, req.Fields)
	if err != nil {
		return platformError(err), nil
	}
	return profile, nil
}

func (d *Dispatcher) getInstagramProfile(ctx context.Context, req Request) (interface{}, error) {
	if req.InstagramID == "" || req.PageAccessToken == "" {
		return missing("instagram_id", "page_access_token"), nil
	}
	profile, err := d.graph.InstagramProfile(ctx, req.InstagramID, req.PageAccessToken)
	if err != nil {
		return platformError(err), nil
	}
	return profile, nil
}
