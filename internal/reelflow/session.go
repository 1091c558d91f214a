// Package reelflow implements the multi-phase media publishing state machine
// for Facebook and Instagram reels. Each operation is one stateless step:
// the caller (a Step Functions state machine in production) persists the
// Session between invocations and re-invokes the next phase with the step's
// output merged back in. No operation blocks, loops, or retries internally.
//
// Phase progression:
//
//	init -> upload_hosted_file (Facebook only) -> check_status (repeat while
//	processing) -> publish (repeat while not_ready)
//
// Instagram collapses the upload into init: the platform ingests the hosted
// video URL when the container is created, so upload_hosted_file is a no-op
// there.
package reelflow

import (
	"encoding/json"
	"time"
)

// Platforms a session can target.
const (
	PlatformFacebook  = "facebook"
	PlatformInstagram = "instagram"
)

// Step statuses. pending/processing/not_ready are transient and expect
// re-invocation; success/ready advance the flow; error is terminal; unknown
// means the platform returned a shape this code does not recognize and the
// orchestrator must decide (it is deliberately not folded into error).
const (
	StatusPending    = "pending"
	StatusSuccess    = "success"
	StatusReady      = "ready"
	StatusProcessing = "processing"
	StatusNotReady   = "not_ready"
	StatusError      = "error"
	StatusUnknown    = "unknown"
)

// Phases reported in step results. They identify where in the protocol a
// result was produced, mainly for orchestrator branching and diagnostics.
const (
	PhaseInitialization   = "initialization"
	PhaseMediaCreation    = "media_creation"
	PhaseStart            = "start"
	PhaseInitialized      = "initialized"
	PhaseUploadHostedFile = "upload_hosted_file"
	PhaseUploadSkipped    = "upload_skipped_for_instagram"
	PhaseFileUploaded     = "file_uploaded"
	PhaseCheckStatus      = "check_status"
	PhaseAwaitingReady    = "awaiting_ready"
	PhaseProcessing       = "processing"
	PhaseVideoReady       = "video_ready"
	PhaseUpload           = "upload"
	PhasePublish          = "publish"
	PhasePublished        = "published"
)

// Session is the externally persisted state of one media upload. The flow
// never stores it: the orchestrator passes the full session into every phase
// and persists the identifiers the phase's StepResult hands back. VideoID and
// CreationID are assigned exactly once, by Init, and must not change after.
type Session struct {
	Platform    string `json:"platform"`
	PageID      string `json:"page_id,omitempty"`
	InstagramID string `json:"instagram_id,omitempty"`
	AccessToken string `json:"page_access_token"`
	Description string `json:"description"`
	VideoURL    string `json:"video_url,omitempty"`

	VideoID    string `json:"video_id,omitempty"`
	CreationID string `json:"creation_id,omitempty"`

	// Attempt counters are supplied by the orchestrator, echoed back
	// incremented. The flow places no ceiling on them.
	Attempt        int `json:"attempt,omitempty"`
	PublishAttempt int `json:"publish_attempt,omitempty"`

	ShareToFeed  bool   `json:"share_to_feed,omitempty"`
	AudioName    string `json:"audio_name,omitempty"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
}

// TargetID returns the platform-side account the session publishes to.
func (s Session) TargetID() string {
	if s.Platform == PlatformInstagram {
		if s.InstagramID != "" {
			return s.InstagramID
		}
	}
	return s.PageID
}

// StepResult is the outcome of one phase invocation, serialized back to the
// orchestrator. Identifying fields (page/instagram/video/creation ids) are
// echoed on every result so the orchestrator can pass state forward without
// merging; ErrorDetails carries the platform's error payload verbatim when
// one exists.
type StepResult struct {
	Status      string `json:"status"`
	Platform    string `json:"platform"`
	PageID      string `json:"page_id,omitempty"`
	InstagramID string `json:"instagram_id,omitempty"`
	VideoID     string `json:"video_id,omitempty"`
	CreationID  string `json:"creation_id,omitempty"`
	Phase       string `json:"phase"`

	Description string `json:"description,omitempty"`
	MediaID     string `json:"media_id,omitempty"`
	ReelID      string `json:"reel_id,omitempty"`
	Permalink   string `json:"permalink_url,omitempty"`
	Message     string `json:"message,omitempty"`
	ShareToFeed bool   `json:"share_to_feed,omitempty"`

	StatusCode  string          `json:"status_code,omitempty"`
	VideoStatus string          `json:"video_status,omitempty"`
	RawStatus   json.RawMessage `json:"raw_status,omitempty"`
	RawResponse json.RawMessage `json:"raw_response,omitempty"`

	Attempt        int `json:"attempt,omitempty"`
	PublishAttempt int `json:"publish_attempt,omitempty"`

	ErrorDetails  json.RawMessage `json:"error_details,omitempty"`
	FacebookError json.RawMessage `json:"facebook_error,omitempty"`

	Timestamp string `json:"timestamp"`
}

// newResult stamps a result with the session's identifying fields and the
// invocation time. Every phase outcome goes through here so the identifiers
// stay identical across repeated attempts.
func newResult(s Session, status, phase string) StepResult {
	return StepResult{
		Status:      status,
		Platform:    s.Platform,
		PageID:      s.PageID,
		InstagramID: s.InstagramID,
		VideoID:     s.VideoID,
		CreationID:  s.CreationID,
		Phase:       phase,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
}

// errorDetail renders an error as a JSON value: platform errors keep their
// original payload, everything else becomes a JSON string of the message.
func errorDetail(err error) json.RawMessage {
	if raw := rawPlatformError(err); raw != nil {
		return raw
	}
	msg, _ := json.Marshal(err.Error())
	return msg
}

// stringDetail renders a plain message as a JSON string for ErrorDetails.
func stringDetail(msg string) json.RawMessage {
	out, _ := json.Marshal(msg)
	return out
}
