package reelflow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"pagebridge/internal/graph"
)

// metaCDNHost marks video URLs served from Meta's own CDN. Those cannot be
// re-uploaded through rupload; they have to be cross-posted by reference.
const metaCDNHost = "fbcdn.net"

// Flow executes state machine phases against the Graph API. It holds no
// per-session state.
type Flow struct {
	graph *graph.Client
}

// New creates a Flow backed by the given Graph API client.
func New(g *graph.Client) *Flow {
	return &Flow{graph: g}
}

// Init starts an upload session. Facebook reserves a video id via the
// two-phase upload start; Instagram creates a REELS container, whose id
// serves as both creation_id and video_id so later phases stay uniform
// across platforms. A missing description fails before any network call.
func (f *Flow) Init(ctx context.Context, s Session) StepResult {
	if s.Description == "" {
		r := newResult(s, StatusError, PhaseInitialization)
		r.ErrorDetails = stringDetail("description is required")
		return r
	}
	if s.VideoURL == "" {
		r := newResult(s, StatusError, PhaseInitialization)
		r.ErrorDetails = stringDetail("video_url is required")
		return r
	}

	switch s.Platform {
	case PlatformInstagram:
		return f.initInstagram(ctx, s)
	case PlatformFacebook, "":
		s.Platform = PlatformFacebook
		return f.initFacebook(ctx, s)
	default:
		r := newResult(s, StatusError, PhaseInitialization)
		r.ErrorDetails = stringDetail(fmt.Sprintf("unsupported platform %q", s.Platform))
		return r
	}
}

func (f *Flow) initInstagram(ctx context.Context, s Session) StepResult {
	instagramID := s.TargetID()
	if instagramID == "" {
		r := newResult(s, StatusError, PhaseInitialization)
		r.ErrorDetails = stringDetail("instagram_id is required for Instagram platform")
		return r
	}
	s.InstagramID = instagramID

	creationID, err := f.graph.CreateReelContainer(ctx, instagramID, s.AccessToken, s.VideoURL, s.Description, true)
	if err != nil {
		r := newResult(s, StatusError, PhaseMediaCreation)
		r.ErrorDetails = errorDetail(err)
		return r
	}

	// The container id doubles as the video id for the shared phase contract.
	s.CreationID = creationID
	s.VideoID = creationID
	r := newResult(s, StatusPending, PhaseInitialized)
	r.Description = s.Description
	return r
}

func (f *Flow) initFacebook(ctx context.Context, s Session) StepResult {
	if s.PageID == "" {
		r := newResult(s, StatusError, PhaseInitialization)
		r.ErrorDetails = stringDetail("page_id is required for Facebook platform")
		return r
	}

	videoID, err := f.graph.StartReelUpload(ctx, s.PageID, s.AccessToken, s.VideoURL)
	if err != nil {
		r := newResult(s, StatusError, PhaseStart)
		r.ErrorDetails = errorDetail(err)
		return r
	}

	s.VideoID = videoID
	r := newResult(s, StatusPending, PhaseInitialized)
	r.Description = s.Description
	return r
}

// UploadHostedFile points the reserved Facebook video id at the hosted file.
// Instagram sessions short-circuit: the platform already ingested the URL
// when the container was created. The source URL is validated before any
// network call is made.
func (f *Flow) UploadHostedFile(ctx context.Context, s Session) StepResult {
	if s.Platform == PlatformInstagram {
		r := newResult(s, StatusSuccess, PhaseUploadSkipped)
		r.Message = "Instagram processes video directly from URL in init step"
		return r
	}

	if err := validateHostedURL(s.VideoURL); err != nil {
		r := newResult(s, StatusError, PhaseUploadHostedFile)
		r.ErrorDetails = stringDetail(err.Error())
		return r
	}
	if s.VideoID == "" {
		r := newResult(s, StatusError, PhaseUploadHostedFile)
		r.ErrorDetails = stringDetail("video_id is required")
		return r
	}

	if err := f.graph.UploadHostedReel(ctx, s.VideoID, s.AccessToken, s.VideoURL); err != nil {
		r := newResult(s, StatusError, PhaseUploadHostedFile)
		r.ErrorDetails = errorDetail(err)
		return r
	}
	return newResult(s, StatusSuccess, PhaseFileUploaded)
}

// validateHostedURL enforces the upload preconditions: HTTPS only, and never
// a file already hosted on Meta's CDN.
func validateHostedURL(fileURL string) error {
	parsed, err := url.Parse(fileURL)
	if err != nil {
		return fmt.Errorf("invalid file URL: %w", err)
	}
	if parsed.Scheme != "https" {
		return errors.New("file URL must use HTTPS protocol")
	}
	if strings.Contains(strings.ToLower(parsed.Host), metaCDNHost) {
		return errors.New("files hosted on Meta CDN (fbcdn) are not supported, use crossposting instead")
	}
	return nil
}

// CheckStatus polls the platform's processing state and maps it to the
// unified vocabulary: ready, processing (re-invoke later), error, or unknown
// when the response matches no known shape. The attempt counter is echoed
// back incremented; retry cadence and ceilings belong to the orchestrator.
func (f *Flow) CheckStatus(ctx context.Context, s Session) StepResult {
	attempt := s.Attempt + 1

	var r StepResult
	if s.Platform == PlatformInstagram {
		r = f.checkInstagramStatus(ctx, s)
	} else {
		r = f.checkFacebookStatus(ctx, s)
	}
	r.Attempt = attempt
	return r
}

func (f *Flow) checkInstagramStatus(ctx context.Context, s Session) StepResult {
	creationID := s.CreationID
	if creationID == "" {
		creationID = s.VideoID
	}
	if creationID == "" {
		r := newResult(s, StatusError, PhaseCheckStatus)
		r.ErrorDetails = stringDetail("creation_id is required for Instagram status check")
		return r
	}
	s.CreationID = creationID

	statusCode, err := f.graph.ContainerStatus(ctx, creationID, s.AccessToken)
	if err != nil {
		r := newResult(s, StatusError, PhaseCheckStatus)
		r.ErrorDetails = errorDetail(err)
		return r
	}

	switch statusCode {
	case graph.ContainerFinished:
		return newResult(s, StatusReady, PhaseVideoReady)
	case graph.ContainerError:
		r := newResult(s, StatusError, PhaseProcessing)
		r.ErrorDetails = stringDetail("Video processing failed")
		return r
	case "":
		r := newResult(s, StatusUnknown, PhaseCheckStatus)
		r.Message = "no status_code in response"
		return r
	default:
		r := newResult(s, StatusProcessing, PhaseAwaitingReady)
		r.StatusCode = statusCode
		return r
	}
}

func (f *Flow) checkFacebookStatus(ctx context.Context, s Session) StepResult {
	if s.VideoID == "" {
		r := newResult(s, StatusError, PhaseCheckStatus)
		r.ErrorDetails = stringDetail("video_id is required for Facebook status check")
		return r
	}

	status, err := f.graph.VideoStatus(ctx, s.VideoID, s.AccessToken)
	if err != nil {
		r := newResult(s, StatusError, PhaseCheckStatus)
		r.ErrorDetails = errorDetail(err)
		return r
	}

	switch status.VideoStatus {
	case graph.VideoReady:
		return newResult(s, StatusReady, PhaseVideoReady)
	case graph.VideoError:
		r := newResult(s, StatusError, PhaseUpload)
		r.ErrorDetails = stringDetail("Video processing failed")
		r.FacebookError = status.Error
		return r
	case "":
		r := newResult(s, StatusUnknown, PhaseCheckStatus)
		r.RawResponse = status.Raw
		return r
	default:
		r := newResult(s, StatusProcessing, PhaseAwaitingReady)
		r.VideoStatus = status.VideoStatus
		r.RawStatus = status.Raw
		return r
	}
}

// Publish finishes the flow. Facebook's finish call has two distinct success
// shapes, both recognized; Instagram publish succeeds only when the returned
// media id differs from the creation id. Transient "media not ready" errors
// come back as not_ready with an incremented publish_attempt, identifying
// fields unchanged, so the orchestrator can retry.
func (f *Flow) Publish(ctx context.Context, s Session) StepResult {
	if s.Platform == PlatformInstagram {
		return f.publishInstagram(ctx, s)
	}
	return f.publishFacebook(ctx, s)
}

func (f *Flow) publishInstagram(ctx context.Context, s Session) StepResult {
	instagramID := s.TargetID()
	creationID := s.CreationID
	if creationID == "" {
		creationID = s.VideoID
	}
	if instagramID == "" || creationID == "" {
		r := newResult(s, StatusError, PhasePublish)
		r.ErrorDetails = stringDetail("instagram_id and creation_id are required for Instagram publishing")
		return r
	}
	s.InstagramID = instagramID
	s.CreationID = creationID

	mediaID, err := f.graph.PublishContainer(ctx, instagramID, creationID, s.AccessToken)
	if err != nil {
		if isNotReady(err) {
			r := newResult(s, StatusNotReady, PhasePublish)
			r.PublishAttempt = s.PublishAttempt + 1
			return r
		}
		r := newResult(s, StatusError, PhasePublish)
		r.ErrorDetails = errorDetail(err)
		return r
	}

	// A publish that echoes the container id back has not produced media.
	if mediaID == creationID {
		r := newResult(s, StatusError, PhasePublish)
		r.ErrorDetails = stringDetail("publish returned the creation id instead of a new media id")
		return r
	}

	r := newResult(s, StatusSuccess, PhasePublished)
	r.MediaID = mediaID
	return r
}

func (f *Flow) publishFacebook(ctx context.Context, s Session) StepResult {
	if s.PageID == "" || s.VideoID == "" {
		r := newResult(s, StatusError, PhasePublish)
		r.ErrorDetails = stringDetail("page_id and video_id are required for Facebook publishing")
		return r
	}

	result, err := f.graph.FinishReelUpload(ctx, s.PageID, s.AccessToken, s.VideoID, s.Description, graph.PublishReelOptions{
		ShareToFeed:  s.ShareToFeed,
		AudioName:    s.AudioName,
		ThumbnailURL: s.ThumbnailURL,
	})
	if err != nil {
		if isNotReady(err) {
			r := newResult(s, StatusNotReady, PhasePublish)
			r.PublishAttempt = s.PublishAttempt + 1
			return r
		}
		r := newResult(s, StatusError, PhasePublish)
		r.ErrorDetails = errorDetail(err)
		return r
	}

	if !result.Succeeded() {
		r := newResult(s, StatusError, PhasePublish)
		r.ErrorDetails = stringDetail("finish response matched no known success shape")
		return r
	}

	r := newResult(s, StatusSuccess, PhasePublished)
	r.ReelID = result.ReelID()
	r.Permalink = result.PermalinkURL
	r.Message = result.Message
	r.ShareToFeed = s.ShareToFeed
	log.Info().Str("pageId", s.PageID).Str("reelId", r.ReelID).Msg("Reel publish step completed")
	return r
}

// rawPlatformError returns the verbatim platform error payload when err
// wraps a Graph API error.
func rawPlatformError(err error) []byte {
	var apiErr *graph.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Raw
	}
	return nil
}

// isNotReady recognizes the platform's transient "media not ready to
// publish" errors. Enumerated explicitly; unrecognized errors stay errors.
func isNotReady(err error) bool {
	var apiErr *graph.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code == 9007 || apiErr.ErrorSubcode == 2207027 {
		return true
	}
	return strings.Contains(strings.ToLower(apiErr.Message), "not ready")
}
