package webhook

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"pagebridge/internal/graph"
	"pagebridge/internal/tokenstore"
)

// ErrInvalidPayload is returned for payloads not addressed to a page.
var ErrInvalidPayload = errors.New("webhook payload is not for a page")

// siblingContextLimit bounds the number of sibling comments fetched when
// enriching a top-level comment event.
const siblingContextLimit = 5

// Comment levels tagged on normalized feed events.
const (
	LevelTopLevel = "top_level"
	LevelReply    = "reply"
)

// Payload is Meta's page-subscription webhook body.
type Payload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

// Entry is one page's batch of changes and messaging events.
type Entry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time,omitempty"`
	Changes   []Change         `json:"changes,omitempty"`
	Messaging []MessagingEntry `json:"messaging,omitempty"`
}

// Change is one field change inside an entry.
type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue is the feed-change payload Meta delivers for comment activity.
type ChangeValue struct {
	Item        string       `json:"item"`
	Verb        string       `json:"verb"`
	CommentID   string       `json:"comment_id,omitempty"`
	PostID      string       `json:"post_id,omitempty"`
	ParentID    string       `json:"parent_id,omitempty"`
	Message     string       `json:"message,omitempty"`
	CreatedTime int64        `json:"created_time,omitempty"`
	From        *graph.Actor `json:"from,omitempty"`
	Post        *PostInfo    `json:"post,omitempty"`
}

// PostInfo is the post metadata Meta attaches to a comment change.
type PostInfo struct {
	ID           string `json:"id,omitempty"`
	StatusType   string `json:"status_type,omitempty"`
	IsPublished  bool   `json:"is_published,omitempty"`
	UpdatedTime  string `json:"updated_time,omitempty"`
	PermalinkURL string `json:"permalink_url,omitempty"`
}

// MessagingEntry is one Messenger event inside an entry.
type MessagingEntry struct {
	Timestamp int64 `json:"timestamp,omitempty"`
	Sender    struct {
		ID string `json:"id"`
	} `json:"sender"`
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Message *struct {
		MID         string            `json:"mid,omitempty"`
		Text        string            `json:"text,omitempty"`
		Attachments []json.RawMessage `json:"attachments,omitempty"`
		QuickReply  json.RawMessage   `json:"quick_reply,omitempty"`
	} `json:"message,omitempty"`
	Postback *struct {
		Payload string `json:"payload,omitempty"`
		Title   string `json:"title,omitempty"`
	} `json:"postback,omitempty"`
	Delivery *struct {
		MIDs      []string `json:"mids,omitempty"`
		Watermark int64    `json:"watermark,omitempty"`
	} `json:"delivery,omitempty"`
	Read *struct {
		Watermark int64 `json:"watermark,omitempty"`
	} `json:"read,omitempty"`
}

// CommentData identifies the comment a feed event is about.
type CommentData struct {
	CommentID   string       `json:"comment_id"`
	PostID      string       `json:"post_id"`
	ParentID    string       `json:"parent_id"`
	Message     string       `json:"message"`
	CreatedTime int64        `json:"created_time"`
	From        *graph.Actor `json:"from,omitempty"`
}

// ThreadContext is the conversational context fetched around a comment. A
// failed enrichment leaves it at its zero value; the event still ships.
type ThreadContext struct {
	PostContent   string                `json:"post_content"`
	CommentThread []graph.ThreadComment `json:"comment_thread"`
	Hierarchy     string                `json:"hierarchy"`
}

// FeedEvent is one normalized comment event, immutable once emitted.
type FeedEvent struct {
	EventID         string          `json:"event_id"`
	Action          string          `json:"action,omitempty"`
	Item            string          `json:"item"`
	Verb            string          `json:"verb"`
	PageID          string          `json:"page_id"`
	PageAccessToken string          `json:"page_access_token,omitempty"`
	CommentData     CommentData     `json:"comment_data"`
	ThreadContext   ThreadContext   `json:"thread_context"`
	CommentLevel    string          `json:"comment_level"`
	OwnerInfo       json.RawMessage `json:"owner_info,omitempty"`
	PostData        *PostInfo       `json:"post_data,omitempty"`
}

// MessagingEvent is one flattened Messenger event. Unlike feed events this
// path performs no enrichment and no self-filtering.
type MessagingEvent struct {
	EventType   string `json:"event_type"`
	PageID      string `json:"page_id"`
	Timestamp   int64  `json:"timestamp,omitempty"`
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`

	MessageID   string            `json:"message_id,omitempty"`
	MessageText string            `json:"message_text,omitempty"`
	Attachments []json.RawMessage `json:"attachments,omitempty"`
	QuickReply  json.RawMessage   `json:"quick_reply,omitempty"`

	PostbackPayload string `json:"postback_payload,omitempty"`
	PostbackTitle   string `json:"postback_title,omitempty"`

	DeliveredMessages []string `json:"delivered_messages,omitempty"`
	Watermark         int64    `json:"watermark,omitempty"`
}

// Normalizer converts inbound payloads into event records. Thread-context
// and owner-info enrichment go through the Graph API with tokens resolved
// from the token store.
type Normalizer struct {
	graph  *graph.Client
	tokens tokenstore.Store
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(g *graph.Client, tokens tokenstore.Store) *Normalizer {
	return &Normalizer{graph: g, tokens: tokens}
}

// FeedEvents normalizes the comment activity in a payload. Comments authored
// by the receiving page itself are dropped silently; without that filter the
// system's own replies come back as fresh events and loop forever. Returns
// ErrInvalidPayload when the payload's object is not "page".
func (n *Normalizer) FeedEvents(ctx context.Context, payload Payload) ([]FeedEvent, error) {
	if payload.Object != "page" {
		return nil, ErrInvalidPayload
	}

	var events []FeedEvent
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			event, ok := n.feedEvent(ctx, entry.ID, change.Value)
			if ok {
				events = append(events, event)
			}
		}
	}
	return events, nil
}

func (n *Normalizer) feedEvent(ctx context.Context, pageID string, value ChangeValue) (FeedEvent, bool) {
	if value.Item != "comment" || value.Verb != "add" {
		return FeedEvent{}, false
	}

	var commenterID string
	if value.From != nil {
		commenterID = value.From.ID
	}
	if commenterID != "" && commenterID == pageID {
		log.Info().Str("pageId", pageID).Str("commentId", value.CommentID).Msg("Skipping self-authored comment")
		return FeedEvent{}, false
	}

	token := n.pageToken(ctx, pageID)
	isTopLevel := value.ParentID == value.PostID

	event := FeedEvent{
		EventID:         uuid.NewString(),
		Item:            value.Item,
		Verb:            value.Verb,
		PageID:          pageID,
		PageAccessToken: token,
		CommentData: CommentData{
			CommentID:   value.CommentID,
			PostID:      value.PostID,
			ParentID:    value.ParentID,
			Message:     value.Message,
			CreatedTime: value.CreatedTime,
			From:        value.From,
		},
		ThreadContext: n.threadContext(ctx, value, isTopLevel, token),
		CommentLevel:  LevelReply,
		PostData:      value.Post,
	}
	if isTopLevel {
		event.CommentLevel = LevelTopLevel
	}

	if token != "" {
		owner, err := n.graph.PageData(ctx, pageID, token)
		if err != nil {
			log.Warn().Err(err).Str("pageId", pageID).Msg("Owner info fetch failed")
		} else {
			event.OwnerInfo = owner
		}
	}

	return event, true
}

// pageToken resolves the page's stored access token. Absence or a store
// failure yields an empty token; the event is still emitted without
// enrichment.
func (n *Normalizer) pageToken(ctx context.Context, pageID string) string {
	token, err := n.tokens.Get(ctx, pageID)
	if err != nil {
		log.Warn().Err(err).Str("pageId", pageID).Msg("Page token lookup failed")
		return ""
	}
	if token == nil {
		log.Warn().Str("pageId", pageID).Msg("No stored token for page")
		return ""
	}
	return token.AccessToken
}

// threadContext fetches the conversational context around a comment: for a
// reply, the parent comment with its replies; for a top-level comment, a
// bounded window of sibling comments. Enrichment is read-only and failure
// tolerant: any fetch error leaves the corresponding field empty.
func (n *Normalizer) threadContext(ctx context.Context, value ChangeValue, isTopLevel bool, token string) ThreadContext {
	tc := ThreadContext{Hierarchy: LevelReply}
	if isTopLevel {
		tc.Hierarchy = LevelTopLevel
	}
	if token == "" {
		return tc
	}

	postContent, err := n.graph.PostContent(ctx, value.PostID, token)
	if err != nil {
		log.Warn().Err(err).Str("postId", value.PostID).Msg("Post content fetch failed")
	} else {
		tc.PostContent = postContent
	}

	if isTopLevel {
		siblings, err := n.graph.PostComments(ctx, value.PostID, token, siblingContextLimit)
		if err != nil {
			log.Warn().Err(err).Str("postId", value.PostID).Msg("Sibling comments fetch failed")
			return tc
		}
		tc.CommentThread = siblings
		return tc
	}

	parent, err := n.graph.CommentWithReplies(ctx, value.ParentID, token)
	if err != nil {
		log.Warn().Err(err).Str("parentId", value.ParentID).Msg("Parent comment fetch failed")
		return tc
	}
	tc.CommentThread = []graph.ThreadComment{*parent}
	return tc
}

// MessagingEvents flattens the Messenger events in a payload into one record
// per sub-event, tagged by event_type. Returns ErrInvalidPayload when the
// payload's object is not "page".
func (n *Normalizer) MessagingEvents(payload Payload) ([]MessagingEvent, error) {
	if payload.Object != "page" {
		return nil, ErrInvalidPayload
	}

	var events []MessagingEvent
	for _, entry := range payload.Entry {
		for _, m := range entry.Messaging {
			event := MessagingEvent{
				PageID:      entry.ID,
				Timestamp:   m.Timestamp,
				SenderID:    m.Sender.ID,
				RecipientID: m.Recipient.ID,
			}

			switch {
			case m.Message != nil:
				event.EventType = "message"
				event.MessageID = m.Message.MID
				event.MessageText = m.Message.Text
				event.Attachments = m.Message.Attachments
				event.QuickReply = m.Message.QuickReply
			case m.Postback != nil:
				event.EventType = "postback"
				event.PostbackPayload = m.Postback.Payload
				event.PostbackTitle = m.Postback.Title
			case m.Delivery != nil:
				event.EventType = "delivery"
				event.DeliveredMessages = m.Delivery.MIDs
				event.Watermark = m.Delivery.Watermark
			case m.Read != nil:
				event.EventType = "read"
				event.Watermark = m.Read.Watermark
			default:
				log.Debug().Str("pageId", entry.ID).Msg("Unrecognized messaging event, skipping")
				continue
			}

			events = append(events, event)
		}
	}
	return events, nil
}
