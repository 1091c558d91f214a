package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pagebridge/internal/graph"
)

const (
	testPostID          = testPageID + "_333"
	testParentCommentID = testPageID + "_444"
	testCommentID       = testPageID + "_555"
)

// newGraphServer fakes the Graph API endpoints the normalizer enriches from.
func newGraphServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/"+testPostID+"/comments":
			// Sibling window for top-level comments.
			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []map[string]interface{}{
					{"id": "c1", "message": "first"},
					{"id": "c2", "message": "second"},
					{"id": "c3", "message": "third"},
				},
			})
		case r.URL.Path == "/"+testParentCommentID:
			// Parent comment with its replies.
			json.NewEncoder(w).Encode(map[string]interface{}{
				"message":      "parent comment",
				"created_time": "2026-08-01T10:00:00+0000",
				"from":         map[string]string{"id": "777", "name": "Parent Author"},
				"comments": map[string]interface{}{
					"data": []map[string]interface{}{
						{"id": "r1", "message": "earlier reply"},
					},
				},
			})
		case r.URL.Path == "/"+testPostID:
			json.NewEncoder(w).Encode(map[string]string{
				"message":      "the post text",
				"created_time": "2026-08-01T09:00:00+0000",
			})
		case r.URL.Path == "/"+testPageID:
			// Owner info lookup.
			json.NewEncoder(w).Encode(map[string]string{
				"id": testPageID, "name": "Test Page", "category": "Community",
			})
		default:
			w.Write([]byte(`{}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	srv := newGraphServer(t)
	client := graph.NewClient(graph.Config{AppID: "app"}, graph.WithBaseURL(srv.URL))
	return NewNormalizer(client, &fakeTokens{})
}

func commentChange(commentID, parentID string) ChangeValue {
	return ChangeValue{
		Item:      "comment",
		Verb:      "add",
		CommentID: commentID,
		PostID:    testPostID,
		ParentID:  parentID,
		Message:   "hello there",
		From:      &graph.Actor{ID: "9999", Name: "A Commenter"},
	}
}

func singleChangePayload(value ChangeValue) Payload {
	return Payload{
		Object: "page",
		Entry: []Entry{{
			ID:      testPageID,
			Changes: []Change{{Field: "feed", Value: value}},
		}},
	}
}

func TestFeedEvents_RejectsNonPagePayload(t *testing.T) {
	n := newTestNormalizer(t)
	_, err := n.FeedEvents(context.Background(), Payload{Object: "instagram"})
	if err != ErrInvalidPayload {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}
}

func TestFeedEvents_SelfCommentDropped(t *testing.T) {
	n := newTestNormalizer(t)
	value := commentChange(testCommentID, testPostID)
	value.From = &graph.Actor{ID: testPageID}

	events, err := n.FeedEvents(context.Background(), singleChangePayload(value))
	if err != nil {
		t.Fatalf("FeedEvents: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected zero events for self-authored comment, got %d", len(events))
	}
}

func TestFeedEvents_NonCommentChangeIgnored(t *testing.T) {
	n := newTestNormalizer(t)
	value := ChangeValue{Item: "reaction", Verb: "add"}

	events, err := n.FeedEvents(context.Background(), singleChangePayload(value))
	if err != nil {
		t.Fatalf("FeedEvents: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("expected zero events for non-comment change, got %d", len(events))
	}
}

func TestFeedEvents_ReplyGetsParentThread(t *testing.T) {
	n := newTestNormalizer(t)
	// parent_id differs from post_id: this is a reply.
	value := commentChange(testCommentID, testParentCommentID)

	events, err := n.FeedEvents(context.Background(), singleChangePayload(value))
	if err != nil {
		t.Fatalf("FeedEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	event := events[0]
	if event.CommentLevel != LevelReply {
		t.Errorf("expected comment level %q, got %q", LevelReply, event.CommentLevel)
	}
	if len(event.ThreadContext.CommentThread) != 1 {
		t.Fatalf("expected exactly 1 parent entry in thread, got %d", len(event.ThreadContext.CommentThread))
	}
	parent := event.ThreadContext.CommentThread[0]
	if parent.ID != testParentCommentID {
		t.Errorf("expected parent id %q, got %q", testParentCommentID, parent.ID)
	}
	if len(parent.Replies) != 1 {
		t.Errorf("expected parent to carry its replies, got %d", len(parent.Replies))
	}
	if event.ThreadContext.PostContent != "the post text" {
		t.Errorf("unexpected post content %q", event.ThreadContext.PostContent)
	}
}

func TestFeedEvents_TopLevelGetsSiblingWindow(t *testing.T) {
	n := newTestNormalizer(t)
	// parent_id equals post_id: top-level comment.
	value := commentChange(testCommentID, testPostID)

	events, err := n.FeedEvents(context.Background(), singleChangePayload(value))
	if err != nil {
		t.Fatalf("FeedEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	event := events[0]
	if event.CommentLevel != LevelTopLevel {
		t.Errorf("expected comment level %q, got %q", LevelTopLevel, event.CommentLevel)
	}
	if got := len(event.ThreadContext.CommentThread); got == 0 || got > siblingContextLimit {
		t.Errorf("expected between 1 and %d sibling comments, got %d", siblingContextLimit, got)
	}
	if event.EventID == "" {
		t.Error("expected a generated event id")
	}
	if event.OwnerInfo == nil {
		t.Error("expected owner info to be populated")
	}
}

func TestFeedEvents_EnrichmentFailureStillEmits(t *testing.T) {
	// Graph API down: every enrichment call fails, the event still ships.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": {"message": "server is on fire", "code": 1}}`))
	}))
	defer srv.Close()

	client := graph.NewClient(graph.Config{AppID: "app"}, graph.WithBaseURL(srv.URL))
	n := NewNormalizer(client, &fakeTokens{})

	events, err := n.FeedEvents(context.Background(), singleChangePayload(commentChange(testCommentID, testPostID)))
	if err != nil {
		t.Fatalf("FeedEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event despite enrichment failure, got %d", len(events))
	}
	if len(events[0].ThreadContext.CommentThread) != 0 {
		t.Errorf("expected empty thread context, got %d entries", len(events[0].ThreadContext.CommentThread))
	}
}

func TestMessagingEvents_Flattening(t *testing.T) {
	n := newTestNormalizer(t)

	raw := `{
		"object": "page",
		"entry": [{
			"id": "` + testPageID + `",
			"messaging": [
				{
					"timestamp": 1723456789,
					"sender": {"id": "psid-1"},
					"recipient": {"id": "` + testPageID + `"},
					"message": {"mid": "m-1", "text": "hi there"}
				},
				{
					"sender": {"id": "psid-1"},
					"recipient": {"id": "` + testPageID + `"},
					"postback": {"payload": "GET_STARTED", "title": "Get Started"}
				},
				{
					"sender": {"id": "psid-1"},
					"recipient": {"id": "` + testPageID + `"},
					"delivery": {"mids": ["m-1"], "watermark": 1723456790}
				},
				{
					"sender": {"id": "psid-1"},
					"recipient": {"id": "` + testPageID + `"},
					"read": {"watermark": 1723456791}
				}
			]
		}]
	}`

	var payload Payload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		t.Fatalf("payload decode: %v", err)
	}

	events, err := n.MessagingEvents(payload)
	if err != nil {
		t.Fatalf("MessagingEvents: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}

	wantTypes := []string{"message", "postback", "delivery", "read"}
	for i, want := range wantTypes {
		if events[i].EventType != want {
			t.Errorf("event %d: expected type %q, got %q", i, want, events[i].EventType)
		}
		if events[i].SenderID != "psid-1" {
			t.Errorf("event %d: unexpected sender %q", i, events[i].SenderID)
		}
	}
	if events[0].MessageText != "hi there" || events[0].MessageID != "m-1" {
		t.Errorf("message event not flattened: %+v", events[0])
	}
	if events[1].PostbackPayload != "GET_STARTED" {
		t.Errorf("postback event not flattened: %+v", events[1])
	}
	if events[2].Watermark != 1723456790 || !strings.Contains(strings.Join(events[2].DeliveredMessages, ","), "m-1") {
		t.Errorf("delivery event not flattened: %+v", events[2])
	}
	if events[3].Watermark != 1723456791 {
		t.Errorf("read event not flattened: %+v", events[3])
	}
}
