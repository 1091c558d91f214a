package actions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pagebridge/internal/graph"
	"pagebridge/internal/reelflow"
	"pagebridge/internal/tokenstore"
)

// fakeTokens records stored tokens in memory.
type fakeTokens struct {
	stored []tokenstore.PageToken
}

func (f *fakeTokens) Get(ctx context.Context, pageID string) (*tokenstore.PageToken, error) {
	for i := range f.stored {
		if f.stored[i].PageID == pageID {
			return &f.stored[i], nil
		}
	}
	return nil, nil
}

func (f *fakeTokens) Put(ctx context.Context, token tokenstore.PageToken) error {
	f.stored = append(f.stored, token)
	return nil
}

func newTestDispatcher(t *testing.T, handler http.Handler) (*Dispatcher, *fakeTokens) {
	t.Helper()
	if handler == nil {
		handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{}`))
		})
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client := graph.NewClient(graph.Config{AppID: "app-100"},
		graph.WithBaseURL(srv.URL), graph.WithUploadBaseURL(srv.URL))
	tokens := &fakeTokens{}
	// No Step Functions client: post_reel answers with a redirect.
	return New(client, reelflow.New(client), tokens, nil, ""), tokens
}

func TestDispatch_UnknownAction(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)
	_, err := d.Dispatch(context.Background(), Request{Action: "make_coffee"})
	if err == nil {
		t.Fatal("expected a hard error for an unknown action")
	}
	if !strings.Contains(err.Error(), "make_coffee") {
		t.Errorf("error does not name the action: %v", err)
	}
}

func TestDispatch_MissingParametersAreRecords(t *testing.T) {
	cases := []struct {
		action string
		req    Request
		want   string
	}{
		{"get_pages", Request{}, "userToken"},
		{"post_to_page", Request{PageID: "1"}, "page_access_token"},
		{"init_reel_upload", Request{PageID: "1", PageAccessToken: "t"}, "message"},
		{"check_reel_upload_status", Request{PageID: "1", PageAccessToken: "t"}, "video_id"},
		{"reply_to_comment", Request{OriginalCommentID: "c1"}, "reply_text"},
		{"send_message", Request{RecipientID: "psid"}, "message_text"},
		{"get_instagram_profile", Request{}, "instagram_id"},
	}
	d, _ := newTestDispatcher(t, nil)
	for _, tc := range cases {
		t.Run(tc.action, func(t *testing.T) {
			tc.req.Action = tc.action
			result, err := d.Dispatch(context.Background(), tc.req)
			if err != nil {
				t.Fatalf("validation failure must not be a hard error: %v", err)
			}
			record, ok := result.(ErrorRecord)
			if !ok {
				t.Fatalf("expected ErrorRecord, got %T", result)
			}
			if !strings.Contains(record.Error, tc.want) {
				t.Errorf("record %q does not name %q", record.Error, tc.want)
			}
		})
	}
}

func TestPostToPage_InstagramRedirects(t *testing.T) {
	var requests int
	d, _ := newTestDispatcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write([]byte(`{}`))
	}))

	result, err := d.Dispatch(context.Background(), Request{
		Action:          "post_to_page",
		PageID:          "1",
		PageAccessToken: "t",
		Message:         "hello",
		SocialMedia:     "Instagram",
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	redirect, ok := result.(map[string]interface{})
	if !ok || redirect["redirect_to_state_machine"] != true {
		t.Errorf("expected a state machine redirect, got %#v", result)
	}
	if requests != 0 {
		t.Errorf("expected no Graph API calls, got %d", requests)
	}
}

func TestPostReel_NoStateMachineRedirects(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)
	result, err := d.Dispatch(context.Background(), Request{
		Action:          "post_reel",
		PageID:          "1",
		PageAccessToken: "t",
		Message:         "a reel",
		MediaURL:        "https://cdn.example.com/reel.mp4",
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	redirect, ok := result.(map[string]interface{})
	if !ok || redirect["status"] != "redirect" {
		t.Errorf("expected redirect result, got %#v", result)
	}
}

func TestGetPageInfo_ExtendsAndStoresToken(t *testing.T) {
	d, tokens := newTestDispatcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/me/accounts":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"data": []map[string]string{
					{"id": "1", "name": "Other Page", "access_token": "short-1"},
					{"id": "2", "name": "Target Page", "access_token": "short-2"},
				},
			})
		case r.URL.Path == "/oauth/access_token":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "long-2", "token_type": "bearer",
			})
		default:
			w.Write([]byte(`{}`))
		}
	}))

	result, err := d.Dispatch(context.Background(), Request{
		Action:    "get_page_info",
		UserToken: "user-token",
		PageID:    "2",
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	page, ok := result.(graph.Page)
	if !ok {
		t.Fatalf("expected graph.Page, got %T", result)
	}
	if page.ID != "2" {
		t.Errorf("wrong page resolved: %+v", page)
	}

	if len(tokens.stored) != 1 {
		t.Fatalf("expected 1 stored token, got %d", len(tokens.stored))
	}
	if tokens.stored[0].PageID != "2" || tokens.stored[0].AccessToken != "long-2" {
		t.Errorf("stored token mismatch: %+v", tokens.stored[0])
	}
}

func TestGetPageInfo_UnknownPage(t *testing.T) {
	d, _ := newTestDispatcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/me/accounts" {
			w.Write([]byte(`{"data": []}`))
			return
		}
		w.Write([]byte(`{}`))
	}))

	result, err := d.Dispatch(context.Background(), Request{
		Action: "get_page_info", UserToken: "u", PageID: "nope",
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	record, ok := result.(ErrorRecord)
	if !ok || record.Error != "Page ID not found" {
		t.Errorf("expected a page-not-found record, got %#v", result)
	}
}

func TestDispatch_PlatformErrorPreservesPayload(t *testing.T) {
	d, _ := newTestDispatcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": {"message": "token expired", "type": "OAuthException", "code": 190}}`))
	}))

	result, err := d.Dispatch(context.Background(), Request{Action: "get_pages", UserToken: "u"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	record, ok := result.(ErrorRecord)
	if !ok {
		t.Fatalf("expected ErrorRecord, got %T", result)
	}
	if record.Status != "error" {
		t.Errorf("expected status error, got %q", record.Status)
	}
	if !strings.Contains(record.ErrorDetails, `"code": 190`) && !strings.Contains(record.ErrorDetails, `"code":190`) {
		t.Errorf("platform payload not preserved: %q", record.ErrorDetails)
	}
}

func TestLiveStreamTitle(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"object", `{"title": "Friday Show"}`, "Friday Show"},
		{"double encoded", `"{\"title\": \"Friday Show\"}"`, "Friday Show"},
		{"empty", ``, ""},
		{"no title", `{"description": "x"}`, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var raw json.RawMessage
			if tc.raw != "" {
				raw = json.RawMessage(tc.raw)
			}
			if got := liveStreamTitle(raw); got != tc.want {
				t.Errorf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestSessionFromRequest_Defaults(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)

	s := d.sessionFromRequest(Request{PageID: "1", PageAccessToken: "t"})
	if s.Platform != reelflow.PlatformFacebook {
		t.Errorf("expected facebook default, got %q", s.Platform)
	}
	if !s.ShareToFeed {
		t.Error("expected share_to_feed to default to true")
	}

	off := false
	s = d.sessionFromRequest(Request{ShareToFeed: &off})
	if s.ShareToFeed {
		t.Error("expected explicit share_to_feed=false to be honored")
	}
}
