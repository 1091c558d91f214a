package actions

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func doRequest(t *testing.T, d *Dispatcher, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	d.NewMux().ServeHTTP(rr, req)
	return rr
}

func TestMux_MethodNotAllowed(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)
	rr := doRequest(t, d, http.MethodGet, "/send-message", "")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rr.Code)
	}
}

func TestSubscribeToPage_StoresExtendedToken(t *testing.T) {
	d, tokens := newTestDispatcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/123/subscribed_apps":
			w.Write([]byte(`{"success": true}`))
		case "/oauth/access_token":
			w.Write([]byte(`{"access_token": "long-lived", "token_type": "bearer"}`))
		default:
			w.Write([]byte(`{}`))
		}
	}))

	rr := doRequest(t, d, http.MethodPost, "/subscribe-to-page",
		`{"page_id": "123", "page_access_token": "short", "fields": ["feed", "messages"]}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(tokens.stored) != 1 || tokens.stored[0].AccessToken != "long-lived" {
		t.Errorf("extended token not stored: %+v", tokens.stored)
	}
}

func TestSubscribeToPage_MissingParameters(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)
	rr := doRequest(t, d, http.MethodPost, "/subscribe-to-page", `{"page_id": "123"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestUnsubscribeFromPage_RequiresFields(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)
	rr := doRequest(t, d, http.MethodPost, "/unsubscribe-from-page",
		`{"page_id": "123", "page_access_token": "t"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without fields, got %d", rr.Code)
	}
}

func TestReplyToComment_FieldSpecificErrors(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)
	rr := doRequest(t, d, http.MethodPost, "/reply-to-comment",
		`{"original_comment_id": "c1", "page_access_token": "t"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response decode: %v", err)
	}
	if !strings.Contains(resp["error"], "reply_text") {
		t.Errorf("error does not name the missing field: %q", resp["error"])
	}
}

func TestSetTyping_RejectsUnknownAction(t *testing.T) {
	d, _ := newTestDispatcher(t, nil)
	rr := doRequest(t, d, http.MethodPost, "/set-typing",
		`{"recipient_id": "psid", "page_access_token": "t", "action": "waving"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown sender action, got %d", rr.Code)
	}
}

func TestSetTyping_DefaultsToTypingOn(t *testing.T) {
	var gotAction string
	d, _ := newTestDispatcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			SenderAction string `json:"sender_action"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		gotAction = body.SenderAction
		w.Write([]byte(`{"recipient_id": "psid"}`))
	}))

	rr := doRequest(t, d, http.MethodPost, "/set-typing",
		`{"recipient_id": "psid", "page_access_token": "t"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotAction != "typing_on" {
		t.Errorf("expected default typing_on, got %q", gotAction)
	}
}

func TestPlatformErrorReturns502(t *testing.T) {
	d, _ := newTestDispatcher(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": {"message": "invalid user", "code": 100}}`))
	}))

	rr := doRequest(t, d, http.MethodGet, "/get-user-profile?user_id=psid&page_access_token=t", "")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
	var record ErrorRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &record); err != nil {
		t.Fatalf("response decode: %v", err)
	}
	if record.Status != "error" || record.ErrorDetails == "" {
		t.Errorf("platform error record incomplete: %+v", record)
	}
}

func TestFieldList(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want []string
	}{
		{"array", `["feed", "messages"]`, []string{"feed", "messages"}},
		{"comma string", `"feed, messages"`, []string{"feed", "messages"}},
		{"absent", ``, nil},
		{"empty string", `""`, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var raw json.RawMessage
			if tc.raw != "" {
				raw = json.RawMessage(tc.raw)
			}
			got := fieldList(raw)
			if len(got) != len(tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("expected %v, got %v", tc.want, got)
				}
			}
		})
	}
}
