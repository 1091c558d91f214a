package graph

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFinishReelResult_Succeeded(t *testing.T) {
	cases := []struct {
		name   string
		result FinishReelResult
		want   bool
		reelID string
	}{
		{"success with post id", FinishReelResult{Success: true, PostID: "p1"}, true, "p1"},
		{"id with permalink", FinishReelResult{ID: "r2", PermalinkURL: "https://fb.com/r2"}, true, "r2"},
		{"empty response", FinishReelResult{}, false, ""},
		{"message only", FinishReelResult{Message: "upload in progress"}, false, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.result.Succeeded(); got != tc.want {
				t.Errorf("Succeeded: expected %v, got %v", tc.want, got)
			}
			if got := tc.result.ReelID(); got != tc.reelID {
				t.Errorf("ReelID: expected %q, got %q", tc.reelID, got)
			}
		})
	}
}

func TestUploadHostedReel_HeaderAuthentication(t *testing.T) {
	var gotAuth, gotFileURL string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotFileURL = r.Header.Get("file_url")
		w.Write([]byte(`{"success": true}`))
	}))
	defer srv.Close()

	c := NewClient(Config{AppID: "app"}, WithUploadBaseURL(srv.URL))
	err := c.UploadHostedReel(context.Background(), "vid-1", "page-token", "https://cdn.example.com/reel.mp4")
	if err != nil {
		t.Fatalf("UploadHostedReel: %v", err)
	}

	// rupload authenticates via headers, not form parameters.
	if gotAuth != "OAuth page-token" {
		t.Errorf("unexpected Authorization header %q", gotAuth)
	}
	if gotFileURL != "https://cdn.example.com/reel.mp4" {
		t.Errorf("unexpected file_url header %q", gotFileURL)
	}
}

func TestUploadHostedReel_PlatformFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": false}`))
	}))
	defer srv.Close()

	c := NewClient(Config{AppID: "app"}, WithUploadBaseURL(srv.URL))
	if err := c.UploadHostedReel(context.Background(), "vid-1", "t", "https://cdn.example.com/reel.mp4"); err == nil {
		t.Fatal("expected error on success=false response")
	}
}

func TestStartReelUpload_MissingVideoID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"upload_url": "https://rupload.example.com/123"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{AppID: "app"}, WithBaseURL(srv.URL))
	if _, err := c.StartReelUpload(context.Background(), "123", "t", "https://cdn.example.com/reel.mp4"); err == nil {
		t.Fatal("expected error when start response carries no video_id")
	}
}
