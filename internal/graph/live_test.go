package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestParseStreamURL(t *testing.T) {
	cases := []struct {
		name       string
		streamURL  string
		wantServer string
		wantKey    string
		wantErr    bool
	}{
		{
			name:       "key with query parameters",
			streamURL:  "rtmps://live-api-s.facebook.com:443/rtmp/123?s_bl=1",
			wantServer: "rtmps://live-api-s.facebook.com:443/rtmp",
			wantKey:    "123?s_bl=1",
		},
		{
			name:       "bare key",
			streamURL:  "rtmps://live-api-s.facebook.com:443/rtmp/FB-123-0-AbC",
			wantServer: "rtmps://live-api-s.facebook.com:443/rtmp",
			wantKey:    "FB-123-0-AbC",
		},
		{
			name:      "missing rtmp segment",
			streamURL: "https://example.com/stream/123",
			wantErr:   true,
		},
		{
			name:      "empty key",
			streamURL: "rtmps://live-api-s.facebook.com:443/rtmp/",
			wantErr:   true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server, key, err := ParseStreamURL(tc.streamURL)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got server=%q key=%q", server, key)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseStreamURL: %v", err)
			}
			if server != tc.wantServer {
				t.Errorf("server: expected %q, got %q", tc.wantServer, server)
			}
			if key != tc.wantKey {
				t.Errorf("key: expected %q, got %q", tc.wantKey, key)
			}
		})
	}
}

func TestCreateLiveStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/123/live_videos" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		r.ParseForm()
		if got := r.Form.Get("status"); got != "LIVE_NOW" {
			t.Errorf("expected status LIVE_NOW, got %q", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":                    "video-9",
			"stream_url":            "rtmp://live-api-s.facebook.com:80/rtmp/plain-key",
			"secure_stream_url":     "rtmps://live-api-s.facebook.com:443/rtmp/secure-key?s_bl=1",
			"stream_secondary_urls": []string{"rtmps://live-api-b.facebook.com:443/rtmp/backup-key"},
		})
	}))
	defer srv.Close()

	c := NewClient(Config{AppID: "app"}, WithBaseURL(srv.URL))
	stream, err := c.CreateLiveStream(context.Background(), "123", "token", "Friday show", "weekly stream")
	if err != nil {
		t.Fatalf("CreateLiveStream: %v", err)
	}

	if stream.VideoID != "video-9" {
		t.Errorf("expected video id video-9, got %q", stream.VideoID)
	}
	// The secure URL wins over the plain one.
	if stream.ServerURL != "rtmps://live-api-s.facebook.com:443/rtmp" {
		t.Errorf("unexpected server url %q", stream.ServerURL)
	}
	if stream.StreamKey != "secure-key?s_bl=1" {
		t.Errorf("unexpected stream key %q", stream.StreamKey)
	}
	if stream.BackupServer != "rtmps://live-api-b.facebook.com:443/rtmp" || stream.BackupKey != "backup-key" {
		t.Errorf("backup ingest not decomposed: server=%q key=%q", stream.BackupServer, stream.BackupKey)
	}
}

func TestCreateLiveStream_NoStreamURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": "video-9"})
	}))
	defer srv.Close()

	c := NewClient(Config{AppID: "app"}, WithBaseURL(srv.URL))
	if _, err := c.CreateLiveStream(context.Background(), "123", "token", "", ""); err == nil {
		t.Fatal("expected error when the response carries no stream URL")
	}
}
