package replicate

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/storybook-backend/internal/platform/llm"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
)

func TestGenerateImagePollsUntilSucceeded(t *testing.T) {
	var polls int32
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("auth header: want=%q got=%q", "Bearer tok", got)
		}
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/models/acme/painter/predictions"):
			var body map[string]map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["input"]["prompt"] != "a dragon" {
				t.Errorf("prompt: want=%q got=%v", "a dragon", body["input"]["prompt"])
			}
			_, _ = w.Write([]byte(`{"id":"p1","status":"starting"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/predictions/p1":
			if atomic.AddInt32(&polls, 1) < 2 {
				_, _ = w.Write([]byte(`{"id":"p1","status":"processing"}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":"p1","status":"succeeded","output":["` + srv.URL + `/out.png"]}`))
		case r.URL.Path == "/out.png":
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := New(logger.Nop(), Config{APIToken: "tok", BaseURL: srv.URL, Model: "acme/painter", PollInterval: time.Millisecond})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	img, err := c.GenerateImage(t.Context(), llm.ImageRequest{Prompt: "a dragon"})
	if err != nil {
		t.Fatalf("GenerateImage: %v", err)
	}
	if len(img.Bytes) != 4 || img.MimeType != "image/png" || img.Provider != llm.ProviderReplicate {
		t.Fatalf("unexpected image: %+v", img)
	}
	if atomic.LoadInt32(&polls) != 2 {
		t.Fatalf("polls: want=2 got=%d", polls)
	}
}

func TestGenerateImageFailedPrediction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"p2","status":"failed","error":"nsfw"}`))
	}))
	defer srv.Close()

	c, _ := New(logger.Nop(), Config{APIToken: "tok", BaseURL: srv.URL, PollInterval: time.Millisecond})
	if _, err := c.GenerateImage(t.Context(), llm.ImageRequest{Prompt: "x"}); err == nil {
		t.Fatalf("expected error for failed prediction")
	}
}

func TestOutputURL(t *testing.T) {
	if u, err := outputURL(json.RawMessage(`"https://x/a.png"`)); err != nil || u != "https://x/a.png" {
		t.Fatalf("string output: u=%q err=%v", u, err)
	}
	if u, err := outputURL(json.RawMessage(`["https://x/b.png","https://x/c.png"]`)); err != nil || u != "https://x/b.png" {
		t.Fatalf("list output: u=%q err=%v", u, err)
	}
	if _, err := outputURL(json.RawMessage(`null`)); err == nil {
		t.Fatalf("null output: expected error")
	}
}
