package gemini

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/genai"

	"github.com/yungbote/storybook-backend/internal/platform/logger"
)

func newTestClient(maxRetries int) (*Client, *[]time.Duration) {
	var slept []time.Duration
	c := &Client{
		log: logger.Nop(),
		cfg: Config{MaxRetries: maxRetries, RetryDelay: 2 * time.Second},
		sleep: func(ctx context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	}
	return c, &slept
}

func TestWithRetryRetriesRateLimits(t *testing.T) {
	c, slept := newTestClient(3)
	calls := 0
	err := c.withRetry(context.Background(), "image", func() error {
		calls++
		if calls < 3 {
			return errors.New("Error 429, RESOURCE_EXHAUSTED")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("withRetry: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls: want=3 got=%d", calls)
	}
	if len(*slept) != 2 || (*slept)[0] != 2*time.Second {
		t.Fatalf("sleeps: want=[2s 2s] got=%v", *slept)
	}
}

func TestWithRetryGivesUpAfterMax(t *testing.T) {
	c, slept := newTestClient(3)
	calls := 0
	err := c.withRetry(context.Background(), "image", func() error {
		calls++
		return errors.New("quota exceeded")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 3 || len(*slept) != 2 {
		t.Fatalf("want 3 calls and 2 sleeps, got calls=%d sleeps=%d", calls, len(*slept))
	}
}

func TestWithRetryDoesNotRetryOtherErrors(t *testing.T) {
	c, slept := newTestClient(3)
	calls := 0
	err := c.withRetry(context.Background(), "describe", func() error {
		calls++
		return errors.New("invalid argument")
	})
	if err == nil || calls != 1 || len(*slept) != 0 {
		t.Fatalf("want single failing call, got err=%v calls=%d sleeps=%d", err, calls, len(*slept))
	}
}

func TestIsRateLimited(t *testing.T) {
	if !IsRateLimited(genai.APIError{Code: 429}) {
		t.Fatalf("APIError 429 should be rate limited")
	}
	if IsRateLimited(genai.APIError{Code: 400, Message: "bad"}) {
		t.Fatalf("APIError 400 should not be rate limited")
	}
	if !IsRateLimited(errors.New("Rate limit reached")) {
		t.Fatalf("message match should be rate limited")
	}
}

func TestFirstInlineImage(t *testing.T) {
	res := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []*genai.Part{genai.NewPartFromText("here you go")}}},
			{Content: &genai.Content{Parts: []*genai.Part{genai.NewPartFromBytes([]byte{1, 2, 3}, "image/png")}}},
		},
	}
	img, ok := firstInlineImage(res)
	if !ok || len(img.Bytes) != 3 || img.MimeType != "image/png" {
		t.Fatalf("firstInlineImage: unexpected %+v ok=%v", img, ok)
	}
	if _, ok := firstInlineImage(&genai.GenerateContentResponse{}); ok {
		t.Fatalf("firstInlineImage: expected miss on empty response")
	}
}
