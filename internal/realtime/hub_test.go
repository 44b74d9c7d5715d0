package realtime

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
)

func mustTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(log.Sync)
	return log
}

func recvMessage(t *testing.T, ch <-chan SSEMessage, timeout time.Duration) SSEMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for SSE message")
	}
	return SSEMessage{}
}

func TestSSEHubKeepsOrderAcrossReconnect(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	user := uuid.New()
	channel := user.String()

	first := hub.NewSSEClient(user)
	hub.AddChannel(first, channel)
	for pct := 10; pct <= 30; pct += 10 {
		hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventJobProgress, Data: map[string]any{"progress": pct}})
	}
	for want := 10; want <= 30; want += 10 {
		got := recvMessage(t, first.Outbound, time.Second)
		if got.Data.(map[string]any)["progress"] != want {
			t.Fatalf("progress: want=%d got=%v", want, got.Data)
		}
	}

	hub.CloseClient(first)
	if _, open := <-first.Outbound; open {
		t.Fatalf("outbound should be closed after CloseClient")
	}
	select {
	case <-first.Done():
	default:
		t.Fatalf("done should be closed after CloseClient")
	}

	second := hub.NewSSEClient(user)
	hub.AddChannel(second, channel)
	hub.Broadcast(SSEMessage{Channel: channel, Event: SSEEventJobDone})
	if got := recvMessage(t, second.Outbound, time.Second); got.Event != SSEEventJobDone {
		t.Fatalf("after reconnect: want=%s got=%s", SSEEventJobDone, got.Event)
	}
}

func TestSSEHubUserChannelsAreIsolated(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	alice, bob := uuid.New(), uuid.New()
	ca := hub.NewSSEClient(alice)
	cb := hub.NewSSEClient(bob)
	hub.AddChannel(ca, alice.String())
	hub.AddChannel(cb, bob.String())

	hub.Broadcast(SSEMessage{Channel: alice.String(), Event: SSEEventStoryUpdated})
	got := recvMessage(t, ca.Outbound, time.Second)
	if got.Event != SSEEventStoryUpdated {
		t.Fatalf("alice event: want=%s got=%s", SSEEventStoryUpdated, got.Event)
	}
	select {
	case m := <-cb.Outbound:
		t.Fatalf("bob received alice's message: %+v", m)
	case <-time.After(50 * time.Millisecond):
	}
	hub.CloseClient(ca)
	hub.CloseClient(ca)
	if n := hub.ClientCount(alice.String()); n != 0 {
		t.Fatalf("client count after close: want=0 got=%d", n)
	}
}

func TestSSEHubServeWritesEvents(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	user := uuid.New()
	client := hub.NewSSEClient(user)
	hub.AddChannel(client, user.String())

	rec := httptest.NewRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Serve(ctx, rec, client)
		close(done)
	}()
	hub.Broadcast(SSEMessage{Channel: user.String(), Event: SSEEventJobDone, Data: map[string]any{"job_id": "j1"}})
	time.Sleep(50 * time.Millisecond)
	hub.CloseClient(client)
	<-done
	cancel()

	body := rec.Body.String()
	if !strings.Contains(body, "event: JobDone") || !strings.Contains(body, `"job_id":"j1"`) {
		t.Fatalf("stream body: unexpected %q", body)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type: want=text/event-stream got=%s", ct)
	}
}

func TestSSEHubDropsWhenBufferFull(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	user := uuid.New()
	client := hub.NewSSEClient(user)
	hub.AddChannel(client, user.String())

	for i := 0; i < clientBuffer+5; i++ {
		hub.Broadcast(SSEMessage{Channel: user.String(), Event: SSEEventJobProgress, Data: map[string]any{"seq": i}})
	}
	if got := len(client.Outbound); got != clientBuffer {
		t.Fatalf("buffered: want=%d got=%d", clientBuffer, got)
	}
	if got := recvMessage(t, client.Outbound, time.Second); got.Data.(map[string]any)["seq"] != 0 {
		t.Fatalf("oldest message should be kept, got=%v", got.Data)
	}
}

func TestSSEHubRemoveChannel(t *testing.T) {
	hub := NewSSEHub(mustTestLogger(t))
	client := hub.NewSSEClient(uuid.New())
	hub.AddChannel(client, " stories ")
	hub.AddChannel(client, "")
	if n := hub.ClientCount("stories"); n != 1 {
		t.Fatalf("subscribed: want=1 got=%d", n)
	}
	hub.RemoveChannel(client, "stories")
	if n := hub.ClientCount("stories"); n != 0 {
		t.Fatalf("after remove: want=0 got=%d", n)
	}
	hub.Broadcast(SSEMessage{Channel: "stories", Event: SSEEventStoryUpdated})
	if n := len(client.Outbound); n != 0 {
		t.Fatalf("outbound after remove: want=0 got=%d", n)
	}
}
