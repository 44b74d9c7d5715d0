package bus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/storybook-backend/internal/realtime"
)

func TestLocalBusDeliversToForwarders(t *testing.T) {
	b := NewLocalBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []realtime.SSEMessage
	if err := b.StartForwarder(ctx, func(m realtime.SSEMessage) { got = append(got, m) }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	msg := realtime.SSEMessage{Channel: "u-1", Event: realtime.SSEEventJobDone}
	if err := b.Publish(context.Background(), msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(got) != 1 || got[0].Channel != "u-1" {
		t.Fatalf("delivered: want=1 got=%v", got)
	}
}

func TestLocalBusStopsAfterCancel(t *testing.T) {
	b := NewLocalBus().(*localBus)
	ctx, cancel := context.WithCancel(context.Background())
	if err := b.StartForwarder(ctx, func(realtime.SSEMessage) {}); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	cancel()

	deadline := time.Now().Add(time.Second)
	for {
		b.mu.RLock()
		n := len(b.subs)
		b.mu.RUnlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("forwarder still registered after cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLocalBusClosed(t *testing.T) {
	b := NewLocalBus()
	_ = b.Close()
	if err := b.Publish(context.Background(), realtime.SSEMessage{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("publish: want=%v got=%v", ErrClosed, err)
	}
	if err := b.StartForwarder(context.Background(), func(realtime.SSEMessage) {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("forwarder: want=%v got=%v", ErrClosed, err)
	}
}
