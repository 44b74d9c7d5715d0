package bus

import (
	"context"
	"errors"
	"sync"

	"github.com/yungbote/storybook-backend/internal/realtime"
)

// localBus is the single-instance Bus used when Redis is not configured.
// Publish hands messages to every started forwarder in call order.
type localBus struct {
	mu     sync.RWMutex
	subs   map[int]func(realtime.SSEMessage)
	next   int
	closed bool
}

func NewLocalBus() Bus {
	return &localBus{subs: map[int]func(realtime.SSEMessage){}}
}

func (b *localBus) Publish(ctx context.Context, msg realtime.SSEMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for _, fn := range b.subs {
		fn(msg)
	}
	return nil
}

func (b *localBus) StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error {
	if onMsg == nil {
		return errors.New("onMsg callback required")
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	id := b.next
	b.next++
	b.subs[id] = onMsg
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}()
	return nil
}

func (b *localBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = map[int]func(realtime.SSEMessage){}
	return nil
}
