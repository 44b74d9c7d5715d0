package bus

import (
	"context"
	"errors"

	"github.com/yungbote/storybook-backend/internal/realtime"
)

var ErrClosed = errors.New("sse bus closed")

// Bus carries SSE messages between instances. A published message reaches the
// forwarder of every instance, the publisher's own included.
type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}
