package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// clientBuffer bounds how far a slow stream may lag before messages drop.
const clientBuffer = 32

// SSEClient is one open event stream. The hub owns its channel set; callers
// read Outbound until Done is closed.
type SSEClient struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	ConnectedAt time.Time
	Outbound    chan SSEMessage

	channels map[string]struct{}
	done     chan struct{}
	once     sync.Once
}

func newSSEClient(userID uuid.UUID) *SSEClient {
	return &SSEClient{
		ID:          uuid.New(),
		UserID:      userID,
		ConnectedAt: time.Now(),
		Outbound:    make(chan SSEMessage, clientBuffer),
		channels:    map[string]struct{}{},
		done:        make(chan struct{}),
	}
}

func (c *SSEClient) Done() <-chan struct{} { return c.done }

// Age reports how long the stream has been open.
func (c *SSEClient) Age() time.Duration { return time.Since(c.ConnectedAt) }
