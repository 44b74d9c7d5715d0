package realtime

type SSEEvent string

const (
	SSEEventJobCreated   SSEEvent = "JobCreated"
	SSEEventJobProgress  SSEEvent = "JobProgress"
	SSEEventJobFailed    SSEEvent = "JobFailed"
	SSEEventJobDone      SSEEvent = "JobDone"
	SSEEventStoryUpdated SSEEvent = "StoryUpdated"
)

type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Data    any      `json:"data,omitempty"`
}
