package domain

import (
	"github.com/yungbote/storybook-backend/internal/domain/auth"
	"github.com/yungbote/storybook-backend/internal/domain/billing"
	"github.com/yungbote/storybook-backend/internal/domain/jobs"
	"github.com/yungbote/storybook-backend/internal/domain/story"
	"github.com/yungbote/storybook-backend/internal/domain/user"
)

type User = user.User
type UserToken = auth.UserToken

type Story = story.Story
type StoryPage = story.StoryPage

type Order = billing.Order
type SubscriptionPlan = billing.SubscriptionPlan

type JobRun = jobs.JobRun

// Models lists every persisted entity in migration order.
func Models() []any {
	return []any{
		&User{},
		&UserToken{},
		&Story{},
		&StoryPage{},
		&Order{},
		&JobRun{},
	}
}
