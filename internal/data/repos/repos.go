package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/storybook-backend/internal/data/repos/auth"
	"github.com/yungbote/storybook-backend/internal/data/repos/billing"
	"github.com/yungbote/storybook-backend/internal/data/repos/jobs"
	"github.com/yungbote/storybook-backend/internal/data/repos/story"
	"github.com/yungbote/storybook-backend/internal/data/repos/user"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
)

type UserRepo = user.UserRepo
type UserTokenRepo = auth.UserTokenRepo

type StoryRepo = story.StoryRepo
type OrderRepo = billing.OrderRepo

type JobRunRepo = jobs.JobRunRepo

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo { return user.NewUserRepo(db, baseLog) }
func NewUserTokenRepo(db *gorm.DB, baseLog *logger.Logger) UserTokenRepo {
	return auth.NewUserTokenRepo(db, baseLog)
}

func NewStoryRepo(db *gorm.DB, baseLog *logger.Logger) StoryRepo {
	return story.NewStoryRepo(db, baseLog)
}
func NewOrderRepo(db *gorm.DB, baseLog *logger.Logger) OrderRepo {
	return billing.NewOrderRepo(db, baseLog)
}

func NewJobRunRepo(db *gorm.DB, baseLog *logger.Logger) JobRunRepo {
	return jobs.NewJobRunRepo(db, baseLog)
}
