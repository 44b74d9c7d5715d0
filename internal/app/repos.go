package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/storybook-backend/internal/data/repos"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
)

type Repos struct {
	User      repos.UserRepo
	UserToken repos.UserTokenRepo
	Story     repos.StoryRepo
	Order     repos.OrderRepo
	JobRun    repos.JobRunRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		User:      repos.NewUserRepo(db, log),
		UserToken: repos.NewUserTokenRepo(db, log),
		Story:     repos.NewStoryRepo(db, log),
		Order:     repos.NewOrderRepo(db, log),
		JobRun:    repos.NewJobRunRepo(db, log),
	}
}
