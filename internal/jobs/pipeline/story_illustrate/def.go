package story_illustrate

import (
	"github.com/yungbote/storybook-backend/internal/data/repos"
	jobtypes "github.com/yungbote/storybook-backend/internal/domain/jobs"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
	"github.com/yungbote/storybook-backend/internal/services"
)

type Pipeline struct {
	log          *logger.Logger
	stories      repos.StoryRepo
	illustration services.IllustrationService
	notify       services.StoryNotifier
	maxAttempts  int
}

// New wires the illustration job. maxAttempts matches the worker's retry
// budget so the story is only marked failed on the last attempt.
func New(
	baseLog *logger.Logger,
	stories repos.StoryRepo,
	illustration services.IllustrationService,
	notify services.StoryNotifier,
	maxAttempts int,
) *Pipeline {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Pipeline{
		log:          baseLog.With("job", jobtypes.TypeStoryIllustrate),
		stories:      stories,
		illustration: illustration,
		notify:       notify,
		maxAttempts:  maxAttempts,
	}
}

func (p *Pipeline) Type() string { return jobtypes.TypeStoryIllustrate }
