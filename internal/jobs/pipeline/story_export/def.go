package story_export

import (
	jobtypes "github.com/yungbote/storybook-backend/internal/domain/jobs"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
	"github.com/yungbote/storybook-backend/internal/services"
)

type Pipeline struct {
	log    *logger.Logger
	export services.ExportService
}

func New(baseLog *logger.Logger, export services.ExportService) *Pipeline {
	return &Pipeline{
		log:    baseLog.With("job", jobtypes.TypeStoryExport),
		export: export,
	}
}

func (p *Pipeline) Type() string { return jobtypes.TypeStoryExport }
