package story_illustrate

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	types "github.com/yungbote/storybook-backend/internal/domain"
	storytypes "github.com/yungbote/storybook-backend/internal/domain/story"
	jobrt "github.com/yungbote/storybook-backend/internal/jobs/runtime"
	"github.com/yungbote/storybook-backend/internal/platform/dbctx"
)

const stage = "illustrate"

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	storyID, ok := jc.PayloadUUID("story_id")
	if !ok {
		jc.Fail("validate", fmt.Errorf("missing story_id"))
		return nil
	}
	log := p.log.With("job_id", jc.Job.ID, "story_id", storyID, "attempt", jc.Job.Attempts)

	dbc := dbctx.Of(jc.Ctx)
	if jc.Job.Attempts > 1 {
		// a previous attempt may have marked the story failed
		if err := p.stories.UpdateFields(dbc, storyID, map[string]interface{}{
			"status": storytypes.StatusIllustrating,
			"error":  "",
		}); err != nil {
			log.Warn("reset story status failed", "error", err)
		}
	}

	jc.Progress(stage, 1, "Painting illustrations")
	res, err := p.illustration.IllustrateStory(jc.Ctx, storyID, func(done, total int, page *types.StoryPage) {
		pct := 1
		if total > 0 {
			pct = done * 100 / total
		}
		jc.Progress(stage, pct, fmt.Sprintf("Illustrated page %d of %d", done, total))
	})
	if err != nil {
		log.Warn("illustration failed", "error", err)
		if jc.Job.Attempts >= p.maxAttempts || jc.Ctx.Err() != nil {
			p.markStoryFailed(jc, storyID, err)
		}
		jc.Fail(stage, err)
		return nil
	}

	jc.Succeed("done", map[string]any{
		"story_id":     storyID.String(),
		"generated":    res.Generated,
		"placeholders": res.Placeholders,
		"skipped":      res.Skipped,
	})
	return nil
}

func (p *Pipeline) markStoryFailed(jc *jobrt.Context, storyID uuid.UUID, cause error) {
	dbc := dbctx.Of(jc.Ctx)
	if jc.Ctx.Err() != nil {
		dbc = dbctx.Of(context.WithoutCancel(jc.Ctx))
	}
	if err := p.stories.UpdateFields(dbc, storyID, map[string]interface{}{
		"status": storytypes.StatusFailed,
		"error":  cause.Error(),
	}); err != nil {
		p.log.Warn("mark story failed", "story_id", storyID, "error", err)
		return
	}
	if p.notify == nil {
		return
	}
	if story, err := p.stories.GetByID(dbc, storyID); err == nil {
		p.notify.StoryUpdated(story.UserID, story)
	}
}
