package story_export

import (
	"fmt"

	jobrt "github.com/yungbote/storybook-backend/internal/jobs/runtime"
	"github.com/yungbote/storybook-backend/internal/platform/apierr"
)

// Run renders the PDF for a story whose pdf order was paid.
func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	storyID, ok := jc.PayloadUUID("story_id")
	if !ok {
		jc.Fail("validate", fmt.Errorf("missing story_id"))
		return nil
	}
	log := p.log.With("job_id", jc.Job.ID, "story_id", storyID, "order_id", jc.PayloadString("order_id"))

	jc.Progress("render", 10, "Rendering your storybook")
	res, err := p.export.Export(jc.Ctx, jc.Job.OwnerUserID, storyID)
	if err != nil {
		ae := apierr.From(err)
		if ae.Kind == apierr.KindPayment || ae.Kind == apierr.KindNotFound || ae.Kind == apierr.KindConflict {
			log.Info("export not possible", "code", ae.Code, "error", err)
		} else {
			log.Warn("export failed", "error", err)
		}
		jc.Fail("render", err)
		return nil
	}
	jc.Succeed("done", map[string]any{
		"story_id": storyID.String(),
		"url":      res.URL,
	})
	return nil
}
