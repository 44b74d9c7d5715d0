package story_export

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/storybook-backend/internal/data/repos/testutil"
	types "github.com/yungbote/storybook-backend/internal/domain"
	jobtypes "github.com/yungbote/storybook-backend/internal/domain/jobs"
	jobrt "github.com/yungbote/storybook-backend/internal/jobs/runtime"
	"github.com/yungbote/storybook-backend/internal/platform/apierr"
	"github.com/yungbote/storybook-backend/internal/services"
)

type fakeExport struct {
	err      error
	gotUser  uuid.UUID
	gotStory uuid.UUID
}

func (f *fakeExport) Export(_ context.Context, userID, storyID uuid.UUID) (*services.ExportResult, error) {
	f.gotUser, f.gotStory = userID, storyID
	if f.err != nil {
		return nil, f.err
	}
	return &services.ExportResult{URL: "https://cdn.example.com/exports/a.pdf", Key: "exports/a.pdf"}, nil
}

func jobFor(owner, storyID uuid.UUID) *jobrt.Context {
	payload, _ := json.Marshal(map[string]any{"story_id": storyID.String(), "order_id": uuid.NewString()})
	return jobrt.NewContext(context.Background(), &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: owner,
		JobType:     jobtypes.TypeStoryExport,
		Status:      jobtypes.StatusRunning,
		Attempts:    1,
		Payload:     datatypes.JSON(payload),
	}, nil, nil)
}

func TestRunExportsForOwner(t *testing.T) {
	fx := &fakeExport{}
	p := New(testutil.Logger(t), fx)
	owner, storyID := uuid.New(), uuid.New()
	jc := jobFor(owner, storyID)

	if err := p.Run(jc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fx.gotUser != owner || fx.gotStory != storyID {
		t.Fatalf("export args: want=%s/%s got=%s/%s", owner, storyID, fx.gotUser, fx.gotStory)
	}
	var res map[string]any
	_ = json.Unmarshal(jc.Job.Result, &res)
	if jc.Job.Status != jobtypes.StatusSucceeded || res["url"] != "https://cdn.example.com/exports/a.pdf" {
		t.Fatalf("unexpected job state %s result=%v", jc.Job.Status, res)
	}
}

func TestRunExportErrorFailsJob(t *testing.T) {
	p := New(testutil.Logger(t), &fakeExport{err: apierr.Payment("export_not_included", "no")})
	jc := jobFor(uuid.New(), uuid.New())
	_ = p.Run(jc)
	if jc.Job.Status != jobtypes.StatusFailed || jc.Job.Stage != "render" {
		t.Fatalf("want=failed/render got=%s/%s", jc.Job.Status, jc.Job.Stage)
	}
}
