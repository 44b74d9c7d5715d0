package story_illustrate

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/storybook-backend/internal/data/repos"
	"github.com/yungbote/storybook-backend/internal/data/repos/testutil"
	types "github.com/yungbote/storybook-backend/internal/domain"
	jobtypes "github.com/yungbote/storybook-backend/internal/domain/jobs"
	storytypes "github.com/yungbote/storybook-backend/internal/domain/story"
	jobrt "github.com/yungbote/storybook-backend/internal/jobs/runtime"
	"github.com/yungbote/storybook-backend/internal/platform/dbctx"
	"github.com/yungbote/storybook-backend/internal/services"
)

type fakeIllustration struct {
	err   error
	pages int
}

func (f *fakeIllustration) IllustrateStory(_ context.Context, storyID uuid.UUID, progress services.IllustrationProgress) (*services.IllustrationResult, error) {
	for i := 0; i < f.pages; i++ {
		progress(i+1, f.pages, &types.StoryPage{Index: i})
	}
	if f.err != nil {
		return nil, f.err
	}
	return &services.IllustrationResult{StoryID: storyID, Generated: f.pages}, nil
}

func (f *fakeIllustration) GenerateSingle(context.Context, string, string) (*services.SingleImage, error) {
	return nil, errors.New("not used")
}

type storyEvents struct{ n int }

func (s *storyEvents) StoryUpdated(uuid.UUID, *types.Story) { s.n++ }

func setup(t *testing.T, illus *fakeIllustration) (*Pipeline, repos.StoryRepo, *types.Story, *storyEvents) {
	t.Helper()
	ctx := context.Background()
	tx := testutil.Tx(t, testutil.DB(t))
	log := testutil.Logger(t)
	u := testutil.SeedUser(t, ctx, tx, "illustrate-"+uuid.NewString()+"@example.com")
	st := testutil.SeedStory(t, ctx, tx, u.ID, 3)
	stories := repos.NewStoryRepo(tx, log)
	if err := stories.UpdateFields(dbctx.Of(ctx), st.ID, map[string]interface{}{"status": storytypes.StatusIllustrating}); err != nil {
		t.Fatalf("set illustrating: %v", err)
	}
	ev := &storyEvents{}
	return New(log, stories, illus, ev, 2), stories, st, ev
}

func newJobContext(storyID uuid.UUID, attempts int) *jobrt.Context {
	payload, _ := json.Marshal(map[string]any{"story_id": storyID.String()})
	job := &types.JobRun{
		ID:       uuid.New(),
		JobType:  jobtypes.TypeStoryIllustrate,
		Status:   jobtypes.StatusRunning,
		Attempts: attempts,
		Payload:  datatypes.JSON(payload),
	}
	return jobrt.NewContext(context.Background(), job, nil, nil)
}

func TestRunSucceedsWithCounts(t *testing.T) {
	p, _, st, _ := setup(t, &fakeIllustration{pages: 3})
	jc := newJobContext(st.ID, 1)

	if err := p.Run(jc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if jc.Job.Status != jobtypes.StatusSucceeded {
		t.Fatalf("want=succeeded got=%s", jc.Job.Status)
	}
	var res map[string]any
	if err := json.Unmarshal(jc.Job.Result, &res); err != nil {
		t.Fatalf("result: %v", err)
	}
	if res["generated"] != float64(3) {
		t.Fatalf("generated: want=3 got=%v", res["generated"])
	}
}

func TestRunFailureKeepsStoryUntilLastAttempt(t *testing.T) {
	p, stories, st, ev := setup(t, &fakeIllustration{pages: 1, err: errors.New("db gone")})

	jc := newJobContext(st.ID, 1)
	_ = p.Run(jc)
	if jc.Job.Status != jobtypes.StatusFailed {
		t.Fatalf("want=failed got=%s", jc.Job.Status)
	}
	got, _ := stories.GetByID(dbctx.Of(context.Background()), st.ID)
	if got.Status != storytypes.StatusIllustrating {
		t.Fatalf("after first attempt: want=%s got=%s", storytypes.StatusIllustrating, got.Status)
	}

	jc = newJobContext(st.ID, 2)
	_ = p.Run(jc)
	got, _ = stories.GetByID(dbctx.Of(context.Background()), st.ID)
	if got.Status != storytypes.StatusFailed || got.Error == "" {
		t.Fatalf("after last attempt: want=failed with error got=%s/%q", got.Status, got.Error)
	}
	if ev.n != 1 {
		t.Fatalf("story events: want=1 got=%d", ev.n)
	}
}

func TestRunMissingStoryID(t *testing.T) {
	p, _, _, _ := setup(t, &fakeIllustration{})
	jc := jobrt.NewContext(context.Background(), &types.JobRun{ID: uuid.New(), Status: jobtypes.StatusRunning}, nil, nil)
	_ = p.Run(jc)
	if jc.Job.Status != jobtypes.StatusFailed || jc.Job.Stage != "validate" {
		t.Fatalf("want=failed/validate got=%s/%s", jc.Job.Status, jc.Job.Stage)
	}
}
