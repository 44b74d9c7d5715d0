package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/storybook-backend/internal/data/repos"
	"github.com/yungbote/storybook-backend/internal/data/repos/testutil"
	types "github.com/yungbote/storybook-backend/internal/domain"
	jobtypes "github.com/yungbote/storybook-backend/internal/domain/jobs"
	storytypes "github.com/yungbote/storybook-backend/internal/domain/story"
	"github.com/yungbote/storybook-backend/internal/platform/apierr"
	"github.com/yungbote/storybook-backend/internal/platform/ctxutil"
	"github.com/yungbote/storybook-backend/internal/platform/dbctx"
	"github.com/yungbote/storybook-backend/internal/prompts"
)

const fencedDraft = "```json\n" + `{"title":"Maya and the Star Map","pages":[
{"text":"Maya found a glowing map under her pillow.","scene":"Maya holding a glowing star map in her bedroom"},
{"text":"She flew her cardboard rocket past the moon.","scene":""},
{"text":"The stars sang her back home to bed.","scene":"Maya waving at singing stars"},
{"text":"Maya smiled and dreamed of the next trip.","scene":"Maya asleep with the map"}
]}` + "\n```"

func newStories(e *env, text *fakeText) StoryService {
	return NewStoryService(e.tx, e.log, e.stories, e.subs, e.jobs, text, prompts.NewBuilder(nil), nil, NewNotifier(e.emitter))
}

func storyRequest() CreateStoryRequest {
	return CreateStoryRequest{
		ChildName:        " Maya ",
		ChildAge:         5,
		ChildGender:      "girl",
		ChildDescription: "curly brown hair and a yellow raincoat",
		ThemeID:          "space_adventure",
		PageCount:        4,
	}
}

func TestCreateStoryParsesFencedJSON(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := testutil.SeedUser(t, ctx, e.tx, "story@example.com")
	text := &fakeText{replies: []string{fencedDraft}}
	svc := newStories(e, text)

	story, err := svc.Create(ctx, u.ID, storyRequest())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if story.Title != "Maya and the Star Map" || story.ChildName != "Maya" || story.Status != storytypes.StatusTextReady {
		t.Fatalf("story: unexpected %+v", story)
	}
	if len(story.Pages) != 4 {
		t.Fatalf("pages: want=4 got=%d", len(story.Pages))
	}
	if story.Pages[1].Scene == "" {
		t.Fatalf("empty scene not extracted from text")
	}
	for _, p := range story.Pages {
		if p.ImagePrompt == "" || len(p.ImagePrompt) > prompts.MaxImagePromptLen {
			t.Fatalf("page %d: bad image prompt length %d", p.Index, len(p.ImagePrompt))
		}
		if !strings.Contains(p.ImagePrompt, "curly brown hair") {
			t.Fatalf("page %d: character description missing from prompt", p.Index)
		}
	}
	if text.calls != 1 {
		t.Fatalf("llm calls: want=1 got=%d", text.calls)
	}

	st, _ := e.subs.Status(ctx, u.ID)
	if st.StoriesUsed != 1 {
		t.Fatalf("stories used: want=1 got=%d", st.StoriesUsed)
	}

	got, err := svc.Get(ctx, u.ID, story.ID)
	if err != nil || len(got.Pages) != 4 {
		t.Fatalf("Get: unexpected %v err=%v", got, err)
	}
	if _, err := svc.Get(ctx, uuid.New(), story.ID); !apierr.IsKind(err, apierr.KindNotFound) {
		t.Fatalf("foreign Get: want not_found got=%v", err)
	}
}

func TestCreateStoryRetriesOnceThenReleasesAllowance(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := testutil.SeedUser(t, ctx, e.tx, "retry@example.com")
	text := &fakeText{replies: []string{"not json", "still not json"}}
	svc := newStories(e, text)

	_, err := svc.Create(ctx, u.ID, storyRequest())
	if !apierr.IsKind(err, apierr.KindExternal) {
		t.Fatalf("Create: want external error got=%v", err)
	}
	if text.calls != 2 {
		t.Fatalf("llm calls: want=2 got=%d", text.calls)
	}
	st, _ := e.subs.Status(ctx, u.ID)
	if st.StoriesUsed != 0 {
		t.Fatalf("allowance not released: used=%d", st.StoriesUsed)
	}
}

func TestCreateStoryLimitAndValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := testutil.SeedUser(t, ctx, e.tx, "limit@example.com")
	svc := newStories(e, &fakeText{replies: []string{fencedDraft}})

	bad := storyRequest()
	bad.ThemeID = "volcano"
	bad.ChildAge = 14
	_, err := svc.Create(ctx, u.ID, bad)
	ae := apierr.From(err)
	if ae == nil || ae.Kind != apierr.KindValidation || len(ae.Details) != 2 {
		t.Fatalf("validation: unexpected %v", err)
	}

	if _, err := svc.Create(ctx, u.ID, storyRequest()); err != nil {
		t.Fatalf("first Create: %v", err)
	}
	if _, err := svc.Create(ctx, u.ID, storyRequest()); !apierr.IsKind(err, apierr.KindRateLimit) {
		t.Fatalf("second Create on free plan: want rate_limit got=%v", err)
	}
}

func TestCreateStoryProviderErrorReleases(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := testutil.SeedUser(t, ctx, e.tx, "providererr@example.com")
	svc := newStories(e, &fakeText{err: errors.New("503")})
	if _, err := svc.Create(ctx, u.ID, storyRequest()); !apierr.IsKind(err, apierr.KindExternal) {
		t.Fatalf("Create: want external got=%v", err)
	}
	st, _ := e.subs.Status(ctx, u.ID)
	if st.Remaining != 1 {
		t.Fatalf("remaining: want=1 got=%d", st.Remaining)
	}
}

func TestUpdatePageTextRebuildsPrompt(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := testutil.SeedUser(t, ctx, e.tx, "pageedit@example.com")
	story := testutil.SeedStory(t, ctx, e.tx, u.ID, 2)
	svc := newStories(e, &fakeText{})

	page, err := svc.UpdatePageText(ctx, u.ID, story.ID, 1, "Maya climbed into the shiny rocket ship and waved goodbye.")
	if err != nil {
		t.Fatalf("UpdatePageText: %v", err)
	}
	if !strings.Contains(page.ImagePrompt, "rocket") || page.Scene == "" {
		t.Fatalf("page: unexpected %+v", page)
	}
	if _, err := svc.UpdatePageText(ctx, u.ID, story.ID, 7, "text"); !apierr.IsKind(err, apierr.KindNotFound) {
		t.Fatalf("missing page: want not_found got=%v", err)
	}
	if _, err := svc.UpdatePageText(ctx, u.ID, story.ID, 0, "   "); !apierr.IsKind(err, apierr.KindValidation) {
		t.Fatalf("blank text: want validation got=%v", err)
	}
}

func TestRequestIllustrationsConflictsWhileActive(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := testutil.SeedUser(t, ctx, e.tx, "illustrate@example.com")
	story := testutil.SeedStory(t, ctx, e.tx, u.ID, 2)
	if err := e.stories.UpdateFields(dbctx.Of(ctx), story.ID, map[string]interface{}{"text_generated": true}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	svc := newStories(e, &fakeText{})

	job, err := svc.RequestIllustrations(ctx, u.ID, story.ID)
	if err != nil {
		t.Fatalf("RequestIllustrations: %v", err)
	}
	if job.JobType != jobtypes.TypeStoryIllustrate || job.Status != jobtypes.StatusQueued {
		t.Fatalf("job: unexpected %+v", job)
	}
	got, _ := e.stories.GetByID(dbctx.Of(ctx), story.ID)
	if got.Status != storytypes.StatusIllustrating {
		t.Fatalf("status: want=%s got=%s", storytypes.StatusIllustrating, got.Status)
	}
	if _, err := svc.RequestIllustrations(ctx, u.ID, story.ID); !apierr.IsKind(err, apierr.KindConflict) {
		t.Fatalf("second request: want conflict got=%v", err)
	}
}

type lockCountingStories struct {
	repos.StoryRepo
	locks int
}

func (r *lockCountingStories) LockForUser(dbc dbctx.Context, userID, storyID uuid.UUID) (*types.Story, error) {
	r.locks++
	return r.StoryRepo.LockForUser(dbc, userID, storyID)
}

func TestRequestIllustrationsLocksStoryRow(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := testutil.SeedUser(t, ctx, e.tx, "locked@example.com")
	story := testutil.SeedStory(t, ctx, e.tx, u.ID, 1)
	if err := e.stories.UpdateFields(dbctx.Of(ctx), story.ID, map[string]interface{}{"text_generated": true}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	stories := &lockCountingStories{StoryRepo: e.stories}
	svc := NewStoryService(e.tx, e.log, stories, e.subs, e.jobs, &fakeText{}, prompts.NewBuilder(nil), nil, NewNotifier(e.emitter))

	if _, err := svc.RequestIllustrations(ctx, u.ID, story.ID); err != nil {
		t.Fatalf("RequestIllustrations: %v", err)
	}
	if _, err := svc.RequestIllustrations(ctx, u.ID, story.ID); !apierr.IsKind(err, apierr.KindConflict) {
		t.Fatalf("second request: want conflict got=%v", err)
	}
	if stories.locks != 2 {
		t.Fatalf("row locks: want=2 got=%d", stories.locks)
	}
	if _, err := svc.RequestIllustrations(ctx, uuid.New(), story.ID); !apierr.IsKind(err, apierr.KindNotFound) {
		t.Fatalf("other user: want not found got=%v", err)
	}
}

func TestCreateStoryRejectsForeignPhotoKey(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := testutil.SeedUser(t, ctx, e.tx, "photo-owner@example.com")
	text := &fakeText{}
	svc := newStories(e, text)

	for _, key := range []string{
		"photos/" + uuid.New().String() + "/someone-elses.jpg",
		"photos/" + u.ID.String() + "/../" + uuid.New().String() + "/x.jpg",
		"illustrations/" + u.ID.String() + "/a.webp",
	} {
		req := storyRequest()
		req.PhotoKey = key
		_, err := svc.Create(ctx, u.ID, req)
		if !apierr.IsKind(err, apierr.KindValidation) {
			t.Fatalf("photo_key %q: want validation got=%v", key, err)
		}
		details := apierr.From(err).Details
		if len(details) != 1 || details[0].Field != "photo_key" {
			t.Fatalf("photo_key %q: want one photo_key field error got=%v", key, details)
		}
	}
	if text.calls != 0 {
		t.Fatalf("text provider: want=0 calls got=%d", text.calls)
	}
}

func TestLatestJobForStory(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := testutil.SeedUser(t, ctx, e.tx, "latest-job@example.com")
	story := testutil.SeedStory(t, ctx, e.tx, u.ID, 1)
	if err := e.stories.UpdateFields(dbctx.Of(ctx), story.ID, map[string]interface{}{"text_generated": true}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	job, err := newStories(e, &fakeText{}).RequestIllustrations(ctx, u.ID, story.ID)
	if err != nil {
		t.Fatalf("RequestIllustrations: %v", err)
	}

	owner := dbctx.Of(ctxutil.WithRequestData(ctx, &ctxutil.RequestData{UserID: u.ID}))
	got, err := e.jobs.LatestForStory(owner, story.ID, jobtypes.TypeStoryIllustrate)
	if err != nil || got.ID != job.ID {
		t.Fatalf("latest: want=%v got=%v err=%v", job.ID, got, err)
	}
	if _, err := e.jobs.LatestForStory(owner, story.ID, jobtypes.TypeStoryExport); !apierr.IsKind(err, apierr.KindNotFound) {
		t.Fatalf("export job: want not found got=%v", err)
	}
	if _, err := e.jobs.LatestForStory(owner, story.ID, "reindex"); !apierr.IsKind(err, apierr.KindValidation) {
		t.Fatalf("unknown type: want validation got=%v", err)
	}
	stranger := dbctx.Of(ctxutil.WithRequestData(ctx, &ctxutil.RequestData{UserID: uuid.New()}))
	if _, err := e.jobs.LatestForStory(stranger, story.ID, jobtypes.TypeStoryIllustrate); !apierr.IsKind(err, apierr.KindNotFound) {
		t.Fatalf("other user: want not found got=%v", err)
	}
}

func TestDeleteStory(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := testutil.SeedUser(t, ctx, e.tx, "delete@example.com")
	story := testutil.SeedStory(t, ctx, e.tx, u.ID, 1)
	svc := newStories(e, &fakeText{})

	if err := svc.Delete(ctx, uuid.New(), story.ID); !apierr.IsKind(err, apierr.KindNotFound) {
		t.Fatalf("foreign delete: want not_found got=%v", err)
	}
	if err := svc.Delete(ctx, u.ID, story.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	list, err := svc.List(ctx, u.ID, 0, 0)
	if err != nil || list.Total != 0 {
		t.Fatalf("List after delete: unexpected %+v err=%v", list, err)
	}
}

func TestCleanJSON(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```":         `{"a":1}`,
		"Sure! {\"a\":1} hope that helps": `{"a":1}`,
		"{\"a\":1}":                       `{"a":1}`,
	}
	for in, want := range cases {
		if got := cleanJSON(in); got != want {
			t.Fatalf("cleanJSON(%q): want=%q got=%q", in, want, got)
		}
	}
}
