package services

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/storybook-backend/internal/data/repos/testutil"
	storytypes "github.com/yungbote/storybook-backend/internal/domain/story"
	"github.com/yungbote/storybook-backend/internal/platform/dbctx"
	"github.com/yungbote/storybook-backend/internal/platform/gcp"
	"github.com/yungbote/storybook-backend/internal/platform/llm"
	"github.com/yungbote/storybook-backend/internal/realtime"
)

func newIllustrator(e *env, gen llm.ImageGenerator, bucket gcp.BucketService, provider string, sl *recordingSleep) *illustrationService {
	svc := NewIllustrationService(e.log, e.stories, []llm.ImageGenerator{gen}, bucket, NewNotifier(e.emitter), IllustrationConfig{
		Provider: provider,
		Delay:    time.Second,
	}).(*illustrationService)
	svc.sleep = sl.sleep
	return svc
}

func TestIllustrateStoryDelaysAndSubstitutesPlaceholders(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := testutil.SeedUser(t, ctx, e.tx, "illustrator@example.com")
	story := testutil.SeedStory(t, ctx, e.tx, u.ID, 3)

	gen := &fakeImages{name: llm.ProviderDalle, failOn: map[int]bool{1: true}}
	bucket := newMemBucket()
	sl := &recordingSleep{}
	svc := newIllustrator(e, gen, bucket, llm.ProviderDalle, sl)

	var progress []int
	res, err := svc.IllustrateStory(ctx, story.ID, func(done, total int, _ *storytypes.StoryPage) {
		if total != 3 {
			t.Fatalf("total: want=3 got=%d", total)
		}
		progress = append(progress, done)
	})
	if err != nil {
		t.Fatalf("IllustrateStory: %v", err)
	}
	if res.Generated != 2 || res.Placeholders != 1 {
		t.Fatalf("result: unexpected %+v", res)
	}
	if gen.calls != 3 {
		t.Fatalf("vendor calls: want=3 got=%d", gen.calls)
	}
	if len(sl.waits) != 2 || sl.waits[0] != time.Second || sl.waits[1] != time.Second {
		t.Fatalf("waits between vendor calls: unexpected %v", sl.waits)
	}
	if len(progress) != 3 || progress[2] != 3 {
		t.Fatalf("progress: unexpected %v", progress)
	}

	got, _ := e.stories.GetByID(dbctx.Of(ctx), story.ID)
	if got.Status != storytypes.StatusComplete || !got.ImagesGenerated {
		t.Fatalf("story: unexpected status=%s images=%v", got.Status, got.ImagesGenerated)
	}
	p1 := got.Pages[1]
	if p1.ImageStatus != storytypes.ImagePlaceholder || !strings.HasPrefix(p1.ImageURL, "data:image/svg+xml;base64,") {
		t.Fatalf("placeholder page: unexpected %+v", p1)
	}
	p0 := got.Pages[0]
	if p0.ImageStatus != storytypes.ImageGenerated || p0.Provider != llm.ProviderDalle || !strings.HasSuffix(p0.ImageKey, ".webp") {
		t.Fatalf("generated page: unexpected %+v", p0)
	}
	rc, err := bucket.DownloadFile(ctx, gcp.BucketCategoryIllustration, p0.ImageKey)
	if err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(rc)
	if b := buf.Bytes(); len(b) < 12 || string(b[0:4]) != "RIFF" || string(b[8:12]) != "WEBP" {
		t.Fatalf("stored image is not webp")
	}

	found := false
	for _, ev := range e.emitter.events() {
		if ev == realtime.SSEEventStoryUpdated {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected StoryUpdated event")
	}

	// A retry only renders pages that are not generated yet.
	gen.failOn = nil
	sl.waits = nil
	res, err = svc.IllustrateStory(ctx, story.ID, nil)
	if err != nil {
		t.Fatalf("IllustrateStory retry: %v", err)
	}
	if res.Generated != 1 || res.Skipped != 2 || gen.calls != 4 || len(sl.waits) != 0 {
		t.Fatalf("retry: unexpected %+v calls=%d waits=%v", res, gen.calls, sl.waits)
	}
}

func TestIllustrateStoryWithoutProviderUsesPlaceholders(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := testutil.SeedUser(t, ctx, e.tx, "noprovider@example.com")
	story := testutil.SeedStory(t, ctx, e.tx, u.ID, 2)
	gen := &fakeImages{name: llm.ProviderDalle}
	sl := &recordingSleep{}
	svc := newIllustrator(e, gen, nil, llm.ProviderReplicate, sl)

	res, err := svc.IllustrateStory(ctx, story.ID, nil)
	if err != nil {
		t.Fatalf("IllustrateStory: %v", err)
	}
	if res.Placeholders != 2 || gen.calls != 0 || len(sl.waits) != 0 {
		t.Fatalf("unexpected %+v calls=%d waits=%v", res, gen.calls, sl.waits)
	}
}

func TestIllustrateStoryPassesReferencePhotoToGemini(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := testutil.SeedUser(t, ctx, e.tx, "reference@example.com")
	story := testutil.SeedStory(t, ctx, e.tx, u.ID, 1)
	bucket := newMemBucket()
	key := "photos/" + u.ID.String() + "/child.png"
	_ = bucket.UploadFile(ctx, gcp.BucketCategoryPhoto, key, bytes.NewReader(tinyPNG()))
	if err := e.stories.UpdateFields(dbctx.Of(ctx), story.ID, map[string]interface{}{"photo_key": key}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	gen := &fakeImages{name: llm.ProviderGemini}
	svc := newIllustrator(e, gen, bucket, llm.ProviderGemini, &recordingSleep{})

	if _, err := svc.IllustrateStory(ctx, story.ID, nil); err != nil {
		t.Fatalf("IllustrateStory: %v", err)
	}
	if gen.refs != 1 {
		t.Fatalf("reference photo: want=1 got=%d", gen.refs)
	}
}

func TestEditedPageIsRedrawnOnNextIllustration(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := testutil.SeedUser(t, ctx, e.tx, "redraw@example.com")
	story := testutil.SeedStory(t, ctx, e.tx, u.ID, 2)
	gen := &fakeImages{name: llm.ProviderDalle}
	svc := newIllustrator(e, gen, newMemBucket(), llm.ProviderDalle, &recordingSleep{})

	if _, err := svc.IllustrateStory(ctx, story.ID, nil); err != nil {
		t.Fatalf("first IllustrateStory: %v", err)
	}
	before, err := e.stories.GetPage(dbctx.Of(ctx), story.ID, 0)
	if err != nil || before.ImageURL == "" {
		t.Fatalf("page 0 after first run: err=%v page=%+v", err, before)
	}

	edited, err := newStories(e, &fakeText{}).UpdatePageText(ctx, u.ID, story.ID, 0, "Maya planted a silver seed in the moon dust.")
	if err != nil {
		t.Fatalf("UpdatePageText: %v", err)
	}
	if edited.ImageStatus != storytypes.ImagePending || edited.ImageURL != "" || edited.ImageKey != "" {
		t.Fatalf("edited page: want pending with no image got status=%s url=%q key=%q", edited.ImageStatus, edited.ImageURL, edited.ImageKey)
	}

	calls := gen.calls
	res, err := svc.IllustrateStory(ctx, story.ID, nil)
	if err != nil {
		t.Fatalf("second IllustrateStory: %v", err)
	}
	if gen.calls != calls+1 || res.Generated != 1 || res.Skipped != 1 {
		t.Fatalf("second run: want 1 call, 1 generated, 1 skipped got calls=%d %+v", gen.calls-calls, res)
	}
	if last := gen.prompts[len(gen.prompts)-1]; last != strings.TrimSpace(edited.ImagePrompt) {
		t.Fatalf("prompt: want the rebuilt prompt got=%q", last)
	}
	after, _ := e.stories.GetPage(dbctx.Of(ctx), story.ID, 0)
	if after.ImageStatus != storytypes.ImageGenerated || after.ImageKey == before.ImageKey {
		t.Fatalf("page 0 after redraw: unexpected %+v", after)
	}
}

func TestIllustrateStoryIgnoresForeignReferencePhoto(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	u := testutil.SeedUser(t, ctx, e.tx, "foreign-ref@example.com")
	story := testutil.SeedStory(t, ctx, e.tx, u.ID, 1)
	bucket := newMemBucket()
	key := "photos/" + uuid.New().String() + "/child.png"
	_ = bucket.UploadFile(ctx, gcp.BucketCategoryPhoto, key, bytes.NewReader(tinyPNG()))
	if err := e.stories.UpdateFields(dbctx.Of(ctx), story.ID, map[string]interface{}{"photo_key": key}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	gen := &fakeImages{name: llm.ProviderGemini}
	svc := newIllustrator(e, gen, bucket, llm.ProviderGemini, &recordingSleep{})

	if _, err := svc.IllustrateStory(ctx, story.ID, nil); err != nil {
		t.Fatalf("IllustrateStory: %v", err)
	}
	if gen.calls != 1 || gen.refs != 0 {
		t.Fatalf("foreign photo: want 1 call without reference got calls=%d refs=%d", gen.calls, gen.refs)
	}
}

func TestIllustrateStoryStopsOnCancel(t *testing.T) {
	e := newEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	u := testutil.SeedUser(t, ctx, e.tx, "cancelled@example.com")
	story := testutil.SeedStory(t, ctx, e.tx, u.ID, 3)
	gen := &fakeImages{name: llm.ProviderDalle}
	svc := newIllustrator(e, gen, nil, llm.ProviderDalle, &recordingSleep{})
	svc.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	if _, err := svc.IllustrateStory(ctx, story.ID, nil); err == nil {
		t.Fatalf("expected cancellation error")
	}
	if gen.calls != 1 {
		t.Fatalf("vendor calls after cancel: want=1 got=%d", gen.calls)
	}
}

func TestGenerateSingleFallsBackToPlaceholder(t *testing.T) {
	e := newEnv(t)
	gen := &fakeImages{name: llm.ProviderDalle, failOn: map[int]bool{0: true}}
	svc := newIllustrator(e, gen, nil, llm.ProviderDalle, &recordingSleep{})
	ctx := context.Background()

	out, err := svc.GenerateSingle(ctx, "a dragon reading a book", "")
	if err != nil || !out.Placeholder {
		t.Fatalf("failed generation: unexpected %+v err=%v", out, err)
	}
	out, err = svc.GenerateSingle(ctx, "a dragon reading a book", "")
	if err != nil || out.Placeholder || !strings.HasPrefix(out.URL, "data:image/webp;base64,") {
		t.Fatalf("inline image: unexpected %+v err=%v", out, err)
	}
}

func TestPlaceholderSVG(t *testing.T) {
	a, b := PlaceholderSVG(0), PlaceholderSVG(1)
	if a == b {
		t.Fatalf("expected different backgrounds per page")
	}
	if PlaceholderSVG(-3) != a {
		t.Fatalf("negative index should use the first background")
	}
}
