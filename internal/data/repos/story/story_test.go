package story

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/storybook-backend/internal/data/repos/testutil"
	types "github.com/yungbote/storybook-backend/internal/domain"
	domainstory "github.com/yungbote/storybook-backend/internal/domain/story"
	"github.com/yungbote/storybook-backend/internal/platform/dbctx"
)

func TestStoryRepoCreateAndRead(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewStoryRepo(db, testutil.Logger(t))

	u := testutil.SeedUser(t, ctx, tx, "storyrepo@example.com")

	s := &types.Story{
		UserID:    u.ID,
		Title:     "Maya and the Dragon",
		ChildName: "Maya",
		ChildAge:  6,
		ThemeID:   "magical-kingdom",
		Theme:     datatypes.JSON([]byte(`{"id":"magical-kingdom"}`)),
		Status:    domainstory.StatusTextReady,
	}
	// Insert out of order to check preload ordering.
	for _, idx := range []int{2, 0, 1} {
		s.Pages = append(s.Pages, &types.StoryPage{
			Index:       idx,
			Text:        "page",
			ImagePrompt: "prompt",
			ImageStatus: domainstory.ImagePending,
		})
	}
	if _, err := repo.Create(dbc, s); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.ID == uuid.Nil {
		t.Fatalf("Create: expected id to be assigned")
	}

	got, err := repo.GetByIDForUser(dbc, u.ID, s.ID)
	if err != nil {
		t.Fatalf("GetByIDForUser: %v", err)
	}
	if len(got.Pages) != 3 {
		t.Fatalf("pages: want=3 got=%d", len(got.Pages))
	}
	for i, p := range got.Pages {
		if p.Index != i {
			t.Fatalf("page order: want=%d got=%d", i, p.Index)
		}
	}

	if _, err := repo.GetByIDForUser(dbc, uuid.New(), s.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("GetByIDForUser other user: want=ErrRecordNotFound got=%v", err)
	}

	list, total, err := repo.ListByUser(dbc, u.ID, 10, 0)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	if total != 1 || len(list) != 1 {
		t.Fatalf("ListByUser: want=1 got total=%d len=%d", total, len(list))
	}
}

func TestStoryRepoPageUpdates(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}
	repo := NewStoryRepo(db, testutil.Logger(t))

	u := testutil.SeedUser(t, ctx, tx, "storypages@example.com")
	s := testutil.SeedStory(t, ctx, tx, u.ID, 3)

	if err := repo.UpdatePageFields(dbc, s.ID, 1, map[string]interface{}{
		"image_url":    "https://cdn.example.com/p1.webp",
		"image_status": domainstory.ImageGenerated,
	}); err != nil {
		t.Fatalf("UpdatePageFields: %v", err)
	}
	if err := repo.UpdatePageFields(dbc, s.ID, 9, map[string]interface{}{"text": "x"}); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("UpdatePageFields missing page: want=ErrRecordNotFound got=%v", err)
	}

	locked, err := repo.LockForUser(dbc, u.ID, s.ID)
	if err != nil || len(locked.Pages) != 3 || locked.Pages[0].Index != 0 {
		t.Fatalf("LockForUser: err=%v story=%+v", err, locked)
	}
	if _, err := repo.LockForUser(dbc, uuid.New(), s.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("LockForUser other user: want=ErrRecordNotFound got=%v", err)
	}

	p, err := repo.GetPage(dbc, s.ID, 1)
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if p.ImageStatus != domainstory.ImageGenerated {
		t.Fatalf("image_status: want=%s got=%s", domainstory.ImageGenerated, p.ImageStatus)
	}

	n, err := repo.CountPagesByImageStatus(dbc, s.ID, []string{domainstory.ImagePending})
	if err != nil {
		t.Fatalf("CountPagesByImageStatus: %v", err)
	}
	if n != 2 {
		t.Fatalf("pending pages: want=2 got=%d", n)
	}

	if err := repo.UpdateFields(dbc, s.ID, map[string]interface{}{"status": domainstory.StatusComplete}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}

	ok, err := repo.SoftDeleteForUser(dbc, uuid.New(), s.ID)
	if err != nil || ok {
		t.Fatalf("SoftDeleteForUser other user: err=%v ok=%v", err, ok)
	}
	ok, err = repo.SoftDeleteForUser(dbc, u.ID, s.ID)
	if err != nil || !ok {
		t.Fatalf("SoftDeleteForUser: err=%v ok=%v", err, ok)
	}
	if _, err := repo.GetByID(dbc, s.ID); !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("GetByID after delete: want=ErrRecordNotFound got=%v", err)
	}
}
