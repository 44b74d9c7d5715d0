package user

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/storybook-backend/internal/data/repos/testutil"
	types "github.com/yungbote/storybook-backend/internal/domain"
	"github.com/yungbote/storybook-backend/internal/platform/dbctx"
)

func TestUserRepo(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)

	repo := NewUserRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background(), Tx: tx}

	created, err := repo.Create(dbc, []*types.User{
		{
			ID:        uuid.New(),
			Email:     "userrepo@example.com",
			Password:  "pw",
			FirstName: "A",
			LastName:  "B",
		},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("Create: want=1 got=%d", len(created))
	}

	gotByIDs, err := repo.GetByIDs(dbc, []uuid.UUID{created[0].ID})
	if err != nil {
		t.Fatalf("GetByIDs: %v", err)
	}
	if len(gotByIDs) != 1 || gotByIDs[0].ID != created[0].ID {
		t.Fatalf("GetByIDs: unexpected result: %+v", gotByIDs)
	}

	gotByEmails, err := repo.GetByEmails(dbc, []string{created[0].Email})
	if err != nil {
		t.Fatalf("GetByEmails: %v", err)
	}
	if len(gotByEmails) != 1 || gotByEmails[0].Email != created[0].Email {
		t.Fatalf("GetByEmails: unexpected result: %+v", gotByEmails)
	}

	exists, err := repo.EmailExists(dbc, created[0].Email)
	if err != nil {
		t.Fatalf("EmailExists: %v", err)
	}
	if !exists {
		t.Fatalf("EmailExists: expected true")
	}
	exists, err = repo.EmailExists(dbc, "does-not-exist@example.com")
	if err != nil {
		t.Fatalf("EmailExists (missing): %v", err)
	}
	if exists {
		t.Fatalf("EmailExists (missing): expected false")
	}

	if err := repo.UpdateName(dbc, created[0].ID, "C", "D"); err != nil {
		t.Fatalf("UpdateName: %v", err)
	}
	got, err := repo.GetByID(dbc, created[0].ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.FirstName != "C" || got.LastName != "D" {
		t.Fatalf("UpdateName: want=C D got=%s %s", got.FirstName, got.LastName)
	}
}

func TestUserRepoConsumeStoryNeverExceedsLimit(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()

	repo := NewUserRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	u := testutil.SeedUser(t, ctx, tx, "consume@example.com")
	if err := repo.UpdateFields(dbc, u.ID, map[string]interface{}{"story_limit": 2}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}

	granted := 0
	for i := 0; i < 5; i++ {
		ok, err := repo.ConsumeStory(dbc, u.ID)
		if err != nil {
			t.Fatalf("ConsumeStory: %v", err)
		}
		if ok {
			granted++
		}
	}
	if granted != 2 {
		t.Fatalf("granted: want=2 got=%d", granted)
	}
	got, err := repo.GetByID(dbc, u.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.StoriesUsed != 2 || got.StoriesUsed > got.StoryLimit {
		t.Fatalf("stories_used: want=2 got=%d (limit %d)", got.StoriesUsed, got.StoryLimit)
	}

	if err := repo.ReleaseStory(dbc, u.ID); err != nil {
		t.Fatalf("ReleaseStory: %v", err)
	}
	if err := repo.ReleaseStory(dbc, u.ID); err != nil {
		t.Fatalf("ReleaseStory: %v", err)
	}
	if err := repo.ReleaseStory(dbc, u.ID); err != nil {
		t.Fatalf("ReleaseStory (floor): %v", err)
	}
	got, _ = repo.GetByID(dbc, u.ID)
	if got.StoriesUsed != 0 {
		t.Fatalf("release floor: want=0 got=%d", got.StoriesUsed)
	}
}

func TestUserRepoRolloverPeriodOnlyOnce(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	repo := NewUserRepo(db, testutil.Logger(t))
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	u := testutil.SeedUser(t, ctx, tx, "rollover@example.com")
	now := time.Now().UTC()
	if ok, err := repo.RolloverPeriod(dbc, u.ID, now, map[string]interface{}{"stories_used": 0}); err != nil || ok {
		t.Fatalf("period still open: want=false got=%v err=%v", ok, err)
	}

	later := u.UsagePeriodEnd.Add(time.Hour)
	updates := func() map[string]interface{} {
		return map[string]interface{}{
			"stories_used":       0,
			"usage_period_start": later,
			"usage_period_end":   later.AddDate(0, 0, 30),
		}
	}
	ok, err := repo.RolloverPeriod(dbc, u.ID, later, updates())
	if err != nil || !ok {
		t.Fatalf("first rollover: want=true got=%v err=%v", ok, err)
	}
	ok, err = repo.RolloverPeriod(dbc, u.ID, later, updates())
	if err != nil || ok {
		t.Fatalf("second rollover: want=false got=%v err=%v", ok, err)
	}
}
