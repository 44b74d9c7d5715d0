package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/storybook-backend/internal/domain"
	"github.com/yungbote/storybook-backend/internal/domain/billing"
	"github.com/yungbote/storybook-backend/internal/domain/story"
	"github.com/yungbote/storybook-backend/internal/domain/user"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, email string) *types.User {
	tb.Helper()
	now := time.Now().UTC()
	u := &types.User{
		ID:                 uuid.New(),
		Email:              email,
		Password:           "pw",
		FirstName:          "A",
		LastName:           "B",
		PlanID:             billing.PlanFree,
		SubscriptionStatus: user.SubscriptionActive,
		StoryLimit:         1,
		UsagePeriodStart:   now,
		UsagePeriodEnd:     now.AddDate(0, 0, 30),
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedStory(tb testing.TB, ctx context.Context, tx *gorm.DB, userID uuid.UUID, pages int) *types.Story {
	tb.Helper()
	s := &types.Story{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     "The Moon Garden",
		ChildName: "Maya",
		ChildAge:  5,
		ThemeID:   "space_adventure",
		Theme:     datatypes.JSON([]byte(`{"id":"space_adventure"}`)),
		Status:    story.StatusTextReady,
	}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed story: %v", err)
	}
	for i := 0; i < pages; i++ {
		p := &types.StoryPage{
			StoryID:     s.ID,
			Index:       i,
			Text:        "Once upon a time.",
			ImagePrompt: "a child on the moon",
			ImageStatus: story.ImagePending,
		}
		if err := tx.WithContext(ctx).Create(p).Error; err != nil {
			tb.Fatalf("seed story page: %v", err)
		}
		s.Pages = append(s.Pages, p)
	}
	return s
}

func PtrUUID(v uuid.UUID) *uuid.UUID { return &v }
