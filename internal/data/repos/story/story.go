package story

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/storybook-backend/internal/domain"
	"github.com/yungbote/storybook-backend/internal/platform/dbctx"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
)

type StoryRepo interface {
	Create(dbc dbctx.Context, story *types.Story) (*types.Story, error)
	GetByID(dbc dbctx.Context, storyID uuid.UUID) (*types.Story, error)
	GetByIDForUser(dbc dbctx.Context, userID, storyID uuid.UUID) (*types.Story, error)
	LockForUser(dbc dbctx.Context, userID, storyID uuid.UUID) (*types.Story, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID, limit, offset int) ([]*types.Story, int64, error)
	UpdateFields(dbc dbctx.Context, storyID uuid.UUID, updates map[string]interface{}) error
	SoftDeleteForUser(dbc dbctx.Context, userID, storyID uuid.UUID) (bool, error)
	GetPage(dbc dbctx.Context, storyID uuid.UUID, index int) (*types.StoryPage, error)
	UpdatePageFields(dbc dbctx.Context, storyID uuid.UUID, index int, updates map[string]interface{}) error
	CountPagesByImageStatus(dbc dbctx.Context, storyID uuid.UUID, statuses []string) (int64, error)
}

type storyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStoryRepo(db *gorm.DB, baseLog *logger.Logger) StoryRepo {
	repoLog := baseLog.With("repo", "StoryRepo")
	return &storyRepo{db: db, log: repoLog}
}

// Create inserts the story and its pages in one statement group.
func (sr *storyRepo) Create(dbc dbctx.Context, story *types.Story) (*types.Story, error) {
	if story == nil {
		return nil, nil
	}
	if err := dbc.DB(sr.db).Create(story).Error; err != nil {
		return nil, err
	}
	return story, nil
}

func (sr *storyRepo) GetByID(dbc dbctx.Context, storyID uuid.UUID) (*types.Story, error) {
	var s types.Story
	if err := dbc.DB(sr.db).
		Preload("Pages", orderPages).
		Where("id = ?", storyID).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (sr *storyRepo) GetByIDForUser(dbc dbctx.Context, userID, storyID uuid.UUID) (*types.Story, error) {
	var s types.Story
	if err := dbc.DB(sr.db).
		Preload("Pages", orderPages).
		Where("id = ? AND user_id = ?", storyID, userID).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// LockForUser loads the story with FOR UPDATE so callers inside one
// transaction serialize on the story row. It must run inside dbc.Tx.
func (sr *storyRepo) LockForUser(dbc dbctx.Context, userID, storyID uuid.UUID) (*types.Story, error) {
	var s types.Story
	if err := dbc.DB(sr.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Pages", orderPages).
		Where("id = ? AND user_id = ?", storyID, userID).
		First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ListByUser returns the newest stories first, without pages, plus the total count.
func (sr *storyRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, limit, offset int) ([]*types.Story, int64, error) {
	var total int64
	q := dbc.DB(sr.db).Model(&types.Story{}).Where("user_id = ?", userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var out []*types.Story
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if err := dbc.DB(sr.db).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (sr *storyRepo) UpdateFields(dbc dbctx.Context, storyID uuid.UUID, updates map[string]interface{}) error {
	if storyID == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return dbc.DB(sr.db).
		Model(&types.Story{}).
		Where("id = ?", storyID).
		Updates(updates).Error
}

func (sr *storyRepo) SoftDeleteForUser(dbc dbctx.Context, userID, storyID uuid.UUID) (bool, error) {
	res := dbc.DB(sr.db).
		Where("id = ? AND user_id = ?", storyID, userID).
		Delete(&types.Story{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (sr *storyRepo) GetPage(dbc dbctx.Context, storyID uuid.UUID, index int) (*types.StoryPage, error) {
	var p types.StoryPage
	if err := dbc.DB(sr.db).
		Where("story_id = ? AND page_index = ?", storyID, index).
		First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (sr *storyRepo) UpdatePageFields(dbc dbctx.Context, storyID uuid.UUID, index int, updates map[string]interface{}) error {
	if storyID == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := dbc.DB(sr.db).
		Model(&types.StoryPage{}).
		Where("story_id = ? AND page_index = ?", storyID, index).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (sr *storyRepo) CountPagesByImageStatus(dbc dbctx.Context, storyID uuid.UUID, statuses []string) (int64, error) {
	var count int64
	q := dbc.DB(sr.db).Model(&types.StoryPage{}).Where("story_id = ?", storyID)
	if len(statuses) > 0 {
		q = q.Where("image_status IN ?", statuses)
	}
	if err := q.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func orderPages(db *gorm.DB) *gorm.DB {
	return db.Order("page_index ASC")
}
