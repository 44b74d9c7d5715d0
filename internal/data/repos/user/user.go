package user

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/storybook-backend/internal/domain"
	"github.com/yungbote/storybook-backend/internal/platform/dbctx"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
)

type UserRepo interface {
	Create(dbc dbctx.Context, users []*types.User) ([]*types.User, error)
	GetByIDs(dbc dbctx.Context, userIDs []uuid.UUID) ([]*types.User, error)
	GetByID(dbc dbctx.Context, userID uuid.UUID) (*types.User, error)
	GetByEmails(dbc dbctx.Context, userEmails []string) ([]*types.User, error)
	GetByRazorpaySubscriptionID(dbc dbctx.Context, subscriptionID string) (*types.User, error)
	EmailExists(dbc dbctx.Context, userEmail string) (bool, error)
	UpdateName(dbc dbctx.Context, userID uuid.UUID, firstName, lastName string) error
	UpdateFields(dbc dbctx.Context, userID uuid.UUID, updates map[string]interface{}) error
	ConsumeStory(dbc dbctx.Context, userID uuid.UUID) (bool, error)
	ReleaseStory(dbc dbctx.Context, userID uuid.UUID) error
	RolloverPeriod(dbc dbctx.Context, userID uuid.UUID, now time.Time, updates map[string]interface{}) (bool, error)
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	repoLog := baseLog.With("repo", "UserRepo")
	return &userRepo{db: db, log: repoLog}
}

func (ur *userRepo) Create(dbc dbctx.Context, users []*types.User) ([]*types.User, error) {
	if len(users) == 0 {
		return []*types.User{}, nil
	}
	if err := dbc.DB(ur.db).Create(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (ur *userRepo) GetByIDs(dbc dbctx.Context, userIDs []uuid.UUID) ([]*types.User, error) {
	var results []*types.User
	if len(userIDs) == 0 {
		return results, nil
	}
	if err := dbc.DB(ur.db).
		Where("id IN ?", userIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (ur *userRepo) GetByID(dbc dbctx.Context, userID uuid.UUID) (*types.User, error) {
	var u types.User
	if err := dbc.DB(ur.db).Where("id = ?", userID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (ur *userRepo) GetByEmails(dbc dbctx.Context, userEmails []string) ([]*types.User, error) {
	var results []*types.User
	if len(userEmails) == 0 {
		return results, nil
	}
	if err := dbc.DB(ur.db).
		Where("email IN ?", userEmails).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (ur *userRepo) GetByRazorpaySubscriptionID(dbc dbctx.Context, subscriptionID string) (*types.User, error) {
	var u types.User
	if err := dbc.DB(ur.db).
		Where("razorpay_subscription_id = ?", subscriptionID).
		First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (ur *userRepo) EmailExists(dbc dbctx.Context, userEmail string) (bool, error) {
	var count int64
	if err := dbc.DB(ur.db).
		Model(&types.User{}).
		Where("email = ?", userEmail).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (ur *userRepo) UpdateName(dbc dbctx.Context, userID uuid.UUID, firstName, lastName string) error {
	return ur.UpdateFields(dbc, userID, map[string]interface{}{
		"first_name": firstName,
		"last_name":  lastName,
	})
}

func (ur *userRepo) UpdateFields(dbc dbctx.Context, userID uuid.UUID, updates map[string]interface{}) error {
	if userID == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return dbc.DB(ur.db).
		Model(&types.User{}).
		Where("id = ?", userID).
		Updates(updates).Error
}

// ConsumeStory increments stories_used only while it is below story_limit.
// It reports false when the limit is already reached.
func (ur *userRepo) ConsumeStory(dbc dbctx.Context, userID uuid.UUID) (bool, error) {
	res := dbc.DB(ur.db).
		Model(&types.User{}).
		Where("id = ? AND stories_used < story_limit", userID).
		Updates(map[string]interface{}{
			"stories_used": gorm.Expr("stories_used + 1"),
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (ur *userRepo) ReleaseStory(dbc dbctx.Context, userID uuid.UUID) error {
	return dbc.DB(ur.db).
		Model(&types.User{}).
		Where("id = ? AND stories_used > 0", userID).
		Updates(map[string]interface{}{
			"stories_used": gorm.Expr("stories_used - 1"),
			"updated_at":   time.Now().UTC(),
		}).Error
}

// RolloverPeriod applies updates only while the usage period has ended, so
// concurrent callers cannot reset the same period twice.
func (ur *userRepo) RolloverPeriod(dbc dbctx.Context, userID uuid.UUID, now time.Time, updates map[string]interface{}) (bool, error) {
	if len(updates) == 0 {
		return false, nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = now
	}
	res := dbc.DB(ur.db).
		Model(&types.User{}).
		Where("id = ? AND usage_period_end <= ?", userID, now).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
