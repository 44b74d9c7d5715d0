package user

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	SubscriptionActive   = "active"
	SubscriptionPending  = "pending"
	SubscriptionCanceled = "canceled"
	SubscriptionPastDue  = "past_due"
	SubscriptionExpired  = "expired"
)

type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string    `gorm:"uniqueIndex;not null;column:email" json:"email"`
	Password  string    `gorm:"not null;column:password" json:"-"`
	FirstName string    `gorm:"not null;column:first_name" json:"first_name"`
	LastName  string    `gorm:"not null;column:last_name" json:"last_name"`

	// Subscription state. StoriesUsed never exceeds StoryLimit; the
	// subscription repo enforces it with a conditional update.
	PlanID                 string    `gorm:"column:plan_id;not null;default:'free';index" json:"plan_id"`
	PendingPlanID          string    `gorm:"column:pending_plan_id" json:"pending_plan_id,omitempty"`
	SubscriptionStatus     string    `gorm:"column:subscription_status;not null;default:'active';index" json:"subscription_status"`
	StoriesUsed            int       `gorm:"column:stories_used;not null;default:0" json:"stories_used"`
	StoryLimit             int       `gorm:"column:story_limit;not null;default:1" json:"story_limit"`
	UsagePeriodStart       time.Time `gorm:"column:usage_period_start" json:"usage_period_start"`
	UsagePeriodEnd         time.Time `gorm:"column:usage_period_end;index" json:"usage_period_end"`
	RazorpaySubscriptionID string    `gorm:"column:razorpay_subscription_id;index" json:"-"`

	CreatedAt time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (User) TableName() string { return "user" }

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

func (u *User) RemainingStories() int {
	if u == nil || u.StoriesUsed >= u.StoryLimit {
		return 0
	}
	return u.StoryLimit - u.StoriesUsed
}
