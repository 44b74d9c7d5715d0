package billing

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	OrderKindStory        = "story"
	OrderKindSubscription = "subscription"
)

const (
	OrderCreated  = "created"
	OrderPaid     = "paid"
	OrderFailed   = "failed"
	OrderRefunded = "refunded"
)

type Order struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID            uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	Kind              string         `gorm:"column:kind;not null;index" json:"kind"`
	StoryID           *uuid.UUID     `gorm:"type:uuid;column:story_id;index" json:"story_id,omitempty"`
	PlanID            string         `gorm:"column:plan_id" json:"plan_id,omitempty"`
	Format            string         `gorm:"column:format" json:"format,omitempty"`
	CustomerName      string         `gorm:"column:customer_name" json:"customer_name,omitempty"`
	CustomerEmail     string         `gorm:"column:customer_email" json:"customer_email,omitempty"`
	CustomerPhone     string         `gorm:"column:customer_phone" json:"customer_phone,omitempty"`
	ShippingAddress   datatypes.JSON `gorm:"column:shipping_address;type:jsonb" json:"shipping_address,omitempty"`
	Amount            int64          `gorm:"column:amount;not null" json:"amount"`
	Currency          string         `gorm:"column:currency;not null" json:"currency"`
	Receipt           string         `gorm:"column:receipt;uniqueIndex;not null" json:"receipt"`
	RazorpayOrderID   string         `gorm:"column:razorpay_order_id;uniqueIndex" json:"razorpay_order_id"`
	RazorpayPaymentID string         `gorm:"column:razorpay_payment_id;index" json:"razorpay_payment_id,omitempty"`
	Status            string         `gorm:"column:status;not null;index" json:"status"`
	PaidAt            *time.Time     `gorm:"column:paid_at" json:"paid_at,omitempty"`
	FailureReason     string         `gorm:"column:failure_reason" json:"failure_reason,omitempty"`
	CreatedAt         time.Time      `gorm:"not null;autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Order) TableName() string { return "story_order" }

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
