package billing

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	types "github.com/yungbote/storybook-backend/internal/domain"
	domainbilling "github.com/yungbote/storybook-backend/internal/domain/billing"
	"github.com/yungbote/storybook-backend/internal/platform/dbctx"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
)

type OrderRepo interface {
	Create(dbc dbctx.Context, order *types.Order) (*types.Order, error)
	GetByID(dbc dbctx.Context, orderID uuid.UUID) (*types.Order, error)
	GetByRazorpayOrderID(dbc dbctx.Context, razorpayOrderID string) (*types.Order, error)
	ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.Order, error)
	MarkPaid(dbc dbctx.Context, razorpayOrderID, paymentID string, paidAt time.Time) (bool, error)
	MarkFailed(dbc dbctx.Context, razorpayOrderID, paymentID, reason string) (bool, error)
	HasPaidForStory(dbc dbctx.Context, userID, storyID uuid.UUID, format string) (bool, error)
}

type orderRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewOrderRepo(db *gorm.DB, baseLog *logger.Logger) OrderRepo {
	repoLog := baseLog.With("repo", "OrderRepo")
	return &orderRepo{db: db, log: repoLog}
}

func (or *orderRepo) Create(dbc dbctx.Context, order *types.Order) (*types.Order, error) {
	if order == nil {
		return nil, nil
	}
	if err := dbc.DB(or.db).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (or *orderRepo) GetByID(dbc dbctx.Context, orderID uuid.UUID) (*types.Order, error) {
	var o types.Order
	if err := dbc.DB(or.db).Where("id = ?", orderID).First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (or *orderRepo) GetByRazorpayOrderID(dbc dbctx.Context, razorpayOrderID string) (*types.Order, error) {
	var o types.Order
	if err := dbc.DB(or.db).
		Where("razorpay_order_id = ?", razorpayOrderID).
		First(&o).Error; err != nil {
		return nil, err
	}
	return &o, nil
}

func (or *orderRepo) ListByUser(dbc dbctx.Context, userID uuid.UUID, limit int) ([]*types.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []*types.Order
	if err := dbc.DB(or.db).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// MarkPaid moves a created or failed order to paid. It reports false when the
// order was already paid, which makes webhook redelivery a no-op.
func (or *orderRepo) MarkPaid(dbc dbctx.Context, razorpayOrderID, paymentID string, paidAt time.Time) (bool, error) {
	res := dbc.DB(or.db).
		Model(&types.Order{}).
		Where("razorpay_order_id = ? AND status IN ?", razorpayOrderID,
			[]string{domainbilling.OrderCreated, domainbilling.OrderFailed}).
		Updates(map[string]interface{}{
			"status":              domainbilling.OrderPaid,
			"razorpay_payment_id": paymentID,
			"paid_at":             paidAt,
			"failure_reason":      "",
			"updated_at":          time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkFailed never downgrades a paid order.
func (or *orderRepo) MarkFailed(dbc dbctx.Context, razorpayOrderID, paymentID, reason string) (bool, error) {
	res := dbc.DB(or.db).
		Model(&types.Order{}).
		Where("razorpay_order_id = ? AND status = ?", razorpayOrderID, domainbilling.OrderCreated).
		Updates(map[string]interface{}{
			"status":              domainbilling.OrderFailed,
			"razorpay_payment_id": paymentID,
			"failure_reason":      reason,
			"updated_at":          time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (or *orderRepo) HasPaidForStory(dbc dbctx.Context, userID, storyID uuid.UUID, format string) (bool, error) {
	var count int64
	q := dbc.DB(or.db).
		Model(&types.Order{}).
		Where("user_id = ? AND story_id = ? AND status = ?", userID, storyID, domainbilling.OrderPaid)
	if format != "" {
		q = q.Where("format = ?", format)
	}
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
