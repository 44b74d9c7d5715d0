package services

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
	"gorm.io/gorm"

	"github.com/yungbote/storybook-backend/internal/data/repos"
	types "github.com/yungbote/storybook-backend/internal/domain"
	billing "github.com/yungbote/storybook-backend/internal/domain/billing"
	"github.com/yungbote/storybook-backend/internal/platform/apierr"
	"github.com/yungbote/storybook-backend/internal/platform/dbctx"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
	"github.com/yungbote/storybook-backend/internal/platform/razorpay"
)

// CheckoutOrder is what the browser needs to open Razorpay checkout.
type CheckoutOrder struct {
	OrderID         uuid.UUID `json:"order_id"`
	RazorpayOrderID string    `json:"razorpay_order_id"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	Receipt         string    `json:"receipt"`
	KeyID           string    `json:"key_id"`
}

// OrderCheckout creates the Razorpay order first and persists the local row
// with its id, so every stored order maps to a gateway order.
type OrderCheckout struct {
	log     *logger.Logger
	orders  repos.OrderRepo
	gateway razorpay.Gateway
}

func NewOrderCheckout(baseLog *logger.Logger, orders repos.OrderRepo, gateway razorpay.Gateway) *OrderCheckout {
	return &OrderCheckout{
		log:     baseLog.With("service", "OrderCheckout"),
		orders:  orders,
		gateway: gateway,
	}
}

func (c *OrderCheckout) Create(dbc dbctx.Context, order *types.Order) (*CheckoutOrder, error) {
	if c == nil || c.gateway == nil {
		return nil, apierr.Payment("payments_disabled", "payments are not configured")
	}
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.Currency == "" {
		order.Currency = billing.Currency
	}
	order.Receipt = "rcpt_" + ksuid.New().String()
	order.Status = billing.OrderCreated

	gwOrder, err := c.gateway.CreateOrder(dbc.Ctx, razorpay.OrderRequest{
		Amount:   order.Amount,
		Currency: order.Currency,
		Receipt:  order.Receipt,
		Notes: map[string]string{
			"user_id":  order.UserID.String(),
			"order_id": order.ID.String(),
			"kind":     order.Kind,
			"plan_id":  order.PlanID,
		},
	})
	if err != nil {
		c.log.Warn("razorpay order create failed", "kind", order.Kind, "error", err)
		return nil, apierr.External("payment_gateway_error", fmt.Errorf("create payment order: %w", err))
	}
	order.RazorpayOrderID = gwOrder.ID
	if _, err := c.orders.Create(dbc, order); err != nil {
		if err == gorm.ErrDuplicatedKey {
			return nil, apierr.Conflict("duplicate_order", "order already exists")
		}
		return nil, apierr.Database(err)
	}
	return &CheckoutOrder{
		OrderID:         order.ID,
		RazorpayOrderID: order.RazorpayOrderID,
		Amount:          order.Amount,
		Currency:        order.Currency,
		Receipt:         order.Receipt,
		KeyID:           c.gateway.KeyID(),
	}, nil
}
