package services

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/storybook-backend/internal/data/repos"
	types "github.com/yungbote/storybook-backend/internal/domain"
	billing "github.com/yungbote/storybook-backend/internal/domain/billing"
	jobtypes "github.com/yungbote/storybook-backend/internal/domain/jobs"
	"github.com/yungbote/storybook-backend/internal/platform/apierr"
	"github.com/yungbote/storybook-backend/internal/platform/dbctx"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
	"github.com/yungbote/storybook-backend/internal/platform/razorpay"
)

type Customer struct {
	Name  string `json:"name" binding:"required,max=120"`
	Email string `json:"email" binding:"required,email"`
	Phone string `json:"phone" binding:"omitempty,max=20"`
}

type ShippingAddress struct {
	Line1      string `json:"line1" binding:"required"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city" binding:"required"`
	State      string `json:"state" binding:"required"`
	PostalCode string `json:"postal_code" binding:"required"`
	Country    string `json:"country" binding:"required"`
}

type StoryOrderRequest struct {
	StoryID  uuid.UUID        `json:"story_id" binding:"required"`
	Format   string           `json:"format" binding:"required,oneof=pdf digital poster print"`
	Customer Customer         `json:"customer" binding:"required"`
	Shipping *ShippingAddress `json:"shipping,omitempty"`
}

type VerifyCheckoutRequest struct {
	RazorpayOrderID   string `json:"razorpay_order_id" binding:"required"`
	RazorpayPaymentID string `json:"razorpay_payment_id" binding:"required"`
	RazorpaySignature string `json:"razorpay_signature" binding:"required"`
}

type PaymentService interface {
	CreateStoryOrder(ctx context.Context, userID uuid.UUID, req StoryOrderRequest) (*CheckoutOrder, error)
	VerifyCheckout(ctx context.Context, userID uuid.UUID, req VerifyCheckoutRequest) (*types.Order, error)
	HandleWebhook(ctx context.Context, rawBody []byte, signature string) error
	ListOrders(ctx context.Context, userID uuid.UUID) ([]*types.Order, error)
}

type paymentService struct {
	db            *gorm.DB
	log           *logger.Logger
	users         repos.UserRepo
	orders        repos.OrderRepo
	stories       repos.StoryRepo
	checkout      *OrderCheckout
	subs          SubscriptionService
	jobs          JobService
	keySecret     string
	webhookSecret string
	now           func() time.Time
}

func NewPaymentService(
	db *gorm.DB,
	baseLog *logger.Logger,
	users repos.UserRepo,
	orders repos.OrderRepo,
	stories repos.StoryRepo,
	checkout *OrderCheckout,
	subs SubscriptionService,
	jobs JobService,
	keySecret string,
	webhookSecret string,
) PaymentService {
	return &paymentService{
		db:            db,
		log:           baseLog.With("service", "PaymentService"),
		users:         users,
		orders:        orders,
		stories:       stories,
		checkout:      checkout,
		subs:          subs,
		jobs:          jobs,
		keySecret:     keySecret,
		webhookSecret: webhookSecret,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func (s *paymentService) CreateStoryOrder(ctx context.Context, userID uuid.UUID, req StoryOrderRequest) (*CheckoutOrder, error) {
	format := strings.ToLower(strings.TrimSpace(req.Format))
	amount, ok := billing.FormatPrice(format)
	if !ok {
		return nil, apierr.ValidationFields([]apierr.FieldError{{Field: "format", Rule: "oneof", Message: "unsupported format"}})
	}
	var shipping datatypes.JSON
	if billing.FormatNeedsShipping(format) {
		if req.Shipping == nil {
			return nil, apierr.ValidationFields([]apierr.FieldError{{Field: "shipping", Rule: "required", Message: "shipping address is required for printed formats"}})
		}
		raw, err := json.Marshal(req.Shipping)
		if err != nil {
			return nil, apierr.Internal(err)
		}
		shipping = datatypes.JSON(raw)
	}
	dbc := dbctx.Of(ctx)
	if _, err := s.stories.GetByIDForUser(dbc, userID, req.StoryID); err != nil {
		return nil, notFoundOr(err, "story_not_found", "story not found")
	}
	storyID := req.StoryID
	out, err := s.checkout.Create(dbc, &types.Order{
		UserID:          userID,
		Kind:            billing.OrderKindStory,
		StoryID:         &storyID,
		Format:          format,
		CustomerName:    strings.TrimSpace(req.Customer.Name),
		CustomerEmail:   normalizeEmail(req.Customer.Email),
		CustomerPhone:   strings.TrimSpace(req.Customer.Phone),
		ShippingAddress: shipping,
		Amount:          amount,
		Currency:        billing.Currency,
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("story order created", "user_id", userID, "story_id", storyID, "format", format, "razorpay_order_id", out.RazorpayOrderID)
	return out, nil
}

func (s *paymentService) VerifyCheckout(ctx context.Context, userID uuid.UUID, req VerifyCheckoutRequest) (*types.Order, error) {
	order, err := s.orders.GetByRazorpayOrderID(dbctx.Of(ctx), req.RazorpayOrderID)
	if err != nil || order.UserID != userID {
		if err == nil || errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.NotFound("order_not_found", "order not found")
		}
		return nil, apierr.Database(err)
	}
	if !razorpay.VerifyPayment(s.keySecret, req.RazorpayOrderID, req.RazorpayPaymentID, req.RazorpaySignature) {
		s.log.Warn("checkout signature mismatch", "user_id", userID, "razorpay_order_id", req.RazorpayOrderID)
		return nil, apierr.Payment("invalid_signature", "payment signature verification failed")
	}
	if err := s.markPaid(ctx, req.RazorpayOrderID, req.RazorpayPaymentID); err != nil {
		return nil, err
	}
	return s.orders.GetByRazorpayOrderID(dbctx.Of(ctx), req.RazorpayOrderID)
}

// HandleWebhook authenticates the raw body before reading it. Unknown events
// and unknown orders are acknowledged so the gateway stops retrying.
func (s *paymentService) HandleWebhook(ctx context.Context, rawBody []byte, signature string) error {
	if !razorpay.VerifyWebhook(s.webhookSecret, rawBody, signature) {
		s.log.Warn("webhook signature rejected", "bytes", len(rawBody))
		return apierr.Auth("invalid_webhook_signature", "webhook signature verification failed")
	}
	ev, err := razorpay.ParseWebhook(rawBody)
	if err != nil {
		return apierr.Validation("invalid_webhook_payload", "malformed webhook payload")
	}
	log := s.log.With("event", ev.Event)

	switch ev.Event {
	case razorpay.EventPaymentCaptured, razorpay.EventOrderPaid:
		err = s.markPaid(ctx, ev.OrderID(), ev.Payload.Payment.Entity.ID)
	case razorpay.EventPaymentFailed:
		err = s.markFailed(ctx, ev)
	case razorpay.EventSubscriptionActivated, razorpay.EventSubscriptionCharged:
		err = s.activateFromSubscription(ctx, ev.Payload.Subscription.Entity)
	case razorpay.EventSubscriptionCancelled:
		err = s.subs.CancelBySubscriptionID(dbctx.Of(ctx), ev.Payload.Subscription.Entity.ID)
	case razorpay.EventSubscriptionHalted:
		err = s.pastDueFromSubscription(ctx, ev.Payload.Subscription.Entity)
	default:
		log.Info("webhook event ignored")
		return nil
	}
	if apierr.IsKind(err, apierr.KindNotFound) {
		log.Warn("webhook references unknown entity", "error", err)
		return nil
	}
	return err
}

// markPaid is idempotent: only the first transition to paid applies effects.
func (s *paymentService) markPaid(ctx context.Context, rzpOrderID, paymentID string) error {
	if rzpOrderID == "" {
		return apierr.NotFound("order_not_found", "order id missing")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		order, err := s.orders.GetByRazorpayOrderID(dbc, rzpOrderID)
		if err != nil {
			return notFoundOr(err, "order_not_found", "order not found")
		}
		changed, err := s.orders.MarkPaid(dbc, rzpOrderID, paymentID, s.now())
		if err != nil {
			return apierr.Database(err)
		}
		if !changed {
			s.log.Debug("order already settled", "razorpay_order_id", rzpOrderID, "status", order.Status)
			return nil
		}
		s.log.Info("order paid", "order_id", order.ID, "kind", order.Kind, "razorpay_order_id", rzpOrderID)
		return s.applyPaidEffects(dbc, order)
	})
}

func (s *paymentService) applyPaidEffects(dbc dbctx.Context, order *types.Order) error {
	switch order.Kind {
	case billing.OrderKindSubscription:
		return s.subs.Activate(dbc, order.UserID, order.PlanID, "")
	case billing.OrderKindStory:
		if order.Format != billing.FormatPDF || order.StoryID == nil {
			return nil
		}
		_, err := s.jobs.Enqueue(dbc, order.UserID, jobtypes.TypeStoryExport, storyEntityType, order.StoryID, map[string]any{
			"story_id": order.StoryID.String(),
			"order_id": order.ID.String(),
		})
		return err
	}
	return nil
}

func (s *paymentService) markFailed(ctx context.Context, ev *razorpay.WebhookEvent) error {
	pay := ev.Payload.Payment.Entity
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		order, err := s.orders.GetByRazorpayOrderID(dbc, ev.OrderID())
		if err != nil {
			return notFoundOr(err, "order_not_found", "order not found")
		}
		changed, err := s.orders.MarkFailed(dbc, order.RazorpayOrderID, pay.ID, pay.ErrorDescription)
		if err != nil {
			return apierr.Database(err)
		}
		if changed && order.Kind == billing.OrderKindSubscription {
			return s.subs.MarkPastDue(dbc, order.UserID)
		}
		return nil
	})
}

// subscriptionUser resolves the user from notes.user_id, falling back to the
// stored subscription id.
func (s *paymentService) subscriptionUser(dbc dbctx.Context, sub razorpay.SubscriptionEntity) (uuid.UUID, error) {
	if id, err := uuid.Parse(sub.Notes["user_id"]); err == nil {
		return id, nil
	}
	if sub.ID == "" {
		return uuid.Nil, apierr.NotFound("subscription_not_found", "subscription id missing")
	}
	u, err := s.users.GetByRazorpaySubscriptionID(dbc, sub.ID)
	if err != nil {
		return uuid.Nil, notFoundOr(err, "subscription_not_found", "subscription not found")
	}
	return u.ID, nil
}

func (s *paymentService) activateFromSubscription(ctx context.Context, sub razorpay.SubscriptionEntity) error {
	dbc := dbctx.Of(ctx)
	userID, err := s.subscriptionUser(dbc, sub)
	if err != nil {
		return err
	}
	planID := sub.Notes["plan_id"]
	if _, ok := billing.PlanByID(planID); !ok || planID == billing.PlanFree {
		return apierr.Validation("invalid_plan", "subscription carries no known plan")
	}
	return s.subs.Activate(dbc, userID, planID, sub.ID)
}

func (s *paymentService) pastDueFromSubscription(ctx context.Context, sub razorpay.SubscriptionEntity) error {
	dbc := dbctx.Of(ctx)
	userID, err := s.subscriptionUser(dbc, sub)
	if err != nil {
		return err
	}
	return s.subs.MarkPastDue(dbc, userID)
}

func (s *paymentService) ListOrders(ctx context.Context, userID uuid.UUID) ([]*types.Order, error) {
	orders, err := s.orders.ListByUser(dbctx.Of(ctx), userID, 0)
	if err != nil {
		return nil, apierr.Database(err)
	}
	return orders, nil
}
