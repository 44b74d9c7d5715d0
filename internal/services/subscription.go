package services

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/storybook-backend/internal/data/repos"
	types "github.com/yungbote/storybook-backend/internal/domain"
	billing "github.com/yungbote/storybook-backend/internal/domain/billing"
	usertypes "github.com/yungbote/storybook-backend/internal/domain/user"
	"github.com/yungbote/storybook-backend/internal/platform/apierr"
	"github.com/yungbote/storybook-backend/internal/platform/dbctx"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
)

type SubscriptionStatus struct {
	Plan          types.SubscriptionPlan `json:"plan"`
	Status        string                 `json:"status"`
	PendingPlanID string                 `json:"pending_plan_id,omitempty"`
	StoriesUsed   int                    `json:"stories_used"`
	StoryLimit    int                    `json:"story_limit"`
	Remaining     int                    `json:"remaining"`
	PeriodStart   time.Time              `json:"period_start"`
	PeriodEnd     time.Time              `json:"period_end"`
}

// SubscriptionService owns plan state and the per-period story allowance.
// stories_used never exceeds story_limit: consumption is a single
// conditional UPDATE in the user repo.
type SubscriptionService interface {
	Plans() []types.SubscriptionPlan
	Status(ctx context.Context, userID uuid.UUID) (*SubscriptionStatus, error)
	StartUpgrade(ctx context.Context, userID uuid.UUID, planID string) (*CheckoutOrder, error)
	Activate(dbc dbctx.Context, userID uuid.UUID, planID string, subscriptionID string) error
	Cancel(ctx context.Context, userID uuid.UUID) (*SubscriptionStatus, error)
	CancelBySubscriptionID(dbc dbctx.Context, subscriptionID string) error
	MarkPastDue(dbc dbctx.Context, userID uuid.UUID) error
	ConsumeStory(ctx context.Context, userID uuid.UUID) error
	ReleaseStory(ctx context.Context, userID uuid.UUID) error
}

type subscriptionService struct {
	db       *gorm.DB
	log      *logger.Logger
	users    repos.UserRepo
	checkout *OrderCheckout
	now      func() time.Time
}

func NewSubscriptionService(db *gorm.DB, baseLog *logger.Logger, users repos.UserRepo, checkout *OrderCheckout) SubscriptionService {
	return &subscriptionService{
		db:       db,
		log:      baseLog.With("service", "SubscriptionService"),
		users:    users,
		checkout: checkout,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *subscriptionService) Plans() []types.SubscriptionPlan {
	out := make([]types.SubscriptionPlan, len(billing.Plans))
	copy(out, billing.Plans)
	return out
}

func (s *subscriptionService) load(dbc dbctx.Context, userID uuid.UUID) (*types.User, error) {
	u, err := s.users.GetByID(dbc, userID)
	if err != nil {
		return nil, notFoundOr(err, "user_not_found", "user not found")
	}
	return u, nil
}

// rollover starts a new usage period once the current one has ended. Free
// plans renew; lapsed paid plans fall back to free.
func (s *subscriptionService) rollover(dbc dbctx.Context, u *types.User) (*types.User, error) {
	now := s.now()
	if now.Before(u.UsagePeriodEnd) {
		return u, nil
	}
	free := billing.FreePlan()
	updates := map[string]interface{}{
		"stories_used":       0,
		"usage_period_start": now,
		"usage_period_end":   now.Add(usagePeriod),
	}
	if u.PlanID != billing.PlanFree {
		status := usertypes.SubscriptionExpired
		if u.SubscriptionStatus == usertypes.SubscriptionCanceled {
			status = usertypes.SubscriptionCanceled
		}
		updates["plan_id"] = free.ID
		updates["story_limit"] = free.StoryLimit
		updates["subscription_status"] = status
		updates["razorpay_subscription_id"] = ""
	}
	changed, err := s.users.RolloverPeriod(dbc, u.ID, now, updates)
	if err != nil {
		return nil, apierr.Database(err)
	}
	if changed {
		s.log.Info("usage period rolled over", "user_id", u.ID, "plan_id", u.PlanID)
	}
	return s.load(dbc, u.ID)
}

func (s *subscriptionService) Status(ctx context.Context, userID uuid.UUID) (*SubscriptionStatus, error) {
	dbc := dbctx.Of(ctx)
	u, err := s.load(dbc, userID)
	if err != nil {
		return nil, err
	}
	if u, err = s.rollover(dbc, u); err != nil {
		return nil, err
	}
	return statusOf(u), nil
}

func statusOf(u *types.User) *SubscriptionStatus {
	plan, ok := billing.PlanByID(u.PlanID)
	if !ok {
		plan = billing.FreePlan()
	}
	return &SubscriptionStatus{
		Plan:          plan,
		Status:        u.SubscriptionStatus,
		PendingPlanID: u.PendingPlanID,
		StoriesUsed:   u.StoriesUsed,
		StoryLimit:    u.StoryLimit,
		Remaining:     u.RemainingStories(),
		PeriodStart:   u.UsagePeriodStart,
		PeriodEnd:     u.UsagePeriodEnd,
	}
}

func (s *subscriptionService) StartUpgrade(ctx context.Context, userID uuid.UUID, planID string) (*CheckoutOrder, error) {
	planID = strings.ToLower(strings.TrimSpace(planID))
	plan, ok := billing.PlanByID(planID)
	if !ok || plan.ID == billing.PlanFree {
		return nil, apierr.Validation("invalid_plan", "plan %q cannot be purchased", planID)
	}
	var out *CheckoutOrder
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		u, err := s.load(dbc, userID)
		if err != nil {
			return err
		}
		if u.PlanID == plan.ID && u.SubscriptionStatus == usertypes.SubscriptionActive && s.now().Before(u.UsagePeriodEnd) {
			return apierr.Conflict("already_subscribed", "already on the %s plan", plan.Name)
		}
		out, err = s.checkout.Create(dbc, &types.Order{
			UserID:        userID,
			Kind:          billing.OrderKindSubscription,
			PlanID:        plan.ID,
			Amount:        plan.PriceMonthly,
			Currency:      plan.Currency,
			CustomerEmail: u.Email,
			CustomerName:  strings.TrimSpace(u.FirstName + " " + u.LastName),
		})
		if err != nil {
			return err
		}
		return s.users.UpdateFields(dbc, userID, map[string]interface{}{
			"subscription_status": usertypes.SubscriptionPending,
			"pending_plan_id":     plan.ID,
		})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("subscription upgrade started", "user_id", userID, "plan_id", plan.ID, "razorpay_order_id", out.RazorpayOrderID)
	return out, nil
}

// Activate puts the user on planID with a fresh usage period. Renewals
// (subscription.charged) go through here too.
func (s *subscriptionService) Activate(dbc dbctx.Context, userID uuid.UUID, planID string, subscriptionID string) error {
	plan, ok := billing.PlanByID(planID)
	if !ok {
		return apierr.Validation("invalid_plan", "unknown plan %q", planID)
	}
	now := s.now()
	updates := map[string]interface{}{
		"plan_id":             plan.ID,
		"pending_plan_id":     "",
		"subscription_status": usertypes.SubscriptionActive,
		"story_limit":         plan.StoryLimit,
		"stories_used":        0,
		"usage_period_start":  now,
		"usage_period_end":    now.Add(usagePeriod),
	}
	if subscriptionID != "" {
		updates["razorpay_subscription_id"] = subscriptionID
	}
	if err := s.users.UpdateFields(dbc, userID, updates); err != nil {
		return apierr.Database(err)
	}
	s.log.Info("subscription activated", "user_id", userID, "plan_id", plan.ID)
	return nil
}

func (s *subscriptionService) Cancel(ctx context.Context, userID uuid.UUID) (*SubscriptionStatus, error) {
	dbc := dbctx.Of(ctx)
	u, err := s.load(dbc, userID)
	if err != nil {
		return nil, err
	}
	if u.PlanID == billing.PlanFree {
		return nil, apierr.Conflict("no_paid_subscription", "there is no paid subscription to cancel")
	}
	if u.SubscriptionStatus == usertypes.SubscriptionCanceled {
		return statusOf(u), nil
	}
	if err := s.users.UpdateFields(dbc, userID, map[string]interface{}{
		"subscription_status": usertypes.SubscriptionCanceled,
		"pending_plan_id":     "",
	}); err != nil {
		return nil, apierr.Database(err)
	}
	s.log.Info("subscription canceled", "user_id", userID, "plan_id", u.PlanID, "period_end", u.UsagePeriodEnd)
	return s.Status(ctx, userID)
}

func (s *subscriptionService) CancelBySubscriptionID(dbc dbctx.Context, subscriptionID string) error {
	u, err := s.users.GetByRazorpaySubscriptionID(dbc, subscriptionID)
	if err != nil {
		return notFoundOr(err, "subscription_not_found", "subscription not found")
	}
	return s.users.UpdateFields(dbc, u.ID, map[string]interface{}{
		"subscription_status": usertypes.SubscriptionCanceled,
	})
}

func (s *subscriptionService) MarkPastDue(dbc dbctx.Context, userID uuid.UUID) error {
	if err := s.users.UpdateFields(dbc, userID, map[string]interface{}{
		"subscription_status": usertypes.SubscriptionPastDue,
		"pending_plan_id":     "",
	}); err != nil {
		return apierr.Database(err)
	}
	s.log.Warn("subscription past due", "user_id", userID)
	return nil
}

func (s *subscriptionService) ConsumeStory(ctx context.Context, userID uuid.UUID) error {
	dbc := dbctx.Of(ctx)
	u, err := s.load(dbc, userID)
	if err != nil {
		return err
	}
	if _, err := s.rollover(dbc, u); err != nil {
		return err
	}
	ok, err := s.users.ConsumeStory(dbc, userID)
	if err != nil {
		return apierr.Database(err)
	}
	if !ok {
		return apierr.RateLimit("usage_limit_reached", "story limit reached for this period")
	}
	return nil
}

func (s *subscriptionService) ReleaseStory(ctx context.Context, userID uuid.UUID) error {
	if err := s.users.ReleaseStory(dbctx.Of(ctx), userID); err != nil {
		return apierr.Database(err)
	}
	return nil
}
