package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/storybook-backend/internal/data/repos"
	types "github.com/yungbote/storybook-backend/internal/domain"
	"github.com/yungbote/storybook-backend/internal/platform/apierr"
	"github.com/yungbote/storybook-backend/internal/platform/ctxutil"
	"github.com/yungbote/storybook-backend/internal/platform/dbctx"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
)

type MeView struct {
	User         *types.User         `json:"user"`
	Subscription *SubscriptionStatus `json:"subscription"`
}

type UserService interface {
	GetMe(ctx context.Context) (*MeView, error)
	UpdateName(ctx context.Context, firstName, lastName string) (*types.User, error)
}

type userService struct {
	log   *logger.Logger
	users repos.UserRepo
	subs  SubscriptionService
}

func NewUserService(baseLog *logger.Logger, users repos.UserRepo, subs SubscriptionService) UserService {
	return &userService{
		log:   baseLog.With("service", "UserService"),
		users: users,
		subs:  subs,
	}
}

func requestUser(ctx context.Context) (uuid.UUID, error) {
	id := ctxutil.UserID(ctx)
	if id == uuid.Nil {
		return uuid.Nil, apierr.Auth("unauthorized", "not authenticated")
	}
	return id, nil
}

func (s *userService) GetMe(ctx context.Context) (*MeView, error) {
	userID, err := requestUser(ctx)
	if err != nil {
		return nil, err
	}
	status, err := s.subs.Status(ctx, userID)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(dbctx.Of(ctx), userID)
	if err != nil {
		return nil, notFoundOr(err, "user_not_found", "user not found")
	}
	return &MeView{User: u, Subscription: status}, nil
}

func (s *userService) UpdateName(ctx context.Context, firstName, lastName string) (*types.User, error) {
	userID, err := requestUser(ctx)
	if err != nil {
		return nil, err
	}
	firstName, lastName = strings.TrimSpace(firstName), strings.TrimSpace(lastName)
	if firstName == "" {
		return nil, apierr.ValidationFields([]apierr.FieldError{{Field: "first_name", Rule: "required", Message: "first name is required"}})
	}
	if err := s.users.UpdateName(dbctx.Of(ctx), userID, firstName, lastName); err != nil {
		return nil, apierr.Database(err)
	}
	u, err := s.users.GetByID(dbctx.Of(ctx), userID)
	if err != nil {
		return nil, notFoundOr(err, "user_not_found", "user not found")
	}
	return u, nil
}
