package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/yungbote/storybook-backend/internal/data/repos"
	types "github.com/yungbote/storybook-backend/internal/domain"
	billing "github.com/yungbote/storybook-backend/internal/domain/billing"
	usertypes "github.com/yungbote/storybook-backend/internal/domain/user"
	"github.com/yungbote/storybook-backend/internal/platform/apierr"
	"github.com/yungbote/storybook-backend/internal/platform/ctxutil"
	"github.com/yungbote/storybook-backend/internal/platform/dbctx"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
)

const (
	minPasswordLen = 8
	usagePeriod    = 30 * 24 * time.Hour
)

type JWTClaims struct {
	jwt.RegisteredClaims
}

type AuthService interface {
	RegisterUser(ctx context.Context, user *types.User) error
	LoginUser(ctx context.Context, email, password string) (string, string, error)
	RefreshUser(ctx context.Context) (string, string, error)
	LogoutUser(ctx context.Context) error
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
	GetAccessTTL() time.Duration
	GetRefreshTTL() time.Duration
}

type authService struct {
	db            *gorm.DB
	log           *logger.Logger
	userRepo      repos.UserRepo
	userTokenRepo repos.UserTokenRepo
	validate      *validator.Validate
	jwtSecretKey  string
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewAuthService(
	db *gorm.DB,
	log *logger.Logger,
	userRepo repos.UserRepo,
	userTokenRepo repos.UserTokenRepo,
	jwtSecretKey string,
	accessTTL time.Duration,
	refreshTTL time.Duration,
) AuthService {
	return &authService{
		db:            db,
		log:           log.With("service", "AuthService"),
		userRepo:      userRepo,
		userTokenRepo: userTokenRepo,
		validate:      validator.New(),
		jwtSecretKey:  jwtSecretKey,
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (as *authService) RegisterUser(ctx context.Context, user *types.User) error {
	user.Email = normalizeEmail(user.Email)
	user.FirstName = strings.TrimSpace(user.FirstName)
	user.LastName = strings.TrimSpace(user.LastName)

	var fields []apierr.FieldError
	if err := as.validate.Var(user.Email, "required,email"); err != nil {
		fields = append(fields, apierr.FieldError{Field: "email", Rule: "email", Message: "must be a valid email address"})
	}
	if len(user.Password) < minPasswordLen {
		fields = append(fields, apierr.FieldError{Field: "password", Rule: "min", Message: fmt.Sprintf("must be at least %d characters", minPasswordLen)})
	}
	if len(fields) > 0 {
		return apierr.ValidationFields(fields)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(user.Password), bcrypt.DefaultCost)
	if err != nil {
		return apierr.Internal(fmt.Errorf("hash password: %w", err))
	}

	return as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		exists, err := as.userRepo.EmailExists(dbc, user.Email)
		if err != nil {
			return apierr.Database(err)
		}
		if exists {
			return apierr.Conflict("email_taken", "an account with this email already exists")
		}
		now := as.now()
		free := billing.FreePlan()
		user.ID = uuid.New()
		user.Password = string(hashed)
		user.PlanID = free.ID
		user.SubscriptionStatus = usertypes.SubscriptionActive
		user.StoriesUsed = 0
		user.StoryLimit = free.StoryLimit
		user.UsagePeriodStart = now
		user.UsagePeriodEnd = now.Add(usagePeriod)
		if _, err := as.userRepo.Create(dbc, []*types.User{user}); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apierr.Conflict("email_taken", "an account with this email already exists")
			}
			return apierr.Database(err)
		}
		as.log.Info("user registered", "user_id", user.ID)
		return nil
	})
}

func (as *authService) LoginUser(ctx context.Context, email, password string) (string, string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return "", "", apierr.Validation("missing_credentials", "email and password are required")
	}
	users, err := as.userRepo.GetByEmails(dbctx.Of(ctx), []string{email})
	if err != nil {
		return "", "", apierr.Database(err)
	}
	if len(users) == 0 {
		return "", "", apierr.Auth("invalid_credentials", "invalid email or password")
	}
	user := users[0]
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", "", apierr.Auth("invalid_credentials", "invalid email or password")
	}

	var accessToken, refreshToken string
	err = as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := as.userTokenRepo.DeleteExpired(dbc, as.now()); err != nil {
			as.log.Warn("expired token cleanup failed", "error", err)
		}
		var err error
		accessToken, refreshToken, err = as.issueTokens(dbc, user.ID)
		return err
	})
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

func (as *authService) issueTokens(dbc dbctx.Context, userID uuid.UUID) (string, string, error) {
	access, err := as.generateAccessToken(userID)
	if err != nil {
		return "", "", apierr.Internal(fmt.Errorf("sign access token: %w", err))
	}
	refresh := uuid.New().String()
	token := &types.UserToken{
		ID:           uuid.New(),
		UserID:       userID,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    as.now().Add(as.refreshTTL),
	}
	if _, err := as.userTokenRepo.Create(dbc, []*types.UserToken{token}); err != nil {
		return "", "", apierr.Database(err)
	}
	return access, refresh, nil
}

// RefreshUser rotates the refresh token carried in the request data.
func (as *authService) RefreshUser(ctx context.Context) (string, string, error) {
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || strings.TrimSpace(rd.RefreshToken) == "" {
		return "", "", apierr.Auth("missing_refresh_token", "refresh token required")
	}
	found, err := as.userTokenRepo.GetByRefreshTokens(dbctx.Of(ctx), []string{rd.RefreshToken})
	if err != nil {
		return "", "", apierr.Database(err)
	}
	if len(found) == 0 {
		return "", "", apierr.Auth("invalid_refresh_token", "refresh token not recognized")
	}
	existing := found[0]
	if existing.ExpiresAt.Before(as.now()) {
		if err := as.userTokenRepo.FullDeleteByIDs(dbctx.Of(ctx), []uuid.UUID{existing.ID}); err != nil {
			as.log.Warn("delete expired refresh token failed", "error", err)
		}
		return "", "", apierr.Auth("refresh_token_expired", "refresh token expired")
	}

	var accessToken, refreshToken string
	err = as.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		dbc := dbctx.Context{Ctx: ctx, Tx: tx}
		if err := as.userTokenRepo.FullDeleteByIDs(dbc, []uuid.UUID{existing.ID}); err != nil {
			return apierr.Database(err)
		}
		var err error
		accessToken, refreshToken, err = as.issueTokens(dbc, existing.UserID)
		return err
	})
	if err != nil {
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

func (as *authService) LogoutUser(ctx context.Context) error {
	rd := ctxutil.GetRequestData(ctx)
	if rd == nil || rd.TokenString == "" {
		return apierr.Auth("unauthorized", "not authenticated")
	}
	found, err := as.userTokenRepo.GetByAccessTokens(dbctx.Of(ctx), []string{rd.TokenString})
	if err != nil {
		return apierr.Database(err)
	}
	if len(found) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(found))
	for _, t := range found {
		ids = append(ids, t.ID)
	}
	if err := as.userTokenRepo.FullDeleteByIDs(dbctx.Of(ctx), ids); err != nil {
		return apierr.Database(err)
	}
	return nil
}

func (as *authService) generateAccessToken(userID uuid.UUID) (string, error) {
	now := as.now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(as.accessTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(as.jwtSecretKey))
}

// SetContextFromToken verifies an HS256 access token that has not been
// logged out and attaches the request data.
func (as *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	if tokenString == "" {
		return ctx, apierr.Auth("unauthorized", "missing access token")
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(as.jwtSecretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(as.now))
	if err != nil {
		return ctx, apierr.Auth("invalid_token", "invalid or expired token")
	}
	claims, ok := parsed.Claims.(*JWTClaims)
	if !ok || !parsed.Valid {
		return ctx, apierr.Auth("invalid_token", "invalid or expired token")
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return ctx, apierr.Auth("invalid_token", "invalid subject")
	}
	found, err := as.userTokenRepo.GetByAccessTokens(dbctx.Of(ctx), []string{tokenString})
	if err != nil {
		return ctx, apierr.Database(err)
	}
	if len(found) == 0 {
		return ctx, apierr.Auth("token_revoked", "session ended")
	}
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{
		TokenString:  tokenString,
		RefreshToken: found[0].RefreshToken,
		UserID:       userID,
	}), nil
}

func (as *authService) GetAccessTTL() time.Duration  { return as.accessTTL }
func (as *authService) GetRefreshTTL() time.Duration { return as.refreshTTL }
