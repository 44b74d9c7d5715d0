package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/storybook-backend/internal/domain"
	"github.com/yungbote/storybook-backend/internal/platform/apierr"
	"github.com/yungbote/storybook-backend/internal/platform/ctxutil"
	"github.com/yungbote/storybook-backend/internal/platform/logger"
)

type fakeAuth struct {
	valid  string
	userID uuid.UUID
}

func (f *fakeAuth) RegisterUser(context.Context, *types.User) error { return errors.New("unused") }
func (f *fakeAuth) LoginUser(context.Context, string, string) (string, string, error) {
	return "", "", errors.New("unused")
}
func (f *fakeAuth) RefreshUser(context.Context) (string, string, error) {
	return "", "", errors.New("unused")
}
func (f *fakeAuth) LogoutUser(context.Context) error { return errors.New("unused") }
func (f *fakeAuth) GetAccessTTL() time.Duration      { return time.Hour }
func (f *fakeAuth) GetRefreshTTL() time.Duration     { return time.Hour }

func (f *fakeAuth) SetContextFromToken(ctx context.Context, token string) (context.Context, error) {
	if token != f.valid {
		return nil, apierr.Auth("invalid_token", "token is invalid")
	}
	return ctxutil.WithRequestData(ctx, &ctxutil.RequestData{TokenString: token, UserID: f.userID}), nil
}

func TestRequireAuthTokenSources(t *testing.T) {
	gin.SetMode(gin.TestMode)
	auth := &fakeAuth{valid: "good", userID: uuid.New()}
	r := gin.New()
	r.Use(NewAuthMiddleware(logger.Nop(), auth).RequireAuth())
	var seen uuid.UUID
	r.GET("/api/me", func(c *gin.Context) {
		seen = ctxutil.UserID(c.Request.Context())
		c.Status(http.StatusOK)
	})

	cases := []struct {
		name string
		mod  func(req *http.Request)
		want int
	}{
		{"bearer", func(req *http.Request) { req.Header.Set("Authorization", "Bearer good") }, http.StatusOK},
		{"cookie", func(req *http.Request) { req.AddCookie(&http.Cookie{Name: "access_token", Value: "good"}) }, http.StatusOK},
		{"query", func(req *http.Request) { req.URL.RawQuery = "token=good" }, http.StatusOK},
		{"missing", func(*http.Request) {}, http.StatusUnauthorized},
		{"bad", func(req *http.Request) { req.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		seen = uuid.Nil
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		tc.mod(req)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != tc.want {
			t.Fatalf("%s: want=%d got=%d", tc.name, tc.want, rec.Code)
		}
		if tc.want == http.StatusOK && seen != auth.userID {
			t.Fatalf("%s: user id not propagated", tc.name)
		}
	}
}
