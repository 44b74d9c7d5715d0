package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

type body struct {
	Success bool `json:"success"`
	Error   struct {
		Message string `json:"message"`
		Code    string `json:"code"`
		Details []struct {
			Field string `json:"field"`
			Rule  string `json:"rule"`
		} `json:"details"`
	} `json:"error"`
}

func serve(t *testing.T, h gin.HandlerFunc, req *http.Request) (*httptest.ResponseRecorder, body) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Any("/x", h)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	var b body
	if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		t.Fatalf("decode: %v body=%s", err, rec.Body.String())
	}
	return rec, b
}

func TestInternalErrorsAreGeneric(t *testing.T) {
	rec, b := serve(t, func(c *gin.Context) {
		RespondAPIError(c, errors.New("pq: password authentication failed for user storybook"))
	}, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("want=%d got=%d", http.StatusInternalServerError, rec.Code)
	}
	if b.Success || b.Error.Code != "internal_error" {
		t.Fatalf("unexpected body %+v", b)
	}
	if strings.Contains(b.Error.Message, "password") {
		t.Fatalf("internal error leaked: %q", b.Error.Message)
	}
}

func TestBindErrorDetails(t *testing.T) {
	RegisterJSONTagNames()
	type req struct {
		ChildName string `json:"child_name" binding:"required"`
		ChildAge  int    `json:"child_age" binding:"required,min=1,max=12"`
		Format    string `json:"format" binding:"omitempty,oneof=pdf print"`
	}
	rec, b := serve(t, func(c *gin.Context) {
		var r req
		if err := c.ShouldBindJSON(&r); err != nil {
			RespondBindError(c, err)
			return
		}
		RespondOK(c, r)
	}, httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(`{"child_age":13,"format":"fax"}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want=%d got=%d", http.StatusBadRequest, rec.Code)
	}
	got := map[string]string{}
	for _, d := range b.Error.Details {
		got[d.Field] = d.Rule
	}
	want := map[string]string{"child_name": "required", "child_age": "max", "format": "oneof"}
	for f, rule := range want {
		if got[f] != rule {
			t.Fatalf("%s: want=%s got=%s (all=%v)", f, rule, got[f], got)
		}
	}
}

func TestToSnake(t *testing.T) {
	cases := map[string]string{"ChildAge": "child_age", "ImageURL": "image_url", "title": "title"}
	for in, want := range cases {
		if got := toSnake(in); got != want {
			t.Fatalf("%s: want=%s got=%s", in, want, got)
		}
	}
}
