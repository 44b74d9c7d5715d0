package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func limitedEngine(rl *RateLimiter) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(rl.Handler())
	r.POST("/api/stories", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func hit(r *gin.Engine, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/stories", nil)
	req.RemoteAddr = ip + ":12345"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitBurstThen429(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 2)
	rl.now = func() time.Time { return now }
	r := limitedEngine(rl)

	for i := 0; i < 2; i++ {
		if rec := hit(r, "10.0.0.1"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: want=%d got=%d", i, http.StatusOK, rec.Code)
		}
	}
	rec := hit(r, "10.0.0.1")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("want=%d got=%d", http.StatusTooManyRequests, rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "1" {
		t.Fatalf("Retry-After: want=1 got=%q", got)
	}
	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Success || body.Error.Code != "rate_limited" {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}

	if rec := hit(r, "10.0.0.2"); rec.Code != http.StatusOK {
		t.Fatalf("other client: want=%d got=%d", http.StatusOK, rec.Code)
	}

	now = now.Add(time.Second)
	if rec := hit(r, "10.0.0.1"); rec.Code != http.StatusOK {
		t.Fatalf("after refill: want=%d got=%d", http.StatusOK, rec.Code)
	}
}

func TestRateLimiterSweepsIdleClients(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 1)
	rl.now = func() time.Time { return now }
	rl.get("ip:a")
	now = now.Add(limiterIdleTTL + time.Second)
	rl.get("ip:b")
	if _, ok := rl.clients["ip:a"]; ok {
		t.Fatalf("expected idle limiter to be swept")
	}
	if len(rl.clients) != 1 {
		t.Fatalf("clients: want=1 got=%d", len(rl.clients))
	}
}
