package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRateLimiter_AllowBurstThenDeny(t *testing.T) {
	l := NewRateLimiter(RateLimitConfig{RPS: 1, Burst: 2})

	for i := 0; i < 2; i++ {
		if ok, _ := l.Allow("10.0.0.1"); !ok {
			t.Fatalf("request %d denied; want allowed within burst", i+1)
		}
	}
	ok, wait := l.Allow("10.0.0.1")
	if ok {
		t.Fatal("third request allowed; want denied")
	}
	if wait <= 0 || wait > time.Second {
		t.Errorf("wait = %v; want within (0, 1s]", wait)
	}

	if ok, _ := l.Allow("10.0.0.2"); !ok {
		t.Error("other client denied; buckets must be per key")
	}
}

func TestRateLimiter_EvictsLeastRecentClient(t *testing.T) {
	l := NewRateLimiter(RateLimitConfig{RPS: 0.001, Burst: 1, MaxClients: 1})

	if ok, _ := l.Allow("a"); !ok {
		t.Fatal("first request for a denied")
	}
	if ok, _ := l.Allow("b"); !ok {
		t.Fatal("first request for b denied")
	}
	// a was evicted by b, so it starts with a fresh bucket.
	if ok, _ := l.Allow("a"); !ok {
		t.Error("evicted client should get a fresh bucket")
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	l := NewRateLimiter(RateLimitConfig{RPS: 0.5, Burst: 1})
	r := gin.New()
	r.Use(l.Middleware())
	r.GET("/advocates", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/advocates", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("first request status = %d; want 200", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/advocates", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d; want 429", w.Code)
	}
	retry, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || retry < 1 || retry > 2 {
		t.Errorf("Retry-After = %q; want 1 or 2 seconds", w.Header().Get("Retry-After"))
	}

	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse JSON response: %v", err)
	}
	if body.Success || body.Error.Code != "RATE_LIMITED" {
		t.Errorf("unexpected envelope: %s", w.Body.String())
	}
}
