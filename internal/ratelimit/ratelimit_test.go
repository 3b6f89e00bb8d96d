package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/triagent/triagent/internal/logging"
)

func TestMemLimiterWindow(t *testing.T) {
	l := NewMemLimiter(3, time.Minute)
	fixed := time.Date(2026, 8, 31, 10, 0, 5, 0, time.UTC)
	l.now = func() time.Time { return fixed }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d := l.Admit(ctx, "client-a")
		if !d.Allowed {
			t.Fatalf("request %d rejected within limit", i+1)
		}
		if d.Remaining != 3-(i+1) {
			t.Errorf("request %d remaining = %d, want %d", i+1, d.Remaining, 3-(i+1))
		}
	}

	d := l.Admit(ctx, "client-a")
	if d.Allowed {
		t.Fatal("4th request admitted over limit")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Minute {
		t.Errorf("retry after = %v", d.RetryAfter)
	}

	// Another client has its own budget.
	if d := l.Admit(ctx, "client-b"); !d.Allowed {
		t.Error("independent client rejected")
	}

	// A new window resets the count.
	fixed = fixed.Add(time.Minute)
	if d := l.Admit(ctx, "client-a"); !d.Allowed {
		t.Error("request rejected after window reset")
	}
}

func TestMiddleware(t *testing.T) {
	l := NewMemLimiter(1, time.Minute)
	h := Middleware(l, func(r *http.Request) string { return "fixed" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tasks/chat", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("remaining header = %q", rec.Header().Get("X-RateLimit-Remaining"))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tasks/chat", nil))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing on 429")
	}
}

func TestRemoteAddrKey(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.2.3:54321"
	if got := RemoteAddrKey(r); got != "10.1.2.3" {
		t.Errorf("key = %q", got)
	}
}

func TestRedisLimiterFailsOpen(t *testing.T) {
	// Port 1 on loopback refuses immediately; the limiter must admit
	// the request and flag the degradation instead of returning 429s
	// during a counter-store outage.
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	l := NewRedisLimiter(rdb, 60, time.Minute, logging.New("test"))
	d := l.Admit(context.Background(), "client-a")
	if !d.Allowed {
		t.Fatal("request rejected while backend unreachable, want fail-open")
	}
	if !d.Degraded {
		t.Error("decision not flagged degraded")
	}
	if d.Remaining != 60 {
		t.Errorf("remaining = %d, want full advisory budget", d.Remaining)
	}
}
