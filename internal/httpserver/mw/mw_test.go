package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrSnakeDoc/vsdesk/internal/logger"
)

func ok(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

func TestEnforceHost(t *testing.T) {
	h := EnforceHost([]string{"localhost", "::1", "*.home.arpa"}, logger.NewNop())(http.HandlerFunc(ok))

	tests := []struct {
		host string
		want int
	}{
		{"localhost", http.StatusOK},
		{"LOCALHOST:7420", http.StatusOK},
		{"[::1]:7420", http.StatusOK},
		{"desk.home.arpa", http.StatusOK},
		{"127.0.0.1:7420", http.StatusForbidden},
		{"attacker.example", http.StatusForbidden},
		{"localhost.attacker.example", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Host = tt.host
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("Host %q: status = %d, want %d", tt.host, rec.Code, tt.want)
			}
		})
	}
}

func TestEnforceHostPassthrough(t *testing.T) {
	h := EnforceHost(nil, logger.NewNop())(http.HandlerFunc(ok))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Host = "anything.example"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	h := RateLimit(RateLimitConfig{
		Burst:     2,
		PerMinute: 2,
		Logger:    logger.NewNop(),
		Now:       func() time.Time { return now },
	})(http.HandlerFunc(ok))

	call := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	tests := []struct {
		name      string
		advance   time.Duration
		remote    string
		want      int
		remaining string
		retry     string
	}{
		{"first", 0, "127.0.0.1:5000", http.StatusOK, "1", ""},
		{"second", 0, "127.0.0.1:5001", http.StatusOK, "0", ""},
		{"exhausted", 0, "127.0.0.1:5002", http.StatusTooManyRequests, "0", "30"},
		{"other client", 0, "127.0.0.2:5000", http.StatusOK, "1", ""},
		{"half refill", 10 * time.Second, "127.0.0.1:5000", http.StatusTooManyRequests, "0", "20"},
		{"refilled", 25 * time.Second, "127.0.0.1:5000", http.StatusOK, "0", ""},
	}
	for _, tt := range tests {
		now = now.Add(tt.advance)
		rec := call(tt.remote)
		if rec.Code != tt.want {
			t.Fatalf("%s: status = %d, want %d", tt.name, rec.Code, tt.want)
		}
		if got := rec.Header().Get("X-RateLimit-Remaining"); got != tt.remaining {
			t.Errorf("%s: remaining = %q, want %q", tt.name, got, tt.remaining)
		}
		if got := rec.Header().Get("Retry-After"); got != tt.retry {
			t.Errorf("%s: Retry-After = %q, want %q", tt.name, got, tt.retry)
		}
	}
}

func TestAllowOnlyCIDRS(t *testing.T) {
	h := AllowOnlyCIDRS([]string{"127.0.0.1/32", "bogus"}, false, logger.NewNop())(http.HandlerFunc(ok))
	for remote, want := range map[string]int{
		"127.0.0.1:5000": http.StatusOK,
		"10.0.0.1:5000":  http.StatusForbidden,
		"not-an-ip":      http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("%s: status = %d, want %d", remote, rec.Code, want)
		}
	}

	onlyInvalid := AllowOnlyCIDRS([]string{"bogus"}, false, logger.NewNop())(http.HandlerFunc(ok))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "127.0.0.1:5000"
	rec := httptest.NewRecorder()
	onlyInvalid.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("invalid-only list: status = %d, want 403", rec.Code)
	}
}

func TestLogKeepsStatus(t *testing.T) {
	h := Log(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.Code)
	}
}
