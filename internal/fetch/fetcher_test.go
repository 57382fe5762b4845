package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/sitescout/internal/model"
)

func testFetcher() *Fetcher {
	return NewFetcher(model.HTTPConfig{Timeout: 5 * time.Second, UserAgent: "test-agent", MaxBodyBytes: 1 << 20}, nil)
}

func stubSleep(t *testing.T) *[]time.Duration {
	t.Helper()
	var waits []time.Duration
	orig := retrySleepFunc
	retrySleepFunc = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	t.Cleanup(func() { retrySleepFunc = orig })
	return &waits
}

func TestGet_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "test-agent" {
			t.Errorf("Expected user agent header, got %q", r.Header.Get("User-Agent"))
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_, _ = fmt.Fprint(w, `{"products":[]}`)
	}))
	defer server.Close()

	resp, err := testFetcher().Get(context.Background(), server.URL, AcceptJSON)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !resp.OK() || !resp.IsJSON() {
		t.Errorf("Expected OK JSON response, got %d %q", resp.StatusCode, resp.ContentType)
	}
	if string(resp.Body) != `{"products":[]}` {
		t.Errorf("Unexpected body: %s", resp.Body)
	}
}

func TestGet_NonSuccessIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	resp, err := testFetcher().Get(context.Background(), server.URL, AcceptHTML)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if resp.StatusCode != http.StatusForbidden || resp.OK() {
		t.Errorf("Expected 403, got %d", resp.StatusCode)
	}
}

func TestGet_UnreachableIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := testFetcher().Get(context.Background(), url, AcceptHTML)
	var netErr *model.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("Expected NetworkError, got %v", err)
	}
	if netErr.Kind() != model.KindNetworkUnreachable {
		t.Errorf("Unexpected kind %s", netErr.Kind())
	}
}

func TestGetWithRetry_429RetriedOnce(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `[]`)
	}))
	defer server.Close()

	waits := stubSleep(t)

	resp, err := testFetcher().GetWithRetry(context.Background(), server.URL, AcceptJSON, 10*time.Second)
	if err != nil {
		t.Fatalf("Expected success after 429 retry, got %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
	if attempts.Load() != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts.Load())
	}
	if len(*waits) != 1 || (*waits)[0] != 2*time.Second {
		t.Errorf("Expected one 2s wait, got %v", *waits)
	}
}

func TestGetWithRetry_Persistent429(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	stubSleep(t)

	_, err := testFetcher().GetWithRetry(context.Background(), server.URL, AcceptJSON, 10*time.Second)
	var rl *model.RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("Expected RateLimitedError, got %v", err)
	}
	if attempts.Load() != 2 {
		t.Errorf("Expected exactly one retry, got %d attempts", attempts.Load())
	}
}

func TestGetWithRetry_RetryAfterBeyondBudget(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	waits := stubSleep(t)

	_, err := testFetcher().GetWithRetry(context.Background(), server.URL, AcceptJSON, 10*time.Second)
	var rl *model.RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("Expected RateLimitedError, got %v", err)
	}
	if attempts.Load() != 1 || len(*waits) != 0 {
		t.Errorf("Expected no retry, got %d attempts and waits %v", attempts.Load(), *waits)
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"5", 5 * time.Second, true},
		{"0", 0, true},
		{"", 0, false},
		{"soon", 0, false},
		{"-3", 0, false},
		{now.Add(30 * time.Second).Format(http.TimeFormat), 30 * time.Second, true},
		{now.Add(-30 * time.Second).Format(http.TimeFormat), 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseRetryAfter(tt.in, now)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseRetryAfter(%q) = %v,%v want %v,%v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestIsJSON(t *testing.T) {
	tests := map[string]bool{
		"application/json":                true,
		"application/json; charset=utf-8": true,
		"application/ld+json":             true,
		"text/html":                       false,
		"":                                false,
	}
	for ct, want := range tests {
		if got := (&Response{ContentType: ct}).IsJSON(); got != want {
			t.Errorf("IsJSON(%q) = %v, want %v", ct, got, want)
		}
	}
}

func TestRobotsChecker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = fmt.Fprint(w, "User-agent: *\nDisallow: /api/private\nCrawl-delay: 2\n")
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	rc := NewRobotsChecker(server.Client(), "sitescout/1.0 (+test)")
	ctx := context.Background()

	allowed, delay, err := rc.CanFetch(ctx, server.URL+"/products.json")
	if err != nil || !allowed {
		t.Errorf("Expected /products.json to be allowed, got %v %v", allowed, err)
	}
	if delay != 2*time.Second {
		t.Errorf("Expected crawl delay 2s, got %v", delay)
	}
	if allowed, _, _ := rc.CanFetch(ctx, server.URL+"/api/private/items"); allowed {
		t.Error("Expected /api/private to be disallowed")
	}
}
