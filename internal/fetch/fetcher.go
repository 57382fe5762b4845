package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/sitescout/internal/model"
)

// Accept headers for the two kinds of requests the pipeline makes
const (
	AcceptHTML = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	AcceptJSON = "application/json,text/javascript;q=0.9,*/*;q=0.5"
)

// retrySleepFunc is swapped in tests to avoid real waits
var retrySleepFunc = sleepContext

// Fetcher performs HTTP requests on behalf of the investigator
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	logger     *zap.Logger
}

// Response is a fully read HTTP response
type Response struct {
	URL         string
	FinalURL    string
	StatusCode  int
	ContentType string
	Header      http.Header
	Body        []byte
}

// NewFetcher creates a new Fetcher with the given configuration
func NewFetcher(cfg model.HTTPConfig, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 5 * 1024 * 1024
	}

	var transport http.RoundTripper = http.DefaultTransport
	if base, ok := http.DefaultTransport.(*http.Transport); ok {
		t := base.Clone()
		t.Proxy = NewProxyFunc(cfg.Proxy, cfg.Proxy, "")
		transport = t
	}

	return &Fetcher{
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		userAgent: cfg.UserAgent,
		maxBytes:  maxBytes,
		logger:    logger,
	}
}

// Client exposes the underlying HTTP client so collaborators share transport settings
func (f *Fetcher) Client() *http.Client {
	return f.httpClient
}

// SetTransport replaces the HTTP transport of the shared client
func (f *Fetcher) SetTransport(rt http.RoundTripper) {
	f.httpClient.Transport = rt
}

// UserAgent returns the configured user agent
func (f *Fetcher) UserAgent() string {
	return f.userAgent
}

// Get performs a GET request. Non-2xx statuses are returned, not treated as errors.
func (f *Fetcher) Get(ctx context.Context, rawURL, accept string) (*Response, error) {
	return f.do(ctx, http.MethodGet, rawURL, accept)
}

// GetWithRetry performs a GET and, on 429, retries exactly once after the
// server's Retry-After (capped at maxWait). A second 429, or a Retry-After
// longer than maxWait, yields a RateLimitedError.
func (f *Fetcher) GetWithRetry(ctx context.Context, rawURL, accept string, maxWait time.Duration) (*Response, error) {
	resp, err := f.Get(ctx, rawURL, accept)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusTooManyRequests {
		return resp, nil
	}

	wait, ok := resp.RetryAfter(time.Now())
	if !ok {
		wait = time.Second
	}
	if maxWait > 0 && wait > maxWait {
		return resp, &model.RateLimitedError{URL: rawURL, RetryAfter: wait}
	}

	f.logger.Debug("rate limited, retrying once",
		zap.String("url", rawURL), zap.Duration("retry_after", wait))

	if err := retrySleepFunc(ctx, wait); err != nil {
		return resp, &model.RateLimitedError{URL: rawURL, RetryAfter: wait}
	}

	retry, err := f.Get(ctx, rawURL, accept)
	if err != nil {
		return nil, err
	}
	if retry.StatusCode == http.StatusTooManyRequests {
		return retry, &model.RateLimitedError{URL: rawURL, RetryAfter: wait}
	}
	return retry, nil
}

func (f *Fetcher) do(ctx context.Context, method, rawURL, accept string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &model.NetworkError{URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	// Read body with size limit
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, &model.NetworkError{URL: rawURL, Err: fmt.Errorf("read body: %w", err)}
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Response{
		URL:         rawURL,
		FinalURL:    finalURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Header:      resp.Header,
		Body:        body,
	}, nil
}

// OK reports a 2xx status
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// IsJSON reports whether the content type declares JSON
func (r *Response) IsJSON() bool {
	mediaType, _, err := mime.ParseMediaType(r.ContentType)
	if err != nil {
		return strings.Contains(strings.ToLower(r.ContentType), "json")
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json") || mediaType == "text/json"
}

// RetryAfter parses the Retry-After header as delta-seconds or an HTTP date
func (r *Response) RetryAfter(now time.Time) (time.Duration, bool) {
	return ParseRetryAfter(r.Header.Get("Retry-After"), now)
}

// ParseRetryAfter parses a Retry-After value
func ParseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		d := t.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
