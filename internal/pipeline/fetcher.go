package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/sitescout/internal/browser"
	"github.com/ppiankov/sitescout/internal/fetch"
)

// PageLoader fetches the listing markup the selector synthesizer works on
type PageLoader struct {
	fetcher  *fetch.Fetcher
	browser  browser.Factory
	settle   time.Duration
	pageLoad time.Duration
	logger   *zap.Logger
}

// Page is a loaded listing page
type Page struct {
	URL      string
	FinalURL string
	HTML     string
	Rendered bool
}

// NewPageLoader creates a loader. A nil factory limits it to static fetches.
func NewPageLoader(fetcher *fetch.Fetcher, factory browser.Factory, pageLoad, settle time.Duration, logger *zap.Logger) *PageLoader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageLoader{
		fetcher:  fetcher,
		browser:  factory,
		settle:   settle,
		pageLoad: pageLoad,
		logger:   logger,
	}
}

// Load renders rawURL in the browser when one is configured and falls back
// to a plain GET when the browser cannot start or load the page
func (l *PageLoader) Load(ctx context.Context, rawURL string) (*Page, error) {
	if l.browser != nil {
		page, err := l.render(ctx, rawURL)
		if err == nil {
			return page, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		l.logger.Warn("browser load failed, using static fetch",
			zap.String("url", rawURL), zap.Error(err))
	}
	return l.static(ctx, rawURL)
}

func (l *PageLoader) render(ctx context.Context, rawURL string) (*Page, error) {
	if l.pageLoad > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.pageLoad)
		defer cancel()
	}

	driver, err := l.browser(ctx)
	if err != nil {
		return nil, fmt.Errorf("open browser: %w", err)
	}
	defer func() { _ = driver.Close() }()

	if err := driver.Navigate(ctx, rawURL); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}
	if err := driver.WaitIdle(ctx, 500*time.Millisecond); err != nil {
		return nil, fmt.Errorf("wait idle: %w", err)
	}
	if l.settle > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.settle):
		}
	}

	html, err := driver.HTML(ctx)
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	final, err := driver.URL(ctx)
	if err != nil || final == "" {
		final = rawURL
	}
	return &Page{URL: rawURL, FinalURL: final, HTML: html, Rendered: true}, nil
}

func (l *PageLoader) static(ctx context.Context, rawURL string) (*Page, error) {
	resp, err := l.fetcher.Get(ctx, rawURL, fetch.AcceptHTML)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return &Page{URL: rawURL, FinalURL: resp.FinalURL, HTML: string(resp.Body)}, nil
}
