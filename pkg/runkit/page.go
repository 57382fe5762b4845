package runkit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ppiankov/sitescout/internal/browser"
	"github.com/ppiankov/sitescout/internal/model"
)

// Page is the browser tab a browser-mode program paginates
type Page struct {
	driver browser.Driver
	quiet  time.Duration
}

// OpenPage starts a headless browser and loads url
func OpenPage(ctx context.Context, url string) (*Page, error) {
	cfg := model.DefaultConfig()
	driver, err := browser.NewChrome(browser.ChromeOptions{
		Headless:  true,
		UserAgent: cfg.HTTP.UserAgent,
	})
	if err != nil {
		return nil, err
	}
	p := NewPage(driver)
	if err := p.load(ctx, url); err != nil {
		_ = driver.Close()
		return nil, err
	}
	return p, nil
}

// NewPage wraps an already open driver
func NewPage(driver browser.Driver) *Page {
	return &Page{driver: driver, quiet: 500 * time.Millisecond}
}

func (p *Page) load(ctx context.Context, url string) error {
	if err := p.driver.Navigate(ctx, url); err != nil {
		return err
	}
	return p.settle(ctx, 0)
}

// settle waits for network idle (bounded) and then the extra delay
func (p *Page) settle(ctx context.Context, extra time.Duration) error {
	idleCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := p.driver.WaitIdle(idleCtx, p.quiet); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	if extra <= 0 {
		return nil
	}
	timer := time.NewTimer(extra)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Document parses the current DOM
func (p *Page) Document(ctx context.Context) (*goquery.Document, error) {
	html, err := p.driver.HTML(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc, nil
}

// ScrollToBottom scrolls and waits for new content
func (p *Page) ScrollToBottom(ctx context.Context, wait time.Duration) error {
	if err := p.driver.ScrollToBottom(ctx); err != nil {
		return err
	}
	return p.settle(ctx, wait)
}

// Click clicks selector and waits for new content
func (p *Page) Click(ctx context.Context, selector string, wait time.Duration) error {
	if err := p.driver.Click(ctx, selector); err != nil {
		return err
	}
	return p.settle(ctx, wait)
}

// Visible reports whether selector is rendered
func (p *Page) Visible(ctx context.Context, selector string) (bool, error) {
	return p.driver.Visible(ctx, selector)
}

// Enabled reports whether selector is rendered and not disabled
func (p *Page) Enabled(ctx context.Context, selector string) (bool, error) {
	return p.driver.Enabled(ctx, selector)
}

// Close closes the browser
func (p *Page) Close() error {
	return p.driver.Close()
}
