package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ChromeOptions configures a Chrome driver
type ChromeOptions struct {
	ExecPath  string
	Headless  bool
	UserAgent string
	Logger    *zap.Logger
}

// Chrome drives a headless Chrome tab through the DevTools protocol
type Chrome struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	logger      *zap.Logger

	mu        sync.Mutex
	inflight  map[network.RequestID]time.Time // request start, redirects keep the first
	pending   map[network.RequestID]Response
	responses []Response
}

// staleRequest is how long a request may stay open before WaitIdle stops
// waiting for it (long polling, beacons)
const staleRequest = 10 * time.Second

// NewChrome starts a browser and opens one tab with network capture enabled
func NewChrome(opts ChromeOptions) (*Chrome, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	c := &Chrome{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		logger:      logger,
		inflight:    make(map[network.RequestID]time.Time),
		pending:     make(map[network.RequestID]Response),
	}

	chromedp.ListenTarget(tabCtx, c.onEvent)

	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: start browser: %v", ErrUnavailable, err)
	}

	return c, nil
}

// NewChromeFactory returns a Factory that starts a fresh browser per call
func NewChromeFactory(opts ChromeOptions) Factory {
	return func(ctx context.Context) (Driver, error) {
		return NewChrome(opts)
	}
}

func (c *Chrome) onEvent(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		c.mu.Lock()
		// A redirect reuses the RequestID of the request it continues
		if _, ok := c.inflight[e.RequestID]; !ok {
			c.inflight[e.RequestID] = time.Now()
		}
		c.mu.Unlock()
	case *network.EventResponseReceived:
		if e.Response == nil {
			return
		}
		c.mu.Lock()
		c.pending[e.RequestID] = Response{
			URL:      e.Response.URL,
			Status:   int(e.Response.Status),
			MimeType: e.Response.MimeType,
		}
		c.mu.Unlock()
	case *network.EventLoadingFinished:
		c.mu.Lock()
		delete(c.inflight, e.RequestID)
		resp, ok := c.pending[e.RequestID]
		delete(c.pending, e.RequestID)
		c.mu.Unlock()
		if ok && resp.IsJSON() {
			// Listener callbacks must not block on the protocol
			go c.captureBody(e.RequestID, resp)
		}
	case *network.EventLoadingFailed:
		c.mu.Lock()
		delete(c.inflight, e.RequestID)
		delete(c.pending, e.RequestID)
		c.mu.Unlock()
	}
}

func (c *Chrome) captureBody(id network.RequestID, resp Response) {
	err := chromedp.Run(c.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		body, err := network.GetResponseBody(id).Do(ctx)
		if err != nil {
			return err
		}
		resp.Body = body
		return nil
	}))
	if err != nil {
		c.logger.Debug("response body unavailable", zap.String("url", resp.URL), zap.Error(err))
	}

	c.mu.Lock()
	c.responses = append(c.responses, resp)
	c.mu.Unlock()
}

// run executes actions on the tab, bounded by the caller's context
func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(c.ctx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// Navigate loads a URL
func (c *Chrome) Navigate(ctx context.Context, url string) error {
	if err := c.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// busy reports whether any request started within staleRequest of now is open
func (c *Chrome) busy(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, started := range c.inflight {
		if now.Sub(started) < staleRequest {
			return true
		}
	}
	return false
}

// WaitIdle polls the open requests until none has been in flight for quiet
func (c *Chrome) WaitIdle(ctx context.Context, quiet time.Duration) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var idleSince time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if c.busy(now) {
				idleSince = time.Time{}
				continue
			}
			if idleSince.IsZero() {
				idleSince = now
			}
			if now.Sub(idleSince) >= quiet {
				return nil
			}
		}
	}
}

// HTML returns the serialized document
func (c *Chrome) HTML(ctx context.Context) (string, error) {
	var html string
	if err := c.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return html, nil
}

// URL returns the current location
func (c *Chrome) URL(ctx context.Context) (string, error) {
	var loc string
	if err := c.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

// Count returns the number of elements matching selector
func (c *Chrome) Count(ctx context.Context, selector string) (int, error) {
	var n int
	script := fmt.Sprintf(`document.querySelectorAll(%s).length`, jsString(selector))
	if err := c.run(ctx, chromedp.Evaluate(script, &n)); err != nil {
		return 0, fmt.Errorf("count %s: %w", selector, err)
	}
	return n, nil
}

const visibleJS = `(function(sel){
  var el = document.querySelector(sel);
  if (!el) return false;
  var st = window.getComputedStyle(el);
  return el.offsetParent !== null && st.visibility !== 'hidden' && st.display !== 'none';
})(%s)`

const enabledJS = `(function(sel){
  var el = document.querySelector(sel);
  if (!el || el.offsetParent === null) return false;
  if (el.disabled || el.getAttribute('aria-disabled') === 'true') return false;
  return !el.classList.contains('disabled');
})(%s)`

// Visible reports whether the first matching element is rendered
func (c *Chrome) Visible(ctx context.Context, selector string) (bool, error) {
	var ok bool
	if err := c.run(ctx, chromedp.Evaluate(fmt.Sprintf(visibleJS, jsString(selector)), &ok)); err != nil {
		return false, fmt.Errorf("visible %s: %w", selector, err)
	}
	return ok, nil
}

// Enabled reports whether the first matching element is rendered and clickable
func (c *Chrome) Enabled(ctx context.Context, selector string) (bool, error) {
	var ok bool
	if err := c.run(ctx, chromedp.Evaluate(fmt.Sprintf(enabledJS, jsString(selector)), &ok)); err != nil {
		return false, fmt.Errorf("enabled %s: %w", selector, err)
	}
	return ok, nil
}

// Click clicks the first matching element
func (c *Chrome) Click(ctx context.Context, selector string) error {
	var clicked bool
	script := fmt.Sprintf(`(function(sel){
  var el = document.querySelector(sel);
  if (!el) return false;
  el.scrollIntoView({block: 'center'});
  el.click();
  return true;
})(%s)`, jsString(selector))
	if err := c.run(ctx, chromedp.Evaluate(script, &clicked)); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	if !clicked {
		return fmt.Errorf("click %s: no such element", selector)
	}
	return nil
}

// ScrollToBottom scrolls the window to the end of the document
func (c *Chrome) ScrollToBottom(ctx context.Context) error {
	return c.run(ctx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil))
}

// Responses returns a copy of the captured JSON responses
func (c *Chrome) Responses() []Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Response, len(c.responses))
	copy(out, c.responses)
	return out
}

// ResetResponses clears the captured responses
func (c *Chrome) ResetResponses() {
	c.mu.Lock()
	c.responses = nil
	c.mu.Unlock()
}

// Close shuts the tab and the browser
func (c *Chrome) Close() error {
	c.cancelTab()
	c.cancelAlloc()
	return nil
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
