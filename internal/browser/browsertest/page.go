// Package browsertest provides a scripted in-memory browser.Driver
package browsertest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/ppiankov/sitescout/internal/browser"
)

// State is one snapshot of the page. Transition targets are indexes into
// Page.States; zero means "stay on the current state".
type State struct {
	URL       string
	HTML      string
	OnScroll  int
	OnClick   map[string]int
	Responses []browser.Response // captured when the state is entered
}

// Page is a deterministic browser.Driver over a list of states
type Page struct {
	States []State

	mu       sync.Mutex
	current  int
	captured []browser.Response
	actions  []string
	closed   bool
}

var _ browser.Driver = (*Page)(nil)

// NewPage builds a page starting at state 0
func NewPage(states ...State) *Page {
	return &Page{States: states}
}

// Actions returns the recorded action log ("navigate", "scroll", "click:<sel>")
func (p *Page) Actions() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.actions...)
}

// Current returns the index of the current state
func (p *Page) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Page) enter(idx int) {
	p.current = idx
	p.captured = append(p.captured, p.States[idx].Responses...)
}

func (p *Page) doc() (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(p.States[p.current].HTML))
}

// Navigate resets to the first state whose URL matches, else state 0
func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return fmt.Errorf("navigate %s: page closed", url)
	}
	p.actions = append(p.actions, "navigate")
	target := 0
	for i, s := range p.States {
		if s.URL == url {
			target = i
			break
		}
	}
	p.enter(target)
	return nil
}

// WaitIdle returns immediately unless ctx is done
func (p *Page) WaitIdle(ctx context.Context, quiet time.Duration) error {
	return ctx.Err()
}

// HTML returns the current snapshot
func (p *Page) HTML(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.States[p.current].HTML, nil
}

// URL returns the current state's URL
func (p *Page) URL(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.States[p.current].URL, nil
}

// Count counts matches in the current snapshot
func (p *Page) Count(ctx context.Context, selector string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	doc, err := p.doc()
	if err != nil {
		return 0, err
	}
	return doc.Find(selector).Length(), nil
}

// Visible treats hidden attributes and display:none styles as invisible
func (p *Page) Visible(ctx context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel, err := p.first(selector)
	if err != nil || sel == nil {
		return false, err
	}
	return visible(sel), nil
}

// Enabled additionally rejects disabled controls
func (p *Page) Enabled(ctx context.Context, selector string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sel, err := p.first(selector)
	if err != nil || sel == nil {
		return false, err
	}
	if !visible(sel) {
		return false, nil
	}
	if _, ok := sel.Attr("disabled"); ok {
		return false, nil
	}
	if v, _ := sel.Attr("aria-disabled"); v == "true" {
		return false, nil
	}
	return !sel.HasClass("disabled"), nil
}

// Click follows the state's OnClick transition for selector
func (p *Page) Click(ctx context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actions = append(p.actions, "click:"+selector)
	sel, err := p.first(selector)
	if err != nil {
		return err
	}
	if sel == nil {
		return fmt.Errorf("click %s: no such element", selector)
	}
	if next := p.States[p.current].OnClick[selector]; next != 0 {
		p.enter(next)
	}
	return nil
}

// ScrollToBottom follows the state's OnScroll transition
func (p *Page) ScrollToBottom(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.actions = append(p.actions, "scroll")
	if next := p.States[p.current].OnScroll; next != 0 {
		p.enter(next)
	}
	return nil
}

// Responses returns the responses captured since the last reset
func (p *Page) Responses() []browser.Response {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]browser.Response(nil), p.captured...)
}

// ResetResponses clears captured responses
func (p *Page) ResetResponses() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.captured = nil
}

// Close marks the page closed
func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *Page) first(selector string) (*goquery.Selection, error) {
	doc, err := p.doc()
	if err != nil {
		return nil, err
	}
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil, nil
	}
	return sel, nil
}

func visible(sel *goquery.Selection) bool {
	for s := sel; s.Length() > 0; s = s.Parent() {
		if _, hidden := s.Attr("hidden"); hidden {
			return false
		}
		style, _ := s.Attr("style")
		compact := strings.ReplaceAll(strings.ToLower(style), " ", "")
		if strings.Contains(compact, "display:none") || strings.Contains(compact, "visibility:hidden") {
			return false
		}
	}
	return true
}
