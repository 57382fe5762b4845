package investigate

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/ppiankov/sitescout/internal/browser"
	"github.com/ppiankov/sitescout/internal/model"
)

// maxScripts bounds how many external scripts the scan downloads
const maxScripts = 10

// candidate is an endpoint URL and the technique that proposed it
type candidate struct {
	URL       string
	Technique model.Technique
}

// apiPathPattern finds quoted API-looking paths in script bodies
var apiPathPattern = regexp.MustCompile(`["'\x60]((?:https?://[^"'\x60\s<>]+)?/(?:api|wp-json|rest|graphql|storefront|products\.json)(?:[/?][^"'\x60\s<>]*)?)["'\x60]`)

// knownPathCandidates expands a platform's known paths against the site root
func knownPathCandidates(base *url.URL, adapter Adapter) []candidate {
	var out []candidate
	for _, p := range adapter.KnownPaths() {
		out = append(out, candidate{URL: resolve(base, p), Technique: model.TechniqueKnownPath})
	}
	return out
}

// commonPathCandidates expands the fixed common-path list
func commonPathCandidates(base *url.URL) []candidate {
	out := make([]candidate, 0, len(CommonPaths))
	for _, p := range CommonPaths {
		out = append(out, candidate{URL: resolve(base, p), Technique: model.TechniqueCommonPath})
	}
	return out
}

// scriptScanner greps inline and same-origin script bodies for API paths
type scriptScanner struct {
	transport http.RoundTripper
	userAgent string
	timeout   time.Duration
	logger    *zap.Logger
}

// scan returns API-like same-origin paths referenced by the page's scripts
func (s *scriptScanner) scan(ctx context.Context, base *url.URL, page string) []candidate {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil
	}

	var (
		mu    sync.Mutex
		found []string
	)
	collect := func(body string) {
		paths := extractAPIPaths(base, body)
		mu.Lock()
		found = append(found, paths...)
		mu.Unlock()
	}

	var srcs []string
	doc.Find("script").Each(func(_ int, sel *goquery.Selection) {
		if src, ok := sel.Attr("src"); ok {
			if abs := resolve(base, src); sameOrigin(base, abs) && len(srcs) < maxScripts {
				srcs = append(srcs, abs)
			}
			return
		}
		collect(sel.Text())
	})

	if len(srcs) > 0 {
		s.fetchScripts(ctx, base, srcs, collect)
	}

	out := make([]candidate, 0, len(found))
	for _, u := range found {
		out = append(out, candidate{URL: u, Technique: model.TechniqueScriptScan})
	}
	return out
}

func (s *scriptScanner) fetchScripts(ctx context.Context, base *url.URL, srcs []string, collect func(string)) {
	collector := colly.NewCollector(
		colly.Async(true),
		colly.AllowedDomains(base.Hostname()),
		colly.UserAgent(s.userAgent),
	)
	collector.IgnoreRobotsTxt = true
	collector.SetRequestTimeout(s.timeout)
	if s.transport != nil {
		collector.WithTransport(s.transport)
	}
	_ = collector.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: 2})

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	collector.OnResponse(func(r *colly.Response) {
		collect(string(r.Body))
	})
	collector.OnError(func(r *colly.Response, err error) {
		s.logger.Debug("script fetch failed", zap.String("url", r.Request.URL.String()), zap.Error(err))
	})

	for _, src := range srcs {
		if err := collector.Visit(src); err != nil {
			s.logger.Debug("script visit skipped", zap.String("url", src), zap.Error(err))
		}
	}
	collector.Wait()
}

// extractAPIPaths returns the same-origin absolute URLs of API-looking
// paths in a script body. Templated strings and bare prefixes that are
// concatenated at runtime are skipped.
func extractAPIPaths(base *url.URL, body string) []string {
	var out []string
	for _, m := range apiPathPattern.FindAllStringSubmatch(body, -1) {
		raw := m[1]
		if strings.Contains(raw, "${") || strings.Contains(raw, "{{") || strings.HasSuffix(raw, "/") {
			continue
		}
		abs := resolve(base, raw)
		if sameOrigin(base, abs) {
			out = append(out, abs)
		}
	}
	return out
}

// captureNetwork loads the page in a browser, scrolls once and reports
// same-origin JSON responses
func captureNetwork(ctx context.Context, factory browser.Factory, target string, base *url.URL) ([]candidate, error) {
	driver, err := factory(ctx)
	if err != nil {
		return nil, err
	}
	defer driver.Close()

	if err := driver.Navigate(ctx, target); err != nil {
		return nil, err
	}
	_ = driver.WaitIdle(ctx, 500*time.Millisecond)
	if err := driver.ScrollToBottom(ctx); err == nil {
		_ = driver.WaitIdle(ctx, 500*time.Millisecond)
	}

	var out []candidate
	for _, resp := range driver.Responses() {
		if resp.IsJSON() && sameOrigin(base, resp.URL) {
			out = append(out, candidate{URL: resp.URL, Technique: model.TechniqueNetworkCapture})
		}
	}
	return out, nil
}

// dedupe keeps the first occurrence of each URL
func dedupe(in []candidate) []candidate {
	seen := make(map[string]bool, len(in))
	out := make([]candidate, 0, len(in))
	for _, c := range in {
		if seen[c.URL] {
			continue
		}
		seen[c.URL] = true
		out = append(out, c)
	}
	return out
}

func resolve(base *url.URL, ref string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

func sameOrigin(base *url.URL, raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, base.Host) && (u.Scheme == "http" || u.Scheme == "https")
}
