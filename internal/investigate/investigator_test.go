package investigate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/sitescout/internal/cache"
	"github.com/ppiankov/sitescout/internal/fetch"
	"github.com/ppiankov/sitescout/internal/model"
	"github.com/ppiankov/sitescout/internal/worker"
	"github.com/ppiankov/sitescout/pkg/runkit"
)

const target = "https://shop.example/"

const shopifyPage = `<html><head>
<link rel="stylesheet" href="https://cdn.shopify.com/s/files/theme.css">
<script>Shopify.theme = {"name":"Dawn"};</script>
</head><body><div id="shopify-section-main" class="shopify-section">Products</div></body></html>`

const shopifyProducts = `{"products":[{"id":1,"title":"Lamp","handle":"lamp","body_html":"<p>Warm</p>",
"variants":[{"price":"19.99"}],"images":[{"src":"https://cdn.shopify.com/lamp.jpg"}],"vendor":"Acme"}]}`

// shopifyCatalog renders products first+1 through first+n as a products.json page
func shopifyCatalog(first, n int) string {
	products := make([]string, 0, n)
	for id := first + 1; id <= first+n; id++ {
		products = append(products, fmt.Sprintf(`{"id":%d,"title":"Lamp %d","handle":"lamp-%d","body_html":"<p>Warm</p>",`+
			`"variants":[{"price":"%d.99"}],"images":[{"src":"https://cdn.shopify.com/lamp-%d.jpg"}],"vendor":"Acme"}`, id, id, id, 10+id, id))
	}
	return `{"products":[` + strings.Join(products, ",") + `]}`
}

func newTestInvestigator(t *testing.T, transport *httpmock.MockTransport, respectRobots bool, artifacts *cache.Artifacts) *Investigator {
	t.Helper()
	fetcher := fetch.NewFetcher(model.HTTPConfig{Timeout: 5 * time.Second, UserAgent: "sitescout-test/1.0"}, nil)
	fetcher.SetTransport(transport)

	cfg := model.DefaultConfig().Investigate
	cfg.RateLimit = 0
	return New(fetcher, Options{Config: cfg, RespectRobots: respectRobots, Artifacts: artifacts})
}

func jsonResponder(status int, body string, header ...string) httpmock.Responder {
	return func(req *http.Request) (*http.Response, error) {
		resp := httpmock.NewStringResponse(status, body)
		resp.Header.Set("Content-Type", "application/json; charset=utf-8")
		for i := 0; i+1 < len(header); i += 2 {
			resp.Header.Set(header[i], header[i+1])
		}
		return resp, nil
	}
}

func htmlResponder(status int, body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(status, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

func notFound() httpmock.Responder {
	return httpmock.NewStringResponder(http.StatusNotFound, "")
}

func TestInvestigateShopifyKnownPath(t *testing.T) {
	// 50 products served 30 per page
	transport := httpmock.NewMockTransport()
	transport.RegisterNoResponder(notFound())
	transport.RegisterResponder("GET", target, htmlResponder(200, shopifyPage))
	transport.RegisterResponder("GET", "https://shop.example/products.json",
		jsonResponder(200, shopifyCatalog(0, 30), "Link", `<https://shop.example/products.json?page=2>; rel="next"`))
	transport.RegisterResponderWithQuery("GET", "https://shop.example/products.json", "page=2",
		jsonResponder(200, shopifyCatalog(30, 20)))
	transport.RegisterResponderWithQuery("GET", "https://shop.example/products.json", "page=3",
		jsonResponder(200, shopifyCatalog(50, 0)))

	inv := newTestInvestigator(t, transport, false, nil)
	report, err := inv.Investigate(context.Background(), target)
	require.NoError(t, err)

	assert.Equal(t, model.PlatformShopify, report.PlatformDetected)
	assert.Equal(t, 0.75, report.PlatformConfidence)
	assert.Equal(t, model.StrategyAPI, report.RecommendedStrategy)
	assert.Equal(t, 0.9, report.ConfidenceScore)
	assert.False(t, report.AntiBot.Detected)
	assert.Empty(t, report.Error)

	require.Len(t, report.DiscoveredEndpoints, 1)
	ep := report.DiscoveredEndpoints[0]
	assert.Equal(t, "https://shop.example/products.json", ep.URL)
	assert.Equal(t, model.TierHigh, ep.Confidence)
	assert.Equal(t, model.TechniqueKnownPath, ep.Technique)
	assert.True(t, ep.PaginationDetected)
	assert.Equal(t, []string{"body_html", "handle", "id", "images", "title", "variants", "vendor"}, ep.SampleFields)

	assert.Contains(t, report.Metadata.TechniquesUsed, model.TechniqueScriptScan)
	assert.NotContains(t, report.Metadata.TechniquesUsed, model.TechniqueNetworkCapture)
	// products.json is proposed by both the known and common path lists
	assert.Equal(t, 5, report.Metadata.EndpointsProbed)

	// The endpoint pages through the whole catalog the way an API program does
	client := runkit.NewClient()
	client.SetTransport(transport)
	sess := runkit.NewSession(target, runkit.MethodAPI, string(model.PaginationAPI), 1)
	pages := 0
	for page := 1; page <= 5; page++ {
		body, err := client.GetJSON(context.Background(), runkit.PageURL(ep.URL, "page", page))
		require.NoError(t, err)
		records, err := runkit.Records(body)
		require.NoError(t, err)
		if len(records) == 0 {
			break
		}
		pages++
		for _, raw := range records {
			item, err := runkit.MapShopify(raw, target)
			require.NoError(t, err)
			sess.Add(item)
		}
		sess.PageDone(len(records))
	}
	assert.Equal(t, 2, pages)
	assert.Equal(t, 50, sess.Count())
}

func TestPageLoadBudgetSeparateFromProbes(t *testing.T) {
	fetcher := fetch.NewFetcher(model.DefaultConfig().HTTP, nil)
	inv := New(fetcher, Options{Config: model.InvestigateConfig{ProbeTimeout: 10 * time.Second}})
	assert.Equal(t, 30*time.Second, inv.cfg.PageLoad)
	assert.Equal(t, 10*time.Second, inv.cfg.ProbeTimeout)
	assert.GreaterOrEqual(t, model.DefaultConfig().HTTP.Timeout, inv.cfg.PageLoad)
}

func TestInvestigateScriptScan(t *testing.T) {
	page := `<html><body><div class="grid"></div>
<script src="/assets/app.js"></script>
<script src="https://cdn.other.example/lib.js"></script>
</body></html>`
	script := `const feed = fetch("/api/catalog/items?per_page=24"); const tpl = "/api/${id}";`

	transport := httpmock.NewMockTransport()
	transport.RegisterNoResponder(notFound())
	transport.RegisterResponder("GET", target, htmlResponder(200, page))
	transport.RegisterResponder("GET", "https://shop.example/assets/app.js", httpmock.NewStringResponder(200, script))
	transport.RegisterResponder("GET", "https://shop.example/api/catalog/items?per_page=24",
		jsonResponder(200, `{"items":[{"name":"Chair","amount":40}],"has_more":true}`))

	inv := newTestInvestigator(t, transport, false, nil)
	report, err := inv.Investigate(context.Background(), target)
	require.NoError(t, err)

	assert.Equal(t, model.PlatformCustom, report.PlatformDetected)
	assert.Equal(t, 0.0, report.PlatformConfidence)
	require.Len(t, report.DiscoveredEndpoints, 1)
	ep := report.DiscoveredEndpoints[0]
	assert.Equal(t, model.TechniqueScriptScan, ep.Technique)
	assert.Equal(t, model.TierMedium, ep.Confidence)
	assert.True(t, ep.PaginationDetected)
	assert.Equal(t, model.StrategyAPI, report.RecommendedStrategy)
	assert.Equal(t, 0.6, report.ConfidenceScore)

	info := transport.GetCallCountInfo()
	assert.Zero(t, info["GET https://cdn.other.example/lib.js"])
}

func TestInvestigateCaptchaForcesBrowser(t *testing.T) {
	page := shopifyPage + `<div class="g-recaptcha" data-sitekey="x"></div>`

	transport := httpmock.NewMockTransport()
	transport.RegisterNoResponder(notFound())
	transport.RegisterResponder("GET", target, htmlResponder(200, page))
	transport.RegisterResponder("GET", "https://shop.example/products.json", jsonResponder(200, shopifyProducts))

	report, err := newTestInvestigator(t, transport, false, nil).Investigate(context.Background(), target)
	require.NoError(t, err)

	assert.True(t, report.AntiBot.Detected)
	assert.Contains(t, report.AntiBot.Signals, "captcha:g-recaptcha")
	assert.Equal(t, model.StrategyBrowser, report.RecommendedStrategy)
	assert.Equal(t, 0.3, report.ConfidenceScore)
	assert.Len(t, report.DiscoveredEndpoints, 1)
}

func TestInvestigatePersistent403(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterNoResponder(notFound())
	transport.RegisterResponder("GET", target, htmlResponder(http.StatusForbidden, "<html>denied</html>"))

	report, err := newTestInvestigator(t, transport, false, nil).Investigate(context.Background(), target)
	require.NoError(t, err)

	assert.True(t, report.AntiBot.Detected)
	assert.Equal(t, []string{"persistent_403"}, report.AntiBot.Signals)
	assert.Equal(t, model.StrategyBrowser, report.RecommendedStrategy)
	assert.Equal(t, 2, transport.GetCallCountInfo()["GET "+target])
}

func TestInvestigateUnreachable(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterNoResponder(httpmock.NewErrorResponder(errors.New("dial tcp: connection refused")))

	report, err := newTestInvestigator(t, transport, false, nil).Investigate(context.Background(), target)
	require.Error(t, err)

	var netErr *model.NetworkError
	assert.True(t, errors.As(err, &netErr))
	require.NotNil(t, report)
	assert.Equal(t, model.KindNetworkUnreachable, report.Error)
	assert.Empty(t, report.DiscoveredEndpoints)
}

func TestInvestigateRobotsAndRateLimit(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterNoResponder(notFound())
	transport.RegisterResponder("GET", target, htmlResponder(200, shopifyPage))
	transport.RegisterResponder("GET", "https://shop.example/robots.txt",
		httpmock.NewStringResponder(200, "User-agent: *\nDisallow: /api/\n"))
	transport.RegisterResponder("GET", "https://shop.example/products.json",
		jsonResponder(http.StatusTooManyRequests, `{}`, "Retry-After", "3600"))

	report, err := newTestInvestigator(t, transport, true, nil).Investigate(context.Background(), target)
	require.NoError(t, err)
	assert.Empty(t, report.DiscoveredEndpoints)

	kinds := map[string]int{}
	for _, pe := range report.ProbeErrors {
		kinds[pe.Kind]++
	}
	assert.Equal(t, 3, kinds[model.KindRobotsDisallowed])
	assert.Equal(t, 1, kinds[model.KindRateLimited])
	assert.Zero(t, transport.GetCallCountInfo()["GET https://shop.example/api/products"])
}

func TestInvestigateUsesCache(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterNoResponder(notFound())
	transport.RegisterResponder("GET", target, htmlResponder(200, shopifyPage))

	artifacts := cache.NewArtifacts(cache.NewMemoryCache(time.Minute, time.Minute), time.Minute, nil)
	inv := newTestInvestigator(t, transport, false, artifacts)

	first, err := inv.Investigate(context.Background(), target)
	require.NoError(t, err)
	second, err := inv.Investigate(context.Background(), target)
	require.NoError(t, err)

	assert.Equal(t, first.PlatformDetected, second.PlatformDetected)
	assert.Equal(t, 1, transport.GetCallCountInfo()["GET "+target])
}

func TestRegistryDetect(t *testing.T) {
	registry := NewRegistry()

	adapter, confidence := registry.Detect(`<meta name="generator" content="WordPress 6.4"><link href="/wp-content/themes/x.css"><script src="/wp-includes/js/a.js"></script>`, nil)
	assert.Equal(t, model.PlatformWordPress, adapter.Platform())
	assert.Equal(t, 0.75, confidence)

	adapter, _ = registry.Detect(`<div data-mage-init='{}'><script src="/static/version123/mage/cookies.js">`, nil)
	assert.Equal(t, model.PlatformMagento, adapter.Platform())

	adapter, confidence = registry.Detect(`<html><body>plain</body></html>`, http.Header{"Server": {"nginx"}})
	assert.Equal(t, model.PlatformCustom, adapter.Platform())
	assert.Equal(t, 0.0, confidence)
	assert.Empty(t, adapter.KnownPaths())
}

func TestClassifyEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		tier       model.Tier
		pagination bool
	}{
		{"all groups", `[{"name":"a","price":1,"thumbnail":"x"}]`, model.TierHigh, false},
		{"two groups", `{"data":[{"title":"a","prices":{}}],"next_page":2}`, model.TierMedium, true},
		{"one group", `{"results":[{"title":"a"}],"meta":{"cursor":"abc"}}`, model.TierLow, true},
		{"no records", `{"status":"ok"}`, model.TierLow, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep := classifyEndpoint([]byte(tt.body))
			assert.Equal(t, tt.tier, ep.Confidence)
			assert.Equal(t, tt.pagination, ep.PaginationDetected)
		})
	}
}

func TestExtractAPIPaths(t *testing.T) {
	base, _ := url.Parse("https://shop.example/catalog")
	body := `a("/api/products?page=1"); b('https://shop.example/wp-json/wp/v2/product');
c("https://evil.example/api/x"); d("/api/" + id); e("/static/app.css"); f(` + "`/rest/items`" + `)`

	got := extractAPIPaths(base, body)
	assert.Equal(t, []string{
		"https://shop.example/api/products?page=1",
		"https://shop.example/wp-json/wp/v2/product",
		"https://shop.example/rest/items",
	}, got)
}

func TestHasNextLink(t *testing.T) {
	assert.True(t, hasNextLink(`<https://a/p?page=2>; rel="next", <https://a/p?page=9>; rel="last"`))
	assert.False(t, hasNextLink(`<https://a/p?page=1>; rel="prev"`))
	assert.False(t, hasNextLink(""))
}

func TestValidatorAppliesCrawlDelay(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterNoResponder(notFound())
	transport.RegisterResponder("GET", "https://shop.example/robots.txt",
		httpmock.NewStringResponder(200, "User-agent: *\nCrawl-delay: 2\n"))
	transport.RegisterResponder("GET", "https://shop.example/products.json", jsonResponder(200, shopifyProducts))

	fetcher := fetch.NewFetcher(model.HTTPConfig{Timeout: 5 * time.Second, UserAgent: "sitescout-test/1.0"}, nil)
	fetcher.SetTransport(transport)
	limiter := worker.NewLimiter(0, 5)
	v := &validator{
		fetcher:      fetcher,
		robots:       fetch.NewRobotsChecker(fetcher.Client(), fetcher.UserAgent()),
		limiter:      limiter,
		maxWorkers:   1,
		probeTimeout: 5 * time.Second,
	}

	results := v.validate(context.Background(), []candidate{{URL: "https://shop.example/products.json", Technique: model.TechniqueKnownPath}})
	require.Len(t, results, 1)
	require.NotNil(t, results[0].endpoint)

	// The probe spent the single token the crawl delay allows
	assert.False(t, limiter.Allow("https://shop.example/products.json?page=2"))
	assert.True(t, limiter.Allow("https://other.example/"))
}
