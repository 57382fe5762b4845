package selector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/sitescout/internal/cache"
	"github.com/ppiankov/sitescout/internal/model"
)

// listingPage renders n product cards; cards at indexes in unpriced show a
// non-numeric price label
func listingPage(n int, unpriced ...int) string {
	skip := make(map[int]bool)
	for _, i := range unpriced {
		skip[i] = true
	}
	var b strings.Builder
	b.WriteString(`<html><head><title>Shop</title><script>var x = 1;</script></head><body>`)
	b.WriteString(`<nav><ul class="menu"><li class="menu-entry"><a href="/">Home</a></li><li class="menu-entry"><a href="/sale">Sale</a></li></ul></nav>`)
	b.WriteString(`<main><p class="count">Showing 1-24 of 96 products</p><div class="grid">`)
	for i := 0; i < n; i++ {
		price := fmt.Sprintf("$%d.99", 10+i)
		if skip[i] {
			price = "Call for price"
		}
		fmt.Fprintf(&b, `<div class="product-card" data-product-id="sku-%d">`+
			`<a class="card-link" href="/products/item-%d"><img src="/img/%d.jpg" alt=""></a>`+
			`<h3 class="card-heading">Handmade Item %d</h3>`+
			`<span class="price">%s</span>`+
			`<p class="description">A carefully crafted piece number %d for your home.</p>`+
			`</div>`, i, i, i, i, price, i)
	}
	b.WriteString(`</div></main></body></html>`)
	return b.String()
}

func parse(t *testing.T, page string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)
	return doc
}

func TestDetectContainerPrefersKeywordGroup(t *testing.T) {
	doc := parse(t, listingPage(24, 23))

	best, candidates, largest := DetectContainer(doc)
	require.NotNil(t, best)
	assert.Equal(t, "div.product-card", best.Selector)
	assert.Equal(t, 24, best.Count)
	assert.True(t, best.Keyword)
	assert.True(t, best.Identical)
	assert.Equal(t, float64(24+keywordBonus+identicalBonus), best.Score)
	assert.GreaterOrEqual(t, largest, 24)

	for _, c := range candidates {
		assert.GreaterOrEqual(t, c.Count, MinGroupSize)
		assert.NotEqual(t, "li.menu-entry", c.Selector)
	}
}

func TestDetectContainerCapsCount(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 80; i++ {
		b.WriteString(`<div class="row"><span class="cell">x</span></div>`)
	}
	b.WriteString("</body></html>")

	best, _, _ := DetectContainer(parse(t, b.String()))
	require.NotNil(t, best)
	assert.Equal(t, "div.row", best.Selector)
	assert.Equal(t, float64(countCap+identicalBonus), best.Score)
}

func TestDetectContainerTieBreaksLexically(t *testing.T) {
	page := `<html><body>
		<div class="alpha">a</div><div class="alpha">a</div><div class="alpha">a</div>
		<div class="beta">b</div><div class="beta">b</div><div class="beta">b</div>
	</body></html>`
	best, _, _ := DetectContainer(parse(t, page))
	require.NotNil(t, best)
	assert.Equal(t, "div.alpha", best.Selector)
}

func TestDetectContainerCountsExactSignature(t *testing.T) {
	page := `<html><body>
		<div class="card"><h3>a</h3></div><div class="card"><h3>b</h3></div><div class="card"><h3>c</h3></div>
		<div class="card featured"><h3>d</h3></div><div class="card featured"><h3>e</h3></div>
		<div class="card featured"><h3>f</h3></div><div class="card featured"><h3>g</h3></div>
	</body></html>`

	best, candidates, largest := DetectContainer(parse(t, page))
	require.NotNil(t, best)
	assert.Equal(t, 7, largest)

	counts := map[string]int{}
	for _, c := range candidates {
		counts[c.Selector] = c.Count
	}
	assert.Equal(t, 3, counts["div.card"])
	assert.Equal(t, 4, counts["div.card.featured"])
	assert.Equal(t, "div.card.featured", best.Selector)
}

func TestHasSemanticKeyword(t *testing.T) {
	assert.True(t, hasSemanticKeyword("li.product"))
	assert.True(t, hasSemanticKeyword("div.search-results"))
	assert.True(t, hasSemanticKeyword("article.listing_tile"))
	assert.False(t, hasSemanticKeyword("span.product-card__price"))
	assert.False(t, hasSemanticKeyword("div.producten"))
	assert.False(t, hasSemanticKeyword("div:not([class])"))
}

func TestSynthesizeListing(t *testing.T) {
	result, err := Synthesize("https://shop.example/catalog", listingPage(24, 23))
	require.NoError(t, err)

	assert.Equal(t, "div.product-card", result.ItemContainerSelector)
	assert.Equal(t, 24, result.TotalItemsFound)
	assert.Empty(t, result.UnresolvedFields)

	title := result.FieldSelectors[model.FieldTitle]
	assert.Equal(t, "h3.card-heading", title.Primary)
	assert.Equal(t, "h3", title.Fallback)
	assert.Equal(t, 1.0, title.Confidence)
	assert.Equal(t, model.TierHigh, title.Tier)
	assert.Equal(t, model.ModeText, title.ExtractionMode)

	price := result.FieldSelectors[model.FieldPrice]
	assert.Equal(t, "span.price", price.Primary)
	assert.Equal(t, "span", price.Fallback)
	assert.InDelta(t, 23.0/24.0, price.Confidence, 1e-9)
	assert.Equal(t, model.TierHigh, price.Tier)
	assert.Equal(t, model.ModeText, price.ExtractionMode)

	images := result.FieldSelectors[model.FieldImages]
	assert.Equal(t, "img", images.Primary)
	assert.NotEqual(t, images.Primary, images.Fallback)

	desc := result.FieldSelectors[model.FieldDescription]
	assert.Equal(t, "p.description", desc.Primary)

	link := result.FieldSelectors[model.FieldURL]
	assert.Equal(t, "a.card-link", link.Primary)
	assert.Equal(t, model.ModeAttribute, link.ExtractionMode)
	assert.Equal(t, "href", link.Attribute)

	assert.Equal(t, validateLimit, title.Validation.Sampled)
	assert.Equal(t, 1.0, title.Validation.Accuracy)
}

func TestSynthesizePrefersPriceAttribute(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body><ul>")
	for i := 0; i < 6; i++ {
		fmt.Fprintf(&b, `<li class="item"><h2>Lamp %d</h2><span data-price="%d.50">from €%d,50</span></li>`, i, 20+i, 20+i)
	}
	b.WriteString("</ul></body></html>")

	result, err := Synthesize("https://shop.example/", b.String())
	require.NoError(t, err)

	price := result.FieldSelectors[model.FieldPrice]
	assert.Equal(t, model.ModeAttribute, price.ExtractionMode)
	assert.Equal(t, "data-price", price.Attribute)
	assert.Contains(t, result.UnresolvedFields, model.FieldImages)
}

func TestSynthesizeNoRepeatingPattern(t *testing.T) {
	page := `<html><body><div class="hero"><h1>Welcome</h1><p>Nothing to list.</p></div></body></html>`

	result, err := Synthesize("https://shop.example/about", page)
	require.Error(t, err)

	var perr *model.NoRepeatingPatternError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, model.KindNoRepeatingPattern, perr.Kind())
	require.NotNil(t, result)
	assert.NotEmpty(t, result.Error)
	assert.Empty(t, result.ItemContainerSelector)
}

func TestSynthesizerCachesSelectorMaps(t *testing.T) {
	artifacts := cache.NewArtifacts(cache.NewMemoryCache(time.Minute, time.Minute), time.Minute, nil)
	s := NewSynthesizer(nil, artifacts)
	ctx := context.Background()

	first, err := s.Synthesize(ctx, "https://shop.example/catalog", listingPage(12))
	require.NoError(t, err)

	// A different body for the same URL is served from cache
	second, err := s.Synthesize(ctx, "https://shop.example/catalog", "<html></html>")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	second.ItemContainerSelector = "mutated"
	third, err := s.Synthesize(ctx, "https://shop.example/catalog", "")
	require.NoError(t, err)
	assert.Equal(t, "div.product-card", third.ItemContainerSelector)
}

func TestDeriveFallback(t *testing.T) {
	tests := []struct {
		primary string
		field   string
		want    string
	}{
		{"span.price.sale", model.FieldPrice, "span.price"},
		{"span.price", model.FieldPrice, "span"},
		{".price", model.FieldPrice, `[class*="price"]`},
		{".card-title.large", model.FieldTitle, ".card-title"},
		{"[data-price]", model.FieldPrice, `[class*="price"]`},
		{"h3", model.FieldTitle, `[class*="title"]`},
		{"img", model.FieldImages, `[class*="image"] img`},
		{"a[href]", model.FieldURL, "a"},
		{".product-image img", model.FieldImages, "img"},
		{"div.info > h2.name", model.FieldTitle, "h2.name"},
		{`[class*="title"]`, model.FieldTitle, "h1, h2, h3, h4"},
	}
	for _, tt := range tests {
		t.Run(tt.primary, func(t *testing.T) {
			got := DeriveFallback(tt.primary, tt.field)
			assert.Equal(t, tt.want, got)
			assert.NotEqual(t, tt.primary, got)
		})
	}
}

func TestElementSelector(t *testing.T) {
	page := `<html><body>
		<button id="more">More</button>
		<div class="pager"><a class="btn" data-action="next-page" href="?page=2">Next</a><a class="btn" href="?page=3">3</a></div>
		<nav class="bottom"><span class="label">Page</span></nav>
		<ul class="crumbs"><li><span class="label">Shop</span></li></ul>
	</body></html>`
	doc := parse(t, page)

	assert.Equal(t, "#more", ElementSelector(doc, doc.Find("button").First()))
	assert.Equal(t, `a[data-action="next-page"]`, ElementSelector(doc, doc.Find("a").First()))
	assert.Equal(t, "nav.bottom span.label", ElementSelector(doc, doc.Find("nav span").First()))
	assert.Equal(t, "", ElementSelector(doc, doc.Find("table")))
}
