package generate

import (
	"go/parser"
	"go/token"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/sitescout/internal/model"
	"github.com/ppiankov/sitescout/pkg/runkit"
)

func browserInput(pt model.PaginationType) Input {
	return Input{
		TargetURL: "https://shop.example.com/catalog",
		Investigation: &model.InvestigationReport{
			RecommendedStrategy: model.StrategyBrowser,
			PlatformDetected:    model.PlatformCustom,
		},
		Selectors: &model.DOMSelectorMap{
			ItemContainerSelector: "div.product-card",
			TotalItemsFound:       24,
			FieldSelectors: map[string]model.FieldSelector{
				model.FieldTitle:       {Primary: "h3.card-heading", Fallback: "h3"},
				model.FieldPrice:       {Primary: "span.price", Fallback: "span"},
				model.FieldImages:      {Primary: "img", Fallback: "img"},
				model.FieldURL:         {Primary: "a.card-link", Attribute: "href", ExtractionMode: model.ModeAttribute},
				model.FieldDescription: {Primary: "p.description"},
			},
		},
		Pagination: &model.PaginationStrategy{
			Type:         pt,
			ItemsPerPage: 24,
			WaitTimeMS:   1500,
			Selectors: model.PaginationSelectors{
				ItemContainer:  "div.product-card",
				LoadMoreButton: "button.load-more",
				NextButton:     "a.next",
			},
		},
	}
}

func apiInput(platform model.Platform) Input {
	return Input{
		TargetURL: "https://shop.example.com/",
		Investigation: &model.InvestigationReport{
			RecommendedStrategy: model.StrategyAPI,
			PlatformDetected:    platform,
			DiscoveredEndpoints: []model.DiscoveredEndpoint{
				{URL: "https://shop.example.com/api/list", Confidence: model.TierMedium},
				{URL: "https://shop.example.com/products.json", Confidence: model.TierHigh},
			},
		},
	}
}

func parses(t *testing.T, src []byte) {
	t.Helper()
	_, err := parser.ParseFile(token.NewFileSet(), "program.go", src, parser.ParseComments)
	require.NoError(t, err, string(src))
}

func TestGenerateBrowserProgram(t *testing.T) {
	p, err := Generate(browserInput(model.PaginationInfiniteScroll))
	require.NoError(t, err)
	parses(t, p.Source)

	src := string(p.Source)
	assert.Equal(t, "shop_example_com", p.Name)
	assert.Equal(t, 1, p.Version)
	assert.Equal(t, model.StrategyBrowser, p.Strategy)
	assert.Equal(t, model.PaginationInfiniteScroll, p.PaginationType)
	assert.True(t, strings.HasPrefix(src, "// sitescout:program name=shop_example_com strategy=browser pagination=infinite_scroll version=1\n"))
	assert.Regexp(t, `itemSelector\s+= "div.product-card"`, src)
	assert.Contains(t, src, "1500 * time.Millisecond")
	assert.Contains(t, src, "unchanged >= 3")
	assert.Contains(t, src, `v := runkit.Text(s, "h3.card-heading")`)
	assert.Contains(t, src, `v = runkit.Text(s, "h3")`)
	assert.Contains(t, src, `runkit.PriceText(s, "span.price")`)
	assert.Contains(t, src, `runkit.Link(s, "a.card-link", sourceURL)`)
	// description had no stored fallback; one is derived
	assert.Contains(t, src, `v = runkit.Text(s, "p")`)
	assert.NotContains(t, src, "encoding/json")

	assert.Equal(t, Digest(p.Source), p.Digest)
	assert.Len(t, p.Digest, 64)
	assert.Equal(t, 24, p.MetadataTemplate.PaginationInfo.ItemsPerPage)
	assert.Equal(t, 24, p.MetadataTemplate.ItemsSummary.DeclaredTotal)
	assert.Equal(t, "browser", p.MetadataTemplate.ScrapingSession.Method)
}

func TestGenerateIsDeterministic(t *testing.T) {
	a, err := Generate(browserInput(model.PaginationLoadMore))
	require.NoError(t, err)
	b, err := Generate(browserInput(model.PaginationLoadMore))
	require.NoError(t, err)
	assert.Equal(t, a.Source, b.Source)
	assert.Equal(t, a.Digest, b.Digest)
}

func TestGenerateDriverPerPaginationType(t *testing.T) {
	tests := []struct {
		pt   model.PaginationType
		want string
	}{
		{model.PaginationInfiniteScroll, "page.ScrollToBottom(ctx, pageWait)"},
		{model.PaginationAPI, "page.ScrollToBottom(ctx, pageWait)"},
		{model.PaginationLoadMore, "page.Click(ctx, loadMoreSelector, pageWait)"},
		{model.PaginationTraditional, "page.Click(ctx, nextSelector, pageWait)"},
		{model.PaginationNone, "paginate extracts the single rendered page"},
	}
	for _, tt := range tests {
		t.Run(string(tt.pt), func(t *testing.T) {
			p, err := Generate(browserInput(tt.pt))
			require.NoError(t, err)
			parses(t, p.Source)
			assert.Contains(t, string(p.Source), tt.want)
			assert.Contains(t, string(p.Source), "pagination="+string(tt.pt)+" ")
		})
	}
}

func TestGenerateClickWithoutControlFallsBackToSinglePage(t *testing.T) {
	in := browserInput(model.PaginationLoadMore)
	in.Pagination.Selectors.LoadMoreButton = ""
	p, err := Generate(in)
	require.NoError(t, err)
	assert.Contains(t, string(p.Source), "paginate extracts the single rendered page")
}

func TestGeneratePriceAttributeMode(t *testing.T) {
	in := browserInput(model.PaginationNone)
	in.Selectors.FieldSelectors[model.FieldPrice] = model.FieldSelector{
		Primary:        "span[data-price]",
		Fallback:       "[data-price]",
		Attribute:      "data-price",
		ExtractionMode: model.ModeAttribute,
	}
	p, err := Generate(in)
	require.NoError(t, err)
	assert.Contains(t, string(p.Source), `v := runkit.PriceAttr(s, "span[data-price]", "data-price")`)
	assert.Contains(t, string(p.Source), `v = runkit.PriceAttr(s, "[data-price]", "data-price")`)
}

func TestGenerateMissingFieldReturnsZero(t *testing.T) {
	in := browserInput(model.PaginationNone)
	delete(in.Selectors.FieldSelectors, model.FieldImages)
	p, err := Generate(in)
	require.NoError(t, err)
	parses(t, p.Source)
	assert.Contains(t, string(p.Source), "func extractImageURLs(s *goquery.Selection) []string {\n\treturn nil\n}")
}

func TestGenerateAPIProgram(t *testing.T) {
	in := apiInput(model.PlatformShopify)
	in.Pagination = &model.PaginationStrategy{PageParameter: "p"}
	p, err := Generate(in)
	require.NoError(t, err)
	parses(t, p.Source)

	src := string(p.Source)
	assert.Equal(t, model.StrategyAPI, p.Strategy)
	assert.Equal(t, model.PaginationAPI, p.PaginationType)
	assert.Equal(t, model.PlatformShopify, p.Platform)
	assert.Regexp(t, `endpoint\s+= "https://shop.example.com/products.json"`, src)
	assert.Regexp(t, `pageParam\s+= "p"\n`, src)
	assert.Contains(t, src, "runkit.MapShopify(raw, sourceURL)")
	assert.NotContains(t, src, "goquery")
}

func TestGenerateAPIPathPageParameterIsIgnored(t *testing.T) {
	in := apiInput(model.PlatformCustom)
	in.Pagination = &model.PaginationStrategy{PageParameter: "/page/N"}
	p, err := Generate(in)
	require.NoError(t, err)
	assert.Regexp(t, `pageParam\s+= "page"\n`, string(p.Source))
	assert.Contains(t, string(p.Source), "runkit.MapGeneric(raw, sourceURL)")
}

func TestGenerateAPIWithoutEndpoint(t *testing.T) {
	in := apiInput(model.PlatformShopify)
	in.Investigation.DiscoveredEndpoints = nil
	_, err := Generate(in)
	assert.ErrorIs(t, err, ErrNoEndpoint)
}

func TestGenerateBrowserWithoutContainer(t *testing.T) {
	in := browserInput(model.PaginationNone)
	in.Selectors.ItemContainerSelector = ""
	_, err := Generate(in)
	assert.ErrorIs(t, err, ErrNoSelectors)
}

func TestMapperRegistryCoversEveryPlatform(t *testing.T) {
	for _, platform := range runkit.Platforms() {
		name, err := runkit.MapperName(platform)
		require.NoError(t, err, platform)
		assert.True(t, strings.HasPrefix(name, "Map"))
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	p, err := Generate(browserInput(model.PaginationTraditional))
	require.NoError(t, err)

	h, err := ParseHeader(p.Source)
	require.NoError(t, err)
	assert.Equal(t, Header{Name: "shop_example_com", Strategy: model.StrategyBrowser, PaginationType: model.PaginationTraditional, Version: 1}, h)

	h.Version = 2
	out, err := ReplaceHeader(p.Source, h)
	require.NoError(t, err)
	got, err := ParseHeader(out)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	parses(t, out)

	_, err = ParseHeader([]byte("package main\n"))
	assert.Error(t, err)
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "shop_example_com_v3.go", FileName("shop_example_com", 3))
}
