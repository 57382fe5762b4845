package investigate

import (
	"net/http"
	"strings"

	"github.com/ppiankov/sitescout/internal/model"
)

// Adapter describes one platform: how to recognize it and where its
// listing API usually lives
type Adapter interface {
	// Platform returns the platform tag
	Platform() model.Platform

	// Signatures are case-insensitive markers found in page HTML or headers
	Signatures() []string

	// KnownPaths are listing API paths relative to the site root
	KnownPaths() []string
}

// platformAdapter is a table-driven Adapter
type platformAdapter struct {
	platform   model.Platform
	signatures []string
	paths      []string
}

func (a *platformAdapter) Platform() model.Platform { return a.platform }
func (a *platformAdapter) Signatures() []string     { return a.signatures }
func (a *platformAdapter) KnownPaths() []string     { return a.paths }

// Built-in platform adapters
var (
	shopifyAdapter = &platformAdapter{
		platform:   model.PlatformShopify,
		signatures: []string{"cdn.shopify.com", "shopify.theme", "shopify-section", "myshopify.com"},
		paths:      []string{"/products.json", "/collections/all/products.json"},
	}
	wooCommerceAdapter = &platformAdapter{
		platform:   model.PlatformWooCommerce,
		signatures: []string{"woocommerce", "wc-block", "wc_add_to_cart_params", "wp-content/plugins/woocommerce"},
		paths:      []string{"/wp-json/wc/store/products", "/wp-json/wc/store/v1/products"},
	}
	wordPressAdapter = &platformAdapter{
		platform:   model.PlatformWordPress,
		signatures: []string{"wp-content", "wp-includes", "wp-json", `content="wordpress`},
		paths:      []string{"/wp-json/wc/store/products", "/wp-json/wp/v2/product"},
	}
	magentoAdapter = &platformAdapter{
		platform:   model.PlatformMagento,
		signatures: []string{"magento_", "mage/cookies", "data-mage-init", "static/version"},
		paths:      []string{"/rest/V1/products?searchCriteria[pageSize]=20"},
	}
	bigCommerceAdapter = &platformAdapter{
		platform:   model.PlatformBigCommerce,
		signatures: []string{"cdn11.bigcommerce.com", "bcdata", "stencil-utils"},
		paths:      []string{"/api/storefront/products"},
	}
	genericAdapter = &platformAdapter{platform: model.PlatformCustom}
)

// CommonPaths are probed on every target regardless of platform
var CommonPaths = []string{"/api/products", "/api/v1/products", "/api/v2/products", "/products.json"}

// Registry manages platform adapters
type Registry struct {
	adapters []Adapter
	generic  Adapter
}

// NewRegistry creates a registry with the built-in platforms.
// WooCommerce precedes WordPress so a shop wins ties over a plain blog.
func NewRegistry() *Registry {
	registry := &Registry{
		adapters: make([]Adapter, 0),
	}

	registry.Register(shopifyAdapter)
	registry.Register(wooCommerceAdapter)
	registry.Register(wordPressAdapter)
	registry.Register(magentoAdapter)
	registry.Register(bigCommerceAdapter)

	registry.generic = genericAdapter

	return registry
}

// Register registers a new adapter
func (r *Registry) Register(adapter Adapter) {
	r.adapters = append(r.adapters, adapter)
}

// Detect returns the adapter with the highest share of matched signatures
// and that share. Ties go to registration order; no match yields the
// generic adapter with confidence 0.
func (r *Registry) Detect(page string, header http.Header) (Adapter, float64) {
	haystack := strings.ToLower(page) + "\n" + strings.ToLower(headerText(header))

	best, bestScore := r.generic, 0.0
	for _, adapter := range r.adapters {
		sigs := adapter.Signatures()
		if len(sigs) == 0 {
			continue
		}
		matched := 0
		for _, sig := range sigs {
			if strings.Contains(haystack, strings.ToLower(sig)) {
				matched++
			}
		}
		score := float64(matched) / float64(len(sigs))
		if score > bestScore {
			best, bestScore = adapter, score
		}
	}
	return best, bestScore
}

func headerText(h http.Header) string {
	var b strings.Builder
	for k, vs := range h {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(strings.Join(vs, ", "))
		b.WriteByte('\n')
	}
	return b.String()
}
