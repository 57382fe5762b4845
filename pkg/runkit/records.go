package runkit

import (
	"encoding/json"
	"fmt"
	"html"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ppiankov/sitescout/internal/model"
)

// Platform tags the record variant an API returns
type Platform string

const (
	PlatformShopify   Platform = "shopify"
	PlatformWordPress Platform = "wordpress"
	PlatformGeneric   Platform = "generic"
)

// Platforms lists every record variant; each has exactly one mapper
func Platforms() []Platform {
	return []Platform{PlatformShopify, PlatformWordPress, PlatformGeneric}
}

// PlatformFor maps a detected site platform onto a record variant
func PlatformFor(p model.Platform) Platform {
	switch p {
	case model.PlatformShopify:
		return PlatformShopify
	case model.PlatformWordPress, model.PlatformWooCommerce:
		return PlatformWordPress
	default:
		return PlatformGeneric
	}
}

// Record is one decoded API record of a known variant
type Record interface {
	Platform() Platform
	Item(base string) Item
}

// MapFunc decodes one raw record and maps it to an item
type MapFunc func(raw json.RawMessage, base string) (Item, error)

// mapper pairs a record decoder with the exported function generated
// programs call for it
type mapper struct {
	name string
	fn   MapFunc
}

var mappers = map[Platform]mapper{
	PlatformShopify: {"MapShopify", func(raw json.RawMessage, base string) (Item, error) {
		return decode(raw, base, &ShopifyProduct{})
	}},
	PlatformWordPress: {"MapWordPress", func(raw json.RawMessage, base string) (Item, error) {
		return decode(raw, base, &WordPressProduct{})
	}},
	PlatformGeneric: {"MapGeneric", func(raw json.RawMessage, base string) (Item, error) {
		return decode(raw, base, &GenericRecord{})
	}},
}

// MapperName returns the name of the exported runkit function that maps
// records of platform p
func MapperName(p Platform) (string, error) {
	m, ok := mappers[p]
	if !ok {
		return "", fmt.Errorf("no record mapper for platform %q", p)
	}
	return m.name, nil
}

func decode(raw json.RawMessage, base string, rec Record) (Item, error) {
	if err := json.Unmarshal(raw, rec); err != nil {
		return Item{}, fmt.Errorf("decode %s record: %w", rec.Platform(), err)
	}
	return rec.Item(base), nil
}

// MapShopify maps one record from a Shopify products.json listing
func MapShopify(raw json.RawMessage, base string) (Item, error) {
	return mappers[PlatformShopify].fn(raw, base)
}

// MapWordPress maps one WooCommerce Store API or WP REST record
func MapWordPress(raw json.RawMessage, base string) (Item, error) {
	return mappers[PlatformWordPress].fn(raw, base)
}

// MapGeneric maps one record of an unknown JSON API by common key names
func MapGeneric(raw json.RawMessage, base string) (Item, error) {
	return mappers[PlatformGeneric].fn(raw, base)
}

// ShopifyProduct is a products.json record
type ShopifyProduct struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Handle   string `json:"handle"`
	BodyHTML string `json:"body_html"`
	Variants []struct {
		Price string `json:"price"`
	} `json:"variants"`
	Images []struct {
		Src string `json:"src"`
	} `json:"images"`
}

// Platform implements Record
func (p *ShopifyProduct) Platform() Platform { return PlatformShopify }

// Item implements Record
func (p *ShopifyProduct) Item(base string) Item {
	item := Item{
		Title:       strings.TrimSpace(p.Title),
		Description: StripTags(p.BodyHTML),
	}
	if p.ID != 0 {
		item.ID = strconv.FormatInt(p.ID, 10)
	}
	if p.Handle != "" {
		item.URL = Resolve(base, "/products/"+p.Handle)
	}
	if len(p.Variants) > 0 {
		item.Price, _ = ParsePrice(p.Variants[0].Price)
	}
	for _, img := range p.Images {
		if img.Src != "" {
			item.ImageURLs = append(item.ImageURLs, Resolve(base, img.Src))
		}
	}
	return item
}

// WordPressProduct covers the WooCommerce Store API and WP REST post shapes
type WordPressProduct struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Permalink        string `json:"permalink"`
	Link             string `json:"link"`
	Description      string `json:"description"`
	ShortDescription string `json:"short_description"`
	Title            struct {
		Rendered string `json:"rendered"`
	} `json:"title"`
	Excerpt struct {
		Rendered string `json:"rendered"`
	} `json:"excerpt"`
	Prices struct {
		Price             string `json:"price"`
		CurrencyCode      string `json:"currency_code"`
		CurrencySymbol    string `json:"currency_symbol"`
		CurrencyMinorUnit int    `json:"currency_minor_unit"`
	} `json:"prices"`
	Images []struct {
		Src string `json:"src"`
	} `json:"images"`
}

// Platform implements Record
func (p *WordPressProduct) Platform() Platform { return PlatformWordPress }

// Item implements Record
func (p *WordPressProduct) Item(base string) Item {
	item := Item{
		Title: firstNonEmpty(html.UnescapeString(p.Name), StripTags(p.Title.Rendered)),
		URL:   firstNonEmpty(p.Permalink, p.Link),
		Description: firstNonEmpty(StripTags(p.ShortDescription), StripTags(p.Description),
			StripTags(p.Excerpt.Rendered)),
	}
	if p.ID != 0 {
		item.ID = strconv.FormatInt(p.ID, 10)
	}
	// Store API prices are integers in minor units
	if minor, err := strconv.ParseFloat(p.Prices.Price, 64); err == nil && minor >= 0 {
		amount := minor / math.Pow(10, float64(p.Prices.CurrencyMinorUnit))
		currency := p.Prices.CurrencyCode
		if currency == "" {
			currency = DefaultCurrency
		}
		item.Price = &Price{
			Amount:      amount,
			Currency:    currency,
			DisplayText: strings.TrimSpace(p.Prices.CurrencySymbol + strconv.FormatFloat(amount, 'f', 2, 64)),
		}
	}
	for _, img := range p.Images {
		if img.Src != "" {
			item.ImageURLs = append(item.ImageURLs, Resolve(base, img.Src))
		}
	}
	return item
}

// GenericRecord is an arbitrary JSON object mapped by common key names
type GenericRecord map[string]any

// Platform implements Record
func (r *GenericRecord) Platform() Platform { return PlatformGeneric }

// Item implements Record
func (r *GenericRecord) Item(base string) Item {
	m := *r
	item := Item{
		ID:          scalarString(pick(m, "id", "sku", "_id", "product_id")),
		Title:       strings.TrimSpace(scalarString(pick(m, "title", "name", "product_name"))),
		Description: StripTags(scalarString(pick(m, "description", "summary", "body_html", "excerpt"))),
	}
	if link := scalarString(pick(m, "url", "link", "permalink", "href")); link != "" {
		item.URL = Resolve(base, link)
	}
	if v := pick(m, "price", "amount", "sale_price", "current_price"); v != nil {
		item.Price = genericPrice(v)
	}
	for _, src := range imageValues(pick(m, "images", "image", "image_url", "thumbnail", "featured_image")) {
		item.ImageURLs = append(item.ImageURLs, Resolve(base, src))
	}
	return item
}

func genericPrice(v any) *Price {
	switch t := v.(type) {
	case float64:
		if t < 0 {
			return nil
		}
		return &Price{Amount: t, Currency: DefaultCurrency, DisplayText: strconv.FormatFloat(t, 'f', 2, 64)}
	case string:
		p, _ := ParsePrice(t)
		return p
	case map[string]any:
		p := genericPrice(pick(t, "amount", "value", "price"))
		if p != nil {
			if c := scalarString(pick(t, "currency", "currency_code")); c != "" {
				p.Currency = strings.ToUpper(c)
			}
		}
		return p
	}
	return nil
}

func imageValues(v any) []string {
	switch t := v.(type) {
	case string:
		if t != "" {
			return []string{t}
		}
	case map[string]any:
		if s := scalarString(pick(t, "src", "url", "href")); s != "" {
			return []string{s}
		}
	case []any:
		var out []string
		for _, e := range t {
			out = append(out, imageValues(e)...)
		}
		return out
	}
	return nil
}

func pick(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any:
		// WP-style {"rendered": "..."}
		return scalarString(t["rendered"])
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// StripTags removes markup and collapses whitespace
func StripTags(s string) string {
	return collapse(html.UnescapeString(tagPattern.ReplaceAllString(s, " ")))
}
