package selector

import (
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/ppiankov/sitescout/internal/model"
	"github.com/ppiankov/sitescout/pkg/runkit"
)

// Minimum text lengths for a value to count as present
const (
	minTitleLen       = 3
	minDescriptionLen = 20
)

// fieldSpec is the ordered candidate list for one field
type fieldSpec struct {
	name     string
	patterns []string
	// attrs are tried in order before text; empty string means text mode
	modes []string
}

// fieldSpecs lists fields in synthesis order
var fieldSpecs = []fieldSpec{
	{
		name: model.FieldTitle,
		patterns: []string{"h1", "h2", "h3", "h4", ".product-title", ".product-name", ".title", ".name",
			"[class*=title]", "[class*=name]", "a"},
		modes: []string{""},
	},
	{
		name: model.FieldPrice,
		patterns: []string{"[data-price]", "[itemprop=price]", ".price", ".product-price", ".amount", ".cost",
			"[class*=price]"},
		modes: []string{"data-price", "content", ""},
	},
	{
		name:     model.FieldImages,
		patterns: []string{".product-image img", "picture img", "img[data-src]", "img"},
		modes:    []string{"src"},
	},
	{
		name: model.FieldDescription,
		patterns: []string{".product-description", ".description", ".summary", ".excerpt",
			"[class*=desc]", "p"},
		modes: []string{""},
	},
	{
		name:     model.FieldURL,
		patterns: []string{"a[href]"},
		modes:    []string{"href"},
	},
}

// present reports whether item yields a valid value for field via sel
func present(item *goquery.Selection, field, sel, mode string) bool {
	switch field {
	case model.FieldTitle:
		return utf8.RuneCountInString(runkit.Text(item, sel)) >= minTitleLen
	case model.FieldDescription:
		return utf8.RuneCountInString(runkit.Text(item, sel)) >= minDescriptionLen
	case model.FieldPrice:
		if mode == "" {
			return runkit.PriceText(item, sel) != nil
		}
		_, ok := runkit.ParsePrice(runkit.Attr(item, sel, mode))
		return ok
	case model.FieldImages:
		return len(runkit.Images(item, sel, "")) > 0
	case model.FieldURL:
		href := runkit.Attr(item, sel, "href")
		return href != "" && href != "#" && !strings.HasPrefix(strings.ToLower(href), "javascript:")
	}
	return false
}

// matchRate is the fraction of items yielding a valid value
func matchRate(items []*goquery.Selection, field, sel, mode string) float64 {
	if len(items) == 0 {
		return 0
	}
	hits := 0
	for _, item := range items {
		if present(item, field, sel, mode) {
			hits++
		}
	}
	return float64(hits) / float64(len(items))
}

// refine narrows a class-less pattern to the tag.class its matches share
func refine(items []*goquery.Selection, pattern string) string {
	var shared map[string]int
	tag := ""
	sameTag := true
	matches := 0
	for _, item := range items {
		m := item.Find(pattern).First()
		if m.Length() == 0 {
			continue
		}
		matches++
		n := m.Get(0)
		if tag == "" {
			tag = n.Data
		} else if tag != n.Data {
			sameTag = false
		}
		tokens := classTokens(n)
		if shared == nil {
			shared = make(map[string]int)
		}
		for _, c := range tokens {
			shared[c]++
		}
	}
	if matches == 0 {
		return pattern
	}

	var common []string
	for c, n := range shared {
		if n == matches {
			common = append(common, c)
		}
	}
	if len(common) == 0 {
		return pattern
	}
	sort.Strings(common)

	refined := "." + common[0]
	if sameTag {
		refined = tag + refined
	}
	if strings.Contains(pattern, " ") {
		// keep the ancestor context of descendant patterns
		refined = pattern[:strings.LastIndex(pattern, " ")+1] + refined
	}
	return refined
}

// sample picks up to k evenly spaced items
func sample(items []*goquery.Selection, k int) []*goquery.Selection {
	if len(items) <= k {
		return items
	}
	out := make([]*goquery.Selection, 0, k)
	for i := 0; i < k; i++ {
		out = append(out, items[i*len(items)/k])
	}
	return out
}
