package runkit

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Text returns the collapsed text of the first match of sel under s.
// An empty selector addresses s itself.
func Text(s *goquery.Selection, sel string) string {
	return collapse(find(s, sel).Text())
}

// Attr returns an attribute of the first match of sel under s
func Attr(s *goquery.Selection, sel, attr string) string {
	v, _ := find(s, sel).Attr(attr)
	return strings.TrimSpace(v)
}

// PriceText parses the price shown as text by the first match of sel
func PriceText(s *goquery.Selection, sel string) *Price {
	p, _ := ParsePrice(Text(s, sel))
	return p
}

// PriceAttr parses the price held in an attribute of the first match of sel
func PriceAttr(s *goquery.Selection, sel, attr string) *Price {
	p, ok := ParsePrice(Attr(s, sel, attr))
	if !ok {
		return nil
	}
	// Attribute values rarely carry a currency; prefer the visible text's
	if shown, ok := ParsePrice(Text(s, sel)); ok {
		p.Currency = shown.Currency
		p.DisplayText = shown.DisplayText
	}
	return p
}

// Images returns the absolute, de-duplicated image URLs of all matches of sel
func Images(s *goquery.Selection, sel, base string) []string {
	var out []string
	seen := make(map[string]bool)
	findAll(s, sel).Each(func(_ int, img *goquery.Selection) {
		src := ImageSource(img)
		if src == "" {
			return
		}
		abs := Resolve(base, src)
		if !seen[abs] {
			seen[abs] = true
			out = append(out, abs)
		}
	})
	return out
}

// ImageSource picks src, data-src or the first srcset candidate of an element
func ImageSource(img *goquery.Selection) string {
	for _, attr := range []string{"src", "data-src", "data-original"} {
		if v, ok := img.Attr(attr); ok && strings.TrimSpace(v) != "" && !strings.HasPrefix(v, "data:") {
			return strings.TrimSpace(v)
		}
	}
	if v, ok := img.Attr("srcset"); ok {
		first := strings.TrimSpace(strings.Split(v, ",")[0])
		if fields := strings.Fields(first); len(fields) > 0 {
			return fields[0]
		}
	}
	return ""
}

// Link returns the absolute href of the first match of sel
func Link(s *goquery.Selection, sel, base string) string {
	return Resolve(base, Attr(s, sel, "href"))
}

// ItemID reads a stable identifier from common data attributes of a container
func ItemID(s *goquery.Selection) string {
	for _, attr := range []string{"data-product-id", "data-id", "data-item-id", "data-sku"} {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

var reportedTotalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bof\s+([\d,.]+)\s+(?:results|items|products|listings)\b`),
	regexp.MustCompile(`(?i)\b([\d,.]+)\s+(?:results|items|products|listings)\s+(?:found|total)\b`),
	regexp.MustCompile(`(?i)\btotal\s*:?\s*([\d,.]+)\s+(?:results|items|products|listings)\b`),
}

// ReportedTotal finds a site-reported result count such as
// "Showing 1-24 of 310 products". Zero means none was found.
func ReportedTotal(doc *goquery.Document) int {
	text := collapse(doc.Find("body").Text())
	for _, re := range reportedTotalPatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			digits := strings.NewReplacer(",", "", ".", "").Replace(m[1])
			if n, err := strconv.Atoi(digits); err == nil {
				return n
			}
		}
	}
	return 0
}

func find(s *goquery.Selection, sel string) *goquery.Selection {
	if sel == "" {
		return s.First()
	}
	return s.Find(sel).First()
}

func findAll(s *goquery.Selection, sel string) *goquery.Selection {
	if sel == "" {
		return s
	}
	return s.Find(sel)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
