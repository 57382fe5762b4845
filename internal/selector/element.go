package selector

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// identifyingAttrs are tried, in order, to pin a control without an id
var identifyingAttrs = []string{"data-action", "data-testid", "rel", "aria-label", "name"}

// ElementSelector derives a CSS selector addressing el within doc. It prefers
// an id, then a unique tag[attr="v"], then a unique tag.classes, then the
// same qualified by the parent; when nothing is unique the first match of the
// returned selector is el's first equivalent.
func ElementSelector(doc *goquery.Document, el *goquery.Selection) string {
	if el.Length() == 0 {
		return ""
	}
	n := el.Get(0)
	unique := func(sel string) bool { return doc.Find(sel).Length() == 1 }

	if id := getAttribute(n, "id"); cssIdent.MatchString(id) && unique("#"+id) {
		return "#" + id
	}

	tag := n.Data
	for _, attr := range identifyingAttrs {
		v := getAttribute(n, attr)
		if v == "" || strings.ContainsAny(v, `"\`) {
			continue
		}
		if sel := tag + `[` + attr + `="` + v + `"]`; unique(sel) {
			return sel
		}
	}

	own := tag
	if classes := classTokens(n); len(classes) > 0 {
		own = tag + "." + strings.Join(classes, ".")
	}
	if unique(own) {
		return own
	}

	if p := n.Parent; p != nil && p.Data != "body" && p.Data != "html" {
		parent := p.Data
		if id := getAttribute(p, "id"); cssIdent.MatchString(id) {
			parent = "#" + id
		} else if classes := classTokens(p); len(classes) > 0 {
			parent = p.Data + "." + strings.Join(classes, ".")
		}
		if sel := parent + " " + own; unique(sel) {
			return sel
		}
	}
	return own
}
