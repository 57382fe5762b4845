package paginate

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/ppiankov/sitescout/internal/selector"
)

var (
	loadMoreText  = regexp.MustCompile(`(?i)\b(load|show|view|see)\s+more\b`)
	loadMoreHints = []string{"load-more", "loadmore", "load_more", "show-more", "showmore", "view-more"}
	nextText      = regexp.MustCompile(`(?i)^\s*(next(\s+page)?|›|»|→|>)\s*$`)
	clickables    = "button, a, [role=button], input[type=button], input[type=submit]"
)

// scrollListenerMarkers hint at JavaScript that loads items on scroll
var scrollListenerMarkers = []string{
	"intersectionobserver",
	"onscroll",
	`addeventlistener("scroll"`,
	`addeventlistener('scroll'`,
	"infinite-scroll",
	"infinite_scroll",
	"infinitescroll",
	"data-infinite",
}

// pageParameterNames are query keys that usually carry a page position
var pageParameterNames = []string{"page", "p", "pg", "paged", "page_number", "pagenumber", "offset", "start", "skip", "cursor", "after", "from"}

// pagePathPattern matches /page/N path segments
var pagePathPattern = regexp.MustCompile(`/page/(\d+)`)

// hasScrollListener reports whether the page source hints at scroll-driven loading
func hasScrollListener(page string) bool {
	lower := strings.ToLower(strings.ReplaceAll(page, " ", ""))
	for _, marker := range scrollListenerMarkers {
		if strings.Contains(lower, strings.ReplaceAll(marker, " ", "")) {
			return true
		}
	}
	return false
}

// control is a located clickable element
type control struct {
	Selector  string
	TextMatch bool
}

// findLoadMore locates a load-more control by its text, or failing that by
// class, id or data-action hints
func findLoadMore(doc *goquery.Document) *control {
	var byText, byHint *goquery.Selection
	doc.Find(clickables).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		label := s.Text()
		if v, ok := s.Attr("value"); ok {
			label += " " + v
		}
		if loadMoreText.MatchString(label) {
			byText = s
			return false
		}
		if byHint == nil && hasHint(s) {
			byHint = s
		}
		return true
	})

	switch {
	case byText != nil:
		return &control{Selector: selector.ElementSelector(doc, byText), TextMatch: true}
	case byHint != nil:
		return &control{Selector: selector.ElementSelector(doc, byHint)}
	}
	return nil
}

func hasHint(s *goquery.Selection) bool {
	var attrs []string
	for _, name := range []string{"class", "id", "data-action"} {
		if v, ok := s.Attr(name); ok {
			attrs = append(attrs, strings.ToLower(v))
		}
	}
	joined := strings.Join(attrs, " ")
	for _, hint := range loadMoreHints {
		if strings.Contains(joined, hint) {
			return true
		}
	}
	return false
}

// findNextControl locates a "next page" link
func findNextControl(doc *goquery.Document) *control {
	for _, sel := range []string{`a[rel~="next"]`, `a[aria-label*="Next"]`, `a[aria-label*="next"]`, ".pagination .next a", ".pagination a.next", "a.next", "li.next a"} {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			return &control{Selector: selector.ElementSelector(doc, s)}
		}
	}

	var found *goquery.Selection
	doc.Find("a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if nextText.MatchString(s.Text()) {
			found = s
			return false
		}
		return true
	})
	if found != nil {
		return &control{Selector: selector.ElementSelector(doc, found)}
	}
	return nil
}

// varyingParameter names what changed between two page URLs: a known query
// parameter, any numeric query parameter, or a /page/N path segment
func varyingParameter(before, after string) string {
	b, errB := url.Parse(before)
	a, errA := url.Parse(after)
	if errB != nil || errA != nil {
		return ""
	}

	bq, aq := b.Query(), a.Query()
	for _, name := range pageParameterNames {
		if aq.Get(name) != "" && aq.Get(name) != bq.Get(name) {
			return name
		}
	}
	for name := range aq {
		if v := aq.Get(name); v != bq.Get(name) && isNumeric(v) {
			return name
		}
	}

	if pagePathPattern.MatchString(a.Path) && pagePathPattern.FindString(a.Path) != pagePathPattern.FindString(b.Path) {
		return "/page/N"
	}
	return ""
}

// pageParameterIn returns the first page-like query key of a URL
func pageParameterIn(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	q := u.Query()
	for _, name := range pageParameterNames {
		if q.Has(name) {
			return name
		}
	}
	return ""
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
