package selector

import (
	"regexp"
	"strings"

	"github.com/ppiankov/sitescout/internal/model"
)

var compoundPattern = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9]*)?((?:\.[_a-zA-Z0-9-]+)*)((?:\[[^\]]+\])*)$`)

// keywordMatchers are substring-class selectors per field, used when a
// selector has no class to relax
var keywordMatchers = map[string]string{
	model.FieldTitle:       `[class*="title"]`,
	model.FieldPrice:       `[class*="price"]`,
	model.FieldImages:      `[class*="image"] img`,
	model.FieldDescription: `[class*="desc"]`,
	model.FieldURL:         `a[href]`,
}

// lastResort are generic selectors for when every other rule yields the primary
var lastResort = map[string]string{
	model.FieldTitle:       "h1, h2, h3, h4",
	model.FieldPrice:       "[data-price]",
	model.FieldImages:      "img",
	model.FieldDescription: "p",
	model.FieldURL:         "a",
}

// DeriveFallback returns a less specific alternative to primary:
//   - a descendant selector falls back to its last compound;
//   - tag.a.b drops its final class (tag.a), tag.a becomes tag;
//   - .a.b drops its final class, a bare .a becomes [class*="a"];
//   - bare tags and attribute selectors use the field's substring-class matcher.
//
// The result never equals primary.
func DeriveFallback(primary, field string) string {
	primary = strings.TrimSpace(primary)
	fallback := deriveFallback(primary, field)
	if fallback == "" || fallback == primary {
		fallback = lastResort[field]
	}
	if fallback == primary {
		fallback = "*"
	}
	return fallback
}

func deriveFallback(sel, field string) string {
	if strings.ContainsAny(sel, ",") {
		return lastResort[field]
	}
	if i := strings.LastIndexAny(sel, " >+~"); i >= 0 {
		if last := strings.TrimSpace(sel[i+1:]); last != "" {
			return last
		}
	}

	m := compoundPattern.FindStringSubmatch(sel)
	if m == nil {
		return keywordMatchers[field]
	}
	tag, classPart, attrs := m[1], m[2], m[3]
	var classes []string
	if classPart != "" {
		classes = strings.Split(strings.TrimPrefix(classPart, "."), ".")
	}

	switch {
	case attrs != "":
		return keywordMatchers[field]
	case tag != "" && len(classes) > 0:
		return tag + joinClasses(classes[:len(classes)-1])
	case tag == "" && len(classes) > 1:
		return joinClasses(classes[:len(classes)-1])
	case tag == "" && len(classes) == 1:
		return `[class*="` + classes[0] + `"]`
	default:
		return keywordMatchers[field]
	}
}

func joinClasses(classes []string) string {
	if len(classes) == 0 {
		return ""
	}
	return "." + strings.Join(classes, ".")
}
