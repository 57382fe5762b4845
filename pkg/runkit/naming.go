package runkit

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// SourceName derives a filesystem-safe source label from a URL host,
// e.g. "https://www.shop.example.com/x" -> "shop_example_com"
func SourceName(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	host := rawURL
	if err == nil && parsed.Host != "" {
		host = parsed.Hostname()
	}
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	slug := strings.Trim(nonSlug.ReplaceAllString(host, "_"), "_")
	if slug == "" {
		return "source"
	}
	return slug
}

// OutputNames returns the paired items/metadata file names for a run started at t
func OutputNames(source string, t time.Time) (itemsFile, metadataFile string) {
	stamp := t.UTC().Format("20060102_150405")
	return fmt.Sprintf("%s_items_%s.json", source, stamp),
		fmt.Sprintf("%s_metadata_%s.json", source, stamp)
}

// Resolve makes ref absolute against base; unresolvable refs are returned as-is
func Resolve(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
