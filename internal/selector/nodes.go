package selector

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// skippedTags never form item containers
var skippedTags = map[string]bool{
	"html": true, "head": true, "body": true, "script": true, "style": true,
	"meta": true, "link": true, "noscript": true, "br": true, "hr": true,
	"option": true, "svg": true, "path": true, "g": true, "use": true,
	"source": true, "title": true, "template": true, "iframe": true,
}

var cssIdent = regexp.MustCompile(`^-?[_a-zA-Z][_a-zA-Z0-9-]*$`)

// findAll returns all element nodes under n matching predicate
func findAll(n *html.Node, predicate func(*html.Node) bool) []*html.Node {
	var results []*html.Node

	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && predicate(node) {
			results = append(results, node)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return results
}

// getAttribute gets an attribute value from a node
func getAttribute(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

// classTokens returns the de-duplicated, sorted CSS-safe classes of n.
// Case is kept since class selectors match case-sensitively.
func classTokens(n *html.Node) []string {
	seen := make(map[string]bool)
	var out []string
	for _, c := range strings.Fields(getAttribute(n, "class")) {
		if !cssIdent.MatchString(c) || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// signature is the tag plus normalized class list, also usable as a selector.
// Class-less elements get a :not([class]) guard so the selector matches only them.
func signature(n *html.Node) string {
	classes := classTokens(n)
	if len(classes) == 0 {
		return n.Data + ":not([class])"
	}
	return n.Data + "." + strings.Join(classes, ".")
}

// subtreeShape is the preorder sequence of descendant tag names
func subtreeShape(n *html.Node) (string, int) {
	var b strings.Builder
	count := 0
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			count++
			b.WriteString(c.Data)
			b.WriteByte('(')
			walk(c)
			b.WriteByte(')')
		}
	}
	walk(n)
	return b.String(), count
}

// insideSkipped reports whether n sits under a tag that never holds content
func insideSkipped(n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p.Type == html.ElementNode && (p.Data == "head" || p.Data == "script" || p.Data == "noscript" || p.Data == "template") {
			return true
		}
	}
	return false
}
