package selector

import (
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// MinGroupSize is the smallest repeating group that can be an item container
const MinGroupSize = 3

// Scoring weights for container candidates
const (
	countCap       = 50
	keywordBonus   = 30
	identicalBonus = 20
)

// SemanticKeywords mark class names that usually denote listing items
var SemanticKeywords = []string{"product", "item", "card", "listing", "result"}

// Container is a scored repeating element group
type Container struct {
	Selector    string  `json:"selector"`
	Count       int     `json:"count"`
	Score       float64 `json:"score"`
	Keyword     bool    `json:"keyword"`
	Identical   bool    `json:"identical"`
	SubtreeSize float64 `json:"subtree_size"`
}

// DetectContainer groups elements by tag and normalized class signature and
// returns the best-scoring group with at least MinGroupSize members.
// score = min(count, 50) + 30·keyword + 20·identical-subtree.
func DetectContainer(doc *goquery.Document) (*Container, []Container, int) {
	root := doc.Get(0)
	if root == nil {
		return nil, nil, 0
	}

	// Group by exact signature; a CSS match on the selector would also count
	// elements carrying extra classes.
	groups := make(map[string][]*html.Node)
	var order []string
	for _, n := range findAll(root, func(n *html.Node) bool {
		return !skippedTags[n.Data] && !insideSkipped(n)
	}) {
		sig := signature(n)
		if _, ok := groups[sig]; !ok {
			order = append(order, sig)
		}
		groups[sig] = append(groups[sig], n)
	}

	largest := 0
	var candidates []Container
	for _, sel := range order {
		members := groups[sel]
		if len(members) > largest {
			largest = len(members)
		}
		if len(members) < MinGroupSize {
			continue
		}
		candidates = append(candidates, scoreGroup(sel, members))
	}

	if len(candidates) == 0 {
		return nil, nil, largest
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.SubtreeSize != b.SubtreeSize {
			return a.SubtreeSize > b.SubtreeSize
		}
		return a.Selector < b.Selector
	})

	best := candidates[0]
	return &best, candidates, largest
}

func scoreGroup(sel string, members []*html.Node) Container {
	count := len(members)

	var first string
	identical := true
	total := 0
	for i, n := range members {
		shape, size := subtreeShape(n)
		total += size
		if i == 0 {
			first = shape
		} else if shape != first {
			identical = false
		}
	}
	// Empty elements repeating identically say nothing about structure
	if first == "" {
		identical = false
	}

	keyword := hasSemanticKeyword(sel)

	capped := count
	if capped > countCap {
		capped = countCap
	}
	score := float64(capped)
	if keyword {
		score += keywordBonus
	}
	if identical {
		score += identicalBonus
	}

	return Container{
		Selector:    sel,
		Count:       count,
		Score:       score,
		Keyword:     keyword,
		Identical:   identical,
		SubtreeSize: float64(total) / float64(count),
	}
}

// hasSemanticKeyword checks the class tokens of a tag.class selector. A token
// matches when one of its hyphen/underscore separated words is a keyword;
// BEM element tokens (containing "__") name parts of an item, not items.
func hasSemanticKeyword(sel string) bool {
	parts := strings.Split(sel, ".")
	for _, token := range parts[1:] {
		if strings.Contains(token, "__") {
			continue
		}
		for _, word := range strings.FieldsFunc(strings.ToLower(token), func(r rune) bool { return r == '-' || r == '_' }) {
			for _, kw := range SemanticKeywords {
				if word == kw || word == kw+"s" {
					return true
				}
			}
		}
	}
	return false
}
