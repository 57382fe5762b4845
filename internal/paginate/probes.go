package paginate

import (
	"context"
	"math"
	"net/url"
	"sort"
	"strings"

	"github.com/ppiankov/sitescout/internal/model"
	"github.com/ppiankov/sitescout/pkg/runkit"
)

// Probe component weights
const (
	scrollListenerWeight = 0.4
	scrollIncreaseWeight = 0.4
	scrollNoControls     = 0.2

	loadMoreTextWeight  = 0.4
	loadMoreCountWeight = 0.4
	loadMoreStateWeight = 0.2

	nextFoundWeight      = 0.4
	nextURLChangedWeight = 0.4
	nextParamWeight      = 0.2

	apiParamWeight   = 0.5
	apiJSONWeight    = 0.3
	apiHasNextWeight = 0.2
)

func weigh(ok bool, weight float64) float64 {
	if ok {
		return weight
	}
	return 0
}

// scrollProbe scrolls once and checks whether more items appeared
func scrollProbe(ctx context.Context, s *session) (*outcome, error) {
	page, err := s.driver.HTML(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	listener := hasScrollListener(page)
	controls := false
	for _, c := range []*control{findLoadMore(doc), findNextControl(doc)} {
		if c == nil {
			continue
		}
		if visible, _ := s.driver.Visible(ctx, c.Selector); visible {
			controls = true
		}
	}

	before, err := s.count(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.driver.ScrollToBottom(ctx); err != nil {
		return nil, err
	}
	if err := s.settleDown(ctx); err != nil {
		return nil, err
	}
	if _, err := s.snapshot(ctx); err != nil {
		return nil, err
	}
	after, err := s.count(ctx)
	if err != nil {
		return nil, err
	}
	increased := after > before

	components := map[string]float64{
		"scroll_listener": weigh(listener, scrollListenerWeight),
		"items_increased": weigh(increased, scrollIncreaseWeight),
		"no_controls":     weigh(!controls, scrollNoControls),
	}
	return &outcome{result: model.ProbeResult{
		Score:       sum(components),
		Fired:       increased,
		Components:  components,
		ItemsBefore: before,
		ItemsAfter:  after,
	}}, nil
}

// loadMoreProbe clicks a load-more control and checks the item count
func loadMoreProbe(ctx context.Context, s *session) (*outcome, error) {
	doc, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	c := findLoadMore(doc)
	if c == nil {
		return &outcome{result: model.ProbeResult{Components: map[string]float64{}, Detail: "no load-more control"}}, nil
	}

	before, err := s.count(ctx)
	if err != nil {
		return nil, err
	}
	enabledBefore, _ := s.driver.Enabled(ctx, c.Selector)
	labelBefore := strings.TrimSpace(doc.Find(c.Selector).First().Text())

	if err := s.driver.Click(ctx, c.Selector); err != nil {
		return nil, err
	}
	if err := s.settleDown(ctx); err != nil {
		return nil, err
	}
	docAfter, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	after, err := s.count(ctx)
	if err != nil {
		return nil, err
	}
	enabledAfter, _ := s.driver.Enabled(ctx, c.Selector)
	labelAfter := strings.TrimSpace(docAfter.Find(c.Selector).First().Text())

	increased := after > before
	stateChanged := enabledBefore != enabledAfter || labelBefore != labelAfter

	components := map[string]float64{
		"text_match":     weigh(c.TextMatch, loadMoreTextWeight),
		"count_increase": weigh(increased, loadMoreCountWeight),
		"state_change":   weigh(stateChanged, loadMoreStateWeight),
	}
	return &outcome{
		result: model.ProbeResult{
			Score:       sum(components),
			Fired:       increased,
			Components:  components,
			ItemsBefore: before,
			ItemsAfter:  after,
			Detail:      c.Selector,
		},
		loadMore: c.Selector,
	}, nil
}

// traditionalProbe follows a next-page link and checks the URL
func traditionalProbe(ctx context.Context, s *session) (*outcome, error) {
	doc, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	c := findNextControl(doc)
	if c == nil {
		return &outcome{result: model.ProbeResult{Components: map[string]float64{}, Detail: "no next control"}}, nil
	}

	before, err := s.driver.URL(ctx)
	if err != nil {
		return nil, err
	}
	itemsBefore, err := s.count(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.driver.Click(ctx, c.Selector); err != nil {
		return nil, err
	}
	if err := s.settleDown(ctx); err != nil {
		return nil, err
	}
	if _, err := s.snapshot(ctx); err != nil {
		return nil, err
	}
	after, err := s.driver.URL(ctx)
	if err != nil {
		return nil, err
	}
	itemsAfter, err := s.count(ctx)
	if err != nil {
		return nil, err
	}

	changed := after != before
	param := ""
	if changed {
		param = varyingParameter(before, after)
	}

	components := map[string]float64{
		"next_control": nextFoundWeight,
		"url_changed":  weigh(changed, nextURLChangedWeight),
		"parameter":    weigh(param != "", nextParamWeight),
	}
	return &outcome{
		result: model.ProbeResult{
			Score:       sum(components),
			Fired:       changed,
			Components:  components,
			ItemsBefore: itemsBefore,
			ItemsAfter:  itemsAfter,
			Detail:      after,
		},
		next:          c.Selector,
		pageParameter: param,
	}, nil
}

// apiProbe scrolls once while capturing same-origin JSON traffic
func apiProbe(ctx context.Context, s *session) (*outcome, error) {
	base, err := url.Parse(s.target)
	if err != nil {
		return nil, err
	}

	s.driver.ResetResponses()
	before, err := s.count(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.driver.ScrollToBottom(ctx); err != nil {
		return nil, err
	}
	if err := s.settleDown(ctx); err != nil {
		return nil, err
	}
	if _, err := s.snapshot(ctx); err != nil {
		return nil, err
	}
	after, err := s.count(ctx)
	if err != nil {
		return nil, err
	}

	var (
		urls    []string
		param   string
		hasNext bool
	)
	for _, resp := range s.driver.Responses() {
		u, err := url.Parse(resp.URL)
		if err != nil || !resp.IsJSON() || !strings.EqualFold(u.Host, base.Host) {
			continue
		}
		urls = append(urls, resp.URL)
		if param == "" {
			param = pageParameterIn(resp.URL)
		}
		if _, known := runkit.HasNext(resp.Body); known {
			hasNext = true
		}
	}

	components := map[string]float64{
		"page_parameter": weigh(param != "", apiParamWeight),
		"json_captured":  weigh(len(urls) > 0, apiJSONWeight),
		"has_next_field": weigh(hasNext, apiHasNextWeight),
	}
	return &outcome{
		result: model.ProbeResult{
			Score:       sum(components),
			Fired:       param != "",
			Components:  components,
			ItemsBefore: before,
			ItemsAfter:  after,
		},
		pageParameter: param,
		apiURLs:       urls,
	}, nil
}

// sum adds the components in key order, rounded to two decimals
func sum(components map[string]float64) float64 {
	keys := make([]string, 0, len(components))
	for k := range components {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	total := 0.0
	for _, k := range keys {
		total += components[k]
	}
	return model.ClampUnit(math.Round(total*100) / 100)
}
