package investigate

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ppiankov/sitescout/internal/fetch"
	"github.com/ppiankov/sitescout/internal/model"
	"github.com/ppiankov/sitescout/internal/worker"
	"github.com/ppiankov/sitescout/pkg/runkit"
)

// maxSampleFields bounds sample_fields per endpoint
const maxSampleFields = 10

// fieldGroups are the record keys that identify a listing record
var fieldGroups = [][]string{
	{"title", "name"},
	{"price", "prices", "variants", "amount"},
	{"image", "images", "image_url", "thumbnail", "featured_image", "featured_media"},
}

// paginationKeys in a response body signal server-side paging
var paginationKeys = []string{"next", "page", "total_pages", "has_more", "has_next", "offset", "limit", "cursor", "next_page"}

// validation is the outcome for one candidate slot
type validation struct {
	endpoint *model.DiscoveredEndpoint
	probeErr *model.ProbeError
}

// validator probes candidates concurrently, each writing its own result slot
type validator struct {
	fetcher      *fetch.Fetcher
	robots       *fetch.RobotsChecker
	limiter      *worker.Limiter
	maxWorkers   int
	probeTimeout time.Duration
	maxRetryWait time.Duration
}

func (v *validator) validate(ctx context.Context, candidates []candidate) []validation {
	results := make([]validation, len(candidates))
	if len(candidates) == 0 {
		return results
	}

	var wg sync.WaitGroup

	// Semaphore limits concurrent probes
	semaphore := make(chan struct{}, v.maxWorkers)

	for i, c := range candidates {
		wg.Add(1)
		go func(idx int, c candidate) {
			defer wg.Done()

			select {
			case <-ctx.Done():
				results[idx] = validation{probeErr: probeError(c, ctx.Err())}
				return
			case semaphore <- struct{}{}:
			}
			defer func() { <-semaphore }()

			results[idx] = v.validateSingle(ctx, c)
		}(i, c)
	}

	wg.Wait()
	return results
}

func (v *validator) validateSingle(ctx context.Context, c candidate) validation {
	if v.robots != nil {
		allowed, crawlDelay, _ := v.robots.CanFetch(ctx, c.URL)
		if !allowed {
			return validation{probeErr: &model.ProbeError{
				URL:       c.URL,
				Technique: c.Technique,
				Kind:      model.KindRobotsDisallowed,
				Message:   "disallowed by robots.txt",
			}}
		}
		v.limiter.ApplyCrawlDelay(c.URL, crawlDelay)
	}

	probeCtx, cancel := context.WithTimeout(ctx, v.probeTimeout)
	defer cancel()

	if err := v.limiter.Wait(probeCtx, c.URL); err != nil {
		return validation{probeErr: probeError(c, err)}
	}

	maxWait := v.maxRetryWait
	if maxWait <= 0 || maxWait > v.probeTimeout {
		maxWait = v.probeTimeout
	}
	resp, err := v.fetcher.GetWithRetry(probeCtx, c.URL, fetch.AcceptJSON, maxWait)
	if err != nil {
		return validation{probeErr: probeError(c, err)}
	}
	if !resp.OK() || !resp.IsJSON() {
		return validation{}
	}

	if !json.Valid(resp.Body) {
		return validation{}
	}

	ep := classifyEndpoint(resp.Body)
	ep.URL = c.URL
	ep.Method = "GET"
	ep.ResponseType = "json"
	ep.StatusCode = resp.StatusCode
	ep.Technique = c.Technique
	if !ep.PaginationDetected {
		ep.PaginationDetected = hasNextLink(resp.Header.Get("Link"))
	}
	return validation{endpoint: &ep}
}

// classifyEndpoint rates a JSON body by which field groups its first record covers
func classifyEndpoint(body []byte) model.DiscoveredEndpoint {
	ep := model.DiscoveredEndpoint{Confidence: model.TierLow, SampleFields: []string{}}

	records, _ := runkit.Records(body)
	if len(records) > 0 {
		var first map[string]json.RawMessage
		if json.Unmarshal(records[0], &first) == nil {
			keys := make([]string, 0, len(first))
			for k := range first {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			groups := 0
			for _, group := range fieldGroups {
				for _, k := range group {
					if _, ok := first[k]; ok {
						groups++
						break
					}
				}
			}
			switch {
			case groups == len(fieldGroups):
				ep.Confidence = model.TierHigh
			case groups == len(fieldGroups)-1:
				ep.Confidence = model.TierMedium
			}

			if len(keys) > maxSampleFields {
				keys = keys[:maxSampleFields]
			}
			ep.SampleFields = keys
		}
	}

	ep.PaginationDetected = hasPaginationKeys(body)
	return ep
}

func hasPaginationKeys(body []byte) bool {
	var obj map[string]json.RawMessage
	if json.Unmarshal(body, &obj) != nil {
		return false
	}
	scopes := []map[string]json.RawMessage{obj}
	for _, key := range []string{"meta", "pagination", "links"} {
		var nested map[string]json.RawMessage
		if raw, ok := obj[key]; ok && json.Unmarshal(raw, &nested) == nil {
			scopes = append(scopes, nested)
		}
	}
	for _, scope := range scopes {
		for _, k := range paginationKeys {
			if _, ok := scope[k]; ok {
				return true
			}
		}
	}
	return false
}

func hasNextLink(link string) bool {
	for _, part := range strings.Split(link, ",") {
		if strings.Contains(strings.ReplaceAll(part, " ", ""), `rel="next"`) || strings.Contains(part, "rel=next") {
			return true
		}
	}
	return false
}

func probeError(c candidate, err error) *model.ProbeError {
	kind := model.KindNetworkUnreachable
	var kinded model.Kinded
	if errors.As(err, &kinded) {
		kind = kinded.Kind()
	}
	return &model.ProbeError{URL: c.URL, Technique: c.Technique, Kind: kind, Message: err.Error()}
}
