package runkit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ppiankov/sitescout/internal/fetch"
	"github.com/ppiankov/sitescout/internal/model"
)

// RecordKeys are the object keys that commonly wrap a listing's record array
var RecordKeys = []string{"products", "items", "results", "data", "posts", "records", "hits"}

// Records locates the record array of a listing response: a top-level array
// or the first RecordKeys entry holding an array (also one level down, as in
// {"data": {"items": [...]}}).
func Records(body []byte) ([]json.RawMessage, error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(body, &arr); err == nil {
		return arr, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil, fmt.Errorf("decode listing: %w", err)
	}
	for _, key := range RecordKeys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &arr); err == nil {
			return arr, nil
		}
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(raw, &nested); err == nil {
			for _, inner := range RecordKeys {
				if err := json.Unmarshal(nested[inner], &arr); err == nil && arr != nil {
					return arr, nil
				}
			}
		}
	}
	return nil, nil
}

// HasNext reads an explicit continuation signal from a listing response.
// known is false when the body carries no such signal.
func HasNext(body []byte) (next bool, known bool) {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return false, false
	}
	for _, scope := range []map[string]any{obj, asMap(obj["meta"]), asMap(obj["pagination"])} {
		if scope == nil {
			continue
		}
		for _, key := range []string{"has_next", "has_more", "hasMore", "hasNextPage"} {
			if b, ok := scope[key].(bool); ok {
				return b, true
			}
		}
		for _, key := range []string{"next", "next_page", "next_cursor", "nextPage"} {
			if v, present := scope[key]; present {
				return v != nil && v != "" && v != false, true
			}
		}
		page, okPage := scope["page"].(float64)
		total, okTotal := scope["total_pages"].(float64)
		if okPage && okTotal {
			return page < total, true
		}
	}
	return false, false
}

// ReportedTotalJSON reads a total-count field from a listing response
func ReportedTotalJSON(body []byte) int {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return 0
	}
	for _, scope := range []map[string]any{obj, asMap(obj["meta"]), asMap(obj["pagination"])} {
		for _, key := range []string{"total", "total_count", "total_items", "totalCount", "count", "found"} {
			if n, ok := scope[key].(float64); ok && n > 0 {
				return int(n)
			}
		}
	}
	return 0
}

// PageURL sets the page parameter of an endpoint URL
func PageURL(endpoint, param string, page int) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	q := u.Query()
	q.Set(param, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

// Client fetches JSON listing pages for API-mode programs
type Client struct {
	fetcher *fetch.Fetcher
	maxWait time.Duration
}

// NewClient creates a client with the default HTTP settings
func NewClient() *Client {
	cfg := model.DefaultConfig()
	return &Client{
		fetcher: fetch.NewFetcher(cfg.HTTP, nil),
		maxWait: cfg.Investigate.MaxRetryWait,
	}
}

// SetTransport replaces the HTTP transport the client sends through
func (c *Client) SetTransport(rt http.RoundTripper) {
	c.fetcher.SetTransport(rt)
}

// GetJSON fetches a JSON document, retrying once on 429
func (c *Client) GetJSON(ctx context.Context, rawURL string) ([]byte, error) {
	resp, err := c.fetcher.GetWithRetry(ctx, rawURL, fetch.AcceptJSON, c.maxWait)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("GET %s: status %d", rawURL, resp.StatusCode)
	}
	return resp.Body, nil
}
