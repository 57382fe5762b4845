package runkit

import (
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ppiankov/sitescout/internal/model"
)

// Item is one extracted record
type Item = model.Item

// Scraping methods
const (
	MethodAPI     = "api"
	MethodBrowser = "browser"
)

// maxTrackedKeys bounds the de-duplication window
const maxTrackedKeys = 100_000

// Session accumulates the items of one program run and computes the run's
// metadata from what was actually observed.
type Session struct {
	sourceURL      string
	method         string
	paginationType string
	version        int
	now            func() time.Time

	mu            sync.Mutex
	start         time.Time
	items         []Item
	seen          *lru.Cache[string, struct{}]
	reportedTotal int
	pages         int
	perPage       int
	withErrors    int
}

// NewSession starts a session; the start time is taken now
func NewSession(sourceURL, method, paginationType string, version int) *Session {
	return newSession(sourceURL, method, paginationType, version, time.Now)
}

func newSession(sourceURL, method, paginationType string, version int, now func() time.Time) *Session {
	seen, _ := lru.New[string, struct{}](maxTrackedKeys)
	return &Session{
		sourceURL:      sourceURL,
		method:         method,
		paginationType: paginationType,
		version:        version,
		now:            now,
		start:          now(),
		seen:           seen,
	}
}

// Add records an item unless an item with the same key was already recorded.
// It stamps scraped_at and reports whether the item was new.
func (s *Session) Add(item Item) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key := itemKey(item); key != "" {
		if s.seen.Contains(key) {
			return false
		}
		s.seen.Add(key, struct{}{})
	}

	item.ScrapedAt = s.now().UTC().Format(time.RFC3339Nano)
	if item.ImageURLs == nil {
		item.ImageURLs = []string{}
	}
	if strings.TrimSpace(item.Title) == "" {
		s.withErrors++
	}
	s.items = append(s.items, item)
	return true
}

// Count returns the number of distinct items recorded so far
func (s *Session) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// ReportTotal records a total item count the site itself reported; the
// largest wins. It is kept for reference only: the declared total is always
// the number of items this run collected.
func (s *Session) ReportTotal(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n > s.reportedTotal {
		s.reportedTotal = n
	}
}

// PageDone records that a page (or scroll/click round) was processed
func (s *Session) PageDone(itemsOnPage int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages++
	if s.perPage == 0 && itemsOnPage > 0 {
		s.perPage = itemsOnPage
	}
}

// Items returns a copy of the recorded items
func (s *Session) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Item(nil), s.items...)
}

// Metadata builds the run metadata as of end
func (s *Session) Metadata(end time.Time, itemsFile, metadataFile string) model.RunMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()

	return model.RunMetadata{
		ScrapingSession: model.ScrapingSession{
			SourceURL:       s.sourceURL,
			SourceName:      SourceName(s.sourceURL),
			Start:           s.start.UTC().Format(time.RFC3339Nano),
			End:             end.UTC().Format(time.RFC3339Nano),
			DurationSeconds: roundTo(end.Sub(s.start).Seconds(), 3),
			Method:          s.method,
			ProgramVersion:  s.version,
		},
		PaginationInfo: model.PaginationInfo{
			Type:         s.paginationType,
			PagesVisited: s.pages,
			ItemsPerPage: s.perPage,
		},
		ItemsSummary: model.ItemsSummary{
			DeclaredTotal:   len(s.items),
			ActualTotal:     len(s.items),
			ItemsWithErrors: s.withErrors,
			ReportedTotal:   s.reportedTotal,
		},
		FieldCompleteness: Completeness(s.items),
		OutputFiles: model.OutputFiles{
			ItemsFile:    itemsFile,
			MetadataFile: metadataFile,
		},
	}
}

func itemKey(item Item) string {
	switch {
	case item.ID != "":
		return "id:" + item.ID
	case item.URL != "":
		return "url:" + item.URL
	case item.Title != "":
		amount := ""
		if item.Price != nil {
			amount = fmt.Sprintf("%.2f", item.Price.Amount)
		}
		return "title:" + item.Title + "|" + amount
	default:
		return ""
	}
}
