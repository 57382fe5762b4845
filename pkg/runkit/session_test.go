package runkit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/sitescout/internal/model"
)

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func steppingClock(start time.Time, step time.Duration) func() time.Time {
	now := start
	return func() time.Time {
		t := now
		now = now.Add(step)
		return t
	}
}

func TestSession_DeduplicatesByKey(t *testing.T) {
	s := newSession("https://shop.test", MethodBrowser, "infinite_scroll", 1, steppingClock(mustTime("2025-01-01T00:00:00Z"), time.Second))

	assert.True(t, s.Add(Item{ID: "1", Title: "Lamp"}))
	assert.False(t, s.Add(Item{ID: "1", Title: "Lamp again"}))
	assert.True(t, s.Add(Item{URL: "https://shop.test/p/2", Title: "Chair"}))
	assert.False(t, s.Add(Item{URL: "https://shop.test/p/2"}))
	assert.True(t, s.Add(Item{Title: "Desk", Price: &Price{Amount: 10}}))
	assert.False(t, s.Add(Item{Title: "Desk", Price: &Price{Amount: 10}}))
	assert.True(t, s.Add(Item{Title: "Desk", Price: &Price{Amount: 12}}))

	assert.Equal(t, 4, s.Count())
}

func TestCompleteness(t *testing.T) {
	items := []Item{
		{Title: "A", Price: &Price{Amount: 1}, ImageURLs: []string{"x"}, Description: "d"},
		{Title: "B", Price: &Price{Amount: 0}},
		{Title: " ", ImageURLs: []string{"y"}},
	}
	got := Completeness(items)
	assert.InDelta(t, 66.67, got[model.FieldTitle], 0.001)
	assert.InDelta(t, 66.67, got[model.FieldPrice], 0.001, "zero price counts as present")
	assert.InDelta(t, 66.67, got[model.FieldImages], 0.001)
	assert.InDelta(t, 33.33, got[model.FieldDescription], 0.001)

	empty := Completeness(nil)
	assert.Len(t, empty, 4)
	assert.Zero(t, empty[model.FieldTitle])
}

func TestSession_FinishWritesCrossReferencedFiles(t *testing.T) {
	dir := t.TempDir()
	start := mustTime("2025-06-01T10:00:00Z")
	s := newSession("https://www.shop.test/all", MethodBrowser, "load_more", 2, steppingClock(start, time.Second))

	s.Add(Item{ID: "1", Title: "Lamp", Price: &Price{Amount: 20, Currency: "USD"}})
	s.Add(Item{ID: "2", Title: "", Description: "no title"})
	s.PageDone(2)
	s.ReportTotal(40)

	files, err := s.Finish(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "shop_test_items_20250601_100000.json"), files.ItemsFile)

	var items model.ItemsFile
	data, err := os.ReadFile(files.ItemsFile)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &items))
	assert.Equal(t, filepath.Base(files.MetadataFile), items.MetadataFile)
	require.Len(t, items.Items, 2)
	assert.Equal(t, "2025-06-01T10:00:01Z", items.Items[0].ScrapedAt)
	assert.NotNil(t, items.Items[1].ImageURLs)

	var meta model.RunMetadata
	data, err = os.ReadFile(files.MetadataFile)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, &meta))
	assert.Equal(t, filepath.Base(files.ItemsFile), meta.OutputFiles.ItemsFile)
	assert.Equal(t, filepath.Base(files.MetadataFile), meta.OutputFiles.MetadataFile)
	assert.Equal(t, 2, meta.ItemsSummary.DeclaredTotal)
	assert.Equal(t, 40, meta.ItemsSummary.ReportedTotal)
	assert.Equal(t, 2, meta.ItemsSummary.ActualTotal)
	assert.Equal(t, 1, meta.ItemsSummary.ItemsWithErrors)
	assert.Equal(t, 1, meta.PaginationInfo.PagesVisited)
	assert.Equal(t, 2, meta.ScrapingSession.ProgramVersion)
	assert.Equal(t, "2025-06-01T10:00:00Z", meta.ScrapingSession.Start)
	assert.Equal(t, "2025-06-01T10:00:03Z", meta.ScrapingSession.End)
	assert.Equal(t, 50.0, meta.FieldCompleteness[model.FieldTitle])
}

func TestSession_DeclaredIsCollectedCount(t *testing.T) {
	s := newSession("https://shop.test", MethodAPI, "api_pagination", 1, time.Now)
	s.ReportTotal(1)
	s.Add(Item{ID: "a"})
	s.Add(Item{ID: "b"})

	meta := s.Metadata(time.Now(), "i.json", "m.json")
	assert.Equal(t, 2, meta.ItemsSummary.DeclaredTotal)
	assert.Equal(t, 1, meta.ItemsSummary.ReportedTotal)
}

func TestSession_LargerReportedTotalStaysInformational(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(
		`<html><body><p class="count">Showing 1-24 of 96 products</p></body></html>`))
	require.NoError(t, err)

	s := newSession("https://shop.test/catalog", MethodBrowser, "none", 1, time.Now)
	s.ReportTotal(ReportedTotal(doc))
	for i := 0; i < 24; i++ {
		s.Add(Item{ID: fmt.Sprintf("p-%d", i), Title: "Item"})
	}

	meta := s.Metadata(time.Now(), "i.json", "m.json")
	assert.Equal(t, 24, meta.ItemsSummary.DeclaredTotal)
	assert.Equal(t, 24, meta.ItemsSummary.ActualTotal)
	assert.Equal(t, 96, meta.ItemsSummary.ReportedTotal)
}
