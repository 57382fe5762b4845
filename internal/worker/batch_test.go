package worker

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ppiankov/sitescout/internal/model"
)

// mockInvestigator implements Investigator
type mockInvestigator struct {
	fail map[string]bool
}

func (m *mockInvestigator) Investigate(ctx context.Context, url string) (*model.InvestigationReport, error) {
	time.Sleep(5 * time.Millisecond)
	if m.fail[url] {
		return &model.InvestigationReport{TargetURL: url, Error: model.KindNetworkUnreachable}, errors.New("unreachable")
	}
	return &model.InvestigationReport{
		TargetURL:           url,
		RecommendedStrategy: model.StrategyBrowser,
		ConfidenceScore:     0.3,
	}, nil
}

func TestBatchProcessor_KeepsInputOrder(t *testing.T) {
	processor := NewBatchProcessor(&mockInvestigator{}, 3, 0, 0)
	urls := []string{"http://a.example", "http://b.example", "http://c.example", "http://d.example"}

	results := processor.ProcessURLs(context.Background(), urls)
	if len(results) != len(urls) {
		t.Fatalf("expected %d results, got %d", len(urls), len(results))
	}
	for i, res := range results {
		if res.URL != urls[i] {
			t.Errorf("expected %s at %d, got %s", urls[i], i, res.URL)
		}
		if res.Error != nil || res.Report == nil {
			t.Errorf("unexpected failure for %s: %v", res.URL, res.Error)
		}
	}
}

func TestBatchProcessor_ErrorKeepsReport(t *testing.T) {
	processor := NewBatchProcessor(&mockInvestigator{fail: map[string]bool{"http://down.example": true}}, 2, 0, 0)

	results := processor.ProcessURLs(context.Background(), []string{"http://down.example"})
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].GetError() == nil {
		t.Error("expected error")
	}
	if results[0].Report == nil || results[0].Report.Error != model.KindNetworkUnreachable {
		t.Error("expected report with error field alongside the error")
	}
}

func TestBatchProcessor_Empty(t *testing.T) {
	processor := NewBatchProcessor(&mockInvestigator{}, 2, 0, 0)
	if results := processor.ProcessURLs(context.Background(), nil); len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestReadURLsFromFile(t *testing.T) {
	content := "http://example.com\n# comment\nhttps://shop.example.com\n   \nhttp://example.com\nhttp://blog.example.com   "

	tmpfile, err := os.CreateTemp(t.TempDir(), "urls")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := tmpfile.WriteString(content); err != nil {
		t.Fatal(err)
	}
	if err := tmpfile.Close(); err != nil {
		t.Fatal(err)
	}

	urls, err := ReadURLsFromFile(tmpfile.Name())
	if err != nil {
		t.Fatalf("ReadURLsFromFile failed: %v", err)
	}

	expected := []string{"http://example.com", "https://shop.example.com", "http://blog.example.com"}
	if len(urls) != len(expected) {
		t.Fatalf("expected %d URLs, got %d", len(expected), len(urls))
	}
	for i, url := range urls {
		if url != expected[i] {
			t.Errorf("expected URL %s at index %d, got %s", expected[i], i, url)
		}
	}
}

func TestBatchProcessor_ProcessFile_NonExistent(t *testing.T) {
	processor := NewBatchProcessor(&mockInvestigator{}, 2, 0, 0)
	if _, err := processor.ProcessFile(context.Background(), "no_such_file.txt"); err == nil {
		t.Error("expected error for non-existent file, got nil")
	}
}
