package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/sitescout/internal/generate"
	"github.com/ppiankov/sitescout/internal/model"
	"github.com/ppiankov/sitescout/internal/qa"
	"github.com/ppiankov/sitescout/internal/store"
	"github.com/ppiankov/sitescout/pkg/runkit"
)

const shopURL = "https://shop.example.com/collections/all"

func newTestPipeline(t *testing.T, ledger store.Ledger) *Pipeline {
	t.Helper()
	cfg := model.DefaultConfig()
	cfg.Cache.Enabled = false
	p, err := NewPipeline(cfg, Options{Ledger: ledger})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p
}

func apiInput() generate.Input {
	return generate.Input{
		TargetURL: shopURL,
		Investigation: &model.InvestigationReport{
			TargetURL:           shopURL,
			PlatformDetected:    model.PlatformShopify,
			RecommendedStrategy: model.StrategyAPI,
			DiscoveredEndpoints: []model.DiscoveredEndpoint{{
				URL:        "https://shop.example.com/products.json",
				Method:     "GET",
				Confidence: model.TierHigh,
			}},
		},
	}
}

func TestGenerateWritesProgram(t *testing.T) {
	dir := t.TempDir()
	p := newTestPipeline(t, nil)

	program, path, err := p.Generate(context.Background(), apiInput(), dir)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if filepath.Base(path) != "shop_example_com_v1.go" {
		t.Errorf("Unexpected program path: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read program: %v", err)
	}
	if !bytes.Equal(data, program.Source) {
		t.Error("Written program differs from generated source")
	}
}

func browserInput(titleSelector string) generate.Input {
	return generate.Input{
		TargetURL:     shopURL,
		Investigation: &model.InvestigationReport{TargetURL: shopURL, RecommendedStrategy: model.StrategyBrowser},
		Selectors: &model.DOMSelectorMap{
			ItemContainerSelector: "div.product-card",
			FieldSelectors: map[string]model.FieldSelector{
				model.FieldTitle: {Primary: titleSelector, Fallback: "h3"},
				model.FieldPrice: {Primary: "span.price", Fallback: "span"},
			},
		},
		Pagination: &model.PaginationStrategy{Type: model.PaginationInfiniteScroll},
	}
}

func TestGenerateNeverOverwritesProgram(t *testing.T) {
	dir := t.TempDir()
	p := newTestPipeline(t, nil)
	ctx := context.Background()

	first, path, err := p.Generate(ctx, browserInput("h3.card-heading"), dir)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// Identical input is accepted and leaves the file alone
	if _, again, err := p.Generate(ctx, browserInput("h3.card-heading"), dir); err != nil || again != path {
		t.Fatalf("Expected identical regeneration to succeed at %s, got %s, %v", path, again, err)
	}

	_, _, err = p.Generate(ctx, browserInput("h2.title"), dir)
	if !errors.Is(err, ErrProgramExists) {
		t.Fatalf("Expected ErrProgramExists, got %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read program: %v", err)
	}
	if !bytes.Equal(data, first.Source) {
		t.Error("Program on disk changed after a conflicting generation")
	}
}

func TestGenerateRejectsIncompleteInput(t *testing.T) {
	p := newTestPipeline(t, nil)
	in := apiInput()
	in.Investigation.DiscoveredEndpoints = nil

	if _, _, err := p.Generate(context.Background(), in, t.TempDir()); err == nil {
		t.Fatal("Expected error without an endpoint")
	}
}

func TestLedgerRecordsProgramAndQARun(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	ledger, err := store.OpenSQLite(filepath.Join(dir, "ledger.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer ledger.Close()
	p := newTestPipeline(t, ledger)

	_, programPath, err := p.Generate(ctx, apiInput(), dir)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	// Regenerating the same version is tolerated
	if _, _, err := p.Generate(ctx, apiInput(), dir); err != nil {
		t.Fatalf("second Generate: %v", err)
	}

	sess := runkit.NewSession(shopURL, runkit.MethodAPI, "api_pagination", 1)
	for i := 0; i < 5; i++ {
		sess.Add(runkit.Item{
			ID:          fmt.Sprintf("p-%d", i),
			Title:       fmt.Sprintf("Product %d", i),
			Price:       &runkit.Price{Amount: 5, Currency: "USD", DisplayText: "$5.00"},
			ImageURLs:   []string{"https://shop.example.com/p.jpg"},
			URL:         fmt.Sprintf("https://shop.example.com/products/%d", i),
			Description: "desc",
		})
	}
	sess.PageDone(5)
	files, err := sess.Finish(filepath.Join(dir, "out"))
	if err != nil {
		t.Fatalf("Finish: %v", err)
	}

	report := p.QA(ctx, qa.Request{
		ItemsFile:    files.ItemsFile,
		MetadataFile: files.MetadataFile,
		ProgramFile:  programPath,
	})
	if report.Status != model.StatusPass {
		t.Fatalf("Expected PASS, got %s (%s)", report.Status, report.Error)
	}

	entries, err := p.History(ctx, "shop_example_com", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d: %+v", len(entries), entries)
	}
	kinds := map[string]bool{}
	for _, e := range entries {
		kinds[e.Kind] = true
	}
	if !kinds[store.EntryProgram] || !kinds[store.EntryQA] {
		t.Errorf("Expected a program and a qa entry, got %+v", entries)
	}
}

func TestHistoryWithoutLedger(t *testing.T) {
	p := newTestPipeline(t, nil)
	if _, err := p.History(context.Background(), "shop", 10); err == nil {
		t.Fatal("Expected error when the ledger is disabled")
	}
}

func TestWriteJSONIndents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "report.json")
	if err := WriteJSON(path, map[string]int{"a": 1}); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "{\n  \"a\": 1\n}\n" {
		t.Errorf("Unexpected JSON: %q", data)
	}
}

func TestRenderQA(t *testing.T) {
	report := &model.QAReport{
		Status:           model.StatusFail,
		DataQualityScore: 75,
		Checks: map[string]model.CheckResult{
			model.CheckItemCount: {Status: model.StatusFail},
			model.CheckFileRefs:  {Status: model.StatusPass},
		},
		RootCauses: []model.RootCause{{
			Issue:       model.IssuePaginationEndCondition,
			Description: "loop exits early",
			Location:    "shop_v1.go:88",
		}},
		AutoRefactor: &model.RepairOutcome{
			Attempted:       true,
			Transforms:      []model.TransformResult{{Kind: model.TransformCountGuard, Status: model.TransformApplied}},
			RepairedProgram: "shop_v2.go",
			Version:         2,
		},
	}

	var buf bytes.Buffer
	RenderQA(&buf, report)
	out := buf.String()

	for _, want := range []string{
		"QA: FAIL (score 75/100)",
		"✗ " + model.CheckItemCount,
		"✓ " + model.CheckFileRefs,
		"pagination_end_condition at shop_v1.go:88",
		"pagination_count_guard: applied",
		"wrote shop_v2.go (v2)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q:\n%s", want, out)
		}
	}
}

func TestExpandHome(t *testing.T) {
	if got := expandHome("/tmp/cache"); got != "/tmp/cache" {
		t.Errorf("Absolute path changed: %s", got)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := expandHome("~/.sitescout/cache"); got != filepath.Join(home, ".sitescout", "cache") {
		t.Errorf("Unexpected expansion: %s", got)
	}
}
