package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ppiankov/sitescout/internal/model"
	"github.com/ppiankov/sitescout/internal/store"
)

const rule = "═══════════════════════════════════════════════════════════"

// WriteJSON writes v as 2-space indented JSON, creating parent directories
func WriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write file: %w", err)
	}
	return nil
}

func banner(w io.Writer, title string) {
	fmt.Fprintf(w, "\n%s\n  %s\n%s\n\n", rule, title, rule)
}

// RenderInvestigation prints a human-readable investigation summary
func RenderInvestigation(w io.Writer, r *model.InvestigationReport) {
	banner(w, "Investigation: "+r.TargetURL)

	fmt.Fprintf(w, "  Platform:     %s (%.0f%% of signatures)\n", r.PlatformDetected, r.PlatformConfidence*100)
	fmt.Fprintf(w, "  Strategy:     %s (confidence %.2f)\n", r.RecommendedStrategy, r.ConfidenceScore)
	fmt.Fprintf(w, "  Probed:       %d candidates in %.1fs\n", r.Metadata.EndpointsProbed, r.Metadata.DurationSeconds)
	if r.AntiBot.Detected {
		fmt.Fprintf(w, "  Anti-bot:     %s\n", strings.Join(r.AntiBot.Signals, ", "))
	}
	if r.Error != "" {
		fmt.Fprintf(w, "  Error:        %s\n", r.Error)
	}

	if len(r.DiscoveredEndpoints) > 0 {
		fmt.Fprintf(w, "\n  Endpoints:\n")
		for _, ep := range r.DiscoveredEndpoints {
			paged := ""
			if ep.PaginationDetected {
				paged = ", paginated"
			}
			fmt.Fprintf(w, "    [%-6s] %s (%s%s)\n", ep.Confidence, ep.URL, ep.Technique, paged)
		}
	}
	fmt.Fprintln(w)
}

// RenderSelectors prints the synthesized selector map
func RenderSelectors(w io.Writer, m *model.DOMSelectorMap) {
	banner(w, "Selectors")

	fmt.Fprintf(w, "  Container:    %s (%d items)\n", m.ItemContainerSelector, m.TotalItemsFound)
	names := make([]string, 0, len(m.FieldSelectors))
	for name := range m.FieldSelectors {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fs := m.FieldSelectors[name]
		fmt.Fprintf(w, "  %-13s %s  (fallback %s, %s)\n", name+":", fs.Primary, fs.Fallback, fs.Tier)
	}
	if len(m.UnresolvedFields) > 0 {
		fmt.Fprintf(w, "  Unresolved:   %s\n", strings.Join(m.UnresolvedFields, ", "))
	}
	if m.Error != "" {
		fmt.Fprintf(w, "  Error:        %s\n", m.Error)
	}
	fmt.Fprintln(w)
}

// RenderPagination prints the detected pagination strategy
func RenderPagination(w io.Writer, s *model.PaginationStrategy) {
	banner(w, "Pagination")

	fmt.Fprintf(w, "  Type:         %s (%s, score %.2f)\n", s.Type, s.Confidence, s.ConfidenceScore)
	if s.Selectors.LoadMoreButton != "" {
		fmt.Fprintf(w, "  Load more:    %s\n", s.Selectors.LoadMoreButton)
	}
	if s.Selectors.NextButton != "" {
		fmt.Fprintf(w, "  Next:         %s\n", s.Selectors.NextButton)
	}
	if s.PageParameter != "" {
		fmt.Fprintf(w, "  Parameter:    %s\n", s.PageParameter)
	}
	if s.Error != "" {
		fmt.Fprintf(w, "  Error:        %s\n", s.Error)
	}
	fmt.Fprintln(w)
}

// RenderQA prints check results, root causes and any repair
func RenderQA(w io.Writer, r *model.QAReport) {
	banner(w, fmt.Sprintf("QA: %s (score %.0f/100)", r.Status, r.DataQualityScore))

	if r.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", r.Error)
		for _, v := range r.SchemaViolations {
			fmt.Fprintf(w, "    %s: %s: %s\n", v.File, v.Field, v.Message)
		}
		fmt.Fprintln(w)
		return
	}

	names := make([]string, 0, len(r.Checks))
	for name := range r.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		mark := "✓"
		if r.Checks[name].Status != model.StatusPass {
			mark = "✗"
		}
		fmt.Fprintf(w, "  %s %s\n", mark, name)
	}

	if len(r.RootCauses) > 0 {
		fmt.Fprintf(w, "\n  Root causes:\n")
		for _, c := range r.RootCauses {
			loc := ""
			if c.Location != "" {
				loc = " at " + c.Location
			}
			fmt.Fprintf(w, "    - %s%s: %s\n", c.Issue, loc, c.Description)
		}
	}

	if a := r.AutoRefactor; a != nil && a.Attempted {
		fmt.Fprintf(w, "\n  Repair:\n")
		for _, t := range a.Transforms {
			field := ""
			if t.Field != "" {
				field = " (" + t.Field + ")"
			}
			fmt.Fprintf(w, "    %s%s: %s\n", t.Kind, field, t.Status)
		}
		switch {
		case a.Error != "":
			fmt.Fprintf(w, "    error: %s\n", a.Error)
		case a.RepairedProgram != "":
			fmt.Fprintf(w, "    wrote %s (v%d)\n", a.RepairedProgram, a.Version)
		}
	}

	if r.LLMSummary != "" {
		fmt.Fprintf(w, "\n  Summary:\n    %s\n", strings.ReplaceAll(r.LLMSummary, "\n", "\n    "))
	}
	fmt.Fprintln(w)
}

// RenderScout prints what an end-to-end run produced
func RenderScout(w io.Writer, r *ScoutResult) {
	if r.Investigation != nil {
		RenderInvestigation(w, r.Investigation)
	}
	if r.Selectors != nil {
		RenderSelectors(w, r.Selectors)
	}
	if r.Pagination != nil {
		RenderPagination(w, r.Pagination)
	}
	if r.Program != nil {
		fmt.Fprintf(w, "✓ Generated %s v%d (%s/%s)\n", r.Program.Name, r.Program.Version, r.Program.Strategy, r.Program.PaginationType)
	}
	for _, path := range r.Artifacts {
		fmt.Fprintf(w, "  wrote %s\n", path)
	}
}

// RenderHistory prints ledger entries, newest first
func RenderHistory(w io.Writer, name string, entries []store.Entry) {
	banner(w, "History: "+name)
	if len(entries) == 0 {
		fmt.Fprintf(w, "  no entries\n\n")
		return
	}
	for _, e := range entries {
		fmt.Fprintf(w, "  %s  %-7s v%-3d %s\n", e.At.Format("2006-01-02 15:04:05"), e.Kind, e.Version, e.Detail)
	}
	fmt.Fprintln(w)
}
