package llm

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ppiankov/sitescout/internal/model"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Summarize explains a QA report in plain language
	Summarize(ctx context.Context, req SummarizeRequest) (*SummarizeResponse, error)
}

// SummarizeRequest contains the input for a QA narrative
type SummarizeRequest struct {
	// Report is the QA report to explain
	Report *model.QAReport

	// AllowedFiles is the strict list of file names the narrative may mention
	AllowedFiles []string

	// Prompt is an optional custom prompt (if empty, use default)
	Prompt string

	// Model is the specific model to use (provider-specific)
	Model string

	// MaxTokens limits the response length
	MaxTokens int
}

// SummarizeResponse contains the narrative
type SummarizeResponse struct {
	Summary        string
	MentionedFiles []string
	Model          string
	TokensUsed     int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for OpenAI
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout time.Duration

	Temperature float32

	// StrictFiles rejects narratives that mention files outside the report
	StrictFiles bool

	// MaxTokens for response generation
	MaxTokens int
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:    "", // Disabled by default
		Timeout:     30 * time.Second,
		Temperature: 0.2,
		StrictFiles: true,
		MaxTokens:   600,
	}
}

// BuildPrompt constructs the default prompt for a QA report
func BuildPrompt(report *model.QAReport, allowedFiles []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `You are explaining a data-quality report for a web extraction run. The report compares what an extraction program wrote against the metadata it declared.

RULES:
1. Only mention these files:
%s
2. Do not invent causes; use the root causes listed below.
3. Numbers must come from the report.

Status: %s
Data quality score: %.0f/100

Checks:
`, joinFiles(allowedFiles), report.Status, report.DataQualityScore)

	names := make([]string, 0, len(report.Checks))
	for name := range report.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "- %s: %s\n", name, report.Checks[name].Status)
	}

	if len(report.RootCauses) > 0 {
		b.WriteString("\nRoot causes:\n")
		for _, c := range report.RootCauses {
			fmt.Fprintf(&b, "- %s: %s\n", c.Issue, c.Description)
		}
	}
	if report.AutoRefactor != nil && report.AutoRefactor.RepairedProgram != "" {
		fmt.Fprintf(&b, "\nA repaired program was written as version %d.\n", report.AutoRefactor.Version)
	}

	b.WriteString("\nExplain in 2-3 sentences what went wrong and what to do next.")
	return b.String()
}

// ReportFiles lists the file names a narrative about report may mention
func ReportFiles(report *model.QAReport) []string {
	var files []string
	for _, p := range []string{report.ItemsFile, report.MetadataFile} {
		if p != "" {
			files = append(files, baseName(p))
		}
	}
	if r := report.AutoRefactor; r != nil {
		for _, p := range []string{r.OriginalProgram, r.RepairedProgram} {
			if p != "" {
				files = append(files, baseName(p))
			}
		}
	}
	return files
}

func joinFiles(files []string) string {
	if len(files) == 0 {
		return "(none)"
	}
	var b strings.Builder
	for _, f := range files {
		fmt.Fprintf(&b, "- %s\n", f)
	}
	return strings.TrimRight(b.String(), "\n")
}

func baseName(p string) string {
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		return p[i+1:]
	}
	return p
}
