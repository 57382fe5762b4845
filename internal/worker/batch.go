package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/sitescout/internal/model"
)

// Investigator defines the interface for investigating a URL
type Investigator interface {
	Investigate(ctx context.Context, url string) (*model.InvestigationReport, error)
}

// InvestigateJob investigates one URL
type InvestigateJob struct {
	URL          string
	Investigator Investigator
	Limiter      *Limiter
}

// Execute executes the investigation
func (j *InvestigateJob) Execute(ctx context.Context) Result {
	if err := j.Limiter.Wait(ctx, j.URL); err != nil {
		return &InvestigateResult{URL: j.URL, Error: err}
	}

	report, err := j.Investigator.Investigate(ctx, j.URL)
	return &InvestigateResult{
		URL:    j.URL,
		Report: report,
		Error:  err,
	}
}

// InvestigateResult represents the result of an investigation job.
// Report may be non-nil even when Error is set.
type InvestigateResult struct {
	URL    string
	Report *model.InvestigationReport
	Error  error
}

// GetError returns the error from the investigation
func (r *InvestigateResult) GetError() error {
	return r.Error
}

// BatchProcessor investigates multiple URLs concurrently
type BatchProcessor struct {
	investigator Investigator
	concurrency  int
	limiter      *Limiter
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(investigator Investigator, concurrency int, rateLimit float64, burst int) *BatchProcessor {
	var limiter *Limiter
	if rateLimit > 0 {
		limiter = NewLimiter(rateLimit, burst)
	}
	return &BatchProcessor{
		investigator: investigator,
		concurrency:  concurrency,
		limiter:      limiter,
	}
}

// ProcessURLs investigates URLs concurrently; results keep input order
func (b *BatchProcessor) ProcessURLs(ctx context.Context, urls []string) []*InvestigateResult {
	if len(urls) == 0 {
		return []*InvestigateResult{}
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	for _, url := range urls {
		pool.Submit(&InvestigateJob{
			URL:          url,
			Investigator: b.investigator,
			Limiter:      b.limiter,
		})
	}

	byURL := make(map[string]*InvestigateResult, len(urls))
	for _, result := range pool.Wait() {
		r := result.(*InvestigateResult)
		byURL[r.URL] = r
	}

	ordered := make([]*InvestigateResult, 0, len(urls))
	for _, url := range urls {
		if r, ok := byURL[url]; ok {
			ordered = append(ordered, r)
		} else {
			ordered = append(ordered, &InvestigateResult{URL: url, Error: ctx.Err()})
		}
	}
	return ordered
}

// ProcessFile reads URLs from a file and investigates them concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*InvestigateResult, error) {
	urls, err := ReadURLsFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read URLs: %w", err)
	}

	return b.ProcessURLs(ctx, urls), nil
}

// ReadURLsFromFile reads URLs from a file (one per line)
func ReadURLsFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var urls []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			urls = append(urls, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return urls, nil
}
