package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/sitescout/internal/worker"
	"github.com/ppiankov/sitescout/pkg/runkit"
)

var concurrency int

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Investigate multiple URLs from a file in parallel",
	Long: `Batch investigates multiple URLs concurrently:
- Read URLs from input file (one per line, # comments allowed)
- Investigate URLs in parallel with a configurable worker count
- Throttle requests per domain
- Write one investigation report per URL

Example:
  sitescout batch urls.txt
  sitescout batch urls.txt --concurrency 5 --output-dir ./reports
  sitescout batch urls.txt --timeout 20m`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent workers (default: concurrency.workers)")
	batchCmd.Flags().Duration("timeout", 10*time.Minute, "total timeout for batch processing")
}

func runBatch(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		file := args[0]
		cfg := a.cfg
		workers := concurrency
		if workers <= 0 {
			workers = cfg.Concurrency.Workers
		}

		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
		fmt.Fprintf(os.Stderr, "  sitescout Batch Investigation\n")
		fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
		fmt.Fprintf(os.Stderr, "  Workers:      %d\n", workers)
		fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", cfg.Output.Dir)
		fmt.Fprintf(os.Stderr, "\n")

		if err := os.MkdirAll(cfg.Output.Dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}

		processor := worker.NewBatchProcessor(a.pipeline, workers, cfg.Concurrency.RateLimit, cfg.Concurrency.Burst)
		results, err := processor.ProcessFile(ctx, file)
		if err != nil {
			return fmt.Errorf("process file: %w", err)
		}

		successCount := 0
		failureCount := 0
		for _, result := range results {
			if result.Report != nil {
				path := filepath.Join(cfg.Output.Dir, runkit.SourceName(result.URL)+"_investigation.json")
				if err := writeArtifact(path, result.Report); err != nil {
					fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.URL, err)
					failureCount++
					continue
				}
			}
			if result.Error != nil {
				failureCount++
				fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.URL, result.Error)
				continue
			}

			successCount++
			fmt.Fprintf(os.Stderr, "✓ %s (%s, %s, %d endpoints)\n", result.URL,
				result.Report.PlatformDetected, result.Report.RecommendedStrategy,
				len(result.Report.DiscoveredEndpoints))
		}

		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
		fmt.Fprintf(os.Stderr, "  Batch Complete\n")
		fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "  Total:     %d URLs\n", len(results))
		fmt.Fprintf(os.Stderr, "  Success:   %d\n", successCount)
		fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount)
		fmt.Fprintf(os.Stderr, "  Output:    %s\n", cfg.Output.Dir)
		fmt.Fprintf(os.Stderr, "\n")

		return nil
	})
}
