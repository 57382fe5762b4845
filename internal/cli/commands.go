package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/sitescout/internal/generate"
	"github.com/ppiankov/sitescout/internal/model"
	"github.com/ppiankov/sitescout/internal/pipeline"
	"github.com/ppiankov/sitescout/internal/qa"
	"github.com/ppiankov/sitescout/pkg/runkit"
)

var (
	outJSON      string
	itemSelector string

	genInvestigation string
	genSelectors     string
	genPagination    string
	genName          string

	qaItems    string
	qaMetadata string
	qaProgram  string
	qaRepair   bool
	qaOut      string

	historyLimit int
	historyJSON  bool
)

var investigateCmd = &cobra.Command{
	Use:   "investigate <url>",
	Short: "Detect the platform and discover listing API endpoints",
	Long: `Investigate fetches the target page, detects its platform, probes
known, common, script-referenced and (optionally) browser-captured API
endpoints, and recommends either the api or the browser strategy.

Example:
  sitescout investigate https://shop.example.com/collections/all
  sitescout investigate https://shop.example.com --json report.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			url := args[0]
			report, err := a.pipeline.Investigate(ctx, url)
			if report == nil {
				return fmt.Errorf("investigation failed: %w", err)
			}
			if werr := writeArtifact(a.outputPath(outJSON, runkit.SourceName(url)+"_investigation.json"), report); werr != nil {
				return werr
			}
			pipeline.RenderInvestigation(os.Stderr, report)
			return err
		})
	},
}

var paginateCmd = &cobra.Command{
	Use:   "paginate <url>",
	Short: "Detect how a listing page paginates",
	Long: `Paginate loads the page in a headless browser and runs the
infinite-scroll, load-more, next-link and API probes in order.

Example:
  sitescout paginate https://shop.example.com/catalog
  sitescout paginate https://shop.example.com/catalog --item-selector "li.product"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			url := args[0]
			strategy, err := a.pipeline.Paginate(ctx, url, itemSelector)
			if strategy == nil {
				return fmt.Errorf("pagination detection failed: %w", err)
			}
			if werr := writeArtifact(a.outputPath(outJSON, runkit.SourceName(url)+"_pagination.json"), strategy); werr != nil {
				return werr
			}
			pipeline.RenderPagination(os.Stderr, strategy)
			return err
		})
	},
}

var selectorsCmd = &cobra.Command{
	Use:   "selectors <url>",
	Short: "Synthesize item and field selectors for a listing page",
	Long: `Selectors finds the repeating item container on the rendered page and
derives validated primary and fallback selectors for title, price, images,
link and description.

Example:
  sitescout selectors https://shop.example.com/catalog`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			url := args[0]
			selectors, err := a.pipeline.Selectors(ctx, url)
			if selectors == nil {
				return fmt.Errorf("selector synthesis failed: %w", err)
			}
			if werr := writeArtifact(a.outputPath(outJSON, runkit.SourceName(url)+"_selectors.json"), selectors); werr != nil {
				return werr
			}
			pipeline.RenderSelectors(os.Stderr, selectors)
			return err
		})
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate <url>",
	Short: "Generate an extraction program from saved artifacts",
	Long: `Generate composes a Go extraction program from an investigation report
and, for the browser strategy, a selector map and pagination strategy.

Example:
  sitescout generate https://shop.example.com --investigation inv.json
  sitescout generate https://shop.example.com --investigation inv.json \
      --selectors sel.json --pagination pag.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			in := generate.Input{Name: genName, TargetURL: args[0]}

			var report model.InvestigationReport
			if err := readArtifact(genInvestigation, &report); err != nil {
				return err
			}
			in.Investigation = &report
			if genSelectors != "" {
				var m model.DOMSelectorMap
				if err := readArtifact(genSelectors, &m); err != nil {
					return err
				}
				in.Selectors = &m
			}
			if genPagination != "" {
				var s model.PaginationStrategy
				if err := readArtifact(genPagination, &s); err != nil {
					return err
				}
				in.Pagination = &s
			}

			program, path, err := a.pipeline.Generate(ctx, in, a.cfg.Output.Dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "✓ Generated %s v%d (%s/%s)\n", program.Name, program.Version, program.Strategy, program.PaginationType)
			fmt.Fprintf(os.Stderr, "  wrote %s\n", path)
			return nil
		})
	},
}

var qaCmd = &cobra.Command{
	Use:   "qa",
	Short: "Validate a program's output and optionally repair the program",
	Long: `QA checks an items file against its metadata file: schemas, item
count, file references, timestamps and field completeness. On failure it
diagnoses root causes in the program and, with --repair, writes the next
program version next to the original.

Example:
  sitescout qa --items items.json --metadata meta.json
  sitescout qa --items items.json --metadata meta.json --program shop_v1.go --repair`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			report := a.pipeline.QA(ctx, qa.Request{
				ItemsFile:    qaItems,
				MetadataFile: qaMetadata,
				ProgramFile:  qaProgram,
				Repair:       qaRepair || a.cfg.QA.AutoRepair,
			})
			if qaOut != "" {
				if err := writeArtifact(qaOut, report); err != nil {
					return err
				}
			}
			pipeline.RenderQA(os.Stderr, report)
			if !report.Passed() {
				return fmt.Errorf("qa %s", report.Status)
			}
			return nil
		})
	},
}

var scoutCmd = &cobra.Command{
	Use:   "scout <url>",
	Short: "Run the full pipeline and write a program for the target",
	Long: `Scout investigates the target, runs selector synthesis and pagination
detection when the browser strategy is recommended, and generates the
extraction program. Every artifact lands in the output directory.

Example:
  sitescout scout https://shop.example.com/collections/all
  sitescout scout https://shop.example.com --output-dir ./shop`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			result, err := a.pipeline.Scout(ctx, args[0], a.cfg.Output.Dir)
			if result != nil {
				pipeline.RenderScout(os.Stderr, result)
			}
			return err
		})
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <name>",
	Short: "Show program versions and QA runs from the run ledger",
	Long: `History lists the recorded versions of a program and the QA runs made
against them, newest first. Requires ledger.dsn.

Example:
  sitescout history shop_example_com --ledger ./ledger.db`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			entries, err := a.pipeline.History(ctx, args[0], historyLimit)
			if err != nil {
				return err
			}
			if historyJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}
			pipeline.RenderHistory(os.Stdout, args[0], entries)
			return nil
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{investigateCmd, paginateCmd, selectorsCmd} {
		cmd.Flags().StringVar(&outJSON, "json", "", "output JSON path (default: <output-dir>/<name>_<stage>.json)")
		cmd.Flags().Duration("timeout", 2*time.Minute, "overall timeout")
		rootCmd.AddCommand(cmd)
	}
	paginateCmd.Flags().StringVar(&itemSelector, "item-selector", "", "item container selector (derived from the page when empty)")

	generateCmd.Flags().StringVar(&genInvestigation, "investigation", "", "investigation report JSON")
	generateCmd.Flags().StringVar(&genSelectors, "selectors", "", "selector map JSON (browser strategy)")
	generateCmd.Flags().StringVar(&genPagination, "pagination", "", "pagination strategy JSON (browser strategy)")
	generateCmd.Flags().StringVar(&genName, "name", "", "program name (default: derived from the URL)")
	_ = generateCmd.MarkFlagRequired("investigation")
	rootCmd.AddCommand(generateCmd)

	qaCmd.Flags().StringVar(&qaItems, "items", "", "items JSON file")
	qaCmd.Flags().StringVar(&qaMetadata, "metadata", "", "metadata JSON file")
	qaCmd.Flags().StringVar(&qaProgram, "program", "", "program that produced the files (enables diagnosis)")
	qaCmd.Flags().BoolVar(&qaRepair, "repair", false, "write a repaired program version on failure")
	qaCmd.Flags().StringVar(&qaOut, "json", "", "write the QA report to this path")
	_ = qaCmd.MarkFlagRequired("items")
	_ = qaCmd.MarkFlagRequired("metadata")
	rootCmd.AddCommand(qaCmd)

	scoutCmd.Flags().Duration("timeout", 5*time.Minute, "overall timeout")
	rootCmd.AddCommand(scoutCmd)

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "maximum entries (0 for all)")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "print entries as JSON")
	rootCmd.AddCommand(historyCmd)
}

// withApp builds the app, bounds the command by --timeout and releases
// everything afterwards
func withApp(cmd *cobra.Command, run func(ctx context.Context, a *app) error) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if timeout, err := cmd.Flags().GetDuration("timeout"); err == nil && timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return run(ctx, a)
}

func writeArtifact(path string, v interface{}) error {
	if err := pipeline.WriteJSON(path, v); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if verbose {
		fmt.Fprintf(os.Stderr, "✓ Wrote %s\n", path)
	}
	return nil
}

func readArtifact(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
