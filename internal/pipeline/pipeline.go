// Package pipeline sequences the investigator, pagination detector, selector
// synthesizer, program generator and QA validator, and persists what they
// produce.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/sitescout/internal/browser"
	"github.com/ppiankov/sitescout/internal/cache"
	"github.com/ppiankov/sitescout/internal/fetch"
	"github.com/ppiankov/sitescout/internal/generate"
	"github.com/ppiankov/sitescout/internal/investigate"
	"github.com/ppiankov/sitescout/internal/llm"
	"github.com/ppiankov/sitescout/internal/metrics"
	"github.com/ppiankov/sitescout/internal/model"
	"github.com/ppiankov/sitescout/internal/paginate"
	"github.com/ppiankov/sitescout/internal/qa"
	"github.com/ppiankov/sitescout/internal/selector"
	"github.com/ppiankov/sitescout/internal/store"
	"github.com/ppiankov/sitescout/pkg/runkit"
)

// Stage names used for metrics and logs
const (
	StageInvestigate = "investigate"
	StagePaginate    = "paginate"
	StageSelectors   = "selectors"
	StageGenerate    = "generate"
	StageQA          = "qa"
)

// ErrProgramExists is returned when a program file of the same name and
// version already holds different source
var ErrProgramExists = errors.New("program version already written with different source")

// Options carries the collaborators a pipeline does not build itself
type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.Metrics // nil disables metrics
	Ledger  store.Ledger     // nil disables the run ledger
	Browser browser.Factory  // nil disables browser-backed stages
	Fetcher *fetch.Fetcher   // nil builds one from Config.HTTP
}

// Pipeline orchestrates the complete scouting process
type Pipeline struct {
	investigator *investigate.Investigator
	detector     *paginate.Detector
	synthesizer  *selector.Synthesizer
	loader       *PageLoader
	validator    *qa.Validator
	ledger       store.Ledger
	metrics      *metrics.Metrics
	logger       *zap.Logger
	config       model.Config
}

// NewPipeline creates a new pipeline with the given configuration
func NewPipeline(cfg model.Config, opts Options) (*Pipeline, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = fetch.NewFetcher(cfg.HTTP, logger.Named("fetch"))
	}

	var artifacts *cache.Artifacts
	if cfg.Cache.Enabled {
		artifacts = cache.NewArtifacts(
			cache.NewLayeredCache(cfg.Cache.TTL, expandHome(cfg.Cache.Dir), cfg.Cache.TTL),
			cfg.Cache.TTL,
			opts.Metrics,
		)
	}

	qaOpts := qa.Options{
		Budget:   cfg.QA.Budget,
		Recorder: opts.Metrics,
		Logger:   logger.Named("qa"),
	}
	if cfg.QA.ItemsSchema != "" {
		schemas, err := qa.LoadSchemas(cfg.QA.ItemsSchema)
		if err != nil {
			return nil, fmt.Errorf("load qa schemas: %w", err)
		}
		qaOpts.Schemas = schemas
	}
	narrator, err := llm.NewNarrator(llm.ConfigFromModel(cfg.LLM), logger.Named("llm"))
	if err != nil {
		logger.Warn("LLM narrative disabled", zap.Error(err))
	} else if narrator != nil {
		qaOpts.Narrator = narrator
	}
	validator, err := qa.NewValidator(qaOpts)
	if err != nil {
		return nil, fmt.Errorf("create qa validator: %w", err)
	}

	return &Pipeline{
		investigator: investigate.New(fetcher, investigate.Options{
			Config:        cfg.Investigate,
			RespectRobots: cfg.HTTP.RespectRobots,
			Browser:       browserFor(cfg.Investigate.UseBrowser, opts.Browser),
			Artifacts:     artifacts,
			Logger:        logger.Named("investigate"),
		}),
		detector: paginate.NewDetector(paginate.Options{
			Config:    cfg.Pagination,
			Browser:   opts.Browser,
			Artifacts: artifacts,
			Logger:    logger.Named("paginate"),
		}),
		synthesizer: selector.NewSynthesizer(logger.Named("selector"), artifacts),
		loader:      NewPageLoader(fetcher, opts.Browser, cfg.Pagination.PageLoad, cfg.Pagination.SettleDelay, logger.Named("loader")),
		validator:   validator,
		ledger:      opts.Ledger,
		metrics:     opts.Metrics,
		logger:      logger,
		config:      cfg,
	}, nil
}

func browserFor(enabled bool, factory browser.Factory) browser.Factory {
	if !enabled {
		return nil
	}
	return factory
}

// Investigate runs endpoint and platform discovery for one URL
func (p *Pipeline) Investigate(ctx context.Context, url string) (*model.InvestigationReport, error) {
	defer p.observe(StageInvestigate, time.Now())
	report, err := p.investigator.Investigate(ctx, url)
	if report != nil {
		p.metrics.AddProbed(report.Metadata.EndpointsProbed)
	}
	p.fail(StageInvestigate, err)
	return report, err
}

// Paginate detects the pagination mechanism of a listing page
func (p *Pipeline) Paginate(ctx context.Context, url, itemSelector string) (*model.PaginationStrategy, error) {
	defer p.observe(StagePaginate, time.Now())
	strategy, err := p.detector.Detect(ctx, url, itemSelector)
	p.fail(StagePaginate, err)
	return strategy, err
}

// Selectors loads a listing page and synthesizes its selector map
func (p *Pipeline) Selectors(ctx context.Context, url string) (*model.DOMSelectorMap, error) {
	defer p.observe(StageSelectors, time.Now())
	page, err := p.loader.Load(ctx, url)
	if err != nil {
		p.fail(StageSelectors, err)
		return nil, fmt.Errorf("load page: %w", err)
	}
	selectors, err := p.synthesizer.Synthesize(ctx, url, page.HTML)
	p.fail(StageSelectors, err)
	return selectors, err
}

// Generate renders a program and writes it under dir
func (p *Pipeline) Generate(ctx context.Context, in generate.Input, dir string) (*model.ExtractionProgram, string, error) {
	defer p.observe(StageGenerate, time.Now())
	program, err := generate.Generate(in)
	if err != nil {
		p.fail(StageGenerate, err)
		return nil, "", fmt.Errorf("generate: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, "", fmt.Errorf("create output directory: %w", err)
	}
	path := filepath.Join(dir, generate.FileName(program.Name, program.Version))
	if err := writeProgram(path, program.Source); err != nil {
		p.fail(StageGenerate, err)
		return nil, "", err
	}

	p.recordProgram(ctx, program, path)
	return program, path, nil
}

// ScoutResult is everything one end-to-end run produced
type ScoutResult struct {
	Investigation *model.InvestigationReport
	Pagination    *model.PaginationStrategy
	Selectors     *model.DOMSelectorMap
	Program       *model.ExtractionProgram
	ProgramPath   string
	Artifacts     []string
}

// Scout runs every stage for url and writes the artifacts under dir. The
// selector and pagination stages only run for the browser strategy.
func (p *Pipeline) Scout(ctx context.Context, url, dir string) (*ScoutResult, error) {
	result := &ScoutResult{}
	name := runkit.SourceName(url)

	report, err := p.Investigate(ctx, url)
	if report == nil {
		return nil, fmt.Errorf("investigate: %w", err)
	}
	result.Investigation = report
	if err := p.writeArtifact(result, dir, name+"_investigation.json", report); err != nil {
		return result, err
	}
	if err != nil {
		return result, fmt.Errorf("investigate: %w", err)
	}

	in := generate.Input{
		Name:          name,
		TargetURL:     url,
		Investigation: report,
	}

	if report.RecommendedStrategy == model.StrategyBrowser {
		selectors, err := p.Selectors(ctx, url)
		if selectors != nil {
			if werr := p.writeArtifact(result, dir, name+"_selectors.json", selectors); werr != nil {
				return result, werr
			}
		}
		if err != nil {
			return result, fmt.Errorf("selectors: %w", err)
		}
		result.Selectors = selectors
		in.Selectors = selectors

		strategy, err := p.Paginate(ctx, url, selectors.ItemContainerSelector)
		switch {
		case errors.Is(err, paginate.ErrNoBrowser):
			p.logger.Warn("no browser configured, generating a single-page program", zap.String("url", url))
		case err != nil:
			if strategy != nil {
				_ = p.writeArtifact(result, dir, name+"_pagination.json", strategy)
			}
			return result, fmt.Errorf("paginate: %w", err)
		default:
			result.Pagination = strategy
			in.Pagination = strategy
			if werr := p.writeArtifact(result, dir, name+"_pagination.json", strategy); werr != nil {
				return result, werr
			}
		}
	}

	program, path, err := p.Generate(ctx, in, dir)
	if err != nil {
		return result, err
	}
	result.Program = program
	result.ProgramPath = path
	result.Artifacts = append(result.Artifacts, path)
	return result, nil
}

// QA validates a program's output and, when requested, repairs the program
func (p *Pipeline) QA(ctx context.Context, req qa.Request) *model.QAReport {
	defer p.observe(StageQA, time.Now())
	report := p.validator.Run(ctx, req)
	if report.Error != "" {
		p.metrics.IncError(StageQA, errorKind(report))
	}
	p.recordQA(ctx, req.ProgramFile, report)
	return report
}

// History returns the ledger entries for a program name
func (p *Pipeline) History(ctx context.Context, name string, limit int) ([]store.Entry, error) {
	if p.ledger == nil {
		return nil, errors.New("run ledger is disabled (set ledger.dsn)")
	}
	return p.ledger.History(ctx, name, limit)
}

func (p *Pipeline) writeArtifact(result *ScoutResult, dir, file string, v interface{}) error {
	path := filepath.Join(dir, file)
	if err := WriteJSON(path, v); err != nil {
		return fmt.Errorf("write %s: %w", file, err)
	}
	result.Artifacts = append(result.Artifacts, path)
	return nil
}

// writeProgram creates path exclusively. An existing file with identical
// source is accepted; programs are never rewritten in place.
func writeProgram(path string, src []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if errors.Is(err, fs.ErrExist) {
		existing, rerr := os.ReadFile(path)
		if rerr != nil {
			return fmt.Errorf("read existing program: %w", rerr)
		}
		if bytes.Equal(existing, src) {
			return nil
		}
		return fmt.Errorf("%s: %w", path, ErrProgramExists)
	}
	if err != nil {
		return fmt.Errorf("create program: %w", err)
	}
	if _, err := f.Write(src); err != nil {
		f.Close()
		return fmt.Errorf("write program: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write program: %w", err)
	}
	return nil
}

func (p *Pipeline) recordProgram(ctx context.Context, program *model.ExtractionProgram, path string) {
	if p.ledger == nil {
		return
	}
	err := p.ledger.RecordProgram(ctx, store.NewProgramRecord(program, path))
	switch {
	case errors.Is(err, store.ErrDuplicateVersion):
		p.logger.Debug("program version already in ledger",
			zap.String("name", program.Name), zap.Int("version", program.Version))
	case err != nil:
		p.logger.Warn("ledger write failed", zap.Error(err))
	}
}

func (p *Pipeline) recordQA(ctx context.Context, programFile string, report *model.QAReport) {
	if p.ledger == nil || programFile == "" {
		return
	}
	src, err := os.ReadFile(programFile)
	if err != nil {
		return
	}
	program, err := generate.Program(src)
	if err != nil {
		p.logger.Debug("program header unreadable, QA run not recorded", zap.Error(err))
		return
	}

	if err := p.ledger.RecordQARun(ctx, store.NewQARunRecord(program.Name, program.Version, report)); err != nil {
		p.logger.Warn("ledger write failed", zap.Error(err))
	}

	repaired := report.AutoRefactor
	if repaired == nil || repaired.RepairedProgram == "" {
		return
	}
	out, err := os.ReadFile(repaired.RepairedProgram)
	if err != nil {
		return
	}
	next, err := generate.Program(out)
	if err != nil {
		return
	}
	next.ParentDigest = program.Digest
	p.recordProgram(ctx, next, repaired.RepairedProgram)
}

func (p *Pipeline) observe(stage string, start time.Time) {
	p.metrics.ObserveStage(stage, time.Since(start))
}

func (p *Pipeline) fail(stage string, err error) {
	if err == nil {
		return
	}
	kind := "internal"
	var k model.Kinded
	if errors.As(err, &k) {
		kind = k.Kind()
	}
	p.metrics.IncError(stage, kind)
}

func errorKind(report *model.QAReport) string {
	if report.Error == model.KindSchemaInvalid {
		return model.KindSchemaInvalid
	}
	return "input"
}

func expandHome(dir string) string {
	if !strings.HasPrefix(dir, "~/") {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return dir
	}
	return filepath.Join(home, dir[2:])
}
