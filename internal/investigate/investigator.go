// Package investigate discovers a target's platform and listing API endpoints
// and recommends an extraction strategy.
package investigate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/sitescout/internal/browser"
	"github.com/ppiankov/sitescout/internal/cache"
	"github.com/ppiankov/sitescout/internal/fetch"
	"github.com/ppiankov/sitescout/internal/model"
	"github.com/ppiankov/sitescout/internal/score"
	"github.com/ppiankov/sitescout/internal/worker"
)

var errSkipped = errors.New("technique skipped")

// MaxWorkers caps concurrent discovery techniques and endpoint probes
const MaxWorkers = 5

// Options configures an Investigator
type Options struct {
	Config        model.InvestigateConfig
	RespectRobots bool
	Browser       browser.Factory // nil skips network capture
	Artifacts     *cache.Artifacts
	Logger        *zap.Logger
}

// Investigator runs platform detection, endpoint discovery and validation
type Investigator struct {
	fetcher   *fetch.Fetcher
	robots    *fetch.RobotsChecker
	limiter   *worker.Limiter
	registry  *Registry
	scorer    *score.Scorer
	browser   browser.Factory
	artifacts *cache.Artifacts
	cfg       model.InvestigateConfig
	logger    *zap.Logger
	now       func() time.Time
}

// New creates an investigator using fetcher for all HTTP traffic
func New(fetcher *fetch.Fetcher, opts Options) *Investigator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg := opts.Config
	defaults := model.DefaultConfig().Investigate
	if cfg.Workers <= 0 || cfg.Workers > MaxWorkers {
		cfg.Workers = MaxWorkers
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaults.ProbeTimeout
	}
	if cfg.PageLoad <= 0 {
		cfg.PageLoad = defaults.PageLoad
	}
	if cfg.PhaseBudget <= 0 {
		cfg.PhaseBudget = defaults.PhaseBudget
	}

	inv := &Investigator{
		fetcher:   fetcher,
		limiter:   worker.NewLimiter(cfg.RateLimit, cfg.Workers),
		registry:  NewRegistry(),
		scorer:    score.NewScorer(),
		browser:   opts.Browser,
		artifacts: opts.Artifacts,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
	if opts.RespectRobots {
		inv.robots = fetch.NewRobotsChecker(fetcher.Client(), fetcher.UserAgent())
	}
	return inv
}

// Investigate returns the investigation report for targetURL, from cache when available.
// An unreachable target yields a report with error=network_unreachable
// together with a *model.NetworkError.
func (i *Investigator) Investigate(ctx context.Context, targetURL string) (*model.InvestigationReport, error) {
	report, cached, err := cache.Load(ctx, i.artifacts, targetURL, cache.KindInvestigation,
		func(ctx context.Context) (*model.InvestigationReport, error) {
			return i.run(ctx, targetURL)
		})
	if report != nil {
		i.logger.Info("investigation complete",
			zap.String("url", targetURL),
			zap.Bool("cached", cached),
			zap.String("platform", string(report.PlatformDetected)),
			zap.String("strategy", string(report.RecommendedStrategy)),
			zap.Int("endpoints", len(report.DiscoveredEndpoints)))
	}
	return report, err
}

func (i *Investigator) run(ctx context.Context, targetURL string) (*model.InvestigationReport, error) {
	start := i.now()
	report := &model.InvestigationReport{
		TargetURL:           targetURL,
		Timestamp:           start.UTC(),
		DiscoveredEndpoints: []model.DiscoveredEndpoint{},
		PlatformDetected:    model.PlatformCustom,
	}

	base, err := url.Parse(targetURL)
	if err != nil || base.Host == "" {
		report.Error = model.KindNetworkUnreachable
		return report, &model.NetworkError{URL: targetURL, Err: fmt.Errorf("invalid URL")}
	}

	// Phase 1: page fetch, platform signatures, anti-bot markers
	page, err := i.fetchPage(ctx, targetURL)
	if err != nil {
		report.Error = model.KindNetworkUnreachable
		report.Metadata.DurationSeconds = i.now().Sub(start).Seconds()
		return report, err
	}

	adapter, platformConfidence := i.registry.Detect(string(page.Body), page.Header)
	report.PlatformDetected = adapter.Platform()
	report.PlatformConfidence = platformConfidence

	report.AntiBot.Signals = DetectCaptcha(string(page.Body))
	if page.StatusCode == http.StatusForbidden {
		report.AntiBot.Signals = append(report.AntiBot.Signals, "persistent_403")
	}
	report.AntiBot.Detected = len(report.AntiBot.Signals) > 0

	// Phases 2 and 3 share one budget
	phaseCtx, cancel := context.WithTimeout(ctx, i.cfg.PhaseBudget)
	defer cancel()

	candidates, techniques := i.discover(phaseCtx, targetURL, base, adapter, string(page.Body))
	report.Metadata.TechniquesUsed = techniques

	v := &validator{
		fetcher:      i.fetcher,
		robots:       i.robots,
		limiter:      i.limiter,
		maxWorkers:   i.cfg.Workers,
		probeTimeout: i.cfg.ProbeTimeout,
		maxRetryWait: i.cfg.MaxRetryWait,
	}
	for _, result := range v.validate(phaseCtx, candidates) {
		switch {
		case result.endpoint != nil:
			report.DiscoveredEndpoints = append(report.DiscoveredEndpoints, *result.endpoint)
		case result.probeErr != nil:
			report.ProbeErrors = append(report.ProbeErrors, *result.probeErr)
		}
	}

	// Phase 4: decision
	decision := i.scorer.DecideStrategy(report)
	report.RecommendedStrategy = decision.Strategy
	report.ConfidenceScore = decision.Confidence
	report.Signals = decision.Signals

	report.Metadata.EndpointsProbed = len(candidates)
	report.Metadata.EndpointsFound = len(report.DiscoveredEndpoints)
	report.Metadata.DurationSeconds = i.now().Sub(start).Seconds()

	i.logger.Debug("endpoint validation finished",
		zap.String("url", targetURL),
		zap.Int("probed", len(candidates)),
		zap.Int("found", len(report.DiscoveredEndpoints)),
		zap.Int("errors", len(report.ProbeErrors)))

	return report, nil
}

// techniqueResult carries one discovery technique's candidates through the pool
type techniqueResult struct {
	technique  model.Technique
	candidates []candidate
	err        error
}

func (r *techniqueResult) GetError() error { return r.err }

// fetchPage fetches the target once, re-fetching a 403 to tell transient
// blocks from persistent ones
func (i *Investigator) fetchPage(ctx context.Context, targetURL string) (*fetch.Response, error) {
	pageCtx, cancel := context.WithTimeout(ctx, i.cfg.PageLoad)
	defer cancel()

	page, err := i.fetcher.GetWithRetry(pageCtx, targetURL, fetch.AcceptHTML, i.cfg.ProbeTimeout)
	if err != nil {
		if page != nil {
			// Rate limited past the single retry: still a reachable page
			return page, nil
		}
		return nil, err
	}
	if page.StatusCode != http.StatusForbidden {
		return page, nil
	}

	i.logger.Debug("target answered 403, re-fetching once", zap.String("url", targetURL))
	again, err := i.fetcher.Get(pageCtx, targetURL, fetch.AcceptHTML)
	if err != nil {
		return page, nil
	}
	return again, nil
}

// discover runs the techniques concurrently and merges their candidates in
// technique order, de-duplicated by URL
func (i *Investigator) discover(ctx context.Context, target string, base *url.URL, adapter Adapter, page string) ([]candidate, []model.Technique) {
	scanner := &scriptScanner{
		transport: i.fetcher.Client().Transport,
		userAgent: i.fetcher.UserAgent(),
		timeout:   i.cfg.ProbeTimeout,
		logger:    i.logger,
	}

	jobs := []struct {
		technique model.Technique
		run       func(ctx context.Context) ([]candidate, error)
	}{
		{model.TechniqueKnownPath, func(context.Context) ([]candidate, error) {
			return knownPathCandidates(base, adapter), nil
		}},
		{model.TechniqueScriptScan, func(ctx context.Context) ([]candidate, error) {
			return scanner.scan(ctx, base, page), nil
		}},
		{model.TechniqueNetworkCapture, func(ctx context.Context) ([]candidate, error) {
			if i.browser == nil || !i.cfg.UseBrowser {
				return nil, errSkipped
			}
			return captureNetwork(ctx, i.browser, target, base)
		}},
		{model.TechniqueCommonPath, func(context.Context) ([]candidate, error) {
			return commonPathCandidates(base), nil
		}},
	}

	pool := worker.NewPool(ctx, i.cfg.Workers)
	pool.Start()
	for _, job := range jobs {
		job := job
		pool.Submit(worker.FuncJob(func(ctx context.Context) worker.Result {
			probeCtx, cancel := context.WithTimeout(ctx, i.cfg.ProbeTimeout)
			defer cancel()
			found, err := job.run(probeCtx)
			return &techniqueResult{technique: job.technique, candidates: found, err: err}
		}))
	}

	byTechnique := make(map[model.Technique]*techniqueResult)
	for _, r := range pool.Wait() {
		if tr, ok := r.(*techniqueResult); ok {
			byTechnique[tr.technique] = tr
		}
	}

	var merged []candidate
	var used []model.Technique
	for _, job := range jobs {
		tr := byTechnique[job.technique]
		if tr == nil || errors.Is(tr.err, errSkipped) {
			continue
		}
		if tr.err != nil {
			i.logger.Debug("discovery technique failed",
				zap.String("technique", string(job.technique)), zap.Error(tr.err))
			continue
		}
		used = append(used, job.technique)
		merged = append(merged, tr.candidates...)
	}
	return dedupe(merged), used
}
