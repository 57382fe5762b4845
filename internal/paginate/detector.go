// Package paginate probes a listing page in a browser session and decides
// which pagination mechanism it uses.
package paginate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/ppiankov/sitescout/internal/browser"
	"github.com/ppiankov/sitescout/internal/cache"
	"github.com/ppiankov/sitescout/internal/investigate"
	"github.com/ppiankov/sitescout/internal/model"
	"github.com/ppiankov/sitescout/internal/selector"
)

// ErrNoBrowser is returned when no browser factory is configured
var ErrNoBrowser = errors.New("pagination detection requires a browser")

// Options configures a Detector
type Options struct {
	Config    model.PaginationConfig
	Browser   browser.Factory
	Artifacts *cache.Artifacts
	Logger    *zap.Logger
}

// Detector runs the ordered pagination probes
type Detector struct {
	cfg       model.PaginationConfig
	browser   browser.Factory
	artifacts *cache.Artifacts
	logger    *zap.Logger
}

// NewDetector creates a detector
func NewDetector(opts Options) *Detector {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := opts.Config
	defaults := model.DefaultConfig().Pagination
	if cfg.Budget <= 0 {
		cfg.Budget = defaults.Budget
	}
	if cfg.PageLoad <= 0 {
		cfg.PageLoad = defaults.PageLoad
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = 0
	}
	return &Detector{cfg: cfg, browser: opts.Browser, artifacts: opts.Artifacts, logger: logger}
}

// Detect returns the pagination strategy for targetURL, from cache when available.
// An empty itemSelector is derived from the loaded page. CAPTCHA markers
// abort detection with a *model.AntiBotError and a strategy carrying
// error=captcha_detected.
func (d *Detector) Detect(ctx context.Context, targetURL, itemSelector string) (*model.PaginationStrategy, error) {
	strategy, cached, err := cache.Load(ctx, d.artifacts, targetURL, cache.KindPagination,
		func(ctx context.Context) (*model.PaginationStrategy, error) {
			return d.detect(ctx, targetURL, itemSelector)
		})
	if strategy != nil && err == nil {
		d.logger.Info("pagination detected",
			zap.String("url", targetURL),
			zap.Bool("cached", cached),
			zap.String("type", string(strategy.Type)),
			zap.String("confidence", string(strategy.Confidence)))
	}
	return strategy, err
}

// probe is one pagination check run against a freshly loaded page
type probe struct {
	kind model.PaginationType
	run  func(ctx context.Context, s *session) (*outcome, error)
}

// outcome is a probe's trace plus what it learned for the strategy
type outcome struct {
	result        model.ProbeResult
	loadMore      string
	next          string
	pageParameter string
	apiURLs       []string
}

func (d *Detector) detect(ctx context.Context, targetURL, itemSelector string) (*model.PaginationStrategy, error) {
	if d.browser == nil {
		return nil, ErrNoBrowser
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.Budget)
	defer cancel()

	strategy := &model.PaginationStrategy{
		PageURL:    targetURL,
		Probes:     []model.ProbeResult{},
		WaitTimeMS: int(d.cfg.SettleDelay / time.Millisecond),
	}

	driver, err := d.browser(ctx)
	if errors.Is(err, browser.ErrUnavailable) {
		return nil, fmt.Errorf("%w: %v", ErrNoBrowser, err)
	}
	if err != nil {
		return nil, fmt.Errorf("open browser: %w", err)
	}
	defer driver.Close()

	s := &session{driver: driver, target: targetURL, pageLoad: d.cfg.PageLoad, settle: d.cfg.SettleDelay}

	doc, err := s.load(ctx)
	if err != nil {
		return d.fail(strategy, err)
	}

	if itemSelector == "" {
		if container, _, _ := selector.DetectContainer(doc); container != nil {
			itemSelector = container.Selector
		} else {
			strategy.Notes = "no repeating item container found"
		}
	}
	s.items = itemSelector
	strategy.Selectors.ItemContainer = itemSelector
	if strategy.ItemsPerPage, err = s.count(ctx); err != nil {
		return d.fail(strategy, err)
	}

	probes := []probe{
		{model.PaginationInfiniteScroll, scrollProbe},
		{model.PaginationLoadMore, loadMoreProbe},
		{model.PaginationTraditional, traditionalProbe},
		{model.PaginationAPI, apiProbe},
	}

	var best *outcome
	for i, p := range probes {
		if i > 0 {
			if _, err := s.load(ctx); err != nil {
				return d.fail(strategy, err)
			}
		}

		out, err := p.run(ctx, s)
		if err != nil {
			var antiBot *model.AntiBotError
			if errors.As(err, &antiBot) || ctx.Err() != nil {
				return d.fail(strategy, err)
			}
			d.logger.Debug("pagination probe failed", zap.String("probe", string(p.kind)), zap.Error(err))
			out = &outcome{result: model.ProbeResult{Type: p.kind, Tier: model.TierLow, Detail: err.Error()}}
		}
		out.result.Type = p.kind
		out.result.Tier = model.ProbeTier(out.result.Score)
		strategy.Probes = append(strategy.Probes, out.result)

		if out.result.Fired && (best == nil || out.result.Score > best.result.Score) {
			best = out
		}
		if out.result.Fired && out.result.Tier == model.TierHigh {
			break
		}
	}

	if best == nil {
		strategy.Type = model.PaginationNone
		strategy.Confidence = model.TierMedium
		strategy.ConfidenceScore = model.ProbeMedium
		strategy.EndCondition = model.EndConditionFor(model.PaginationNone)
		return strategy, nil
	}

	strategy.Type = best.result.Type
	strategy.Confidence = best.result.Tier
	strategy.ConfidenceScore = best.result.Score
	strategy.EndCondition = model.EndConditionFor(best.result.Type)
	strategy.Selectors.LoadMoreButton = best.loadMore
	strategy.Selectors.NextButton = best.next
	strategy.PageParameter = best.pageParameter
	strategy.APIURLs = best.apiURLs
	return strategy, nil
}

// fail records err on the strategy. CAPTCHA aborts return the strategy;
// other failures return only the error.
func (d *Detector) fail(strategy *model.PaginationStrategy, err error) (*model.PaginationStrategy, error) {
	var antiBot *model.AntiBotError
	if errors.As(err, &antiBot) {
		strategy.Error = model.KindCaptcha
		strategy.Notes = "manual intervention required"
		return strategy, err
	}
	return nil, err
}

// session wraps the driver with the item selector and timing settings
type session struct {
	driver   browser.Driver
	target   string
	items    string
	pageLoad time.Duration
	settle   time.Duration
}

// load navigates to the target and returns the settled snapshot
func (s *session) load(ctx context.Context) (*goquery.Document, error) {
	loadCtx, cancel := context.WithTimeout(ctx, s.pageLoad)
	defer cancel()

	if err := s.driver.Navigate(loadCtx, s.target); err != nil {
		return nil, &model.NetworkError{URL: s.target, Err: err}
	}
	if err := s.driver.WaitIdle(loadCtx, s.settle); err != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return s.snapshot(ctx)
}

// settleDown waits for network quiet after an interaction
func (s *session) settleDown(ctx context.Context) error {
	if err := s.driver.WaitIdle(ctx, s.settle); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// snapshot parses the current DOM, aborting on CAPTCHA markers
func (s *session) snapshot(ctx context.Context) (*goquery.Document, error) {
	page, err := s.driver.HTML(ctx)
	if err != nil {
		return nil, err
	}
	if signals := investigate.DetectCaptcha(page); len(signals) > 0 {
		return nil, &model.AntiBotError{URL: s.target, Signals: signals, Captcha: true}
	}
	return goquery.NewDocumentFromReader(strings.NewReader(page))
}

func (s *session) count(ctx context.Context) (int, error) {
	if s.items == "" {
		return 0, nil
	}
	return s.driver.Count(ctx, s.items)
}
