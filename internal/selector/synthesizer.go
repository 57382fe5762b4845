// Package selector finds the repeating item container of a listing page and
// synthesizes validated primary/fallback CSS selectors for each item field.
package selector

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/ppiankov/sitescout/internal/cache"
	"github.com/ppiankov/sitescout/internal/model"
)

// Search and validation sample sizes
const (
	searchLimit   = 50
	validateLimit = 10
)

// Synthesizer produces DOMSelectorMaps, caching them per page URL
type Synthesizer struct {
	logger    *zap.Logger
	artifacts *cache.Artifacts
}

// NewSynthesizer creates a synthesizer. Both arguments may be nil.
func NewSynthesizer(logger *zap.Logger, artifacts *cache.Artifacts) *Synthesizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synthesizer{logger: logger, artifacts: artifacts}
}

// Synthesize returns the selector map for a rendered page, from cache when available.
// When no repeating group exists the map carries an error and a
// *model.NoRepeatingPatternError is returned alongside it.
func (s *Synthesizer) Synthesize(ctx context.Context, pageURL, pageHTML string) (*model.DOMSelectorMap, error) {
	result, cached, err := cache.Load(ctx, s.artifacts, pageURL, cache.KindSelectors,
		func(ctx context.Context) (*model.DOMSelectorMap, error) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			return Synthesize(pageURL, pageHTML)
		})

	if result != nil {
		s.logger.Debug("selectors synthesized",
			zap.String("url", pageURL),
			zap.Bool("cached", cached),
			zap.String("container", result.ItemContainerSelector),
			zap.Int("items", result.TotalItemsFound),
			zap.Strings("unresolved", result.UnresolvedFields))
	}
	return result, err
}

// Synthesize builds a selector map from page HTML without caching
func Synthesize(pageURL, pageHTML string) (*model.DOMSelectorMap, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return SynthesizeDocument(pageURL, doc)
}

// SynthesizeDocument builds a selector map from a parsed document
func SynthesizeDocument(pageURL string, doc *goquery.Document) (*model.DOMSelectorMap, error) {
	result := &model.DOMSelectorMap{
		PageURL:        pageURL,
		FieldSelectors: make(map[string]model.FieldSelector),
	}

	container, _, largest := DetectContainer(doc)
	if container == nil {
		perr := &model.NoRepeatingPatternError{URL: pageURL, Largest: largest}
		result.Error = perr.Error()
		return result, perr
	}
	result.ItemContainerSelector = container.Selector
	result.ContainerScore = container.Score
	result.TotalItemsFound = container.Count

	var items []*goquery.Selection
	doc.Find(container.Selector).Each(func(_ int, s *goquery.Selection) {
		items = append(items, s)
	})
	searchItems := items
	if len(searchItems) > searchLimit {
		searchItems = searchItems[:searchLimit]
	}
	validationItems := sample(items, validateLimit)

	for _, spec := range fieldSpecs {
		fs, ok := synthesizeField(spec, searchItems, validationItems)
		if !ok {
			result.UnresolvedFields = append(result.UnresolvedFields, spec.name)
			continue
		}
		result.FieldSelectors[spec.name] = fs
	}

	return result, nil
}

// synthesizeField accepts the first pattern (and extraction mode) whose match
// rate over the search items reaches the field threshold
func synthesizeField(spec fieldSpec, searchItems, validationItems []*goquery.Selection) (model.FieldSelector, bool) {
	threshold := model.FieldThresholds[spec.name]

	for _, pattern := range spec.patterns {
		for _, mode := range spec.modes {
			rate := matchRate(searchItems, spec.name, pattern, mode)
			if rate < threshold {
				continue
			}

			primary := pattern
			if refined := refine(searchItems, pattern); refined != pattern &&
				matchRate(searchItems, spec.name, refined, mode) >= rate {
				primary = refined
			}

			fs := model.FieldSelector{
				Primary:        primary,
				Fallback:       DeriveFallback(primary, spec.name),
				Confidence:     rate,
				Tier:           model.AccuracyTier(rate),
				ExtractionMode: model.ModeText,
			}
			if mode != "" {
				fs.ExtractionMode = model.ModeAttribute
				fs.Attribute = mode
			}
			fs.Validation = validate(validationItems, spec.name, fs)
			return fs, true
		}
	}
	return model.FieldSelector{}, false
}

// validate re-tests a field selector on sampled items, counting an item as
// valid when the primary or the fallback yields a value
func validate(items []*goquery.Selection, field string, fs model.FieldSelector) model.SelectorValidity {
	v := model.SelectorValidity{Sampled: len(items)}
	if len(items) == 0 {
		v.Tier = model.TierLow
		return v
	}
	mode := fs.Attribute
	if field == model.FieldImages {
		mode = ""
	}
	valid := 0
	for _, item := range items {
		if present(item, field, fs.Primary, mode) || present(item, field, fs.Fallback, mode) {
			valid++
		}
	}
	v.Accuracy = float64(valid) / float64(len(items))
	v.Tier = model.AccuracyTier(v.Accuracy)
	return v
}
