package score

import (
	"fmt"
	"sort"

	"github.com/ppiankov/sitescout/internal/model"
)

// Signal types
const (
	SignalEndpointConfidence = "endpoint_confidence"
	SignalAntiBot            = "anti_bot"
	SignalPlatform           = "platform_match"
	SignalQuality            = "data_quality"
)

// Strategy confidence values
const (
	ConfidenceHighAPI   = 0.9
	ConfidenceMediumAPI = 0.6
	ConfidenceBrowser   = 0.3
)

// Decision is a recommended strategy with the signals that produced it
type Decision struct {
	Strategy   model.Strategy
	Confidence float64
	Signals    []model.Signal
}

// Scorer turns probe results into decisions and checks into quality scores
type Scorer struct{}

// NewScorer creates a new scorer
func NewScorer() *Scorer {
	return &Scorer{}
}

// DecideStrategy picks api or browser from the best endpoint tier.
// Anti-bot protection forces browser regardless of endpoints.
func (s *Scorer) DecideStrategy(report *model.InvestigationReport) Decision {
	var signals []model.Signal

	platformSignal := s.platformSignal(report)
	signals = append(signals, platformSignal)

	tier := report.HighestTier()
	endpointSignal := s.endpointSignal(report, tier)
	signals = append(signals, endpointSignal)

	if report.AntiBot.Detected {
		signals = append(signals, model.Signal{
			Type:        SignalAntiBot,
			Description: "Anti-bot protection detected, browser extraction required",
			Data: map[string]interface{}{
				"markers": report.AntiBot.Signals,
				"score":   ConfidenceBrowser,
			},
		})
		return Decision{Strategy: model.StrategyBrowser, Confidence: ConfidenceBrowser, Signals: signals}
	}

	switch tier {
	case model.TierHigh:
		return Decision{Strategy: model.StrategyAPI, Confidence: ConfidenceHighAPI, Signals: signals}
	case model.TierMedium:
		return Decision{Strategy: model.StrategyAPI, Confidence: ConfidenceMediumAPI, Signals: signals}
	default:
		return Decision{Strategy: model.StrategyBrowser, Confidence: ConfidenceBrowser, Signals: signals}
	}
}

func (s *Scorer) endpointSignal(report *model.InvestigationReport, best model.Tier) model.Signal {
	counts := map[model.Tier]int{}
	for _, ep := range report.DiscoveredEndpoints {
		counts[ep.Confidence]++
	}

	description := "No API endpoints discovered"
	if best != "" {
		description = fmt.Sprintf("Best endpoint confidence: %s (%d endpoints)", best, len(report.DiscoveredEndpoints))
	}

	return model.Signal{
		Type:        SignalEndpointConfidence,
		Description: description,
		Data: map[string]interface{}{
			"high":    counts[model.TierHigh],
			"medium":  counts[model.TierMedium],
			"low":     counts[model.TierLow],
			"best":    string(best),
			"formula": "high => api 0.9, medium => api 0.6, otherwise browser 0.3",
		},
	}
}

func (s *Scorer) platformSignal(report *model.InvestigationReport) model.Signal {
	return model.Signal{
		Type:        SignalPlatform,
		Description: fmt.Sprintf("Platform: %s (%.0f%% of signatures matched)", report.PlatformDetected, report.PlatformConfidence*100),
		Data: map[string]interface{}{
			"platform":   string(report.PlatformDetected),
			"confidence": report.PlatformConfidence,
			"formula":    "matched_signatures / total_signatures",
		},
	}
}

// QualityScore is 100 * passed / total over the checks. No checks scores 0.
func (s *Scorer) QualityScore(checks map[string]model.CheckResult) (float64, model.Signal) {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	passed := 0
	var failed []string
	for _, name := range names {
		if checks[name].Status == model.StatusPass {
			passed++
		} else {
			failed = append(failed, name)
		}
	}

	score := 0.0
	if len(checks) > 0 {
		score = 100 * float64(passed) / float64(len(checks))
	}

	return score, model.Signal{
		Type:        SignalQuality,
		Description: fmt.Sprintf("Quality: %d/%d checks passed", passed, len(checks)),
		Data: map[string]interface{}{
			"passed":  passed,
			"total":   len(checks),
			"failed":  failed,
			"score":   score,
			"formula": "100 * passed_checks / total_checks",
		},
	}
}
