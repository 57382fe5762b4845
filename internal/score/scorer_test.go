package score

import (
	"testing"

	"github.com/ppiankov/sitescout/internal/model"
)

func reportWith(tiers ...model.Tier) *model.InvestigationReport {
	report := &model.InvestigationReport{
		TargetURL:        "https://shop.example",
		PlatformDetected: model.PlatformCustom,
	}
	for _, t := range tiers {
		report.DiscoveredEndpoints = append(report.DiscoveredEndpoints, model.DiscoveredEndpoint{
			URL:        "https://shop.example/api/products",
			Confidence: t,
		})
	}
	return report
}

func TestScorer_DecideStrategy(t *testing.T) {
	scorer := NewScorer()

	tests := []struct {
		name       string
		tiers      []model.Tier
		antiBot    bool
		strategy   model.Strategy
		confidence float64
	}{
		{"no endpoints", nil, false, model.StrategyBrowser, ConfidenceBrowser},
		{"low only", []model.Tier{model.TierLow}, false, model.StrategyBrowser, ConfidenceBrowser},
		{"medium best", []model.Tier{model.TierLow, model.TierMedium}, false, model.StrategyAPI, ConfidenceMediumAPI},
		{"high best", []model.Tier{model.TierMedium, model.TierHigh}, false, model.StrategyAPI, ConfidenceHighAPI},
		{"anti-bot overrides high", []model.Tier{model.TierHigh}, true, model.StrategyBrowser, ConfidenceBrowser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report := reportWith(tt.tiers...)
			report.AntiBot.Detected = tt.antiBot

			got := scorer.DecideStrategy(report)
			if got.Strategy != tt.strategy {
				t.Errorf("Expected strategy %s, got %s", tt.strategy, got.Strategy)
			}
			if got.Confidence != tt.confidence {
				t.Errorf("Expected confidence %.1f, got %.1f", tt.confidence, got.Confidence)
			}
			if len(got.Signals) == 0 {
				t.Error("Expected at least one signal")
			}
		})
	}
}

func TestScorer_DecideStrategy_AntiBotSignal(t *testing.T) {
	report := reportWith(model.TierHigh)
	report.AntiBot = model.AntiBotInfo{Detected: true, Signals: []string{"captcha:g-recaptcha"}}

	got := NewScorer().DecideStrategy(report)

	found := false
	for _, s := range got.Signals {
		if s.Type == SignalAntiBot {
			found = true
		}
	}
	if !found {
		t.Error("Expected anti_bot signal")
	}
}

func TestScorer_QualityScore(t *testing.T) {
	scorer := NewScorer()

	checks := map[string]model.CheckResult{
		model.CheckItemCount:    {Status: model.StatusPass},
		model.CheckFileRefs:     {Status: model.StatusPass},
		model.CheckTimestamps:   {Status: model.StatusPass},
		model.CheckCompleteness: {Status: model.StatusFail},
	}

	score, signal := scorer.QualityScore(checks)
	if score != 75 {
		t.Errorf("Expected score 75, got %.2f", score)
	}
	failed, ok := signal.Data["failed"].([]string)
	if !ok || len(failed) != 1 || failed[0] != model.CheckCompleteness {
		t.Errorf("Expected failed=[%s], got %v", model.CheckCompleteness, signal.Data["failed"])
	}

	if score, _ := scorer.QualityScore(nil); score != 0 {
		t.Errorf("Expected 0 for no checks, got %.2f", score)
	}
}
