package model

import "time"

// Strategy is the extraction approach recommended for a target
type Strategy string

const (
	StrategyAPI     Strategy = "api"
	StrategyBrowser Strategy = "browser"
)

// Platform identifies the e-commerce/CMS platform behind a target
type Platform string

const (
	PlatformShopify     Platform = "shopify"
	PlatformWordPress   Platform = "wordpress"
	PlatformWooCommerce Platform = "woocommerce"
	PlatformMagento     Platform = "magento"
	PlatformBigCommerce Platform = "bigcommerce"
	PlatformCustom      Platform = "custom"
)

// Technique names the discovery method that produced a candidate endpoint
type Technique string

const (
	TechniqueKnownPath      Technique = "known_path"
	TechniqueScriptScan     Technique = "script_scan"
	TechniqueNetworkCapture Technique = "network_capture"
	TechniqueCommonPath     Technique = "common_path"
)

// InvestigationReport is the Investigator's output artifact
type InvestigationReport struct {
	TargetURL           string                `json:"target_url"`
	Timestamp           time.Time             `json:"timestamp"`
	DiscoveredEndpoints []DiscoveredEndpoint  `json:"discovered_endpoints"`
	PlatformDetected    Platform              `json:"platform_detected"`
	PlatformConfidence  float64               `json:"platform_confidence"` // matched/total signatures
	RecommendedStrategy Strategy              `json:"recommended_strategy"`
	ConfidenceScore     float64               `json:"confidence_score"`
	AntiBot             AntiBotInfo           `json:"anti_bot"`
	ProbeErrors         []ProbeError          `json:"probe_errors,omitempty"`
	Signals             []Signal              `json:"signals,omitempty"`
	Metadata            InvestigationMetadata `json:"metadata"`
	Error               string                `json:"error,omitempty"`
}

// DiscoveredEndpoint is a validated API candidate
type DiscoveredEndpoint struct {
	URL                string    `json:"url"`
	Method             string    `json:"method"`
	ResponseType       string    `json:"response_type"`
	Confidence         Tier      `json:"confidence"`
	StatusCode         int       `json:"status_code"`
	SampleFields       []string  `json:"sample_fields"`
	PaginationDetected bool      `json:"pagination_detected"`
	Technique          Technique `json:"technique"`
}

// AntiBotInfo records bot-protection evidence
type AntiBotInfo struct {
	Detected bool     `json:"detected"`
	Signals  []string `json:"signals,omitempty"` // e.g. "captcha:g-recaptcha", "persistent_403"
}

// ProbeError records a candidate that was excluded from the result set
type ProbeError struct {
	URL       string    `json:"url"`
	Technique Technique `json:"technique,omitempty"`
	Kind      string    `json:"kind"` // taxonomy label, see errors.go
	Message   string    `json:"message"`
}

// InvestigationMetadata summarizes the investigation run
type InvestigationMetadata struct {
	DurationSeconds float64     `json:"duration_seconds"`
	EndpointsProbed int         `json:"endpoints_probed"`
	EndpointsFound  int         `json:"endpoints_found"`
	TechniquesUsed  []Technique `json:"techniques_used"`
}

// Signal is a transparent scoring input with its formula data
type Signal struct {
	Type        string                 `json:"type"`
	Description string                 `json:"description"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// HighestTier returns the best endpoint confidence tier in the report
func (r *InvestigationReport) HighestTier() Tier {
	best := Tier("")
	for _, ep := range r.DiscoveredEndpoints {
		if ep.Confidence.Rank() > best.Rank() {
			best = ep.Confidence
		}
	}
	return best
}

// BestEndpoint returns the first endpoint with the highest tier, or nil
func (r *InvestigationReport) BestEndpoint() *DiscoveredEndpoint {
	best := r.HighestTier()
	for i := range r.DiscoveredEndpoints {
		if r.DiscoveredEndpoints[i].Confidence == best && best != "" {
			return &r.DiscoveredEndpoints[i]
		}
	}
	return nil
}
