package model

// PaginationType enumerates the pagination mechanisms the detector recognizes
type PaginationType string

const (
	PaginationInfiniteScroll PaginationType = "infinite_scroll"
	PaginationLoadMore       PaginationType = "load_more"
	PaginationTraditional    PaginationType = "traditional"
	PaginationAPI            PaginationType = "api_pagination"
	PaginationNone           PaginationType = "none"
)

// End conditions, one per pagination type
const (
	EndItemCountUnchanged = "item_count_unchanged_after_3_attempts"
	EndButtonNotVisible   = "button_not_visible"
	EndNextControlAbsent  = "next_control_absent_or_disabled"
	EndHasNextFalse       = "has_next_false"
	EndSinglePage         = "single_page"
)

// EndConditionFor returns the fixed end condition for a pagination type
func EndConditionFor(t PaginationType) string {
	switch t {
	case PaginationInfiniteScroll:
		return EndItemCountUnchanged
	case PaginationLoadMore:
		return EndButtonNotVisible
	case PaginationTraditional:
		return EndNextControlAbsent
	case PaginationAPI:
		return EndHasNextFalse
	default:
		return EndSinglePage
	}
}

// PaginationStrategy is the Pagination Detector's output artifact
type PaginationStrategy struct {
	PageURL         string              `json:"page_url"`
	Type            PaginationType      `json:"pagination_type"`
	Confidence      Tier                `json:"confidence"`
	ConfidenceScore float64             `json:"confidence_score"`
	EndCondition    string              `json:"end_condition"`
	ItemsPerPage    int                 `json:"items_per_page"`
	Selectors       PaginationSelectors `json:"selectors"`
	PageParameter   string              `json:"page_parameter,omitempty"`
	APIURLs         []string            `json:"api_urls,omitempty"`
	Probes          []ProbeResult       `json:"probes"`
	WaitTimeMS      int                 `json:"wait_time_ms"`
	Notes           string              `json:"notes,omitempty"`
	Error           string              `json:"error,omitempty"`
}

// PaginationSelectors holds the selectors a generated program needs to paginate
type PaginationSelectors struct {
	ItemContainer  string `json:"item_container"`
	LoadMoreButton string `json:"load_more_button,omitempty"`
	NextButton     string `json:"next_button,omitempty"`
}

// ProbeResult is the trace of one pagination probe
type ProbeResult struct {
	Type        PaginationType     `json:"type"`
	Score       float64            `json:"score"`
	Tier        Tier               `json:"tier"`
	Fired       bool               `json:"fired"`
	Components  map[string]float64 `json:"components"` // weighted inputs of the score
	ItemsBefore int                `json:"items_before"`
	ItemsAfter  int                `json:"items_after"`
	Detail      string             `json:"detail,omitempty"`
}
