package model

// Field names shared by selector maps, items and completeness stats
const (
	FieldTitle       = "title"
	FieldPrice       = "price"
	FieldImages      = "image_urls"
	FieldDescription = "description"
	FieldURL         = "url"
)

// CompletenessFields are the fields whose completeness is tracked and cross-checked
var CompletenessFields = []string{FieldTitle, FieldPrice, FieldImages, FieldDescription}

// FieldThresholds are the minimum match rates for a candidate pattern to be accepted
var FieldThresholds = map[string]float64{
	FieldTitle:       0.90,
	FieldPrice:       0.90,
	FieldImages:      0.85,
	FieldDescription: 0.70,
	FieldURL:         0.70,
}

// ExtractionMode says where a field's value comes from
type ExtractionMode string

const (
	ModeText      ExtractionMode = "text"
	ModeAttribute ExtractionMode = "attribute"
)

// DOMSelectorMap is the Selector Synthesizer's output artifact
type DOMSelectorMap struct {
	PageURL               string                   `json:"page_url"`
	ItemContainerSelector string                   `json:"item_container_selector"`
	ContainerScore        float64                  `json:"container_score"`
	TotalItemsFound       int                      `json:"total_items_found"`
	FieldSelectors        map[string]FieldSelector `json:"field_selectors"`
	UnresolvedFields      []string                 `json:"unresolved_fields,omitempty"`
	Error                 string                   `json:"error,omitempty"`
}

// FieldSelector is a primary/fallback pair with its measured confidence
type FieldSelector struct {
	Primary        string           `json:"primary"`
	Fallback       string           `json:"fallback"`
	Attribute      string           `json:"attribute,omitempty"`
	ExtractionMode ExtractionMode   `json:"extraction_mode,omitempty"`
	Confidence     float64          `json:"confidence"`
	Tier           Tier             `json:"tier"`
	Validation     SelectorValidity `json:"validation"`
}

// SelectorValidity is the result of re-testing a selector on sampled items
type SelectorValidity struct {
	Sampled  int     `json:"sampled"`
	Accuracy float64 `json:"accuracy"`
	Tier     Tier    `json:"tier"`
}
