package model

// Item is one extracted listing record
type Item struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Price       *Price   `json:"price"`
	ImageURLs   []string `json:"image_urls"`
	URL         string   `json:"url"`
	Description string   `json:"description"`
	ScrapedAt   string   `json:"scraped_at"` // RFC 3339, UTC
}

// Price is a parsed price value
type Price struct {
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	DisplayText string  `json:"display_text"`
}

// ItemsFile is the on-disk items output of a generated program
type ItemsFile struct {
	MetadataFile string `json:"metadata_file"`
	Items        []Item `json:"items"`
}

// RunMetadata is the on-disk metadata output of a generated program
type RunMetadata struct {
	ScrapingSession   ScrapingSession    `json:"scraping_session"`
	PaginationInfo    PaginationInfo     `json:"pagination_info"`
	ItemsSummary      ItemsSummary       `json:"items_summary"`
	FieldCompleteness map[string]float64 `json:"field_completeness"` // percentages 0-100
	OutputFiles       OutputFiles        `json:"output_files"`
}

// ScrapingSession describes when and how a program ran
type ScrapingSession struct {
	SourceURL       string  `json:"source_url"`
	SourceName      string  `json:"source_name"`
	Start           string  `json:"start"`
	End             string  `json:"end"`
	DurationSeconds float64 `json:"duration_seconds"`
	Method          string  `json:"method"`
	ProgramVersion  int     `json:"program_version"`
}

// PaginationInfo describes the pagination the program walked
type PaginationInfo struct {
	Type         string `json:"type"`
	PagesVisited int    `json:"pages_visited"`
	ItemsPerPage int    `json:"items_per_page"`
}

// ItemsSummary carries the declared and actual item totals
type ItemsSummary struct {
	DeclaredTotal   int `json:"declared_total"`
	ActualTotal     int `json:"actual_total"`
	ItemsWithErrors int `json:"items_with_errors"`
	// ReportedTotal is the count the site claimed ("1-24 of 96"); informational
	ReportedTotal int `json:"reported_total,omitempty"`
}

// OutputFiles names the two files of a run; each file references the other
type OutputFiles struct {
	ItemsFile    string `json:"items_file"`
	MetadataFile string `json:"metadata_file"`
}
