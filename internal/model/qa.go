package model

import "time"

// QAStatus is the overall or per-check outcome
type QAStatus string

const (
	StatusPass QAStatus = "PASS"
	StatusFail QAStatus = "FAIL"
)

// Check names
const (
	CheckItemCount    = "item_count_consistency"
	CheckFileRefs     = "file_references"
	CheckTimestamps   = "timestamp_consistency"
	CheckCompleteness = "field_completeness"
)

// Tolerances
const (
	ItemCountTolerancePct   = 2.0
	ItemCountToleranceAbs   = 3
	TimestampToleranceSecs  = 60.0
	CompletenessTolerancePt = 5.0
)

// Root-cause issue labels
const (
	IssuePaginationEndCondition  = "pagination_end_condition"
	IssueMissingFallbackSelector = "missing_fallback_selector"
	IssueSelectorAccuracy        = "selector_accuracy"
	IssueDuplicateItems          = "duplicate_items"
	IssueFileReferenceMismatch   = "file_reference_mismatch"
	IssueTimestampDrift          = "timestamp_drift"
)

// QAReport is the QA Validator's output artifact
type QAReport struct {
	Status            QAStatus               `json:"status"`
	Checks            map[string]CheckResult `json:"checks"`
	DataQualityScore  float64                `json:"data_quality_score"`
	Timestamp         time.Time              `json:"timestamp"`
	ItemsFile         string                 `json:"items_file"`
	MetadataFile      string                 `json:"metadata_file"`
	SchemaViolations  []SchemaViolation      `json:"schema_violations,omitempty"`
	RootCauses        []RootCause            `json:"root_cause_analysis,omitempty"`
	RecommendedAction []string               `json:"recommended_actions,omitempty"`
	AutoRefactor      *RepairOutcome         `json:"auto_refactor,omitempty"`
	LLMSummary        string                 `json:"llm_summary,omitempty"`
	Error             string                 `json:"error,omitempty"`
}

// CheckResult is the outcome of one consistency check
type CheckResult struct {
	Status  QAStatus               `json:"status"`
	Details map[string]interface{} `json:"details"`
}

// SchemaViolation is one structural problem in an output file
type SchemaViolation struct {
	File    string `json:"file"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// RootCause is a diagnosed reason for a failed check
type RootCause struct {
	Issue          string `json:"issue"`
	Field          string `json:"field,omitempty"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
	Location       string `json:"location,omitempty"` // file:line in the program, when known
}

// TransformKind names one of the whitelisted repair transforms
type TransformKind string

const (
	TransformCountGuard TransformKind = "pagination_count_guard"
	TransformFallback   TransformKind = "fallback_selector"
)

// Transform outcome statuses
const (
	TransformApplied       = "applied"
	TransformRejected      = "rejected"
	TransformNotApplicable = "not_applicable"
)

// RepairOutcome records what the repair loop did
type RepairOutcome struct {
	Attempted       bool              `json:"attempted"`
	Transforms      []TransformResult `json:"transforms"`
	OriginalProgram string            `json:"original_program"`
	RepairedProgram string            `json:"repaired_program,omitempty"`
	Version         int               `json:"version,omitempty"`
	Error           string            `json:"error,omitempty"`
}

// TransformResult is the outcome of one transform
type TransformResult struct {
	Kind   TransformKind `json:"kind"`
	Field  string        `json:"field,omitempty"`
	Status string        `json:"status"`
	Error  string        `json:"error,omitempty"`
}

// Passed reports whether every check passed
func (r *QAReport) Passed() bool {
	return r.Status == StatusPass
}
