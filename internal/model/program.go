package model

// ExtractionProgram is a generated, self-contained extraction program.
// Programs are immutable; a repair produces a new program with Version+1.
type ExtractionProgram struct {
	Name             string         `json:"name"`
	Version          int            `json:"version"`
	Strategy         Strategy       `json:"strategy"`
	PaginationType   PaginationType `json:"pagination_type"`
	Platform         Platform       `json:"platform,omitempty"`
	Source           []byte         `json:"-"`
	Digest           string         `json:"digest"`
	ParentDigest     string         `json:"parent_digest,omitempty"`
	MetadataTemplate RunMetadata    `json:"metadata_template"`
}
