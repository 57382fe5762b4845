package runkit

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/sitescout/internal/model"
)

// Files are the paths written by Finish
type Files struct {
	ItemsFile    string
	MetadataFile string
}

// Finish ends the session and writes the paired items and metadata files into
// dir. Each file names the other; names derive from the session start time.
func (s *Session) Finish(dir string) (*Files, error) {
	end := s.now()
	itemsName, metadataName := OutputNames(SourceName(s.sourceURL), s.start)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	itemsDoc := model.ItemsFile{
		MetadataFile: metadataName,
		Items:        s.Items(),
	}
	if itemsDoc.Items == nil {
		itemsDoc.Items = []Item{}
	}
	meta := s.Metadata(end, itemsName, metadataName)

	files := &Files{
		ItemsFile:    filepath.Join(dir, itemsName),
		MetadataFile: filepath.Join(dir, metadataName),
	}
	if err := writeJSON(files.ItemsFile, itemsDoc); err != nil {
		return nil, err
	}
	if err := writeJSON(files.MetadataFile, meta); err != nil {
		return nil, err
	}
	return files, nil
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Completeness returns, per tracked field, the percentage of items where the
// field is present: non-blank text, a parsed price (zero included), at least
// one image.
// With no items every field is 0.
func Completeness(items []Item) map[string]float64 {
	out := make(map[string]float64, len(model.CompletenessFields))
	for _, field := range model.CompletenessFields {
		out[field] = 0
	}
	if len(items) == 0 {
		return out
	}

	counts := make(map[string]int, len(model.CompletenessFields))
	for _, it := range items {
		if strings.TrimSpace(it.Title) != "" {
			counts[model.FieldTitle]++
		}
		if it.Price != nil {
			counts[model.FieldPrice]++
		}
		if len(it.ImageURLs) > 0 {
			counts[model.FieldImages]++
		}
		if strings.TrimSpace(it.Description) != "" {
			counts[model.FieldDescription]++
		}
	}
	for _, field := range model.CompletenessFields {
		out[field] = roundTo(100*float64(counts[field])/float64(len(items)), 2)
	}
	return out
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
