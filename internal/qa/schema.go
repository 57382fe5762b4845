package qa

import (
	"embed"
	"fmt"
	"os"
	"sort"

	"github.com/xeipuuv/gojsonschema"

	"github.com/ppiankov/sitescout/internal/model"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Schemas holds the compiled output-file schemas
type Schemas struct {
	items    *gojsonschema.Schema
	metadata *gojsonschema.Schema
}

// LoadSchemas compiles the embedded schemas. A non-empty itemsOverride
// replaces the items schema with the file at that path.
func LoadSchemas(itemsOverride string) (*Schemas, error) {
	itemsDoc, err := schemaFS.ReadFile("schemas/items.schema.json")
	if err != nil {
		return nil, err
	}
	if itemsOverride != "" {
		itemsDoc, err = os.ReadFile(itemsOverride)
		if err != nil {
			return nil, fmt.Errorf("read items schema %s: %w", itemsOverride, err)
		}
	}
	metaDoc, err := schemaFS.ReadFile("schemas/metadata.schema.json")
	if err != nil {
		return nil, err
	}

	items, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(itemsDoc))
	if err != nil {
		return nil, fmt.Errorf("compile items schema: %w", err)
	}
	metadata, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(metaDoc))
	if err != nil {
		return nil, fmt.Errorf("compile metadata schema: %w", err)
	}
	return &Schemas{items: items, metadata: metadata}, nil
}

// ValidateItems returns every violation in an items document
func (s *Schemas) ValidateItems(file string, data []byte) []model.SchemaViolation {
	return validate(s.items, file, data)
}

// ValidateMetadata returns every violation in a metadata document
func (s *Schemas) ValidateMetadata(file string, data []byte) []model.SchemaViolation {
	return validate(s.metadata, file, data)
}

func validate(schema *gojsonschema.Schema, file string, data []byte) []model.SchemaViolation {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		// Not JSON at all
		return []model.SchemaViolation{{File: file, Field: "(root)", Message: err.Error()}}
	}
	if result.Valid() {
		return nil
	}

	violations := make([]model.SchemaViolation, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		violations = append(violations, model.SchemaViolation{
			File:    file,
			Field:   e.Field(),
			Message: e.Description(),
		})
	}
	sort.SliceStable(violations, func(i, j int) bool {
		return violations[i].Field < violations[j].Field
	})
	return violations
}
