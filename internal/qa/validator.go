// Package qa cross-checks a generated program's output files against the
// metadata the program declared, diagnoses failures and optionally repairs
// the program.
package qa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/sitescout/internal/model"
	"github.com/ppiankov/sitescout/internal/score"
)

// DefaultBudget bounds one QA run
const DefaultBudget = 15 * time.Second

// Narrator writes a plain-language summary of a report
type Narrator interface {
	Narrate(ctx context.Context, report *model.QAReport) (string, error)
}

// Recorder observes QA outcomes (metrics hook)
type Recorder interface {
	QARun(status string, qualityScore float64)
	RepairTransform(kind, status string)
}

// Request names the files to validate
type Request struct {
	ItemsFile    string
	MetadataFile string
	ProgramFile  string // optional; enables program diagnosis
	Repair       bool
}

// Options configures a Validator
type Options struct {
	Budget   time.Duration
	Schemas  *Schemas
	Narrator Narrator
	Recorder Recorder
	Logger   *zap.Logger
}

// Validator runs the output consistency checks
type Validator struct {
	budget   time.Duration
	schemas  *Schemas
	scorer   *score.Scorer
	repairer *Repairer
	narrator Narrator
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// NewValidator creates a validator. Without Options.Schemas the embedded
// schemas are used.
func NewValidator(opts Options) (*Validator, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Budget <= 0 {
		opts.Budget = DefaultBudget
	}
	if opts.Schemas == nil {
		schemas, err := LoadSchemas("")
		if err != nil {
			return nil, err
		}
		opts.Schemas = schemas
	}
	return &Validator{
		budget:   opts.Budget,
		schemas:  opts.Schemas,
		scorer:   score.NewScorer(),
		repairer: NewRepairer(opts.Logger),
		narrator: opts.Narrator,
		recorder: opts.Recorder,
		logger:   opts.Logger,
		now:      time.Now,
	}, nil
}

// Run validates one items/metadata pair. It always returns a report; failures
// to read or decode the inputs are carried in the report's error field.
func (v *Validator) Run(ctx context.Context, req Request) *model.QAReport {
	ctx, cancel := context.WithTimeout(ctx, v.budget)
	defer cancel()

	report := &model.QAReport{
		Status:       model.StatusFail,
		Checks:       map[string]model.CheckResult{},
		Timestamp:    v.now().UTC(),
		ItemsFile:    req.ItemsFile,
		MetadataFile: req.MetadataFile,
	}
	defer v.record(report)

	itemsData, err := readInput("items", req.ItemsFile)
	if err != nil {
		report.Error = err.Error()
		return report
	}
	metaData, err := readInput("metadata", req.MetadataFile)
	if err != nil {
		report.Error = err.Error()
		return report
	}

	violations := append(
		v.schemas.ValidateItems(filepath.Base(req.ItemsFile), itemsData),
		v.schemas.ValidateMetadata(filepath.Base(req.MetadataFile), metaData)...)
	if len(violations) > 0 {
		schemaErr := &model.SchemaError{Path: req.ItemsFile, Violations: violations}
		report.Error = schemaErr.Kind()
		report.SchemaViolations = violations
		v.logger.Warn("schema validation failed",
			zap.String("items", req.ItemsFile),
			zap.Int("violations", len(violations)))
		return report
	}

	var itemsDoc model.ItemsFile
	if err := json.Unmarshal(itemsData, &itemsDoc); err != nil {
		report.Error = fmt.Sprintf("decode items file %s: %v", req.ItemsFile, err)
		return report
	}
	var meta model.RunMetadata
	if err := json.Unmarshal(metaData, &meta); err != nil {
		report.Error = fmt.Sprintf("decode metadata file %s: %v", req.MetadataFile, err)
		return report
	}

	checks := []struct {
		name string
		run  func() model.CheckResult
	}{
		{model.CheckItemCount, func() model.CheckResult { return checkItemCount(&meta, itemsDoc.Items) }},
		{model.CheckFileRefs, func() model.CheckResult {
			return checkFileRefs(req.ItemsFile, req.MetadataFile, &itemsDoc, &meta)
		}},
		{model.CheckTimestamps, func() model.CheckResult { return checkTimestamps(&meta, itemsDoc.Items) }},
		{model.CheckCompleteness, func() model.CheckResult { return checkCompleteness(&meta, itemsDoc.Items) }},
	}
	for _, c := range checks {
		if err := ctx.Err(); err != nil {
			report.Error = fmt.Sprintf("qa budget exceeded before %s: %v", c.name, err)
			return report
		}
		report.Checks[c.name] = c.run()
	}

	qualityScore, _ := v.scorer.QualityScore(report.Checks)
	report.DataQualityScore = qualityScore
	if qualityScore == 100 {
		report.Status = model.StatusPass
	}

	if report.Status == model.StatusFail {
		v.diagnose(ctx, report, req, meta.ItemsSummary.DeclaredTotal)
	}
	v.narrate(ctx, report)
	return report
}

func (v *Validator) diagnose(ctx context.Context, report *model.QAReport, req Request, declared int) {
	var src []byte
	if req.ProgramFile != "" {
		data, err := os.ReadFile(req.ProgramFile)
		if err != nil {
			v.logger.Warn("program unreadable, diagnosing outputs only",
				zap.String("program", req.ProgramFile), zap.Error(err))
		}
		src = data
	}

	report.RootCauses = Diagnose(report.Checks, filepath.Base(req.ProgramFile), src)
	for _, c := range report.RootCauses {
		report.RecommendedAction = append(report.RecommendedAction, c.Recommendation)
	}
	if len(report.RootCauses) == 0 {
		report.RecommendedAction = append(report.RecommendedAction, "re-run the program and compare against a fresh investigation")
	}

	if !req.Repair || req.ProgramFile == "" || ctx.Err() != nil {
		return
	}
	report.AutoRefactor = v.repairer.Repair(req.ProgramFile, TransformsFor(report.RootCauses, declared))
	if v.recorder != nil {
		for _, t := range report.AutoRefactor.Transforms {
			v.recorder.RepairTransform(string(t.Kind), t.Status)
		}
	}
}

func (v *Validator) narrate(ctx context.Context, report *model.QAReport) {
	if v.narrator == nil {
		return
	}
	summary, err := v.narrator.Narrate(ctx, report)
	if err != nil {
		v.logger.Warn("qa narrative failed", zap.Error(err))
		return
	}
	report.LLMSummary = summary
}

func (v *Validator) record(report *model.QAReport) {
	if v.recorder != nil {
		v.recorder.QARun(string(report.Status), report.DataQualityScore)
	}
}

func readInput(label, path string) ([]byte, error) {
	if path == "" {
		return nil, fmt.Errorf("%s file path is empty", label)
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s file not found: %s", label, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s file %s: %w", label, path, err)
	}
	return data, nil
}
