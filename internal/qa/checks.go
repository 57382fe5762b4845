package qa

import (
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/ppiankov/sitescout/internal/model"
	"github.com/ppiankov/sitescout/pkg/runkit"
)

// Direction labels for item-count variance
const (
	DirectionShortfall = "shortfall"
	DirectionSurplus   = "surplus"
)

func pass(details map[string]interface{}) model.CheckResult {
	return model.CheckResult{Status: model.StatusPass, Details: details}
}

func fail(details map[string]interface{}) model.CheckResult {
	return model.CheckResult{Status: model.StatusFail, Details: details}
}

// checkItemCount fails only when the difference exceeds both the relative
// and the absolute tolerance.
func checkItemCount(meta *model.RunMetadata, items []model.Item) model.CheckResult {
	declared := meta.ItemsSummary.DeclaredTotal
	actual := len(items)
	diff := declared - actual
	direction := DirectionShortfall
	if diff < 0 {
		diff = -diff
		direction = DirectionSurplus
	}

	pct := 0.0
	if declared > 0 {
		pct = round2(100 * float64(diff) / float64(declared))
	}
	details := map[string]interface{}{
		"declared":        declared,
		"actual":          actual,
		"difference":      diff,
		"difference_pct":  pct,
		"tolerance_pct":   model.ItemCountTolerancePct,
		"tolerance_items": model.ItemCountToleranceAbs,
	}
	if diff == 0 {
		return pass(details)
	}
	details["direction"] = direction

	overPct := float64(diff) > model.ItemCountTolerancePct/100*float64(declared)
	overAbs := diff > model.ItemCountToleranceAbs
	if overPct && overAbs {
		details["error"] = (&model.ToleranceError{
			Check:  model.CheckItemCount,
			Detail: fmt.Sprintf("declared %d, actual %d (%d items, %.2f%%)", declared, actual, diff, pct),
		}).Error()
		return fail(details)
	}
	return pass(details)
}

// checkFileRefs requires the two files to name each other exactly
func checkFileRefs(itemsPath, metadataPath string, itemsDoc *model.ItemsFile, meta *model.RunMetadata) model.CheckResult {
	itemsName := filepath.Base(itemsPath)
	metaName := filepath.Base(metadataPath)

	var mismatches []string
	if itemsDoc.MetadataFile != metaName {
		mismatches = append(mismatches, fmt.Sprintf("items.metadata_file=%q, want %q", itemsDoc.MetadataFile, metaName))
	}
	if meta.OutputFiles.ItemsFile != itemsName {
		mismatches = append(mismatches, fmt.Sprintf("metadata.output_files.items_file=%q, want %q", meta.OutputFiles.ItemsFile, itemsName))
	}
	if meta.OutputFiles.MetadataFile != metaName {
		mismatches = append(mismatches, fmt.Sprintf("metadata.output_files.metadata_file=%q, want %q", meta.OutputFiles.MetadataFile, metaName))
	}

	details := map[string]interface{}{
		"items_file":    itemsName,
		"metadata_file": metaName,
	}
	if len(mismatches) > 0 {
		details["mismatches"] = mismatches
		return fail(details)
	}
	return pass(details)
}

// checkTimestamps requires every scraped_at inside the session window widened
// by the tolerance on both sides. A deviation of exactly the tolerance passes.
func checkTimestamps(meta *model.RunMetadata, items []model.Item) model.CheckResult {
	start, errStart := time.Parse(time.RFC3339Nano, meta.ScrapingSession.Start)
	end, errEnd := time.Parse(time.RFC3339Nano, meta.ScrapingSession.End)
	if errStart != nil || errEnd != nil {
		return fail(map[string]interface{}{
			"error": "unparseable session window",
			"start": meta.ScrapingSession.Start,
			"end":   meta.ScrapingSession.End,
		})
	}

	outside := 0
	maxDeviation := 0.0
	var firstBad string
	for _, it := range items {
		ts, err := time.Parse(time.RFC3339Nano, it.ScrapedAt)
		if err != nil {
			outside++
			if firstBad == "" {
				firstBad = it.ID
			}
			continue
		}
		deviation := 0.0
		switch {
		case ts.Before(start):
			deviation = start.Sub(ts).Seconds()
		case ts.After(end):
			deviation = ts.Sub(end).Seconds()
		}
		if deviation > maxDeviation {
			maxDeviation = deviation
		}
		if deviation > model.TimestampToleranceSecs {
			outside++
			if firstBad == "" {
				firstBad = it.ID
			}
		}
	}

	details := map[string]interface{}{
		"session_start":         meta.ScrapingSession.Start,
		"session_end":           meta.ScrapingSession.End,
		"tolerance_seconds":     model.TimestampToleranceSecs,
		"max_deviation_seconds": round2(maxDeviation),
		"items_outside_window":  outside,
	}
	if outside > 0 {
		details["first_item_outside"] = firstBad
		return fail(details)
	}
	return pass(details)
}

// checkCompleteness compares declared per-field completeness against the
// completeness recomputed from the items
func checkCompleteness(meta *model.RunMetadata, items []model.Item) model.CheckResult {
	actual := runkit.Completeness(items)

	fields := make(map[string]interface{}, len(model.CompletenessFields))
	var failed []string
	for _, field := range model.CompletenessFields {
		declared := meta.FieldCompleteness[field]
		diff := round2(math.Abs(declared - actual[field]))
		fields[field] = map[string]interface{}{
			"declared_pct": declared,
			"actual_pct":   actual[field],
			"difference":   diff,
		}
		if diff > model.CompletenessTolerancePt {
			failed = append(failed, field)
		}
	}

	details := map[string]interface{}{
		"fields":           fields,
		"tolerance_points": model.CompletenessTolerancePt,
	}
	if len(failed) > 0 {
		details["failed_fields"] = failed
		return fail(details)
	}
	return pass(details)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
