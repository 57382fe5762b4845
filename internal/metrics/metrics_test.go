package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CacheLookup("selectors", true)
		m.ObserveStage("investigate", time.Second)
		m.IncError("paginate", "captcha_detected")
		m.AddProbed(3)
		m.QARun("PASS", 100)
		m.RepairTransform("fallback_selector", "applied")
	})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}

func TestCountersRecord(t *testing.T) {
	m := New()
	m.CacheLookup("investigation", false)
	m.CacheLookup("investigation", true)
	m.CacheLookup("investigation", true)
	m.AddProbed(5)
	m.AddProbed(0)
	m.QARun("FAIL", 75)
	m.RepairTransform("pagination_count_guard", "applied")

	body := scrape(t, m)
	for _, line := range []string{
		`sitescout_cache_lookups_total{kind="investigation",result="hit"} 2`,
		`sitescout_cache_lookups_total{kind="investigation",result="miss"} 1`,
		`sitescout_endpoints_probed_total 5`,
		`sitescout_qa_runs_total{status="FAIL"} 1`,
		`sitescout_qa_quality_score 75`,
		`sitescout_repair_transforms_total{kind="pagination_count_guard",status="applied"} 1`,
	} {
		assert.Contains(t, body, line)
	}
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.IncError("selectors", "no_repeating_pattern")
	m.ObserveStage("selectors", 200*time.Millisecond)

	body := scrape(t, m)
	assert.True(t, strings.Contains(body, `sitescout_stage_errors_total{kind="no_repeating_pattern",stage="selectors"} 1`))
	assert.Contains(t, body, "sitescout_stage_duration_seconds_count")
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}
