package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New()

	m.ExperimentCreated()
	m.ExperimentCreated()
	m.Transition("COMPLETED", true)
	m.ObservationRecorded(true)
	m.ObservationRecorded(false)
	m.ObservationRecorded(false)
	m.AnalysisRun("welch_ttest", true, false)
	m.SignalRaised("QUALITY_ISSUE")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ExperimentsCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActiveExperiments))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Observations.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Analyses.WithLabelValues("welch_ttest", "true", "false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Signals.WithLabelValues("QUALITY_ISSUE")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ExperimentCreated()
		m.Transition("RUNNING", false)
		m.ObservationRecorded(true)
		m.TrialFailed()
		m.BatchCompleted(time.Second)
		m.AnalysisRun("anova", true, true)
		m.SignalRaised("LOW_SAMPLE_SIZE")
		m.HTTPRequest("GET", "/", "200", time.Millisecond)
		m.ArchiveFailed()
	})
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	m.ExperimentCreated()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "gosplit_experiments_created_total 1")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
