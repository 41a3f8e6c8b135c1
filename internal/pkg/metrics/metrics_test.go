package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New()

	m.JobSubmitted()
	m.JobSubmitted()
	m.JobRejected()
	m.JobFinished("completed", "")
	m.JobFinished("failed", "RENDER_ENGINE_ERROR")
	m.JobFinished("failed", "RENDER_ENGINE_ERROR")
	m.SetQueueDepth(3)
	m.WorkerBusy()
	m.WorkerBusy()
	m.WorkerIdle()
	m.ProjectBuilt("ok")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobsSubmitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsRejected))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.jobsFinished.WithLabelValues("failed", "RENDER_ENGINE_ERROR")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsFinished.WithLabelValues("completed", "")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.queueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.projectBuilds.WithLabelValues("ok")))
}

func TestStageHistogram(t *testing.T) {
	m := New()
	m.ObserveStage("rendering", 2*time.Second)
	m.ObserveStage("bundling", 10*time.Millisecond)

	assert.Equal(t, 2, testutil.CollectAndCount(m.stageDuration))
}

func TestHandler(t *testing.T) {
	m := New()
	m.JobSubmitted()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(string(body), "clipforge_jobs_submitted_total 1"), string(body))
	assert.True(t, strings.Contains(string(body), "go_goroutines"))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.JobSubmitted()
	m.JobRejected()
	m.JobFinished("failed", "TIMEOUT")
	m.SetQueueDepth(1)
	m.WorkerBusy()
	m.WorkerIdle()
	m.ObserveStage("rendering", time.Second)
	m.ProgressRecorded()
	m.ProjectBuilt("error")
	assert.Nil(t, m.Registry())

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 404, rec.Code)
}
