package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/docx-mail-merge/internal/types"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)

	pr.RunStarted(3)
	pr.RowFinished("success", 20*time.Millisecond)
	pr.RowFinished("skipped", time.Millisecond)
	pr.RowFinished("success", 30*time.Millisecond)
	pr.ConversionFailed()
	pr.RunFinished(types.StateCompleted, 60*time.Millisecond)

	assert.Equal(t, 3.0, promtest.ToFloat64(pr.rowsTotal))
	assert.Equal(t, 2.0, promtest.ToFloat64(pr.rowResults.WithLabelValues("success")))
	assert.Equal(t, 1.0, promtest.ToFloat64(pr.rowResults.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, promtest.ToFloat64(pr.conversionFailures))
	assert.Equal(t, 1.0, promtest.ToFloat64(pr.runs.WithLabelValues("completed")))

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, mfs, 6)
}

func TestNilRecorderIsSafe(t *testing.T) {
	var pr *PrometheusRecorder
	pr.RunStarted(1)
	pr.RowFinished("error", time.Second)
	pr.ConversionFailed()
	pr.RunFinished(types.StateFatal, time.Second)
}

func TestWriteTextfile(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	pr.RunFinished(types.StateCancelled, time.Second)

	path := filepath.Join(t.TempDir(), "mailmerge.prom")
	require.NoError(t, pr.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `mailmerge_runs_total{state="cancelled"} 1`)
}

func TestRecordersDoNotShareState(t *testing.T) {
	reg := prom.NewRegistry()
	first := NewPrometheusRecorder(reg)
	second := NewPrometheusRecorder(nil)

	first.RowFinished("error", time.Millisecond)

	assert.Equal(t, 1.0, promtest.ToFloat64(first.rowResults.WithLabelValues("error")))
	assert.Equal(t, 0.0, promtest.ToFloat64(second.rowResults.WithLabelValues("error")))
	assert.Panics(t, func() { NewPrometheusRecorder(reg) }, "metrics are registered once per registry")
}
