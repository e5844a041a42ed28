// Package metrics records generation runs as Prometheus metrics.
//
// The CLI is a one-shot process, so metrics are exported with
// WriteTextfile for the node_exporter textfile collector rather than served.
package metrics

import (
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/ginjaninja78/docx-mail-merge/internal/types"
)

// PrometheusRecorder implements generator.Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg                *prom.Registry
	runs               *prom.CounterVec
	runDuration        prom.Histogram
	rowResults         *prom.CounterVec
	rowDuration        prom.Histogram
	conversionFailures prom.Counter
	rowsTotal          prom.Gauge
}

// NewPrometheusRecorder constructs and registers the metrics. A nil registry
// gets a fresh one. Methods on a nil recorder do nothing.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{reg: reg}
	pr.runs = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "mailmerge",
		Name:      "runs_total",
		Help:      "Generation runs by terminal state",
	}, []string{"state"})
	pr.runDuration = prom.NewHistogram(prom.HistogramOpts{
		Namespace: "mailmerge",
		Name:      "run_duration_seconds",
		Help:      "Total run duration",
		Buckets:   prom.DefBuckets,
	})
	pr.rowResults = prom.NewCounterVec(prom.CounterOpts{
		Namespace: "mailmerge",
		Name:      "row_results_total",
		Help:      "Processed rows by result",
	}, []string{"result"})
	pr.rowDuration = prom.NewHistogram(prom.HistogramOpts{
		Namespace: "mailmerge",
		Name:      "row_duration_seconds",
		Help:      "Time spent on a single row, conversion included",
		Buckets:   prom.ExponentialBuckets(0.005, 2, 12),
	})
	pr.conversionFailures = prom.NewCounter(prom.CounterOpts{
		Namespace: "mailmerge",
		Name:      "conversion_failures_total",
		Help:      "Rows whose secondary format conversion failed",
	})
	pr.rowsTotal = prom.NewGauge(prom.GaugeOpts{
		Namespace: "mailmerge",
		Name:      "last_run_rows",
		Help:      "Data rows in the datasheet of the last run",
	})
	reg.MustRegister(pr.runs, pr.runDuration, pr.rowResults, pr.rowDuration, pr.conversionFailures, pr.rowsTotal)
	return pr
}

func (p *PrometheusRecorder) RunStarted(total int) {
	if p == nil {
		return
	}
	p.rowsTotal.Set(float64(total))
}

func (p *PrometheusRecorder) RowFinished(result string, elapsed time.Duration) {
	if p == nil {
		return
	}
	p.rowResults.WithLabelValues(result).Inc()
	p.rowDuration.Observe(elapsed.Seconds())
}

func (p *PrometheusRecorder) ConversionFailed() {
	if p == nil {
		return
	}
	p.conversionFailures.Inc()
}

func (p *PrometheusRecorder) RunFinished(state types.RunState, elapsed time.Duration) {
	if p == nil {
		return
	}
	p.runs.WithLabelValues(state.String()).Inc()
	p.runDuration.Observe(elapsed.Seconds())
}

// WriteTextfile writes every registered metric to path in the text
// exposition format. The file is replaced atomically.
func (p *PrometheusRecorder) WriteTextfile(path string) error {
	if err := prom.WriteToTextfile(path, p.reg); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
