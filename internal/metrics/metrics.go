// Package metrics records run metrics on a private Prometheus registry and
// exports them in the node_exporter textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/TobiSchelling/relocstat/internal/compare"
	"github.com/TobiSchelling/relocstat/internal/validate"
)

const namespace = "relocstat"

// Recorder holds the gauges for a single batch run. All values describe the
// latest run, so gauges are used throughout.
type Recorder struct {
	registry *prometheus.Registry

	records       *prometheus.GaugeVec
	exclusions    *prometheus.GaugeVec
	diagnostics   *prometheus.GaugeVec
	relocations   *prometheus.GaugeVec
	stageDuration *prometheus.GaugeVec
	retention     prometheus.Gauge
	lastRun       prometheus.Gauge
	runInfo       *prometheus.GaugeVec
}

// NewRecorder creates a Recorder with its own registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		records: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "season_records",
			Help:      "Season records by validation outcome.",
		}, []string{"outcome"}),
		exclusions: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "excluded_records",
			Help:      "Excluded season records by reason.",
		}, []string{"reason"}),
		diagnostics: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "diagnostics",
			Help:      "Data-quality warnings by kind.",
		}, []string{"kind"}),
		relocations: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relocations",
			Help:      "Relocation events by verdict.",
		}, []string{"verdict"}),
		stageDuration: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time per pipeline stage.",
		}, []string{"stage"}),
		retention: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "retention_ratio",
			Help:      "In-scope records divided by total records.",
		}),
		lastRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		runInfo: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_info",
			Help:      "Constant 1, labelled with run identity.",
		}, []string{"run_id", "lineages_version", "test"}),
	}
}

// ObserveValidation records the outcome of the validation stage.
func (r *Recorder) ObserveValidation(rep validate.Report) {
	r.records.WithLabelValues("total").Set(float64(rep.Total))
	r.records.WithLabelValues("valid").Set(float64(rep.Valid))
	r.records.WithLabelValues("in_scope").Set(float64(rep.InScope))
	for _, reason := range validate.Reasons {
		r.exclusions.WithLabelValues(string(reason)).Set(float64(rep.Excluded[reason]))
	}
	for kind, n := range validate.CountByKind(rep.Diagnostics) {
		r.diagnostics.WithLabelValues(string(kind)).Set(float64(n))
	}
	r.retention.Set(rep.Retention())
}

// ObserveResults records relocation verdicts.
func (r *Recorder) ObserveResults(results []compare.Result) {
	counts := make(map[string]int)
	for _, res := range results {
		counts[res.Verdict()]++
	}
	for verdict, n := range counts {
		r.relocations.WithLabelValues(verdict).Set(float64(n))
	}
}

// ObserveStage records how long a stage took.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	r.stageDuration.WithLabelValues(stage).Set(d.Seconds())
}

// MarkRun stamps run identity and completion time.
func (r *Recorder) MarkRun(runID, lineagesVersion, test string, finished time.Time) {
	r.runInfo.WithLabelValues(runID, lineagesVersion, test).Set(1)
	r.lastRun.Set(float64(finished.Unix()))
}

// WriteTextfile writes all metrics to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
