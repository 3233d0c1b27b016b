package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/APIExplore/api-explore-backend/internal/types"
)

// Sequence outcomes
const (
	OutcomeCompleted   = "completed"
	OutcomeUnreachable = "unreachable"
	OutcomeBuildFailed = "build_failed"
	OutcomeRestored    = "restored"
)

// Recorder exposes exploration metrics for Prometheus scraping.
// It uses its own registry so tests and embedding programs do not share state.
type Recorder struct {
	registry *prometheus.Registry

	callsTotal     *prometheus.CounterVec
	callDuration   *prometheus.HistogramVec
	sequencesTotal *prometheus.CounterVec
	warningsTotal  prometheus.Counter
}

// NewRecorder creates and registers all exploration metrics
func NewRecorder() *Recorder {
	r := &Recorder{registry: prometheus.NewRegistry()}

	r.callsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_explore_calls_total",
			Help: "Total number of calls dispatched to the system under test",
		},
		[]string{"operation", "status_class"},
	)
	r.callDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_explore_call_duration_seconds",
			Help:    "Duration of calls to the system under test",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
	r.sequencesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_explore_sequences_total",
			Help: "Total number of call sequence runs by outcome",
		},
		[]string{"outcome"},
	)
	r.warningsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "api_explore_warnings_total",
		Help: "Total number of divergence warnings reported",
	})

	r.registry.MustRegister(r.callsTotal, r.callDuration, r.sequencesTotal, r.warningsTotal)
	return r
}

// ObserveCall records a dispatched call
func (r *Recorder) ObserveCall(result *types.CallResult) {
	class := "unreachable"
	if result.Response != nil {
		class = fmt.Sprintf("%dxx", result.Response.Status/100)
	}
	r.callsTotal.WithLabelValues(result.OperationID, class).Inc()
	r.callDuration.WithLabelValues(result.OperationID).Observe(float64(result.DurationMs) / 1000)
}

// ObserveSequence records the outcome of a sequence run
func (r *Recorder) ObserveSequence(outcome string, warnings int) {
	r.sequencesTotal.WithLabelValues(outcome).Inc()
	r.warningsTotal.Add(float64(warnings))
}

// Handler serves the registry in the Prometheus text format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
