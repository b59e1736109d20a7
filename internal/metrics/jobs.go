package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		tryonJobsSubmitted,
		tryonJobsFinished,
		tryonStageDuration,
		tryonStageOutcomes,
		tryonJobsInFlight,
	)
}

var (
	tryonJobsSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tryon_jobs_submitted_total",
			Help: "Try-on jobs accepted by the orchestrator.",
		},
	)

	tryonJobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tryon_jobs_finished_total",
			Help: "Try-on jobs that reached a terminal status.",
		},
		[]string{"status"},
	)

	tryonStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tryon_stage_duration_seconds",
			Help:    "Wall time spent in each pipeline stage.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"stage"},
	)

	tryonStageOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tryon_stage_outcomes_total",
			Help: "Stage results by kind (ok, degraded, fatal).",
		},
		[]string{"stage", "outcome"},
	)

	tryonJobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tryon_jobs_in_flight",
			Help: "Try-on jobs currently holding a worker slot.",
		},
	)
)

func JobSubmitted() {
	tryonJobsSubmitted.Inc()
}

func JobFinished(status string) {
	tryonJobsFinished.WithLabelValues(norm(status)).Inc()
}

// ObserveStage records the latency and outcome of one stage run.
func ObserveStage(stage, outcome string, took time.Duration) {
	tryonStageDuration.WithLabelValues(norm(stage)).Observe(took.Seconds())
	tryonStageOutcomes.WithLabelValues(norm(stage), norm(outcome)).Inc()
}

func JobStarted() {
	tryonJobsInFlight.Inc()
}

func JobReleased() {
	tryonJobsInFlight.Dec()
}
