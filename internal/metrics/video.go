package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(videoJobsSubmitted, videoJobsFinished, videoPolls)
}

var (
	videoJobsSubmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "video_jobs_submitted_total",
			Help: "Video jobs accepted by the video orchestrator.",
		},
	)

	videoJobsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_jobs_finished_total",
			Help: "Video jobs that reached a terminal status.",
		},
		[]string{"status"},
	)

	videoPolls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "video_provider_polls_total",
			Help: "Provider poll calls by mapped status.",
		},
		[]string{"status"},
	)
)

func VideoSubmitted() {
	videoJobsSubmitted.Inc()
}

func VideoFinished(status string) {
	videoJobsFinished.WithLabelValues(norm(status)).Inc()
}

func VideoPolled(status string) {
	videoPolls.WithLabelValues(norm(status)).Inc()
}
