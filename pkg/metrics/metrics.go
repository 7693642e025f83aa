package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	caseflow = "caseflow"

	// Job metrics
	jobsSubmittedTotal = "jobs_submitted_total"
	jobsFinishedTotal  = "jobs_finished_total"
	JobsInFlight       = "jobs_in_flight"

	// External generation service metrics
	docgenRetriesTotal = "docgen_retries_total"

	// Stream metrics
	StreamSessionsOpen = "stream_sessions_open"

	// Labels
	jobStateLabel = "state"
)

var jobsFinishedLabels = []string{
	jobStateLabel,
}

/**
* Metrics definition
**/
var jobsSubmittedTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: caseflow,
		Name:      jobsSubmittedTotal,
		Help:      "number of case submissions accepted for background generation",
	},
)

var jobsFinishedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: caseflow,
		Name:      jobsFinishedTotal,
		Help:      "number of jobs that reached a terminal state",
	},
	jobsFinishedLabels,
)

var jobsInFlightMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: caseflow,
		Name:      JobsInFlight,
		Help:      "number of jobs currently queued or running",
	},
)

var docgenRetriesTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: caseflow,
		Name:      docgenRetriesTotal,
		Help:      "number of retried calls against the document generation service",
	},
)

var streamSessionsOpenMetric = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Subsystem: caseflow,
		Name:      StreamSessionsOpen,
		Help:      "number of currently attached progress stream sessions",
	},
)

func IncreaseJobsSubmittedTotalMetric() {
	jobsSubmittedTotalMetric.Inc()
	jobsInFlightMetric.Inc()
}

func IncreaseJobsFinishedTotalMetric(state string) {
	labels := prometheus.Labels{
		jobStateLabel: state,
	}
	jobsFinishedTotalMetric.With(labels).Inc()
	jobsInFlightMetric.Dec()
}

func IncreaseDocgenRetriesTotalMetric() {
	docgenRetriesTotalMetric.Inc()
}

func StreamSessionOpened() {
	streamSessionsOpenMetric.Inc()
}

func StreamSessionClosed() {
	streamSessionsOpenMetric.Dec()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsSubmittedTotalMetric)
	prometheus.MustRegister(jobsFinishedTotalMetric)
	prometheus.MustRegister(jobsInFlightMetric)
	prometheus.MustRegister(docgenRetriesTotalMetric)
	prometheus.MustRegister(streamSessionsOpenMetric)
}
