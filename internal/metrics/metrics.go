package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RunsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fusionctl_runs_started_total",
		Help: "Total number of workflow runs started",
	})

	RunsSucceeded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fusionctl_runs_succeeded_total",
		Help: "Total number of workflow runs that succeeded",
	})

	RunsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fusionctl_runs_failed_total",
		Help: "Total number of workflow runs that failed",
	})

	StepsSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fusionctl_steps_submitted_total",
		Help: "Total number of workflow steps submitted, by step",
	}, []string{"step"})

	PollRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fusionctl_poll_requests_total",
		Help: "Total number of task status requests",
	})

	PollRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fusionctl_poll_retries_total",
		Help: "Total number of status requests retried after a transport error",
	})

	PollOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fusionctl_poll_outcomes_total",
		Help: "Total number of finished polls, by final state",
	}, []string{"state"})

	PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fusionctl_poll_elapsed_seconds",
		Help:    "Accumulated poll time per task in seconds",
		Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 1800, 3600},
	})

	DownloadsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fusionctl_downloads_total",
		Help: "Total number of artifact download attempts",
	})

	DownloadsSuccess = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fusionctl_downloads_success_total",
		Help: "Total number of successful artifact downloads",
	})

	DownloadsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fusionctl_downloads_failed_total",
		Help: "Total number of failed artifact downloads",
	})

	DownloadBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fusionctl_download_bytes_total",
		Help: "Total artifact bytes downloaded",
	})

	MappingUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fusionctl_mapping_uploads_total",
		Help: "Total number of mapping file uploads, by backend and result",
	}, []string{"backend", "result"})
)
