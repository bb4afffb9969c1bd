package utils

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by route, method and status code.",
	}, []string{"route", "method", "code"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency by route and method.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	DownloadsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "app_downloads_total",
		Help: "Successful app downloads (tasks created).",
	})

	PointsAwardedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "points_awarded_total",
		Help: "Points credited to profiles by downloads.",
	})

	TasksCompletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tasks_completed_total",
		Help: "Tasks moved from pending to completed.",
	})
)

// MetricsRegistry holds every collector of the service, exposed on /metrics.
var MetricsRegistry = prometheus.NewRegistry()

func init() {
	MetricsRegistry.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		DownloadsTotal,
		PointsAwardedTotal,
		TasksCompletedTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}
