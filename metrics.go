package main

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "getfit_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	stepsRecorded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "getfit_steps_recorded_total",
			Help: "Step readings applied to today's activity",
		},
		[]string{"source"}, // source: api, pedometer
	)

	placeholderDays = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "getfit_placeholder_days_total",
			Help: "Activity days synthesized because no recorded data existed",
		},
	)

	remindersScheduled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "getfit_reminders_scheduled_total",
			Help: "Reminder alerts registered with the notification center",
		},
		[]string{"kind"},
	)
)

// metricsMiddleware records request latency per route template.
func metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequestDuration.
			WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
