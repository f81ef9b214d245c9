package readthrough

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "scancache_requests_total",
	Help: "Requests served, by cache outcome (hit, miss, error)",
}, []string{"outcome"})

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "scancache_request_duration_seconds",
	Help:    "Time to serve a request, by cache outcome",
	Buckets: prometheus.ExponentialBucketsRange(0.0001, 10, 20),
}, []string{"outcome"})

var scanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "scancache_scan_duration_seconds",
	Help:    "Time to perform a full retrieval from the data source",
	Buckets: prometheus.ExponentialBucketsRange(0.001, 30, 20),
}, []string{"status"})

var scanConsumedCapacity = promauto.NewCounter(prometheus.CounterOpts{
	Name: "scancache_scan_consumed_capacity_total",
	Help: "Capacity units reported as consumed by full retrievals",
})

var scansCoalesced = promauto.NewCounter(prometheus.CounterOpts{
	Name: "scancache_scans_coalesced_total",
	Help: "Cache misses which shared an in-flight retrieval instead of starting their own",
})

var cacheAge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "scancache_served_age_seconds",
	Help: "Age of the snapshot served by the most recent successful request",
})

var scansTruncated = promauto.NewCounter(prometheus.CounterOpts{
	Name: "scancache_scans_truncated_total",
	Help: "Retrievals which the source reported as covering only part of the table",
})
