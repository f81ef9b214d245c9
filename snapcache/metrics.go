package snapcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var snapshotRecords = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "scancache_snapshot_records",
	Help: "Number of records in the most recently stored snapshot",
})

var snapshotReplacements = promauto.NewCounter(prometheus.CounterOpts{
	Name: "scancache_snapshot_replacements_total",
	Help: "Number of times the cached snapshot has been replaced",
})

var snapshotAge = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "scancache_snapshot_age_seconds",
	Help: "Age of the stored snapshot, refreshed periodically between requests",
})
