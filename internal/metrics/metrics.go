// Package metrics exposes Prometheus collectors for harvest runs.
package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

const pushJob = "seasondb"

var (
	registry = prometheus.NewRegistry()

	uploadsTotal          prometheus.Counter
	cacheHitsTotal        prometheus.Counter
	uploadFallbacksTotal  prometheus.Counter
	cacheConflictsTotal   prometheus.Counter
	evictionsTotal        prometheus.Counter
	itemsTotal            *prometheus.CounterVec
	quotaUsedPercent      prometheus.Gauge
	periodDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call multiple times.
func Init() {
	once.Do(func() {
		factory := promauto.With(registry)

		registry.MustRegister(collectors.NewGoCollector())

		uploadsTotal = factory.NewCounter(prometheus.CounterOpts{
			Name: "seasondb_uploads_total",
			Help: "Total number of covers uploaded to the media store.",
		})
		cacheHitsTotal = factory.NewCounter(prometheus.CounterOpts{
			Name: "seasondb_cache_hits_total",
			Help: "Total number of covers served from the dedup cache.",
		})
		uploadFallbacksTotal = factory.NewCounter(prometheus.CounterOpts{
			Name: "seasondb_upload_fallbacks_total",
			Help: "Total number of covers that kept their source URL after a download or upload failure.",
		})
		cacheConflictsTotal = factory.NewCounter(prometheus.CounterOpts{
			Name: "seasondb_cache_conflicts_total",
			Help: "Total number of fingerprints bound to two different references.",
		})
		evictionsTotal = factory.NewCounter(prometheus.CounterOpts{
			Name: "seasondb_evictions_total",
			Help: "Total number of partitions evicted to free media quota.",
		})
		itemsTotal = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "seasondb_items_total",
			Help: "Total number of listing items processed, labeled by status.",
		}, []string{"status"})
		quotaUsedPercent = factory.NewGauge(prometheus.GaugeOpts{
			Name: "seasondb_quota_used_percent",
			Help: "Last observed media store quota usage in percent.",
		})
		periodDurationSeconds = factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "seasondb_period_duration_seconds",
			Help:    "Histogram of per-period harvest durations, labeled by outcome.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"status"})
	})
}

// Handler returns an http.Handler for the dedicated registry.
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

// Push sends the current values to a Pushgateway. An empty url is a no-op.
func Push(ctx context.Context, url string) error {
	if url == "" {
		return nil
	}
	Init()
	if err := push.New(url, pushJob).Gatherer(registry).PushContext(ctx); err != nil {
		return errors.Wrapf(err, "failed to push metrics to %s", url)
	}
	return nil
}

func ObserveUpload() {
	Init()
	uploadsTotal.Inc()
}

func ObserveCacheHit() {
	Init()
	cacheHitsTotal.Inc()
}

func ObserveFallback() {
	Init()
	uploadFallbacksTotal.Inc()
}

func ObserveCacheConflict() {
	Init()
	cacheConflictsTotal.Inc()
}

func ObserveEviction() {
	Init()
	evictionsTotal.Inc()
}

// ObserveItem counts a processed item; status is "ok" or "failed".
func ObserveItem(status string) {
	Init()
	itemsTotal.WithLabelValues(status).Inc()
}

func SetQuotaUsed(percent float64) {
	Init()
	quotaUsedPercent.Set(percent)
}

func ObservePeriod(status string, d time.Duration) {
	Init()
	periodDurationSeconds.WithLabelValues(status).Observe(d.Seconds())
}
