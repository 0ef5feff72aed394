// Package metrics provides Prometheus metrics for the harpastum pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Manager owns all Prometheus collectors for the pipeline.
type Manager struct {
	namespace string
	subsystem string
	buckets   []float64
	registry  prometheus.Registerer

	// Fetch / cache
	fetchRequests   *prometheus.CounterVec
	fetchRetries    *prometheus.CounterVec
	fetchErrors     *prometheus.CounterVec
	fetchLatency    prometheus.Histogram
	rateLimitWaits  prometheus.Counter
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	cacheExpiries   prometheus.Counter
	cacheSize       prometheus.Gauge

	// Resolution
	resolutions          *prometheus.CounterVec
	ambiguousResolutions prometheus.Counter
	canonicalEntities    prometheus.Gauge

	// Integration
	recordsMerged  *prometheus.CounterVec
	mergeConflicts prometheus.Counter
	recordsDropped *prometheus.CounterVec

	// Features / estimation
	featureVectors   prometheus.Counter
	shapleySamples   prometheus.Counter
	shapleyDiscards  prometheus.Counter
	estimateDuration prometheus.Histogram

	// Validation
	validations *prometheus.CounterVec

	// Queue / workers
	queueDepth    prometheus.Gauge
	queueCapacity prometheus.Gauge
	queueDrops    prometheus.Counter
	workerCount   prometheus.Gauge
}

var (
	globalManager  *Manager              //nolint:gochecknoglobals // singleton metrics manager
	customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // private registry, no default Go collectors
)

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers all collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace: "harpastum",
		subsystem: "pipeline",
		buckets:   prometheus.DefBuckets,
		registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}

	f := promauto.With(m.registry)
	opMeta := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help}
	}

	m.fetchRequests = f.NewCounterVec(prometheus.CounterOpts(opMeta(
		"fetch_requests_total", "Requests issued to providers.")), []string{"provider"})
	m.fetchRetries = f.NewCounterVec(prometheus.CounterOpts(opMeta(
		"fetch_retries_total", "Fetch attempts retried after failure.")), []string{"provider"})
	m.fetchErrors = f.NewCounterVec(prometheus.CounterOpts(opMeta(
		"fetch_errors_total", "Fetches surfaced as errors after retry exhaustion.")), []string{"provider", "kind"})
	m.fetchLatency = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "fetch_latency_seconds", Help: "Latency of successful provider fetches.",
		Buckets: m.buckets,
	})
	m.rateLimitWaits = f.NewCounter(prometheus.CounterOpts(opMeta(
		"rate_limit_waits_total", "Times a fetch blocked on the token bucket.")))

	m.cacheHits = f.NewCounter(prometheus.CounterOpts(opMeta(
		"cache_hits_total", "Response cache hits.")))
	m.cacheMisses = f.NewCounter(prometheus.CounterOpts(opMeta(
		"cache_misses_total", "Response cache misses.")))
	m.cacheExpiries = f.NewCounter(prometheus.CounterOpts(opMeta(
		"cache_expiries_total", "Entries lazily invalidated past their TTL.")))
	m.cacheSize = f.NewGauge(prometheus.GaugeOpts(opMeta(
		"cache_entries", "Entries currently stored in the response cache.")))

	m.resolutions = f.NewCounterVec(prometheus.CounterOpts(opMeta(
		"resolutions_total", "Entity resolutions by outcome.")), []string{"outcome"})
	m.ambiguousResolutions = f.NewCounter(prometheus.CounterOpts(opMeta(
		"ambiguous_resolutions_total", "Resolutions settled by the tie-break policy.")))
	m.canonicalEntities = f.NewGauge(prometheus.GaugeOpts(opMeta(
		"canonical_entities", "Canonical entities currently registered.")))

	m.recordsMerged = f.NewCounterVec(prometheus.CounterOpts(opMeta(
		"records_merged_total", "Provider records merged by kind.")), []string{"kind"})
	m.mergeConflicts = f.NewCounter(prometheus.CounterOpts(opMeta(
		"merge_conflicts_total", "Cross-provider disagreements beyond tolerance.")))
	m.recordsDropped = f.NewCounterVec(prometheus.CounterOpts(opMeta(
		"records_dropped_total", "Records dropped before integration.")), []string{"reason"})

	m.featureVectors = f.NewCounter(prometheus.CounterOpts(opMeta(
		"feature_vectors_total", "Feature vectors built.")))
	m.shapleySamples = f.NewCounter(prometheus.CounterOpts(opMeta(
		"shapley_samples_total", "Permutation samples evaluated.")))
	m.shapleyDiscards = f.NewCounter(prometheus.CounterOpts(opMeta(
		"shapley_discards_total", "Samples discarded after characteristic function failures.")))
	m.estimateDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem,
		Name: "estimate_duration_seconds", Help: "Wall time per coalition game estimate.",
		Buckets: m.buckets,
	})

	m.validations = f.NewCounterVec(prometheus.CounterOpts(opMeta(
		"validations_total", "Validation results by status.")), []string{"status"})

	m.queueDepth = f.NewGauge(prometheus.GaugeOpts(opMeta(
		"queue_depth", "Records currently queued for integration.")))
	m.queueCapacity = f.NewGauge(prometheus.GaugeOpts(opMeta(
		"queue_capacity", "Configured ingest queue capacity.")))
	m.queueDrops = f.NewCounter(prometheus.CounterOpts(opMeta(
		"queue_drops_total", "Records rejected by a full ingest queue.")))
	m.workerCount = f.NewGauge(prometheus.GaugeOpts(opMeta(
		"integration_workers", "Integration workers in the pool.")))

	return m
}

// Handler returns an http.Handler serving the private registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(customRegistry, promhttp.HandlerOpts{})
}

// Package-level helpers against the global manager.

func RecordFetchRequest(provider string)      { globalManager.fetchRequests.WithLabelValues(provider).Inc() }
func RecordFetchRetry(provider string)        { globalManager.fetchRetries.WithLabelValues(provider).Inc() }
func RecordFetchError(provider, kind string)  { globalManager.fetchErrors.WithLabelValues(provider, kind).Inc() }
func ObserveFetchLatency(seconds float64)     { globalManager.fetchLatency.Observe(seconds) }
func RecordRateLimitWait()                    { globalManager.rateLimitWaits.Inc() }

func RecordCacheHit()       { globalManager.cacheHits.Inc() }
func RecordCacheMiss()      { globalManager.cacheMisses.Inc() }
func RecordCacheExpiry()    { globalManager.cacheExpiries.Inc() }
func UpdateCacheSize(n int) { globalManager.cacheSize.Set(float64(n)) }

// Resolution outcomes: "alias_hit", "name_hit", "fuzzy_bind", "created".
func RecordResolution(outcome string)   { globalManager.resolutions.WithLabelValues(outcome).Inc() }
func RecordAmbiguousResolution()        { globalManager.ambiguousResolutions.Inc() }
func UpdateCanonicalEntities(n int)     { globalManager.canonicalEntities.Set(float64(n)) }

func RecordRecordMerged(kind string)     { globalManager.recordsMerged.WithLabelValues(kind).Inc() }
func RecordMergeConflict()               { globalManager.mergeConflicts.Inc() }
func RecordRecordDropped(reason string)  { globalManager.recordsDropped.WithLabelValues(reason).Inc() }

func RecordFeatureVector()                 { globalManager.featureVectors.Inc() }
func RecordShapleySamples(n int)           { globalManager.shapleySamples.Add(float64(n)) }
func RecordShapleyDiscard()                { globalManager.shapleyDiscards.Inc() }
func ObserveEstimateDuration(secs float64) { globalManager.estimateDuration.Observe(secs) }

// Validation statuses: "pass", "warn", "fail".
func RecordValidation(status string) { globalManager.validations.WithLabelValues(status).Inc() }

func UpdateQueueDepth(n int)    { globalManager.queueDepth.Set(float64(n)) }
func UpdateQueueCapacity(n int) { globalManager.queueCapacity.Set(float64(n)) }
func RecordQueueDrop()          { globalManager.queueDrops.Inc() }
func UpdateWorkerCount(n int)   { globalManager.workerCount.Set(float64(n)) }
