// Package metrics exposes Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pagesFetchedTotal       *prometheus.CounterVec
	fetchRetriesTotal       prometheus.Counter
	malformedResponsesTotal *prometheus.CounterVec
	crawlersAbortedTotal    *prometheus.CounterVec
	itemsDiscovered         prometheus.Gauge
	rowsInsertedTotal       prometheus.Counter
	rowsUpdatedTotal        prometheus.Counter
	notificationsSentTotal  prometheus.Counter
	notificationErrorsTotal prometheus.Counter
	runsTotal               *prometheus.CounterVec
	runDurationSeconds      prometheus.Histogram

	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the pipeline collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		pagesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_pages_fetched_total",
				Help: "Listing pages fetched, labeled by listing.",
			},
			[]string{"listing"},
		)
		fetchRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_fetch_retries_total",
				Help: "Fetch attempts that were retried.",
			},
		)
		malformedResponsesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_malformed_responses_total",
				Help: "Responses whose body lacked the expected shape.",
			},
			[]string{"listing"},
		)
		crawlersAbortedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_crawlers_aborted_total",
				Help: "Crawlers that aborted after exhausting retries.",
			},
			[]string{"listing"},
		)
		itemsDiscovered = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "ingest_items_discovered",
				Help: "Unique content ids aggregated in the last run.",
			},
		)
		rowsInsertedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_rows_inserted_total",
				Help: "Content rows inserted by diff sync.",
			},
		)
		rowsUpdatedTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_rows_updated_total",
				Help: "Content rows updated by diff sync.",
			},
		)
		notificationsSentTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_notifications_sent_total",
				Help: "Completion notification mails sent.",
			},
		)
		notificationErrorsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_notification_errors_total",
				Help: "Notification sends that failed.",
			},
		)
		runsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_runs_total",
				Help: "Pipeline runs, labeled by outcome.",
			},
			[]string{"outcome"},
		)
		runDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ingest_run_duration_seconds",
				Help:    "Wall time of a full pipeline run.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		)
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "HTTP requests served, labeled by method and code.",
			},
			[]string{"method", "code"},
		)
		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// RecordPageFetched counts one fetched listing page.
func RecordPageFetched(listing string) {
	if pagesFetchedTotal != nil {
		pagesFetchedTotal.WithLabelValues(listing).Inc()
	}
}

// RecordRetry counts one retried fetch attempt.
func RecordRetry() {
	if fetchRetriesTotal != nil {
		fetchRetriesTotal.Inc()
	}
}

// RecordMalformed counts one malformed response for a listing.
func RecordMalformed(listing string) {
	if malformedResponsesTotal != nil {
		malformedResponsesTotal.WithLabelValues(listing).Inc()
	}
}

// RecordCrawlerAborted counts one crawler abort for a listing.
func RecordCrawlerAborted(listing string) {
	if crawlersAbortedTotal != nil {
		crawlersAbortedTotal.WithLabelValues(listing).Inc()
	}
}

// RecordRun records the outcome and duration of a pipeline run.
func RecordRun(outcome string, elapsed time.Duration) {
	if runsTotal != nil {
		runsTotal.WithLabelValues(outcome).Inc()
	}
	if runDurationSeconds != nil {
		runDurationSeconds.Observe(elapsed.Seconds())
	}
}

// RecordSync records diff-sync row counts and the discovered-item gauge.
func RecordSync(discovered, inserted, updated int) {
	if itemsDiscovered != nil {
		itemsDiscovered.Set(float64(discovered))
	}
	if rowsInsertedTotal != nil {
		rowsInsertedTotal.Add(float64(inserted))
	}
	if rowsUpdatedTotal != nil {
		rowsUpdatedTotal.Add(float64(updated))
	}
}

// ObserveHTTPRequest records one served request on the ops API.
func ObserveHTTPRequest(method, route string, status int, elapsed time.Duration) {
	if httpRequestsTotal != nil {
		httpRequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	}
	if httpRequestDurationSeconds != nil {
		httpRequestDurationSeconds.WithLabelValues(method, route).Observe(elapsed.Seconds())
	}
}

// RecordNotifications records sent/failed notification counts.
func RecordNotifications(sent, failed int) {
	if notificationsSentTotal != nil {
		notificationsSentTotal.Add(float64(sent))
	}
	if notificationErrorsTotal != nil {
		notificationErrorsTotal.Add(float64(failed))
	}
}
