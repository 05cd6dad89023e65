// Package metrics provides Prometheus metrics for the aggregation service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CrawlsTotal tracks crawl runs by outcome
	CrawlsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "crawler",
			Name:      "crawls_total",
			Help:      "Total number of crawl runs by outcome",
		},
		[]string{"tenant_id", "provider_id", "outcome"},
	)

	// CrawlDuration tracks crawl run duration in seconds
	CrawlDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "crawler",
			Name:      "crawl_duration_seconds",
			Help:      "Duration of crawl runs in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"tenant_id", "provider_id"},
	)

	// DocumentsFetched tracks fetched documents by result
	DocumentsFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "crawler",
			Name:      "documents_fetched_total",
			Help:      "Total number of document fetches, including 304 refreshes",
		},
		[]string{"provider_id", "result"},
	)

	// ValidationIssues tracks validation findings by kind and severity
	ValidationIssues = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "validation",
			Name:      "issues_total",
			Help:      "Total number of validation issues by kind and severity",
		},
		[]string{"provider_id", "kind", "severity"},
	)

	// EntitiesMerged tracks merged entities by kind
	EntitiesMerged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "merge",
			Name:      "entities_total",
			Help:      "Total number of entities written by the merge engine",
		},
		[]string{"tenant_id", "kind"},
	)

	// MergeConflicts tracks merge conflicts by resolution
	MergeConflicts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "merge",
			Name:      "conflicts_total",
			Help:      "Total number of merge conflicts by resolution",
		},
		[]string{"tenant_id", "resolution"},
	)

	// TombstonesProcessed tracks tombstone applications
	TombstonesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "tombstone",
			Name:      "processed_total",
			Help:      "Total number of tombstones applied by action",
		},
		[]string{"tenant_id", "action"},
	)

	// DanglingReferences tracks unresolved references still open after a batch
	DanglingReferences = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fern",
			Subsystem: "resolver",
			Name:      "dangling_references",
			Help:      "Unresolved references remaining after the latest batch",
		},
		[]string{"provider_id"},
	)

	// HTTPRequestsTotal tracks outbound HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "http_client",
			Name:      "requests_total",
			Help:      "Total number of outbound HTTP requests",
		},
		[]string{"method", "status_code"},
	)

	// HTTPRequestDuration tracks outbound HTTP request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "http_client",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound HTTP requests in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method"},
	)

	// CrawlsInFlight tracks crawls currently running
	CrawlsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "fern",
			Subsystem: "crawler",
			Name:      "crawls_in_flight",
			Help:      "Number of crawl runs currently executing",
		},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		},
	)

	// DatabaseQueryDuration tracks database query duration
	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Duration of database queries in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"operation"},
	)
)

// RecordCrawl records a finished crawl run
func RecordCrawl(tenantID, providerID, outcome string, durationSeconds float64) {
	CrawlsTotal.WithLabelValues(tenantID, providerID, outcome).Inc()
	CrawlDuration.WithLabelValues(tenantID, providerID).Observe(durationSeconds)
}

// RecordDocumentFetch records a document fetch result ("fetched", "not_modified", "failed")
func RecordDocumentFetch(providerID, result string) {
	DocumentsFetched.WithLabelValues(providerID, result).Inc()
}

// RecordValidationIssue records one validation finding
func RecordValidationIssue(providerID, kind, severity string) {
	ValidationIssues.WithLabelValues(providerID, kind, severity).Inc()
}

// RecordMergeConflict records a merge conflict by resolution ("last_write_wins", "fatal")
func RecordMergeConflict(tenantID, resolution string) {
	MergeConflicts.WithLabelValues(tenantID, resolution).Inc()
}

// RecordHTTPRequest records an outbound HTTP request metric
func RecordHTTPRequest(method, statusCode string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordDatabaseQuery records one database query by operation ("exec", "get", ...)
func RecordDatabaseQuery(operation string, durationSeconds float64) {
	DatabaseQueryDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}
