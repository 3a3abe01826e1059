// Package metrics exposes Prometheus counters, histograms and gauges
// for the inspection pipeline. All metrics are low-cardinality: no
// session_id or device_id labels, only product/roi_type/result/outcome.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InspectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aoi_inspections_total",
			Help: "Total inspections processed by product and result",
		},
		[]string{"product", "result"},
	)

	ROIAnalyzerLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aoi_roi_analyzer_latency_ms",
			Help:    "ROI analyzer latency in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"roi_type"},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aoi_orchestrator_queue_depth",
			Help: "Number of ROI work items currently queued for analysis",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aoi_active_sessions",
			Help: "Number of currently open inspection sessions",
		},
	)

	GoldenPromotionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aoi_golden_promotions_total",
			Help: "Total golden sample promotions by product",
		},
		[]string{"product"},
	)

	LinkingRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aoi_linking_requests_total",
			Help: "Total external barcode-linking calls by outcome",
		},
		[]string{"outcome"}, // hit, miss, error, cache_hit
	)
)

// RecordInspection records one completed inspection.
func RecordInspection(product, result string) {
	InspectionsTotal.WithLabelValues(product, result).Inc()
}

// RecordAnalyzerLatency records how long a single ROI analysis took.
func RecordAnalyzerLatency(roiType string, ms float64) {
	ROIAnalyzerLatency.WithLabelValues(roiType).Observe(ms)
}

// SetQueueDepth reports the orchestrator's current queue depth.
func SetQueueDepth(n int) {
	QueueDepth.Set(float64(n))
}

// SetActiveSessions reports the session manager's live session count.
func SetActiveSessions(n int) {
	ActiveSessions.Set(float64(n))
}

// RecordGoldenPromotion records one golden sample promotion.
func RecordGoldenPromotion(product string) {
	GoldenPromotionsTotal.WithLabelValues(product).Inc()
}

// RecordLinkingRequest records one external linking call outcome.
func RecordLinkingRequest(outcome string) {
	LinkingRequestsTotal.WithLabelValues(outcome).Inc()
}
