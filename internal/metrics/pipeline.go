package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics. Low-cardinality labels only (camera_id appears solely on
// the status gauge, which is bounded by the camera count).

var (
	// DetectionsTotal counts raw detections by origin and outcome.
	DetectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_detections_total",
			Help: "Raw detections by origin (motion, push) and outcome (queued, dropped, duplicate)",
		},
		[]string{"origin", "outcome"},
	)

	// QueueDepth is the current number of queued detections.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pipeline_queue_depth",
			Help: "Detections waiting for an analysis worker",
		},
	)

	// AnalysisLatency tracks enqueue-to-persisted latency, the 5s SLA target.
	AnalysisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_analysis_latency_ms",
			Help:    "Latency from detection enqueue to event persisted in milliseconds",
			Buckets: []float64{100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		},
	)

	// ProviderCallsTotal counts AI provider invocations by provider and result.
	ProviderCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_provider_calls_total",
			Help: "AI provider calls by provider and result (ok, error, timeout, skipped_circuit, skipped_cost, skipped_mode)",
		},
		[]string{"provider", "result"},
	)

	// ProviderCircuitOpen is 1 while a provider's circuit is cooling down.
	ProviderCircuitOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ai_provider_circuit_open",
			Help: "Provider circuit state (1=open)",
		},
		[]string{"provider"},
	)

	// ProviderCostUSD accumulates recorded call cost.
	ProviderCostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_provider_cost_usd_total",
			Help: "Accumulated provider cost in USD",
		},
		[]string{"provider"},
	)

	// WebhookAttemptsTotal counts webhook delivery attempts by result.
	WebhookAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_webhook_attempts_total",
			Help: "Webhook delivery attempts by result (ok, error)",
		},
		[]string{"result"},
	)

	// AlertsFiredTotal counts rule firings.
	AlertsFiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "alerts_fired_total",
			Help: "Alert rules fired",
		},
	)

	// RealtimeClients is the number of connected websocket clients.
	RealtimeClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connected_clients",
			Help: "Connected realtime clients",
		},
	)

	// CaptureReconnectsTotal counts camera connect attempts by outcome.
	CaptureReconnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "capture_connects_total",
			Help: "Camera connection attempts by outcome (ok, fail)",
		},
		[]string{"outcome"},
	)

	// CameraStatus is 1 for the camera's current status label, 0 otherwise.
	CameraStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "camera_status",
			Help: "Camera status (1 on the active status label)",
		},
		[]string{"camera_id", "status"},
	)
)

var cameraStatuses = []string{"online", "offline", "connecting"}

// SetCameraStatus flips the per-camera status gauge to the given label.
func SetCameraStatus(cameraID, status string) {
	for _, s := range cameraStatuses {
		v := 0.0
		if s == status {
			v = 1.0
		}
		CameraStatus.WithLabelValues(cameraID, s).Set(v)
	}
}
