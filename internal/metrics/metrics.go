package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the detector's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	framesProcessed    prometheus.Counter
	readErrors         prometheus.Counter
	streamReconnects   prometheus.Counter
	detectionErrors    prometheus.Counter
	detectionsAccepted *prometheus.CounterVec
	detectionsDropped  *prometheus.CounterVec
	artifactsSaved     prometheus.Counter
	artifactsEvicted   prometheus.Counter
	storageErrors      prometheus.Counter
	publishes          *prometheus.CounterVec
	snapshots          prometheus.Counter
	brokerConnected    prometheus.Gauge
	diskUsage          prometheus.Gauge
	statusServerErrors prometheus.Counter
}

// New creates a Metrics instance registered on its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		framesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "katzenschreck_frames_processed_total",
			Help: "Frames handed to the detection pipeline",
		}),
		readErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "katzenschreck_read_errors_total",
			Help: "Failed frame reads",
		}),
		streamReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "katzenschreck_stream_reconnects_total",
			Help: "Video source open attempts after the first",
		}),
		detectionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "katzenschreck_detection_errors_total",
			Help: "Frames skipped because detection failed",
		}),
		detectionsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "katzenschreck_detections_accepted_total",
			Help: "Detections that passed every filter",
		}, []string{"class"}),
		detectionsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "katzenschreck_detections_dropped_total",
			Help: "Detections suppressed by a filter",
		}, []string{"reason"}),
		artifactsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "katzenschreck_artifacts_saved_total",
			Help: "Artifact files written",
		}),
		artifactsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "katzenschreck_artifacts_evicted_total",
			Help: "Artifact files deleted to free disk space",
		}),
		storageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "katzenschreck_storage_errors_total",
			Help: "Failed artifact writes or deletes",
		}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "katzenschreck_publishes_total",
			Help: "Detection publishes by result",
		}, []string{"result"}),
		snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "katzenschreck_snapshots_total",
			Help: "Snapshots written to the relational store",
		}),
		brokerConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "katzenschreck_broker_connected",
			Help: "1 while the broker connection is up",
		}),
		diskUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "katzenschreck_disk_usage_ratio",
			Help: "Last measured usage fraction of the artifact volume",
		}),
		statusServerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "katzenschreck_status_server_errors_total",
			Help: "Status server failures; detection continues without it",
		}),
	}

	m.registry.MustRegister(
		m.framesProcessed,
		m.readErrors,
		m.streamReconnects,
		m.detectionErrors,
		m.detectionsAccepted,
		m.detectionsDropped,
		m.artifactsSaved,
		m.artifactsEvicted,
		m.storageErrors,
		m.publishes,
		m.snapshots,
		m.brokerConnected,
		m.diskUsage,
		m.statusServerErrors,
	)
	return m
}

// Handler returns an HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) FrameProcessed() {
	if m != nil {
		m.framesProcessed.Inc()
	}
}

func (m *Metrics) ReadError() {
	if m != nil {
		m.readErrors.Inc()
	}
}

func (m *Metrics) StreamReconnect() {
	if m != nil {
		m.streamReconnects.Inc()
	}
}

func (m *Metrics) DetectionError() {
	if m != nil {
		m.detectionErrors.Inc()
	}
}

func (m *Metrics) DetectionAccepted(class string) {
	if m != nil {
		m.detectionsAccepted.WithLabelValues(class).Inc()
	}
}

// DetectionsDropped adds n suppressed detections for reason.
func (m *Metrics) DetectionsDropped(reason string, n int) {
	if m != nil && n > 0 {
		m.detectionsDropped.WithLabelValues(reason).Add(float64(n))
	}
}

func (m *Metrics) ArtifactSaved() {
	if m != nil {
		m.artifactsSaved.Inc()
	}
}

func (m *Metrics) ArtifactsEvicted(n int) {
	if m != nil && n > 0 {
		m.artifactsEvicted.Add(float64(n))
	}
}

func (m *Metrics) StorageError() {
	if m != nil {
		m.storageErrors.Inc()
	}
}

// Publish records a publish outcome; ok=false counts as dropped.
func (m *Metrics) Publish(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.publishes.WithLabelValues("sent").Inc()
	} else {
		m.publishes.WithLabelValues("dropped").Inc()
	}
}

func (m *Metrics) SnapshotStored() {
	if m != nil {
		m.snapshots.Inc()
	}
}

func (m *Metrics) SetBrokerConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.brokerConnected.Set(1)
	} else {
		m.brokerConnected.Set(0)
	}
}

func (m *Metrics) SetDiskUsage(fraction float64) {
	if m != nil {
		m.diskUsage.Set(fraction)
	}
}

func (m *Metrics) StatusServerError() {
	if m != nil {
		m.statusServerErrors.Inc()
	}
}
