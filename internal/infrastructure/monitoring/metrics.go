package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Import pipeline metrics
	ImportsTotal    *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	StageFailures   *prometheus.CounterVec
	DownloadedBytes prometheus.Counter
	QueueDepth      prometheus.Gauge

	// Catalog metrics
	CatalogEntries prometheus.Gauge

	// Transfer metrics
	TransfersActive  prometheus.Gauge
	TransfersStarted *prometheus.CounterVec
	KeepActive       prometheus.Gauge

	// WebSocket metrics
	WSConnections prometheus.Gauge

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current metric values for the JSON API
type Snapshot struct {
	TotalRequests   int64 `json:"total_requests"`
	TotalErrors     int64 `json:"total_errors"`
	ImportsOK       int64 `json:"imports_completed"`
	ImportsFailed   int64 `json:"imports_failed"`
	DownloadedBytes int64 `json:"downloaded_bytes"`
	ActiveTransfers int64 `json:"active_transfers"`
}

// NewMetrics creates a collector backed by its own registry so several
// instances can coexist in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "library_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "library_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		ImportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "library_imports_total",
				Help: "Total number of finished imports",
			},
			[]string{"source", "status"},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "library_stage_duration_seconds",
				Help:    "Pipeline stage duration in seconds",
				Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60, 300, 900},
			},
			[]string{"stage"},
		),
		StageFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "library_stage_failures_total",
				Help: "Total number of pipeline stage failures",
			},
			[]string{"stage"},
		),
		DownloadedBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "library_downloaded_bytes_total",
				Help: "Total bytes written by the acquisition stage",
			},
		),
		QueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "library_acquisition_queue_depth",
				Help: "Downloads waiting for the acquisition worker",
			},
		),

		CatalogEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "library_catalog_entries",
				Help: "Number of entries in the catalog",
			},
		),

		TransfersActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "library_transfers_active",
				Help: "Number of live transfer sessions",
			},
		),
		TransfersStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "library_transfers_started_total",
				Help: "Total number of transfer sessions started",
			},
			[]string{"mode"},
		),
		KeepActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "library_keep_active",
				Help: "1 while a transfer session holds the keep-active guard",
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "library_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
	}
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if len(status) > 0 && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordImport records a finished import
func (m *Metrics) RecordImport(source string, ok bool) {
	if m == nil {
		return
	}
	status := "completed"
	if !ok {
		status = "failed"
	}
	m.ImportsTotal.WithLabelValues(source, status).Inc()

	m.mu.Lock()
	if ok {
		m.snapshot.ImportsOK++
	} else {
		m.snapshot.ImportsFailed++
	}
	m.mu.Unlock()
}

// ObserveStage records a stage duration and whether it failed
func (m *Metrics) ObserveStage(stage string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
	if err != nil {
		m.StageFailures.WithLabelValues(stage).Inc()
	}
}

// AddDownloadedBytes adds to the downloaded bytes counter
func (m *Metrics) AddDownloadedBytes(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.DownloadedBytes.Add(float64(n))
	m.mu.Lock()
	m.snapshot.DownloadedBytes += n
	m.mu.Unlock()
}

// SetQueueDepth sets the pending download count
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(n))
}

// SetCatalogEntries sets the number of catalog entries
func (m *Metrics) SetCatalogEntries(n int) {
	if m == nil {
		return
	}
	m.CatalogEntries.Set(float64(n))
}

// SetTransfersActive sets the number of live transfer sessions
func (m *Metrics) SetTransfersActive(n int) {
	if m == nil {
		return
	}
	m.TransfersActive.Set(float64(n))
	m.mu.Lock()
	m.snapshot.ActiveTransfers = int64(n)
	m.mu.Unlock()
}

// IncTransfersStarted counts a started transfer session
func (m *Metrics) IncTransfersStarted(mode string) {
	if m == nil {
		return
	}
	m.TransfersStarted.WithLabelValues(mode).Inc()
}

// SetKeepActive reflects the keep-active guard state
func (m *Metrics) SetKeepActive(on bool) {
	if m == nil {
		return
	}
	if on {
		m.KeepActive.Set(1)
	} else {
		m.KeepActive.Set(0)
	}
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// GetSnapshot returns a copy of the current counters
func (m *Metrics) GetSnapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
