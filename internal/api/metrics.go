package api

import (
	"net/http"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// httpMetrics holds the HTTP Prometheus collectors and the per-class
// request counts reported by the monitoring summary.
type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec

	mu      sync.Mutex
	byClass map[string]uint64
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	m := &httpMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "valuecore",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests served, by method, route and status code.",
			},
			[]string{"method", "route", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "valuecore",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency, by method and route.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		byClass: make(map[string]uint64),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.duration)
	}
	return m
}

func (m *httpMetrics) observe(method, route string, status int, elapsed time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())

	m.mu.Lock()
	m.byClass[statusClass(status)]++
	m.mu.Unlock()
}

func (m *httpMetrics) classCounts() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[string]uint64, len(m.byClass))
	for k, v := range m.byClass {
		cp[k] = v
	}
	return cp
}

// MonitoringSummary is the /api-monitoring response.
type MonitoringSummary struct {
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	NodeID        string            `json:"nodeId"`
	UptimeSeconds int64             `json:"uptimeSeconds"`
	Runtime       RuntimeMetrics    `json:"runtime"`
	Requests      map[string]uint64 `json:"requests"`
	Sockets       SocketMetrics     `json:"sockets"`
	Database      DatabaseMetrics   `json:"database"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memoryAllocMb"`
	MemoryTotalMB float64 `json:"memoryTotalMb"`
	NumGC         uint32  `json:"numGc"`
}

// SocketMetrics describes the realtime layer.
type SocketMetrics struct {
	Clients int `json:"clients"`
	// Fanout is "broker" when broadcasts cross nodes, "local" otherwise.
	Fanout          string `json:"fanout"`
	BrokerConnected bool   `json:"brokerConnected"`
}

// DatabaseMetrics contains database connection pool statistics.
type DatabaseMetrics struct {
	Healthy         bool  `json:"healthy"`
	OpenConnections int   `json:"openConnections"`
	InUse           int   `json:"inUse"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"waitCount"`
}

// handleMonitoring returns the JSON monitoring summary.
func (s *Server) handleMonitoring(w http.ResponseWriter, r *http.Request) error {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	summary := MonitoringSummary{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		NodeID:        s.sockets.NodeID(),
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		Requests: s.metrics.classCounts(),
		Sockets: SocketMetrics{
			Clients:         s.sockets.SocketCount(),
			Fanout:          s.sockets.FanoutMode(),
			BrokerConnected: s.sockets.BrokerConnected(),
		},
	}

	if s.db != nil {
		stats := s.db.Stats()
		summary.Database = DatabaseMetrics{
			Healthy:         s.db.HealthCheck(r.Context()) == nil,
			OpenConnections: stats.OpenConnections,
			InUse:           stats.InUse,
			Idle:            stats.Idle,
			WaitCount:       stats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, summary)
	return nil
}

// metricsHandler serves the Prometheus exposition for the server's gatherer.
func (s *Server) metricsHandler() http.Handler {
	return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
}
