package metrics

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const prefix = "accounts_"

// Session counter names.
const (
	CounterLogins        = "logins"
	CounterLoginFailures = "login_failures"
	CounterRefreshes     = "token_refreshes"
	CounterTokenReuse    = "token_reuse_detected"
	CounterLogouts       = "logouts"
	CounterRegistrations = "registrations"
)

// Metrics holds all application metrics
type Metrics struct {
	mu sync.RWMutex

	requestCount    map[string]*uint64    // endpoint:method -> count
	requestDuration map[string]*Histogram // endpoint:method -> duration histogram
	requestErrors   map[string]*uint64    // endpoint:method:status_class -> count

	sessionStreams int64

	gauges   map[string]float64
	counters map[string]*uint64

	startTime time.Time
}

// Histogram tracks value distributions
type Histogram struct {
	mu    sync.Mutex
	count uint64
	sum   float64
	// Buckets: 5ms, 10ms, 25ms, 50ms, 100ms, 250ms, 500ms, 1s, 2.5s, 5s, 10s
	buckets    []float64
	bucketVals []uint64
}

// NewHistogram creates a new histogram with default buckets
func NewHistogram() *Histogram {
	return &Histogram{
		buckets:    []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		bucketVals: make([]uint64, 11),
	}
}

// Observe records a value
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, b := range h.buckets {
		if v <= b {
			h.bucketVals[i]++
		}
	}
}

func New() *Metrics {
	return &Metrics{
		requestCount:    make(map[string]*uint64),
		requestDuration: make(map[string]*Histogram),
		requestErrors:   make(map[string]*uint64),
		gauges:          make(map[string]float64),
		counters:        make(map[string]*uint64),
		startTime:       time.Now(),
	}
}

var defaultMetrics = New()

// Default returns the process-wide metrics instance
func Default() *Metrics {
	return defaultMetrics
}

// RecordRequest records a request
func (m *Metrics) RecordRequest(method, path string, statusCode int, duration time.Duration) {
	key := normalizeEndpoint(path) + ":" + method

	m.mu.Lock()
	count := counterLocked(m.requestCount, key)
	hist, ok := m.requestDuration[key]
	if !ok {
		hist = NewHistogram()
		m.requestDuration[key] = hist
	}
	var errCount *uint64
	if statusCode >= 400 {
		errCount = counterLocked(m.requestErrors, fmt.Sprintf("%s:%d", key, statusCode/100))
	}
	m.mu.Unlock()

	atomic.AddUint64(count, 1)
	hist.Observe(duration.Seconds())
	if errCount != nil {
		atomic.AddUint64(errCount, 1)
	}
}

func counterLocked(m map[string]*uint64, key string) *uint64 {
	c, ok := m[key]
	if !ok {
		c = new(uint64)
		m[key] = c
	}
	return c
}

// normalizeEndpoint replaces ids and channel names so paths group into a
// bounded set of series.
func normalizeEndpoint(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		switch {
		case i > 0 && parts[i-1] == "c" && part != "":
			parts[i] = "{username}"
		case len(part) == 36 && strings.Count(part, "-") == 4:
			parts[i] = "{id}"
		case part != "" && isNumeric(part):
			parts[i] = "{id}"
		}
	}
	return strings.Join(parts, "/")
}

func isNumeric(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// IncSessionStreams and DecSessionStreams track open session event sockets.
func (m *Metrics) IncSessionStreams() {
	atomic.AddInt64(&m.sessionStreams, 1)
}

func (m *Metrics) DecSessionStreams() {
	atomic.AddInt64(&m.sessionStreams, -1)
}

func (m *Metrics) SetGauge(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name] = value
}

func (m *Metrics) IncCounter(name string) {
	m.mu.Lock()
	c := counterLocked(m.counters, name)
	m.mu.Unlock()
	atomic.AddUint64(c, 1)
}

// Counter returns the current value of a named counter.
func (m *Metrics) Counter(name string) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.counters[name]; ok {
		return atomic.LoadUint64(c)
	}
	return 0
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func writeHeader(sb *strings.Builder, name, kind, help string) {
	fmt.Fprintf(sb, "# HELP %s%s %s\n", prefix, name, help)
	fmt.Fprintf(sb, "# TYPE %s%s %s\n", prefix, name, kind)
}

// Handler serves the metrics in the Prometheus text format.
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

		var sb strings.Builder

		writeHeader(&sb, "uptime_seconds", "gauge", "Time since the server started")
		fmt.Fprintf(&sb, "%suptime_seconds %f\n\n", prefix, time.Since(m.startTime).Seconds())

		writeHeader(&sb, "session_streams_active", "gauge", "Open session event WebSocket connections")
		fmt.Fprintf(&sb, "%ssession_streams_active %d\n\n", prefix, atomic.LoadInt64(&m.sessionStreams))

		m.mu.RLock()
		defer m.mu.RUnlock()

		if len(m.requestCount) > 0 {
			writeHeader(&sb, "http_requests_total", "counter", "Total HTTP requests")
			for _, key := range sortedKeys(m.requestCount) {
				endpoint, method, _ := strings.Cut(key, ":")
				fmt.Fprintf(&sb, "%shttp_requests_total{endpoint=%q,method=%q} %d\n",
					prefix, endpoint, method, atomic.LoadUint64(m.requestCount[key]))
			}
			sb.WriteString("\n")
		}

		if len(m.requestDuration) > 0 {
			writeHeader(&sb, "http_request_duration_seconds", "histogram", "HTTP request latency")
			for _, key := range sortedKeys(m.requestDuration) {
				endpoint, method, _ := strings.Cut(key, ":")
				labels := fmt.Sprintf("endpoint=%q,method=%q", endpoint, method)
				h := m.requestDuration[key]
				h.mu.Lock()
				for i, bucket := range h.buckets {
					fmt.Fprintf(&sb, "%shttp_request_duration_seconds_bucket{%s,le=\"%g\"} %d\n", prefix, labels, bucket, h.bucketVals[i])
				}
				fmt.Fprintf(&sb, "%shttp_request_duration_seconds_bucket{%s,le=\"+Inf\"} %d\n", prefix, labels, h.count)
				fmt.Fprintf(&sb, "%shttp_request_duration_seconds_sum{%s} %f\n", prefix, labels, h.sum)
				fmt.Fprintf(&sb, "%shttp_request_duration_seconds_count{%s} %d\n", prefix, labels, h.count)
				h.mu.Unlock()
			}
			sb.WriteString("\n")
		}

		if len(m.requestErrors) > 0 {
			writeHeader(&sb, "http_errors_total", "counter", "Total HTTP errors by status class")
			for _, key := range sortedKeys(m.requestErrors) {
				parts := strings.Split(key, ":")
				if len(parts) != 3 {
					continue
				}
				fmt.Fprintf(&sb, "%shttp_errors_total{endpoint=%q,method=%q,status_class=\"%sxx\"} %d\n",
					prefix, parts[0], parts[1], parts[2], atomic.LoadUint64(m.requestErrors[key]))
			}
			sb.WriteString("\n")
		}

		if len(m.gauges) > 0 {
			writeHeader(&sb, "gauge", "gauge", "Custom gauge metrics")
			for _, name := range sortedKeys(m.gauges) {
				fmt.Fprintf(&sb, "%sgauge{name=%q} %f\n", prefix, name, m.gauges[name])
			}
			sb.WriteString("\n")
		}

		if len(m.counters) > 0 {
			writeHeader(&sb, "events_total", "counter", "Session and account events")
			for _, name := range sortedKeys(m.counters) {
				fmt.Fprintf(&sb, "%sevents_total{name=%q} %d\n", prefix, name, atomic.LoadUint64(m.counters[name]))
			}
		}

		w.Write([]byte(sb.String()))
	}
}

// MetricsMiddleware records request counts and latency.
func MetricsMiddleware(m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			m.RecordRequest(r.Method, r.URL.Path, wrapped.statusCode, time.Since(start))
		})
	}
}

type statusResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusResponseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the session WebSocket upgrade through this middleware.
func (w *statusResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}
