package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	w := httptest.NewRecorder()
	m.Handler()(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return w.Body.String()
}

func TestMetrics_RecordRequest(t *testing.T) {
	m := New()

	m.RecordRequest("POST", "/api/v1/users/login", 200, 100*time.Millisecond)
	m.RecordRequest("POST", "/api/v1/users/login", 200, 150*time.Millisecond)
	m.RecordRequest("POST", "/api/v1/users/login", 401, 50*time.Millisecond)

	body := scrape(t, m)

	if !strings.Contains(body, `accounts_http_requests_total{endpoint="/api/v1/users/login",method="POST"} 3`) {
		t.Errorf("expected request count 3, got:\n%s", body)
	}
	if !strings.Contains(body, "accounts_http_request_duration_seconds_count") {
		t.Error("expected latency histogram")
	}
	if !strings.Contains(body, `status_class="4xx"} 1`) {
		t.Errorf("expected one 4xx error, got:\n%s", body)
	}
}

func TestMetrics_SessionStreams(t *testing.T) {
	m := New()

	m.IncSessionStreams()
	m.IncSessionStreams()
	m.DecSessionStreams()

	body := scrape(t, m)
	if !strings.Contains(body, "accounts_session_streams_active 1") {
		t.Errorf("expected accounts_session_streams_active 1, got:\n%s", body)
	}
}

func TestMetrics_Uptime(t *testing.T) {
	m := New()
	time.Sleep(10 * time.Millisecond)

	if body := scrape(t, m); !strings.Contains(body, "accounts_uptime_seconds") {
		t.Error("expected accounts_uptime_seconds metric")
	}
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/api/v1/users/c/alice", "/api/v1/users/c/{username}"},
		{"/api/v1/users/123e4567-e89b-12d3-a456-426614174000", "/api/v1/users/{id}"},
		{"/api/v1/users/42", "/api/v1/users/{id}"},
		{"/api/v1/users/current-user", "/api/v1/users/current-user"},
	}

	for _, tt := range tests {
		if got := normalizeEndpoint(tt.path); got != tt.expected {
			t.Errorf("normalizeEndpoint(%q) = %q, want %q", tt.path, got, tt.expected)
		}
	}
}

func TestMetricsMiddleware(t *testing.T) {
	m := New()

	handler := MetricsMiddleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/users/register", nil))

	if w.Code != http.StatusCreated {
		t.Errorf("expected status 201, got %d", w.Code)
	}
	if body := scrape(t, m); !strings.Contains(body, "/api/v1/users/register") {
		t.Errorf("expected endpoint in metrics, got:\n%s", body)
	}
}

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.IncCounter(CounterLogins)
	m.IncCounter(CounterLogins)
	m.IncCounter(CounterTokenReuse)

	if got := m.Counter(CounterLogins); got != 2 {
		t.Errorf("expected 2 logins, got %d", got)
	}
	if got := m.Counter(CounterRefreshes); got != 0 {
		t.Errorf("expected unset counter to read 0, got %d", got)
	}

	body := scrape(t, m)
	if !strings.Contains(body, `accounts_events_total{name="logins"} 2`) {
		t.Errorf("expected logins counter = 2, got:\n%s", body)
	}
}

func TestMetrics_CustomGauge(t *testing.T) {
	m := New()
	m.SetGauge("db_open_connections", 3.0)

	if body := scrape(t, m); !strings.Contains(body, `accounts_gauge{name="db_open_connections"}`) {
		t.Errorf("expected gauge, got:\n%s", body)
	}
}
