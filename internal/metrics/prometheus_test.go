package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPrometheusHandler(t *testing.T) {
	m := New()
	m.Inc(PeerJoined)
	m.Inc(PeerJoined)
	m.Inc(RelayForwarded)

	rec := httptest.NewRecorder()
	PrometheusHandler(m).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `roomrelay_events_total{event="peer_joined"} 2`) {
		t.Fatalf("missing peer_joined counter:\n%s", body)
	}
	if !strings.Contains(body, `roomrelay_events_total{event="relay_forwarded"} 1`) {
		t.Fatalf("missing relay_forwarded counter:\n%s", body)
	}
	if !strings.Contains(body, "# TYPE roomrelay_events_total counter") {
		t.Fatalf("missing TYPE line:\n%s", body)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.Inc(PeerJoined)

	rec := httptest.NewRecorder()
	PrometheusHandler(nil).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 500 {
		t.Fatalf("nil metrics status = %d, want 500", rec.Code)
	}
}
