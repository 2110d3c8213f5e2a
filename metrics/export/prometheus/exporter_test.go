package prometheus

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	authcore "github.com/tripcents/authcore"
	"github.com/tripcents/authcore/pgpool"
)

type fakeSource struct {
	snapshot authcore.MetricsSnapshot
	pool     pgpool.Stats
}

func (f fakeSource) MetricsSnapshot() authcore.MetricsSnapshot { return f.snapshot }
func (f fakeSource) PoolStats() pgpool.Stats                   { return f.pool }

func TestRenderIncludesCounterHistogramAndPoolGauges(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{
				authcore.MetricLoginSuccess: 7,
			},
			Histograms: map[authcore.MetricID][]uint64{
				authcore.MetricRefreshLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		pool: pgpool.Stats{Total: 10, Idle: 6, Active: 4, Waiting: 1},
	})

	out := exp.Render()
	if !strings.Contains(out, "authcore_login_success_total 7") {
		t.Fatalf("expected login_success counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "authcore_refresh_latency_seconds_bucket{le=\"0.005\"} 1") {
		t.Fatalf("expected first histogram bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "authcore_refresh_latency_seconds_bucket{le=\"+Inf\"} 36") {
		t.Fatalf("expected +Inf cumulative bucket in output, got:\n%s", out)
	}
	if !strings.Contains(out, "authcore_refresh_latency_seconds_count 36") {
		t.Fatalf("expected histogram count in output, got:\n%s", out)
	}
	if !strings.Contains(out, "authcore_pool_conns_total 10") {
		t.Fatalf("expected pool total gauge in output, got:\n%s", out)
	}
	if !strings.Contains(out, "authcore_pool_waiting 1") {
		t.Fatalf("expected pool waiting gauge in output, got:\n%s", out)
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{
				authcore.MetricLoginSuccess:   3,
				authcore.MetricRefreshSuccess: 5,
				authcore.MetricReplayDetected: 1,
			},
			Histograms: map[authcore.MetricID][]uint64{},
		},
	})

	first := exp.Render()
	for i := 0; i < 10; i++ {
		if got := exp.Render(); got != first {
			t.Fatalf("render output changed between calls:\n%s\nvs\n%s", first, got)
		}
	}
}

func TestRenderTreatsMissingSeriesAsZero(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authcore.MetricsSnapshot{},
	})

	out := exp.Render()
	if !strings.Contains(out, "authcore_login_success_total 0") {
		t.Fatalf("expected zero-valued counter in output, got:\n%s", out)
	}
	if !strings.Contains(out, "authcore_refresh_latency_seconds_count 0") {
		t.Fatalf("expected zero-valued histogram count in output, got:\n%s", out)
	}
}

func TestHandlerWritesPrometheusContentType(t *testing.T) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters:   map[authcore.MetricID]uint64{authcore.MetricLoginSuccess: 1},
			Histograms: map[authcore.MetricID][]uint64{},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	exp.Handler().ServeHTTP(rec, req)

	if got := rec.Header().Get("Content-Type"); !strings.Contains(got, "text/plain") {
		t.Fatalf("expected prometheus content type, got %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func BenchmarkRender(b *testing.B) {
	exp := NewPrometheusExporterFromSource(fakeSource{
		snapshot: authcore.MetricsSnapshot{
			Counters: map[authcore.MetricID]uint64{
				authcore.MetricLoginSuccess:       1000,
				authcore.MetricLoginFailure:       40,
				authcore.MetricRefreshSuccess:     800,
				authcore.MetricRefreshFailure:     10,
				authcore.MetricSessionCreated:     800,
				authcore.MetricSessionInvalidated: 20,
				authcore.MetricReplayDetected:     3,
			},
			Histograms: map[authcore.MetricID][]uint64{
				authcore.MetricRefreshLatency: {10, 20, 30, 40, 50, 60, 70, 80},
			},
		},
		pool: pgpool.Stats{Total: 20, Idle: 12, Active: 8, Waiting: 2},
	})

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = exp.Render()
	}
}
