package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	snapshot goIdentity.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() goIdentity.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                        { return f.dropped }

func enabledSnapshot() goIdentity.MetricsSnapshot {
	counters := make(map[goIdentity.MetricID]uint64)
	for _, id := range goIdentity.CounterIDs() {
		counters[id] = 0
	}
	counters[goIdentity.MetricLoginSuccess] = 7
	return goIdentity.MetricsSnapshot{
		Counters: counters,
		Histograms: map[goIdentity.MetricID][]uint64{
			goIdentity.MetricValidateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
		},
	}
}

func TestCollectorDisabledExportsOnlyAuditDropped(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{
		snapshot: goIdentity.MetricsSnapshot{
			Counters:   map[goIdentity.MetricID]uint64{},
			Histograms: map[goIdentity.MetricID][]uint64{},
		},
	})
	if n := testutil.CollectAndCount(c); n != 1 {
		t.Fatalf("expected only the audit counter, got %d metrics", n)
	}
}

func TestCollectorCountersAndHistogram(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{snapshot: enabledSnapshot(), dropped: 2})

	expected := `
# HELP goidentity_login_success_total Successful logins.
# TYPE goidentity_login_success_total counter
goidentity_login_success_total 7
# HELP goidentity_audit_dropped_total Audit events dropped because the dispatcher buffer was full.
# TYPE goidentity_audit_dropped_total counter
goidentity_audit_dropped_total 2
# HELP goidentity_validate_latency_seconds ValidateAccess latency.
# TYPE goidentity_validate_latency_seconds histogram
goidentity_validate_latency_seconds_bucket{le="0.005"} 1
goidentity_validate_latency_seconds_bucket{le="0.01"} 3
goidentity_validate_latency_seconds_bucket{le="0.025"} 6
goidentity_validate_latency_seconds_bucket{le="0.05"} 10
goidentity_validate_latency_seconds_bucket{le="0.1"} 15
goidentity_validate_latency_seconds_bucket{le="0.25"} 21
goidentity_validate_latency_seconds_bucket{le="0.5"} 28
goidentity_validate_latency_seconds_bucket{le="+Inf"} 36
goidentity_validate_latency_seconds_sum 0
goidentity_validate_latency_seconds_count 36
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"goidentity_login_success_total",
		"goidentity_audit_dropped_total",
		"goidentity_validate_latency_seconds",
	)
	if err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
	if n := testutil.CollectAndCount(c); n != len(goIdentity.CounterIDs())+2 {
		t.Fatalf("expected every counter plus histogram and audit counter, got %d", n)
	}
}

func TestCollectorLints(t *testing.T) {
	c := NewCollectorFromSource(fakeSource{snapshot: enabledSnapshot()})
	problems, err := testutil.CollectAndLint(c)
	if err != nil {
		t.Fatalf("CollectAndLint: %v", err)
	}
	for _, p := range problems {
		t.Errorf("lint %s: %s", p.Metric, p.Text)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	h, err := Handler(NewCollectorFromSource(fakeSource{snapshot: enabledSnapshot(), dropped: 3}))
	if err != nil {
		t.Fatalf("Handler: %v", err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "goidentity_audit_dropped_total 3") {
		t.Fatalf("expected audit counter in body, got:\n%s", body)
	}
}

func BenchmarkCollect(b *testing.B) {
	c := NewCollectorFromSource(fakeSource{snapshot: enabledSnapshot()})
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = testutil.CollectAndCount(c)
	}
}
