package otel

import (
	"context"
	"sync"
	"testing"

	goIdentity "github.com/MrEthical07/goIdentity"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

type fakeSource struct {
	mu       sync.RWMutex
	snapshot goIdentity.MetricsSnapshot
	dropped  uint64
}

func (f *fakeSource) MetricsSnapshot() goIdentity.MetricsSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := goIdentity.MetricsSnapshot{
		Counters:   make(map[goIdentity.MetricID]uint64, len(f.snapshot.Counters)),
		Histograms: make(map[goIdentity.MetricID][]uint64, len(f.snapshot.Histograms)),
	}
	for k, v := range f.snapshot.Counters {
		out.Counters[k] = v
	}
	for k, buckets := range f.snapshot.Histograms {
		out.Histograms[k] = append([]uint64(nil), buckets...)
	}
	return out
}

func (f *fakeSource) AuditDropped() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.dropped
}

func newReader() (*sdkmetric.ManualReader, *sdkmetric.MeterProvider) {
	reader := sdkmetric.NewManualReader()
	return reader, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
}

func find(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestExporterCollects(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{
		snapshot: goIdentity.MetricsSnapshot{
			Counters: map[goIdentity.MetricID]uint64{goIdentity.MetricLoginSuccess: 3},
			Histograms: map[goIdentity.MetricID][]uint64{
				goIdentity.MetricValidateLatency: {1, 1, 1, 1, 1, 1, 1, 1},
			},
		},
		dropped: 1,
	}

	exp, err := NewFromSource(provider.Meter("goidentity-test"), src)
	if err != nil {
		t.Fatalf("NewFromSource: %v", err)
	}
	defer func() {
		if err := exp.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}()

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	m, ok := find(rm, "goidentity_login_success_total")
	if !ok {
		t.Fatal("login counter not collected")
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 3 {
		t.Fatalf("unexpected login counter data %+v", m.Data)
	}

	m, ok = find(rm, "goidentity_validate_latency_seconds_bucket")
	if !ok {
		t.Fatal("latency buckets not collected")
	}
	gauge, ok := m.Data.(metricdata.Gauge[int64])
	if !ok || len(gauge.DataPoints) != 8 {
		t.Fatalf("expected eight bucket points, got %+v", m.Data)
	}
	var inf int64
	for _, dp := range gauge.DataPoints {
		if v, _ := dp.Attributes.Value("le"); v.AsString() == "+Inf" {
			inf = dp.Value
		}
	}
	if inf != 8 {
		t.Fatalf("expected cumulative +Inf bucket of 8, got %d", inf)
	}

	if _, ok := find(rm, "goidentity_audit_dropped_total"); !ok {
		t.Fatal("audit dropped counter not collected")
	}
}

func TestExporterRejectsNil(t *testing.T) {
	_, provider := newReader()
	if _, err := NewFromSource(provider.Meter("goidentity-test"), nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource, got %v", err)
	}
	if _, err := NewFromSource(nil, &fakeSource{}); err != ErrNilMeter {
		t.Fatalf("expected ErrNilMeter, got %v", err)
	}
	if _, err := New(provider.Meter("goidentity-test"), nil); err != ErrNilSource {
		t.Fatalf("expected ErrNilSource for nil engine, got %v", err)
	}
}

func TestExporterConcurrentCollect(t *testing.T) {
	reader, provider := newReader()
	src := &fakeSource{
		snapshot: goIdentity.MetricsSnapshot{
			Counters: map[goIdentity.MetricID]uint64{goIdentity.MetricLoginSuccess: 1},
		},
	}
	exp, err := NewFromSource(provider.Meter("goidentity-test"), src)
	if err != nil {
		t.Fatalf("NewFromSource: %v", err)
	}
	defer exp.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(v uint64) {
			defer wg.Done()
			src.mu.Lock()
			src.snapshot.Counters[goIdentity.MetricLoginSuccess] = v
			src.mu.Unlock()

			var rm metricdata.ResourceMetrics
			_ = reader.Collect(context.Background(), &rm)
		}(uint64(i + 1))
	}
	wg.Wait()
}
