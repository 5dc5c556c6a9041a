package observability

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestLatencyWindowSnapshot(t *testing.T) {
	w := NewLatencyWindow(8)
	w.Observe("caption", 500)
	w.Observe("caption", 700)
	w.Observe("caption", 900)
	w.ObserveIndicator("image_fallback")
	w.ObserveIndicator("image_fallback")

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("len(Stages) = %d, want 1", len(snap.Stages))
	}
	s := snap.Stages[0]
	if s.Samples != 3 || s.LastMS != 900 || s.P50MS != 700 {
		t.Fatalf("stage = %+v", s)
	}
	if s.P95MS <= 700 || s.P95MS > 900 {
		t.Fatalf("P95MS = %.2f, want (700,900]", s.P95MS)
	}
	if s.TargetP95MS != 8000 {
		t.Fatalf("TargetP95MS = %.2f, want 8000", s.TargetP95MS)
	}
	if len(snap.Indicators) != 1 || snap.Indicators[0].Count != 2 {
		t.Fatalf("Indicators = %+v", snap.Indicators)
	}
}

func TestLatencyWindowEvictsOldest(t *testing.T) {
	w := NewLatencyWindow(2)
	for _, v := range []float64{1000, 10, 20} {
		w.Observe("hashtags", v)
	}
	s := w.Snapshot().Stages[0]
	if s.Samples != 2 || s.AvgMS != 15 {
		t.Fatalf("stage = %+v, want two samples averaging 15", s)
	}
}

func TestMetricsAreIsolatedPerInstance(t *testing.T) {
	a := NewMetrics("postcraft")
	b := NewMetrics("postcraft")
	a.ObserveCapability("caption", "ok", 40*time.Millisecond)
	b.ObserveCapability("image", "fallback", time.Second)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	if !strings.Contains(body, `postcraft_capability_runs_total{capability="caption",outcome="ok"} 1`) {
		t.Fatalf("missing caption counter in:\n%s", body)
	}
	if strings.Contains(body, `capability="image"`) {
		t.Fatalf("metrics leaked across instances")
	}
	if got := b.Latency().Indicators; len(got) != 1 || got[0].Name != "image_fallback" {
		t.Fatalf("Indicators = %+v", got)
	}

	var nilMetrics *Metrics
	nilMetrics.ObserveCapability("caption", "ok", time.Millisecond)
}
