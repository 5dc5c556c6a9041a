package observability

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

type StageStats struct {
	Stage       string  `json:"stage"`
	Samples     int     `json:"samples"`
	LastMS      float64 `json:"last_ms"`
	AvgMS       float64 `json:"avg_ms"`
	P50MS       float64 `json:"p50_ms"`
	P95MS       float64 `json:"p95_ms"`
	P99MS       float64 `json:"p99_ms"`
	TargetP95MS float64 `json:"target_p95_ms,omitempty"`
}

type Indicator struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type LatencySnapshot struct {
	GeneratedAt time.Time    `json:"generated_at"`
	WindowSize  int          `json:"window_size"`
	Stages      []StageStats `json:"stages"`
	Indicators  []Indicator  `json:"indicators,omitempty"`
}

// stageTargets are the p95 budgets shown next to each stage, in ms.
var stageTargets = map[string]float64{
	"classify":            2500,
	"caption":             8000,
	"hashtags":            6000,
	"image":               30000,
	"transcribe":          5000,
	"orchestration_total": 40000,
}

// LatencyWindow keeps the most recent samples per stage in fixed rings.
type LatencyWindow struct {
	mu         sync.RWMutex
	size       int
	rings      map[string]*ring
	indicators map[string]int
}

type ring struct {
	values []float64
	count  int
	last   float64
}

func (r *ring) push(v float64) {
	r.values[r.count%len(r.values)] = v
	r.count++
	r.last = v
}

func (r *ring) samples() []float64 {
	n := r.count
	if n > len(r.values) {
		n = len(r.values)
	}
	out := make([]float64, n)
	copy(out, r.values[:n])
	return out
}

func NewLatencyWindow(size int) *LatencyWindow {
	if size <= 0 {
		size = 256
	}
	return &LatencyWindow{
		size:       size,
		rings:      make(map[string]*ring),
		indicators: make(map[string]int),
	}
}

func (w *LatencyWindow) Observe(stage string, ms float64) {
	if w == nil || stage == "" || ms < 0 {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.rings[stage]
	if !ok {
		r = &ring{values: make([]float64, w.size)}
		w.rings[stage] = r
	}
	r.push(ms)
}

func (w *LatencyWindow) ObserveIndicator(name string) {
	if w == nil {
		return
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.indicators[name]++
}

func (w *LatencyWindow) Snapshot() LatencySnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	keys := make([]string, 0, len(w.rings))
	for k := range w.rings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	stages := make([]StageStats, 0, len(keys))
	for _, k := range keys {
		r := w.rings[k]
		s := r.samples()
		if len(s) == 0 {
			continue
		}
		sort.Float64s(s)
		var sum float64
		for _, v := range s {
			sum += v
		}
		stages = append(stages, StageStats{
			Stage:       k,
			Samples:     len(s),
			LastMS:      round2(r.last),
			AvgMS:       round2(sum / float64(len(s))),
			P50MS:       round2(quantile(s, 0.50)),
			P95MS:       round2(quantile(s, 0.95)),
			P99MS:       round2(quantile(s, 0.99)),
			TargetP95MS: stageTargets[k],
		})
	}

	names := make([]string, 0, len(w.indicators))
	for n := range w.indicators {
		names = append(names, n)
	}
	sort.Strings(names)
	indicators := make([]Indicator, 0, len(names))
	for _, n := range names {
		indicators = append(indicators, Indicator{Name: n, Count: w.indicators[n]})
	}

	return LatencySnapshot{
		GeneratedAt: time.Now().UTC(),
		WindowSize:  w.size,
		Stages:      stages,
		Indicators:  indicators,
	}
}

// quantile interpolates linearly between closest ranks of sorted.
func quantile(sorted []float64, q float64) float64 {
	switch {
	case len(sorted) == 0:
		return 0
	case q <= 0:
		return sorted[0]
	case q >= 1:
		return sorted[len(sorted)-1]
	}
	idx := q * float64(len(sorted)-1)
	lo, hi := int(math.Floor(idx)), int(math.Ceil(idx))
	frac := idx - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
