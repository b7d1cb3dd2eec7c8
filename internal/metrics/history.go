// Package metrics keeps per-source run history and derives rolling
// health summaries from it. History is advisory and bounded, so a
// long-lived process never grows it without limit.
package metrics

import (
	"sync"
	"time"
)

// Grade maps a source's rolling success rate to a coarse label.
type Grade string

const (
	GradeExcellent Grade = "excellent"
	GradeGood      Grade = "good"
	GradeDegraded  Grade = "degraded"
	GradePoor      Grade = "poor"
	GradeUnknown   Grade = "unknown"
)

const (
	// DefaultCapacity bounds the per-source ring buffer.
	DefaultCapacity = 500

	WindowHour = time.Hour
	WindowDay  = 24 * time.Hour
)

// Outcome is one worker iteration's result.
type Outcome struct {
	Source    string
	Timestamp time.Time
	Duration  time.Duration
	Listings  int
	Success   bool
}

// Summary aggregates outcomes over a window.
type Summary struct {
	TotalRuns      int           `json:"total_runs"`
	SuccessfulRuns int           `json:"successful_runs"`
	SuccessRate    float64       `json:"success_rate"`
	AvgDuration    time.Duration `json:"avg_duration"`
	TotalListings  int           `json:"total_listings"`
}

// ring is a fixed-capacity buffer that evicts the oldest outcome when
// full.
type ring struct {
	mu   sync.Mutex
	buf  []Outcome
	head int
	size int
}

func (r *ring) push(o Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = o
		r.size++
		return
	}
	r.buf[r.head] = o
	r.head = (r.head + 1) % len(r.buf)
}

// snapshot copies the buffered outcomes oldest first.
func (r *ring) snapshot() []Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Outcome, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.head+i)%len(r.buf)]
	}
	return out
}

// History keeps one ring buffer per source. Buffers lock individually
// so workers recording for different sources never contend.
type History struct {
	capacity int
	now      func() time.Time

	mu      sync.RWMutex
	sources map[string]*ring
}

// NewHistory builds a history with the given per-source capacity.
// capacity <= 0 falls back to DefaultCapacity.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &History{
		capacity: capacity,
		now:      time.Now,
		sources:  map[string]*ring{},
	}
}

func (h *History) ring(source string) *ring {
	h.mu.RLock()
	r, ok := h.sources[source]
	h.mu.RUnlock()
	if ok {
		return r
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok = h.sources[source]; ok {
		return r
	}
	r = &ring{buf: make([]Outcome, h.capacity)}
	h.sources[source] = r
	return r
}

// Record appends an outcome to the source's buffer, evicting the
// oldest entry once the buffer is full.
func (h *History) Record(o Outcome) {
	if o.Timestamp.IsZero() {
		o.Timestamp = h.now()
	}
	h.ring(o.Source).push(o)
}

// Summary aggregates the source's outcomes that fall inside the
// window ending now.
func (h *History) Summary(source string, window time.Duration) Summary {
	cutoff := h.now().Add(-window)
	var s Summary
	var total time.Duration
	for _, o := range h.ring(source).snapshot() {
		if o.Timestamp.Before(cutoff) {
			continue
		}
		s.TotalRuns++
		total += o.Duration
		s.TotalListings += o.Listings
		if o.Success {
			s.SuccessfulRuns++
		}
	}
	if s.TotalRuns > 0 {
		s.SuccessRate = float64(s.SuccessfulRuns) / float64(s.TotalRuns)
		s.AvgDuration = total / time.Duration(s.TotalRuns)
	}
	return s
}

// Grade maps the source's success rate over the window to a label.
// A source with no recorded runs grades unknown.
func (h *History) Grade(source string, window time.Duration) Grade {
	s := h.Summary(source, window)
	if s.TotalRuns == 0 {
		return GradeUnknown
	}
	switch {
	case s.SuccessRate >= 0.95:
		return GradeExcellent
	case s.SuccessRate >= 0.80:
		return GradeGood
	case s.SuccessRate >= 0.50:
		return GradeDegraded
	default:
		return GradePoor
	}
}

// Sources returns the names with recorded history.
func (h *History) Sources() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.sources))
	for name := range h.sources {
		out = append(out, name)
	}
	return out
}
