// Package health tracks per-worker error budgets. Each (user, source)
// pair owns a rolling window of error records; once the count inside
// the window reaches the breaker threshold the pair reports open and
// the supervisor stops the worker. Recovery is a manual restart, which
// clears the window, or old records aging out.
package health

import (
	"fmt"
	"sync"
	"time"
)

// Kind classifies an error record so dashboards can tell a blocked
// fetch from a crashed parse at a glance.
type Kind string

const (
	KindFetch    Kind = "fetch"
	KindBlocked  Kind = "blocked"
	KindParse    Kind = "parse"
	KindSession  Kind = "session"
	KindSettings Kind = "settings"
	KindPanic    Kind = "panic"
)

// Status is the derived label reported per (user, source) pair.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
	StatusStopped   Status = "stopped"
)

const (
	DefaultThreshold = 10
	DefaultWindow    = time.Hour
)

// Record is one failure observed by a worker loop.
type Record struct {
	User      string    `json:"user"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
}

type pairState struct {
	mu      sync.Mutex
	records []Record
}

// Tracker keeps a rolling error window per (user, source) pair. Pairs
// lock independently so concurrent workers never serialize on a single
// mutex.
type Tracker struct {
	threshold int
	window    time.Duration
	now       func() time.Time

	mu    sync.RWMutex
	pairs map[string]*pairState
}

// NewTracker builds a tracker with the given breaker threshold and
// rolling window. Zero values fall back to the defaults.
func NewTracker(threshold int, window time.Duration) *Tracker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{
		threshold: threshold,
		window:    window,
		now:       time.Now,
		pairs:     map[string]*pairState{},
	}
}

// Threshold returns the breaker threshold.
func (t *Tracker) Threshold() int {
	return t.threshold
}

func pairKey(user, source string) string {
	return fmt.Sprintf("%s|%s", user, source)
}

func (t *Tracker) pair(user, source string) *pairState {
	key := pairKey(user, source)
	t.mu.RLock()
	p, ok := t.pairs[key]
	t.mu.RUnlock()
	if ok {
		return p
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok = t.pairs[key]; ok {
		return p
	}
	p = &pairState{}
	t.pairs[key] = p
	return p
}

// prune drops records older than the window. Callers hold p.mu.
func (t *Tracker) prune(p *pairState) {
	cutoff := t.now().Add(-t.window)
	i := 0
	for i < len(p.records) && p.records[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		p.records = append(p.records[:0], p.records[i:]...)
	}
}

// Record appends an error record for the pair and reports whether the
// window now holds at least the threshold, i.e. whether this record
// opened the circuit.
func (t *Tracker) Record(user, source string, kind Kind, message string) bool {
	p := t.pair(user, source)
	p.mu.Lock()
	defer p.mu.Unlock()
	t.prune(p)
	p.records = append(p.records, Record{
		User:      user,
		Source:    source,
		Timestamp: t.now(),
		Kind:      kind,
		Message:   message,
	})
	return len(p.records) >= t.threshold
}

// Count returns the number of records currently inside the window.
func (t *Tracker) Count(user, source string) int {
	p := t.pair(user, source)
	p.mu.Lock()
	defer p.mu.Unlock()
	t.prune(p)
	return len(p.records)
}

// Open reports whether the pair's error count has reached the
// threshold. The state is derived, so it closes again on its own once
// records age out of the window.
func (t *Tracker) Open(user, source string) bool {
	return t.Count(user, source) >= t.threshold
}

// LastError returns the most recent record inside the window, or false
// when the window is empty.
func (t *Tracker) LastError(user, source string) (Record, bool) {
	p := t.pair(user, source)
	p.mu.Lock()
	defer p.mu.Unlock()
	t.prune(p)
	if len(p.records) == 0 {
		return Record{}, false
	}
	return p.records[len(p.records)-1], true
}

// Recent returns up to limit records from the window, newest first.
// limit <= 0 returns all of them.
func (t *Tracker) Recent(user, source string, limit int) []Record {
	p := t.pair(user, source)
	p.mu.Lock()
	defer p.mu.Unlock()
	t.prune(p)
	n := len(p.records)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Record, 0, n)
	for i := len(p.records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, p.records[i])
	}
	return out
}

// Reset clears the pair's window. A manual worker restart calls this
// so the circuit closes deliberately instead of half-open probing.
func (t *Tracker) Reset(user, source string) {
	p := t.pair(user, source)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = p.records[:0]
}

// StatusFor derives the health label for a pair. A stopped worker or
// an open circuit reports stopped. Otherwise the label grades the
// error count against the threshold: none is healthy, below half the
// threshold is degraded, at or above half is unhealthy.
func (t *Tracker) StatusFor(user, source string, running bool) Status {
	count := t.Count(user, source)
	if !running || count >= t.threshold {
		return StatusStopped
	}
	switch {
	case count == 0:
		return StatusHealthy
	case count < t.threshold/2:
		return StatusDegraded
	default:
		return StatusUnhealthy
	}
}
