package health

import (
	"fmt"
	"testing"
	"time"
)

func newTestTracker(threshold int, window time.Duration) (*Tracker, *time.Time) {
	t := NewTracker(threshold, window)
	now := time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC)
	t.now = func() time.Time { return now }
	return t, &now
}

func TestTrackerOpensAtThreshold(t *testing.T) {
	tr, _ := newTestTracker(10, time.Hour)
	for i := 0; i < 9; i++ {
		if opened := tr.Record("alice", "craigslist", KindFetch, fmt.Sprintf("failure %d", i)); opened {
			t.Fatalf("record %d opened the circuit before the threshold", i)
		}
	}
	if tr.Open("alice", "craigslist") {
		t.Fatal("circuit open after 9 records")
	}
	if !tr.Record("alice", "craigslist", KindFetch, "failure 9") {
		t.Fatal("10th record did not open the circuit")
	}
	if !tr.Open("alice", "craigslist") {
		t.Fatal("circuit still closed after 10 records")
	}
}

func TestTrackerPairsAreIndependent(t *testing.T) {
	tr, _ := newTestTracker(3, time.Hour)
	tr.Record("alice", "craigslist", KindFetch, "boom")
	tr.Record("alice", "craigslist", KindFetch, "boom")
	tr.Record("alice", "craigslist", KindFetch, "boom")
	if !tr.Open("alice", "craigslist") {
		t.Fatal("expected alice/craigslist open")
	}
	if tr.Open("alice", "ebay") {
		t.Fatal("alice/ebay should be untouched")
	}
	if tr.Open("bob", "craigslist") {
		t.Fatal("bob/craigslist should be untouched")
	}
}

func TestTrackerPrunesOldRecords(t *testing.T) {
	tr, now := newTestTracker(3, time.Hour)
	tr.Record("alice", "ebay", KindBlocked, "captcha")
	tr.Record("alice", "ebay", KindBlocked, "captcha")

	*now = now.Add(61 * time.Minute)
	if got := tr.Count("alice", "ebay"); got != 0 {
		t.Fatalf("expected pruned window, got %d records", got)
	}

	// The circuit closes on its own as records age out.
	tr.Record("alice", "ebay", KindBlocked, "captcha")
	tr.Record("alice", "ebay", KindBlocked, "captcha")
	tr.Record("alice", "ebay", KindBlocked, "captcha")
	if !tr.Open("alice", "ebay") {
		t.Fatal("expected open circuit")
	}
	*now = now.Add(2 * time.Hour)
	if tr.Open("alice", "ebay") {
		t.Fatal("circuit should close once records age out")
	}
}

func TestTrackerReset(t *testing.T) {
	tr, _ := newTestTracker(2, time.Hour)
	tr.Record("alice", "offerup", KindSession, "no runtime")
	tr.Record("alice", "offerup", KindSession, "no runtime")
	if !tr.Open("alice", "offerup") {
		t.Fatal("expected open circuit")
	}
	tr.Reset("alice", "offerup")
	if tr.Open("alice", "offerup") {
		t.Fatal("reset did not close the circuit")
	}
	if got := tr.Count("alice", "offerup"); got != 0 {
		t.Fatalf("expected empty window after reset, got %d", got)
	}
}

func TestTrackerLastErrorAndRecent(t *testing.T) {
	tr, now := newTestTracker(10, time.Hour)
	if _, ok := tr.LastError("alice", "ebay"); ok {
		t.Fatal("expected no last error on an empty window")
	}
	tr.Record("alice", "ebay", KindFetch, "timeout")
	*now = now.Add(time.Minute)
	tr.Record("alice", "ebay", KindParse, "no strategy")
	*now = now.Add(time.Minute)
	tr.Record("alice", "ebay", KindBlocked, "403")

	last, ok := tr.LastError("alice", "ebay")
	if !ok {
		t.Fatal("expected a last error")
	}
	if last.Kind != KindBlocked || last.Message != "403" {
		t.Fatalf("unexpected last error: %+v", last)
	}

	recent := tr.Recent("alice", "ebay", 2)
	if len(recent) != 2 {
		t.Fatalf("expected 2 recent records, got %d", len(recent))
	}
	if recent[0].Message != "403" || recent[1].Message != "no strategy" {
		t.Fatalf("recent records out of order: %+v", recent)
	}

	all := tr.Recent("alice", "ebay", 0)
	if len(all) != 3 {
		t.Fatalf("expected all 3 records, got %d", len(all))
	}
}

func TestStatusForLabels(t *testing.T) {
	tr, _ := newTestTracker(10, time.Hour)

	if got := tr.StatusFor("alice", "ebay", true); got != StatusHealthy {
		t.Fatalf("no errors: expected %q, got %q", StatusHealthy, got)
	}
	if got := tr.StatusFor("alice", "ebay", false); got != StatusStopped {
		t.Fatalf("not running: expected %q, got %q", StatusStopped, got)
	}

	for i := 0; i < 4; i++ {
		tr.Record("alice", "ebay", KindFetch, "boom")
	}
	if got := tr.StatusFor("alice", "ebay", true); got != StatusDegraded {
		t.Fatalf("4 errors: expected %q, got %q", StatusDegraded, got)
	}

	tr.Record("alice", "ebay", KindFetch, "boom")
	if got := tr.StatusFor("alice", "ebay", true); got != StatusUnhealthy {
		t.Fatalf("5 errors: expected %q, got %q", StatusUnhealthy, got)
	}

	for i := 0; i < 5; i++ {
		tr.Record("alice", "ebay", KindFetch, "boom")
	}
	if got := tr.StatusFor("alice", "ebay", true); got != StatusStopped {
		t.Fatalf("open circuit: expected %q, got %q", StatusStopped, got)
	}
}

func TestTrackerDefaults(t *testing.T) {
	tr := NewTracker(0, 0)
	if tr.Threshold() != DefaultThreshold {
		t.Fatalf("expected default threshold %d, got %d", DefaultThreshold, tr.Threshold())
	}
	if tr.window != DefaultWindow {
		t.Fatalf("expected default window %v, got %v", DefaultWindow, tr.window)
	}
}
