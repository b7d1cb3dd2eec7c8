package settings

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNormalizeDefaults(t *testing.T) {
	s := Snapshot{Keywords: []string{" PS5 ", "", "Playstation 5"}}
	s.Normalize()
	if s.IntervalSeconds != 60 {
		t.Fatalf("expected default interval of 60 seconds but got %d", s.IntervalSeconds)
	}
	kw := s.KeywordsLower()
	if len(kw) != 2 {
		t.Fatalf("expected 2 keywords but got %d", len(kw))
	}
	if kw[0] != "ps5" || kw[1] != "playstation 5" {
		t.Fatalf("unexpected keywords: %v", kw)
	}
}

func TestIntervalFloor(t *testing.T) {
	s := Snapshot{IntervalSeconds: 3}
	s.Normalize()
	if s.Interval() != MinInterval {
		t.Fatalf("expected interval to be floored to %v but got %v", MinInterval, s.Interval())
	}
}

func TestMatchesTitle(t *testing.T) {
	s := Snapshot{Keywords: []string{"ps5"}}
	s.Normalize()
	if !s.MatchesTitle("Sony PS5 console, barely used") {
		t.Errorf("expected title to match keyword 'ps5'")
	}
	if s.MatchesTitle("Xbox Series X") {
		t.Errorf("expected title not to match keyword 'ps5'")
	}
	empty := Snapshot{}
	empty.Normalize()
	if !empty.MatchesTitle("anything at all") {
		t.Errorf("expected empty keyword list to match everything")
	}
}

func TestMatchesPrice(t *testing.T) {
	min, max := 100.0, 400.0
	s := Snapshot{MinPrice: &min, MaxPrice: &max}
	s.Normalize()

	inRange := 250.0
	if !s.MatchesPrice(&inRange) {
		t.Errorf("expected price 250 to match range [100, 400]")
	}
	tooLow := 50.0
	if s.MatchesPrice(&tooLow) {
		t.Errorf("expected price 50 not to match range [100, 400]")
	}
	if !s.MatchesPrice(nil) {
		t.Errorf("expected nil price to match any range")
	}
}

func TestStaticProvider(t *testing.T) {
	p := NewStaticProvider(map[string]Snapshot{
		"alice": {Keywords: []string{"bike"}},
	})
	s, err := p.Get(context.Background(), "alice", "craigslist")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.KeywordsLower()) != 1 {
		t.Fatalf("expected normalized snapshot from static provider")
	}
	if _, err := p.Get(context.Background(), "bob", "craigslist"); err != ErrNoSettings {
		t.Fatalf("expected ErrNoSettings but got %v", err)
	}
}

const aliceSettings = `
keywords:
  - ps5
  - playstation 5
location: austin
radius_km: 40
min_price: 100
max_price: 400
interval_seconds: 90
sources:
  craigslist:
    interval_seconds: 120
    keywords:
      - ps5 disc edition
`

func TestFileProvider(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alice.yaml")
	if err := os.WriteFile(path, []byte(aliceSettings), 0o644); err != nil {
		t.Fatalf("failed to write settings file: %v", err)
	}

	p := NewFileProvider(dir)

	s, err := p.Get(context.Background(), "alice", "offerup")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.IntervalSeconds != 90 {
		t.Errorf("expected default interval 90 but got %d", s.IntervalSeconds)
	}
	if s.Location != "austin" {
		t.Errorf("expected location 'austin' but got %q", s.Location)
	}

	s, err = p.Get(context.Background(), "alice", "craigslist")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.IntervalSeconds != 120 {
		t.Errorf("expected overridden interval 120 but got %d", s.IntervalSeconds)
	}
	if len(s.KeywordsLower()) != 1 || s.KeywordsLower()[0] != "ps5 disc edition" {
		t.Errorf("expected overridden keywords but got %v", s.KeywordsLower())
	}
	// base fields survive the override
	if s.Location != "austin" {
		t.Errorf("expected location 'austin' after merge but got %q", s.Location)
	}

	if _, err := p.Get(context.Background(), "nobody", "craigslist"); !errors.Is(err, ErrNoSettings) {
		t.Fatalf("expected ErrNoSettings but got %v", err)
	}
}

func TestFileProviderReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alice.yaml")
	if err := os.WriteFile(path, []byte("keywords: [bike]\n"), 0o644); err != nil {
		t.Fatalf("failed to write settings file: %v", err)
	}

	p := NewFileProvider(dir)
	s, err := p.Get(context.Background(), "alice", "craigslist")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := s.KeywordsLower(); len(got) != 1 || got[0] != "bike" {
		t.Fatalf("unexpected keywords: %v", got)
	}

	if err := os.WriteFile(path, []byte("keywords: [kayak]\n"), 0o644); err != nil {
		t.Fatalf("failed to rewrite settings file: %v", err)
	}
	// make sure the mtime actually moves, coarse filesystem clocks would
	// otherwise hide the rewrite
	later := time.Now().Add(2 * time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("failed to bump mtime: %v", err)
	}

	s, err = p.Get(context.Background(), "alice", "craigslist")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := s.KeywordsLower(); len(got) != 1 || got[0] != "kayak" {
		t.Fatalf("expected reloaded keywords but got %v", got)
	}
}
