// Package settings provides the per-user search settings that drive a
// worker's polling loop. Settings are re-read by the worker at the top of
// every iteration so that edits take effect without a restart.
package settings

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNoSettings is returned by a Provider when no settings exist for the
// given user.
var ErrNoSettings = errors.New("no settings found for user")

const (
	DefaultInterval = 60 * time.Second
	MinInterval     = 10 * time.Second
)

// Snapshot holds one user's search criteria for one source at a single
// point in time. Workers treat a Snapshot as immutable.
type Snapshot struct {
	Keywords        []string `yaml:"keywords"`
	Location        string   `yaml:"location"`
	RadiusKM        int      `yaml:"radius_km"`
	MinPrice        *float64 `yaml:"min_price"`
	MaxPrice        *float64 `yaml:"max_price"`
	IntervalSeconds int      `yaml:"interval_seconds" env-default:"60"`

	// lower-cased copies of Keywords, computed once in Normalize
	keywordsLC []string
}

// Normalize fills derived fields and applies defaults. Providers call this
// before handing out a Snapshot.
func (s *Snapshot) Normalize() {
	s.keywordsLC = make([]string, 0, len(s.Keywords))
	for _, k := range s.Keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		s.keywordsLC = append(s.keywordsLC, strings.ToLower(k))
	}
	if s.IntervalSeconds <= 0 {
		s.IntervalSeconds = int(DefaultInterval.Seconds())
	}
}

// Interval returns the polling interval, never below MinInterval.
func (s *Snapshot) Interval() time.Duration {
	d := time.Duration(s.IntervalSeconds) * time.Second
	if d < MinInterval {
		return MinInterval
	}
	return d
}

// KeywordsLower returns the lower-cased keywords. Normalize must have been
// called first.
func (s *Snapshot) KeywordsLower() []string {
	return s.keywordsLC
}

// MatchesTitle reports whether the given title contains at least one of the
// configured keywords. An empty keyword list matches everything.
func (s *Snapshot) MatchesTitle(title string) bool {
	if len(s.keywordsLC) == 0 {
		return true
	}
	titleLC := strings.ToLower(title)
	for _, k := range s.keywordsLC {
		if strings.Contains(titleLC, k) {
			return true
		}
	}
	return false
}

// MatchesPrice reports whether the given price falls within the configured
// bounds. A nil price always matches, an unparseable price is not a reason
// to drop a listing.
func (s *Snapshot) MatchesPrice(price *float64) bool {
	if price == nil {
		return true
	}
	if s.MinPrice != nil && *price < *s.MinPrice {
		return false
	}
	if s.MaxPrice != nil && *price > *s.MaxPrice {
		return false
	}
	return true
}

// A Provider hands out the current settings Snapshot for a (user, source)
// pair. Implementations must be safe for concurrent use since every worker
// calls Get once per iteration.
type Provider interface {
	Get(ctx context.Context, user, source string) (Snapshot, error)
}

// StaticProvider serves fixed snapshots from memory, mainly for embedders
// and tests.
type StaticProvider struct {
	Snapshots map[string]Snapshot // keyed by user
}

func NewStaticProvider(snapshots map[string]Snapshot) *StaticProvider {
	for u, s := range snapshots {
		s.Normalize()
		snapshots[u] = s
	}
	return &StaticProvider{Snapshots: snapshots}
}

func (p *StaticProvider) Get(_ context.Context, user, _ string) (Snapshot, error) {
	s, ok := p.Snapshots[user]
	if !ok {
		return Snapshot{}, ErrNoSettings
	}
	return s, nil
}
