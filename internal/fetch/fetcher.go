// Package fetch provides the resilient page fetchers. All fetchers report
// their outcome through a single Result envelope so that callers never have
// to distinguish transport errors from block pages themselves.
package fetch

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/adhound/adhound/internal/types"
)

// A Fetcher retrieves the content of a web page. Fetch never panics and
// never surfaces raw transport errors, every outcome is classified into
// the returned Result.
type Fetcher interface {
	Fetch(ctx context.Context, urlStr string, opts FetchOpts) *Result
	// Cancel releases all resources the fetcher holds, eg. a browser.
	Cancel()
}

// FetchOpts allows to pass per-call options to a fetcher.
type FetchOpts struct {
	Interactions []types.Interaction
	// WaitSelector is a css selector the browser fetcher waits for before
	// reading the dom. Ignored by the static fetcher.
	WaitSelector string
}

// MockPage is a canned page served by the mock fetcher.
type MockPage struct {
	Url     string `yaml:"url"`
	Content string `yaml:"content"`
}

// FetcherConfig defines the necessary parameters to make a new fetcher.
type FetcherConfig struct {
	Type       FetcherType `yaml:"type" env:"FETCHER_TYPE"`
	UserAgents []string    `yaml:"user_agents"`
	Retry      RetryConfig `yaml:"retry"`
	// JarResetThreshold is the number of consecutive blocked responses
	// after which the cookie jar is discarded.
	JarResetThreshold int        `yaml:"jar_reset_threshold"`
	MockPages         []MockPage `yaml:"mock_pages,omitempty"`
}

// FetcherType encapsulates the type of a fetcher
// See below constants for possible types
type FetcherType string

const (
	STATIC_FETCHER_TYPE FetcherType = "static"
	MOCK_FETCHER_TYPE   FetcherType = "mock"
)

// NewFetcher returns a new fetcher depending on the fetcher type
func NewFetcher(fc *FetcherConfig) (Fetcher, error) {
	switch fc.Type {
	case STATIC_FETCHER_TYPE, "":
		return NewStaticFetcher(fc), nil
	case MOCK_FETCHER_TYPE:
		return NewMockFetcher(fc), nil
	default:
		return nil, fmt.Errorf("fetcher of type '%s' not implemented", fc.Type)
	}
}

// RetryConfig is the yaml facing retry tuning. Waits are given in
// milliseconds, unset values fall back to the default policy.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts"`
	InitialBackoffMS int     `yaml:"initial_backoff_ms"`
	MaxBackoffMS     int     `yaml:"max_backoff_ms"`
	BackoffFactor    float64 `yaml:"backoff_factor"`
	NoJitter         bool    `yaml:"no_jitter"`
}

func (rc RetryConfig) policy() RetryPolicy {
	p := DefaultRetryPolicy()
	if rc.MaxAttempts > 0 {
		p.MaxAttempts = rc.MaxAttempts
	}
	if rc.InitialBackoffMS > 0 {
		p.InitialBackoff = time.Duration(rc.InitialBackoffMS) * time.Millisecond
	}
	if rc.MaxBackoffMS > 0 {
		p.MaxBackoff = time.Duration(rc.MaxBackoffMS) * time.Millisecond
	}
	if rc.BackoffFactor > 1 {
		p.BackoffFactor = rc.BackoffFactor
	}
	p.Jitter = !rc.NoJitter
	return p
}

// RetryPolicy controls how often and how patiently a fetcher retries a
// failed request.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	Jitter         bool
}

// DefaultRetryPolicy returns the retry policy used when the config does not
// set one.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    4,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2,
		Jitter:         true,
	}
}

// Backoff returns the wait before the given retry attempt, starting at 0.
// With Jitter enabled the wait is drawn uniformly from [0, backoff) so
// that workers hitting the same host do not retry in lockstep.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	backoff := time.Duration(float64(p.InitialBackoff) * math.Pow(p.BackoffFactor, float64(attempt)))
	if backoff > p.MaxBackoff || backoff <= 0 {
		backoff = p.MaxBackoff
	}
	if p.Jitter {
		backoff = time.Duration(rand.Float64() * float64(backoff))
	}
	return backoff
}
