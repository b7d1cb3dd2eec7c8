// Package engine supervises polling workers. Each worker owns one
// (user, source) pair and runs its own loop of reload settings, fetch,
// parse, dedup and notify. The engine only starts and stops workers
// and answers health queries; all iteration state lives in the worker.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/adhound/adhound/internal/browser"
	"github.com/adhound/adhound/internal/dedup"
	"github.com/adhound/adhound/internal/fetch"
	"github.com/adhound/adhound/internal/health"
	"github.com/adhound/adhound/internal/log"
	"github.com/adhound/adhound/internal/metrics"
	"github.com/adhound/adhound/internal/output"
	"github.com/adhound/adhound/internal/settings"
	"github.com/adhound/adhound/internal/sources"
)

const (
	// DefaultCooldown is the pause after a failed iteration before the
	// worker retries.
	DefaultCooldown = 30 * time.Second
	// DefaultFetchTimeout bounds one fetch call including its internal
	// retries.
	DefaultFetchTimeout = 2 * time.Minute
	// DefaultParseTimeout bounds one parsing pipeline run.
	DefaultParseTimeout = 15 * time.Second
)

// Options wires the engine's collaborators. Settings and Sources are
// required, everything else has a usable default.
type Options struct {
	Settings  settings.Provider
	Sources   *sources.Registry
	Fetcher   fetch.Fetcher
	Browser   *browser.Manager
	Dedup     dedup.Store
	Notifier  output.Notifier
	Health    *health.Tracker
	History   *metrics.History
	Collector *metrics.Collector
	Reposts   *dedup.RepostDetector

	Cooldown     time.Duration
	FetchTimeout time.Duration
	ParseTimeout time.Duration
}

// Engine owns the worker registry.
type Engine struct {
	settings  settings.Provider
	sources   *sources.Registry
	fetcher   fetch.Fetcher
	browser   *browser.Manager
	dedup     dedup.Store
	notifier  output.Notifier
	health    *health.Tracker
	history   *metrics.History
	collector *metrics.Collector
	reposts   *dedup.RepostDetector

	cooldown     time.Duration
	fetchTimeout time.Duration
	parseTimeout time.Duration
	sleep        func(ctx context.Context, d time.Duration) error

	mu      sync.Mutex
	workers map[string]*worker
}

// New validates the options and builds an engine. No worker runs until
// Start is called.
func New(opts Options) (*Engine, error) {
	if opts.Settings == nil {
		return nil, errors.New("engine needs a settings provider")
	}
	if opts.Sources == nil {
		return nil, errors.New("engine needs a source registry")
	}
	if opts.Fetcher == nil {
		f, err := fetch.NewFetcher(&fetch.FetcherConfig{})
		if err != nil {
			return nil, err
		}
		opts.Fetcher = f
	}
	if opts.Dedup == nil {
		opts.Dedup = dedup.NewMemoryStore(0, 0)
	}
	if opts.Notifier == nil {
		opts.Notifier = output.NewStdoutNotifier(&output.NotifierConfig{})
	}
	if opts.Health == nil {
		opts.Health = health.NewTracker(0, 0)
	}
	if opts.History == nil {
		opts.History = metrics.NewHistory(0)
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.ParseTimeout <= 0 {
		opts.ParseTimeout = DefaultParseTimeout
	}
	return &Engine{
		settings:     opts.Settings,
		sources:      opts.Sources,
		fetcher:      opts.Fetcher,
		browser:      opts.Browser,
		dedup:        opts.Dedup,
		notifier:     opts.Notifier,
		health:       opts.Health,
		history:      opts.History,
		collector:    opts.Collector,
		reposts:      opts.Reposts,
		cooldown:     opts.Cooldown,
		fetchTimeout: opts.FetchTimeout,
		parseTimeout: opts.ParseTimeout,
		sleep:        sleepCtx,
		workers:      map[string]*worker{},
	}, nil
}

func workerKey(user, source string) string {
	return user + "|" + source
}

// Start spawns a worker for the pair and returns immediately. Starting
// a pair whose worker is already running is a no-op. Restarting a
// stopped pair clears its error window, which is the only way an open
// circuit closes short of records aging out.
func (e *Engine) Start(user, source string) error {
	if user == "" {
		return errors.New("user must not be empty")
	}
	profile, err := e.sources.Get(source)
	if err != nil {
		return err
	}
	if profile.RenderJS && e.browser == nil {
		return fmt.Errorf("source %s needs javascript rendering but no browser manager is configured", source)
	}
	pipeline, err := profile.Pipeline()
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	key := workerKey(user, source)
	if w, ok := e.workers[key]; ok {
		if w.running.Load() {
			return nil
		}
		// The previous loop ended, wait for its goroutine to finish
		// before replacing it.
		<-w.done
	}

	e.health.Reset(user, source)
	if e.collector != nil {
		e.collector.SetCircuitOpen(user, source, false)
	}

	var fetcher fetch.Fetcher = e.fetcher
	if profile.RenderJS {
		fetcher = browser.NewRenderFetcher(e.browser)
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger := slog.With(slog.String("user", user), slog.String("source", source))
	ctx = log.ContextWithLogger(ctx, logger)

	w := &worker{
		e:        e,
		user:     user,
		source:   source,
		profile:  profile,
		pipeline: pipeline,
		fetcher:  fetcher,
		cancel:   cancel,
		done:     make(chan struct{}),
		interval: settings.DefaultInterval,
	}
	w.running.Store(true)
	e.workers[key] = w
	go w.run(ctx)
	return nil
}

// Stop flips the pair's stop flag. The loop observes it at its next
// suspension point and exits on its own; Stop does not wait for that.
func (e *Engine) Stop(user, source string) error {
	e.mu.Lock()
	w, ok := e.workers[workerKey(user, source)]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("no worker for user %s on source %s", user, source)
	}
	w.cancel()
	return nil
}

// Shutdown stops every worker and waits for their loops to exit or the
// context to expire, whichever is first.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	ws := make([]*worker, 0, len(e.workers))
	for _, w := range e.workers {
		w.cancel()
		ws = append(ws, w)
	}
	e.mu.Unlock()
	for _, w := range ws {
		select {
		case <-w.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if e.browser != nil {
		e.browser.Shutdown()
	}
	return nil
}

// SourceHealth is the per-source view returned by Health.
type SourceHealth struct {
	Status       health.Status   `json:"status"`
	Running      bool            `json:"running"`
	ErrorCount   int             `json:"error_count"`
	LastError    string          `json:"last_error,omitempty"`
	RecentErrors []health.Record `json:"recent_errors,omitempty"`
}

// Health reports the state of every worker the user has, running or
// stopped.
func (e *Engine) Health(user string) map[string]SourceHealth {
	e.mu.Lock()
	type pair struct {
		source  string
		running bool
	}
	pairs := []pair{}
	for _, w := range e.workers {
		if w.user == user {
			pairs = append(pairs, pair{w.source, w.running.Load()})
		}
	}
	e.mu.Unlock()

	out := make(map[string]SourceHealth, len(pairs))
	for _, p := range pairs {
		sh := SourceHealth{
			Status:     e.health.StatusFor(user, p.source, p.running),
			Running:    p.running,
			ErrorCount: e.health.Count(user, p.source),
		}
		if last, ok := e.health.LastError(user, p.source); ok {
			sh.LastError = last.Message
		}
		sh.RecentErrors = e.health.Recent(user, p.source, 5)
		out[p.source] = sh
	}
	return out
}

// WorkerInfo identifies one registered worker.
type WorkerInfo struct {
	User    string
	Source  string
	Running bool
}

// Workers lists all registered workers sorted by user then source.
func (e *Engine) Workers() []WorkerInfo {
	e.mu.Lock()
	out := make([]WorkerInfo, 0, len(e.workers))
	for _, w := range e.workers {
		out = append(out, WorkerInfo{User: w.user, Source: w.source, Running: w.running.Load()})
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].User != out[j].User {
			return out[i].User < out[j].User
		}
		return out[i].Source < out[j].Source
	})
	return out
}

// Summary exposes the rolling run summary for a source.
func (e *Engine) Summary(source string, window time.Duration) metrics.Summary {
	return e.history.Summary(source, window)
}

// Grade exposes the rolling success grade for a source.
func (e *Engine) Grade(source string, window time.Duration) metrics.Grade {
	return e.history.Grade(source, window)
}

// BrowserReady probes the rendering runtime. Without a configured
// browser manager it reports an error so health surfaces the gap
// before any worker needs a session.
func (e *Engine) BrowserReady(ctx context.Context) error {
	if e.browser == nil {
		return errors.New("no browser manager configured")
	}
	return e.browser.Ready(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
