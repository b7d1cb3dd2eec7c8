package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/adhound/adhound/internal/browser"
	"github.com/adhound/adhound/internal/extract"
	"github.com/adhound/adhound/internal/fetch"
	"github.com/adhound/adhound/internal/health"
	"github.com/adhound/adhound/internal/log"
	"github.com/adhound/adhound/internal/metrics"
	"github.com/adhound/adhound/internal/sources"
)

// worker runs the polling loop for one (user, source) pair.
type worker struct {
	e        *Engine
	user     string
	source   string
	profile  *sources.Profile
	pipeline *extract.Pipeline
	fetcher  fetch.Fetcher

	cancel   context.CancelFunc
	done     chan struct{}
	running  atomic.Bool
	interval time.Duration
}

func (w *worker) run(ctx context.Context) {
	logger := log.LoggerFromContext(ctx)
	defer close(w.done)
	defer w.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			incident := uuid.NewString()
			logger.Error(fmt.Sprintf("worker panicked: %v", r), slog.String("incident", incident))
			w.e.health.Record(w.user, w.source, health.KindPanic, fmt.Sprintf("panic %s: %v", incident, r))
		}
	}()

	logger.Info("worker started")
	for ctx.Err() == nil {
		ok, fatal := w.iteration(ctx)
		if fatal {
			logger.Info("worker stopped, restart to resume polling")
			return
		}
		if ctx.Err() != nil {
			break
		}
		if !ok {
			if err := w.e.sleep(ctx, w.e.cooldown); err != nil {
				break
			}
			continue
		}
		if err := w.e.sleep(ctx, jitter(w.interval)); err != nil {
			break
		}
	}
	logger.Info("worker stopped")
}

// iteration runs one reload, fetch, parse, emit cycle. ok reports
// whether the cycle counts as successful, fatal whether the error
// budget is exhausted and the loop must exit.
func (w *worker) iteration(ctx context.Context) (ok, fatal bool) {
	logger := log.LoggerFromContext(ctx)
	start := time.Now()
	emitted := 0
	defer func() {
		w.e.history.Record(metrics.Outcome{
			Source:    w.source,
			Timestamp: start,
			Duration:  time.Since(start),
			Listings:  emitted,
			Success:   ok,
		})
		if w.e.collector != nil {
			w.e.collector.RecordRun(w.source, ok, time.Since(start))
		}
	}()

	// Settings are re-read every iteration so live edits apply without
	// a restart.
	snap, err := w.e.settings.Get(ctx, w.user, w.source)
	if err != nil {
		return false, w.fail(ctx, health.KindSettings, err)
	}
	w.interval = snap.Interval()

	searchURL := w.profile.BuildSearchURL(snap)
	fetchCtx, cancelFetch := context.WithTimeout(ctx, w.e.fetchTimeout)
	res := w.fetcher.Fetch(fetchCtx, searchURL, fetch.FetchOpts{
		Interactions: w.profile.Interactions,
		WaitSelector: w.profile.WaitSelector,
	})
	cancelFetch()
	if w.e.collector != nil && w.e.browser != nil {
		w.e.collector.SetSessionsInUse(w.e.browser.InUse())
	}
	if !res.Success() {
		kind := health.KindFetch
		switch {
		case res.Blocked():
			kind = health.KindBlocked
		case errors.Is(res.Err, browser.ErrSessionUnavailable):
			kind = health.KindSession
		}
		err := res.Err
		if err == nil {
			err = fmt.Errorf("fetch failed with status code %d", res.Code)
		}
		return false, w.fail(ctx, kind, err)
	}

	keep := func(title string, price *float64) bool {
		return snap.MatchesTitle(title) && snap.MatchesPrice(price)
	}
	parseCtx, cancelParse := context.WithTimeout(ctx, w.e.parseTimeout)
	out, err := w.pipeline.Run(parseCtx, res.Body, keep)
	cancelParse()
	if err != nil {
		// An empty result page is legitimate, only a broken document
		// counts against the error budget.
		if errors.Is(err, extract.ErrNoStrategy) {
			logger.Warn("no extraction strategy yielded candidates")
			return true, false
		}
		return false, w.fail(ctx, health.KindParse, err)
	}

	for _, listing := range out.Listings {
		seen, err := w.e.dedup.Seen(ctx, w.source, listing.Link)
		if err != nil {
			logger.Warn(fmt.Sprintf("fingerprint store unavailable, suppressing %s: %v", listing.Link, err))
			continue
		}
		if seen {
			continue
		}
		if w.e.reposts != nil && w.e.reposts.LikelyRepost(w.source, listing.Title) {
			logger.Info("listing resembles a recently seen title", slog.String("title", listing.Title))
		}
		if err := w.e.notifier.Notify(ctx, w.user, listing); err != nil {
			logger.Error(fmt.Sprintf("error while delivering listing %s: %v", listing.Link, err))
		}
		emitted++
	}
	if w.e.collector != nil {
		w.e.collector.RecordListings(w.source, emitted)
	}
	logger.Debug(fmt.Sprintf("iteration done, %d new listings out of %d candidates", emitted, len(out.Listings)),
		slog.String("strategy", string(out.Strategy)), slog.Int("skipped", out.Skipped))
	return true, false
}

// fail records the error and reports whether it opened the circuit.
func (w *worker) fail(ctx context.Context, kind health.Kind, err error) bool {
	logger := log.LoggerFromContext(ctx)
	opened := w.e.health.Record(w.user, w.source, kind, err.Error())
	if opened {
		if w.e.collector != nil {
			w.e.collector.SetCircuitOpen(w.user, w.source, true)
		}
		logger.Error("error budget exhausted", slog.String("kind", string(kind)), slog.String("error", err.Error()))
		return true
	}
	logger.Warn(fmt.Sprintf("iteration failed: %v", err), slog.String("kind", string(kind)))
	return false
}

// jitter spreads the poll interval by +-10% so workers with the same
// interval never synchronize against one target.
func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.9 + 0.2*rand.Float64()))
}
