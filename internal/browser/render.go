package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/adhound/adhound/internal/fetch"
	"github.com/adhound/adhound/internal/log"
	"github.com/adhound/adhound/internal/types"
	"github.com/adhound/adhound/internal/utils"
)

// RenderFetcher loads pages through a browser session so that js rendered
// content is visible. It implements the fetch.Fetcher interface. Every
// attempt runs in a fresh tab, a blocked attempt recycles the whole
// browser to shed its fingerprint.
type RenderFetcher struct {
	manager *Manager
	policy  fetch.RetryPolicy
}

func NewRenderFetcher(m *Manager) *RenderFetcher {
	return &RenderFetcher{
		manager: m,
		policy: fetch.RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: 2 * time.Second,
			MaxBackoff:     30 * time.Second,
			BackoffFactor:  2,
			Jitter:         true,
		},
	}
}

func (r *RenderFetcher) Fetch(ctx context.Context, urlStr string, opts fetch.FetchOpts) *fetch.Result {
	logger := log.LoggerFromContext(ctx).With(slog.String("fetcher", "browser"), slog.String("url", urlStr))
	attempts := 0

	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return &fetch.Result{Status: fetch.StatusError, Attempts: attempts, Err: err}
		}

		body, err := r.render(ctx, urlStr, opts, logger)
		attempts++

		switch {
		case err != nil:
			if ctx.Err() != nil {
				return &fetch.Result{Status: fetch.StatusError, Attempts: attempts, Err: ctx.Err()}
			}
			logger.Debug("render attempt failed", slog.String("err", err.Error()))
			if attempt == r.policy.MaxAttempts-1 {
				return &fetch.Result{Status: fetch.StatusError, Attempts: attempts, Err: &fetch.TransientError{Err: err}}
			}
		case fetch.LooksBlocked(200, body):
			logger.Warn("render blocked, recycling browser")
			if rerr := r.manager.Recycle(); rerr != nil {
				logger.Debug("browser recycle skipped", slog.String("err", rerr.Error()))
			}
			if attempt == r.policy.MaxAttempts-1 {
				return &fetch.Result{Status: fetch.StatusBlocked, Code: 200, Attempts: attempts, Err: &fetch.BlockedError{Code: 200}}
			}
		default:
			return &fetch.Result{Status: fetch.StatusSuccess, Body: body, Code: 200, Attempts: attempts}
		}

		if err := sleepContext(ctx, r.policy.Backoff(attempt)); err != nil {
			return &fetch.Result{Status: fetch.StatusError, Attempts: attempts, Err: err}
		}
	}
	return &fetch.Result{Status: fetch.StatusError, Attempts: attempts, Err: fmt.Errorf("render attempts exhausted")}
}

func (r *RenderFetcher) render(ctx context.Context, urlStr string, opts fetch.FetchOpts, logger *slog.Logger) (string, error) {
	session, err := r.manager.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer session.Release()

	// close the tab when the caller gives up so chromedp.Run returns
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			session.Release()
		case <-done:
		}
	}()

	sleepTime := time.Duration(r.manager.cfg.PageLoadWaitMS) * time.Millisecond
	if sleepTime == 0 {
		sleepTime = 2 * time.Second
	}

	actions := []chromedp.Action{
		chromedp.Navigate(urlStr),
		chromedp.Sleep(sleepTime),
	}
	logger.Debug(fmt.Sprintf("appended chrome actions: Navigate, Sleep(%v)", sleepTime))

	for j, ia := range opts.Interactions {
		logger.Debug(fmt.Sprintf("processing interaction nr %d, type %s", j, ia.Type))
		delay := 500 * time.Millisecond // default is .5 seconds
		if ia.Delay > 0 {
			delay = time.Duration(ia.Delay) * time.Millisecond
		}
		switch ia.Type {
		case types.InteractionTypeClick:
			count := 1 // default is 1
			if ia.Count > 0 {
				count = ia.Count
			}
			for range count {
				// we only click the button if it exists
				actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
					var nodes []*cdp.Node
					if err := chromedp.Nodes(ia.Selector, &nodes, chromedp.AtLeast(0)).Do(ctx); err != nil {
						return err
					}
					if len(nodes) == 0 {
						return nil
					} // nothing to do
					logger.Debug(fmt.Sprintf("clicking on node with selector: %s", ia.Selector))
					return chromedp.MouseClickNode(nodes[0]).Do(ctx)
				}))
				actions = append(actions, chromedp.Sleep(delay))
			}
		case types.InteractionTypeScroll:
			// scroll to the bottom of the page
			actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
				logger.Debug("scrolling down the page")
				return chromedp.KeyEvent(kb.End).Do(ctx)
			}))
			actions = append(actions, chromedp.Sleep(delay))
		default:
			logger.Warn(fmt.Sprintf("unknown interaction type %s", ia.Type))
		}
	}

	if opts.WaitSelector != "" {
		actions = append(actions, chromedp.WaitReady(opts.WaitSelector, chromedp.ByQuery))
	}

	var body string
	actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
		node, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		body, err = dom.GetOuterHTML().WithNodeID(node.NodeID).Do(ctx)
		return err
	}))

	if log.Debug {
		// ensure debug directory exists
		if r.manager.cfg.DebugDir != "" {
			if err := os.MkdirAll(r.manager.cfg.DebugDir, os.ModePerm); err != nil {
				return "", fmt.Errorf("failed to create debug directory: %v", err)
			}
		}

		host := ""
		if u, err := url.Parse(urlStr); err == nil {
			host = u.Host
		}
		name, err := utils.RandomString(host)
		if err != nil {
			return "", err
		}
		filename := path.Join(r.manager.cfg.DebugDir, fmt.Sprintf("%s.png", name))
		var buf []byte
		actions = append(actions, chromedp.CaptureScreenshot(&buf))
		actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
			logger.Debug(fmt.Sprintf("writing screenshot to file %s", filename))
			return os.WriteFile(filename, buf, 0644)
		}))
		logger.Debug("appended chrome actions: CaptureScreenshot, ActionFunc (save screenshot)")
	}

	if err := chromedp.Run(session.Context(), actions...); err != nil {
		return "", err
	}
	return body, nil
}

func (r *RenderFetcher) Cancel() {
	r.manager.Shutdown()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
