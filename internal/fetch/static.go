package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/adhound/adhound/internal/log"
)

// The StaticFetcher fetches static page content over plain HTTP. It retries
// transient failures with exponential backoff, rotates its identity when it
// runs into block signals and resets its cookie jar when blocks persist.
// Cookies and the block streak are kept per host, so one marketplace
// blocking never discards another marketplace's session.
type StaticFetcher struct {
	*FetcherConfig
	policy     RetryPolicy
	identities *identityPool

	mu       sync.Mutex
	sessions map[string]*hostSession
}

// hostSession is the per-host HTTP state: the client with its cookie jar
// and the count of consecutive blocked responses from that host.
type hostSession struct {
	mu          sync.Mutex
	client      *http.Client
	blockStreak int
}

func NewStaticFetcher(fc *FetcherConfig) *StaticFetcher {
	return &StaticFetcher{
		FetcherConfig: fc,
		policy:        fc.Retry.policy(),
		identities:    newIdentityPool(fc.UserAgents),
		sessions:      map[string]*hostSession{},
	}
}

func newJar() *cookiejar.Jar {
	jar, _ := cookiejar.New(nil)
	return jar
}

// session returns the host's session, creating it on first use.
func (s *StaticFetcher) session(urlStr string) *hostSession {
	host := ""
	if u, err := url.Parse(urlStr); err == nil {
		host = u.Host
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	hs, ok := s.sessions[host]
	if !ok {
		hs = &hostSession{
			client: &http.Client{
				Jar:     newJar(),
				Timeout: 30 * time.Second,
			},
		}
		s.sessions[host] = hs
	}
	return hs
}

func (s *StaticFetcher) Fetch(ctx context.Context, urlStr string, opts FetchOpts) *Result {
	logger := log.LoggerFromContext(ctx)
	session := s.session(urlStr)
	lastCode := 0
	attempts := 0

	for attempt := 0; attempt < s.policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return failure(lastCode, attempts, err)
		}

		id := s.identities.current()
		logger.Debug("fetching page",
			slog.String("fetcher", "static"),
			slog.String("url", urlStr),
			slog.String("user-agent", id.UserAgent),
			slog.Int("attempt", attempt+1))

		body, code, retryAfter, err := s.doRequest(ctx, session, urlStr, id)
		attempts++
		if code != 0 {
			lastCode = code
		}

		switch {
		case err != nil:
			// network level failure, retry with backoff
			logger.Debug("fetch attempt failed", slog.String("url", urlStr), slog.String("err", err.Error()))
			if attempt == s.policy.MaxAttempts-1 {
				return failure(lastCode, attempts, &TransientError{Code: lastCode, Err: err})
			}
			if err := s.wait(ctx, s.policy.Backoff(attempt), 0); err != nil {
				return failure(lastCode, attempts, err)
			}

		case LooksBlocked(code, body):
			blockErr := &BlockedError{Code: code}
			streak := session.recordBlock()
			logger.Warn("fetch blocked, rotating identity",
				slog.String("url", urlStr),
				slog.Int("code", code),
				slog.Int("streak", streak))
			s.identities.rotate()
			if s.jarResetDue(streak) {
				logger.Info("resetting cookie jar after repeated blocks", slog.String("url", urlStr))
				session.resetJar()
			}
			if attempt == s.policy.MaxAttempts-1 {
				return blocked(code, attempts, blockErr)
			}
			if err := s.wait(ctx, s.policy.Backoff(attempt), retryAfter); err != nil {
				return failure(lastCode, attempts, err)
			}

		case code == http.StatusOK:
			session.resetBlockStreak()
			return success(body, code, attempts)

		case retryable(code):
			logger.Debug("fetch attempt failed", slog.String("url", urlStr), slog.Int("code", code))
			if attempt == s.policy.MaxAttempts-1 {
				return failure(lastCode, attempts, &TransientError{Code: code})
			}
			if err := s.wait(ctx, s.policy.Backoff(attempt), 0); err != nil {
				return failure(lastCode, attempts, err)
			}

		default:
			// a 404 or similar will not get better by retrying
			return failure(code, attempts, fmt.Errorf("status code error: %d", code))
		}
	}
	return failure(lastCode, attempts, &TransientError{Code: lastCode})
}

func (s *StaticFetcher) doRequest(ctx context.Context, session *hostSession, urlStr string, id Identity) (string, int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return "", 0, 0, err
	}
	req.Header.Set("User-Agent", id.UserAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Language", id.AcceptLanguage)

	session.mu.Lock()
	client := session.client
	session.mu.Unlock()

	res, err := client.Do(req)
	if err != nil {
		return "", 0, 0, err
	}
	defer res.Body.Close()

	retryAfter := parseRetryAfter(res.Header.Get("Retry-After"))
	bytes, err := io.ReadAll(res.Body)
	if err != nil {
		return "", res.StatusCode, retryAfter, err
	}
	return string(bytes), res.StatusCode, retryAfter, nil
}

// wait sleeps for the backoff duration, stretched to the server's
// Retry-After wish when one was given, and returns early when the context
// is cancelled.
func (s *StaticFetcher) wait(ctx context.Context, backoff, min time.Duration) error {
	if min > backoff {
		backoff = min
	}
	if backoff > s.policy.MaxBackoff {
		backoff = s.policy.MaxBackoff
	}
	if backoff <= 0 {
		return nil
	}
	t := time.NewTimer(backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (h *hostSession) recordBlock() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.blockStreak++
	return h.blockStreak
}

func (h *hostSession) resetBlockStreak() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.blockStreak = 0
}

func (s *StaticFetcher) jarResetDue(streak int) bool {
	threshold := s.JarResetThreshold
	if threshold <= 0 {
		threshold = 3
	}
	return streak%threshold == 0
}

func (h *hostSession) resetJar() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.client = &http.Client{
		Jar:     newJar(),
		Timeout: h.client.Timeout,
	}
}

func (s *StaticFetcher) Cancel() {}

// parseRetryAfter converts a Retry-After header value into a duration. Only
// the seconds form is supported, dates are ignored.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
