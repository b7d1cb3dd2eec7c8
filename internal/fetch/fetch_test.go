package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:      4,
		InitialBackoffMS: 1,
		MaxBackoffMS:     5,
		BackoffFactor:    2,
		NoJitter:         true,
	}
}

func TestStaticFetcherSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	f := NewStaticFetcher(&FetcherConfig{Retry: fastRetry()})
	res := f.Fetch(context.Background(), srv.URL, FetchOpts{})
	if !res.Success() {
		t.Fatalf("expected a successful fetch but got status %s: %v", res.Status, res.Err)
	}
	if res.Body != "<html><body>hello</body></html>" {
		t.Fatalf("unexpected body: %q", res.Body)
	}
	if res.Attempts != 1 {
		t.Fatalf("expected 1 attempt but got %d", res.Attempts)
	}
}

func TestStaticFetcherRetriesServerErrors(t *testing.T) {
	var mu sync.Mutex
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		n := requests
		mu.Unlock()
		if n <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewStaticFetcher(&FetcherConfig{Retry: fastRetry()})
	res := f.Fetch(context.Background(), srv.URL, FetchOpts{})
	if !res.Success() {
		t.Fatalf("expected fetch to recover from server errors but got status %s: %v", res.Status, res.Err)
	}
	if res.Attempts != 3 {
		t.Fatalf("expected 3 attempts but got %d", res.Attempts)
	}
}

func TestStaticFetcherRotatesIdentityOnBlock(t *testing.T) {
	var mu sync.Mutex
	agents := map[string]bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		agents[r.Header.Get("User-Agent")] = true
		mu.Unlock()
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	f := NewStaticFetcher(&FetcherConfig{Retry: fastRetry()})
	res := f.Fetch(context.Background(), srv.URL, FetchOpts{})
	if !res.Blocked() {
		t.Fatalf("expected a blocked result but got status %s", res.Status)
	}
	if res.Code != http.StatusForbidden {
		t.Fatalf("expected code 403 but got %d", res.Code)
	}
	var blockErr *BlockedError
	if !errors.As(res.Err, &blockErr) {
		t.Fatalf("expected a BlockedError but got %v", res.Err)
	}
	mu.Lock()
	distinct := len(agents)
	mu.Unlock()
	if distinct < 2 {
		t.Fatalf("expected the fetcher to rotate identities but only saw %d user agent(s)", distinct)
	}
}

func TestStaticFetcherRotatesIdentityOnServiceUnavailable(t *testing.T) {
	var mu sync.Mutex
	agents := map[string]bool{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		agents[r.Header.Get("User-Agent")] = true
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := NewStaticFetcher(&FetcherConfig{Retry: fastRetry()})
	res := f.Fetch(context.Background(), srv.URL, FetchOpts{})
	if !res.Blocked() {
		t.Fatalf("expected a 503 to count as a block signal but got status %s", res.Status)
	}
	mu.Lock()
	distinct := len(agents)
	mu.Unlock()
	if distinct < 2 {
		t.Fatalf("expected identity rotation on 503 but only saw %d user agent(s)", distinct)
	}
}

func TestStaticFetcherJarResetIsScopedPerHost(t *testing.T) {
	// Host B hands out a session cookie and reports whether a request
	// still carries it.
	keeper := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("session"); err == nil {
			w.Write([]byte("kept session"))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc"})
		w.Write([]byte("fresh session"))
	}))
	defer keeper.Close()

	// Host A blocks every request, driving its streak past the jar
	// reset threshold.
	blocker := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer blocker.Close()

	f := NewStaticFetcher(&FetcherConfig{Retry: fastRetry(), JarResetThreshold: 3})

	res := f.Fetch(context.Background(), keeper.URL, FetchOpts{})
	if !res.Success() || res.Body != "fresh session" {
		t.Fatalf("expected the first fetch to establish a session, got %s %q", res.Status, res.Body)
	}

	if res := f.Fetch(context.Background(), blocker.URL, FetchOpts{}); !res.Blocked() {
		t.Fatalf("expected the blocking host to return a blocked result, got %s", res.Status)
	}

	res = f.Fetch(context.Background(), keeper.URL, FetchOpts{})
	if !res.Success() {
		t.Fatalf("unexpected status %s: %v", res.Status, res.Err)
	}
	if res.Body != "kept session" {
		t.Fatalf("blocks on one host must not discard another host's cookies, got %q", res.Body)
	}
}

func TestStaticFetcherDoesNotRetryNotFound(t *testing.T) {
	var mu sync.Mutex
	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests++
		mu.Unlock()
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewStaticFetcher(&FetcherConfig{Retry: fastRetry()})
	res := f.Fetch(context.Background(), srv.URL, FetchOpts{})
	if res.Status != StatusError {
		t.Fatalf("expected an error result but got status %s", res.Status)
	}
	mu.Lock()
	n := requests
	mu.Unlock()
	if n != 1 {
		t.Fatalf("expected a single request for a 404 but got %d", n)
	}
}

func TestStaticFetcherHonorsContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := NewStaticFetcher(&FetcherConfig{Retry: fastRetry()})
	res := f.Fetch(ctx, srv.URL, FetchOpts{})
	if res.Status != StatusError {
		t.Fatalf("expected an error result for a cancelled context but got %s", res.Status)
	}
	if !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("expected context.Canceled but got %v", res.Err)
	}
}

func TestRetryConfigDefaults(t *testing.T) {
	p := RetryConfig{}.policy()
	if want := DefaultRetryPolicy().MaxAttempts; p.MaxAttempts != want {
		t.Errorf("expected default max attempts %d but got %d", want, p.MaxAttempts)
	}
	if !p.Jitter {
		t.Error("expected jitter to be enabled by default")
	}

	p = fastRetry().policy()
	if p.MaxAttempts != 4 {
		t.Errorf("expected 4 attempts but got %d", p.MaxAttempts)
	}
	if p.InitialBackoff != time.Millisecond || p.MaxBackoff != 5*time.Millisecond {
		t.Errorf("unexpected backoff bounds: %v, %v", p.InitialBackoff, p.MaxBackoff)
	}
	if p.Jitter {
		t.Error("expected no_jitter to disable jitter")
	}
}

func TestCalculateBackoffGrowsAndCaps(t *testing.T) {
	p := RetryPolicy{
		MaxAttempts:    5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     time.Second,
		BackoffFactor:  2,
		Jitter:         false,
	}
	expected := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}
	for attempt, want := range expected {
		if got := p.Backoff(attempt); got != want {
			t.Errorf("attempt %d: expected backoff %v but got %v", attempt, want, got)
		}
	}
}

func TestCalculateBackoffJitterStaysBelowBound(t *testing.T) {
	p := RetryPolicy{
		MaxAttempts:    4,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2,
		Jitter:         true,
	}
	for attempt := 0; attempt < 10; attempt++ {
		if got := p.Backoff(attempt); got < 0 || got > p.MaxBackoff {
			t.Fatalf("attempt %d: jittered backoff %v outside [0, %v]", attempt, got, p.MaxBackoff)
		}
	}
}

func TestLooksBlocked(t *testing.T) {
	cases := []struct {
		code    int
		body    string
		blocked bool
	}{
		{403, "", true},
		{429, "", true},
		{503, "", true},
		{200, "<html>please solve this CAPTCHA</html>", true},
		{200, "<html>Access Denied</html>", true},
		{200, "<html>all good</html>", false},
		{500, "", false},
	}
	for _, c := range cases {
		if got := LooksBlocked(c.code, c.body); got != c.blocked {
			t.Errorf("LooksBlocked(%d, %q): expected %t but got %t", c.code, c.body, c.blocked, got)
		}
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter("7"); got != 7*time.Second {
		t.Errorf("expected 7s but got %v", got)
	}
	if got := parseRetryAfter(""); got != 0 {
		t.Errorf("expected 0 for empty header but got %v", got)
	}
	if got := parseRetryAfter("Wed, 21 Oct 2026 07:28:00 GMT"); got != 0 {
		t.Errorf("expected 0 for date form but got %v", got)
	}
}

func TestMockFetcherScriptedOutcomes(t *testing.T) {
	f := NewMockFetcher(&FetcherConfig{
		MockPages: []MockPage{{Url: "http://example.com/search", Content: "<html></html>"}},
	})
	f.Script("http://example.com/search", blocked(429, 4, &BlockedError{Code: 429}))

	res := f.Fetch(context.Background(), "http://example.com/search", FetchOpts{})
	if !res.Blocked() {
		t.Fatalf("expected the scripted blocked result but got %s", res.Status)
	}
	res = f.Fetch(context.Background(), "http://example.com/search", FetchOpts{})
	if !res.Success() {
		t.Fatalf("expected the canned page after the script ran out but got %s", res.Status)
	}
	if f.Calls() != 2 {
		t.Fatalf("expected 2 recorded calls but got %d", f.Calls())
	}
}

func TestNewFetcher(t *testing.T) {
	f, err := NewFetcher(&FetcherConfig{Type: STATIC_FETCHER_TYPE})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := f.(*StaticFetcher); !ok {
		t.Fatalf("expected a StaticFetcher but got %T", f)
	}
	if _, err := NewFetcher(&FetcherConfig{Type: "carrier-pigeon"}); err == nil {
		t.Fatalf("expected an error for an unknown fetcher type")
	}
}
