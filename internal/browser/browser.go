// Package browser manages a shared pool of headless browser sessions. The
// number of open tabs is bounded, sessions are released exactly once and a
// crashed browser can be recycled without restarting the process.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/chromedp/chromedp"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrSessionUnavailable is returned when no browser session could be
	// acquired before the context ran out.
	ErrSessionUnavailable = errors.New("no browser session available")
	// ErrManagerClosed is returned when the manager has been shut down.
	ErrManagerClosed = errors.New("browser manager is closed")
	// ErrSessionsInUse is returned by Recycle while sessions are open.
	ErrSessionsInUse = errors.New("browser sessions still in use")
)

// Config defines the parameters of the browser pool.
type Config struct {
	MaxSessions    int      `yaml:"max_sessions" env:"BROWSER_MAX_SESSIONS" env-default:"2"`
	UserAgents     []string `yaml:"user_agents"`
	PageLoadWaitMS int      `yaml:"page_load_wait_ms"`
	// DebugDir is where rendered page screenshots are written when debug
	// logging is on.
	DebugDir string `yaml:"debug_dir"`
}

// Manager owns the browser process allocator and hands out sessions. All
// methods are safe for concurrent use.
type Manager struct {
	cfg *Config
	sem *semaphore.Weighted

	mu          sync.Mutex
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	uaIdx       int
	closed      bool

	inUse atomic.Int32
}

func NewManager(cfg *Config) *Manager {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 2
	}
	m := &Manager{
		cfg: cfg,
		sem: semaphore.NewWeighted(int64(cfg.MaxSessions)),
	}
	m.allocCtx, m.cancelAlloc = m.newAllocator()
	return m
}

func (m *Manager) newAllocator() (context.Context, context.CancelFunc) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(1920, 1080), // init with a desktop view (sometimes pages look different on mobile, eg buttons are missing)
	)
	if ua := m.userAgent(); ua != "" {
		opts = append(opts, chromedp.UserAgent(ua))
	}
	return chromedp.NewExecAllocator(context.Background(), opts...)
}

func (m *Manager) userAgent() string {
	if len(m.cfg.UserAgents) == 0 {
		return ""
	}
	return m.cfg.UserAgents[m.uaIdx%len(m.cfg.UserAgents)]
}

// Acquire reserves a session slot and opens a new tab. It blocks until a
// slot frees up or the context runs out. The caller must call Release on
// the returned session.
func (m *Manager) Acquire(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	alloc := m.allocCtx
	m.mu.Unlock()

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	m.inUse.Add(1)

	tabCtx, cancelTab := chromedp.NewContext(alloc)
	s := &Session{
		ctx:    tabCtx,
		cancel: cancelTab,
	}
	s.release = func() {
		m.inUse.Add(-1)
		m.sem.Release(1)
	}
	return s, nil
}

// InUse returns the number of currently open sessions.
func (m *Manager) InUse() int {
	return int(m.inUse.Load())
}

// Ready probes the browser by loading an empty page. A failing probe means
// the browser process is gone and the manager should be recycled.
func (m *Manager) Ready(ctx context.Context) error {
	s, err := m.Acquire(ctx)
	if err != nil {
		return err
	}
	defer s.Release()
	return chromedp.Run(s.Context(), chromedp.Navigate("about:blank"))
}

// Recycle tears down the browser process and prepares a fresh allocator
// with the next configured user agent. It refuses to run while sessions
// are open.
func (m *Manager) Recycle() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}
	if m.inUse.Load() > 0 {
		return ErrSessionsInUse
	}
	m.cancelAlloc()
	m.uaIdx++
	m.allocCtx, m.cancelAlloc = m.newAllocator()
	return nil
}

// Shutdown closes the browser process. Acquire fails afterwards.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.cancelAlloc()
}

// A Session is one open browser tab. Sessions are not safe for concurrent
// use, each belongs to a single worker iteration.
type Session struct {
	ctx     context.Context
	cancel  context.CancelFunc
	release func()
	once    sync.Once
}

// Context returns the chromedp context to run actions against.
func (s *Session) Context() context.Context {
	return s.ctx
}

// Release closes the tab and frees the session slot. Calling Release more
// than once is safe, the slot is only freed the first time.
func (s *Session) Release() {
	s.once.Do(func() {
		s.cancel()
		s.release()
	})
}
