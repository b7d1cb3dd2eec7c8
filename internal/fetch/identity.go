package fetch

import "sync"

// An Identity is the set of request headers a fetcher presents to the
// remote side. Rotating to a fresh identity is the first response to a
// block signal.
type Identity struct {
	UserAgent      string
	AcceptLanguage string
}

var defaultIdentities = []Identity{
	{
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		AcceptLanguage: "en-US,en;q=0.9",
	},
	{
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
		AcceptLanguage: "en-US,en;q=0.8",
	},
	{
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
		AcceptLanguage: "en-US,en;q=0.5",
	},
	{
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
		AcceptLanguage: "en-US,en;q=0.9",
	},
}

// identityPool hands out identities round robin. Rotation only moves
// forward, a blocked identity is not reused until the pool wraps around.
type identityPool struct {
	mu  sync.Mutex
	ids []Identity
	idx int
}

func newIdentityPool(userAgents []string) *identityPool {
	if len(userAgents) == 0 {
		return &identityPool{ids: defaultIdentities}
	}
	ids := make([]Identity, 0, len(userAgents))
	for _, ua := range userAgents {
		ids = append(ids, Identity{UserAgent: ua, AcceptLanguage: "en-US,en;q=0.9"})
	}
	return &identityPool{ids: ids}
}

func (p *identityPool) current() Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ids[p.idx]
}

func (p *identityPool) rotate() Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idx = (p.idx + 1) % len(p.ids)
	return p.ids[p.idx]
}
