package dedup

import (
	"strings"
	"sync"
	"time"

	"github.com/agnivade/levenshtein"
)

// RepostDetector flags listings whose title is nearly identical to one
// seen recently under a different link, the usual shape of a deleted and
// re-posted ad. Purely advisory and disabled unless wired in.
type RepostDetector struct {
	window      time.Duration
	maxDistance int
	now         func() time.Time

	mu     sync.Mutex
	recent map[string][]recentTitle // keyed by source
}

type recentTitle struct {
	title  string
	seenAt time.Time
}

func NewRepostDetector(window time.Duration, maxDistance int) *RepostDetector {
	if window <= 0 {
		window = 6 * time.Hour
	}
	if maxDistance <= 0 {
		maxDistance = 3
	}
	return &RepostDetector{
		window:      window,
		maxDistance: maxDistance,
		now:         time.Now,
		recent:      map[string][]recentTitle{},
	}
}

// LikelyRepost reports whether the title is within edit distance of a
// recently recorded one, then records it.
func (d *RepostDetector) LikelyRepost(source, title string) bool {
	normalized := normalizeTitle(title)
	if normalized == "" {
		return false
	}
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	kept := d.recent[source][:0]
	repost := false
	for _, rt := range d.recent[source] {
		if now.Sub(rt.seenAt) > d.window {
			continue
		}
		kept = append(kept, rt)
		if !repost && rt.title != normalized && levenshtein.ComputeDistance(rt.title, normalized) <= d.maxDistance {
			repost = true
		}
	}
	d.recent[source] = append(kept, recentTitle{title: normalized, seenAt: now})
	return repost
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}
