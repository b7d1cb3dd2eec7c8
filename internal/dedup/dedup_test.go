package dedup

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryStoreSeen(t *testing.T) {
	s := NewMemoryStore(10, time.Hour)
	ctx := context.Background()

	seen, err := s.Seen(ctx, "craigslist", "https://example.com/item/1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen {
		t.Fatalf("expected a fresh link to be unseen")
	}
	seen, _ = s.Seen(ctx, "craigslist", "https://example.com/item/1")
	if !seen {
		t.Fatalf("expected the link to be seen the second time")
	}

	// the same link under another source is independent
	seen, _ = s.Seen(ctx, "ebay", "https://example.com/item/1")
	if seen {
		t.Fatalf("expected sources to have independent fingerprints")
	}
}

func TestMemoryStoreForget(t *testing.T) {
	s := NewMemoryStore(10, time.Hour)
	ctx := context.Background()

	s.Seen(ctx, "craigslist", "https://example.com/item/1")
	if err := s.Forget(ctx, "craigslist", "https://example.com/item/1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen, _ := s.Seen(ctx, "craigslist", "https://example.com/item/1"); seen {
		t.Fatalf("expected a forgotten link to be unseen")
	}
}

func TestMemoryStoreEvictsOldest(t *testing.T) {
	s := NewMemoryStore(2, time.Hour)
	ctx := context.Background()

	s.Seen(ctx, "craigslist", "link-1")
	s.Seen(ctx, "craigslist", "link-2")
	s.Seen(ctx, "craigslist", "link-3") // evicts link-1
	if s.Len("craigslist") != 2 {
		t.Fatalf("expected the cache to stay at 2 entries but got %d", s.Len("craigslist"))
	}
	if seen, _ := s.Seen(ctx, "craigslist", "link-1"); seen {
		t.Fatalf("expected the evicted link to be unseen again")
	}
	// link-3 should still be cached, link-1's re-add evicted link-2
	if seen, _ := s.Seen(ctx, "craigslist", "link-3"); !seen {
		t.Fatalf("expected the most recent link to still be cached")
	}
}

func TestMemoryStoreTTL(t *testing.T) {
	s := NewMemoryStore(10, time.Hour)
	current := time.Now()
	s.now = func() time.Time { return current }
	ctx := context.Background()

	s.Seen(ctx, "craigslist", "link-1")
	current = current.Add(2 * time.Hour)
	if seen, _ := s.Seen(ctx, "craigslist", "link-1"); seen {
		t.Fatalf("expected an expired fingerprint to count as unseen")
	}
	// and it is fresh again afterwards
	if seen, _ := s.Seen(ctx, "craigslist", "link-1"); !seen {
		t.Fatalf("expected the refreshed fingerprint to be seen")
	}
}

func newTestRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, ttl), mr
}

func TestRedisStoreSeen(t *testing.T) {
	s, _ := newTestRedisStore(t, time.Hour)
	ctx := context.Background()

	seen, err := s.Seen(ctx, "craigslist", "https://example.com/item/1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen {
		t.Fatalf("expected a fresh link to be unseen")
	}
	if seen, _ := s.Seen(ctx, "craigslist", "https://example.com/item/1"); !seen {
		t.Fatalf("expected the link to be seen the second time")
	}
	if seen, _ := s.Seen(ctx, "ebay", "https://example.com/item/1"); seen {
		t.Fatalf("expected sources to have independent fingerprints")
	}
}

func TestRedisStoreForgetAndTTL(t *testing.T) {
	s, mr := newTestRedisStore(t, time.Minute)
	ctx := context.Background()

	s.Seen(ctx, "craigslist", "link-1")
	if err := s.Forget(ctx, "craigslist", "link-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if seen, _ := s.Seen(ctx, "craigslist", "link-1"); seen {
		t.Fatalf("expected a forgotten link to be unseen")
	}

	mr.FastForward(2 * time.Minute)
	if seen, _ := s.Seen(ctx, "craigslist", "link-1"); seen {
		t.Fatalf("expected an expired fingerprint to count as unseen")
	}
	if seen, _ := s.Seen(ctx, "craigslist", "link-1"); !seen {
		t.Fatalf("expected the refreshed fingerprint to be seen")
	}
}

func TestRedisStoreReportsErrors(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	s := NewRedisStore(client, time.Hour)
	mr.Close()

	if _, err := s.Seen(context.Background(), "craigslist", "link-1"); err == nil {
		t.Fatal("expected an error when the store is unreachable")
	}
}

func TestRepostDetector(t *testing.T) {
	d := NewRepostDetector(time.Hour, 3)

	if d.LikelyRepost("craigslist", "Sony PS5 Disc Edition") {
		t.Fatalf("the first title cannot be a repost")
	}
	if !d.LikelyRepost("craigslist", "Sony PS5 Disc Edition!") {
		t.Fatalf("expected a near-identical title to be flagged")
	}
	if d.LikelyRepost("craigslist", "Vintage mechanical typewriter") {
		t.Fatalf("expected an unrelated title to pass")
	}
	if d.LikelyRepost("ebay", "Sony PS5 Disc Edition") {
		t.Fatalf("expected sources to be tracked independently")
	}
}

func TestRepostDetectorWindow(t *testing.T) {
	d := NewRepostDetector(time.Hour, 3)
	current := time.Now()
	d.now = func() time.Time { return current }

	d.LikelyRepost("craigslist", "Sony PS5 Disc Edition")
	current = current.Add(2 * time.Hour)
	if d.LikelyRepost("craigslist", "Sony PS5 Disc Edition!") {
		t.Fatalf("expected titles outside the window to be forgotten")
	}
}
