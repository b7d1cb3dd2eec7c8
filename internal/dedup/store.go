// Package dedup suppresses re-emission of listings that were already seen.
// The cache is advisory: losing it means a duplicate notification, never a
// lost one.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// A Store remembers listing fingerprints.
type Store interface {
	// Seen records the link and reports whether it had been seen before.
	Seen(ctx context.Context, source, link string) (bool, error)
	// Forget drops a single fingerprint.
	Forget(ctx context.Context, source, link string) error
}

// Fingerprint returns the cache key for a normalized link.
func Fingerprint(link string) string {
	h := sha256.Sum256([]byte(link))
	return hex.EncodeToString(h[:16])
}
