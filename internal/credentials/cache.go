// Package credentials implements the credential manager (C4): the access
// token cache and the signed-request credential cache, each keyed by
// region, with coalesced concurrent refresh (spec.md §4.1, §5, §8 property 2).
//
// DESIGN: the TTL-entry-with-expiry shape is grounded on the teacher's
// internal/store/store.go MemoryStore, generalized from string values to the
// two CredentialArtifacts sub-records and re-keyed by region instead of an
// arbitrary shadow-context id. Unlike the teacher's store this cache has no
// background cleanup goroutine: entries are small, bounded by the region
// count, and overwritten in place on refresh rather than expired out.
package credentials

import (
	"sync"
	"time"
)

// AccessToken is the spec.md §3 accessToken/accessTokenExpiresAt pair.
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
}

// Signed is the spec.md §3 signed{keyId,secret,session?,expiresAt} triple.
// Session is empty and ExpiresAt is the zero value when the static key pair
// is used directly without federation (treated as non-expiring).
type Signed struct {
	KeyID     string
	Secret    string
	Session   string
	ExpiresAt time.Time
}

// Artifacts is the spec.md §3 CredentialArtifacts record.
type Artifacts struct {
	AccessToken AccessToken
	Signed      Signed
}

// ValidWithMargin reports whether the access token is usable without
// refresh: present and not within margin of expiry (spec.md §3 invariant).
func (a AccessToken) ValidWithMargin(now time.Time, margin time.Duration) bool {
	return a.Token != "" && now.Add(margin).Before(a.ExpiresAt)
}

// ValidWithMargin reports the same for signed credentials. A zero ExpiresAt
// means "non-expiring" (static pair, spec.md §4.1) and is always valid once
// KeyID is populated.
func (s Signed) ValidWithMargin(now time.Time, margin time.Duration) bool {
	if s.KeyID == "" {
		return false
	}
	if s.ExpiresAt.IsZero() {
		return true
	}
	return now.Add(margin).Before(s.ExpiresAt)
}

// cache is a small mutex-protected map keyed by region, one per credential
// kind (access token / signed). Reads and writes are synchronized by one
// mutex per kind, shared by every region; refreshes are serialized per
// (region, kind) by the flightGroup keys in manager.go.
type cache[T any] struct {
	mu      sync.RWMutex
	entries map[string]T
}

func newCache[T any]() *cache[T] {
	return &cache[T]{entries: make(map[string]T)}
}

func (c *cache[T]) get(region string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[region]
	return v, ok
}

func (c *cache[T]) set(region string, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[region] = v
}

func (c *cache[T]) delete(region string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, region)
}
