package cache

import (
	"time"
)

// Entry represents one cached product payload.
type Entry struct {
	// ID is the product identifier the payload belongs to
	ID string `json:"id"`

	// Data is the raw response body
	Data []byte `json:"data"`

	// CachedAt is when the payload was stored
	CachedAt time.Time `json:"cached_at"`

	// Expires is when the entry becomes stale
	Expires time.Time `json:"expires"`
}

// IsExpired returns true if the cache entry has expired.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 if already expired.
func (e *Entry) TTL() time.Duration {
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
