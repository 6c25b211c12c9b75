package cache

import (
	"strings"
)

// DefaultNamespace prefixes every cache key.
const DefaultNamespace = "crawler:product"

// Key identifies a cached payload.
type Key struct {
	// Namespace separates payloads of different APIs sharing one Redis
	Namespace string

	// ID is the product identifier
	ID string
}

// String generates the Redis key.
// Format: <namespace>:<id>
//
// Example:
//
//	crawler:product:1001
func (k Key) String() string {
	ns := strings.Trim(k.Namespace, ":")
	if ns == "" {
		ns = DefaultNamespace
	}
	return ns + ":" + strings.TrimSpace(k.ID)
}
