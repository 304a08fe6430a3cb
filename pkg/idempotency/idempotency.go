package idempotency

import (
	"net/http"
	"strings"
	"sync"
)

const Header = "Idempotency-Key"

func Key(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(Header))
}

// Registry remembers which order each idempotency key produced, so a retried
// place-order request replays the original result instead of failing on the
// duplicate id. Per-process state; a multi-replica deployment would move this
// into the storage backend.
type Registry struct {
	mu   sync.Mutex
	seen map[string]string
}

func NewRegistry() *Registry {
	return &Registry{seen: make(map[string]string)}
}

// Lookup returns the order id recorded for key, if any.
func (r *Registry) Lookup(key string) (string, bool) {
	if key == "" {
		return "", false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.seen[key]
	return id, ok
}

// Remember records the order id produced under key. No-op for an empty key.
func (r *Registry) Remember(key, orderID string) {
	if key == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen[key] = orderID
}

// Forget drops key, so the next request carrying it is treated as new.
// Used when the order a key points at no longer exists.
func (r *Registry) Forget(key string) {
	if key == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.seen, key)
}
