package dasm

import "github.com/lunixbochs/dasmcache/models"

// touch is a weak back-reference to a node the scope observed: close
// re-locates the node by identity, never by pointer, so scope lifetime
// is decoupled from node storage.
type touch struct {
	hash   models.Hash
	params models.Params
}

// Scope brackets a caller's reads. Every hit registers a touch that
// pins the node against eviction until the scope closes.
type Scope struct {
	c       *Cache
	touches []touch
}

// ScopeOpen starts a read scope. Scopes are single-goroutine; shells
// are pooled.
func (c *Cache) ScopeOpen() *Scope {
	s := c.scopePool.Get().(*Scope)
	s.c = c
	return s
}

// Close releases every touched node's pin and recycles the scope.
func (s *Scope) Close() {
	c := s.c
	for i := range s.touches {
		t := &s.touches[i]
		slot, stripe := c.slotStripe(t.hash)
		stripe.mu.RLock()
		// a missing node means it was evicted under a live touch,
		// which the evictor refuses; skipping is defensive only
		if n := slot.find(t.hash, &t.params); n != nil {
			n.scopeRefCount.Add(^uint64(0))
		}
		stripe.mu.RUnlock()
	}
	s.touches = s.touches[:0]
	s.c = nil
	c.scopePool.Put(s)
}

// touchNode registers a hit; the caller holds the stripe read lock.
func (s *Scope) touchNode(n *node) {
	c := s.c
	n.scopeRefCount.Add(1)
	n.lastTimeTouchedUS.Store(c.nowUS())
	n.lastUserClockIdxTouched.Store(c.UserClockIdx())
	s.touches = append(s.touches, touch{hash: n.hash, params: n.params})
}
