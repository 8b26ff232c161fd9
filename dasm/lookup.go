package dasm

import (
	"time"

	"github.com/lunixbochs/dasmcache/models"
)

// InfoFromHashParams looks up the decode of (hash, params). A hit
// returns the cached Info and pins its node on the scope. A miss
// inserts an empty node, enqueues a work order, and returns an empty
// Info immediately; callers poll by looking up again later. The call
// never waits on a decode.
func (c *Cache) InfoFromHashParams(scope *Scope, hash models.Hash, params *models.Params) models.Info {
	var info models.Info
	if hash.IsZero() {
		return info
	}
	slot, stripe := c.slotStripe(hash)

	found := false
	stripe.mu.RLock()
	if n := slot.find(hash, params); n != nil {
		// snapshot under the read lock; the node may be republished
		// later but the data behind info stays alive via the touch
		info = n.info
		found = true
		scope.touchNode(n)
	}
	stripe.mu.RUnlock()

	nodeIsNew := false
	if !found {
		stripe.mu.Lock()
		if slot.find(hash, params) == nil {
			c.logf("[dasm] cache miss, creating node hash=%v vaddr=0x%x arch=%s style=0x%x syntax=%d base=0x%x dbgi=[%s 0x%x]",
				hash, params.VAddr, params.Arch, params.StyleFlags, params.Syntax,
				params.BaseVAddr, params.DbgiKey.Path, params.DbgiKey.MinTimestamp)
			n := stripe.allocNode()
			n.hash = hash
			n.params = *params
			slot.pushBack(n)
			nodeIsNew = true
		}
		stripe.mu.Unlock()
	}
	if nodeIsNew {
		c.u2pEnqueue(hash, params, time.Time{})
	}
	return info
}

// InfoFromKeyParams resolves key through the hash store for up to two
// content revisions (current, then one back) and returns the first
// whose cached decode is non-empty. An immediately-previous revision is
// an acceptable stale answer while the current one decodes; anything
// older is not. The matching hash is written through outHash when
// non-nil.
func (c *Cache) InfoFromKeyParams(scope *Scope, key models.Hash, params *models.Params, outHash *models.Hash) models.Info {
	var info models.Info
	for rewindIdx := 0; rewindIdx < 2; rewindIdx++ {
		hash := c.cfg.Store.HashFromKey(key, rewindIdx)
		info = c.InfoFromHashParams(scope, hash, params)
		if len(info.Insts) != 0 {
			if outHash != nil {
				*outHash = hash
			}
			break
		}
	}
	return info
}
