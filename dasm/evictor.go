package dasm

import "github.com/lunixbochs/dasmcache/models"

// The evictor/detector sweeps the whole index periodically. Each sweep
// snapshots (change generation, wall clock, user clock) once, scans
// every slot under the stripe read lock, and only escalates to the
// write lock for slots that actually need work.

func (c *Cache) runEvictor() {
	defer c.wg.Done()
	for {
		c.sweep()
		select {
		case <-c.stop:
			return
		case <-c.clk.After(c.cfg.EvictorPeriod):
		}
	}
}

func (c *Cache) sweep() {
	changeGen := c.cfg.Change.ChangeGen()
	checkTimeUS := c.nowUS()
	checkUserClocks := c.UserClockIdx()

	for slotIdx := range c.slots {
		slot := &c.slots[slotIdx]
		stripe := &c.stripes[slotIdx%len(c.stripes)]

		slotHasWork := false
		stripe.mu.RLock()
		for n := slot.first; n != nil; n = n.next {
			if c.evictable(n, checkTimeUS, checkUserClocks) ||
				c.reEnqueueable(n, changeGen, checkTimeUS, checkUserClocks) {
				slotHasWork = true
				break
			}
		}
		stripe.mu.RUnlock()
		if !slotHasWork {
			continue
		}

		stripe.mu.Lock()
		var next *node
		for n := slot.first; n != nil; n = next {
			next = n.next
			if c.evictable(n, checkTimeUS, checkUserClocks) {
				slot.remove(n)
				n.info = models.Info{}
				stripe.freeNodePush(n)
				continue
			}
			if c.reEnqueueable(n, changeGen, checkTimeUS, checkUserClocks) {
				// never wait for ring capacity under the stripe lock;
				// a failed try is retried on the next sweep
				if c.u2pTryEnqueue(n.hash, &n.params) {
					n.lastTimeRequestedUS = c.nowUS()
					n.lastUserClockIdxRequested = checkUserClocks
				}
			}
		}
		stripe.mu.Unlock()
	}
}

// evictable: cold on both age axes, fully published, unobserved, idle.
func (c *Cache) evictable(n *node, checkTimeUS, checkUserClocks uint64) bool {
	return n.scopeRefCount.Load() == 0 &&
		n.lastTimeTouchedUS.Load()+uint64(c.cfg.EvictThreshold.Microseconds()) <= checkTimeUS &&
		n.lastUserClockIdxTouched.Load()+c.cfg.EvictUserClockThreshold <= checkUserClocks &&
		n.loadCount.Load() != 0 &&
		n.isWorking.Load() == 0
}

// reEnqueueable: annotations were built against an older change
// generation, and the node has not been re-requested too recently.
func (c *Cache) reEnqueueable(n *node, changeGen, checkTimeUS, checkUserClocks uint64) bool {
	return n.changeGen != 0 && n.changeGen != changeGen &&
		n.lastTimeRequestedUS+uint64(c.cfg.RetryThreshold.Microseconds()) <= checkTimeUS &&
		n.lastUserClockIdxRequested+c.cfg.RetryUserClockThreshold <= checkUserClocks
}
