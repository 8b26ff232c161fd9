package dasm

import "sync/atomic"

// userClock is an activity-weighted age axis, ticked externally (e.g.
// once per rendered frame). An entry must be stale on both this axis
// and the wall clock before the evictor reclaims it, so neither idle
// pauses nor short bursts of activity evict on their own.
type userClock struct {
	idx atomic.Uint64
}

// UserClockTick advances the user clock by one.
func (c *Cache) UserClockTick() {
	c.userClock.idx.Add(1)
}

// UserClockIdx reads the current user clock.
func (c *Cache) UserClockIdx() uint64 {
	return c.userClock.idx.Load()
}
