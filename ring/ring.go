// Package ring is a bounded byte ring carrying variable-length messages
// between producers and consumers. Read and write positions are monotonic
// u64 counters; the physical index is the counter masked by capacity.
// A mutex and condition variable serialize both ends.
package ring

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/lunixbochs/dasmcache/arena"
)

const headerSize = 8

type Ring struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	mask   uint64
	read   uint64
	write  uint64
	closed bool
}

// New allocates a ring; size must be a power of two.
func New(size int) *Ring {
	if size <= 0 || size&(size-1) != 0 {
		panic("ring: size must be >0 and a power of two")
	}
	r := &Ring{
		buf:  make([]byte, size),
		mask: uint64(size - 1),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// Enqueue writes one message, blocking while the ring lacks room.
// A zero deadline waits forever; otherwise Enqueue gives up and returns
// false once the deadline passes. Each message occupies an 8-byte length
// header plus the payload, padded up to an 8-byte boundary.
func (r *Ring) Enqueue(msg []byte, deadline time.Time) bool {
	need := pad8(headerSize + len(msg))
	if need > len(r.buf) {
		return false
	}
	r.mu.Lock()
	for {
		if r.closed {
			r.mu.Unlock()
			return false
		}
		avail := len(r.buf) - int(r.write-r.read)
		if avail >= need {
			break
		}
		if deadline.IsZero() {
			r.cond.Wait()
			continue
		}
		now := time.Now()
		if !now.Before(deadline) {
			r.mu.Unlock()
			return false
		}
		timer := time.AfterFunc(deadline.Sub(now), r.cond.Broadcast)
		r.cond.Wait()
		timer.Stop()
	}
	var hdr [headerSize]byte
	binary.LittleEndian.PutUint64(hdr[:], uint64(len(msg)))
	r.copyIn(r.write, hdr[:])
	r.copyIn(r.write+headerSize, msg)
	r.write += uint64(need)
	r.mu.Unlock()
	r.cond.Broadcast()
	return true
}

// TryEnqueue writes one message only if room already exists.
func (r *Ring) TryEnqueue(msg []byte) bool {
	return r.Enqueue(msg, time.Unix(0, 1))
}

// Dequeue blocks until a full message is available, copies its payload
// into a, and returns it. Returns false only after Close.
func (r *Ring) Dequeue(a *arena.Arena) ([]byte, bool) {
	r.mu.Lock()
	for r.write-r.read < headerSize {
		if r.closed {
			r.mu.Unlock()
			return nil, false
		}
		r.cond.Wait()
	}
	var hdr [headerSize]byte
	r.copyOut(r.read, hdr[:])
	size := binary.LittleEndian.Uint64(hdr[:])
	payload := a.PushNoZero(int(size))
	r.copyOut(r.read+headerSize, payload)
	r.read += uint64(pad8(headerSize + int(size)))
	r.mu.Unlock()
	// wake producers waiting for capacity
	r.cond.Broadcast()
	return payload, true
}

// Close wakes all waiters; subsequent Enqueues fail. Dequeues still
// return messages already buffered, then return false once the ring
// is empty.
func (r *Ring) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cond.Broadcast()
}

func (r *Ring) copyIn(pos uint64, b []byte) {
	i := int(pos & r.mask)
	n := copy(r.buf[i:], b)
	copy(r.buf, b[n:])
}

func (r *Ring) copyOut(pos uint64, b []byte) {
	i := int(pos & r.mask)
	n := copy(b, r.buf[i:])
	copy(b[n:], r.buf)
}

func pad8(n int) int {
	return (n + 7) &^ 7
}
