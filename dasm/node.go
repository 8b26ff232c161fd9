package dasm

import (
	"sync"
	"sync/atomic"

	"github.com/lunixbochs/dasmcache/models"
)

// node is one cache entry. Identity (hash, params) and info are written
// only under the stripe write lock; the atomic fields may be read
// without any lock.
type node struct {
	next, prev *node

	hash   models.Hash
	params models.Params

	info models.Info

	isWorking     atomic.Uint32
	scopeRefCount atomic.Uint64
	loadCount     atomic.Uint64

	lastTimeTouchedUS       atomic.Uint64
	lastUserClockIdxTouched atomic.Uint64

	// evictor-owned, guarded by the stripe write lock
	lastTimeRequestedUS       uint64
	lastUserClockIdxRequested uint64
	changeGen                 uint64
}

func (n *node) reset() {
	n.next, n.prev = nil, nil
	n.hash = models.Hash{}
	n.params = models.Params{}
	n.info = models.Info{}
	n.isWorking.Store(0)
	n.scopeRefCount.Store(0)
	n.loadCount.Store(0)
	n.lastTimeTouchedUS.Store(0)
	n.lastUserClockIdxTouched.Store(0)
	n.lastTimeRequestedUS = 0
	n.lastUserClockIdxRequested = 0
	n.changeGen = 0
}

// slot is a doubly-linked list of nodes hashing to it, traversed
// head-to-tail under the stripe lock; new nodes append at the tail.
type slot struct {
	first, last *node
}

func (s *slot) pushBack(n *node) {
	n.prev = s.last
	n.next = nil
	if s.last != nil {
		s.last.next = n
	} else {
		s.first = n
	}
	s.last = n
}

func (s *slot) remove(n *node) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		s.first = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		s.last = n.prev
	}
	n.next = nil
	n.prev = nil
}

func (s *slot) find(hash models.Hash, params *models.Params) *node {
	for n := s.first; n != nil; n = n.next {
		if n.hash == hash && n.params.Match(params) {
			return n
		}
	}
	return nil
}

// stripe is the shared locking context for slots_count/stripes_count
// slots, plus a free list of reclaimed node shells.
type stripe struct {
	mu       sync.RWMutex
	freeNode *node
}

func (st *stripe) allocNode() *node {
	if n := st.freeNode; n != nil {
		st.freeNode = n.next
		n.reset()
		return n
	}
	return &node{}
}

func (st *stripe) freeNodePush(n *node) {
	n.next = st.freeNode
	st.freeNode = n
}

// instChunkList amortizes instruction allocation during decoding; it is
// flattened to one contiguous array at publication.
type instChunkList struct {
	chunks [][]models.Inst
	count  int
}

func (l *instChunkList) push(inst models.Inst, chunkCap int) {
	if len(l.chunks) == 0 || len(l.chunks[len(l.chunks)-1]) == cap(l.chunks[len(l.chunks)-1]) {
		l.chunks = append(l.chunks, make([]models.Inst, 0, chunkCap))
	}
	l.chunks[len(l.chunks)-1] = append(l.chunks[len(l.chunks)-1], inst)
	l.count++
}

func (l *instChunkList) array() models.InstArray {
	out := make(models.InstArray, 0, l.count)
	for _, chunk := range l.chunks {
		out = append(out, chunk...)
	}
	return out
}
