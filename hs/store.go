// Package hs is an in-memory content-addressed hash store. Blobs are
// keyed by a 128-bit blake2b fingerprint and held snappy-compressed;
// named keys track their current and one previous content revision.
package hs

import (
	"sync"

	"github.com/golang/snappy"
	"golang.org/x/crypto/blake2b"

	"github.com/lunixbochs/dasmcache/arena"
	"github.com/lunixbochs/dasmcache/models"
)

type Store struct {
	mu    sync.RWMutex
	blobs map[models.Hash][]byte         // compressed
	keys  map[models.Hash][2]models.Hash // [current, previous]
}

func NewStore() *Store {
	return &Store{
		blobs: make(map[models.Hash][]byte),
		keys:  make(map[models.Hash][2]models.Hash),
	}
}

// HashFromData fingerprints data without storing it.
func HashFromData(data []byte) models.Hash {
	h, _ := blake2b.New(16, nil)
	h.Write(data)
	return models.HashFromBytes(h.Sum(nil))
}

// SubmitData stores data under its content hash and rotates key's
// revision history. Ownership of a moves to the store: it is released
// before return and must not be used by the caller afterward.
func (s *Store) SubmitData(key models.Hash, a *arena.Arena, data []byte) models.Hash {
	hash := HashFromData(data)
	compressed := snappy.Encode(nil, data)
	s.mu.Lock()
	s.blobs[hash] = compressed
	if !key.IsZero() {
		revs := s.keys[key]
		if revs[0] != hash {
			s.keys[key] = [2]models.Hash{hash, revs[0]}
		}
	}
	s.mu.Unlock()
	if a != nil {
		a.Release()
	}
	return hash
}

// HashFromKey returns the content hash rewindIdx revisions back from
// key's current revision, or the zero hash when absent.
func (s *Store) HashFromKey(key models.Hash, rewindIdx int) models.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	revs, ok := s.keys[key]
	if !ok || rewindIdx < 0 || rewindIdx >= len(revs) {
		return models.Hash{}
	}
	return revs[rewindIdx]
}

// Scope pins decompressed views; they stay valid until Close.
type Scope struct {
	s     *Store
	views map[models.Hash][]byte
}

func (s *Store) ScopeOpen() *Scope {
	return &Scope{s: s, views: make(map[models.Hash][]byte)}
}

func (sc *Scope) Close() {
	sc.views = nil
}

// DataFromHash returns the blob stored under hash, or nil when absent.
func (s *Store) DataFromHash(sc *Scope, hash models.Hash) []byte {
	if data, ok := sc.views[hash]; ok {
		return data
	}
	s.mu.RLock()
	compressed, ok := s.blobs[hash]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	data, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil
	}
	sc.views[hash] = data
	return data
}
