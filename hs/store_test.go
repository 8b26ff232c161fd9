package hs

import (
	"bytes"
	"testing"

	"github.com/lunixbochs/dasmcache/arena"
	"github.com/lunixbochs/dasmcache/models"
)

func TestSubmitAndFetch(t *testing.T) {
	s := NewStore()
	data := []byte("some blob of bytes that snappy will see")
	hash := s.SubmitData(models.Hash{}, nil, data)
	if hash.IsZero() {
		t.Fatal("zero content hash")
	}
	sc := s.ScopeOpen()
	defer sc.Close()
	got := s.DataFromHash(sc, hash)
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch: %q", got)
	}
	// same view pinned on the scope
	if &got[0] != &s.DataFromHash(sc, hash)[0] {
		t.Fatal("scope did not pin the view")
	}
}

func TestHashDeterminism(t *testing.T) {
	a := HashFromData([]byte("abc"))
	b := HashFromData([]byte("abc"))
	c := HashFromData([]byte("abd"))
	if a != b {
		t.Fatal("equal data hashed differently")
	}
	if a == c {
		t.Fatal("distinct data collided")
	}
}

func TestKeyRevisions(t *testing.T) {
	s := NewStore()
	key := HashFromData([]byte("some/key"))
	if !s.HashFromKey(key, 0).IsZero() {
		t.Fatal("unknown key not zero")
	}
	h1 := s.SubmitData(key, nil, []byte("rev one"))
	if s.HashFromKey(key, 0) != h1 {
		t.Fatal("current revision mismatch")
	}
	h2 := s.SubmitData(key, nil, []byte("rev two"))
	if s.HashFromKey(key, 0) != h2 {
		t.Fatal("current revision not rotated")
	}
	if s.HashFromKey(key, 1) != h1 {
		t.Fatal("previous revision lost")
	}
	if !s.HashFromKey(key, 2).IsZero() {
		t.Fatal("rewind past history not zero")
	}
	// resubmitting identical content does not rotate
	s.SubmitData(key, nil, []byte("rev two"))
	if s.HashFromKey(key, 1) != h1 {
		t.Fatal("identical resubmit rotated history")
	}
}

func TestArenaMove(t *testing.T) {
	s := NewStore()
	a := arena.New()
	data := a.Copy([]byte("arena-backed text"))
	s.SubmitData(models.Hash{}, a, data)
	if a.Pos() != 0 {
		t.Fatal("submit did not release the moved arena")
	}
}

func TestMissingHash(t *testing.T) {
	s := NewStore()
	sc := s.ScopeOpen()
	defer sc.Close()
	if s.DataFromHash(sc, models.Hash{Lo: 1}) != nil {
		t.Fatal("missing hash returned data")
	}
}
