package arena

import (
	"bytes"
	"testing"
)

func assert(t *testing.T, flag bool, msg string) {
	t.Helper()
	if flag {
		t.Fatal(msg)
	}
}

func TestPushPos(t *testing.T) {
	a := New()
	assert(t, a.Pos() != 0, "fresh arena pos not 0")
	b := a.Push(16)
	assert(t, len(b) != 16, "push size mismatch")
	assert(t, a.Pos() != 16, "pos after push mismatch")
	for _, v := range b {
		assert(t, v != 0, "push not zeroed")
	}
	c := a.Copy([]byte("hello"))
	assert(t, !bytes.Equal(c, []byte("hello")), "copy mismatch")
	assert(t, a.Pos() != 21, "pos after copy mismatch")
}

func TestPopTo(t *testing.T) {
	a := New()
	a.Push(8)
	mark := a.Pos()
	a.Push(100)
	a.PopTo(mark)
	assert(t, a.Pos() != mark, "popto did not rewind")
	b := a.Push(4)
	assert(t, a.Pos() != mark+4, "pos after rewound push mismatch")
	for _, v := range b {
		assert(t, v != 0, "rewound push not zeroed")
	}
}

func TestPopToAcrossChunks(t *testing.T) {
	a := New()
	a.Push(10)
	mark := a.Pos()
	// force several fresh chunks
	a.Push(DefaultChunkSize)
	a.Push(DefaultChunkSize)
	a.Push(3)
	a.PopTo(mark)
	assert(t, a.Pos() != mark, "cross-chunk popto mismatch")
	a.PopTo(0)
	assert(t, a.Pos() != 0, "popto zero mismatch")
}

func TestLargePush(t *testing.T) {
	a := New()
	b := a.PushNoZero(DefaultChunkSize * 3)
	assert(t, len(b) != DefaultChunkSize*3, "oversize push short")
	a.Release()
	assert(t, a.Pos() != 0, "release did not reset pos")
}
