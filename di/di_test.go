package di

import (
	"testing"
	"time"

	"github.com/lunixbochs/dasmcache/models"
)

func synthParsed() *Parsed {
	p := NewParsed()
	p.SourceFiles = append(p.SourceFiles, "/src/main.c", "/src/util.c")
	p.Units = []Unit{
		{VoffMin: 0x1000, VoffMax: 0x2000, Lines: []Line{
			{Voff: 0x1000, FileIdx: 1, Num: 10},
			{Voff: 0x1010, FileIdx: 1, Num: 11},
			{Voff: 0x1100, FileIdx: 2, Num: 3},
		}},
		{VoffMin: 0x3000, VoffMax: 0x4000},
	}
	p.Procs = []Proc{
		{VoffMin: 0x1000, VoffMax: 0x1100, Name: "main"},
		{VoffMin: 0x1100, VoffMax: 0x1200, Name: "helper"},
	}
	return p
}

func TestLineFromVoff(t *testing.T) {
	p := synthParsed()
	fileIdx, num, ok := p.LineFromVoff(0x1008)
	if !ok || fileIdx != 1 || num != 10 {
		t.Fatalf("lookup 0x1008: %d %d %v", fileIdx, num, ok)
	}
	fileIdx, num, ok = p.LineFromVoff(0x1100)
	if !ok || fileIdx != 2 || num != 3 {
		t.Fatalf("lookup 0x1100: %d %d %v", fileIdx, num, ok)
	}
	if _, _, ok = p.LineFromVoff(0x500); ok {
		t.Fatal("voff below all units resolved")
	}
	if _, _, ok = p.LineFromVoff(0x3000); ok {
		t.Fatal("unit without lines resolved a line")
	}
}

func TestProcNameFromVoff(t *testing.T) {
	p := synthParsed()
	if name := p.ProcNameFromVoff(0x1050); name != "main" {
		t.Fatalf("proc at 0x1050: %q", name)
	}
	if name := p.ProcNameFromVoff(0x1100); name != "helper" {
		t.Fatalf("proc at 0x1100: %q", name)
	}
	if name := p.ProcNameFromVoff(0x5000); name != "" {
		t.Fatalf("proc out of range: %q", name)
	}
}

func TestNilParseIdentity(t *testing.T) {
	if !ParsedNil.IsNil() {
		t.Fatal("ParsedNil not nil by identity")
	}
	p := NewParsed()
	if p.IsNil() {
		t.Fatal("fresh parse is nil")
	}
	if p.ID() == 0 || p.ID() == NewParsed().ID() {
		t.Fatal("parse ids not unique")
	}
	if ParsedNil.ID() != 0 {
		t.Fatal("nil parse id not 0")
	}
}

func TestCacheFromKey(t *testing.T) {
	c := NewCache()
	loads := 0
	want := synthParsed()
	c.Loader = func(key models.DbgiKey) (*Parsed, error) {
		loads++
		return want, nil
	}
	sc := c.ScopeOpen()
	defer sc.Close()
	key := models.DbgiKey{Path: "/bin/prog", MinTimestamp: 7}
	if got := c.FromKey(sc, key, time.Time{}); got != want {
		t.Fatal("loader result not returned")
	}
	if got := c.FromKey(sc, key, time.Time{}); got != want {
		t.Fatal("cached result not returned")
	}
	if loads != 1 {
		t.Fatalf("loader ran %d times", loads)
	}
	if got := c.FromKey(sc, models.DbgiKey{}, time.Time{}); !got.IsNil() {
		t.Fatal("empty path did not yield the nil parse")
	}
}

func TestCacheLoadFailure(t *testing.T) {
	c := NewCache()
	sc := c.ScopeOpen()
	defer sc.Close()
	// default loader against a path that is not an ELF
	key := models.DbgiKey{Path: "/definitely/not/here.elf"}
	if got := c.FromKey(sc, key, time.Time{}); !got.IsNil() {
		t.Fatal("load failure did not degrade to nil parse")
	}
}
