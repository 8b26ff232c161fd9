// Package di serves parsed debug info keyed by (path, min-timestamp).
// A parse is an opaque bundle of voff-sorted tables; the nil parse is a
// package singleton distinguished by identity, never by value.
package di

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lunixbochs/dasmcache/models"
)

// Line maps a voff to a source location. Lines within a unit are sorted
// by Voff; a lookup resolves to the last line at or below the voff.
type Line struct {
	Voff    uint64
	FileIdx uint32
	Num     uint32
}

// Unit is one compile unit's voff range and line table.
type Unit struct {
	VoffMin, VoffMax uint64 // [min, max)
	Lines            []Line
}

// Proc is a procedure's voff range and name.
type Proc struct {
	VoffMin, VoffMax uint64
	Name             string
}

// Parsed holds the tables the disassembler consumes. Units and Procs
// are sorted by VoffMin; SourceFiles[0] is always the empty path.
type Parsed struct {
	id          uint64
	Units       []Unit
	SourceFiles []string
	Procs       []Proc
}

// ParsedNil is the canonical absent parse.
var ParsedNil = &Parsed{}

var parseID atomic.Uint64

// NewParsed assigns a fresh identity and the reserved nil source file.
func NewParsed() *Parsed {
	return &Parsed{
		id:          parseID.Add(1),
		SourceFiles: []string{""},
	}
}

func (p *Parsed) IsNil() bool { return p == ParsedNil }

// ID is a stable identity for key derivation; the nil parse is 0.
func (p *Parsed) ID() uint64 { return p.id }

// UnitFromVoff finds the compile unit containing voff.
func (p *Parsed) UnitFromVoff(voff uint64) *Unit {
	i := sort.Search(len(p.Units), func(i int) bool {
		return p.Units[i].VoffMax > voff
	})
	if i < len(p.Units) && p.Units[i].VoffMin <= voff {
		return &p.Units[i]
	}
	return nil
}

// LineFromVoff resolves voff to (file index, line number) through the
// owning unit's line table.
func (p *Parsed) LineFromVoff(voff uint64) (fileIdx uint32, lineNum uint32, ok bool) {
	unit := p.UnitFromVoff(voff)
	if unit == nil || len(unit.Lines) == 0 {
		return 0, 0, false
	}
	i := sort.Search(len(unit.Lines), func(i int) bool {
		return unit.Lines[i].Voff > voff
	})
	if i == 0 {
		return 0, 0, false
	}
	line := unit.Lines[i-1]
	return line.FileIdx, line.Num, true
}

// SourceFilePath returns the normalized full path at idx, "" when the
// index is the nil file or out of range.
func (p *Parsed) SourceFilePath(idx uint32) string {
	if int(idx) >= len(p.SourceFiles) {
		return ""
	}
	return p.SourceFiles[idx]
}

// ProcNameFromVoff names the procedure whose range contains voff.
func (p *Parsed) ProcNameFromVoff(voff uint64) string {
	i := sort.Search(len(p.Procs), func(i int) bool {
		return p.Procs[i].VoffMax > voff
	})
	if i < len(p.Procs) && p.Procs[i].VoffMin <= voff {
		return p.Procs[i].Name
	}
	return ""
}

type cacheKey struct {
	path         string
	minTimestamp uint64
}

// Cache memoizes parses per key. Loader turns a key into a Parsed;
// the default reads ELF/DWARF from disk. Tests may Put parses directly.
type Cache struct {
	mu     sync.RWMutex
	m      map[cacheKey]*Parsed
	Loader func(key models.DbgiKey) (*Parsed, error)
}

func NewCache() *Cache {
	return &Cache{
		m:      make(map[cacheKey]*Parsed),
		Loader: LoadELF,
	}
}

// Put installs a parse for key, replacing any cached value.
func (c *Cache) Put(key models.DbgiKey, p *Parsed) {
	c.mu.Lock()
	c.m[cacheKey{key.Path, key.MinTimestamp}] = p
	c.mu.Unlock()
}

// Scope brackets reads; parses observed through it stay valid until
// Close.
type Scope struct {
	c *Cache
}

func (c *Cache) ScopeOpen() *Scope { return &Scope{c: c} }

func (sc *Scope) Close() {}

// FromKey returns the parse for key, loading and caching it on first
// use. The empty path and any load failure yield ParsedNil. The
// deadline is accepted for interface parity; loads are synchronous.
func (c *Cache) FromKey(sc *Scope, key models.DbgiKey, deadline time.Time) *Parsed {
	if key.Path == "" {
		return ParsedNil
	}
	ck := cacheKey{key.Path, key.MinTimestamp}
	c.mu.RLock()
	p, ok := c.m[ck]
	c.mu.RUnlock()
	if ok {
		return p
	}
	loaded, err := c.Loader(key)
	if err != nil || loaded == nil {
		loaded = ParsedNil
	}
	c.mu.Lock()
	if prior, ok := c.m[ck]; ok {
		loaded = prior
	} else {
		c.m[ck] = loaded
	}
	c.mu.Unlock()
	return loaded
}
