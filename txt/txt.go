// Package txt tokenizes source files into per-line byte ranges over
// blobs held by the hash store. Files are loaded lazily the first time
// a registered key is queried.
package txt

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lunixbochs/dasmcache/hs"
	"github.com/lunixbochs/dasmcache/models"
)

type LangKind int

const (
	LangNone LangKind = iota
	LangC
	LangCPlusPlus
	LangGo
	LangRust
	LangAsm
)

// LangKindFromExtension maps a source path to a language tag.
func LangKindFromExtension(path string) LangKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".c", ".h":
		return LangC
	case ".cc", ".cpp", ".cxx", ".hpp", ".hxx":
		return LangCPlusPlus
	case ".go":
		return LangGo
	case ".rs":
		return LangRust
	case ".s", ".asm":
		return LangAsm
	}
	return LangNone
}

// Range is a [Min, Max) byte range into a file's text blob.
type Range struct {
	Min, Max uint64
}

// TextInfo describes one tokenized file revision.
type TextInfo struct {
	LinesCount  uint64
	LinesRanges []Range
	Lang        LangKind
}

type entry struct {
	hash models.Hash
	info TextInfo
}

type Cache struct {
	store *hs.Store
	mu    sync.RWMutex
	paths map[models.Hash]string
	infos map[models.Hash]entry
}

func NewCache(store *hs.Store) *Cache {
	return &Cache{
		store: store,
		paths: make(map[models.Hash]string),
		infos: make(map[models.Hash]entry),
	}
}

// FSKeyFromPath derives the stable store key for a file path and
// registers the path for lazy loading.
func (c *Cache) FSKeyFromPath(path string) models.Hash {
	path = filepath.Clean(path)
	key := hs.HashFromData([]byte("fs:" + path))
	c.mu.Lock()
	c.paths[key] = path
	c.mu.Unlock()
	return key
}

type Scope struct {
	c *Cache
}

func (c *Cache) ScopeOpen() *Scope { return &Scope{c: c} }

func (sc *Scope) Close() {}

// TextInfoFromKeyLang returns line ranges for the file registered under
// key, loading and submitting its bytes to the hash store on first use.
// outHash receives the content hash, or the zero hash when the file
// cannot be read.
func (c *Cache) TextInfoFromKeyLang(sc *Scope, key models.Hash, lang LangKind, outHash *models.Hash) TextInfo {
	c.mu.RLock()
	e, ok := c.infos[key]
	path := c.paths[key]
	c.mu.RUnlock()
	if ok {
		if outHash != nil {
			*outHash = e.hash
		}
		return e.info
	}
	if path == "" {
		return TextInfo{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return TextInfo{}
	}
	hash := c.store.SubmitData(key, nil, data)
	info := TextInfo{
		LinesRanges: lineRanges(data),
		Lang:        lang,
	}
	info.LinesCount = uint64(len(info.LinesRanges))
	c.mu.Lock()
	c.infos[key] = entry{hash: hash, info: info}
	c.mu.Unlock()
	if outHash != nil {
		*outHash = hash
	}
	return info
}

// lineRanges splits data into newline-terminated ranges; the newline
// (and a preceding carriage return) is excluded from each range.
func lineRanges(data []byte) []Range {
	var out []Range
	start := uint64(0)
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' {
			end := uint64(i)
			if end > start && data[end-1] == '\r' {
				end--
			}
			out = append(out, Range{Min: start, Max: end})
			start = uint64(i) + 1
		}
	}
	if start < uint64(len(data)) {
		out = append(out, Range{Min: start, Max: uint64(len(data))})
	}
	return out
}
