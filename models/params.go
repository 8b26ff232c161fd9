package models

// StyleFlags select which annotation parts a disassembly renders.
type StyleFlags uint32

const (
	StyleAddresses StyleFlags = 1 << iota
	StyleCodeBytes
	StyleSourceFilesNames
	StyleSourceLines
	StyleSymbolNames
)

// Syntax selects the assembly flavor the decoder renders.
type Syntax int

const (
	SyntaxIntel Syntax = iota
	SyntaxATT
)

// DbgiKey identifies one revision of a debug-info artifact.
type DbgiKey struct {
	Path         string
	MinTimestamp uint64
}

func (k *DbgiKey) Match(other *DbgiKey) bool {
	return k.Path == other.Path && k.MinTimestamp == other.MinTimestamp
}

// Params are the decode parameters half of a cache identity. Two
// requests with equal (hash, params) share one cache node.
type Params struct {
	VAddr      uint64
	Arch       Arch
	StyleFlags StyleFlags
	Syntax     Syntax
	BaseVAddr  uint64
	DbgiKey    DbgiKey
}

// Match compares structurally over all fields, including path bytes.
func (p *Params) Match(other *Params) bool {
	return p.VAddr == other.VAddr &&
		p.Arch == other.Arch &&
		p.StyleFlags == other.StyleFlags &&
		p.Syntax == other.Syntax &&
		p.BaseVAddr == other.BaseVAddr &&
		p.DbgiKey.Match(&other.DbgiKey)
}
