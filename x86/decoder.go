// Package x86 wraps an x86/x64 instruction decoder behind a small
// streaming interface. The decoder walks a byte blob from a seed pc,
// yielding one rendered instruction at a time; a decode failure
// truncates the stream rather than surfacing an error.
package x86

import (
	"github.com/pkg/errors"
	"golang.org/x/arch/x86/x86asm"

	"github.com/lunixbochs/dasmcache/models"
)

// Dis is one decoded instruction.
type Dis struct {
	Off   uint64 // offset from the start of the input blob
	Size  int
	Bytes []byte // the instruction's encoding, aliased into the input
	Text  string // mnemonic + operands in the requested syntax
	// JumpDestVAddr is the resolved target of a pc-relative branch
	// immediate, or 0 when the first operand is not one.
	JumpDestVAddr uint64
}

type Decoder struct {
	mode   int
	pc     uint64
	data   []byte
	off    uint64
	syntax models.Syntax
}

// NewDecoder seeds a streaming decoder. pc is the virtual address of
// data[0] and is folded into rendered addresses and branch targets.
func NewDecoder(arch models.Arch, pc uint64, data []byte, syntax models.Syntax) (*Decoder, error) {
	bits := arch.Bits()
	if bits == 0 {
		return nil, errors.Errorf("unsupported decode arch %q", arch)
	}
	return &Decoder{
		mode:   bits,
		pc:     pc,
		data:   data,
		syntax: syntax,
	}, nil
}

// Next decodes one instruction. It returns false at the end of input or
// on the first undecodable byte sequence.
func (d *Decoder) Next() (Dis, bool) {
	if d.off >= uint64(len(d.data)) {
		return Dis{}, false
	}
	inst, err := x86asm.Decode(d.data[d.off:], d.mode)
	if err != nil || inst.Len == 0 {
		return Dis{}, false
	}
	pc := d.pc + d.off
	var text string
	switch d.syntax {
	case models.SyntaxATT:
		text = x86asm.GNUSyntax(inst, pc, nil)
	default:
		text = x86asm.IntelSyntax(inst, pc, nil)
	}
	dis := Dis{
		Off:   d.off,
		Size:  inst.Len,
		Bytes: d.data[d.off : d.off+uint64(inst.Len)],
		Text:  text,
	}
	if rel, ok := inst.Args[0].(x86asm.Rel); ok {
		dis.JumpDestVAddr = pc + uint64(inst.Len) + uint64(int64(rel))
	}
	d.off += uint64(inst.Len)
	return dis, true
}
