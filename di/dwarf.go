package di

import (
	"debug/dwarf"
	"debug/elf"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/lunixbochs/dasmcache/models"
)

// LoadELF parses an ELF's DWARF into the voff tables the disassembler
// consumes. Voffs are virtual offsets from the image base, which for
// ELF is the raw DWARF address space.
func LoadELF(key models.DbgiKey) (*Parsed, error) {
	stat, err := os.Stat(key.Path)
	if err != nil {
		return nil, errors.Wrap(err, "stat debug artifact")
	}
	if key.MinTimestamp != 0 && uint64(stat.ModTime().Unix()) < key.MinTimestamp {
		return nil, errors.Errorf("%s older than required revision", key.Path)
	}
	f, err := elf.Open(key.Path)
	if err != nil {
		return nil, errors.Wrap(err, "open elf")
	}
	defer f.Close()
	d, err := f.DWARF()
	if err != nil {
		return nil, errors.Wrap(err, "load dwarf")
	}
	return parseDWARF(d)
}

func parseDWARF(d *dwarf.Data) (*Parsed, error) {
	p := NewParsed()
	fileIdx := map[string]uint32{"": 0}
	internFile := func(name string) uint32 {
		if idx, ok := fileIdx[name]; ok {
			return idx
		}
		idx := uint32(len(p.SourceFiles))
		fileIdx[name] = idx
		p.SourceFiles = append(p.SourceFiles, name)
		return idx
	}

	reader := d.Reader()
	for {
		entry, err := reader.Next()
		if err != nil {
			return nil, errors.Wrap(err, "walk dwarf")
		}
		if entry == nil {
			break
		}
		switch entry.Tag {
		case dwarf.TagCompileUnit:
			unit, err := parseUnit(d, entry, internFile)
			if err != nil {
				return nil, err
			}
			if unit != nil {
				p.Units = append(p.Units, *unit)
			}
		case dwarf.TagSubprogram:
			low, high, ok := pcRange(entry)
			if !ok {
				continue
			}
			name, _ := entry.Val(dwarf.AttrName).(string)
			if name == "" {
				continue
			}
			p.Procs = append(p.Procs, Proc{VoffMin: low, VoffMax: high, Name: name})
		}
	}
	sort.Slice(p.Units, func(i, j int) bool { return p.Units[i].VoffMin < p.Units[j].VoffMin })
	sort.Slice(p.Procs, func(i, j int) bool { return p.Procs[i].VoffMin < p.Procs[j].VoffMin })
	return p, nil
}

func parseUnit(d *dwarf.Data, entry *dwarf.Entry, internFile func(string) uint32) (*Unit, error) {
	low, high, haveRange := pcRange(entry)
	lr, err := d.LineReader(entry)
	if err != nil || lr == nil {
		// units without line programs still bound voffs
		if !haveRange {
			return nil, nil
		}
		return &Unit{VoffMin: low, VoffMax: high}, nil
	}
	unit := &Unit{VoffMin: low, VoffMax: high}
	var le dwarf.LineEntry
	for {
		if err := lr.Next(&le); err != nil {
			break
		}
		if le.EndSequence {
			continue
		}
		name := ""
		if le.File != nil {
			name = filepath.ToSlash(le.File.Name)
		}
		unit.Lines = append(unit.Lines, Line{
			Voff:    le.Address,
			FileIdx: internFile(name),
			Num:     uint32(le.Line),
		})
	}
	sort.Slice(unit.Lines, func(i, j int) bool { return unit.Lines[i].Voff < unit.Lines[j].Voff })
	if !haveRange && len(unit.Lines) > 0 {
		unit.VoffMin = unit.Lines[0].Voff
		unit.VoffMax = unit.Lines[len(unit.Lines)-1].Voff + 1
	}
	return unit, nil
}

func pcRange(entry *dwarf.Entry) (low, high uint64, ok bool) {
	lowField := entry.AttrField(dwarf.AttrLowpc)
	highField := entry.AttrField(dwarf.AttrHighpc)
	if lowField == nil || highField == nil {
		return 0, 0, false
	}
	if v, isAddr := lowField.Val.(uint64); isAddr {
		low = v
	} else {
		return 0, 0, false
	}
	switch highField.Class {
	case dwarf.ClassAddress:
		high = highField.Val.(uint64)
	case dwarf.ClassConstant:
		high = low + uint64(highField.Val.(int64))
	default:
		return 0, 0, false
	}
	return low, high, high > low
}

// ModTimeFromPath reports a file's mtime, zero when unreadable. The
// worker uses this to skip source annotations for files that vanished.
func ModTimeFromPath(path string) time.Time {
	stat, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return stat.ModTime()
}
