package dasm

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/lunixbochs/dasmcache/arena"
	"github.com/lunixbochs/dasmcache/di"
	"github.com/lunixbochs/dasmcache/hs"
	"github.com/lunixbochs/dasmcache/models"
	"github.com/lunixbochs/dasmcache/txt"
	"github.com/lunixbochs/dasmcache/x86"
)

const instChunkCap = 1024

// stringList accumulates per-instruction text; text ranges are offsets
// into the final join, so base = total bytes + one separator byte per
// prior string.
type stringList struct {
	parts     []string
	totalSize uint64
}

func (l *stringList) nextBase() uint64 {
	return l.totalSize + uint64(len(l.parts))
}

func (l *stringList) push(s string) {
	l.parts = append(l.parts, s)
	l.totalSize += uint64(len(s))
}

// join writes the newline-separated concatenation into a.
func (l *stringList) join(a *arena.Arena) []byte {
	size := int(l.totalSize)
	if len(l.parts) > 1 {
		size += len(l.parts) - 1
	}
	out := a.PushNoZero(size)[:0]
	for i, part := range l.parts {
		if i > 0 {
			out = append(out, '\n')
		}
		out = append(out, part...)
	}
	return out
}

func (c *Cache) runWorker(idx int) {
	defer c.wg.Done()
	scratch := arena.New()
	for {
		scratch.PopTo(0)
		hash, params, ok := c.u2pDequeue(scratch)
		if !ok {
			return
		}
		c.processOrder(scratch, hash, &params)
	}
}

func (c *Cache) processOrder(scratch *arena.Arena, hash models.Hash, params *models.Params) {
	changeGen := c.cfg.Change.ChangeGen()
	hsScope := c.cfg.Store.ScopeOpen()
	diScope := c.cfg.DbgInfo.ScopeOpen()
	txtScope := c.cfg.Text.ScopeOpen()
	defer func() {
		txtScope.Close()
		diScope.Close()
		hsScope.Close()
	}()

	slot, stripe := c.slotStripe(hash)

	// take the task: single-flight claim on the owning node
	gotTask := false
	stripe.mu.RLock()
	if n := slot.find(hash, params); n != nil {
		gotTask = n.isWorking.CompareAndSwap(0, 1)
	}
	stripe.mu.RUnlock()
	if !gotTask {
		return
	}

	rdi := di.ParsedNil
	if params.DbgiKey.Path != "" {
		rdi = c.cfg.DbgInfo.FromKey(diScope, params.DbgiKey, time.Time{})
	}

	data := c.cfg.Store.DataFromHash(hsScope, hash)

	var instList instChunkList
	var instStrings stringList
	switch params.Arch {
	case models.ArchX86, models.ArchX64:
		c.decodeX86(hsScope, txtScope, rdi, params, data, &instList, &instStrings)
	}

	// join the text and hand it to the hash store under a key derived
	// from the full decode identity
	textArena := arena.New()
	text := instStrings.join(textArena)
	textKey := textKeyFromIdentity(hash, params, rdi)
	c.cfg.Store.SubmitData(textKey, textArena, text)

	info := models.Info{
		TextKey: textKey,
		Insts:   instList.array(),
	}

	// commit; a claimed node cannot be evicted, so the re-scan is
	// defensive and never creates
	stripe.mu.Lock()
	if n := slot.find(hash, params); n != nil {
		n.info = info
		if !rdi.IsNil() && params.StyleFlags&(models.StyleSourceLines|models.StyleSourceFilesNames) != 0 {
			n.changeGen = changeGen
		} else {
			n.changeGen = 0
		}
		n.isWorking.Store(0)
		n.loadCount.Add(1)
	}
	stripe.mu.Unlock()
}

func (c *Cache) decodeX86(hsScope *hs.Scope, txtScope *txt.Scope, rdi *di.Parsed,
	params *models.Params, data []byte, instList *instChunkList, instStrings *stringList) {

	dec, err := x86.NewDecoder(params.Arch, params.VAddr, data, params.Syntax)
	if err != nil {
		return
	}

	pushPseudo := func(text string) {
		base := uint32(instStrings.nextBase())
		instList.push(models.Inst{
			TextRange: models.TextRange{Base: base, End: base + uint32(len(text))},
		}, instChunkCap)
		instStrings.push(text)
	}

	wantSource := params.StyleFlags&(models.StyleSourceFilesNames|models.StyleSourceLines) != 0
	lastFileIdx := uint32(0)
	haveLastLine := false
	var lastLine di.Line

	for {
		dis, ok := dec.Next()
		if !ok {
			break
		}

		// interleave source annotations from voff -> line info
		if wantSource && !rdi.IsNil() {
			voff := params.VAddr + dis.Off - params.BaseVAddr
			if fileIdx, lineNum, lineOK := rdi.LineFromVoff(voff); lineOK {
				path := rdi.SourceFilePath(fileIdx)
				if fileIdx != lastFileIdx {
					if params.StyleFlags&models.StyleSourceFilesNames != 0 {
						if path != "" {
							pushPseudo("> " + path)
						} else {
							pushPseudo(">")
						}
					}
					lastFileIdx = fileIdx
				}
				line := di.Line{FileIdx: fileIdx, Num: lineNum}
				if params.StyleFlags&models.StyleSourceLines != 0 && path != "" &&
					(!haveLastLine || line != lastLine) {
					if !di.ModTimeFromPath(path).IsZero() {
						c.pushSourceLine(hsScope, txtScope, path, lineNum, pushPseudo)
					}
					lastLine = line
					haveLastLine = true
				}
			}
		}

		text := c.instText(rdi, params, &dis)
		base := uint32(instStrings.nextBase())
		instList.push(models.Inst{
			CodeOff:       dis.Off,
			JumpDestVAddr: dis.JumpDestVAddr,
			TextRange:     models.TextRange{Base: base, End: base + uint32(len(text))},
		}, instChunkCap)
		instStrings.push(text)
	}
}

// pushSourceLine fetches the file's text, bounded by the wait budget,
// and emits the trimmed line as a pseudo-instruction when non-empty.
func (c *Cache) pushSourceLine(hsScope *hs.Scope, txtScope *txt.Scope,
	path string, lineNum uint32, pushPseudo func(string)) {

	key := c.cfg.Text.FSKeyFromPath(path)
	lang := txt.LangKindFromExtension(path)
	var textHash models.Hash
	var textInfo txt.TextInfo
	start := time.Now()
	for {
		textInfo = c.cfg.Text.TextInfoFromKeyLang(txtScope, key, lang, &textHash)
		if !textHash.IsZero() || time.Since(start) > c.cfg.TextWaitBudget {
			break
		}
	}
	if textHash.IsZero() {
		return
	}
	if lineNum == 0 || uint64(lineNum) >= textInfo.LinesCount {
		return
	}
	fileData := c.cfg.Store.DataFromHash(hsScope, textHash)
	r := textInfo.LinesRanges[lineNum-1]
	if r.Max > uint64(len(fileData)) {
		return
	}
	lineText := strings.TrimSpace(string(fileData[r.Min:r.Max]))
	if lineText != "" {
		pushPseudo("> " + lineText)
	}
}

// instText assembles one instruction's rendering from the selected
// style parts: addresses, code bytes, decoder text, symbol names.
func (c *Cache) instText(rdi *di.Parsed, params *models.Params, dis *x86.Dis) string {
	var b strings.Builder
	if params.StyleFlags&models.StyleAddresses != 0 {
		if !rdi.IsNil() {
			b.WriteString("  ")
		}
		fmt.Fprintf(&b, "  %016X  ", params.VAddr+dis.Off)
	}
	if params.StyleFlags&models.StyleCodeBytes != 0 {
		var cb strings.Builder
		cb.WriteByte('{')
		for i, v := range dis.Bytes {
			if i > 0 {
				cb.WriteByte(' ')
			}
			fmt.Fprintf(&cb, "%02x", v)
		}
		cb.WriteByte('}')
		fmt.Fprintf(&b, "%-16s ", cb.String())
	}
	b.WriteString(dis.Text)
	if dis.JumpDestVAddr != 0 && !rdi.IsNil() && params.StyleFlags&models.StyleSymbolNames != 0 {
		if name := rdi.ProcNameFromVoff(dis.JumpDestVAddr - params.BaseVAddr); name != "" {
			fmt.Fprintf(&b, " (%s)", name)
		}
	}
	return b.String()
}

// textKeyFromIdentity derives the deterministic hash-store key the
// joined text is submitted under.
func textKeyFromIdentity(hash models.Hash, params *models.Params, rdi *di.Parsed) models.Hash {
	var buf [64]byte
	fields := [8]uint64{
		hash.Lo,
		hash.Hi,
		params.VAddr,
		uint64(params.Arch),
		uint64(params.StyleFlags),
		uint64(params.Syntax),
		rdi.ID(),
		0x4d534144, // "DASM"
	}
	for i, v := range fields {
		binary.LittleEndian.PutUint64(buf[i*8:], v)
	}
	return hs.HashFromData(buf[:])
}
