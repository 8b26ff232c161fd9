package dasm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lunixbochs/dasmcache/di"
	"github.com/lunixbochs/dasmcache/models"
)

func TestPlainText(t *testing.T) {
	e := newTestEnv(t, nil)
	hash := e.store.SubmitData(models.Hash{}, nil, nopNopRet)
	info := e.pollInfo(t, hash, plainParams(0x1000, 0))
	require.Equal(t, "nop\nnop\nret", e.textOf(t, info))
}

func TestCodeBytesText(t *testing.T) {
	e := newTestEnv(t, nil)
	hash := e.store.SubmitData(models.Hash{}, nil, nopNopRet)
	info := e.pollInfo(t, hash, plainParams(0x1000, models.StyleCodeBytes))
	want := fmt.Sprintf("%-16s nop\n%-16s nop\n%-16s ret", "{90}", "{90}", "{c3}")
	require.Equal(t, want, e.textOf(t, info))
}

func TestSourceFlagsWithoutDebugInfo(t *testing.T) {
	e := newTestEnv(t, nil)
	hash := e.store.SubmitData(models.Hash{}, nil, nopNopRet)
	flags := models.StyleSourceFilesNames | models.StyleSourceLines
	info := e.pollInfo(t, hash, plainParams(0x1000, flags))
	require.Equal(t, "nop\nnop\nret", e.textOf(t, info),
		"nil debug info must degrade to the plain rendering")
	require.Len(t, info.Insts, 3)
}

func TestOffsetMonotonicity(t *testing.T) {
	e := newTestEnv(t, nil)
	// nop; jmp +2; nop; nop; ret
	code := []byte{0x90, 0xEB, 0x02, 0x90, 0x90, 0xC3}
	hash := e.store.SubmitData(models.Hash{}, nil, code)
	info := e.pollInfo(t, hash, plainParams(0x1000, 0))
	require.Len(t, info.Insts, 5)
	wantOffs := []uint64{0, 1, 3, 4, 5}
	for i, inst := range info.Insts {
		require.Equal(t, wantOffs[i], inst.CodeOff)
	}
	require.Equal(t, uint64(0x1005), info.Insts[1].JumpDestVAddr)
}

func synthEnvWithSource(t *testing.T, e *testEnv, lines []string) (models.DbgiKey, string) {
	t.Helper()
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "fake.c")
	require.NoError(t, os.WriteFile(srcPath, []byte(strings.Join(lines, "\n")+"\n"), 0o644))

	key := models.DbgiKey{Path: "/bin/fake-prog"}
	parsed := di.NewParsed()
	parsed.SourceFiles = append(parsed.SourceFiles, srcPath)
	parsed.Units = []di.Unit{{VoffMin: 0x1000, VoffMax: 0x1100, Lines: []di.Line{
		{Voff: 0x1000, FileIdx: 1, Num: 1},
		{Voff: 0x1001, FileIdx: 1, Num: 2},
	}}}
	parsed.Procs = []di.Proc{{VoffMin: 0x1000, VoffMax: 0x1100, Name: "fake_main"}}
	e.dbgi.Put(key, parsed)
	return key, srcPath
}

func TestSourceAnnotations(t *testing.T) {
	e := newTestEnv(t, nil)
	key, srcPath := synthEnvWithSource(t, e, []string{"int x;", "int y;", "int z;"})

	hash := e.store.SubmitData(models.Hash{}, nil, nopNopRet)
	params := plainParams(0x1000, models.StyleSourceFilesNames|models.StyleSourceLines)
	params.DbgiKey = key

	info := e.pollInfo(t, hash, params)
	want := "> " + srcPath + "\n> int x;\nnop\n> int y;\nnop\nret"
	require.Equal(t, want, e.textOf(t, info))

	// pseudo-instructions carry zero code offsets; real offsets stay
	// strictly increasing
	require.Len(t, info.Insts, 6)
	var real []uint64
	for i, inst := range info.Insts {
		switch i {
		case 0, 1, 3:
			require.Zero(t, inst.CodeOff, "pseudo inst %d", i)
		default:
			real = append(real, inst.CodeOff)
		}
	}
	require.Equal(t, []uint64{0, 1, 2}, real)
}

func TestAddressIndentWithDebugInfo(t *testing.T) {
	e := newTestEnv(t, nil)
	key, _ := synthEnvWithSource(t, e, []string{"int x;"})
	hash := e.store.SubmitData(models.Hash{}, nil, []byte{0xC3})
	params := plainParams(0x1000, models.StyleAddresses)
	params.DbgiKey = key
	info := e.pollInfo(t, hash, params)
	text := e.textOf(t, info)
	require.True(t, strings.HasPrefix(text, "    0000000000001000  ret"),
		"expected extra indent with debug info, got %q", text)
}

func TestSymbolNames(t *testing.T) {
	e := newTestEnv(t, nil)
	key, _ := synthEnvWithSource(t, e, []string{"int x;"})
	// jmp +2 lands at 0x1004, inside fake_main's range
	code := []byte{0xEB, 0x02, 0x90, 0x90, 0x90}
	hash := e.store.SubmitData(models.Hash{}, nil, code)
	params := plainParams(0x1000, models.StyleSymbolNames)
	params.DbgiKey = key
	info := e.pollInfo(t, hash, params)
	text := e.textOf(t, info)
	first := strings.Split(text, "\n")[0]
	require.Contains(t, first, "(fake_main)")
	require.True(t, strings.HasPrefix(first, "jmp"), "got %q", first)
}

func TestTextRoundTrip(t *testing.T) {
	e := newTestEnv(t, nil)
	key, _ := synthEnvWithSource(t, e, []string{"int x;", "int y;", "int z;"})
	hash := e.store.SubmitData(models.Hash{}, nil, nopNopRet)
	params := plainParams(0x1000,
		models.StyleAddresses|models.StyleCodeBytes|
			models.StyleSourceFilesNames|models.StyleSourceLines)
	params.DbgiKey = key
	info := e.pollInfo(t, hash, params)
	text := e.textOf(t, info)

	// every inst record's text range must slice out exactly its line
	lines := strings.Split(text, "\n")
	require.Equal(t, len(lines), len(info.Insts))
	for i, inst := range info.Insts {
		require.Equal(t, lines[i], text[inst.TextRange.Base:inst.TextRange.End],
			"inst %d range mismatch", i)
	}
}

func TestStableTextKey(t *testing.T) {
	e := newTestEnv(t, nil)
	hash := e.store.SubmitData(models.Hash{}, nil, nopNopRet)
	params := plainParams(0x1000, models.StyleAddresses)
	first := e.pollInfo(t, hash, params)

	load, _, _, _ := e.nodeStats(hash, params)
	// force a re-decode of the same identity
	require.True(t, e.c.u2pEnqueue(hash, params, time.Time{}))
	e2deadline := load + 1
	e.advance(t, func() bool {
		now, _, _, _ := e.nodeStats(hash, params)
		return now >= e2deadline
	})
	second := e.pollInfo(t, hash, params)
	require.Equal(t, first.TextKey, second.TextKey, "text key must be deterministic")
	require.Equal(t, first.Insts, second.Insts)
}

func TestEmptyDataPublishesEmptyInfo(t *testing.T) {
	e := newTestEnv(t, nil)
	// hash with no blob behind it
	hash := models.Hash{Lo: 0xdead, Hi: 0xbeef}
	params := plainParams(0x1000, 0)
	info := e.pollInfo(t, hash, params)
	require.Empty(t, info.Insts)
	load, _, _, ok := e.nodeStats(hash, params)
	require.True(t, ok)
	require.GreaterOrEqual(t, load, uint64(1))
}
