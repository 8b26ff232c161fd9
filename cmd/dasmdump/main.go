package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/mgutz/ansi"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/lunixbochs/dasmcache/dasm"
	"github.com/lunixbochs/dasmcache/di"
	"github.com/lunixbochs/dasmcache/fsw"
	"github.com/lunixbochs/dasmcache/hs"
	"github.com/lunixbochs/dasmcache/models"
	"github.com/lunixbochs/dasmcache/txt"
)

type stackTracer interface {
	StackTrace() errors.StackTrace
}

func printError(err error) {
	fmt.Fprintf(os.Stderr, "%s\n", strings.Repeat("-", 40))
	fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	if err, ok := err.(stackTracer); ok {
		for _, frame := range err.StackTrace() {
			fmt.Fprintf(os.Stderr, "%+v\n", frame)
		}
	}
}

func run() error {
	fs := pflag.NewFlagSet("dasmdump", pflag.ExitOnError)
	archName := fs.StringP("arch", "a", "x64", "decode arch (x86, x64)")
	att := fs.Bool("att", false, "AT&T syntax instead of Intel")
	addr := fs.Uint64("addr", 0x1000, "virtual address of the first byte")
	base := fs.Uint64("base", 0, "image base for debug-info offsets")
	dbgi := fs.String("dbgi", "", "debug-info artifact (ELF with DWARF)")
	hexIn := fs.Bool("hex", false, "input file holds hex text, not raw bytes")
	noAddr := fs.Bool("no-addr", false, "omit the address column")
	showBytes := fs.Bool("bytes", false, "show instruction code bytes")
	src := fs.Bool("src", false, "interleave source files and lines")
	sym := fs.Bool("sym", false, "annotate jump targets with symbol names")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: dasmdump [options] <input>\n")
		fs.PrintDefaults()
	}
	fs.Parse(os.Args[1:])
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(2)
	}

	arch := models.ArchFromString(*archName)
	if arch == models.ArchNone {
		return errors.Errorf("unknown arch %q", *archName)
	}
	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return errors.Wrap(err, "read input")
	}
	if *hexIn {
		data, err = hex.DecodeString(strings.Join(strings.Fields(string(data)), ""))
		if err != nil {
			return errors.Wrap(err, "decode hex input")
		}
	}

	store := hs.NewStore()
	change, err := fsw.New()
	if err != nil {
		return err
	}
	defer change.Close()
	if *dbgi != "" {
		// watch the artifact so edits trigger re-decode while polling
		change.Add(*dbgi)
	}
	cache, err := dasm.Init(dasm.Config{
		Store:   store,
		DbgInfo: di.NewCache(),
		Text:    txt.NewCache(store),
		Change:  change,
	})
	if err != nil {
		return err
	}

	hash := store.SubmitData(models.Hash{}, nil, data)
	style := models.StyleFlags(0)
	if !*noAddr {
		style |= models.StyleAddresses
	}
	if *showBytes {
		style |= models.StyleCodeBytes
	}
	if *src {
		style |= models.StyleSourceFilesNames | models.StyleSourceLines
	}
	if *sym {
		style |= models.StyleSymbolNames
	}
	syntax := models.SyntaxIntel
	if *att {
		syntax = models.SyntaxATT
	}
	params := &models.Params{
		VAddr:      *addr,
		Arch:       arch,
		StyleFlags: style,
		Syntax:     syntax,
		BaseVAddr:  *base,
		DbgiKey:    models.DbgiKey{Path: *dbgi},
	}

	// first call misses and enqueues; poll until the worker publishes
	var info models.Info
	deadline := time.Now().Add(10 * time.Second)
	for {
		scope := cache.ScopeOpen()
		info = cache.InfoFromHashParams(scope, hash, params)
		if len(info.Insts) > 0 {
			err = dump(store, info)
			scope.Close()
			return err
		}
		scope.Close()
		cache.UserClockTick()
		if time.Now().After(deadline) {
			return errors.New("decode timed out")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func dump(store *hs.Store, info models.Info) error {
	scope := store.ScopeOpen()
	defer scope.Close()
	textHash := store.HashFromKey(info.TextKey, 0)
	text := store.DataFromHash(scope, textHash)
	if text == nil {
		return errors.New("text blob missing from hash store")
	}
	var out io.Writer = os.Stdout
	color := isatty.IsTerminal(os.Stdout.Fd())
	if color {
		out = colorable.NewColorableStdout()
	}
	for _, line := range strings.Split(string(text), "\n") {
		if color && strings.HasPrefix(line, ">") {
			fmt.Fprintln(out, ansi.Color(line, "green"))
		} else {
			fmt.Fprintln(out, line)
		}
	}
	return nil
}

func main() {
	if err := run(); err != nil {
		printError(err)
		os.Exit(1)
	}
}
