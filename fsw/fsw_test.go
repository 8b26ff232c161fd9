package fsw

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBump(t *testing.T) {
	w, err := New()
	if err != nil {
		t.Skipf("no watcher backend: %v", err)
	}
	defer w.Close()
	if w.ChangeGen() != 0 {
		t.Fatal("fresh watcher generation not 0")
	}
	w.Bump()
	w.Bump()
	if w.ChangeGen() != 2 {
		t.Fatalf("generation %d after two bumps", w.ChangeGen())
	}
}

func TestFileEventAdvancesGen(t *testing.T) {
	w, err := New()
	if err != nil {
		t.Skipf("no watcher backend: %v", err)
	}
	defer w.Close()
	dir := t.TempDir()
	if err := w.Add(dir); err != nil {
		t.Fatal(err)
	}
	before := w.ChangeGen()
	if err := os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for w.ChangeGen() == before {
		if time.Now().After(deadline) {
			t.Fatal("generation never advanced after file write")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
