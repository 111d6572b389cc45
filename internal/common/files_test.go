package common

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
)

func TestSha256OfFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.mp4")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	sum, size, err := Sha256OfFile(path)
	if err != nil {
		t.Fatalf("Sha256OfFile: %v", err)
	}
	if size != 3 {
		t.Fatalf("size = %d, want 3", size)
	}
	const want = "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if sum != want {
		t.Fatalf("sum = %s, want %s", sum, want)
	}
	h := NewHasher()
	h.Write([]byte("abc"))
	if h.Sum() != want {
		t.Fatalf("hasher sum = %s", h.Sum())
	}
}

func TestSpoolHashesWhileCopying(t *testing.T) {
	dir := t.TempDir()
	sp, err := Spool(dir, "upload-*.mp4", strings.NewReader("abc"))
	if err != nil {
		t.Fatalf("Spool: %v", err)
	}
	if sp.Size != 3 || sp.SHA256 != "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad" {
		t.Fatalf("unexpected spool result: %+v", sp)
	}
	if filepath.Dir(sp.Path) != dir || filepath.Ext(sp.Path) != ".mp4" {
		t.Fatalf("spooled to %s", sp.Path)
	}
	data, err := os.ReadFile(sp.Path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "abc" {
		t.Fatalf("content = %q", data)
	}
}

func TestSpoolRemovesFileOnReadError(t *testing.T) {
	dir := t.TempDir()
	if _, err := Spool(dir, "upload-*", iotest.ErrReader(errors.New("boom"))); err == nil {
		t.Fatalf("expected error")
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("left %d files behind", len(entries))
	}
}
