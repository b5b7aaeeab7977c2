package state

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileBackendMissing(t *testing.T) {
	b := NewFileBackend(filepath.Join(t.TempDir(), "state.json"))
	if _, err := b.Read(context.Background()); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("Read on missing file: %v", err)
	}
}

func TestFileBackendWriteReplaces(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b := NewFileBackend(filepath.Join(dir, "sub", "state.json"))

	if err := b.Write(ctx, []byte("first")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := b.Write(ctx, []byte("second")); err != nil {
		t.Fatalf("second write: %v", err)
	}
	got, err := b.Read(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "second" {
		t.Fatalf("Read = %q, want second", got)
	}

	info, err := os.Stat(b.Path())
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("snapshot mode = %v, want 0600", perm)
	}

	entries, err := os.ReadDir(filepath.Dir(b.Path()))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}
