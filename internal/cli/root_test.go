package cli

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := New(io.Discard, LogInfo).RootCommand()

	want := map[string]bool{
		"run":        false,
		"deps":       false,
		"cache":      false,
		"serve":      false,
		"completion": false,
	}
	for _, cmd := range root.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q not registered", name)
		}
	}
	if root.Use != "playbench" {
		t.Errorf("use = %q, want playbench", root.Use)
	}
}

func TestCacheDirRespectsXDG(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", dir)

	got, err := cacheDir()
	if err != nil {
		t.Fatalf("cacheDir: %v", err)
	}
	if got != filepath.Join(dir, "playbench") {
		t.Errorf("cacheDir = %q, want under %q", got, dir)
	}
}

func TestReadSourceFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snippet.rs")
	if err := os.WriteFile(path, []byte("fn main() {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	source, err := readSource(path)
	if err != nil {
		t.Fatalf("readSource: %v", err)
	}
	if source != "fn main() {}\n" {
		t.Errorf("source = %q", source)
	}

	if _, err := readSource(filepath.Join(t.TempDir(), "missing.rs")); err == nil {
		t.Error("expected error for missing file")
	}
}
