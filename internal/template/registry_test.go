package template

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemplate(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("write template %s: %v", name, err)
	}
}

func TestReloadScansAndOrders(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTemplate(t, dir, "zebra.svg", "<svg>z</svg>")
	writeTemplate(t, dir, "alpha.svg", "<svg>a</svg>")
	writeTemplate(t, dir, "notes.txt", "ignored")
	if err := os.Mkdir(filepath.Join(dir, "sub.svg"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	r := New(dir)
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	snap := r.Snapshot()
	names := snap.Names()
	if len(names) != 2 || names[0] != "alpha" || names[1] != "zebra" {
		t.Fatalf("unexpected names: %v", names)
	}

	path, ok := snap.Path("alpha")
	if !ok || path != filepath.Join(dir, "alpha.svg") {
		t.Fatalf("unexpected path for alpha: %q ok=%v", path, ok)
	}
	if _, ok := snap.Path("notes"); ok {
		t.Fatal("non-svg file should not be registered")
	}
}

func TestReloadFailureRetainsPreviousSnapshot(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTemplate(t, dir, "greet.svg", "<svg>{0}</svg>")

	r := New(dir)
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	before := r.Snapshot()
	if before.Len() != 1 {
		t.Fatalf("expected 1 template, got %d", before.Len())
	}

	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("remove dir: %v", err)
	}

	if err := r.Reload(); err == nil {
		t.Fatal("expected reload error for missing directory")
	}

	after := r.Snapshot()
	if after != before {
		t.Fatal("failed reload must retain the previous snapshot")
	}
	if after.Len() != 1 {
		t.Fatalf("snapshot lost entries: %d", after.Len())
	}
}

func TestReloadSkipsSwapWhenUnchanged(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTemplate(t, dir, "greet.svg", "<svg>{0}</svg>")

	r := New(dir)
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload 1: %v", err)
	}
	first := r.Snapshot()

	if err := r.Reload(); err != nil {
		t.Fatalf("Reload 2: %v", err)
	}
	if r.Snapshot() != first {
		t.Fatal("unchanged template set should keep the same snapshot")
	}

	writeTemplate(t, dir, "greet.svg", "<svg>{0}!</svg>")
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload 3: %v", err)
	}
	if r.Snapshot() == first {
		t.Fatal("changed template contents should produce a new snapshot")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeTemplate(t, dir, "one.svg", "<svg>1</svg>")

	r := New(dir)
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	snap := r.Snapshot()

	writeTemplate(t, dir, "two.svg", "<svg>2</svg>")
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	// The old snapshot must be unaffected by the reload.
	if snap.Len() != 1 {
		t.Fatalf("old snapshot mutated: %d entries", snap.Len())
	}
	if r.Snapshot().Len() != 2 {
		t.Fatalf("new snapshot missing entries: %d", r.Snapshot().Len())
	}
}
