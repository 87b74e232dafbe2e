package program_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/crestkit/crestctl/internal/program"
)

func writeFile(t *testing.T, path string, content string, mtime time.Time) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
}

func TestFindCandidatesRecursiveGlob(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	writeFile(t, filepath.Join(root, "build", "room.lpz"), "a", now.Add(-time.Hour))
	writeFile(t, filepath.Join(root, "old", "deep", "legacy.cpz"), "b", now.Add(-2*time.Hour))
	writeFile(t, filepath.Join(root, "notes.txt"), "c", now)

	got, err := program.FindCandidates(root, []string{"**/*.lpz", "**/*.cpz"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("found %d candidates, want 2: %+v", len(got), got)
	}
	if filepath.Base(got[0].Path) != "room.lpz" {
		t.Fatalf("newest first ordering broken: %+v", got)
	}
}

func TestFindCandidatesDeduplicates(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "x.lpz"), "a", time.Now())

	got, err := program.FindCandidates(root, []string{"**/*.lpz", "*.lpz"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("overlapping patterns must deduplicate, got %d", len(got))
	}
}

func TestNewest(t *testing.T) {
	root := t.TempDir()
	now := time.Now()
	writeFile(t, filepath.Join(root, "old.lpz"), "a", now.Add(-time.Hour))
	writeFile(t, filepath.Join(root, "new.lpz"), "b", now)

	best, err := program.Newest(root, []string{"**/*.lpz"})
	if err != nil {
		t.Fatalf("newest: %v", err)
	}
	if filepath.Base(best.Path) != "new.lpz" {
		t.Fatalf("Newest = %s", best.Path)
	}
}

func TestNewestNoMatches(t *testing.T) {
	if _, err := program.Newest(t.TempDir(), []string{"**/*.lpz"}); err == nil {
		t.Fatal("no matches must be an error")
	}
}

func TestDigest(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "x.lpz")
	writeFile(t, path, "hello", time.Now())

	got, err := program.Digest(path)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	// sha256("hello")
	want := "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got != want {
		t.Fatalf("Digest = %s, want %s", got, want)
	}
}
