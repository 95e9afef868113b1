package source

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func collectWalk(t *testing.T, src CrawlSource) map[string]File {
	t.Helper()
	found := make(map[string]File)
	err := Walk(src, func(f File) error {
		found[f.FileName] = f
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	return found
}

func TestWalkFiltersByFileType(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.pdf"), "pdf bytes")
	writeFile(t, filepath.Join(dir, "b.txt"), "text")
	writeFile(t, filepath.Join(dir, "c.exe"), "binary")

	found := collectWalk(t, CrawlSource{ID: "s", Path: dir, Recursive: true, FileTypes: []string{"pdf", "txt"}})
	if len(found) != 2 {
		t.Fatalf("found %d files, want 2: %v", len(found), found)
	}
	if _, ok := found["c.exe"]; ok {
		t.Error("c.exe should have been filtered out")
	}
	if found["a.pdf"].FileType != "pdf" {
		t.Errorf("FileType = %q", found["a.pdf"].FileType)
	}
}

func TestWalkExcludePatterns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "keep.txt"), "keep")
	writeFile(t, filepath.Join(dir, "archive", "old.txt"), "old")
	writeFile(t, filepath.Join(dir, "draft.tmp"), "tmp")

	found := collectWalk(t, CrawlSource{
		ID: "s", Path: dir, Recursive: true,
		ExcludePatterns: []string{"archive/**", "*.tmp"},
	})
	if len(found) != 1 {
		t.Fatalf("found %d files, want 1: %v", len(found), found)
	}
	if _, ok := found["keep.txt"]; !ok {
		t.Error("keep.txt missing")
	}
}

func TestWalkNonRecursive(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "top.txt"), "top")
	writeFile(t, filepath.Join(dir, "sub", "nested.txt"), "nested")

	found := collectWalk(t, CrawlSource{ID: "s", Path: dir, Recursive: false})
	if len(found) != 1 {
		t.Fatalf("found %d files, want 1: %v", len(found), found)
	}
	if _, ok := found["top.txt"]; !ok {
		t.Error("top.txt missing")
	}
}

func TestWalkMaxDepth(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "l1.txt"), "1")
	writeFile(t, filepath.Join(dir, "a", "l2.txt"), "2")
	writeFile(t, filepath.Join(dir, "a", "b", "l3.txt"), "3")

	found := collectWalk(t, CrawlSource{ID: "s", Path: dir, Recursive: true, MaxDepth: 1})
	if _, ok := found["l3.txt"]; ok {
		t.Errorf("l3.txt beyond max depth should be skipped: %v", found)
	}
	if _, ok := found["l2.txt"]; !ok {
		t.Errorf("l2.txt at depth boundary missing: %v", found)
	}
}

func TestWalkSkipsDefaultDirs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "ok.txt"), "ok")
	writeFile(t, filepath.Join(dir, ".git", "config.txt"), "git")
	writeFile(t, filepath.Join(dir, "node_modules", "pkg.txt"), "dep")

	found := collectWalk(t, CrawlSource{ID: "s", Path: dir, Recursive: true})
	if len(found) != 1 {
		t.Fatalf("found %d files, want 1: %v", len(found), found)
	}
}

func TestWalkHashesContent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "same1.txt"), "identical")
	writeFile(t, filepath.Join(dir, "same2.txt"), "identical")
	writeFile(t, filepath.Join(dir, "diff.txt"), "different")

	found := collectWalk(t, CrawlSource{ID: "s", Path: dir, Recursive: true})
	if found["same1.txt"].FileHash != found["same2.txt"].FileHash {
		t.Error("identical content produced different hashes")
	}
	if found["same1.txt"].FileHash == found["diff.txt"].FileHash {
		t.Error("different content produced the same hash")
	}
	if found["same1.txt"].FileSize != int64(len("identical")) {
		t.Errorf("FileSize = %d", found["same1.txt"].FileSize)
	}
}
