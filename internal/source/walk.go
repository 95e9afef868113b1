package source

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultExcludeDirs are directory names skipped during every walk.
var DefaultExcludeDirs = []string{
	".git",
	"node_modules",
	"vendor",
	"__pycache__",
	".quarry",
	"dist",
	"build",
	".venv",
	".idea",
	".vscode",
	".DS_Store",
}

// Walk traverses a crawl source's directory and invokes fn for every
// file that passes its filters. The File carries a SHA-256 content
// hash so the caller can detect changes. fn returning an error stops
// the walk.
func Walk(src CrawlSource, fn func(f File) error) error {
	root, err := filepath.Abs(src.Path)
	if err != nil {
		return fmt.Errorf("resolving source path: %w", err)
	}

	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Unreadable entries are skipped, not fatal.
			return nil
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			if shouldExcludeDir(d.Name()) {
				return filepath.SkipDir
			}
			if !src.Recursive {
				return filepath.SkipDir
			}
			// MaxDepth counts subdirectory levels below the root.
			if src.MaxDepth > 0 && depthOf(root, path) > src.MaxDepth {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if !matchesFileType(path, src.FileTypes) {
			return nil
		}
		if matchesAny(relPath, src.ExcludePatterns) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		hash, err := hashFile(path)
		if err != nil {
			return nil
		}

		modified := info.ModTime().UTC()
		return fn(File{
			SourceID:     src.ID,
			FilePath:     path,
			FileName:     d.Name(),
			FileType:     strings.TrimPrefix(filepath.Ext(path), "."),
			FileSize:     info.Size(),
			FileHash:     hash,
			FileModified: &modified,
		})
	})
}

func shouldExcludeDir(name string) bool {
	for _, excl := range DefaultExcludeDirs {
		if strings.EqualFold(name, excl) {
			return true
		}
	}
	return false
}

func depthOf(root, path string) int {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return 0
	}
	return len(strings.Split(filepath.ToSlash(rel), "/"))
}

// matchesFileType checks a path's extension against the source's
// allowed types. An empty list allows everything.
func matchesFileType(path string, fileTypes []string) bool {
	if len(fileTypes) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, t := range fileTypes {
		if strings.EqualFold(strings.TrimPrefix(t, "."), ext) {
			return true
		}
	}
	return false
}

// matchesAny checks relPath against glob patterns, with ** support.
// Patterns are also tried against the bare filename so "*.tmp" works
// without a leading **/.
func matchesAny(relPath string, patterns []string) bool {
	normalized := filepath.ToSlash(relPath)
	for _, pattern := range patterns {
		pattern = filepath.ToSlash(pattern)
		if matched, err := doublestar.PathMatch(pattern, normalized); err == nil && matched {
			return true
		}
		if matched, err := doublestar.PathMatch(pattern, filepath.Base(normalized)); err == nil && matched {
			return true
		}
	}
	return false
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
