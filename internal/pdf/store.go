package pdf

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Store is a content-addressed file cache for downloaded documents. Paths are
// derived from the SHA-256 of the source URL, so the same URL always maps to
// the same path and concurrent jobs fetching the same paper converge on one
// cached copy.
type Store struct {
	baseDir string
}

// NewStore creates a Store rooted at baseDir, creating the directory if
// needed.
func NewStore(baseDir string) (*Store, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("pdf store: base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("pdf store: creating base directory: %w", err)
	}
	return &Store{baseDir: baseDir}, nil
}

// PathFor returns the cache path for a source URL without touching the
// filesystem.
func (s *Store) PathFor(sourceURL string) string {
	sum := sha256.Sum256([]byte(sourceURL))
	name := hex.EncodeToString(sum[:])
	// Two-level fan-out keeps directory sizes manageable.
	return filepath.Join(s.baseDir, name[:2], name+".pdf")
}

// Exists reports whether a cached copy for the source URL is present.
func (s *Store) Exists(sourceURL string) bool {
	info, err := os.Stat(s.PathFor(sourceURL))
	return err == nil && !info.IsDir()
}

// Put writes content for the source URL and returns the cache path. The write
// goes through a temp file and rename so readers never observe a partial
// file.
func (s *Store) Put(sourceURL string, content []byte) (string, error) {
	path := s.PathFor(sourceURL)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("pdf store: creating shard directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("pdf store: creating temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("pdf store: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("pdf store: closing temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("pdf store: renaming temp file: %w", err)
	}

	return path, nil
}

// Read returns the cached content for the source URL.
func (s *Store) Read(sourceURL string) ([]byte, error) {
	content, err := os.ReadFile(s.PathFor(sourceURL))
	if err != nil {
		return nil, fmt.Errorf("pdf store: reading cached file: %w", err)
	}
	return content, nil
}
