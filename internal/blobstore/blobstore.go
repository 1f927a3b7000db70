// Package blobstore persists uploaded files under a date-sharded,
// content-addressed layout and detects duplicate uploads by hash.
package blobstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// PutResult is the outcome of storing one blob.
type PutResult struct {
	Path      string
	Hash      string
	Size      int64
	Duplicate bool
}

// PutOptions controls how Put stores a blob.
type PutOptions struct {
	CheckDuplicate bool
	UseHashName    bool
}

// Store is a content-addressed, date-sharded file store rooted at BaseDir.
// It keeps an in-memory hash->path index, filled as blobs are written or
// found by a scan, so that repeat lookups of a known hash are O(1).
type Store struct {
	baseDir string

	mu    sync.Mutex
	index map[string]string // hash -> path
}

// New creates a Store rooted at baseDir, creating the directory if needed.
func New(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create base dir: %w", err)
	}
	return &Store{baseDir: baseDir, index: make(map[string]string)}, nil
}

// Put stores content under filename, sharded by today's date. When
// opts.CheckDuplicate is set and a blob with the same content hash already
// exists, the existing path is returned with Duplicate=true and nothing new
// is written.
func (s *Store) Put(content []byte, filename string, opts PutOptions) (PutResult, error) {
	hash := hashContent(content)
	size := int64(len(content))

	if opts.CheckDuplicate {
		if existing, ok := s.findByHash(hash); ok {
			return PutResult{Path: existing, Hash: hash, Size: size, Duplicate: true}, nil
		}
	}

	name := filename
	if opts.UseHashName {
		name = hash + filepath.Ext(filename)
	}
	if name == "" {
		name = hash + ".bin"
	}

	dir := s.shardDir(time.Now())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return PutResult{}, fmt.Errorf("blobstore: create shard dir: %w", err)
	}

	path := s.resolveCollision(filepath.Join(dir, name))
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return PutResult{}, fmt.Errorf("blobstore: write file: %w", err)
	}

	s.mu.Lock()
	s.index[hash] = path
	s.mu.Unlock()

	return PutResult{Path: path, Hash: hash, Size: size, Duplicate: false}, nil
}

// Delete removes the blob at path. A missing file is not an error.
func (s *Store) Delete(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blobstore: delete: %w", err)
	}
	return nil
}

// findByHash looks up hash in the in-memory index and, on a miss, falls back
// to a shard walk (so blobs written by an earlier process are still found),
// caching whatever the walk finds.
func (s *Store) findByHash(hash string) (string, bool) {
	s.mu.Lock()
	if path, ok := s.index[hash]; ok {
		s.mu.Unlock()
		return path, true
	}
	s.mu.Unlock()

	found, err := s.scanForHash(hash)
	if err != nil || found == "" {
		return "", false
	}
	s.mu.Lock()
	s.index[hash] = found
	s.mu.Unlock()
	return found, true
}

// scanForHash walks every date shard under baseDir, hashing candidates until
// it finds one matching hash. Expensive but correct: the documented
// fallback when the in-memory index is cold.
func (s *Store) scanForHash(hash string) (string, error) {
	var found string
	err := filepath.Walk(s.baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || info.IsDir() {
			return nil
		}
		if strings.Contains(info.Name(), hash) {
			found = path
			return io.EOF
		}
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		if hashContent(content) == hash {
			found = path
			return io.EOF
		}
		return nil
	})
	if err != nil && err != io.EOF {
		return "", err
	}
	return found, nil
}

func (s *Store) shardDir(t time.Time) string {
	return filepath.Join(s.baseDir, t.Format("2006"), t.Format("01"), t.Format("02"))
}

// resolveCollision appends a numeric suffix until path does not exist.
func (s *Store) resolveCollision(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	for i := 1; ; i++ {
		candidate := base + "_" + strconv.Itoa(i) + ext
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}
}

func hashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
