package cache

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FileStore keeps each record in its own file under a data directory. Reads
// and writes are synchronous so that a record is durable before the calling
// mutation reports success.
type FileStore struct {
	mu  sync.Mutex
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

func (f *FileStore) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path(key))
	if err != nil {
		return "", false
	}
	return string(data), true
}

func (f *FileStore) Set(key string, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Write-then-rename keeps the previous record intact if the process
	// dies mid-write.
	target := f.path(key)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, []byte(value), 0o644); err != nil {
		log.Printf("[cache] WARN: failed to write %s: %v", key, err)
		return
	}
	if err := os.Rename(tmp, target); err != nil {
		log.Printf("[cache] WARN: failed to replace %s: %v", key, err)
	}
}

func (f *FileStore) Delete(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
		log.Printf("[cache] WARN: failed to delete %s: %v", key, err)
	}
}

func (f *FileStore) path(key string) string {
	// Keys are internal constants, but sanitize anyway so a bad key can
	// never escape the data dir.
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, key)
	return filepath.Join(f.dir, safe+".json")
}
