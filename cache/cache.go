package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Store is a file backed page cache. Entries live in <dir>/<namespace>/ and
// expire maxAge after they were written; they are never invalidated on write.
type Store struct {
	dir    string
	maxAge time.Duration
}

func NewStore(dir string, maxAge time.Duration) *Store {
	return &Store{dir: dir, maxAge: maxAge}
}

func (s *Store) MaxAge() time.Duration {
	return s.maxAge
}

// GetCachePath returns the cache file path for a key inside a namespace
func (s *Store) GetCachePath(namespace, key string) string {
	hash := generateHash(namespace + key)
	return filepath.Join(s.dir, namespace, hash+".html")
}

// generateHash generates an xxHash hash for the given string
func generateHash(s string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))
}

// Write stores content atomically so concurrent readers never see a partial page.
func (s *Store) Write(namespace, key string, content []byte) error {
	cacheDir := filepath.Join(s.dir, namespace)
	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(cacheDir, "tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.GetCachePath(namespace, key))
}

// Read returns the cached content if it exists and is not expired
func (s *Store) Read(namespace, key string) ([]byte, bool) {
	cachePath := s.GetCachePath(namespace, key)

	info, err := os.Stat(cachePath)
	if err != nil {
		return nil, false
	}

	if time.Since(info.ModTime()) > s.maxAge {
		return nil, false
	}

	content, err := os.ReadFile(cachePath)
	if err != nil {
		return nil, false
	}

	return content, true
}

// Remove deletes a single entry.
func (s *Store) Remove(namespace, key string) error {
	err := os.Remove(s.GetCachePath(namespace, key))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) ClearNamespace(namespace string) error {
	return os.RemoveAll(filepath.Join(s.dir, namespace))
}

func (s *Store) Clear() error {
	return os.RemoveAll(s.dir)
}

// ClearExpired removes entries older than maxAge
func (s *Store) ClearExpired() error {
	err := filepath.Walk(s.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".html") {
			return nil
		}
		if time.Since(info.ModTime()) > s.maxAge {
			os.Remove(path)
		}
		return nil
	})
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
