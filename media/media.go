package media

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/gabriel-vasile/mimetype"
)

// MaxImageSize bounds the size of an accepted upload.
const MaxImageSize = 10 << 20

// allowedTypes are the raster formats browsers render inert. SVG and other
// scriptable image types are refused.
var allowedTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

var (
	ErrNotImage = errors.New("file is not an image")
	ErrTooLarge = errors.New("image is too large")
)

// Storage keeps uploaded images on local disk below root and serves them at url.
type Storage struct {
	root string
	url  string
}

func NewStorage(root, url string) *Storage {
	return &Storage{root: root, url: strings.TrimRight(url, "/")}
}

func (s *Storage) Root() string {
	return s.root
}

// SaveImage sniffs data, accepts only images and stores them under posts/ with a
// content hash name. It returns the stored name relative to the root.
func (s *Storage) SaveImage(data []byte) (string, error) {
	if len(data) > MaxImageSize {
		return "", ErrTooLarge
	}
	mt := mimetype.Detect(data)
	if !isAllowed(mt) {
		return "", ErrNotImage
	}

	name := path.Join("posts", fmt.Sprintf("%016x%s", xxhash.Sum64(data), mt.Extension()))
	full := filepath.Join(s.root, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		return "", err
	}
	return name, nil
}

// RemoveImage deletes a stored image. A missing file is not an error.
func (s *Storage) RemoveImage(name string) error {
	if name == "" {
		return nil
	}
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(name)))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func isAllowed(mt *mimetype.MIME) bool {
	for _, t := range allowedTypes {
		if mt.Is(t) {
			return true
		}
	}
	return false
}

// URL returns the public address of a stored name, or "" for no image.
func (s *Storage) URL(name string) string {
	if name == "" {
		return ""
	}
	return s.url + "/" + name
}
