package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MediaCache is a content-addressed image store: files are named by the hash
// of their bytes, so identical images referenced from many pages are stored
// exactly once.
type MediaCache struct {
	dir string
}

// NewMediaCache creates the cache directory if needed.
func NewMediaCache(dir string) (*MediaCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create media dir: %w", err)
	}
	return &MediaCache{dir: dir}, nil
}

// Put stores data under its content hash. The returned name is
// "<hash><ext>"; created reports whether a new file was written.
func (c *MediaCache) Put(data []byte, ext string) (name string, created bool, err error) {
	sum := sha256.Sum256(data)
	name = hex.EncodeToString(sum[:]) + normalizeExt(ext)
	path := filepath.Join(c.dir, name)

	if _, statErr := os.Stat(path); statErr == nil {
		return name, false, nil
	}

	tmp, err := os.CreateTemp(c.dir, ".media-*")
	if err != nil {
		return "", false, fmt.Errorf("create temp media file: %w", err)
	}
	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", false, fmt.Errorf("write media file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", false, fmt.Errorf("close media file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", false, fmt.Errorf("rename media file: %w", err)
	}
	return name, true, nil
}

// Path returns the absolute path for a cache file name. Names containing
// path separators are rejected with an empty result.
func (c *MediaCache) Path(name string) string {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return ""
	}
	return filepath.Join(c.dir, name)
}

// Dir exposes the cache directory for serving.
func (c *MediaCache) Dir() string { return c.dir }

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ".bin"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
