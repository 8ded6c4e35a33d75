package fsutil

import (
	"bytes"
	"os"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of template files kept in memory.
const DefaultCacheSize = 4096

// ContentCache reads files once and serves later reads from memory. Every
// variant of a module reads the same templates, so this turns N reads per
// template into one. It is safe for concurrent use.
type ContentCache struct {
	entries *lru.Cache[string, []byte]
}

// NewContentCache creates a cache holding up to size files.
func NewContentCache(size int) (*ContentCache, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	entries, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &ContentCache{entries: entries}, nil
}

// ReadFile returns a private copy of the file's content.
func (c *ContentCache) ReadFile(path string) ([]byte, error) {
	if data, ok := c.entries.Get(path); ok {
		return bytes.Clone(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c.entries.Add(path, data)
	return bytes.Clone(data), nil
}

// Len returns the number of cached files.
func (c *ContentCache) Len() int {
	return c.entries.Len()
}
