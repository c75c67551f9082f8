package fs

import (
	"container/list"
	"fmt"
	"os"
	"strings"
	"sync"
)

// FDCache keeps recently used file descriptors open so consecutive chunks
// of the same upload or download reuse one descriptor.
type FDCache struct {
	maxSize int
	mu      sync.Mutex
	cache   map[string]*list.Element
	lru     *list.List
}

type cacheEntry struct {
	path string
	file *os.File
}

func NewFDCache(maxSize int) *FDCache {
	if maxSize < 1 {
		maxSize = 256
	}
	return &FDCache{
		maxSize: maxSize,
		cache:   make(map[string]*list.Element),
		lru:     list.New(),
	}
}

// Acquire returns the cached descriptor for path, opening it read-write
// when it is not cached yet.
func (c *FDCache) Acquire(path string) (*os.File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, exists := c.cache[path]; exists {
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).file, nil
	}

	file, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}

	if c.lru.Len() >= c.maxSize {
		if err := c.evictLRU(); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("evict LRU: %w", err)
		}
	}

	c.cache[path] = c.lru.PushFront(&cacheEntry{path: path, file: file})
	return file, nil
}

// Remove closes and forgets the descriptor for path, if cached.
func (c *FDCache) Remove(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(path)
}

// RemovePrefix closes every cached descriptor at or below dir.
func (c *FDCache) RemovePrefix(dir string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for path := range c.cache {
		if path == dir || strings.HasPrefix(path, dir+string(os.PathSeparator)) {
			if err := c.removeLocked(path); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (c *FDCache) removeLocked(path string) error {
	elem, exists := c.cache[path]
	if !exists {
		return nil
	}

	c.lru.Remove(elem)
	delete(c.cache, path)

	if err := elem.Value.(*cacheEntry).file.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	return nil
}

func (c *FDCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var firstErr error
	for c.lru.Len() > 0 {
		entry := c.lru.Back().Value.(*cacheEntry)
		if err := c.removeLocked(entry.path); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *FDCache) evictLRU() error {
	elem := c.lru.Back()
	if elem == nil {
		return nil
	}
	return c.removeLocked(elem.Value.(*cacheEntry).path)
}

func (c *FDCache) Stats() (size int, maxSize int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len(), c.maxSize
}
