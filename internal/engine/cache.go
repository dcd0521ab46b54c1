package engine

import (
	"container/list"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/pierrec/lz4/v4"
)

// DefaultCacheEntries is the default evaluation cache capacity.
const DefaultCacheEntries = 100_000

// cacheFilePerm is the permission for persisted cache files.
const cacheFilePerm = 0o600

// Cache is an LRU map from (position, depth, multipv) to ranked lines.
// Identical positions recur constantly during line building; caching them
// avoids re-querying the engine for work it has already done.
type Cache struct {
	mu      sync.Mutex
	maxSize int
	order   *list.List // Front = most recently used.
	entries map[string]*list.Element

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheEntry struct {
	key   string
	lines []Line
}

// NewCache creates an evaluation cache holding at most maxSize entries.
func NewCache(maxSize int) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultCacheEntries
	}

	return &Cache{
		maxSize: maxSize,
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

// cacheKey builds the lookup key for a query.
func cacheKey(fen string, depth, multiPV int) string {
	return fen + "|" + strconv.Itoa(depth) + "|" + strconv.Itoa(multiPV)
}

// Get returns the cached lines for a query, if present.
func (c *Cache) Get(fen string, depth, multiPV int) ([]Line, bool) {
	key := cacheKey(fen, depth, multiPV)

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses.Add(1)

		return nil, false
	}

	c.order.MoveToFront(elem)
	c.hits.Add(1)

	entry, _ := elem.Value.(*cacheEntry)

	return entry.lines, true
}

// Put stores lines for a query, evicting the least recently used entry when
// the cache is full.
func (c *Cache) Put(fen string, depth, multiPV int, lines []Line) {
	key := cacheKey(fen, depth, multiPV)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.order.MoveToFront(elem)

		entry, _ := elem.Value.(*cacheEntry)
		entry.lines = lines

		return
	}

	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, lines: lines})

	for c.order.Len() > c.maxSize {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}

		entry, _ := oldest.Value.(*cacheEntry)
		delete(c.entries, entry.key)
		c.order.Remove(oldest)
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.order.Len()
}

// Stats returns cumulative hit and miss counts.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// persistedCache is the on-disk form: entries in most-recent-first order.
type persistedCache struct {
	Keys  []string
	Lines [][]Line
}

// Save writes the cache to path as an lz4-compressed gob stream, using a
// temp-file-then-rename so a crash never leaves a truncated cache behind.
func (c *Cache) Save(path string) error {
	c.mu.Lock()

	snap := persistedCache{
		Keys:  make([]string, 0, c.order.Len()),
		Lines: make([][]Line, 0, c.order.Len()),
	}

	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		entry, _ := elem.Value.(*cacheEntry)
		snap.Keys = append(snap.Keys, entry.key)
		snap.Lines = append(snap.Lines, entry.lines)
	}

	c.mu.Unlock()

	tmp, err := os.CreateTemp(filepath.Dir(path), ".evalcache-*")
	if err != nil {
		return fmt.Errorf("create cache temp file: %w", err)
	}

	zw := lz4.NewWriter(tmp)

	encodeErr := gob.NewEncoder(zw).Encode(snap)
	if encodeErr == nil {
		encodeErr = zw.Close()
	}

	if encodeErr == nil {
		encodeErr = tmp.Close()
	}

	if encodeErr != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("encode cache: %w", encodeErr)
	}

	chmodErr := os.Chmod(tmp.Name(), cacheFilePerm)
	if chmodErr != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("chmod cache: %w", chmodErr)
	}

	renameErr := os.Rename(tmp.Name(), path)
	if renameErr != nil {
		_ = os.Remove(tmp.Name())

		return fmt.Errorf("replace cache: %w", renameErr)
	}

	return nil
}

// Load restores entries from a previously saved cache file. A missing file
// is not an error; the cache simply starts cold.
func (c *Cache) Load(path string) error {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("open cache file: %w", err)
	}
	defer file.Close()

	var snap persistedCache

	decodeErr := gob.NewDecoder(lz4.NewReader(file)).Decode(&snap)
	if decodeErr != nil {
		return fmt.Errorf("decode cache: %w", decodeErr)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Insert in reverse so the persisted most-recent entry ends up in front.
	for i := len(snap.Keys) - 1; i >= 0; i-- {
		if _, ok := c.entries[snap.Keys[i]]; ok {
			continue
		}

		c.entries[snap.Keys[i]] = c.order.PushFront(&cacheEntry{key: snap.Keys[i], lines: snap.Lines[i]})
	}

	return nil
}

// Cached wraps an Evaluator with the cache. Queries hit the inner evaluator
// only on a miss. The wrapper inherits the inner evaluator's single-caller
// discipline unless the cache is shared read-mostly across workers.
type Cached struct {
	Inner Evaluator
	Cache *Cache
}

// Analyze implements Evaluator with cache lookups.
func (c *Cached) Analyze(ctx context.Context, fen string, depth, multiPV int) ([]Line, error) {
	if lines, ok := c.Cache.Get(fen, depth, multiPV); ok {
		return lines, nil
	}

	lines, err := c.Inner.Analyze(ctx, fen, depth, multiPV)
	if err != nil {
		return nil, err
	}

	c.Cache.Put(fen, depth, multiPV, lines)

	return lines, nil
}

// Close closes the inner evaluator.
func (c *Cached) Close() error { return c.Inner.Close() }
