package cache

import (
	"container/list"
	"sync"

	"asciimap/internal/tile"
)

// DefaultCapacity is the number of decoded tiles kept in memory. It is also
// the upper bound for any TileCache.
const DefaultCapacity = 180

// Entry is one decoded tile. Seq orders entries by insertion.
type Entry struct {
	Key     tile.Key
	Payload tile.Payload
	Seq     uint64
}

// TileCache holds decoded tiles in insertion order and evicts the oldest
// entry once capacity is exceeded. Lookups do not affect eviction order.
type TileCache struct {
	mu       sync.RWMutex
	capacity int
	seq      uint64
	items    map[tile.Key]*list.Element
	fifo     *list.List
}

// NewTileCache creates a cache holding at most capacity entries. Capacities
// outside 1..DefaultCapacity fall back to DefaultCapacity.
func NewTileCache(capacity int) *TileCache {
	if capacity <= 0 || capacity > DefaultCapacity {
		capacity = DefaultCapacity
	}
	return &TileCache{
		capacity: capacity,
		items:    make(map[tile.Key]*list.Element),
		fifo:     list.New(),
	}
}

func (c *TileCache) Contains(key tile.Key) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.items[key]
	return ok
}

func (c *TileCache) Get(key tile.Key) (tile.Payload, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	return elem.Value.(*Entry).Payload, true
}

// Insert adds payload under key. An existing entry is left untouched since
// payloads are immutable once cached. It returns the evicted entry, if any.
func (c *TileCache) Insert(key tile.Key, payload tile.Payload) (evicted *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[key]; ok {
		return nil
	}

	c.seq++
	ent := &Entry{Key: key, Payload: payload, Seq: c.seq}
	c.items[key] = c.fifo.PushBack(ent)

	if c.fifo.Len() > c.capacity {
		oldest := c.fifo.Front()
		evicted = oldest.Value.(*Entry)
		delete(c.items, evicted.Key)
		c.fifo.Remove(oldest)
	}
	return evicted
}

// Snapshot copies the entries, oldest first. The copy stays valid while the
// fetcher keeps inserting.
func (c *TileCache) Snapshot() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, 0, c.fifo.Len())
	for e := c.fifo.Front(); e != nil; e = e.Next() {
		out = append(out, *e.Value.(*Entry))
	}
	return out
}

func (c *TileCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.fifo.Len()
}

func (c *TileCache) Capacity() int { return c.capacity }
