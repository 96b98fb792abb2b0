// Package mapcache keeps computed mappings on disk, keyed by the spans of
// the two layers that produced them.
//
// A mapping depends only on segment indices and spans, so the key ignores
// text and metadata. Entries are MessagePack files replaced atomically,
// fronted by an in-process LRU of decoded mappings.
package mapcache

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeebo/blake3"

	"github.com/FocuswithJustin/annotransfer/core/align"
	aerrors "github.com/FocuswithJustin/annotransfer/core/errors"
	"github.com/FocuswithJustin/annotransfer/internal/logging"
)

// Current schema version - increment when the payload format changes.
const schemaVersion uint16 = 1

// DefaultMemoryEntries is the size of the in-process tier.
const DefaultMemoryEntries = 128

// Cache is a directory of cached mappings. A nil *Cache is valid: every Get
// misses and every Put is dropped. Safe for concurrent use.
type Cache struct {
	mu  sync.RWMutex
	dir string
	mem *lru[Key, align.Mapping]
}

// Option configures a Cache.
type Option func(*Cache)

// WithMemory sets how many decoded mappings are kept in memory. Zero
// disables the memory tier.
func WithMemory(entries int) Option {
	return func(c *Cache) {
		if entries <= 0 {
			c.mem = nil
			return
		}
		c.mem = newLRU[Key, align.Mapping](entries)
	}
}

// Key identifies a (source, target) layer pair.
type Key [32]byte

// String returns the key as hex.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

type payload struct {
	Schema  uint16        `msgpack:"v"`
	Entries []cachedEntry `msgpack:"e"`
}

type cachedEntry struct {
	Source  int      `msgpack:"s"`
	Targets [][3]int `msgpack:"t"`
}

// Open returns a cache rooted at dir, creating it if needed.
func Open(dir string, opts ...Option) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, aerrors.NewIO("create", dir, err)
	}
	c := &Cache{dir: dir, mem: newLRU[Key, align.Mapping](DefaultMemoryEntries)}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Stats reports the memory tier. It is zero when the tier is disabled.
func (c *Cache) Stats() Stats {
	if c == nil || c.mem == nil {
		return Stats{}
	}
	return c.mem.Stats()
}

// KeyFor hashes the indices and spans of src (in index order) and tgt (in
// store order, which fixes the order of mapped targets).
func KeyFor(src, tgt align.Layer) Key {
	h := blake3.New()
	var buf [8]byte
	writeInt := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(v)))
		h.Write(buf[:])
	}
	writeInt(int(schemaVersion))
	for _, part := range [][]align.Segment{src.Sorted(), tgt.Segments()} {
		writeInt(len(part))
		for _, s := range part {
			writeInt(s.Index)
			writeInt(s.Span.Start)
			writeInt(s.Span.End)
		}
	}
	var k Key
	copy(k[:], h.Sum(nil))
	return k
}

func (c *Cache) pathFor(k Key) string {
	return filepath.Join(c.dir, "mappings", k.String()+".mp")
}

// Get returns the cached mapping for k. The result is never shared with
// other callers.
func (c *Cache) Get(ctx context.Context, k Key) (align.Mapping, bool, error) {
	if c == nil {
		return nil, false, nil
	}
	if c.mem != nil {
		if m, ok := c.mem.Get(k); ok {
			logging.CacheEvent(ctx, "memory_hit", k.String(), "entries", len(m))
			return clone(m), true, nil
		}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(k))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.CacheEvent(ctx, "miss", k.String())
			return nil, false, nil
		}
		return nil, false, aerrors.NewIO("open", c.pathFor(k), err)
	}
	defer f.Close()

	var p payload
	if err := msgpack.NewDecoder(f).Decode(&p); err != nil {
		perr := aerrors.NewParse("msgpack", c.pathFor(k), err.Error())
		perr.Err = err
		return nil, false, perr
	}
	if p.Schema != schemaVersion {
		logging.CacheEvent(ctx, "stale", k.String(), "schema", p.Schema)
		return nil, false, nil
	}

	m := make(align.Mapping, len(p.Entries))
	for i, e := range p.Entries {
		targets := make([]align.Target, len(e.Targets))
		for j, t := range e.Targets {
			targets[j] = align.Target{Index: t[0], Span: align.Span{Start: t[1], End: t[2]}}
		}
		m[i] = align.Entry{Source: e.Source, Targets: targets}
	}
	if c.mem != nil {
		c.mem.Put(k, clone(m))
	}
	logging.CacheEvent(ctx, "hit", k.String(), "entries", len(m))
	return m, true, nil
}

func clone(m align.Mapping) align.Mapping {
	out := make(align.Mapping, len(m))
	for i, e := range m {
		targets := make([]align.Target, len(e.Targets))
		copy(targets, e.Targets)
		out[i] = align.Entry{Source: e.Source, Targets: targets}
	}
	return out
}

// Put stores m under k, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, k Key, m align.Mapping) error {
	if c == nil {
		return nil
	}
	p := payload{Schema: schemaVersion, Entries: make([]cachedEntry, len(m))}
	for i, e := range m {
		ts := make([][3]int, len(e.Targets))
		for j, t := range e.Targets {
			ts[j] = [3]int{t.Index, t.Span.Start, t.Span.End}
		}
		p.Entries[i] = cachedEntry{Source: e.Source, Targets: ts}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	path := c.pathFor(k)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return aerrors.NewIO("create", dir, err)
	}
	f, err := os.CreateTemp(dir, "tmp-*")
	if err != nil {
		return aerrors.NewIO("create temp file in", dir, err)
	}
	tmp := f.Name()
	if err := msgpack.NewEncoder(f).Encode(&p); err != nil {
		f.Close()
		os.Remove(tmp)
		return aerrors.Wrap(err, "failed to encode mapping")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return aerrors.NewIO("close", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return aerrors.NewIO("rename", path, err)
	}
	if c.mem != nil {
		c.mem.Put(k, clone(m))
	}
	logging.CacheEvent(ctx, "put", k.String(), "entries", len(m))
	return nil
}

// Drop removes every cached mapping.
func (c *Cache) Drop(ctx context.Context) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	dir := filepath.Join(c.dir, "mappings")
	if err := os.RemoveAll(dir); err != nil {
		return aerrors.NewIO("remove", dir, err)
	}
	if c.mem != nil {
		c.mem.Clear()
	}
	logging.CacheEvent(ctx, "drop", "*")
	return nil
}
