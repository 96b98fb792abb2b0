package mapcache

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/FocuswithJustin/annotransfer/core/align"
)

func layers() (align.Layer, align.Layer) {
	src := align.MustLayer("root", []align.Segment{
		{Index: 1, Span: align.Span{Start: 0, End: 10}, Text: "foo"},
		{Index: 2, Span: align.Span{Start: 10, End: 20}, Text: "bar"},
		{Index: 3, Span: align.Span{Start: 30, End: 40}, Text: "baz"},
	})
	tgt := align.MustLayer("display", []align.Segment{
		{Index: 1, Span: align.Span{Start: 0, End: 15}, Text: "X"},
	})
	return src, tgt
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	src, tgt := layers()
	k := KeyFor(src, tgt)
	want := align.MapLayers(src, tgt)

	if _, ok, err := c.Get(ctx, k); ok || err != nil {
		t.Fatalf("Get before Put = %v, %v", ok, err)
	}
	if err := c.Put(ctx, k, want); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, ok, err := c.Get(ctx, k)
	if err != nil || !ok {
		t.Fatalf("Get = %v, %v", ok, err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("cached mapping mismatch (-want +got):\n%s", diff)
	}
}

func TestKeyIgnoresText(t *testing.T) {
	src, tgt := layers()
	renamed := align.MustLayer("other", []align.Segment{
		{Index: 1, Span: align.Span{Start: 0, End: 10}, Text: "different"},
		{Index: 2, Span: align.Span{Start: 10, End: 20}},
		{Index: 3, Span: align.Span{Start: 30, End: 40}},
	})
	if KeyFor(src, tgt) != KeyFor(renamed, tgt) {
		t.Error("key depends on text or layer name")
	}

	moved := align.MustLayer("root", []align.Segment{
		{Index: 1, Span: align.Span{Start: 0, End: 11}},
		{Index: 2, Span: align.Span{Start: 11, End: 20}},
		{Index: 3, Span: align.Span{Start: 30, End: 40}},
	})
	if KeyFor(src, tgt) == KeyFor(moved, tgt) {
		t.Error("key ignores spans")
	}
	if KeyFor(src, tgt) == KeyFor(tgt, src) {
		t.Error("key ignores direction")
	}
}

func TestNilCache(t *testing.T) {
	var c *Cache
	ctx := context.Background()
	src, tgt := layers()
	k := KeyFor(src, tgt)
	if err := c.Put(ctx, k, align.MapLayers(src, tgt)); err != nil {
		t.Errorf("Put on nil cache: %v", err)
	}
	if _, ok, err := c.Get(ctx, k); ok || err != nil {
		t.Errorf("Get on nil cache = %v, %v", ok, err)
	}
	if err := c.Drop(ctx); err != nil {
		t.Errorf("Drop on nil cache: %v", err)
	}
}

func TestDrop(t *testing.T) {
	ctx := context.Background()
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	src, tgt := layers()
	k := KeyFor(src, tgt)
	if err := c.Put(ctx, k, align.MapLayers(src, tgt)); err != nil {
		t.Fatal(err)
	}
	if err := c.Drop(ctx); err != nil {
		t.Fatalf("Drop failed: %v", err)
	}
	if _, ok, _ := c.Get(ctx, k); ok {
		t.Error("entry survived Drop")
	}
	// The cache stays usable.
	if err := c.Put(ctx, k, align.MapLayers(src, tgt)); err != nil {
		t.Errorf("Put after Drop: %v", err)
	}
}

func TestStaleSchema(t *testing.T) {
	ctx := context.Background()
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	src, tgt := layers()
	k := KeyFor(src, tgt)

	data, err := msgpack.Marshal(&payload{Schema: schemaVersion + 1})
	if err != nil {
		t.Fatal(err)
	}
	path := c.pathFor(k)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := c.Get(ctx, k); ok || err != nil {
		t.Errorf("Get on stale entry = %v, %v", ok, err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	src, tgt := layers()
	k := KeyFor(src, tgt)
	m := align.MapLayers(src, tgt)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := c.Put(ctx, k, m); err != nil {
				t.Errorf("Put: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if _, _, err := c.Get(ctx, k); err != nil {
				t.Errorf("Get: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestMemoryTier(t *testing.T) {
	ctx := context.Background()
	src, tgt := layers()
	k := KeyFor(src, tgt)
	m := align.MapLayers(src, tgt)

	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Put(ctx, k, m); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(c.pathFor(k)); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.Get(ctx, k)
	if err != nil || !ok {
		t.Fatalf("Get from memory = %v, %v", ok, err)
	}
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("memory mapping mismatch (-want +got):\n%s", diff)
	}

	// Callers cannot corrupt the memory tier.
	got[0].Targets = nil
	again, _, _ := c.Get(ctx, k)
	if diff := cmp.Diff(m, again); diff != "" {
		t.Errorf("memory tier aliased (-want +got):\n%s", diff)
	}
	if s := c.Stats(); s.Hits != 2 || s.Size != 1 || s.MaxSize != DefaultMemoryEntries {
		t.Errorf("Stats = %+v", s)
	}

	disk, err := Open(t.TempDir(), WithMemory(0))
	if err != nil {
		t.Fatal(err)
	}
	if err := disk.Put(ctx, k, m); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(disk.pathFor(k)); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := disk.Get(ctx, k); ok {
		t.Error("Get hit with memory tier disabled")
	}
	if s := disk.Stats(); s != (Stats{}) {
		t.Errorf("Stats with memory disabled = %+v", s)
	}
}

func TestLRUEviction(t *testing.T) {
	c := newLRU[string, int](2)
	c.Put("a", 1)
	c.Put("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a missing")
	}
	c.Put("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("least recently used entry survived")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v", v, ok)
	}
	c.Put("a", 10)
	if v, _ := c.Get("a"); v != 10 {
		t.Errorf("Get(a) after update = %d", v)
	}

	s := c.Stats()
	if s.Evictions != 1 || s.Size != 2 || s.Misses != 1 {
		t.Errorf("Stats = %+v", s)
	}
	c.Clear()
	if c.Stats().Size != 0 {
		t.Error("Clear left entries")
	}
}
