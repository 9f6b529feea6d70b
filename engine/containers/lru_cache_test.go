package containers

import (
	"errors"
	"fmt"
	"testing"

	"github.com/spaghettifunk/vkcore/engine/core"
)

type testKey struct {
	Name   string
	Width  uint32
	Height uint32
}

type builtValue struct {
	id  int
	key testKey
}

type buildCounter struct {
	builds   map[testKey]int
	released []testKey
	next     int
}

func newBuildCounter() *buildCounter {
	return &buildCounter{builds: map[testKey]int{}}
}

func (b *buildCounter) build(k testKey) (*builtValue, error) {
	b.builds[k]++
	b.next++
	return &builtValue{id: b.next, key: k}, nil
}

func (b *buildCounter) release(k testKey, v *builtValue) {
	b.released = append(b.released, k)
}

func newTestCache(t *testing.T, capacity int, b *buildCounter) *ContentAddressedCache[testKey, *builtValue] {
	t.Helper()
	c, err := NewContentAddressedCache[testKey, *builtValue](capacity, b.release)
	if err != nil {
		t.Fatalf("NewContentAddressedCache() error = %v", err)
	}
	return c
}

func TestCacheBuildsOnce(t *testing.T) {
	b := newBuildCounter()
	c := newTestCache(t, 4, b)
	key := testKey{Name: "gbuffer", Width: 1280, Height: 720}

	first, err := c.GetOrCreate(key, b.build)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	second, err := c.GetOrCreate(key, b.build)
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	if first != second {
		t.Errorf("GetOrCreate returned %v then %v", first, second)
	}
	if b.builds[key] != 1 {
		t.Errorf("builder ran %d times, want 1", b.builds[key])
	}
	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 || st.Builds != 1 {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestCacheKeysDifferingInOneFieldDoNotAlias(t *testing.T) {
	b := newBuildCounter()
	c := newTestCache(t, 4, b)

	keys := []testKey{
		{Name: "main", Width: 800, Height: 600},
		{Name: "main", Width: 800, Height: 601},
		{Name: "main", Width: 801, Height: 600},
		{Name: "aux", Width: 800, Height: 600},
	}
	seen := map[int]bool{}
	for _, k := range keys {
		v, err := c.GetOrCreate(k, b.build)
		if err != nil {
			t.Fatalf("GetOrCreate(%v) error = %v", k, err)
		}
		if v.key != k {
			t.Errorf("GetOrCreate(%v) returned value built for %v", k, v.key)
		}
		seen[v.id] = true
	}
	if len(seen) != len(keys) {
		t.Errorf("%d distinct values for %d distinct keys", len(seen), len(keys))
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	b := newBuildCounter()
	c := newTestCache(t, 2, b)
	A, B, C, D := testKey{Name: "A"}, testKey{Name: "B"}, testKey{Name: "C"}, testKey{Name: "D"}

	c.GetOrCreate(A, b.build)
	c.GetOrCreate(B, b.build)
	c.GetOrCreate(C, b.build)
	if c.Contains(A) {
		t.Error("A should have been evicted by C")
	}
	if len(b.released) != 1 || b.released[0] != A {
		t.Fatalf("released %v, want [A]", b.released)
	}

	// touch B so C becomes the oldest
	c.GetOrCreate(B, b.build)
	c.GetOrCreate(D, b.build)
	if !c.Contains(B) || !c.Contains(D) {
		t.Errorf("cache holds %v, want B and D", c.Keys())
	}
	if c.Contains(C) {
		t.Error("C should have been evicted by D")
	}
	if len(b.released) != 2 || b.released[1] != C {
		t.Errorf("released %v, want [A C]", b.released)
	}
	if c.Len() > c.Capacity() {
		t.Errorf("Len() = %d exceeds capacity %d", c.Len(), c.Capacity())
	}
	if c.Stats().Evictions != 2 {
		t.Errorf("Stats().Evictions = %d, want 2", c.Stats().Evictions)
	}
}

func TestCacheNeverExceedsCapacity(t *testing.T) {
	b := newBuildCounter()
	c := newTestCache(t, 3, b)
	for i := 0; i < 50; i++ {
		k := testKey{Name: fmt.Sprintf("k%d", i%7), Width: uint32(i % 5)}
		if _, err := c.GetOrCreate(k, b.build); err != nil {
			t.Fatalf("GetOrCreate() error = %v", err)
		}
		if c.Len() > 3 {
			t.Fatalf("Len() = %d after %d inserts", c.Len(), i+1)
		}
	}
	st := c.Stats()
	if int(st.Builds)-int(st.Evictions) != c.Len() {
		t.Errorf("builds %d - evictions %d != live %d", st.Builds, st.Evictions, c.Len())
	}
}

func TestCacheBuilderFailure(t *testing.T) {
	b := newBuildCounter()
	c := newTestCache(t, 2, b)
	key := testKey{Name: "broken"}
	boom := errors.New("native create failed")

	_, err := c.GetOrCreate(key, func(testKey) (*builtValue, error) { return nil, boom })
	if !errors.Is(err, boom) {
		t.Fatalf("GetOrCreate() error = %v, want %v", err, boom)
	}
	if c.Contains(key) || c.Len() != 0 {
		t.Error("failed build must not insert an entry")
	}

	v, err := c.GetOrCreate(key, b.build)
	if err != nil || v == nil {
		t.Fatalf("retry GetOrCreate() = %v, %v", v, err)
	}
}

func TestCacheReentrantBuild(t *testing.T) {
	b := newBuildCounter()
	c := newTestCache(t, 2, b)
	key := testKey{Name: "self"}

	_, err := c.GetOrCreate(key, func(k testKey) (*builtValue, error) {
		return c.GetOrCreate(k, b.build)
	})
	if err == nil {
		t.Fatal("nested build of the same key should fail")
	}
	if b.builds[key] != 0 {
		t.Errorf("inner builder ran %d times", b.builds[key])
	}
}

func TestCacheInvalidate(t *testing.T) {
	b := newBuildCounter()
	c := newTestCache(t, 4, b)
	A, B := testKey{Name: "A"}, testKey{Name: "B"}
	c.GetOrCreate(A, b.build)
	c.GetOrCreate(B, b.build)

	if !c.Invalidate(A) {
		t.Error("Invalidate(A) = false")
	}
	if c.Invalidate(A) {
		t.Error("second Invalidate(A) = true")
	}
	if c.Invalidate(testKey{Name: "missing"}) {
		t.Error("Invalidate(missing) = true")
	}
	if len(b.released) != 1 || b.released[0] != A {
		t.Errorf("released %v, want [A]", b.released)
	}

	c.GetOrCreate(A, b.build)
	if b.builds[A] != 2 {
		t.Errorf("A built %d times, want 2 after invalidation", b.builds[A])
	}
	if c.Stats().Invalidations != 1 {
		t.Errorf("Stats().Invalidations = %d, want 1", c.Stats().Invalidations)
	}
}

func TestCacheInvalidateFunc(t *testing.T) {
	b := newBuildCounter()
	c := newTestCache(t, 8, b)
	for _, w := range []uint32{1, 2, 3, 4} {
		c.GetOrCreate(testKey{Name: "x", Width: w}, b.build)
	}
	n := c.InvalidateFunc(func(k testKey) bool { return k.Width%2 == 0 })
	if n != 2 || c.Len() != 2 {
		t.Errorf("InvalidateFunc removed %d, %d left", n, c.Len())
	}
}

func TestCacheResizeAndPurge(t *testing.T) {
	b := newBuildCounter()
	c := newTestCache(t, 4, b)
	for _, n := range []string{"A", "B", "C", "D"} {
		c.GetOrCreate(testKey{Name: n}, b.build)
	}

	evicted, err := c.Resize(2)
	if err != nil || evicted != 2 {
		t.Fatalf("Resize(2) = %d, %v", evicted, err)
	}
	keys := c.Keys()
	if len(keys) != 2 || keys[0].Name != "C" || keys[1].Name != "D" {
		t.Errorf("Keys() = %v, want [C D]", keys)
	}
	if _, err := c.Resize(0); !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("Resize(0) error = %v, want ErrInvalidConfig", err)
	}

	c.Purge()
	if c.Len() != 0 || len(b.released) != 4 {
		t.Errorf("after Purge Len() = %d, released %v", c.Len(), b.released)
	}
}

func TestCacheStatsWithReentrantRelease(t *testing.T) {
	b := newBuildCounter()
	var c *ContentAddressedCache[testKey, *builtValue]
	c, err := NewContentAddressedCache[testKey, *builtValue](3, func(k testKey, v *builtValue) {
		b.release(k, v)
		// Releasing one entry may drop others; the key here is not cached.
		c.Invalidate(testKey{Name: "absent", Width: 100})
	})
	if err != nil {
		t.Fatalf("NewContentAddressedCache() error = %v", err)
	}
	for _, n := range []string{"A", "B", "C"} {
		c.GetOrCreate(testKey{Name: n}, b.build)
	}

	if evicted, err := c.Resize(1); err != nil || evicted != 2 {
		t.Fatalf("Resize(1) = %d, %v", evicted, err)
	}
	stats := c.Stats()
	if stats.Evictions != 2 || stats.Invalidations != 0 {
		t.Errorf("stats = %+v, want 2 evictions and no invalidations", stats)
	}

	c.GetOrCreate(testKey{Name: "D"}, b.build)
	if stats := c.Stats(); stats.Evictions != 3 || stats.Invalidations != 0 {
		t.Errorf("stats after eviction on insert = %+v", stats)
	}
}

func TestCacheInvalidCapacity(t *testing.T) {
	if _, err := NewContentAddressedCache[testKey, int](0, nil); !errors.Is(err, core.ErrInvalidConfig) {
		t.Errorf("NewContentAddressedCache(0) error = %v, want ErrInvalidConfig", err)
	}
}
