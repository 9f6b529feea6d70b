package containers

import (
	"fmt"
	"math"

	"github.com/spaghettifunk/vkcore/engine/core"
)

// Handle references an object owned by a HandlePool[T, ...]. It stays valid
// until the object is destroyed; afterwards every lookup reports
// core.ErrStaleHandle, even once the slot holds a new object.
// The zero Handle never refers to anything.
type Handle[T any] struct {
	index      uint32
	generation uint32
}

func (h Handle[T]) Index() uint32 {
	return h.index
}

func (h Handle[T]) Generation() uint32 {
	return h.generation
}

func (h Handle[T]) IsZero() bool {
	return h.generation == 0
}

func (h Handle[T]) String() string {
	return fmt.Sprintf("%d#%d", h.index, h.generation)
}

// Generations are odd while a slot is occupied and even while it is free.
type poolSlot[T any] struct {
	payload    T
	generation uint32
	occupied   bool
}

type PoolStats struct {
	Creates  uint64
	Destroys uint64
	Reuses   uint64
	Failures uint64
	Retired  uint64
}

// HandlePool owns objects of type T built from arguments of type A.
// Slots are heap allocated one by one so pointers returned by Get survive
// growth of the slot table.
// A HandlePool is not safe for concurrent use.
type HandlePool[T any, A any] struct {
	slots     []*poolSlot[T]
	free      *RingQueue[uint32]
	construct func(A) (T, error)
	teardown  func(*T)
	live      int
	stats     PoolStats
}

// NewHandlePool creates an empty pool. teardown may be nil when T owns
// nothing that needs releasing.
func NewHandlePool[T any, A any](construct func(A) (T, error), teardown func(*T), initialCapacity int) *HandlePool[T, A] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	return &HandlePool[T, A]{
		slots:     make([]*poolSlot[T], 0, initialCapacity),
		free:      NewGrowableRingQueue[uint32](initialCapacity),
		construct: construct,
		teardown:  teardown,
	}
}

// Create builds a new T in a free slot, growing the table when none is free.
func (p *HandlePool[T, A]) Create(args A) (Handle[T], error) {
	index, reused := p.acquire()

	payload, err := p.construct(args)
	if err != nil {
		p.free.Enqueue(index)
		p.stats.Failures++
		return Handle[T]{}, fmt.Errorf("%w: %w", core.ErrConstruction, err)
	}

	s := p.slots[index]
	s.payload = payload
	s.generation++
	s.occupied = true
	p.live++
	p.stats.Creates++
	if reused {
		p.stats.Reuses++
	}
	return Handle[T]{index: index, generation: s.generation}, nil
}

// Get returns the object h refers to.
func (p *HandlePool[T, A]) Get(h Handle[T]) (*T, error) {
	s, err := p.lookup(h)
	if err != nil {
		return nil, err
	}
	return &s.payload, nil
}

// Contains reports whether h is still live.
func (p *HandlePool[T, A]) Contains(h Handle[T]) bool {
	_, err := p.lookup(h)
	return err == nil
}

// Destroy tears down the object h refers to and frees its slot.
func (p *HandlePool[T, A]) Destroy(h Handle[T]) error {
	s, err := p.lookup(h)
	if err != nil {
		return err
	}
	p.release(h.index, s)
	p.stats.Destroys++
	return nil
}

// Each visits live objects in slot order until fn returns false.
func (p *HandlePool[T, A]) Each(fn func(Handle[T], *T) bool) {
	for i, s := range p.slots {
		if !s.occupied {
			continue
		}
		if !fn(Handle[T]{index: uint32(i), generation: s.generation}, &s.payload) {
			return
		}
	}
}

// Clear tears down every live object. Handles issued before the call are stale
// afterwards.
func (p *HandlePool[T, A]) Clear() int {
	cleared := 0
	for i, s := range p.slots {
		if !s.occupied {
			continue
		}
		p.release(uint32(i), s)
		cleared++
	}
	p.stats.Destroys += uint64(cleared)
	return cleared
}

// Len is the number of live objects.
func (p *HandlePool[T, A]) Len() int {
	return p.live
}

// Cap is the number of slots backing the pool, live or free.
func (p *HandlePool[T, A]) Cap() int {
	return len(p.slots)
}

func (p *HandlePool[T, A]) Stats() PoolStats {
	return p.stats
}

func (p *HandlePool[T, A]) acquire() (uint32, bool) {
	if index, err := p.free.Dequeue(); err == nil {
		return index, true
	}
	if len(p.slots) == math.MaxUint32 {
		panic("containers: handle pool exhausted")
	}
	p.slots = append(p.slots, &poolSlot[T]{})
	return uint32(len(p.slots) - 1), false
}

func (p *HandlePool[T, A]) release(index uint32, s *poolSlot[T]) {
	if p.teardown != nil {
		p.teardown(&s.payload)
	}
	var zero T
	s.payload = zero
	s.occupied = false
	p.live--

	// A slot whose generation cannot advance again is never handed out twice.
	if s.generation == math.MaxUint32 {
		p.stats.Retired++
		return
	}
	s.generation++
	p.free.Enqueue(index)
}

func (p *HandlePool[T, A]) lookup(h Handle[T]) (*poolSlot[T], error) {
	if int(h.index) >= len(p.slots) {
		return nil, fmt.Errorf("%w: handle %s, %d slots", core.ErrOutOfRange, h, len(p.slots))
	}
	s := p.slots[h.index]
	if !s.occupied || s.generation != h.generation {
		return nil, fmt.Errorf("%w: handle %s, slot generation %d", core.ErrStaleHandle, h, s.generation)
	}
	return s, nil
}
