// Package pool implements reference-counted shared ownership sourced from a
// fixed-capacity table of preallocated slots.
//
// A Pool is for values whose ownership cannot be pinned to one caller-chosen
// location the way a ref.Anchor requires. The table is allocated once in New
// and never resized; after that, acquire and release touch no allocator.
//
// Free slots are tracked by a lock-free Treiber stack threaded through the
// slots themselves: the list head is a single atomic word packing a 32-bit
// version tag next to a 32-bit slot link, and every pop bumps the tag so a
// head that was popped and pushed back cannot satisfy a stale
// compare-and-swap (the classic ABA hazard). Under contention, acquire and
// release retry; they never block.
//
// Each slot carries the same counter semantics as package ref, plus a
// generation stamp so a handle that outlives its slot's reclamation fails
// with briny.ErrAlreadyReleased instead of touching the slot's next owner.
package pool

import (
	"errors"
	"sync/atomic"

	"github.com/bobbothe2nd/briny"
	"github.com/bobbothe2nd/briny/cell"
)

// ErrInvalidCapacity reports a non-positive or unrepresentable capacity
// passed to New.
var ErrInvalidCapacity = errors.New("briny/pool: capacity must be in [1, 1<<31)")

// maxCapacity keeps every slot index plus one representable in the 32-bit
// link half of the head word.
const maxCapacity = 1<<31 - 1

// Head word encoding: [tag:32][link:32].
//
// A link is a slot index plus one; link 0 terminates the list. The same
// encoding is used in each slot's next field (without a tag: slot links are
// only written while the writer exclusively owns the slot, before the head
// CAS publishes them).
const (
	linkBits = 32
	linkMask = 1<<linkBits - 1
	nilLink  = 0
)

// bindSpins bounds how long Acquire and the reset path wait for a transient
// guard held by a stale handle mid-rejection. Such a holder releases within
// a few instructions; anything slower is a leak.
const bindSpins = 64

type slot[T any] struct {
	refs atomic.Int64
	gen  atomic.Uint64
	next atomic.Uint32
	cell cell.Cell[T]
}

// Pool is a fixed-capacity slot table with a lock-free free list. Create
// one with New before first use; the table is never resized.
type Pool[T any] struct {
	head atomic.Uint64
	// Keep the contended head word off the cache lines of the slot array.
	_     [56]byte
	slots []slot[T]
	reset func(*T)
}

// New allocates the slot table once and threads every slot onto the free
// list. This is the only allocation the pool ever performs.
//
// reset, if non-nil, is invoked by the releasing caller against a slot's
// value when its count reaches zero, before the slot re-enters the free
// list. The table never synthesizes a reset of its own: with a nil hook the
// stale value stays in place until the next Acquire overwrites it.
func New[T any](capacity int, reset func(*T)) (*Pool[T], error) {
	if capacity < 1 || capacity > maxCapacity {
		return nil, ErrInvalidCapacity
	}
	p := &Pool[T]{
		slots: make([]slot[T], capacity),
		reset: reset,
	}
	for i := range p.slots {
		if i+1 < capacity {
			p.slots[i].next.Store(uint32(i + 2)) // link to slot i+1
		} else {
			p.slots[i].next.Store(nilLink)
		}
	}
	p.head.Store(1) // tag 0, link to slot 0
	return p, nil
}

// Ref is a handle to a value occupying a pool slot. Obtain the first handle
// from Acquire and further handles from Clone; never copy a Ref by
// assignment.
type Ref[T any] struct {
	pool *Pool[T]
	idx  uint32
	gen  uint64
}

// Acquire takes a free slot from the table, installs v, and returns a handle
// with the slot's count at 1. It fails with briny.ErrExhausted when no free
// slot exists.
func (p *Pool[T]) Acquire(v T) (Ref[T], error) {
	idx, ok := p.pop()
	if !ok {
		return Ref[T]{}, briny.ErrExhausted
	}
	s := &p.slots[idx]
	gen := s.gen.Add(1)

	// We own the slot exclusively between pop and the count store below. A
	// stale handle can still hold the cell for the instant between its guard
	// acquisition and its stamp re-check, so ride that out with a bounded
	// retry; a holder that outlasts the budget is a guard leaked past the
	// slot's previous occupancy.
	g, err := s.cell.Write(bindSpins)
	if err != nil {
		panic("briny/pool: reclaimed slot still guarded")
	}
	*g.Get() = v
	g.Release()

	if !s.refs.CompareAndSwap(0, 1) {
		panic("briny/pool: reclaimed slot has live references")
	}
	return Ref[T]{pool: p, idx: idx, gen: gen}, nil
}

// Clone atomically increments the slot's count and returns a new handle.
// Like ref.Ref.Clone, the increment only moves from a strictly positive
// count: a clone racing the concluding drop, or a handle whose slot has been
// reclaimed, fails with briny.ErrAlreadyReleased.
func (r *Ref[T]) Clone() (Ref[T], error) {
	p := r.pool
	if p == nil {
		return Ref[T]{}, briny.ErrAlreadyReleased
	}
	s := &p.slots[r.idx]
	if s.gen.Load() != r.gen {
		return Ref[T]{}, briny.ErrAlreadyReleased
	}
	for {
		n := s.refs.Load()
		if n < 0 {
			panic("briny/pool: negative reference count")
		}
		if n == 0 {
			return Ref[T]{}, briny.ErrAlreadyReleased
		}
		if s.refs.CompareAndSwap(n, n+1) {
			break
		}
	}
	if s.gen.Load() != r.gen {
		// Slot was reclaimed and reacquired between the stamp check and
		// the increment; undo the claim against the new occupant.
		r.pool.releaseSlot(r.idx)
		return Ref[T]{}, briny.ErrAlreadyReleased
	}
	return Ref[T]{pool: p, idx: r.idx, gen: r.gen}, nil
}

// Drop releases this handle. The caller observing the transition to zero
// runs the pool's reset hook (if any) and pushes the slot back onto the free
// list, making it available to the very next Acquire.
func (r *Ref[T]) Drop() error {
	p := r.pool
	if p == nil {
		return briny.ErrAlreadyReleased
	}
	s := &p.slots[r.idx]
	if s.gen.Load() != r.gen {
		return briny.ErrAlreadyReleased
	}
	r.pool = nil
	p.releaseSlot(r.idx)
	return nil
}

// releaseSlot decrements a slot's count and, on the zero transition,
// reclaims the slot.
func (p *Pool[T]) releaseSlot(idx uint32) {
	s := &p.slots[idx]
	n := s.refs.Add(-1)
	if n < 0 {
		panic("briny/pool: reference count underflow")
	}
	if n != 0 {
		return
	}
	if p.reset != nil {
		// The zero transition makes this caller the slot's sole owner.
		// Ride out a stale handle's transient guard the same way Acquire
		// does; a holder that outlasts the budget outlived the final drop.
		g, err := s.cell.Write(bindSpins)
		if err != nil {
			panic("briny/pool: slot still guarded at final drop")
		}
		p.reset(g.Get())
		g.Release()
	}
	p.push(idx)
}

// Count returns the slot's current reference count. Diagnostic only.
func (r *Ref[T]) Count() int64 {
	if r.pool == nil {
		return 0
	}
	return r.pool.slots[r.idx].refs.Load()
}

// TryRead acquires shared access to the slot value. It fails with
// briny.ErrAlreadyReleased if the handle is stale, or briny.ErrLocked if a
// writer holds the slot's cell. The stamp is re-checked after the guard is
// taken, so a handle whose slot is reclaimed mid-acquisition can never hand
// out a guard over the slot's next occupant.
func (r *Ref[T]) TryRead() (cell.ReadGuard[T], error) {
	if err := r.check(); err != nil {
		return cell.ReadGuard[T]{}, err
	}
	g, err := r.pool.slots[r.idx].cell.TryRead()
	if err != nil {
		return cell.ReadGuard[T]{}, err
	}
	if !r.confirm() {
		g.Release()
		return cell.ReadGuard[T]{}, briny.ErrAlreadyReleased
	}
	return g, nil
}

// TryWrite acquires exclusive access to the slot value.
func (r *Ref[T]) TryWrite() (cell.WriteGuard[T], error) {
	if err := r.check(); err != nil {
		return cell.WriteGuard[T]{}, err
	}
	g, err := r.pool.slots[r.idx].cell.TryWrite()
	if err != nil {
		return cell.WriteGuard[T]{}, err
	}
	if !r.confirm() {
		g.Release()
		return cell.WriteGuard[T]{}, briny.ErrAlreadyReleased
	}
	return g, nil
}

// Read is the bounded-retry form of TryRead; spins bounds the number of
// failed attempts.
func (r *Ref[T]) Read(spins int) (cell.ReadGuard[T], error) {
	if err := r.check(); err != nil {
		return cell.ReadGuard[T]{}, err
	}
	g, err := r.pool.slots[r.idx].cell.Read(spins)
	if err != nil {
		return cell.ReadGuard[T]{}, err
	}
	if !r.confirm() {
		g.Release()
		return cell.ReadGuard[T]{}, briny.ErrAlreadyReleased
	}
	return g, nil
}

// Write is the bounded-retry form of TryWrite.
func (r *Ref[T]) Write(spins int) (cell.WriteGuard[T], error) {
	if err := r.check(); err != nil {
		return cell.WriteGuard[T]{}, err
	}
	g, err := r.pool.slots[r.idx].cell.Write(spins)
	if err != nil {
		return cell.WriteGuard[T]{}, err
	}
	if !r.confirm() {
		g.Release()
		return cell.WriteGuard[T]{}, briny.ErrAlreadyReleased
	}
	return g, nil
}

func (r *Ref[T]) check() error {
	p := r.pool
	if p == nil {
		return briny.ErrAlreadyReleased
	}
	s := &p.slots[r.idx]
	if s.gen.Load() != r.gen || s.refs.Load() == 0 {
		return briny.ErrAlreadyReleased
	}
	return nil
}

// confirm re-checks the stamp after a guard acquisition. The slot can be
// reclaimed and reacquired between check and the cell's state CAS; a guard
// taken in that window covers the next occupant and must be given back, not
// returned.
func (r *Ref[T]) confirm() bool {
	return r.pool.slots[r.idx].gen.Load() == r.gen
}

// pop takes a slot index off the free list. Contended pops retry; an empty
// list reports false.
func (p *Pool[T]) pop() (uint32, bool) {
	for {
		h := p.head.Load()
		link := uint32(h & linkMask)
		if link == nilLink {
			return 0, false
		}
		idx := link - 1
		if idx >= uint32(len(p.slots)) {
			panic("briny/pool: free list link out of range")
		}
		next := p.slots[idx].next.Load()
		tag := uint64(uint32(h>>linkBits) + 1)
		if p.head.CompareAndSwap(h, tag<<linkBits|uint64(next)) {
			return idx, true
		}
	}
}

// push returns a slot index to the free list.
func (p *Pool[T]) push(idx uint32) {
	for {
		h := p.head.Load()
		p.slots[idx].next.Store(uint32(h & linkMask))
		tag := uint64(uint32(h>>linkBits) + 1)
		if p.head.CompareAndSwap(h, tag<<linkBits|uint64(idx+1)) {
			return
		}
	}
}

// Cap returns the table capacity fixed at New.
func (p *Pool[T]) Cap() int {
	return len(p.slots)
}

// Free returns the number of slots currently on the free list by walking it.
// O(capacity) and racy; diagnostic only, never for admission decisions.
func (p *Pool[T]) Free() int {
	n := 0
	link := uint32(p.head.Load() & linkMask)
	for link != nilLink && n <= len(p.slots) {
		n++
		link = p.slots[link-1].next.Load()
	}
	return n
}
