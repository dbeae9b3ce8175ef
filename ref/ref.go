// Package ref implements reference-counted shared ownership of a value whose
// storage is supplied by the caller at a fixed location.
//
// Nothing here allocates. The caller provides an Anchor — typically a
// package-level variable, or a stack frame guaranteed to outlive every
// handle — and binds a value into it with New. Handles are cloned and
// dropped like a conventional atomic reference count, except that reaching
// zero only marks the storage as logically released: no memory is freed,
// because none was allocated.
//
// Storage-outlives-reference cannot be proven at compile time in Go, so it
// is checked at runtime instead: every Anchor carries a generation stamp,
// advanced on each bind, and every handle records the generation it expects.
// A handle that outlives its binding fails with briny.ErrAlreadyReleased
// rather than dereference storage that now belongs to a new owner.
package ref

import (
	"sync/atomic"

	"github.com/bobbothe2nd/briny"
	"github.com/bobbothe2nd/briny/cell"
)

// bindSpins bounds how long New waits for a transient guard held by a stale
// handle mid-rejection. Such a holder releases within a few instructions;
// anything slower is a leak.
const bindSpins = 64

// Anchor is caller-owned backing storage for one shared value: an atomic
// reference count, a generation stamp, and the guarded cell holding the
// payload. The zero value is an unbound anchor ready for New.
//
// An Anchor must not be copied or moved while any handle is live.
type Anchor[T any] struct {
	refs atomic.Int64
	gen  atomic.Uint64
	cell cell.Cell[T]
}

// Bound reports whether the anchor currently has live handles. Diagnostic
// only; the answer can be stale by the time it is observed.
func (a *Anchor[T]) Bound() bool {
	return a.refs.Load() > 0
}

// Ref is a handle to a value bound into an Anchor. Obtain the first handle
// from New and further handles from Clone; never copy a Ref by assignment,
// since copies share one reference count slot and break drop accounting.
type Ref[T any] struct {
	anchor *Anchor[T]
	gen    uint64
}

// New binds v into the anchor and returns the first handle, with the
// reference count at 1. This is the only construction path.
//
// Rebinding an anchor that still has live handles would alias two ownership
// domains over one location; that is treated as a corrupted invariant and
// panics. Reusing an anchor whose previous binding concluded is legal, and
// stale handles from the previous binding are rejected by the generation
// stamp.
func New[T any](a *Anchor[T], v T) Ref[T] {
	// The stamp advances before the count claim publishes the binding. A
	// stale Clone landing between the two passes its count increment but
	// fails its stamp re-check and backs out; in the reverse order it would
	// board the new binding's count with no drop ever paired to it.
	gen := a.gen.Add(1)
	if !a.refs.CompareAndSwap(0, 1) {
		panic("briny/ref: rebinding anchor with live references")
	}

	// The count claim makes us the sole owner. A stale handle can still hold
	// the cell for the instant between its guard acquisition and its stamp
	// re-check, so ride that out with a bounded retry; a holder that outlasts
	// the budget is a guard leaked past the previous binding.
	g, err := a.cell.Write(bindSpins)
	if err != nil {
		panic("briny/ref: anchor cell still guarded at bind")
	}
	*g.Get() = v
	g.Release()

	return Ref[T]{anchor: a, gen: gen}
}

// Clone atomically increments the reference count and returns a new handle.
//
// The increment is a compare-and-swap loop that only moves from a strictly
// positive count, so a clone racing the concluding drop cannot resurrect the
// binding: once the counter reaches zero, Clone fails with
// briny.ErrAlreadyReleased. A stale generation stamp fails the same way.
func (r *Ref[T]) Clone() (Ref[T], error) {
	a := r.anchor
	if a == nil || a.gen.Load() != r.gen {
		return Ref[T]{}, briny.ErrAlreadyReleased
	}
	for {
		n := a.refs.Load()
		if n < 0 {
			panic("briny/ref: negative reference count")
		}
		if n == 0 {
			return Ref[T]{}, briny.ErrAlreadyReleased
		}
		if a.refs.CompareAndSwap(n, n+1) {
			break
		}
	}
	if a.gen.Load() != r.gen {
		// The binding concluded and the anchor was rebound between our
		// stamp check and the increment. Undo the claim against the new
		// binding and reject the stale handle.
		release(a)
		return Ref[T]{}, briny.ErrAlreadyReleased
	}
	return Ref[T]{anchor: a, gen: r.gen}, nil
}

// Drop releases this handle. Exactly one drop observes the transition to
// zero; after it, the storage is logically reusable. No cleanup of T runs:
// callers reset the value before rebinding the anchor.
//
// Dropping a handle twice, or a handle that outlived its binding, fails with
// briny.ErrAlreadyReleased.
func (r *Ref[T]) Drop() error {
	a := r.anchor
	if a == nil || a.gen.Load() != r.gen {
		return briny.ErrAlreadyReleased
	}
	r.anchor = nil
	release(a)
	return nil
}

// release decrements the count, panicking if the counter was already
// concluded (a negative observation means double release or corruption).
func release[T any](a *Anchor[T]) {
	if a.refs.Add(-1) < 0 {
		panic("briny/ref: reference count underflow")
	}
}

// Count returns the current reference count. Diagnostic only.
func (r *Ref[T]) Count() int64 {
	if r.anchor == nil {
		return 0
	}
	return r.anchor.refs.Load()
}

// TryRead acquires shared access to the bound value. It fails with
// briny.ErrAlreadyReleased if the handle is stale, or briny.ErrLocked if a
// writer holds the cell. The stamp is re-checked after the guard is taken,
// so a handle whose binding concludes mid-acquisition can never hand out a
// guard over the anchor's next owner.
func (r *Ref[T]) TryRead() (cell.ReadGuard[T], error) {
	if err := r.check(); err != nil {
		return cell.ReadGuard[T]{}, err
	}
	g, err := r.anchor.cell.TryRead()
	if err != nil {
		return cell.ReadGuard[T]{}, err
	}
	if !r.confirm() {
		g.Release()
		return cell.ReadGuard[T]{}, briny.ErrAlreadyReleased
	}
	return g, nil
}

// TryWrite acquires exclusive access to the bound value. It fails with
// briny.ErrAlreadyReleased if the handle is stale, or briny.ErrLocked if any
// holder exists.
func (r *Ref[T]) TryWrite() (cell.WriteGuard[T], error) {
	if err := r.check(); err != nil {
		return cell.WriteGuard[T]{}, err
	}
	g, err := r.anchor.cell.TryWrite()
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
	g, err := r.anchor.cell.Read(spins)
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
	g, err := r.anchor.cell.Write(spins)
	if err != nil {
		return cell.WriteGuard[T]{}, err
	}
	if !r.confirm() {
		g.Release()
		return cell.WriteGuard[T]{}, briny.ErrAlreadyReleased
	}
	return g, nil
}

// check re-validates the generation stamp and liveness before any access
// through the handle.
func (r *Ref[T]) check() error {
	a := r.anchor
	if a == nil || a.gen.Load() != r.gen || a.refs.Load() == 0 {
		return briny.ErrAlreadyReleased
	}
	return nil
}

// confirm re-checks the stamp after a guard acquisition. The binding can
// conclude and the anchor rebind between check and the cell's state CAS; a
// guard taken in that window covers the new owner's value and must be given
// back, not returned.
func (r *Ref[T]) confirm() bool {
	return r.anchor.gen.Load() == r.gen
}
