// Package cell implements a single-slot interior-mutability cell with
// runtime-checked exclusive/shared access.
//
// A Cell behaves like a lightweight reader/writer lock with no blocking
// guarantees: acquisition either succeeds immediately, or fails with
// briny.ErrLocked, or (in the bounded forms) retries for a caller-supplied
// number of attempts. One writer excludes everything; any number of readers
// may coexist.
//
// The entire cell state is one atomic word, so a Cell costs its payload plus
// four bytes and is safe to embed in caller-owned storage (a package-level
// variable, a stack frame, or a pool slot). The zero value is a free cell
// holding the zero value of T.
//
// No starvation protection is provided: a steady stream of readers can stall
// a writer indefinitely. This is a documented limitation, not a bug.
package cell

import (
	"sync/atomic"

	"github.com/bobbothe2nd/briny"
	"github.com/bobbothe2nd/briny/internal/spin"
)

// State word encoding:
//   - stateFree (0): no holder
//   - n > 0: n read guards outstanding
//   - stateWriter (-1): one write guard outstanding
//
// Any other negative value is impossible and treated as memory corruption.
const (
	stateFree   int32 = 0
	stateWriter int32 = -1
)

// Cell holds one value of type T plus one atomic access-state word.
//
// The value is mutated only through guards obtained from the acquire
// methods. Guards must be released on every exit path; pair each successful
// acquisition with defer:
//
//	g, err := c.TryWrite()
//	if err != nil {
//		return err
//	}
//	defer g.Release()
//	*g.Get() = next
type Cell[T any] struct {
	state atomic.Int32
	value T
}

// New returns a free cell holding v.
func New[T any](v T) *Cell[T] {
	c := &Cell[T]{}
	c.value = v
	return c
}

// TryRead attempts to acquire shared access.
//
// Acquisition is a compare-and-swap loop on the state word: it succeeds only
// while the state is free or already held by readers, atomically moving the
// reader count from n to n+1. It fails with briny.ErrLocked if a writer
// holds the cell.
func (c *Cell[T]) TryRead() (ReadGuard[T], error) {
	for {
		s := c.state.Load()
		if s < 0 {
			if s != stateWriter {
				panic("briny/cell: state word outside defined set")
			}
			return ReadGuard[T]{}, briny.ErrLocked
		}
		if c.state.CompareAndSwap(s, s+1) {
			return ReadGuard[T]{cell: c}, nil
		}
	}
}

// TryWrite attempts to acquire exclusive access.
//
// Write acquisition succeeds only from exactly the free state, transitioning
// to the writer state in a single compare-and-swap. It fails with
// briny.ErrLocked if any reader or writer holds the cell.
func (c *Cell[T]) TryWrite() (WriteGuard[T], error) {
	for {
		s := c.state.Load()
		if s != stateFree {
			if s < stateWriter {
				panic("briny/cell: state word outside defined set")
			}
			return WriteGuard[T]{}, briny.ErrLocked
		}
		if c.state.CompareAndSwap(stateFree, stateWriter) {
			return WriteGuard[T]{cell: c}, nil
		}
	}
}

// Read acquires shared access, retrying up to spins failed attempts with
// backoff before surfacing briny.ErrLocked. The bound is an iteration count,
// not a wall-clock timeout: no timer source is assumed.
func (c *Cell[T]) Read(spins int) (ReadGuard[T], error) {
	for i := 0; ; i++ {
		g, err := c.TryRead()
		if err == nil {
			return g, nil
		}
		if i >= spins {
			return ReadGuard[T]{}, err
		}
		spin.Backoff(i)
	}
}

// Write acquires exclusive access, retrying up to spins failed attempts with
// backoff before surfacing briny.ErrLocked.
func (c *Cell[T]) Write(spins int) (WriteGuard[T], error) {
	for i := 0; ; i++ {
		g, err := c.TryWrite()
		if err == nil {
			return g, nil
		}
		if i >= spins {
			return WriteGuard[T]{}, err
		}
		spin.Backoff(i)
	}
}

// Readers returns the number of outstanding read guards, or -1 while a write
// guard is held. Diagnostic only; the answer can be stale by the time it is
// observed.
func (c *Cell[T]) Readers() int {
	return int(c.state.Load())
}

// ReadGuard grants shared access to a cell until released.
//
// The zero ReadGuard is inert; only guards returned by a successful acquire
// hold the cell.
type ReadGuard[T any] struct {
	cell *Cell[T]
}

// Get returns the guarded value. The pointer is shared: callers must not
// write through it, and must not retain it past Release.
func (g *ReadGuard[T]) Get() *T {
	if g.cell == nil {
		panic("briny/cell: use of released read guard")
	}
	return &g.cell.value
}

// Release performs the inverse state transition. It must run exactly once
// per guard; a second call panics, since it would corrupt the reader count
// for some other holder.
func (g *ReadGuard[T]) Release() {
	c := g.cell
	if c == nil {
		panic("briny/cell: read guard released twice")
	}
	g.cell = nil
	for {
		s := c.state.Load()
		if s <= 0 {
			panic("briny/cell: reader count underflow")
		}
		if c.state.CompareAndSwap(s, s-1) {
			return
		}
	}
}

// WriteGuard grants exclusive mutable access to a cell until released.
type WriteGuard[T any] struct {
	cell *Cell[T]
}

// Get returns the guarded value for mutation. The pointer must not be
// retained past Release.
func (g *WriteGuard[T]) Get() *T {
	if g.cell == nil {
		panic("briny/cell: use of released write guard")
	}
	return &g.cell.value
}

// Release returns the cell to the free state. It must run exactly once per
// guard; a second call panics.
func (g *WriteGuard[T]) Release() {
	c := g.cell
	if c == nil {
		panic("briny/cell: write guard released twice")
	}
	g.cell = nil
	if !c.state.CompareAndSwap(stateWriter, stateFree) {
		// Nothing else may touch the word while a writer holds it.
		panic("briny/cell: state word changed under write guard")
	}
}
