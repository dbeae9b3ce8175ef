package pool

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/bobbothe2nd/briny"
)

type job struct {
	id int
}

// ========================================
// Construction Tests
// ========================================

// TestPool_New_InvalidCapacity verifies capacity validation.
func TestPool_New_InvalidCapacity(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
	}{
		{name: "zero", capacity: 0},
		{name: "negative", capacity: -3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New[job](tt.capacity, nil); !errors.Is(err, ErrInvalidCapacity) {
				t.Errorf("New(%d) = %v, want ErrInvalidCapacity", tt.capacity, err)
			}
		})
	}
}

// TestPool_New_AllSlotsFree verifies a fresh table has every slot free.
func TestPool_New_AllSlotsFree(t *testing.T) {
	p, err := New[job](5, nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if p.Cap() != 5 {
		t.Errorf("Cap() = %d, want 5", p.Cap())
	}
	if p.Free() != 5 {
		t.Errorf("Free() = %d, want 5", p.Free())
	}
}

// ========================================
// Acquire/Release Tests
// ========================================

// TestPool_AcquireBeyondCapacity verifies acquisition past the table
// capacity fails with ErrExhausted.
func TestPool_AcquireBeyondCapacity(t *testing.T) {
	p, err := New[job](2, nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	a, err := p.Acquire(job{id: 1})
	if err != nil {
		t.Fatalf("first Acquire() failed: %v", err)
	}
	b, err := p.Acquire(job{id: 2})
	if err != nil {
		t.Fatalf("second Acquire() failed: %v", err)
	}

	if _, err := p.Acquire(job{id: 3}); !errors.Is(err, briny.ErrExhausted) {
		t.Errorf("Acquire() beyond capacity = %v, want ErrExhausted", err)
	}

	if err := a.Drop(); err != nil {
		t.Fatalf("Drop() failed: %v", err)
	}
	if err := b.Drop(); err != nil {
		t.Fatalf("Drop() failed: %v", err)
	}
}

// TestPool_ReleasedSlotImmediatelyReusable verifies a slot released by a
// final drop is available to the very next Acquire.
func TestPool_ReleasedSlotImmediatelyReusable(t *testing.T) {
	p, err := New[job](1, nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	a, err := p.Acquire(job{id: 1})
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	if _, err := p.Acquire(job{id: 2}); !errors.Is(err, briny.ErrExhausted) {
		t.Fatalf("Acquire() on full pool = %v, want ErrExhausted", err)
	}

	if err := a.Drop(); err != nil {
		t.Fatalf("Drop() failed: %v", err)
	}

	b, err := p.Acquire(job{id: 2})
	if err != nil {
		t.Fatalf("Acquire() after release failed: %v", err)
	}
	g, err := b.TryRead()
	if err != nil {
		t.Fatalf("TryRead() failed: %v", err)
	}
	if g.Get().id != 2 {
		t.Errorf("reused slot value = %d, want 2", g.Get().id)
	}
	g.Release()
	if err := b.Drop(); err != nil {
		t.Fatalf("Drop() failed: %v", err)
	}
}

// TestPool_ResetHookRunsOnFinalDrop verifies the caller-supplied hook runs
// exactly once per reclamation, before the slot re-enters the free list.
func TestPool_ResetHookRunsOnFinalDrop(t *testing.T) {
	var resets atomic.Int32
	p, err := New(2, func(j *job) {
		resets.Add(1)
		j.id = 0
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	a, err := p.Acquire(job{id: 9})
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	b, err := a.Clone()
	if err != nil {
		t.Fatalf("Clone() failed: %v", err)
	}

	if err := a.Drop(); err != nil {
		t.Fatalf("Drop() failed: %v", err)
	}
	if n := resets.Load(); n != 0 {
		t.Errorf("reset ran after non-final drop (count %d)", n)
	}

	if err := b.Drop(); err != nil {
		t.Fatalf("final Drop() failed: %v", err)
	}
	if n := resets.Load(); n != 1 {
		t.Errorf("reset count after final drop = %d, want 1", n)
	}
}

// ========================================
// Counting & Staleness Tests
// ========================================

// TestPool_CloneDropCounting verifies counter semantics match the direct
// reference variant.
func TestPool_CloneDropCounting(t *testing.T) {
	p, err := New[job](1, nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	a, err := p.Acquire(job{id: 1})
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	if n := a.Count(); n != 1 {
		t.Errorf("Count() after Acquire = %d, want 1", n)
	}

	b, err := a.Clone()
	if err != nil {
		t.Fatalf("Clone() failed: %v", err)
	}
	if n := a.Count(); n != 2 {
		t.Errorf("Count() after Clone = %d, want 2", n)
	}

	if err := b.Drop(); err != nil {
		t.Fatalf("Drop() failed: %v", err)
	}
	if err := a.Drop(); err != nil {
		t.Fatalf("Drop() failed: %v", err)
	}
	if free := p.Free(); free != 1 {
		t.Errorf("Free() after conclusion = %d, want 1", free)
	}
}

// TestPool_StaleHandleRejected verifies a handle that outlives its slot's
// reclamation cannot touch the slot's next occupant.
func TestPool_StaleHandleRejected(t *testing.T) {
	p, err := New[job](1, nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	old, err := p.Acquire(job{id: 1})
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	stale := old
	if err := old.Drop(); err != nil {
		t.Fatalf("Drop() failed: %v", err)
	}

	fresh, err := p.Acquire(job{id: 2})
	if err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}

	if _, err := stale.Clone(); !errors.Is(err, briny.ErrAlreadyReleased) {
		t.Errorf("stale Clone() = %v, want ErrAlreadyReleased", err)
	}
	if _, err := stale.TryWrite(); !errors.Is(err, briny.ErrAlreadyReleased) {
		t.Errorf("stale TryWrite() = %v, want ErrAlreadyReleased", err)
	}
	if err := stale.Drop(); !errors.Is(err, briny.ErrAlreadyReleased) {
		t.Errorf("stale Drop() = %v, want ErrAlreadyReleased", err)
	}

	g, err := fresh.TryRead()
	if err != nil {
		t.Fatalf("fresh TryRead() failed: %v", err)
	}
	if g.Get().id != 2 {
		t.Errorf("occupant value = %d, want 2", g.Get().id)
	}
	g.Release()
	if err := fresh.Drop(); err != nil {
		t.Fatalf("Drop() failed: %v", err)
	}
}

// ========================================
// Concurrency Tests
// ========================================

// TestPool_ConcurrentChurn stress-tests acquire/clone/drop from many
// goroutines; afterwards every slot must be back on the free list.
func TestPool_ConcurrentChurn(t *testing.T) {
	const (
		capacity   = 8
		workers    = 8
		iterations = 5000
	)

	p, err := New[job](capacity, func(j *job) { j.id = 0 })
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	var (
		wg        sync.WaitGroup
		exhausted atomic.Int64
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed int) {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				r, err := p.Acquire(job{id: seed})
				if errors.Is(err, briny.ErrExhausted) {
					exhausted.Add(1)
					continue
				}
				if err != nil {
					t.Errorf("Acquire() = %v", err)
					return
				}
				if i%2 == 0 {
					h, err := r.Clone()
					if err != nil {
						t.Errorf("Clone() = %v", err)
						return
					}
					if err := h.Drop(); err != nil {
						t.Errorf("Drop() of clone = %v", err)
						return
					}
				}
				if err := r.Drop(); err != nil {
					t.Errorf("Drop() = %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	if free := p.Free(); free != capacity {
		t.Errorf("Free() after churn = %d, want %d", free, capacity)
	}
	t.Logf("churn complete: %d transient exhaustions over %d iterations",
		exhausted.Load(), workers*iterations)
}

// TestPool_ConcurrentAcquire_NoSlotSharing verifies no two live handles from
// concurrent acquires ever name the same slot occupancy.
func TestPool_ConcurrentAcquire_NoSlotSharing(t *testing.T) {
	const (
		capacity = 4
		workers  = 8
		rounds   = 2000
	)

	p, err := New[int](capacity, nil)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	var (
		wg         sync.WaitGroup
		violations atomic.Int32
	)
	var owners [capacity]atomic.Int32

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				r, err := p.Acquire(i)
				if err != nil {
					continue
				}
				if owners[r.idx].Add(1) != 1 {
					violations.Add(1)
				}
				owners[r.idx].Add(-1)
				if err := r.Drop(); err != nil {
					t.Errorf("Drop() = %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()

	if v := violations.Load(); v != 0 {
		t.Errorf("observed %d double-owned slots, want 0", v)
	}
}

// TestPool_StaleGuardNeverCoversNewOccupant churns reclamation of a single
// slot while an old handle keeps attempting guarded access. A guard obtained
// through the old handle may cover its own occupancy's value (or the reset
// value during reclamation), but never the one installed by a later Acquire.
func TestPool_StaleGuardNeverCoversNewOccupant(t *testing.T) {
	const rounds = 5000

	p, err := New(1, func(j *job) { j.id = 0 })
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	for round := 0; round < rounds; round++ {
		r, err := p.Acquire(job{id: 1})
		if err != nil {
			t.Fatalf("round %d: Acquire() failed: %v", round, err)
		}
		h := r

		var (
			start sync.WaitGroup
			done  sync.WaitGroup
		)
		start.Add(1)
		done.Add(1)
		go func() {
			defer done.Done()
			start.Wait()
			for i := 0; i < 4; i++ {
				g, err := h.TryRead()
				if err != nil {
					continue
				}
				if got := g.Get().id; got == 2 {
					t.Errorf("round %d: guard through old handle sees the next occupant", round)
				}
				g.Release()
			}
		}()
		start.Done()

		if err := r.Drop(); err != nil {
			t.Fatalf("round %d: Drop() failed: %v", round, err)
		}
		fresh, err := p.Acquire(job{id: 2})
		if err != nil {
			t.Fatalf("round %d: reacquire failed: %v", round, err)
		}
		done.Wait()
		if err := fresh.Drop(); err != nil {
			t.Fatalf("round %d: Drop() of reacquired slot failed: %v", round, err)
		}
	}

	if p.Free() != 1 {
		t.Errorf("Free() after churn = %d, want 1", p.Free())
	}
}

// ========================================
// Benchmarks
// ========================================

func BenchmarkPool_AcquireDrop(b *testing.B) {
	p, err := New[job](64, nil)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		r, err := p.Acquire(job{id: i})
		if err != nil {
			b.Fatal(err)
		}
		if err := r.Drop(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPool_AcquireDrop_Parallel(b *testing.B) {
	p, err := New[job](1024, nil)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			r, err := p.Acquire(job{})
			if err != nil {
				continue
			}
			_ = r.Drop()
		}
	})
}
