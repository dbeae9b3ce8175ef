// Package briny provides allocation-free memory-safety primitives for
// constrained concurrent environments: a guarded interior-mutability cell,
// two variants of allocation-free reference-counted shared ownership, and a
// validated byte-reinterpretation facility.
//
// The package assumes only atomic read-modify-write instructions. No kernel
// mutex, condition variable, or scheduler cooperation is required: every
// primitive offers a non-blocking form that fails immediately on contention,
// plus a bounded-retry form whose bound is a caller-supplied iteration count.
//
// # Components
//
//   - cell: a single-slot interior-mutability cell with runtime-checked
//     exclusive/shared access (one writer XOR any number of readers).
//   - ref: reference-counted shared ownership over caller-anchored storage
//     (a package-level variable or a stack frame outliving all handles).
//   - pool: reference-counted shared ownership sourced from a fixed-capacity
//     slot table with a lock-free free list.
//   - cast: the sole trusted boundary converting raw bytes into typed values,
//     after explicit size, alignment, bit-pattern, and metadata checks.
//
// # Data flow
//
// Raw bytes enter through cast, which produces a validated typed view. The
// resulting value may then be placed inside a cell.Cell for safe mutation
// and, if cross-context sharing is needed, bound to a ref.Anchor or acquired
// from a pool.Pool:
//
//	v, err := cast.Value[Record](raw, nil)
//	if err != nil {
//		return err
//	}
//	var anchor ref.Anchor[Record]
//	handle := ref.New(&anchor, v)
//	defer handle.Drop()
//
// # Errors
//
// All contention and validation failures are recoverable and surface as the
// sentinel errors in this package. Corrupted invariants (a negative reference
// count, a cell state outside its defined set, a double guard release) are
// treated as memory corruption: the affected operation panics immediately
// rather than continue on untrusted state.
package briny
