package briny

import "errors"

// Recoverable failure classes. Every sentinel below is returned to the
// caller; none triggers a panic. Retry-on-contention is always a caller
// decision: no primitive retries past its documented bound internally.
var (
	// ErrLocked reports that a cell could not be acquired because a
	// conflicting guard is currently held (a writer blocks everyone; any
	// reader blocks writers).
	ErrLocked = errors.New("briny: cell is locked")

	// ErrExhausted reports that a pool has no free slot left.
	ErrExhausted = errors.New("briny: pool exhausted")

	// ErrAlreadyReleased reports an operation through a shared reference
	// whose storage has concluded: the counter was observed at zero, or the
	// backing storage's generation stamp no longer matches the handle.
	ErrAlreadyReleased = errors.New("briny: reference already released")

	// ErrSizeMismatch reports that a byte span's length does not satisfy the
	// cast target's size requirement.
	ErrSizeMismatch = errors.New("briny: cast size mismatch")

	// ErrAlignmentMismatch reports that a byte span's base address is not
	// aligned for the cast target.
	ErrAlignmentMismatch = errors.New("briny: cast alignment mismatch")

	// ErrInvalidBitPattern reports that a byte span holds a bit pattern the
	// cast target declares illegal.
	ErrInvalidBitPattern = errors.New("briny: invalid bit pattern for target")

	// ErrMetadataOutOfBounds reports that a variable-length cast target's
	// decoded metadata would permit reads beyond the source span.
	ErrMetadataOutOfBounds = errors.New("briny: cast metadata out of bounds")
)
