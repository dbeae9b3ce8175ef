// Package cast checks whether a raw byte span may legally be viewed as a
// value of a target type, and produces a validated, non-copying typed view
// or a precise error.
//
// This is the sole trusted boundary converting bytes into typed values:
// downstream code never reinterprets memory directly. Four checks run in a
// fixed order — length, alignment, bit-pattern validity, and (for
// variable-length targets) metadata bounds — and the first failure
// determines the reported error; checks are never reordered or combined.
//
// Bit-pattern legality is pluggable: targets whose types restrict which
// patterns are legal (a bool-like byte, an enum discriminant) supply a
// predicate invoked once per cast, instead of baking the rule into the type
// system.
package cast

import (
	"encoding/binary"
	"unsafe"

	"github.com/bobbothe2nd/briny"
)

// Target describes what a byte span must satisfy to be viewed as a value.
// A Target is transient: it exists only for the duration of a single Cast.
type Target struct {
	// Size is the required span length for fixed-size targets, or the
	// minimum header length for variable-length targets.
	Size uintptr

	// Align is the required alignment of the span's base address. Zero or
	// one means byte-aligned.
	Align uintptr

	// Valid, when non-nil, judges the span's bit pattern. It must be pure:
	// no retention of the span, no mutation.
	Valid func([]byte) bool

	// Meta, when non-nil, marks the target variable-length. It receives the
	// leading Size header bytes and decodes the payload extent the span
	// claims for itself, reporting ok=false when the decoded length field
	// violates the target's declared bounds.
	Meta func(header []byte) (extent uintptr, ok bool)
}

// FixedTarget returns a descriptor for a fixed-size target with an optional
// bit-pattern predicate.
func FixedTarget(size, align uintptr, valid func([]byte) bool) Target {
	return Target{Size: size, Align: align, Valid: valid}
}

// View is a validated window over the original bytes. Only Cast constructs
// one: the unexported field keeps external code from fabricating a validated
// view structurally.
type View struct {
	data []byte
}

// Bytes returns the validated span. The bytes are the caller's original
// storage, not a copy.
func (v View) Bytes() []byte {
	return v.data
}

// Len returns the validated span's length.
func (v View) Len() int {
	return len(v.data)
}

// Cast validates src against t.
//
// Checks, in order:
//  1. length — fixed targets need len(src) == t.Size exactly; for
//     variable-length targets the length field inside the leading header is
//     read first and checked against the target's declared bounds
//     (briny.ErrSizeMismatch);
//  2. alignment — the span's base address modulo t.Align must be zero
//     (briny.ErrAlignmentMismatch);
//  3. bit pattern — t.Valid, when present, must accept the span
//     (briny.ErrInvalidBitPattern);
//  4. metadata bounds — a variable-length target's decoded extent must not
//     permit reads beyond src (briny.ErrMetadataOutOfBounds).
//
// On success the returned view aliases src; nothing is copied.
func Cast(src []byte, t Target) (View, error) {
	var extent uintptr
	if t.Meta == nil {
		if uintptr(len(src)) != t.Size {
			return View{}, briny.ErrSizeMismatch
		}
	} else {
		if uintptr(len(src)) < t.Size {
			return View{}, briny.ErrSizeMismatch
		}
		var ok bool
		extent, ok = t.Meta(src[:t.Size])
		if !ok {
			return View{}, briny.ErrSizeMismatch
		}
	}

	if t.Align > 1 && len(src) > 0 {
		if uintptr(unsafe.Pointer(&src[0]))%t.Align != 0 {
			return View{}, briny.ErrAlignmentMismatch
		}
	}

	if t.Valid != nil && !t.Valid(src) {
		return View{}, briny.ErrInvalidBitPattern
	}

	if t.Meta != nil {
		total := t.Size + extent
		if total < t.Size || total > uintptr(len(src)) {
			return View{}, briny.ErrMetadataOutOfBounds
		}
	}

	return View{data: src}, nil
}

// TargetOf returns the fixed-size descriptor for T, with no bit-pattern
// predicate.
func TargetOf[T any]() Target {
	var z T
	return Target{Size: unsafe.Sizeof(z), Align: unsafe.Alignof(z)}
}

// As validates src for T and returns a non-copying typed view over the
// original bytes. valid may be nil for types where every pattern is legal.
//
// The pointer aliases src: it stays valid exactly as long as src's backing
// array, and writes through it are writes into src.
func As[T any](src []byte, valid func([]byte) bool) (*T, error) {
	t := TargetOf[T]()
	if t.Size == 0 {
		return nil, briny.ErrSizeMismatch
	}
	t.Valid = valid
	if _, err := Cast(src, t); err != nil {
		return nil, err
	}
	return (*T)(unsafe.Pointer(&src[0])), nil
}

// Value validates src for T and returns the value by copy. The same checks
// as As apply; the copy just decouples the result's lifetime from src.
func Value[T any](src []byte, valid func([]byte) bool) (T, error) {
	p, err := As[T](src, valid)
	if err != nil {
		var z T
		return z, err
	}
	return *p, nil
}

// SliceOf validates src as a whole span of T values and returns a
// non-copying []T over it. The span length must be an exact multiple of T's
// size, the base address must be aligned for T, and valid (when non-nil)
// must accept every element's bytes.
func SliceOf[T any](src []byte, valid func([]byte) bool) ([]T, error) {
	var z T
	size := unsafe.Sizeof(z)
	if size == 0 || uintptr(len(src))%size != 0 {
		return nil, briny.ErrSizeMismatch
	}
	if len(src) == 0 {
		return nil, nil
	}
	if uintptr(unsafe.Pointer(&src[0]))%unsafe.Alignof(z) != 0 {
		return nil, briny.ErrAlignmentMismatch
	}
	n := uintptr(len(src)) / size
	if valid != nil {
		for i := uintptr(0); i < n; i++ {
			if !valid(src[i*size : (i+1)*size]) {
				return nil, briny.ErrInvalidBitPattern
			}
		}
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&src[0])), n), nil
}

// Bytes returns v's storage as a byte span. The reverse direction needs no
// validation: any value is legal as bytes, and byte alignment is trivially
// satisfied.
func Bytes[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), int(unsafe.Sizeof(*v)))
}

// SliceBytes returns a slice's storage as a byte span, without copying.
func SliceBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var z T
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*int(unsafe.Sizeof(z)))
}

// ValidBool accepts spans whose every byte is 0 or 1 — the legality rule for
// bool-like targets.
func ValidBool(b []byte) bool {
	for _, x := range b {
		if x > 1 {
			return false
		}
	}
	return true
}

// LengthPrefix returns a Meta decoder for the common layout of a
// little-endian length prefix of width bytes (2, 4, or 8), bounded by max.
// The decoded extent counts payload bytes after the prefix.
func LengthPrefix(width uintptr, max uintptr) func([]byte) (uintptr, bool) {
	return func(header []byte) (uintptr, bool) {
		if uintptr(len(header)) < width {
			return 0, false
		}
		var n uint64
		switch width {
		case 2:
			n = uint64(binary.LittleEndian.Uint16(header))
		case 4:
			n = uint64(binary.LittleEndian.Uint32(header))
		case 8:
			n = binary.LittleEndian.Uint64(header)
		default:
			return 0, false
		}
		// Compare in uint64 before narrowing: on 32-bit platforms a
		// uintptr conversion would truncate an 8-byte prefix and let an
		// enormous declared length slip under max.
		if n > uint64(max) {
			return 0, false
		}
		return uintptr(n), true
	}
}
