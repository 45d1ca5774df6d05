// Package arena provides the bump allocator that backs histogram buffers.
//
// An Arena hands out 64-byte aligned, zeroed regions rounded up to whole
// cache-line blocks, so per-feature buffers written by different workers never
// share a line. When the bump region is exhausted it falls back to tracked heap
// allocations; callers never see an out-of-space error. Clear rewinds the bump
// pointer in O(used) and drops the fallbacks.
//
// An Arena is not safe for concurrent use. The worker pool gives each worker
// its own arena and clears it after every task.
package arena

import (
	"unsafe"

	"github.com/YuminosukeSato/histboost/pkg/errors"
)

// BlockSize is the allocation granularity and base alignment in bytes.
const BlockSize = 64

// Scalar lists the pointer-free element types that may live in arena memory.
type Scalar interface {
	~float64 | ~float32 | ~int | ~int64 | ~int32 | ~uint64 | ~uint32 | ~uint8
}

type fallback struct {
	buf  []byte
	next *fallback
}

// Arena is a single-owner linear allocator with heap fallback.
type Arena struct {
	buf       []byte
	used      int
	fallbacks *fallback
	nfallback int
	freed     bool
}

// New allocates an arena of blocks*BlockSize zeroed bytes.
func New(blocks int) (*Arena, error) {
	if blocks < 0 {
		return nil, errors.NewValidationError("blocks", "must be >= 0", blocks)
	}
	return &Arena{buf: allocAligned(blocks * BlockSize)}, nil
}

// View describes a region handed out by Allocate. It does not own the memory:
// the arena does, and the region is reused after the next Clear.
type View struct {
	Len      int // number of elements
	ElemSize int // bytes per element
	Offset   int // byte offset in the bump region, -1 for fallback regions
	data     []byte
}

// Bytes returns the region as a byte slice of Len*ElemSize bytes.
func (v View) Bytes() []byte { return v.data }

// InArena reports whether the region lies inside the bump region.
func (v View) InArena() bool { return v.Offset >= 0 }

// Valid reports whether the view refers to memory.
func (v View) Valid() bool { return v.data != nil }

// Addr returns the address of the first byte, or 0 for an empty view.
func (v View) Addr() uintptr {
	if len(v.data) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&v.data[0]))
}

// Allocate reserves bytes bytes for elements of elemSize bytes each. It fails
// with ErrElementSize when bytes is not a whole number of elements. The size
// is rounded up to whole blocks; if the bump region cannot hold it, the region
// is taken from the heap and tracked until the next Clear.
func (a *Arena) Allocate(bytes, elemSize int) (View, error) {
	if a.freed {
		return View{}, errors.WithStack(errors.ErrArenaFreed)
	}
	if elemSize <= 0 || bytes < 0 || bytes%elemSize != 0 {
		return View{}, errors.Wrapf(errors.ErrElementSize, "allocate %d bytes of %d-byte elements", bytes, elemSize)
	}
	if bytes == 0 {
		return View{ElemSize: elemSize, Offset: -1}, nil
	}

	rounded := (bytes + BlockSize - 1) &^ (BlockSize - 1)
	if rounded <= len(a.buf)-a.used {
		v := View{
			Len:      bytes / elemSize,
			ElemSize: elemSize,
			Offset:   a.used,
			data:     a.buf[a.used : a.used+bytes : a.used+bytes],
		}
		a.used += rounded
		return v, nil
	}

	node := &fallback{buf: allocAligned(rounded), next: a.fallbacks}
	a.fallbacks = node
	a.nfallback++
	return View{
		Len:      bytes / elemSize,
		ElemSize: elemSize,
		Offset:   -1,
		data:     node.buf[:bytes:bytes],
	}, nil
}

// Clear zeroes the used part of the bump region, rewinds it and releases all
// fallback regions. The unused tail is already zero.
func (a *Arena) Clear() {
	clear(a.buf[:a.used])
	a.used = 0
	a.fallbacks = nil
	a.nfallback = 0
}

// Free releases all memory. Further allocations fail with ErrArenaFreed.
func (a *Arena) Free() {
	a.buf = nil
	a.used = 0
	a.fallbacks = nil
	a.nfallback = 0
	a.freed = true
}

// Capacity returns the size of the bump region in bytes.
func (a *Arena) Capacity() int { return len(a.buf) }

// Used returns the bytes handed out from the bump region, including rounding.
func (a *Arena) Used() int { return a.used }

// Remaining returns the bytes left in the bump region.
func (a *Arena) Remaining() int { return len(a.buf) - a.used }

// Fallbacks returns the number of live heap fallback regions.
func (a *Arena) Fallbacks() int { return a.nfallback }

// Base returns the address of the bump region, or 0 when it is empty.
func (a *Arena) Base() uintptr {
	if len(a.buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&a.buf[0]))
}

// Slice allocates n zeroed elements of T and returns them as a typed slice.
func Slice[T Scalar](a *Arena, n int) ([]T, error) {
	var zero T
	size := int(unsafe.Sizeof(zero))
	v, err := a.Allocate(n*size, size)
	if err != nil {
		return nil, err
	}
	return As[T](v), nil
}

// As reinterprets a view as a slice of T. It returns nil when the view's
// element size does not match T.
func As[T Scalar](v View) []T {
	var zero T
	if len(v.data) == 0 || int(unsafe.Sizeof(zero)) != v.ElemSize {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&v.data[0])), v.Len) //nolint:gosec // region is aligned and sized for T
}

// allocAligned returns a zeroed slice of size bytes starting on a BlockSize boundary.
func allocAligned(size int) []byte {
	if size == 0 {
		return nil
	}
	buf := make([]byte, size+BlockSize)
	addr := uintptr(unsafe.Pointer(&buf[0])) //nolint:gosec // alignment arithmetic
	offset := int((BlockSize - (addr & (BlockSize - 1))) & (BlockSize - 1))
	return buf[offset : offset+size : offset+size]
}
