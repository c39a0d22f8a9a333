// Package memory allocates guest buffers that are shared with the host
// through linear memory.
//
// Buffers are addressed by protocol.Handle values rather than raw pointers.
// A handle resolves only while the allocation it points into is live, and
// only if it lies wholly inside that allocation.
package memory

import (
	"math"
	"sync"

	"github.com/woxQAQ/wasm-jpeg-decoder/pkg/protocol"
)

// Allocator hands out buffers in guest linear memory.
type Allocator interface {
	// Alloc returns a zero-filled region of exactly size bytes.
	// It panics with *AllocationError if the memory cannot be provided.
	Alloc(size uint32) protocol.Handle

	// Free releases a region returned by Alloc. Unknown handles are ignored.
	Free(h protocol.Handle)

	// Bytes resolves a handle to the backing memory.
	Bytes(h protocol.Handle) ([]byte, bool)
}

// alignment of every allocation offset.
const alignment = 8

// Heap is an Allocator backed by the Go heap.
//
// On wasm builds the offset of each handle is the real address of the
// backing array in linear memory. The Go collector does not move heap
// objects, so the address is stable for as long as the allocation is pinned
// in the live table. On other builds offsets are synthetic.
type Heap struct {
	mu    sync.Mutex
	live  map[uint32][]byte
	inUse uint64
	limit uint64

	// next synthetic offset; unused on wasm.
	next uint32
}

// HeapOption configures a Heap.
type HeapOption func(*Heap)

// WithLimit caps the total number of live bytes.
func WithLimit(bytes uint64) HeapOption {
	return func(h *Heap) {
		h.limit = bytes
	}
}

// NewHeap creates an empty heap.
func NewHeap(opts ...HeapOption) *Heap {
	h := &Heap{
		live:  make(map[uint32][]byte),
		limit: math.MaxUint32,
		next:  protocol.PageSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Alloc implements Allocator.
func (h *Heap) Alloc(size uint32) protocol.Handle {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.inUse+uint64(size) > h.limit {
		panic(&AllocationError{Size: uint64(size), InUse: h.inUse, Limit: h.limit})
	}

	// Zero-length buffers still get a distinct backing array so that
	// their address is unique and non-nil.
	buf := make([]byte, size, max(size, 1))
	off, ok := h.place(buf)
	if !ok {
		panic(&AllocationError{Size: uint64(size), InUse: h.inUse, Limit: h.limit})
	}

	h.live[off] = buf
	h.inUse += uint64(size)

	return protocol.Handle{Offset: off, Length: size}
}

// Free implements Allocator.
func (h *Heap) Free(handle protocol.Handle) {
	h.mu.Lock()
	defer h.mu.Unlock()

	buf, ok := h.live[handle.Offset]
	if !ok {
		return
	}
	delete(h.live, handle.Offset)
	h.inUse -= uint64(len(buf))
}

// Bytes implements Allocator.
func (h *Heap) Bytes(handle protocol.Handle) ([]byte, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if buf, ok := h.live[handle.Offset]; ok {
		if uint64(handle.Length) > uint64(len(buf)) {
			return nil, false
		}
		return buf[:handle.Length:handle.Length], true
	}

	// Interior handle: find the allocation that contains it.
	for off, buf := range h.live {
		region := protocol.Handle{Offset: off, Length: uint32(len(buf))}
		if region.Contains(handle) {
			start := handle.Offset - off
			end := start + handle.Length
			return buf[start:end:end], true
		}
	}

	return nil, false
}

// Live returns the number of live allocations.
func (h *Heap) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live)
}

// InUse returns the number of bytes held by live allocations.
func (h *Heap) InUse() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inUse
}
