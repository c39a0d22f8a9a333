package decoder

import (
	"github.com/woxQAQ/wasm-jpeg-decoder/internal/memory"
	"github.com/woxQAQ/wasm-jpeg-decoder/pkg/protocol"
)

// InputBuffer is a guest-owned buffer the host writes encoded bytes into.
// The guest never reads it back through this type; Decoder.Decode reads the
// region by handle.
type InputBuffer struct {
	mem    memory.Allocator
	handle protocol.Handle
}

// NewInputBuffer allocates a zero-filled buffer of exactly size bytes.
// Allocation failure panics.
func NewInputBuffer(mem memory.Allocator, size uint32) *InputBuffer {
	return &InputBuffer{
		mem:    mem,
		handle: mem.Alloc(size),
	}
}

// InputPointer returns the region the host must fill before decoding.
func (b *InputBuffer) InputPointer() protocol.Handle {
	return b.handle
}

// Free releases the buffer. Handles obtained from InputPointer become invalid.
func (b *InputBuffer) Free() {
	b.mem.Free(b.handle)
}
