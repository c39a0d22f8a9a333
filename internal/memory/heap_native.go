//go:build !wasm

package memory

import "math"

// place assigns the next synthetic offset, aligned to 8 bytes.
// Offsets are never reused so stale handles cannot alias new buffers.
func (h *Heap) place(buf []byte) (uint32, bool) {
	off := h.next
	end := uint64(off) + uint64(max(cap(buf), 1))
	end = (end + alignment - 1) &^ (alignment - 1)
	if end > math.MaxUint32 {
		return 0, false
	}
	h.next = uint32(end)
	return off, true
}
