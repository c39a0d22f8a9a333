package wasm

import (
	"errors"

	"github.com/tetratelabs/wazero/api"
	"github.com/woxQAQ/wasm-jpeg-decoder/pkg/protocol"
)

var errOutOfRange = errors.New("region outside linear memory")

// Memory provides safe memory operations for Wasm module interaction.
//
// All access goes through protocol.Handle values handed out by the guest, so
// a read or write can never leave the region the guest allocated for it. The
// guest owns allocation; the host only fills and drains guest buffers.
type Memory struct {
	mem api.Memory
}

// NewMemory creates a memory helper.
func NewMemory(module api.Module) *Memory {
	return &Memory{mem: module.Memory()}
}

// Size returns the current size of linear memory in bytes.
func (m *Memory) Size() uint32 {
	return m.mem.Size()
}

// Read copies the region h out of Wasm memory.
// The copy stays valid after the guest frees or reuses the region.
func (m *Memory) Read(h protocol.Handle) ([]byte, error) {
	buf, ok := m.mem.Read(h.Offset, h.Length)
	if !ok {
		return nil, &MemoryAccessError{
			Operation: "read",
			Address:   h.Offset,
			Length:    h.Length,
			Err:       errOutOfRange,
		}
	}

	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

// Write copies data into the region h. data must fit in h.
func (m *Memory) Write(h protocol.Handle, data []byte) error {
	if uint64(len(data)) > uint64(h.Length) {
		return &MemoryAccessError{
			Operation: "write",
			Address:   h.Offset,
			Length:    h.Length,
			Err:       &RegionOverflowError{Region: h, DataLength: len(data)},
		}
	}

	if !m.mem.Write(h.Offset, data) {
		return &MemoryAccessError{
			Operation: "write",
			Address:   h.Offset,
			Length:    uint32(len(data)),
			Err:       errOutOfRange,
		}
	}

	return nil
}
