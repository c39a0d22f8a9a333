package protocol

import "fmt"

// Shared types for the guest/host boundary of the JPEG decoder module.
// Both the Wasm guest and the host-side binding import this package.

const (
	// PageSize is the size of one Wasm linear memory page.
	PageSize = 65536

	BytesPerPixelRGB  = 3
	BytesPerPixelRGBA = 4

	// OpaqueAlpha is written into the fourth byte of every output pixel.
	OpaqueAlpha = 0xFF
)

// Handle identifies a region of guest linear memory.
// It replaces bare addresses so the host can bounds-check every access.
type Handle struct {
	Offset uint32
	Length uint32
}

// End returns the first offset past the region.
func (h Handle) End() uint64 {
	return uint64(h.Offset) + uint64(h.Length)
}

// Contains reports whether o lies entirely inside h.
func (h Handle) Contains(o Handle) bool {
	return o.Offset >= h.Offset && o.End() <= h.End()
}

// IsZero reports whether the handle is unset.
func (h Handle) IsZero() bool {
	return h.Offset == 0 && h.Length == 0
}

// Pack encodes the handle as offset<<32 | length for a single i64 return value.
func (h Handle) Pack() uint64 {
	return uint64(h.Offset)<<32 | uint64(h.Length)
}

func (h Handle) String() string {
	return fmt.Sprintf("[%d, %d)", h.Offset, h.End())
}

// UnpackHandle decodes a value produced by Handle.Pack.
func UnpackHandle(v uint64) Handle {
	return Handle{Offset: uint32(v >> 32), Length: uint32(v)}
}

// Status is the detailed outcome of the last decode call on a decoder.
type Status uint32

const (
	StatusUninitialized Status = iota
	StatusDecoded
	StatusDecodeFailed
	StatusCapacityExceeded
	StatusInvalidHandle
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusDecoded:
		return "decoded"
	case StatusDecodeFailed:
		return "decode_failed"
	case StatusCapacityExceeded:
		return "capacity_exceeded"
	case StatusInvalidHandle:
		return "invalid_handle"
	default:
		return fmt.Sprintf("status(%d)", uint32(s))
	}
}

// ImageData is a decoded RGBA frame as seen by a host.
type ImageData struct {
	Width  uint16 `json:"width"`
	Height uint16 `json:"height"`
	Pix    []byte `json:"-"`
}

// PixelCount returns width * height.
func (d *ImageData) PixelCount() int {
	return int(d.Width) * int(d.Height)
}

// Stride returns the number of bytes in one row.
func (d *ImageData) Stride() int {
	return int(d.Width) * BytesPerPixelRGBA
}
