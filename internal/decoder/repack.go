package decoder

import (
	"iter"

	"github.com/woxQAQ/wasm-jpeg-decoder/pkg/protocol"
)

// Quads yields one opaque RGBA quad per complete RGB triple in rgb, along
// with the pixel index. A trailing partial triple is ignored.
func Quads(rgb []byte) iter.Seq2[int, [4]byte] {
	return func(yield func(int, [4]byte) bool) {
		for i := 0; i+protocol.BytesPerPixelRGB <= len(rgb); i += protocol.BytesPerPixelRGB {
			q := [4]byte{rgb[i], rgb[i+1], rgb[i+2], protocol.OpaqueAlpha}
			if !yield(i/protocol.BytesPerPixelRGB, q) {
				return
			}
		}
	}
}

// PixelCount returns the number of complete triples in rgb.
func PixelCount(rgb []byte) int {
	return len(rgb) / protocol.BytesPerPixelRGB
}

// Repack writes the quads of rgb into dst in pixel order and returns the
// number of pixels written. dst must hold at least PixelCount(rgb)*4 bytes.
func Repack(dst, rgb []byte) int {
	n := 0
	for i, q := range Quads(rgb) {
		copy(dst[i*protocol.BytesPerPixelRGBA:], q[:])
		n++
	}
	return n
}
