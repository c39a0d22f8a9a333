// Package decoder implements the guest side of the JPEG decoding boundary:
// an input buffer the host fills, and a decoder that expands decoded RGB
// pixels into a preallocated RGBA output buffer.
//
// Neither type is safe for concurrent use.
package decoder

import (
	"errors"
	"math"

	"github.com/woxQAQ/wasm-jpeg-decoder/internal/memory"
	"github.com/woxQAQ/wasm-jpeg-decoder/pkg/protocol"
	"go.uber.org/zap"
)

// Decoder owns an RGBA output buffer sized for an expected image.
type Decoder struct {
	mem        memory.Allocator
	capability Capability
	logger     *zap.Logger

	out    protocol.Handle
	width  uint16
	height uint16
	status protocol.Status
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithCapability replaces the default JPEG capability.
func WithCapability(c Capability) Option {
	return func(d *Decoder) {
		d.capability = c
	}
}

// WithLogger sets the decoder's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Decoder) {
		d.logger = logger
	}
}

// NewDecoder allocates a zero-filled output buffer of
// expectedWidth * expectedHeight * 4 bytes. The size never changes.
// Allocation failure, including a size that does not fit linear memory,
// panics.
func NewDecoder(mem memory.Allocator, expectedWidth, expectedHeight uint32, opts ...Option) *Decoder {
	d := &Decoder{
		mem:        mem,
		capability: JPEG{},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(zap.String("component", "decoder"))

	size := uint64(expectedWidth) * uint64(expectedHeight) * protocol.BytesPerPixelRGBA
	if size > math.MaxUint32 {
		panic(&memory.AllocationError{Size: size, Limit: math.MaxUint32})
	}
	d.out = mem.Alloc(uint32(size))

	d.logger.Debug("Decoder created",
		zap.Uint32("expected_width", expectedWidth),
		zap.Uint32("expected_height", expectedHeight),
		zap.Uint32("capacity", d.out.Length),
	)

	return d
}

// OutputPointer returns the output region. It is valid until Free.
func (d *Decoder) OutputPointer() protocol.Handle {
	return d.out
}

// Capacity returns the size of the output buffer in bytes.
func (d *Decoder) Capacity() uint32 {
	return d.out.Length
}

// Width returns the width of the last successful decode, or 0.
func (d *Decoder) Width() uint16 {
	return d.width
}

// Height returns the height of the last successful decode, or 0.
func (d *Decoder) Height() uint16 {
	return d.height
}

// Status returns the outcome of the last Decode call.
func (d *Decoder) Status() protocol.Status {
	return d.status
}

// Decode decodes the encoded bytes in input and writes opaque RGBA pixels to
// the output buffer.
//
// Width and height are reset to zero first and only set again on success.
// On ErrDecodeFailed the output contents are unspecified. On
// *CapacityExceededError and ErrInvalidHandle the output is untouched.
func (d *Decoder) Decode(input protocol.Handle) error {
	d.width, d.height = 0, 0

	data, ok := d.mem.Bytes(input)
	if !ok {
		d.status = protocol.StatusInvalidHandle
		d.logger.Warn("Input handle does not resolve", zap.Stringer("input", input))
		return ErrInvalidHandle
	}

	img, err := d.capability.Decode(data)
	if err != nil {
		d.status = protocol.StatusDecodeFailed
		d.logger.Debug("Decode failed",
			zap.Uint32("input_len", input.Length),
			zap.Error(err),
		)
		return &decodeError{cause: err}
	}

	pixels := uint64(PixelCount(img.Pix))
	if pixels*protocol.BytesPerPixelRGBA > uint64(d.out.Length) {
		d.status = protocol.StatusCapacityExceeded
		err := &CapacityExceededError{
			Width:    img.Width,
			Height:   img.Height,
			Pixels:   pixels,
			Capacity: d.out.Length,
		}
		d.logger.Warn("Decoded image does not fit output buffer", zap.Error(err))
		return err
	}

	out, ok := d.mem.Bytes(d.out)
	if !ok {
		// The output buffer was freed underneath us.
		d.status = protocol.StatusInvalidHandle
		return ErrInvalidHandle
	}

	Repack(out, img.Pix)

	d.width, d.height = img.Width, img.Height
	d.status = protocol.StatusDecoded

	d.logger.Debug("Decoded image",
		zap.Uint16("width", d.width),
		zap.Uint16("height", d.height),
		zap.Uint64("pixels", pixels),
	)

	return nil
}

// DecodeOK is Decode collapsed to a success flag.
func (d *Decoder) DecodeOK(input protocol.Handle) bool {
	return d.Decode(input) == nil
}

// Free releases the output buffer.
func (d *Decoder) Free() {
	d.mem.Free(d.out)
}

// IsCapacityExceeded reports whether err is a *CapacityExceededError.
func IsCapacityExceeded(err error) bool {
	var ce *CapacityExceededError
	return errors.As(err, &ce)
}
