package wasm

import (
	"context"
	"errors"
	"fmt"

	abi "github.com/woxQAQ/wasm-jpeg-decoder/api/wasm"
	"github.com/woxQAQ/wasm-jpeg-decoder/internal/guest"
	"github.com/woxQAQ/wasm-jpeg-decoder/pkg/protocol"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var errNullObject = errors.New("guest returned a null object id")

// Binding is a typed client for the decoder ABI of one instance.
// Like the guest it drives, it is not safe for concurrent use.
type Binding struct {
	inst   *Instance
	mem    *Memory
	logger *zap.Logger
}

// NewBinding checks that inst exports the full decoder ABI.
func NewBinding(inst *Instance, logger *zap.Logger) (*Binding, error) {
	for _, name := range abi.Exports {
		if _, ok := inst.Function(name); !ok {
			return nil, &FunctionNotFoundError{ModuleName: inst.Name, FunctionName: name}
		}
	}

	return &Binding{
		inst: inst,
		mem:  inst.Memory(),
		logger: logger.With(
			zap.String("component", "wasm-binding"),
			zap.String("instance_id", inst.ID),
		),
	}, nil
}

// Instance returns the bound instance.
func (b *Binding) Instance() *Instance {
	return b.inst
}

// call invokes an export and returns its first result, or 0 if it has none.
func (b *Binding) call(ctx context.Context, name string, params ...uint64) (uint64, error) {
	fn, ok := b.inst.Function(name)
	if !ok {
		return 0, &FunctionNotFoundError{ModuleName: b.inst.Name, FunctionName: name}
	}

	results, err := fn.Call(ctx, params...)
	if err != nil {
		// With CloseOnContextDone the trap carries an exit code; surface the
		// context error instead so callers can match on it.
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return 0, &GuestCallError{FunctionName: name, Err: err}
	}

	if len(results) == 0 {
		return 0, nil
	}
	return results[0], nil
}

// InitDiagnostics performs the guest's one-time diagnostics setup. Call it
// once, before creating any buffers or decoders.
func (b *Binding) InitDiagnostics(ctx context.Context, level zapcore.Level) error {
	_, err := b.call(ctx, abi.ExportInitDiagnostics, uint64(guest.LevelToABI(level)))
	return err
}

// RemoteInputBuffer is the host's view of a guest InputBuffer.
type RemoteInputBuffer struct {
	b      *Binding
	ID     uint32
	Handle protocol.Handle
}

// NewInputBuffer asks the guest for a zero-filled buffer of size bytes.
func (b *Binding) NewInputBuffer(ctx context.Context, size uint32) (*RemoteInputBuffer, error) {
	id, err := b.call(ctx, abi.ExportInputBufferNew, uint64(size))
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, &GuestCallError{FunctionName: abi.ExportInputBufferNew, Err: errNullObject}
	}

	packed, err := b.call(ctx, abi.ExportInputBufferPtr, id)
	if err != nil {
		return nil, err
	}

	handle := protocol.UnpackHandle(packed)
	if handle.Length != size {
		return nil, &GuestCallError{
			FunctionName: abi.ExportInputBufferPtr,
			Err:          fmt.Errorf("guest returned region %v, want %d bytes", handle, size),
		}
	}

	return &RemoteInputBuffer{b: b, ID: uint32(id), Handle: handle}, nil
}

// Write copies encoded bytes into the guest buffer. Writing more bytes than
// the buffer holds fails without touching guest memory.
func (r *RemoteInputBuffer) Write(data []byte) error {
	return r.b.mem.Write(r.Handle, data)
}

// Free releases the guest buffer.
func (r *RemoteInputBuffer) Free(ctx context.Context) error {
	_, err := r.b.call(ctx, abi.ExportInputBufferFree, uint64(r.ID))
	return err
}

// RemoteDecoder is the host's view of a guest Decoder.
type RemoteDecoder struct {
	b      *Binding
	ID     uint32
	Output protocol.Handle
}

// NewDecoder asks the guest for a decoder sized for expectedWidth x expectedHeight.
func (b *Binding) NewDecoder(ctx context.Context, expectedWidth, expectedHeight uint32) (*RemoteDecoder, error) {
	id, err := b.call(ctx, abi.ExportDecoderNew, uint64(expectedWidth), uint64(expectedHeight))
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return nil, &GuestCallError{FunctionName: abi.ExportDecoderNew, Err: errNullObject}
	}

	packed, err := b.call(ctx, abi.ExportDecoderOutput, id)
	if err != nil {
		return nil, err
	}

	d := &RemoteDecoder{b: b, ID: uint32(id), Output: protocol.UnpackHandle(packed)}

	b.logger.Debug("Guest decoder created",
		zap.Uint32("decoder_id", d.ID),
		zap.Stringer("output", d.Output),
	)

	return d, nil
}

// Decode decodes the guest region in. The boolean is the guest's verdict;
// the error reports a failed call.
func (d *RemoteDecoder) Decode(ctx context.Context, in protocol.Handle) (bool, error) {
	ok, err := d.b.call(ctx, abi.ExportDecoderDecode, uint64(d.ID), uint64(in.Offset), uint64(in.Length))
	if err != nil {
		return false, err
	}
	return ok == 1, nil
}

// Width returns the width reported by the last decode.
func (d *RemoteDecoder) Width(ctx context.Context) (uint16, error) {
	w, err := d.b.call(ctx, abi.ExportDecoderWidth, uint64(d.ID))
	return uint16(w), err
}

// Height returns the height reported by the last decode.
func (d *RemoteDecoder) Height(ctx context.Context) (uint16, error) {
	h, err := d.b.call(ctx, abi.ExportDecoderHeight, uint64(d.ID))
	return uint16(h), err
}

// Status returns the detailed outcome of the last decode.
func (d *RemoteDecoder) Status(ctx context.Context) (protocol.Status, error) {
	s, err := d.b.call(ctx, abi.ExportDecoderStatus, uint64(d.ID))
	return protocol.Status(s), err
}

// Pixels copies the decoded pixels out of guest memory. Only the first
// width*height*4 bytes are read, and never more than the output region.
func (d *RemoteDecoder) Pixels(ctx context.Context) (*protocol.ImageData, error) {
	w, err := d.Width(ctx)
	if err != nil {
		return nil, err
	}
	h, err := d.Height(ctx)
	if err != nil {
		return nil, err
	}

	img := &protocol.ImageData{Width: w, Height: h}
	n := uint64(img.PixelCount()) * protocol.BytesPerPixelRGBA
	if n > uint64(d.Output.Length) {
		return nil, &MemoryAccessError{
			Operation: "read",
			Address:   d.Output.Offset,
			Length:    d.Output.Length,
			Err:       &RegionOverflowError{Region: d.Output, DataLength: int(n)},
		}
	}

	img.Pix, err = d.b.mem.Read(protocol.Handle{Offset: d.Output.Offset, Length: uint32(n)})
	if err != nil {
		return nil, err
	}
	return img, nil
}

// Free releases the guest decoder and its output buffer.
func (d *RemoteDecoder) Free(ctx context.Context) error {
	_, err := d.b.call(ctx, abi.ExportDecoderFree, uint64(d.ID))
	return err
}
