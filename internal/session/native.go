package session

import (
	"context"
	"fmt"

	"github.com/woxQAQ/wasm-jpeg-decoder/internal/decoder"
	"github.com/woxQAQ/wasm-jpeg-decoder/internal/memory"
	"github.com/woxQAQ/wasm-jpeg-decoder/pkg/protocol"
	"go.uber.org/zap"
)

// nativeEngine runs the decoder in process over a host heap. It shares the
// guest's code path without the sandbox.
type nativeEngine struct {
	heap   *memory.Heap
	logger *zap.Logger
}

func newNativeEngine(heapLimit uint64, logger *zap.Logger) *nativeEngine {
	var opts []memory.HeapOption
	if heapLimit > 0 {
		opts = append(opts, memory.WithLimit(heapLimit))
	}
	return &nativeEngine{
		heap:   memory.NewHeap(opts...),
		logger: logger.With(zap.String("component", "native-engine")),
	}
}

func (e *nativeEngine) NewFrameDecoder(ctx context.Context, width, height uint32) (fd FrameDecoder, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	defer recoverAllocation(&err)

	dec := decoder.NewDecoder(e.heap, width, height, decoder.WithLogger(e.logger))
	return &nativeDecoder{heap: e.heap, dec: dec}, nil
}

func (e *nativeEngine) Close(ctx context.Context) error {
	if live := e.heap.Live(); live > 0 {
		e.logger.Warn("Closing engine with live allocations", zap.Int("live", live))
	}
	return nil
}

type nativeDecoder struct {
	heap *memory.Heap
	dec  *decoder.Decoder
}

func (d *nativeDecoder) Decode(ctx context.Context, data []byte) (img *protocol.ImageData, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	defer recoverAllocation(&err)

	in := decoder.NewInputBuffer(d.heap, uint32(len(data)))
	defer in.Free()

	buf, _ := d.heap.Bytes(in.InputPointer())
	copy(buf, data)

	if err := d.dec.Decode(in.InputPointer()); err != nil {
		return nil, err
	}

	img = &protocol.ImageData{Width: d.dec.Width(), Height: d.dec.Height()}
	n := uint32(img.PixelCount()) * protocol.BytesPerPixelRGBA

	out, ok := d.heap.Bytes(protocol.Handle{Offset: d.dec.OutputPointer().Offset, Length: n})
	if !ok {
		return nil, decoder.ErrInvalidHandle
	}
	img.Pix = append([]byte(nil), out...)
	return img, nil
}

func (d *nativeDecoder) Free(ctx context.Context) error {
	d.dec.Free()
	return nil
}

// recoverAllocation turns an allocator panic into an error. Any other panic
// is re-raised.
func recoverAllocation(err *error) {
	r := recover()
	if r == nil {
		return
	}
	allocErr, ok := r.(*memory.AllocationError)
	if !ok {
		panic(r)
	}
	*err = fmt.Errorf("native engine: %w", allocErr)
}
