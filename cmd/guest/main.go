//go:build wasip1

// Command guest is the Wasm decoder module. Build it as a reactor:
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o decoder.wasm ./cmd/guest
//
// The host must call _initialize once, then init_diagnostics, before any
// other export.
package main

import (
	"github.com/woxQAQ/wasm-jpeg-decoder/api/wasm"
	"github.com/woxQAQ/wasm-jpeg-decoder/internal/decoder"
	"github.com/woxQAQ/wasm-jpeg-decoder/internal/guest"
	"github.com/woxQAQ/wasm-jpeg-decoder/internal/memory"
	"github.com/woxQAQ/wasm-jpeg-decoder/pkg/protocol"
	"go.uber.org/zap"
)

var (
	diag     guest.Diagnostics
	heap     = memory.NewHeap()
	inputs   = guest.NewTable[*decoder.InputBuffer]()
	decoders = guest.NewTable[*decoder.Decoder]()
)

func main() {}

//go:wasmexport init_diagnostics
func initDiagnostics(level uint32) {
	logger := diag.Setup(hostLog, guest.ABIToLevel(level))
	logger.Info("Decoder guest ready", zap.Int("abi_version", wasm.ABIVersion))
}

//go:wasmexport input_buffer_new
func inputBufferNew(size uint32) uint32 {
	defer diag.Recover(wasm.ExportInputBufferNew)
	return inputs.Put(decoder.NewInputBuffer(heap, size))
}

//go:wasmexport input_buffer_ptr
func inputBufferPtr(id uint32) uint64 {
	in, ok := inputs.Get(id)
	if !ok {
		return 0
	}
	return in.InputPointer().Pack()
}

//go:wasmexport input_buffer_free
func inputBufferFree(id uint32) {
	if in, ok := inputs.Delete(id); ok {
		in.Free()
	}
}

//go:wasmexport decoder_new
func decoderNew(expectedWidth, expectedHeight uint32) uint32 {
	defer diag.Recover(wasm.ExportDecoderNew)
	d := decoder.NewDecoder(heap, expectedWidth, expectedHeight, decoder.WithLogger(diag.Logger()))
	return decoders.Put(d)
}

//go:wasmexport decoder_output_ptr
func decoderOutputPtr(id uint32) uint64 {
	d, ok := decoders.Get(id)
	if !ok {
		return 0
	}
	return d.OutputPointer().Pack()
}

//go:wasmexport decoder_decode
func decoderDecode(id, inputPtr, inputLen uint32) uint32 {
	defer diag.Recover(wasm.ExportDecoderDecode)
	d, ok := decoders.Get(id)
	if !ok {
		return 0
	}
	if d.DecodeOK(protocol.Handle{Offset: inputPtr, Length: inputLen}) {
		return 1
	}
	return 0
}

//go:wasmexport decoder_width
func decoderWidth(id uint32) uint32 {
	if d, ok := decoders.Get(id); ok {
		return uint32(d.Width())
	}
	return 0
}

//go:wasmexport decoder_height
func decoderHeight(id uint32) uint32 {
	if d, ok := decoders.Get(id); ok {
		return uint32(d.Height())
	}
	return 0
}

//go:wasmexport decoder_status
func decoderStatus(id uint32) uint32 {
	if d, ok := decoders.Get(id); ok {
		return uint32(d.Status())
	}
	return uint32(protocol.StatusInvalidHandle)
}

//go:wasmexport decoder_free
func decoderFree(id uint32) {
	if d, ok := decoders.Delete(id); ok {
		d.Free()
	}
}
