package wasm

// This file defines the Wasm ABI between the decoder guest and its host.
// The guest (cmd/guest) implements the exports using //go:wasmexport and the
// host (internal/wasm) calls them by name.
//
// NOTE: uint32 is used for pointers and lengths because WebAssembly uses a 32-bit
// linear memory model. Regions are returned as a packed i64 (offset<<32 | length),
// see protocol.Handle.Pack.
//
// Exported functions:
//
// //go:wasmexport init_diagnostics
// func initDiagnostics(level uint32)
//
// //go:wasmexport input_buffer_new
// func inputBufferNew(size uint32) uint32
//
// //go:wasmexport input_buffer_ptr
// func inputBufferPtr(id uint32) uint64
//
// //go:wasmexport input_buffer_free
// func inputBufferFree(id uint32)
//
// //go:wasmexport decoder_new
// func decoderNew(expectedWidth, expectedHeight uint32) uint32
//
// //go:wasmexport decoder_output_ptr
// func decoderOutputPtr(id uint32) uint64
//
// //go:wasmexport decoder_decode
// func decoderDecode(id, inputPtr, inputLen uint32) uint32
//
// //go:wasmexport decoder_width
// func decoderWidth(id uint32) uint32
//
// //go:wasmexport decoder_height
// func decoderHeight(id uint32) uint32
//
// //go:wasmexport decoder_status
// func decoderStatus(id uint32) uint32
//
// //go:wasmexport decoder_free
// func decoderFree(id uint32)

// ABIVersion is bumped whenever an export changes signature.
const ABIVersion = 1

const (
	ExportInitDiagnostics = "init_diagnostics"
	ExportInputBufferNew  = "input_buffer_new"
	ExportInputBufferPtr  = "input_buffer_ptr"
	ExportInputBufferFree = "input_buffer_free"
	ExportDecoderNew      = "decoder_new"
	ExportDecoderOutput   = "decoder_output_ptr"
	ExportDecoderDecode   = "decoder_decode"
	ExportDecoderWidth    = "decoder_width"
	ExportDecoderHeight   = "decoder_height"
	ExportDecoderStatus   = "decoder_status"
	ExportDecoderFree     = "decoder_free"
)

// Exports lists every function the guest must export.
var Exports = []string{
	ExportInitDiagnostics,
	ExportInputBufferNew,
	ExportInputBufferPtr,
	ExportInputBufferFree,
	ExportDecoderNew,
	ExportDecoderOutput,
	ExportDecoderDecode,
	ExportDecoderWidth,
	ExportDecoderHeight,
	ExportDecoderStatus,
	ExportDecoderFree,
}

// Host imports.
const (
	HostModule        = "host"
	ImportLogMessage  = "log_message"
	StartFunctionName = "_initialize"
)

// Log levels understood by host.log_message.
const (
	LogLevelDebug uint32 = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)
