// Package wasmtest builds tiny hand-assembled decoder guests for tests that
// need a real module without compiling cmd/guest.
package wasmtest

import (
	abi "github.com/woxQAQ/wasm-jpeg-decoder/api/wasm"
)

// Bodies for the decoder_decode export of Guest.
var (
	// Unreachable traps, like a guest whose Go runtime aborted.
	Unreachable = []byte{0x00}

	// Spin loops until the host cancels the call.
	Spin = []byte{0x03, 0x40, 0x0c, 0x00, 0x0b, 0x00}

	// Reject returns 0 (decode failed).
	Reject = []byte{0x41, 0x00}
)

// Fixed regions handed out by Guest.
const (
	InputOffset  = 1024
	OutputOffset = 2048
	OutputLength = 64
)

// StubModule exports every ABI name as one no-op () -> () function. It
// passes the loader's export check and instantiates, but no export can be
// called with ABI arguments.
func StubModule() []byte {
	exports := uleb(uint64(len(abi.Exports)))
	for _, name := range abi.Exports {
		exports = appendName(exports, name)
		exports = append(exports, 0x00, 0x00) // func 0
	}

	mod := header()
	mod = append(mod, section(0x01, []byte{0x01, 0x60, 0x00, 0x00})...)
	mod = append(mod, section(0x03, []byte{0x01, 0x00})...)
	mod = append(mod, section(0x07, exports)...)
	mod = append(mod, section(0x0a, []byte{0x01, 0x02, 0x00, 0x0b})...)
	return mod
}

// Guest builds a module with the full decoder ABI and one page of exported
// memory. Input buffers always live at InputOffset with the requested
// length; the decoder output is OutputLength bytes at OutputOffset. Every
// accessor returns 0 and decoder_decode runs decodeBody, which must leave
// one i32 on the stack or never return.
func Guest(decodeBody []byte) []byte {
	const (
		tVoid  = iota // (i32) -> ()
		tI32          // (i32) -> i32
		tI64          // (i32) -> i64
		tNew          // (i32, i32) -> i32
		tThree        // (i32, i32, i32) -> i32
	)
	types := []byte{0x05,
		0x60, 0x01, 0x7f, 0x00,
		0x60, 0x01, 0x7f, 0x01, 0x7f,
		0x60, 0x01, 0x7f, 0x01, 0x7e,
		0x60, 0x02, 0x7f, 0x7f, 0x01, 0x7f,
		0x60, 0x03, 0x7f, 0x7f, 0x7f, 0x01, 0x7f,
	}

	i64 := func(v int64) []byte { return append([]byte{0x42}, sleb(v)...) }
	funcs := []struct {
		name string
		typ  byte
		code []byte
	}{
		{abi.ExportInitDiagnostics, tVoid, nil},
		// Remember the requested size in global 0.
		{abi.ExportInputBufferNew, tI32, []byte{0x20, 0x00, 0x24, 0x00, 0x41, 0x01}},
		{abi.ExportInputBufferPtr, tI64, append(i64(InputOffset<<32), 0x23, 0x00, 0xad, 0x84)},
		{abi.ExportInputBufferFree, tVoid, nil},
		{abi.ExportDecoderNew, tNew, []byte{0x41, 0x01}},
		{abi.ExportDecoderOutput, tI64, i64(OutputOffset<<32 | OutputLength)},
		{abi.ExportDecoderDecode, tThree, decodeBody},
		{abi.ExportDecoderWidth, tI32, []byte{0x41, 0x00}},
		{abi.ExportDecoderHeight, tI32, []byte{0x41, 0x00}},
		{abi.ExportDecoderStatus, tI32, []byte{0x41, 0x00}},
		{abi.ExportDecoderFree, tVoid, nil},
	}

	fnSec := uleb(uint64(len(funcs)))
	exports := uleb(uint64(len(funcs) + 1))
	code := uleb(uint64(len(funcs)))
	for i, fn := range funcs {
		fnSec = append(fnSec, fn.typ)

		exports = appendName(exports, fn.name)
		exports = append(exports, 0x00, byte(i))

		body := append(append([]byte{0x00}, fn.code...), 0x0b)
		code = append(code, uleb(uint64(len(body)))...)
		code = append(code, body...)
	}
	exports = appendName(exports, "memory")
	exports = append(exports, 0x02, 0x00)

	mod := header()
	mod = append(mod, section(0x01, types)...)
	mod = append(mod, section(0x03, fnSec)...)
	mod = append(mod, section(0x05, []byte{0x01, 0x00, 0x01})...)
	mod = append(mod, section(0x06, []byte{0x01, 0x7f, 0x01, 0x41, 0x00, 0x0b})...)
	mod = append(mod, section(0x07, exports)...)
	mod = append(mod, section(0x0a, code)...)
	return mod
}

func header() []byte {
	return []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
}

func section(id byte, content []byte) []byte {
	return append(append([]byte{id}, uleb(uint64(len(content)))...), content...)
}

func appendName(b []byte, name string) []byte {
	return append(append(b, uleb(uint64(len(name)))...), name...)
}

func uleb(v uint64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func sleb(v int64) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}
