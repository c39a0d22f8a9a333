package module

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/woxQAQ/wasm-jpeg-decoder/internal/wasm/wasmtest"
)

// stubGuest compiles and instantiates but cannot decode.
func stubGuest() []byte {
	return wasmtest.StubModule()
}

// writeModule lays out dir/<name>/manifest.yaml plus the given wasm bytes.
func writeModule(t *testing.T, base, name, manifest string, wasmBytes []byte) string {
	t.Helper()

	dir := filepath.Join(base, name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}
	if wasmBytes != nil {
		if err := os.WriteFile(filepath.Join(dir, "decoder.wasm"), wasmBytes, 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func manifestFor(name string) string {
	return `name: ` + name + `
version: 0.1.0
format: jpeg
abi_version: 1
wasm:
  file: decoder.wasm
  size: 1
limits:
  max_width: 256
  max_height: 256
author: imaging
license: Apache-2.0
`
}
