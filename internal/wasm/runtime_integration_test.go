package wasm

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/woxQAQ/wasm-jpeg-decoder/pkg/protocol"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// emptyModule is a valid Wasm 1.0 module with no exports.
var emptyModule = []byte{
	0x00, 0x61, 0x73, 0x6d, // Magic number: \0asm
	0x01, 0x00, 0x00, 0x00, // Version: 1
}

// memoryModule exports one page of memory as "memory".
var memoryModule = []byte{
	0x00, 0x61, 0x73, 0x6d, // Magic
	0x01, 0x00, 0x00, 0x00, // Version
	0x05, 0x03, 0x01, 0x00, 0x01, // Memory section: 1 memory, min 1 page
	0x07, 0x0a, 0x01, 0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, 0x02, 0x00, // export "memory" as memory 0
}

func newTestRuntime(t *testing.T, config *RuntimeConfig) *Runtime {
	t.Helper()

	runtime, err := NewRuntime(context.Background(), zaptest.NewLogger(t), config)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { runtime.Close(context.Background()) })
	return runtime
}

// TestLoadModuleRequiresABI tests that modules without the decoder exports are rejected.
func TestLoadModuleRequiresABI(t *testing.T) {
	runtime := newTestRuntime(t, nil)
	loader := NewModuleLoader(runtime, zaptest.NewLogger(t))

	_, err := loader.LoadModuleFromMemory(context.Background(), "empty", emptyModule)

	var notFound *FunctionNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected FunctionNotFoundError, got %v", err)
	}
	if notFound.FunctionName != "init_diagnostics" {
		t.Errorf("FunctionName = %s, want init_diagnostics", notFound.FunctionName)
	}

	if _, ok := runtime.GetCompiledModule("empty"); ok {
		t.Error("Rejected module should not be cached")
	}
}

// TestLoadModuleInvalidBytes tests compilation errors.
func TestLoadModuleInvalidBytes(t *testing.T) {
	runtime := newTestRuntime(t, nil)
	loader := NewModuleLoader(runtime, zaptest.NewLogger(t))

	_, err := loader.LoadModuleFromMemory(context.Background(), "junk", []byte("not wasm"))

	var compileErr *CompilationError
	if !errors.As(err, &compileErr) {
		t.Fatalf("expected CompilationError, got %v", err)
	}
}

// TestLoadModuleFromMemoryCaches tests that a module is compiled once.
func TestLoadModuleFromMemoryCaches(t *testing.T) {
	runtime := newTestRuntime(t, nil)
	loader := NewModuleLoader(runtime, zaptest.NewLogger(t))
	loader.skipABICheck = true
	ctx := context.Background()

	module, err := loader.LoadModuleFromMemory(ctx, "test-module", emptyModule)
	if err != nil {
		t.Fatalf("Failed to load module: %v", err)
	}

	if module.Name != "test-module" {
		t.Errorf("Module name = %s, want 'test-module'", module.Name)
	}

	module2, err := loader.LoadModuleFromMemory(ctx, "test-module", emptyModule)
	if err != nil {
		t.Fatalf("Failed to load module from cache: %v", err)
	}

	if module2 != module {
		t.Error("Cache should return the same module instance")
	}
}

// TestModuleLoaderFileSource tests the FileModuleSource.
func TestModuleLoaderFileSource(t *testing.T) {
	runtime := newTestRuntime(t, nil)
	loader := NewModuleLoader(runtime, zaptest.NewLogger(t))
	loader.skipABICheck = true

	wasmFile := filepath.Join(t.TempDir(), "test.wasm")
	if err := os.WriteFile(wasmFile, emptyModule, 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	module, err := loader.LoadModuleFromFile(context.Background(), "", wasmFile)
	if err != nil {
		t.Fatalf("Failed to load module from file: %v", err)
	}
	if module.Name != wasmFile {
		t.Errorf("Module name = %s, want %s", module.Name, wasmFile)
	}
}

// TestMemoryHandles tests bounds-checked reads and writes through handles.
func TestMemoryHandles(t *testing.T) {
	runtime := newTestRuntime(t, nil)
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	loader := NewModuleLoader(runtime, logger)
	loader.skipABICheck = true
	if _, err := loader.LoadModuleFromMemory(ctx, "memory-test", memoryModule); err != nil {
		t.Fatalf("Failed to load module: %v", err)
	}

	instanceMgr := NewInstanceManager(runtime, NewHostFunctions(logger), logger)
	instance, err := instanceMgr.Instantiate(ctx, &InstanceConfig{ModuleName: "memory-test"})
	if err != nil {
		t.Fatalf("Failed to instantiate: %v", err)
	}
	defer instance.Close(ctx)

	mem := instance.Memory()
	if mem.Size() != protocol.PageSize {
		t.Fatalf("Size = %d, want one page", mem.Size())
	}

	h := protocol.Handle{Offset: 16, Length: 4}
	if err := mem.Write(h, []byte{1, 2, 3}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	got, err := mem.Read(h)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if diff := cmp.Diff([]byte{1, 2, 3, 0}, got); diff != "" {
		t.Errorf("Read mismatch (-want +got):\n%s", diff)
	}

	// Writing past the region must fail without touching memory.
	err = mem.Write(protocol.Handle{Offset: 16, Length: 2}, []byte{9, 9, 9})
	var overflow *RegionOverflowError
	if !errors.As(err, &overflow) {
		t.Errorf("expected RegionOverflowError, got %v", err)
	}
	if got, _ := mem.Read(h); got[2] != 3 {
		t.Errorf("Overflowing write modified memory: %v", got)
	}

	// Regions past the end of linear memory.
	var accessErr *MemoryAccessError
	if _, err := mem.Read(protocol.Handle{Offset: protocol.PageSize - 2, Length: 4}); !errors.As(err, &accessErr) {
		t.Errorf("expected MemoryAccessError on read, got %v", err)
	}
	if err := mem.Write(protocol.Handle{Offset: protocol.PageSize - 2, Length: 4}, []byte{1, 2, 3, 4}); !errors.As(err, &accessErr) {
		t.Errorf("expected MemoryAccessError on write, got %v", err)
	}

	// A module without the ABI cannot be bound.
	var notFound *FunctionNotFoundError
	if _, err := NewBinding(instance, logger); !errors.As(err, &notFound) {
		t.Errorf("expected FunctionNotFoundError, got %v", err)
	}
}

// TestInstanceLimit tests MaxInstances enforcement.
func TestInstanceLimit(t *testing.T) {
	config := DefaultRuntimeConfig()
	config.MaxInstances = 1
	runtime := newTestRuntime(t, config)
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	loader := NewModuleLoader(runtime, logger)
	loader.skipABICheck = true
	if _, err := loader.LoadModuleFromMemory(ctx, "limited", memoryModule); err != nil {
		t.Fatal(err)
	}

	instanceMgr := NewInstanceManager(runtime, NewHostFunctions(logger), logger)
	first, err := instanceMgr.Instantiate(ctx, &InstanceConfig{ModuleName: "limited", InstanceID: "a"})
	if err != nil {
		t.Fatalf("First instantiate failed: %v", err)
	}

	_, err = instanceMgr.Instantiate(ctx, &InstanceConfig{ModuleName: "limited", InstanceID: "b"})
	var limitErr *InstanceLimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected InstanceLimitError, got %v", err)
	}

	if err := first.Close(ctx); err != nil {
		t.Fatal(err)
	}
	second, err := instanceMgr.Instantiate(ctx, &InstanceConfig{ModuleName: "limited", InstanceID: "c"})
	if err != nil {
		t.Fatalf("Instantiate after close failed: %v", err)
	}
	second.Close(ctx)
}

// TestInstantiateUnknownModule tests the module cache miss path.
func TestInstantiateUnknownModule(t *testing.T) {
	runtime := newTestRuntime(t, nil)
	logger := zaptest.NewLogger(t)

	instanceMgr := NewInstanceManager(runtime, NewHostFunctions(logger), logger)
	_, err := instanceMgr.Instantiate(context.Background(), &InstanceConfig{ModuleName: "missing"})

	var notFound *ModuleNotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("expected ModuleNotFoundError, got %v", err)
	}
}

// guestPath locates a prebuilt decoder guest. Build it with:
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o internal/wasm/testdata/decoder.wasm ./cmd/guest
func guestPath(t *testing.T) string {
	t.Helper()

	path := os.Getenv("JPEGWASM_GUEST")
	if path == "" {
		path = filepath.Join("testdata", "decoder.wasm")
	}
	if _, err := os.Stat(path); err != nil {
		t.Skipf("decoder guest not built (%s)", path)
	}
	return path
}

// TestGuestDecode drives the real guest through the binding.
func TestGuestDecode(t *testing.T) {
	path := guestPath(t)
	runtime := newTestRuntime(t, nil)
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	loader := NewModuleLoader(runtime, logger)
	if _, err := loader.LoadModuleFromFile(ctx, "decoder", path); err != nil {
		t.Fatalf("Failed to load guest: %v", err)
	}

	instanceMgr := NewInstanceManager(runtime, NewHostFunctions(logger), logger)
	instance, err := instanceMgr.Instantiate(ctx, &InstanceConfig{ModuleName: "decoder"})
	if err != nil {
		t.Fatalf("Failed to instantiate guest: %v", err)
	}
	defer instance.Close(ctx)

	binding, err := NewBinding(instance, logger)
	if err != nil {
		t.Fatal(err)
	}
	if err := binding.InitDiagnostics(ctx, zapcore.DebugLevel); err != nil {
		t.Fatal(err)
	}

	// Truncated signature fails and leaves dimensions at zero.
	in, err := binding.NewInputBuffer(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if err := in.Write([]byte{0xFF, 0xD8, 0xFF}); err != nil {
		t.Fatal(err)
	}

	dec, err := binding.NewDecoder(ctx, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := dec.Decode(ctx, in.Handle)
	if err != nil || ok {
		t.Fatalf("Decode(truncated) = %v, %v; want false, nil", ok, err)
	}
	if w, _ := dec.Width(ctx); w != 0 {
		t.Errorf("Width = %d after failure, want 0", w)
	}
	if err := in.Free(ctx); err != nil {
		t.Fatal(err)
	}

	// A real JPEG decodes into opaque pixels.
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0xFF
	}
	img.SetRGBA(0, 0, color.RGBA{A: 0xFF})
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}

	big, err := binding.NewDecoder(ctx, 8, 8)
	if err != nil {
		t.Fatal(err)
	}
	in, err = binding.NewInputBuffer(ctx, uint32(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	if err := in.Write(buf.Bytes()); err != nil {
		t.Fatal(err)
	}
	if ok, err := big.Decode(ctx, in.Handle); err != nil || !ok {
		t.Fatalf("Decode(jpeg) = %v, %v; want true, nil", ok, err)
	}

	out, err := big.Pixels(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if out.Width != 8 || out.Height != 8 || len(out.Pix) != 256 {
		t.Fatalf("Pixels = %dx%d with %d bytes", out.Width, out.Height, len(out.Pix))
	}
	for i := 3; i < len(out.Pix); i += 4 {
		if out.Pix[i] != 0xFF {
			t.Fatalf("alpha at pixel %d = %d", i/4, out.Pix[i])
		}
	}

	// The small decoder cannot hold the image.
	if ok, _ := dec.Decode(ctx, in.Handle); ok {
		t.Error("Decode into a 1x1 decoder should fail")
	}
	if status, _ := dec.Status(ctx); status != protocol.StatusCapacityExceeded {
		t.Errorf("Status = %s, want capacity_exceeded", status)
	}

	if err := big.Free(ctx); err != nil {
		t.Fatal(err)
	}
	if err := dec.Free(ctx); err != nil {
		t.Fatal(err)
	}
}
