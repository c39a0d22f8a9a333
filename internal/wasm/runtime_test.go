package wasm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/woxQAQ/wasm-jpeg-decoder/internal/wasm/wasmtest"
	"github.com/woxQAQ/wasm-jpeg-decoder/pkg/protocol"
	"go.uber.org/zap/zaptest"
)

// bindGuest compiles and instantiates a hand-built guest on runtime.
func bindGuest(t *testing.T, runtime *Runtime, name string, guest []byte) *Binding {
	t.Helper()

	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	if _, err := NewModuleLoader(runtime, logger).LoadModuleFromMemory(ctx, name, guest); err != nil {
		t.Fatalf("LoadModuleFromMemory() failed: %v", err)
	}
	inst, err := NewInstanceManager(runtime, NewHostFunctions(logger), logger).
		Instantiate(ctx, &InstanceConfig{ModuleName: name})
	if err != nil {
		t.Fatalf("Instantiate() failed: %v", err)
	}
	t.Cleanup(func() { inst.Close(context.Background()) })

	b, err := NewBinding(inst, logger)
	if err != nil {
		t.Fatalf("NewBinding() failed: %v", err)
	}
	return b
}

func TestBindingRegions(t *testing.T) {
	runtime := newTestRuntime(t, nil)
	b := bindGuest(t, runtime, "reject", wasmtest.Guest(wasmtest.Reject))
	ctx := context.Background()

	in, err := b.NewInputBuffer(ctx, 5)
	if err != nil {
		t.Fatalf("NewInputBuffer() failed: %v", err)
	}
	want := protocol.Handle{Offset: wasmtest.InputOffset, Length: 5}
	if in.Handle != want {
		t.Errorf("input handle = %v, want %v", in.Handle, want)
	}

	if err := in.Write([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}); err != nil {
		t.Fatalf("Write() failed: %v", err)
	}
	got, err := b.mem.Read(in.Handle)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "\xff\xd8\xff\xe0\x00" {
		t.Errorf("guest memory = % x", got)
	}

	var overflow *RegionOverflowError
	if err := in.Write(make([]byte, 6)); !errors.As(err, &overflow) {
		t.Errorf("oversized Write: expected RegionOverflowError, got %v", err)
	}

	d, err := b.NewDecoder(ctx, 4, 4)
	if err != nil {
		t.Fatalf("NewDecoder() failed: %v", err)
	}
	wantOut := protocol.Handle{Offset: wasmtest.OutputOffset, Length: wasmtest.OutputLength}
	if d.Output != wantOut {
		t.Errorf("output handle = %v, want %v", d.Output, wantOut)
	}

	ok, err := d.Decode(ctx, in.Handle)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if ok {
		t.Error("Decode() = true, want false from a rejecting guest")
	}
	status, err := d.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if status != protocol.StatusUninitialized {
		t.Errorf("Status() = %s, want %s", status, protocol.StatusUninitialized)
	}

	if err := in.Free(ctx); err != nil {
		t.Errorf("input Free() failed: %v", err)
	}
	if err := d.Free(ctx); err != nil {
		t.Errorf("decoder Free() failed: %v", err)
	}
}

func TestBindingPixelsEmptyImage(t *testing.T) {
	runtime := newTestRuntime(t, nil)
	b := bindGuest(t, runtime, "reject", wasmtest.Guest(wasmtest.Reject))
	ctx := context.Background()

	d, err := b.NewDecoder(ctx, 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	img, err := d.Pixels(ctx)
	if err != nil {
		t.Fatalf("Pixels() failed: %v", err)
	}
	if img.Width != 0 || img.Height != 0 || len(img.Pix) != 0 {
		t.Errorf("Pixels() = %dx%d with %d bytes, want empty", img.Width, img.Height, len(img.Pix))
	}
}

func TestBindingTrapIsGuestCallError(t *testing.T) {
	runtime := newTestRuntime(t, nil)
	b := bindGuest(t, runtime, "trap", wasmtest.Guest(wasmtest.Unreachable))
	ctx := context.Background()

	d, err := b.NewDecoder(ctx, 4, 4)
	if err != nil {
		t.Fatal(err)
	}

	_, err = d.Decode(ctx, protocol.Handle{Offset: wasmtest.InputOffset, Length: 3})

	var callErr *GuestCallError
	if !errors.As(err, &callErr) {
		t.Fatalf("expected GuestCallError, got %v", err)
	}
	if callErr.FunctionName != "decoder_decode" {
		t.Errorf("FunctionName = %s, want decoder_decode", callErr.FunctionName)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		t.Error("a trap should not look like a timeout")
	}
}

func TestBindingDecodeHonorsDeadline(t *testing.T) {
	runtime := newTestRuntime(t, nil)
	b := bindGuest(t, runtime, "spin", wasmtest.Guest(wasmtest.Spin))

	d, err := b.NewDecoder(context.Background(), 4, 4)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = d.Decode(ctx, protocol.Handle{Offset: wasmtest.InputOffset, Length: 3})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Decode() returned after %v", elapsed)
	}
}

func TestRuntimeCloseClosesInstances(t *testing.T) {
	ctx := context.Background()
	runtime, err := NewRuntime(ctx, zaptest.NewLogger(t), nil)
	if err != nil {
		t.Fatal(err)
	}

	b := bindGuest(t, runtime, "reject", wasmtest.Guest(wasmtest.Reject))
	if runtime.ActiveInstances() != 1 {
		t.Fatalf("ActiveInstances = %d, want 1", runtime.ActiveInstances())
	}
	if runtime.IsClosed() {
		t.Error("Runtime should not be closed initially")
	}

	if err := runtime.Close(ctx); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := runtime.Close(ctx); err != nil {
		t.Errorf("second Close() failed: %v", err)
	}
	if !runtime.IsClosed() {
		t.Error("Runtime should be closed after Close()")
	}

	if _, err := b.NewDecoder(ctx, 4, 4); err == nil {
		t.Error("NewDecoder() on a closed runtime should fail")
	}
}

func TestErrorMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			"compilation",
			&CompilationError{ModuleName: "jpeg", Err: &testError{}},
			"failed to compile Wasm module 'jpeg': test error",
		},
		{
			"instantiation",
			&InstantiationError{ModuleName: "jpeg", InstanceID: "inst-1", Err: &testError{}},
			"failed to instantiate module 'jpeg' (instance: inst-1): test error",
		},
		{
			"module not found",
			&ModuleNotFoundError{ModuleName: "jpeg"},
			"module 'jpeg' not found in cache",
		},
		{
			"function not found",
			&FunctionNotFoundError{ModuleName: "jpeg", FunctionName: "decoder_decode"},
			"function 'decoder_decode' not found in module 'jpeg'",
		},
		{
			"guest call",
			&GuestCallError{FunctionName: "decoder_new", Err: errNullObject},
			"guest call 'decoder_new' failed: guest returned a null object id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRuntimeCompilationCacheDir(t *testing.T) {
	dir := t.TempDir()
	guest := wasmtest.Guest(wasmtest.Reject)

	// The second runtime reads what the first one wrote.
	for i := 0; i < 2; i++ {
		config := DefaultRuntimeConfig()
		config.CacheDir = dir
		runtime := newTestRuntime(t, config)

		b := bindGuest(t, runtime, "cached", guest)
		if _, err := b.NewDecoder(context.Background(), 4, 4); err != nil {
			t.Fatalf("runtime %d: NewDecoder() failed: %v", i, err)
		}
	}
}

func TestMemoryAccessErrorUnwrap(t *testing.T) {
	inner := &RegionOverflowError{Region: protocol.Handle{Offset: 8, Length: 2}, DataLength: 3}
	err := &MemoryAccessError{Operation: "write", Address: 8, Length: 2, Err: inner}

	var overflow *RegionOverflowError
	if !errors.As(err, &overflow) {
		t.Fatalf("expected RegionOverflowError in chain, got %v", err)
	}

	expected := "memory access failed (op=write, addr=8, len=2): 3 bytes do not fit region [8, 10)"
	if err.Error() != expected {
		t.Errorf("Error message = %s, want %s", err.Error(), expected)
	}
}

func TestGuestCallErrorUnwrap(t *testing.T) {
	err := &GuestCallError{FunctionName: "decoder_new", Err: context.DeadlineExceeded}

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("GuestCallError should unwrap to its cause")
	}
}

// testError is a simple error for testing.
type testError struct{}

func (e *testError) Error() string {
	return "test error"
}
