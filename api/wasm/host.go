//go:build !wasm

package wasm

import (
	"context"

	"github.com/tetratelabs/wazero/api"
)

// HostFunctions defines the functions a host provides to the decoder guest
// under the "host" import module.
type HostFunctions interface {
	// LogMessage receives one diagnostic line from the guest.
	// The message lives at [ptr, ptr+length) in the guest's memory.
	LogMessage(ctx context.Context, mod api.Module, level, ptr, length uint32)
}
